package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
	"github.com/sentinelvision/console/backend/internal/infrastructure/tracing"
)

// Event is one monitoring event from the upstream platform.
type Event struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera"`
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventPage is one page of the events listing.
type EventPage struct {
	Events     []Event `json:"events"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// EventQuery narrows the events listing.
type EventQuery struct {
	Cursor string
	Limit  int
}

// Health is the upstream service health report.
type Health struct {
	Status            string   `json:"status"`
	RedisHealthy      bool     `json:"redis_healthy"`
	FallbackQueues    []string `json:"fallback_queues,omitempty"`
	AvailableFeatures []string `json:"available_features,omitempty"`
	Version           string   `json:"version,omitempty"`
}

// Config defines client settings.
type Config struct {
	// BaseURL is the platform API root, e.g. https://platform.internal/api.
	BaseURL string
	// APIKey is sent as X-API-Key when set.
	APIKey string
	// Timeout bounds each request, default 15s.
	Timeout time.Duration
	// RequestsPerSecond caps outbound request rate. Zero means unlimited.
	RequestsPerSecond float64
}

// Client talks to the platform REST API. Connection-level retries live
// in the underlying retryablehttp transport; 429 responses pass through
// untouched so rate limit pacing stays with the retry scheduler.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *zap.Logger
}

// NewClient creates a production-ready platform client.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	// Create underlying retryable client
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil // Disable logging
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	// Create resty client on top of the retrying transport
	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "SentinelConsole/1.0")
	if cfg.APIKey != "" {
		restyClient.SetHeader("X-API-Key", cfg.APIKey)
	}

	limiter := rate.NewLimiter(rate.Inf, 0) // Unlimited by default
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breaker := resilience.New("platform-health", resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("health probe breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		log:     log,
	}
}

// request creates a new request after the rate limiter admits it. Trace
// identity carried by ctx propagates to the platform.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	headers := make(map[string]string)
	tracing.InjectTraceContext(ctx, headers)

	return c.resty.R().SetContext(ctx).SetHeaders(headers), nil
}

// ListEvents fetches one page of monitoring events.
func (c *Client) ListEvents(ctx context.Context, q EventQuery) (EventPage, error) {
	req, err := c.request(ctx)
	if err != nil {
		return EventPage{}, err
	}
	if q.Cursor != "" {
		req.SetQueryParam("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(q.Limit))
	}

	var page EventPage
	resp, err := req.SetResult(&page).Get("/v1/events")
	if err != nil {
		return EventPage{}, fmt.Errorf("list events: %w", err)
	}
	if resp.IsError() {
		return EventPage{}, newStatusError(resp)
	}
	return page, nil
}

// ProbeHealth reads the upstream health endpoint through the breaker so
// a flapping platform cannot soak the poller in timeouts.
func (c *Client) ProbeHealth(ctx context.Context) (Health, error) {
	return resilience.Do(c.breaker, func() (Health, error) {
		req, err := c.request(ctx)
		if err != nil {
			return Health{}, err
		}

		var h Health
		resp, err := req.SetResult(&h).Get("/v1/health")
		if err != nil {
			return Health{}, fmt.Errorf("health probe: %w", err)
		}
		if resp.IsError() {
			return Health{}, newStatusError(resp)
		}
		return h, nil
	})
}

// BreakerState exposes the health probe breaker state for diagnostics.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func newStatusError(resp *resty.Response) *StatusError {
	se := &StatusError{
		Code: resp.StatusCode(),
		Body: strings.TrimSpace(resp.String()),
	}
	if v := resp.Header().Get("Retry-After"); v != "" {
		se.RetryAfter = parseRetryAfter(v)
	}
	return se
}
