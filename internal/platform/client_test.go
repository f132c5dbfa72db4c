package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
	"github.com/sentinelvision/console/backend/internal/infrastructure/tracing"
)

func TestListEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/events", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "cur_1", r.URL.Query().Get("cursor"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"events": [
				{"id":"evt_1","camera":"lobby","kind":"motion","severity":"info"}
			],
			"next_cursor": "cur_2"
		}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	page, err := c.ListEvents(context.Background(), EventQuery{Cursor: "cur_1", Limit: 25})
	require.NoError(t, err)

	require.Len(t, page.Events, 1)
	assert.Equal(t, "evt_1", page.Events[0].ID)
	assert.Equal(t, "lobby", page.Events[0].Camera)
	assert.Equal(t, "cur_2", page.NextCursor)
}

func TestListEventsRateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.ListEvents(context.Background(), EventQuery{})
	require.Error(t, err)

	assert.Equal(t, OutcomeRateLimited, Classify(err))
	d, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	// The transport must not burn attempts against a rate limit.
	assert.Equal(t, int32(1), hits.Load())
}

func TestListEventsRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"events":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	page, err := c.ListEvents(context.Background(), EventQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestProbeHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","redis_healthy":true,"available_features":["live","playback"]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	h, err := c.ProbeHealth(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.RedisHealthy)
	assert.Equal(t, []string{"live", "playback"}, h.AvailableFeatures)
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}

func TestProbeHealthBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	for i := 0; i < 3; i++ {
		_, err := c.ProbeHealth(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	// Once open, probes fail fast without touching the upstream.
	_, err := c.ProbeHealth(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestListEventsPropagatesTrace(t *testing.T) {
	var traceHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceHeader = r.Header.Get("X-Trace-ID")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"events":[]}`)
	}))
	defer srv.Close()

	tracer := tracing.New("test", zap.NewNop())
	defer tracer.Close()
	span, ctx := tracer.StartSpan(context.Background(), "list-events")

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.ListEvents(ctx, EventQuery{})
	require.NoError(t, err)

	assert.Equal(t, string(span.TraceID), traceHeader)
}

func TestRequestRateLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"events":[]}`)
	}))
	defer srv.Close()

	// One token, refilled every ten seconds.
	c := NewClient(Config{BaseURL: srv.URL, RequestsPerSecond: 0.1}, nil)

	_, err := c.ListEvents(context.Background(), EventQuery{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListEvents(ctx, EventQuery{})
	require.Error(t, err, "second request must block on the limiter until the context dies")
}
