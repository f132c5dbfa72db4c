package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/domain/channel"
	"github.com/sentinelvision/console/backend/internal/domain/health"
	"github.com/sentinelvision/console/backend/internal/domain/retry"
	"github.com/sentinelvision/console/backend/internal/infrastructure/monitoring"
	"github.com/sentinelvision/console/backend/internal/platform"
	"github.com/sentinelvision/console/backend/internal/shared/id"
)

const (
	serviceName    = "sentinel-console"
	serviceVersion = "1.0.0"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	scheduler  *retry.Scheduler
	channels   *channel.Group
	workers    *health.Workers
	aggregator *health.Aggregator
	metrics    *monitoring.Metrics
	platform   *platform.Client
	log        *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(
	scheduler *retry.Scheduler,
	channels *channel.Group,
	workers *health.Workers,
	aggregator *health.Aggregator,
	metrics *monitoring.Metrics,
	platform *platform.Client,
	log *zap.Logger,
) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		scheduler:  scheduler,
		channels:   channels,
		workers:    workers,
		aggregator: aggregator,
		metrics:    metrics,
		platform:   platform,
		log:        log,
	}
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	deg := h.aggregator.State()

	breaker := "unknown"
	if h.platform != nil {
		breaker = h.platform.BreakerState().String()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": h.metrics.GetUptimeSeconds(),
		"connection":     h.channels.CombinedState(),
		"mode":           deg.Mode,
		"active_retries": h.scheduler.Len(),
		"workers":        h.workers.Summary(),
		"platform":       gin.H{"breaker": breaker},
	})
}

// GetConnectionStatus reports the combined stream state and every channel
func (h *Handlers) GetConnectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"combined": h.channels.CombinedState(),
		"channels": h.channels.Snapshots(),
	})
}

// RetryChannel resets a channel's reconnect budget and redials it
func (h *Handlers) RetryChannel(c *gin.Context) {
	name := c.Param("name")

	m, ok := h.channels.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
		return
	}

	m.Retry()

	c.JSON(http.StatusAccepted, gin.H{
		"channel": name,
		"state":   m.State(),
	})
}

// GetRetries lists scheduled rate-limit retries in registration order
func (h *Handlers) GetRetries(c *gin.Context) {
	entries := h.scheduler.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"retries": entries,
		"count":   len(entries),
	})
}

// CancelRetry cancels one scheduled rate-limit retry
func (h *Handlers) CancelRetry(c *gin.Context) {
	raw := c.Param("id")

	if !id.HasPrefix(raw, id.RetryPrefix) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid retry id"})
		return
	}

	if !h.scheduler.Cancel(id.RetryID(raw)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown retry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cancelled": true,
		"retry_id":  raw,
	})
}

// CancelAllRetries cancels every scheduled rate-limit retry
func (h *Handlers) CancelAllRetries(c *gin.Context) {
	n := h.scheduler.CancelAll()

	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

// GetWorkers lists tracked platform workers
func (h *Handlers) GetWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"workers": h.workers.Snapshot(),
		"summary": h.workers.Summary(),
	})
}

// ClearWorkers drops all tracked workers
func (h *Handlers) ClearWorkers(c *gin.Context) {
	n := h.workers.Clear()

	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

// GetDegradation reports the current service mode
func (h *Handlers) GetDegradation(c *gin.Context) {
	c.JSON(http.StatusOK, h.aggregator.State())
}

// GetMetricsJSON returns the aggregated metrics snapshot
func (h *Handlers) GetMetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}
