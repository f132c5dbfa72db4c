package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/domain/channel"
	"github.com/sentinelvision/console/backend/internal/domain/health"
	"github.com/sentinelvision/console/backend/internal/domain/retry"
	"github.com/sentinelvision/console/backend/internal/infrastructure/monitoring"
)

// bundle is the one-shot diagnostics snapshot an operator attaches to a
// support ticket. Everything the status endpoints expose, in one file.
type bundle struct {
	GeneratedAt   time.Time               `json:"generated_at"`
	Service       string                  `json:"service"`
	Version       string                  `json:"version"`
	Combined      channel.ConnState       `json:"combined"`
	Channels      []channel.Status        `json:"channels"`
	Retries       []retry.Entry           `json:"retries"`
	Workers       []health.WorkerStatus   `json:"workers"`
	WorkerSummary health.Summary          `json:"worker_summary"`
	Degradation   health.DegradationState `json:"degradation"`
	Metrics       monitoring.Snapshot     `json:"metrics"`
}

// GetDebugBundle streams a gzipped JSON diagnostics bundle
func (h *Handlers) GetDebugBundle(c *gin.Context) {
	b := bundle{
		GeneratedAt:   time.Now().UTC(),
		Service:       serviceName,
		Version:       serviceVersion,
		Combined:      h.channels.CombinedState(),
		Channels:      h.channels.Snapshots(),
		Retries:       h.scheduler.Snapshot(),
		Workers:       h.workers.Snapshot(),
		WorkerSummary: h.workers.Summary(),
		Degradation:   h.aggregator.State(),
		Metrics:       h.metrics.GetSnapshot(),
	}

	raw, err := sonic.Marshal(b)
	if err != nil {
		h.log.Error("failed to marshal diagnostics bundle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build bundle"})
		return
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		gz.Close()
		h.log.Error("failed to compress diagnostics bundle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build bundle"})
		return
	}
	if err := gz.Close(); err != nil {
		h.log.Error("failed to compress diagnostics bundle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build bundle"})
		return
	}

	name := fmt.Sprintf("sentinel-bundle-%s.json.gz", b.GeneratedAt.Format("20060102T150405Z"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/gzip", buf.Bytes())
}
