package monitoring

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Snapshot is the JSON view of the collector for the UI and the
// diagnostics bundle.
type Snapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	TotalRequests    int64     `json:"total_requests"`
	TotalErrors      int64     `json:"total_errors"`
	ErrorRate        float64   `json:"error_rate"`
	AverageLatencyMs float64   `json:"average_latency_ms"`
	P50LatencyMs     float64   `json:"p50_latency_ms"`
	P90LatencyMs     float64   `json:"p90_latency_ms"`
	P99LatencyMs     float64   `json:"p99_latency_ms"`
	ActiveRetries    int64     `json:"active_retries"`
	Degraded         bool      `json:"degraded"`
}

// GetSnapshot computes the current JSON snapshot. Latency quantiles
// come from a sliding window of recent requests.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	counts := m.snapshot
	window := make([]float64, len(m.latencies))
	copy(window, m.latencies)
	m.mu.RUnlock()

	snap := Snapshot{
		Timestamp:     time.Now(),
		UptimeSeconds: m.GetUptimeSeconds(),
		TotalRequests: counts.TotalRequests,
		TotalErrors:   counts.TotalErrors,
		ActiveRetries: counts.ActiveRetries,
		Degraded:      counts.Degraded,
	}

	if counts.TotalRequests > 0 {
		snap.ErrorRate = float64(counts.TotalErrors) / float64(counts.TotalRequests)
		snap.AverageLatencyMs = counts.TotalDuration / float64(counts.TotalRequests) * 1000
	}

	if len(window) > 0 {
		sort.Float64s(window)
		snap.P50LatencyMs = stat.Quantile(0.5, stat.Empirical, window, nil)
		snap.P90LatencyMs = stat.Quantile(0.9, stat.Empirical, window, nil)
		snap.P99LatencyMs = stat.Quantile(0.99, stat.Empirical, window, nil)
	}

	return snap
}
