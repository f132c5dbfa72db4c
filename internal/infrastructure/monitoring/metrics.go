package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyWindow bounds the sample kept for quantile estimation.
const latencyWindow = 1024

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Retry scheduler metrics
	RetriesRegistered prometheus.Counter
	RetriesCancelled  prometheus.Counter
	RetriesExhausted  prometheus.Counter
	RetriesActive     prometheus.Gauge

	// Channel metrics
	ChannelState *prometheus.GaugeVec
	Reconnects   *prometheus.CounterVec

	// Degradation metrics
	DegradedMode prometheus.Gauge

	// Worker metrics
	WorkersRunning prometheus.Gauge
	WorkersTotal   prometheus.Gauge

	// Stream metrics
	StreamMessages *prometheus.CounterVec

	// Upstream call metrics
	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot state for the JSON API
	mu        sync.RWMutex
	snapshot  snapshotCounts
	latencies []float64
	latIndex  int
	latFull   bool
}

type snapshotCounts struct {
	TotalRequests int64
	TotalErrors   int64
	TotalDuration float64
	ActiveRetries int64
	Degraded      bool
}

// NewMetrics creates a metrics collector on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector on the given registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		latencies: make([]float64, 0, latencyWindow),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Retry scheduler metrics
		RetriesRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "console_retries_registered_total",
				Help: "Total number of rate limit retries registered",
			},
		),
		RetriesCancelled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "console_retries_cancelled_total",
				Help: "Total number of retries cancelled before completion",
			},
		),
		RetriesExhausted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "console_retries_exhausted_total",
				Help: "Total number of retries that ran out of attempts",
			},
		),
		RetriesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_retries_active",
				Help: "Number of retries currently scheduled",
			},
		),

		// Channel metrics
		ChannelState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "console_channel_state",
				Help: "Connection state per channel (0 disconnected, 1 reconnecting, 2 connected, 3 failed)",
			},
			[]string{"channel"},
		),
		Reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_channel_reconnects_total",
				Help: "Times each channel entered the reconnecting state",
			},
			[]string{"channel"},
		),

		// Degradation metrics
		DegradedMode: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_degraded_mode",
				Help: "Whether the console is in degraded mode (1) or normal (0)",
			},
		),

		// Worker metrics
		WorkersRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_workers_running",
				Help: "Number of platform workers reporting as running",
			},
		),
		WorkersTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_workers_total",
				Help: "Number of platform workers tracked",
			},
		),

		// Stream metrics
		StreamMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_stream_messages_total",
				Help: "Total number of realtime stream messages received",
			},
			[]string{"channel"},
		),

		// Upstream call metrics
		UpstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_upstream_calls_total",
				Help: "Total number of platform API calls",
			},
			[]string{"operation", "status"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_upstream_duration_seconds",
				Help:    "Platform API call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_uptime_seconds",
				Help: "Console backend uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	ms := float64(duration.Microseconds()) / 1000
	if len(m.latencies) < latencyWindow {
		m.latencies = append(m.latencies, ms)
	} else {
		m.latencies[m.latIndex] = ms
		m.latFull = true
	}
	m.latIndex = (m.latIndex + 1) % latencyWindow
	m.mu.Unlock()
}

// RecordUpstreamCall records one platform API call
func (m *Metrics) RecordUpstreamCall(operation, status string, duration time.Duration) {
	m.UpstreamCalls.WithLabelValues(operation, status).Inc()
	m.UpstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RetryRegistered counts a newly scheduled retry.
func (m *Metrics) RetryRegistered() {
	m.RetriesRegistered.Inc()
}

// RetryCancelled counts a retry cancelled before completion.
func (m *Metrics) RetryCancelled() {
	m.RetriesCancelled.Inc()
}

// RetryExhausted counts a retry that ran out of attempts.
func (m *Metrics) RetryExhausted() {
	m.RetriesExhausted.Inc()
}

// ActiveRetries sets the number of currently scheduled retries.
func (m *Metrics) ActiveRetries(count int) {
	m.RetriesActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveRetries = int64(count)
	m.mu.Unlock()
}

// SetChannelState sets the numeric connection state for one channel.
func (m *Metrics) SetChannelState(channel string, state int) {
	m.ChannelState.WithLabelValues(channel).Set(float64(state))
}

// IncReconnects counts one entry into the reconnecting state.
func (m *Metrics) IncReconnects(channel string) {
	m.Reconnects.WithLabelValues(channel).Inc()
}

// SetDegraded flips the degraded mode gauge.
func (m *Metrics) SetDegraded(degraded bool) {
	v := 0.0
	if degraded {
		v = 1.0
	}
	m.DegradedMode.Set(v)

	m.mu.Lock()
	m.snapshot.Degraded = degraded
	m.mu.Unlock()
}

// SetWorkers records the worker registry summary.
func (m *Metrics) SetWorkers(running, total int) {
	m.WorkersRunning.Set(float64(running))
	m.WorkersTotal.Set(float64(total))
}

// RecordStreamMessage counts one inbound realtime frame.
func (m *Metrics) RecordStreamMessage(channel string) {
	m.StreamMessages.WithLabelValues(channel).Inc()
}

// GetUptimeSeconds returns seconds since the collector was created.
func (m *Metrics) GetUptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
