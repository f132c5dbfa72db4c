package health

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/domain/channel"
)

// Mode is the overall service mode shown to operators
type Mode int

const (
	ModeNormal Mode = iota
	ModeDegraded
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the mode as its string form
func (m Mode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON decodes the string form back into a mode
func (m *Mode) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"normal"`:
		*m = ModeNormal
	case `"degraded"`:
		*m = ModeDegraded
	default:
		return fmt.Errorf("unknown mode %s", data)
	}
	return nil
}

// Report is the health payload the platform publishes about itself.
type Report struct {
	RedisHealthy      bool     `json:"redis_healthy"`
	FallbackQueues    []string `json:"fallback_queues,omitempty"`
	AvailableFeatures []string `json:"available_features,omitempty"`
}

// DegradationState is the aggregate the UI banner renders.
type DegradationState struct {
	Mode              Mode     `json:"mode"`
	IsDegraded        bool     `json:"is_degraded"`
	RedisHealthy      bool     `json:"redis_healthy"`
	FallbackQueues    []string `json:"fallback_queues,omitempty"`
	AvailableFeatures []string `json:"available_features,omitempty"`
	ShouldPoll        bool     `json:"should_poll"`
}

// AggregatorConfig tunes the aggregator.
type AggregatorConfig struct {
	// GraceWindow is how long the combined transport state must stay
	// failed before it alone flips the mode to degraded. Bridges brief
	// double drops without alarming the operator. Default 30s.
	GraceWindow time.Duration
	// OnChange is called outside the lock whenever the visible state
	// changes.
	OnChange func(DegradationState)
}

// Aggregator combines the realtime transport state with the platform's
// own health report into the single normal/degraded signal. Transport
// failure only counts after it persists past the grace window; an
// unhealthy platform store counts immediately.
type Aggregator struct {
	cfg AggregatorConfig
	log *zap.Logger

	mu         sync.Mutex
	transport  channel.ConnState
	report     Report
	haveReport bool
	stuckDown  bool // transport failed for longer than the grace window
	generation uint64
	timer      *time.Timer
	last       DegradationState
	haveLast   bool
}

// NewAggregator creates an aggregator. The logger may be nil.
func NewAggregator(cfg AggregatorConfig, log *zap.Logger) *Aggregator {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		cfg:       cfg,
		log:       log,
		transport: channel.StateDisconnected,
		report:    Report{RedisHealthy: true},
	}
}

// SetTransportState feeds the combined channel state. Entering failed
// arms the grace timer; leaving failed disarms it and clears the
// transport contribution at once.
func (a *Aggregator) SetTransportState(s channel.ConnState) {
	a.mu.Lock()
	if s == a.transport {
		a.mu.Unlock()
		return
	}
	a.transport = s

	// Any change invalidates a pending grace timer.
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	if s == channel.StateFailed {
		gen := a.generation
		a.timer = time.AfterFunc(a.cfg.GraceWindow, func() {
			a.graceExpired(gen)
		})
	} else {
		a.stuckDown = false
	}
	next, changed := a.refreshLocked()
	a.mu.Unlock()

	a.publish(next, changed, s)
}

// SetReport feeds the platform's self-reported health.
func (a *Aggregator) SetReport(r Report) {
	a.mu.Lock()
	a.report = r
	a.haveReport = true
	next, changed := a.refreshLocked()
	transport := a.transport
	a.mu.Unlock()

	a.publish(next, changed, transport)
}

// State returns the current aggregate.
func (a *Aggregator) State() DegradationState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

// ShouldPoll reports whether consumers should fall back to REST
// polling. True whenever the realtime transport is failed; polling
// starts immediately rather than waiting out the grace window.
func (a *Aggregator) ShouldPoll() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transport == channel.StateFailed
}

// Close disarms any pending grace timer.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
}

// graceExpired marks the transport contribution degraded unless the
// timer was superseded while it was in flight.
func (a *Aggregator) graceExpired(gen uint64) {
	a.mu.Lock()
	if a.generation != gen || a.transport != channel.StateFailed {
		a.mu.Unlock()
		return
	}
	a.stuckDown = true
	next, changed := a.refreshLocked()
	a.mu.Unlock()

	a.publish(next, changed, channel.StateFailed)
}

// refreshLocked recomputes the aggregate and reports whether the
// visible state moved.
func (a *Aggregator) refreshLocked() (DegradationState, bool) {
	next := a.stateLocked()
	changed := !a.haveLast || !statesEqual(a.last, next)
	a.last = next
	a.haveLast = true
	return next, changed
}

func (a *Aggregator) publish(next DegradationState, changed bool, transport channel.ConnState) {
	if !changed {
		return
	}
	if next.IsDegraded {
		a.log.Warn("service degraded",
			zap.Bool("redis_healthy", next.RedisHealthy),
			zap.String("transport", transport.String()),
		)
	} else {
		a.log.Info("service mode normal")
	}
	if a.cfg.OnChange != nil {
		a.cfg.OnChange(next)
	}
}

func (a *Aggregator) stateLocked() DegradationState {
	degraded := a.stuckDown || (a.haveReport && !a.report.RedisHealthy)

	mode := ModeNormal
	if degraded {
		mode = ModeDegraded
	}
	return DegradationState{
		Mode:              mode,
		IsDegraded:        degraded,
		RedisHealthy:      !a.haveReport || a.report.RedisHealthy,
		FallbackQueues:    slices.Clone(a.report.FallbackQueues),
		AvailableFeatures: slices.Clone(a.report.AvailableFeatures),
		ShouldPoll:        a.transport == channel.StateFailed,
	}
}

func statesEqual(a, b DegradationState) bool {
	return a.Mode == b.Mode &&
		a.IsDegraded == b.IsDegraded &&
		a.RedisHealthy == b.RedisHealthy &&
		a.ShouldPoll == b.ShouldPoll &&
		slices.Equal(a.FallbackQueues, b.FallbackQueues) &&
		slices.Equal(a.AvailableFeatures, b.AvailableFeatures)
}
