package channel

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
)

// ConnState represents the connection state of one realtime channel
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateReconnecting
	StateConnected
	StateFailed
)

// String returns the string representation of the state
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string form
func (s ConnState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes the string form back into a state
func (s *ConnState) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"disconnected"`:
		*s = StateDisconnected
	case `"reconnecting"`:
		*s = StateReconnecting
	case `"connected"`:
		*s = StateConnected
	case `"failed"`:
		*s = StateFailed
	default:
		return fmt.Errorf("unknown connection state %s", data)
	}
	return nil
}

// Status is the externally visible state of one channel.
type Status struct {
	Name                 string    `json:"name"`
	State                ConnState `json:"state"`
	ReconnectAttempts    int       `json:"reconnect_attempts"`
	MaxReconnectAttempts int       `json:"max_reconnect_attempts"`
	LastMessageAt        time.Time `json:"last_message_at"`
	HasExhaustedRetries  bool      `json:"has_exhausted_retries"`
}

// Config tunes a machine.
type Config struct {
	// MaxAttempts bounds automatic reconnection, default 5. Once
	// exceeded the machine parks in failed until a manual Retry.
	MaxAttempts int
	// Policy computes the wait before each reconnection attempt.
	// Defaults to exponential 1s..30s.
	Policy resilience.Policy
	// OnTransition is called after every state change, outside the
	// machine lock.
	OnTransition func(name string, from, to ConnState)
}

// Machine tracks the connection lifecycle of a single realtime channel
// and schedules reconnection attempts with backoff. The transport owns
// the socket and reports outcomes via MarkConnected and MarkDropped;
// the machine decides when the next dial happens and invokes the dial
// callback on its own goroutine.
//
// A generation counter invalidates scheduled attempts, so a Disconnect
// or manual Retry racing a firing timer always wins.
type Machine struct {
	name string
	cfg  Config
	dial func()
	log  *zap.Logger

	mu         sync.Mutex
	state      ConnState
	attempts   int
	lastMsg    time.Time
	generation uint64
	timer      *time.Timer
}

// NewMachine creates a machine for the named channel. The logger may be
// nil; dial must not be.
func NewMachine(name string, cfg Config, dial func(), log *zap.Logger) *Machine {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.Policy == nil {
		cfg.Policy = resilience.Exponential(time.Second, 30*time.Second)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Machine{
		name:  name,
		cfg:   cfg,
		dial:  dial,
		log:   log,
		state: StateDisconnected,
	}
}

// Name returns the channel name
func (m *Machine) Name() string {
	return m.name
}

// State returns the current connection state
func (m *Machine) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the current status
func (m *Machine) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Name:                 m.name,
		State:                m.state,
		ReconnectAttempts:    m.attempts,
		MaxReconnectAttempts: m.cfg.MaxAttempts,
		LastMessageAt:        m.lastMsg,
		HasExhaustedRetries:  m.state == StateFailed,
	}
}

// Connect begins a fresh connection cycle: the attempt counter resets
// and the first dial starts immediately. No-op unless the machine is
// disconnected.
func (m *Machine) Connect() {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.invalidateLocked()
	from := m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	m.transitioned(from, StateReconnecting)
	go m.dial()
}

// Retry is the manual escape hatch from failed: resets the attempt
// counter and dials immediately. Also usable from disconnected; no-op
// while connecting or connected.
func (m *Machine) Retry() {
	m.mu.Lock()
	if m.state != StateFailed && m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.invalidateLocked()
	from := m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	m.log.Info("manual reconnect", zap.String("channel", m.name))
	m.transitioned(from, StateReconnecting)
	go m.dial()
}

// MarkConnected records a successful dial. Only valid while
// reconnecting; stale reports from a superseded attempt are dropped.
func (m *Machine) MarkConnected() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.invalidateLocked()
	from := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.log.Info("channel connected", zap.String("channel", m.name))
	m.transitioned(from, StateConnected)
}

// MarkDropped records a failed dial or a lost socket. The machine either
// schedules the next attempt with backoff or, once MaxAttempts is
// exceeded, parks in failed.
func (m *Machine) MarkDropped(err error) {
	m.mu.Lock()
	if m.state != StateConnected && m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}

	m.attempts++
	m.invalidateLocked()

	if m.attempts > m.cfg.MaxAttempts {
		from := m.setStateLocked(StateFailed)
		m.mu.Unlock()

		m.log.Error("channel failed, reconnect attempts exhausted",
			zap.String("channel", m.name),
			zap.Int("attempts", m.attempts-1),
			zap.Error(err),
		)
		m.transitioned(from, StateFailed)
		return
	}

	delay := m.cfg.Policy(m.attempts)
	from := m.setStateLocked(StateReconnecting)
	m.scheduleLocked(delay)
	m.mu.Unlock()

	m.log.Warn("channel dropped, reconnecting",
		zap.String("channel", m.name),
		zap.Int("attempt", m.attempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	if from != StateReconnecting {
		m.transitioned(from, StateReconnecting)
	}
}

// Disconnect shuts the machine down deliberately: pending attempts are
// cancelled and the state returns to disconnected.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	m.invalidateLocked()
	from := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.transitioned(from, StateDisconnected)
}

// HandleMessage records inbound traffic for staleness display.
func (m *Machine) HandleMessage() {
	m.mu.Lock()
	m.lastMsg = time.Now()
	m.mu.Unlock()
}

// invalidateLocked bumps the generation and stops any pending timer.
// The generation check is the real guard; Stop is best effort.
func (m *Machine) invalidateLocked() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// scheduleLocked arms the next dial. The closure re-checks generation
// and state, so an attempt scheduled before a Disconnect or Retry never
// fires after it.
func (m *Machine) scheduleLocked(delay time.Duration) {
	gen := m.generation
	m.timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.generation != gen || m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.dial()
	})
}

func (m *Machine) setStateLocked(next ConnState) (from ConnState) {
	from = m.state
	m.state = next
	return from
}

func (m *Machine) transitioned(from, to ConnState) {
	if from == to || m.cfg.OnTransition == nil {
		return
	}
	m.cfg.OnTransition(m.name, from, to)
}

// Combine reduces several channel states to the single one the operator
// sees. One broken channel must never be hidden by the others, so the
// precedence is failed, then reconnecting, then disconnected; combined
// connected requires every channel connected. No channels reads as
// disconnected.
func Combine(states ...ConnState) ConnState {
	if len(states) == 0 {
		return StateDisconnected
	}

	anyReconnecting := false
	anyDisconnected := false
	for _, s := range states {
		switch s {
		case StateFailed:
			return StateFailed
		case StateReconnecting:
			anyReconnecting = true
		case StateDisconnected:
			anyDisconnected = true
		}
	}

	if anyReconnecting {
		return StateReconnecting
	}
	if anyDisconnected {
		return StateDisconnected
	}
	return StateConnected
}
