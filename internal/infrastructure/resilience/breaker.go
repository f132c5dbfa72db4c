package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker.
type Settings struct {
	// MaxRequests is the probe quota in half-open, default 1.
	MaxRequests uint32
	// Interval is how often closed-state counts reset, default 60s.
	Interval time.Duration
	// Timeout is how long the circuit stays open before admitting
	// half-open probes, default 60s.
	Timeout time.Duration
	// ReadyToTrip decides, on each closed-state failure, whether to open
	// the circuit. Defaults to more than 5 consecutive failures.
	ReadyToTrip func(counts Counts) bool
	// IsSuccessful classifies request errors. Errors it accepts do not
	// count as failures; the default accepts only nil. Cancellations
	// belong here so a shutdown never trips the breaker.
	IsSuccessful func(err error) bool
	// OnStateChange is called after every state change, outside the
	// breaker lock.
	OnStateChange func(name string, from State, to State)
}

// Counts holds the outcome statistics of the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker fails fast once an upstream stops answering. Closed passes
// requests through and counts outcomes; tripping opens the circuit,
// which rejects calls until the timeout admits half-open probes. Every
// request is stamped with the generation it was admitted under, and an
// outcome whose generation has passed is dropped, so a slow call that
// straddles a transition never pollutes the next window's counts.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	counts     Counts
	generation uint64
	deadline   time.Time
}

// New creates a breaker with the given settings.
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 60 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil
		}
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		deadline: time.Now().Add(settings.Interval),
	}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An expired open period is applied
// here, so callers see half-open as soon as the timeout passes.
func (b *Breaker) State() State {
	b.mu.Lock()
	note := b.advanceLocked(time.Now())
	state := b.state
	b.mu.Unlock()

	if note != nil {
		note()
	}
	return state
}

// Counts returns a copy of the current window's counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs req if the breaker admits it. A panic inside req counts
// as a failure and is re-raised.
func (b *Breaker) Execute(req func() (any, error)) (any, error) {
	gen, err := b.admit()
	if err != nil {
		return nil, err
	}

	defer func() {
		if e := recover(); e != nil {
			b.record(gen, false)
			panic(e)
		}
	}()

	result, err := req()
	b.record(gen, b.settings.IsSuccessful(err))
	return result, err
}

// Do runs req through b, preserving the result type. When the breaker
// rejects the call the zero value is returned with ErrCircuitOpen or
// ErrTooManyRequests.
func Do[T any](b *Breaker, req func() (T, error)) (T, error) {
	out, err := b.Execute(func() (any, error) {
		return req()
	})
	v, _ := out.(T)
	return v, err
}

// admit decides whether a request may proceed and stamps it with the
// generation it runs under.
func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	note := b.advanceLocked(time.Now())
	gen := b.generation

	var err error
	switch {
	case b.state == StateOpen:
		err = ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		err = ErrTooManyRequests
	default:
		b.counts.Requests++
	}
	b.mu.Unlock()

	if note != nil {
		note()
	}
	return gen, err
}

// record folds one outcome back in. Outcomes stamped with a superseded
// generation are dropped; the window they belong to is gone.
func (b *Breaker) record(gen uint64, ok bool) {
	now := time.Now()

	b.mu.Lock()
	note := b.advanceLocked(now)
	if gen != b.generation {
		b.mu.Unlock()
		if note != nil {
			note()
		}
		return
	}

	var trans func()
	if ok {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			trans = b.transitionLocked(StateClosed, now)
		}
	} else {
		switch b.state {
		case StateClosed:
			b.counts.TotalFailures++
			b.counts.ConsecutiveFailures++
			b.counts.ConsecutiveSuccesses = 0
			if b.settings.ReadyToTrip(b.counts) {
				trans = b.transitionLocked(StateOpen, now)
			}
		case StateHalfOpen:
			trans = b.transitionLocked(StateOpen, now)
		}
	}
	b.mu.Unlock()

	if note != nil {
		note()
	}
	if trans != nil {
		trans()
	}
}

// advanceLocked applies deadline-driven moves: an expired open period
// enters half-open, an expired closed interval starts a fresh count
// window. Returns the state change notification to run after unlock,
// or nil.
func (b *Breaker) advanceLocked(now time.Time) func() {
	switch b.state {
	case StateClosed:
		if !b.deadline.IsZero() && b.deadline.Before(now) {
			b.generation++
			b.counts = Counts{}
			b.deadline = now.Add(b.settings.Interval)
		}
	case StateOpen:
		if b.deadline.Before(now) {
			return b.transitionLocked(StateHalfOpen, now)
		}
	}
	return nil
}

// transitionLocked moves to next, starts a fresh generation and count
// window, arms the deadline, and returns the notification to run after
// unlock, or nil.
func (b *Breaker) transitionLocked(next State, now time.Time) func() {
	if b.state == next {
		return nil
	}
	prev := b.state
	b.state = next
	b.generation++
	b.counts = Counts{}

	switch next {
	case StateClosed:
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.deadline = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	cb := b.settings.OnStateChange
	if cb == nil {
		return nil
	}
	return func() { cb(b.name, prev, next) }
}
