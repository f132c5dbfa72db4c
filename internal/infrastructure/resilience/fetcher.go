package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status represents the lifecycle state of a fetcher
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Operation is the unit of work a Fetcher drives, typically one call to
// the platform API. Implementations must honor ctx cancellation.
type Operation[T any] func(ctx context.Context) (T, error)

// FetchConfig configures retry and polling behavior
type FetchConfig[T any] struct {
	// Attempts is the total number of tries per run, first call included
	Attempts int
	// Delay seeds the exponential backoff between tries
	Delay time.Duration
	// MaxDelay caps the backoff
	MaxDelay time.Duration
	// PollInterval re-runs the operation on a period when positive
	PollInterval time.Duration
	// PauseOnError suspends polling after a terminal error until the
	// next Refetch
	PauseOnError bool
	// Terminal reports errors that further attempts cannot fix, such as
	// rejected requests or exhausted rate limit budgets. The run settles
	// on them immediately instead of burning the remaining attempts.
	Terminal func(error) bool
	// OnChange is called after every terminal transition with a snapshot
	OnChange func(Snapshot[T])
}

// Snapshot is the externally visible fetcher state
type Snapshot[T any] struct {
	Data    T
	Err     error
	Status  Status
	Updated time.Time
}

// Fetcher retries an operation with exponential backoff, optionally on
// a polling period, and exposes loading state to the API layer. At most
// one logical run is live at a time; a new run supersedes and cancels
// the previous one, so late results from a superseded run are dropped.
type Fetcher[T any] struct {
	name   string
	op     Operation[T]
	cfg    FetchConfig[T]
	policy Policy
	log    *zap.Logger

	mu       sync.Mutex
	token    *Token // token of the live run, nil when none
	data     T
	err      error
	status   Status
	updated  time.Time
	inflight bool
	paused   bool
	started  bool
	closed   bool
	pollStop chan struct{}
}

// NewFetcher creates a fetcher for the given operation. The logger may
// be nil.
func NewFetcher[T any](name string, op Operation[T], cfg FetchConfig[T], log *zap.Logger) *Fetcher[T] {
	if cfg.Attempts < 1 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Fetcher[T]{
		name:   name,
		op:     op,
		cfg:    cfg,
		policy: Exponential(cfg.Delay, cfg.MaxDelay),
		status: StatusIdle,
		log:    log,
	}
}

// Name returns the fetcher name
func (f *Fetcher[T]) Name() string {
	return f.name
}

// Snapshot returns a copy of the current state
func (f *Fetcher[T]) Snapshot() Snapshot[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Status returns the current status
func (f *Fetcher[T]) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Start runs the initial fetch and, when PollInterval is set, begins
// polling. Calling Start twice or after Close is a no-op.
func (f *Fetcher[T]) Start() {
	f.mu.Lock()
	if f.started || f.closed {
		f.mu.Unlock()
		return
	}
	f.started = true
	var stop chan struct{}
	if f.cfg.PollInterval > 0 {
		stop = make(chan struct{})
		f.pollStop = stop
	}
	f.mu.Unlock()

	f.Refetch()

	if stop != nil {
		go f.pollLoop(stop)
	}
}

// Refetch runs the operation immediately, superseding any in-flight
// run. The polling clock is not reset; polling resumes after an error
// pause.
func (f *Fetcher[T]) Refetch() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	prev := f.token
	tok := NewToken()
	f.token = tok
	f.inflight = true
	f.paused = false
	f.status = StatusLoading
	snap, notify := f.snapshotLocked(), f.cfg.OnChange
	f.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	if notify != nil {
		notify(snap)
	}

	go f.run(tok)
}

// Pause suspends polling until the next Refetch. An in-flight run is
// left to finish.
func (f *Fetcher[T]) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

// Close cancels the live run and stops polling. The fetcher is inert
// afterwards and callbacks no longer fire.
func (f *Fetcher[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	tok := f.token
	f.token = nil
	stop := f.pollStop
	f.pollStop = nil
	f.mu.Unlock()

	if tok != nil {
		tok.Cancel()
	}
	if stop != nil {
		close(stop)
	}
}

func (f *Fetcher[T]) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.pollTick()
		}
	}
}

// pollTick runs a poll unless a fetch is already in flight or polling
// is paused after an error.
func (f *Fetcher[T]) pollTick() {
	f.mu.Lock()
	skip := f.closed || f.inflight || f.paused
	f.mu.Unlock()
	if skip {
		return
	}
	f.Refetch()
}

// run executes the attempt loop for one token. Results are committed
// only if tok still owns the fetcher when the loop settles.
func (f *Fetcher[T]) run(tok *Token) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tok.OnCancel(cancel)

	var zero T
	var lastErr error

	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		if tok.Cancelled() {
			return
		}

		data, err := f.op(ctx)
		if err == nil {
			f.settle(tok, data, nil)
			return
		}
		if tok.Cancelled() || ctx.Err() != nil {
			// Cancellation is not a failure; leave state to the successor.
			return
		}

		lastErr = err
		if attempt == f.cfg.Attempts {
			break
		}
		if f.cfg.Terminal != nil && f.cfg.Terminal(err) {
			break
		}

		f.log.Debug("fetch attempt failed",
			zap.String("fetcher", f.name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-tok.Done():
			return
		case <-time.After(f.policy(attempt)):
		}
	}

	f.log.Warn("fetch failed after all attempts",
		zap.String("fetcher", f.name),
		zap.Int("attempts", f.cfg.Attempts),
		zap.Error(lastErr),
	)
	f.settle(tok, zero, lastErr)
}

// settle commits a terminal outcome for tok's run.
func (f *Fetcher[T]) settle(tok *Token, data T, err error) {
	f.mu.Lock()
	if f.closed || f.token != tok {
		// Superseded; a newer run owns the state now.
		f.mu.Unlock()
		return
	}
	f.inflight = false
	if err == nil {
		f.data = data
		f.err = nil
		f.status = StatusSuccess
	} else {
		f.err = err
		f.status = StatusError
		if f.cfg.PauseOnError {
			f.paused = true
		}
	}
	f.updated = time.Now()
	snap, notify := f.snapshotLocked(), f.cfg.OnChange
	f.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

func (f *Fetcher[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		Data:    f.data,
		Err:     f.err,
		Status:  f.status,
		Updated: f.updated,
	}
}
