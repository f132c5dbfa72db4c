package retry

import (
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
	"github.com/sentinelvision/console/backend/internal/shared/id"
)

var (
	ErrRetriesExhausted = errors.New("retry attempts exhausted")
	ErrUnknownRetry     = errors.New("unknown retry entry")
)

// DefaultMaxAttempts bounds registrations that do not specify a limit.
const DefaultMaxAttempts = 3

// Entry is the externally visible state of one scheduled retry.
type Entry struct {
	ID               id.RetryID `json:"id"`
	Description      string     `json:"description"`
	Attempt          int        `json:"attempt"`
	MaxAttempts      int        `json:"max_attempts"`
	RetryAt          time.Time  `json:"retry_at"`
	SecondsRemaining int        `json:"seconds_remaining"`
}

// record is the internal bookkeeping for one entry.
type record struct {
	entry     Entry
	token     *resilience.Token
	cancelled bool
}

// Recorder receives scheduler lifecycle events, typically backed by the
// monitoring package. All methods must be safe for concurrent use.
type Recorder interface {
	RetryRegistered()
	RetryCancelled()
	RetryExhausted()
	ActiveRetries(count int)
}

// Config tunes the scheduler.
type Config struct {
	// Policy computes the wait before each attempt. Defaults to
	// exponential 1s..30s.
	Policy resilience.Policy
	// TickInterval is the countdown refresh period, 1s unless overridden
	// (tests use shorter ticks).
	TickInterval time.Duration
	// Recorder is optional.
	Recorder Recorder
}

// Scheduler is the process-wide registry of pending rate-limit retries.
// Callers register an entry when the platform answers 429, wait on the
// entry's token or RetryAt, and report attempts back. The UI reads
// snapshots and receives push updates once per tick while anything is
// pending; the tick stops when the registry drains.
type Scheduler struct {
	policy   resilience.Policy
	tick     time.Duration
	recorder Recorder
	log      *zap.Logger

	mu      sync.Mutex
	records map[id.RetryID]*record
	order   []id.RetryID
	subs    map[int]func([]Entry)
	nextSub int
	running bool
	stop    chan struct{}
}

// NewScheduler creates a scheduler. The logger may be nil.
func NewScheduler(cfg Config, log *zap.Logger) *Scheduler {
	if cfg.Policy == nil {
		cfg.Policy = resilience.Exponential(time.Second, 30*time.Second)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Scheduler{
		policy:   cfg.Policy,
		tick:     cfg.TickInterval,
		recorder: cfg.Recorder,
		log:      log,
		records:  make(map[id.RetryID]*record),
		subs:     make(map[int]func([]Entry)),
	}
}

// Register adds a pending retry and returns its ID plus a token the
// owner watches for cancellation. The first wait is computed from the
// policy at attempt 1. Registering the first entry starts the countdown
// tick.
func (s *Scheduler) Register(description string, maxAttempts int) (id.RetryID, *resilience.Token) {
	rid, token, _ := s.register(description, maxAttempts, 0)
	return rid, token
}

// RegisterAfter is Register with a floor on the first wait, for owners
// honoring a platform Retry-After hint. It also returns the scheduled
// time so the owner can drive its own timer.
func (s *Scheduler) RegisterAfter(description string, maxAttempts int, minWait time.Duration) (id.RetryID, *resilience.Token, time.Time) {
	return s.register(description, maxAttempts, minWait)
}

func (s *Scheduler) register(description string, maxAttempts int, minWait time.Duration) (id.RetryID, *resilience.Token, time.Time) {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	rid := id.NewRetryID()
	token := resilience.NewToken()
	now := time.Now()
	wait := s.policy(1)
	if minWait > wait {
		wait = minWait
	}
	retryAt := now.Add(wait)

	s.mu.Lock()
	s.records[rid] = &record{
		entry: Entry{
			ID:               rid,
			Description:      description,
			Attempt:          1,
			MaxAttempts:      maxAttempts,
			RetryAt:          retryAt,
			SecondsRemaining: secondsUntil(retryAt, now),
		},
		token: token,
	}
	s.order = append(s.order, rid)
	if !s.running {
		s.running = true
		s.stop = make(chan struct{})
		go s.loop(s.stop)
	}
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	active := s.activeLocked()
	s.mu.Unlock()

	s.log.Info("retry registered",
		zap.String("retry_id", rid.String()),
		zap.String("description", description),
		zap.Time("retry_at", retryAt),
	)
	if s.recorder != nil {
		s.recorder.RetryRegistered()
		s.recorder.ActiveRetries(active)
	}
	notify(subs, snap)

	return rid, token, retryAt
}

// MarkAttempt advances the entry to its next attempt and returns the new
// RetryAt. Owners call it when the countdown elapses, before retrying.
// Exceeding MaxAttempts removes the entry and returns
// ErrRetriesExhausted; ids that are unknown or already cancelled return
// ErrUnknownRetry.
func (s *Scheduler) MarkAttempt(rid id.RetryID) (time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	rec, ok := s.records[rid]
	if !ok || rec.cancelled {
		s.mu.Unlock()
		return time.Time{}, ErrUnknownRetry
	}

	if rec.entry.Attempt+1 > rec.entry.MaxAttempts {
		s.removeLocked(rid)
		snap, subs := s.snapshotLocked(), s.subscribersLocked()
		active := s.activeLocked()
		s.mu.Unlock()

		s.log.Warn("retry exhausted",
			zap.String("retry_id", rid.String()),
			zap.Int("max_attempts", rec.entry.MaxAttempts),
		)
		if s.recorder != nil {
			s.recorder.RetryExhausted()
			s.recorder.ActiveRetries(active)
		}
		notify(subs, snap)
		return time.Time{}, ErrRetriesExhausted
	}

	rec.entry.Attempt++
	rec.entry.RetryAt = now.Add(s.policy(rec.entry.Attempt))
	rec.entry.SecondsRemaining = secondsUntil(rec.entry.RetryAt, now)
	retryAt := rec.entry.RetryAt
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()

	s.log.Debug("retry attempt recorded",
		zap.String("retry_id", rid.String()),
		zap.Time("retry_at", retryAt),
	)
	notify(subs, snap)
	return retryAt, nil
}

// Cancel marks the entry cancelled and fires its token so the owner
// stops waiting. The entry disappears from snapshots immediately and is
// removed from the registry on the next tick. Unknown ids are a no-op.
func (s *Scheduler) Cancel(rid id.RetryID) bool {
	s.mu.Lock()
	rec, ok := s.records[rid]
	if !ok || rec.cancelled {
		s.mu.Unlock()
		return false
	}
	rec.cancelled = true
	token := rec.token
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	active := s.activeLocked()
	s.mu.Unlock()

	token.Cancel()
	s.log.Info("retry cancelled", zap.String("retry_id", rid.String()))
	if s.recorder != nil {
		s.recorder.RetryCancelled()
		s.recorder.ActiveRetries(active)
	}
	notify(subs, snap)
	return true
}

// CancelAll cancels every pending entry and returns how many it hit.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	var tokens []*resilience.Token
	for _, rec := range s.records {
		if !rec.cancelled {
			rec.cancelled = true
			tokens = append(tokens, rec.token)
		}
	}
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()

	for _, token := range tokens {
		token.Cancel()
	}
	if len(tokens) > 0 {
		s.log.Info("all retries cancelled", zap.Int("count", len(tokens)))
		if s.recorder != nil {
			for range tokens {
				s.recorder.RetryCancelled()
			}
			s.recorder.ActiveRetries(0)
		}
		notify(subs, snap)
	}
	return len(tokens)
}

// Resolve removes an entry whose owner is done with it, either because
// the retried call finally went through or because the owner itself went
// away. Unlike Cancel it does not fire the token.
func (s *Scheduler) Resolve(rid id.RetryID) bool {
	s.mu.Lock()
	rec, ok := s.records[rid]
	if !ok || rec.cancelled {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(rid)
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	active := s.activeLocked()
	s.mu.Unlock()

	s.log.Debug("retry resolved", zap.String("retry_id", rid.String()))
	if s.recorder != nil {
		s.recorder.ActiveRetries(active)
	}
	notify(subs, snap)
	return true
}

// Snapshot returns the pending entries in registration order. Cancelled
// entries are excluded.
func (s *Scheduler) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of pending (non-cancelled) entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// Subscribe registers fn to receive a snapshot after every change and
// once per tick while entries are pending. The returned function
// unsubscribes.
func (s *Scheduler) Subscribe(fn func([]Entry)) func() {
	s.mu.Lock()
	key := s.nextSub
	s.nextSub++
	s.subs[key] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	}
}

// Close cancels all entries and stops the tick.
func (s *Scheduler) Close() {
	s.CancelAll()

	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) loop(stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.onTick() {
				return
			}
		}
	}
}

// onTick refreshes countdowns, drops cancelled records, and notifies
// subscribers. It reports true when the registry drained, which retires
// the tick until the next Register.
func (s *Scheduler) onTick() (drained bool) {
	now := time.Now()

	s.mu.Lock()
	changed := false
	for rid, rec := range s.records {
		if rec.cancelled {
			s.removeLocked(rid)
			changed = true
			continue
		}
		if remaining := secondsUntil(rec.entry.RetryAt, now); remaining != rec.entry.SecondsRemaining {
			rec.entry.SecondsRemaining = remaining
			changed = true
		}
	}
	if len(s.records) == 0 {
		s.running = false
		s.stop = nil
		drained = true
	}
	var snap []Entry
	var subs []func([]Entry)
	if changed {
		snap, subs = s.snapshotLocked(), s.subscribersLocked()
	}
	s.mu.Unlock()

	if changed {
		notify(subs, snap)
	}
	return drained
}

func (s *Scheduler) snapshotLocked() []Entry {
	entries := make([]Entry, 0, len(s.order))
	for _, rid := range s.order {
		rec, ok := s.records[rid]
		if !ok || rec.cancelled {
			continue
		}
		entries = append(entries, rec.entry)
	}
	return entries
}

func (s *Scheduler) subscribersLocked() []func([]Entry) {
	subs := make([]func([]Entry), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (s *Scheduler) activeLocked() int {
	n := 0
	for _, rec := range s.records {
		if !rec.cancelled {
			n++
		}
	}
	return n
}

func (s *Scheduler) removeLocked(rid id.RetryID) {
	delete(s.records, rid)
	for i, existing := range s.order {
		if existing == rid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// notify runs outside the scheduler lock so subscribers may call back in.
func notify(subs []func([]Entry), snap []Entry) {
	for _, fn := range subs {
		fn(snap)
	}
}

// secondsUntil is the countdown shown to operators: whole seconds,
// rounded up, floored at zero once the deadline passes.
func secondsUntil(at, now time.Time) int {
	d := at.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
