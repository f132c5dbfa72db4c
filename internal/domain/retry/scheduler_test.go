package retry

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
)

func newTestScheduler(policy resilience.Policy) *Scheduler {
	return NewScheduler(Config{
		Policy:       policy,
		TickInterval: 10 * time.Millisecond,
	}, nil)
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(resilience.Constant(1500 * time.Millisecond))
	defer s.Close()

	rid, token := s.Register("events page 3", 3)

	assert.True(t, strings.HasPrefix(rid.String(), "rty_"))
	require.NotNil(t, token)
	assert.False(t, token.Cancelled())

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, rid, snap[0].ID)
	assert.Equal(t, "events page 3", snap[0].Description)
	assert.Equal(t, 1, snap[0].Attempt)
	assert.Equal(t, 3, snap[0].MaxAttempts)
	// 1.5s away rounds up to a 2 second countdown.
	assert.Equal(t, 2, snap[0].SecondsRemaining)
}

func TestRegisterDefaultMaxAttempts(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Second))
	defer s.Close()

	s.Register("no limit given", 0)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, DefaultMaxAttempts, snap[0].MaxAttempts)
}

func TestSnapshotInsertionOrder(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	first, _ := s.Register("first", 3)
	second, _ := s.Register("second", 3)
	third, _ := s.Register("third", 3)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, first, snap[0].ID)
	assert.Equal(t, second, snap[1].ID)
	assert.Equal(t, third, snap[2].ID)
}

func TestMarkAttempt(t *testing.T) {
	s := newTestScheduler(resilience.Exponential(time.Second, time.Minute))
	defer s.Close()

	rid, _ := s.Register("throttled", 3)
	before := s.Snapshot()[0].RetryAt

	retryAt, err := s.MarkAttempt(rid)
	require.NoError(t, err)
	assert.True(t, retryAt.After(before), "backoff should push the deadline out")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].Attempt)
	assert.Equal(t, retryAt, snap[0].RetryAt)
}

func TestMarkAttemptExhaustion(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Second))
	defer s.Close()

	rid, _ := s.Register("doomed", 2)

	_, err := s.MarkAttempt(rid)
	require.NoError(t, err)

	_, err = s.MarkAttempt(rid)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Empty(t, s.Snapshot(), "exhausted entry should be removed")

	_, err = s.MarkAttempt(rid)
	assert.ErrorIs(t, err, ErrUnknownRetry)
}

func TestMarkAttemptUnknown(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Second))
	defer s.Close()

	_, err := s.MarkAttempt("rty_does_not_exist")
	assert.ErrorIs(t, err, ErrUnknownRetry)
}

func TestRegisterAfterFloorsFirstWait(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Second))
	defer s.Close()

	// The platform asked for a longer wait than the policy gives.
	rid, _, retryAt := s.RegisterAfter("throttled hard", 3, 5*time.Second)
	assert.InDelta(t, 5, time.Until(retryAt).Seconds(), 0.5)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, rid, snap[0].ID)
	assert.Equal(t, 5, snap[0].SecondsRemaining)

	// A hint below the policy changes nothing.
	_, _, second := s.RegisterAfter("mild hint", 3, 100*time.Millisecond)
	assert.InDelta(t, 1, time.Until(second).Seconds(), 0.5)
}

func TestResolve(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	rid, token := s.Register("events poll", 3)

	assert.True(t, s.Resolve(rid))
	assert.False(t, token.Cancelled(), "resolve must not fire the owner token")
	assert.Empty(t, s.Snapshot())
	assert.Zero(t, s.Len())

	assert.False(t, s.Resolve(rid))
	_, err := s.MarkAttempt(rid)
	assert.ErrorIs(t, err, ErrUnknownRetry)
}

func TestCancel(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	rid, token := s.Register("cancel me", 3)

	var fired atomic.Bool
	token.OnCancel(func() { fired.Store(true) })

	assert.True(t, s.Cancel(rid))
	assert.True(t, fired.Load(), "owner token should fire on cancel")
	assert.Empty(t, s.Snapshot(), "cancelled entry leaves snapshots immediately")

	// Cancelled entries behave like unknown ones from here on.
	assert.False(t, s.Cancel(rid))
	_, err := s.MarkAttempt(rid)
	assert.ErrorIs(t, err, ErrUnknownRetry)
}

func TestCancelUnknown(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Second))
	defer s.Close()

	assert.False(t, s.Cancel("rty_nope"))
}

func TestCancelIndependence(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	first, firstToken := s.Register("first", 3)
	_, secondToken := s.Register("second", 3)

	s.Cancel(first)

	assert.True(t, firstToken.Cancelled())
	assert.False(t, secondToken.Cancelled(), "other entries must be untouched")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "second", snap[0].Description)
}

func TestCancelAll(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	_, t1 := s.Register("a", 3)
	_, t2 := s.Register("b", 3)
	_, t3 := s.Register("c", 3)

	assert.Equal(t, 3, s.CancelAll())
	assert.True(t, t1.Cancelled())
	assert.True(t, t2.Cancelled())
	assert.True(t, t3.Cancelled())
	assert.Empty(t, s.Snapshot())

	assert.Equal(t, 0, s.CancelAll())
}

func TestCountdownTicks(t *testing.T) {
	s := newTestScheduler(resilience.Constant(50 * time.Millisecond))
	defer s.Close()

	s.Register("short", 3)

	require.Len(t, s.Snapshot(), 1)
	assert.Equal(t, 1, s.Snapshot()[0].SecondsRemaining)

	// Once the deadline passes the countdown floors at zero.
	assert.Eventually(t, func() bool {
		snap := s.Snapshot()
		return len(snap) == 1 && snap[0].SecondsRemaining == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTickCompactsCancelled(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	rid, _ := s.Register("compact me", 3)
	s.Cancel(rid)

	// Physically removed by the next tick.
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.records) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTickStopsWhenDrained(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	rid, _ := s.Register("drain", 3)
	s.Cancel(rid)

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.running
	}, time.Second, 10*time.Millisecond)

	// A new registration restarts the tick.
	s.Register("again", 3)
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	assert.True(t, running)
}

func TestSubscribe(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	var mu sync.Mutex
	var last []Entry
	calls := 0
	unsubscribe := s.Subscribe(func(snap []Entry) {
		mu.Lock()
		last = snap
		calls++
		mu.Unlock()
	})

	rid, _ := s.Register("watched", 3)

	mu.Lock()
	require.Len(t, last, 1)
	assert.Equal(t, rid, last[0].ID)
	mu.Unlock()

	s.Cancel(rid)

	mu.Lock()
	assert.Empty(t, last)
	seen := calls
	mu.Unlock()

	unsubscribe()
	s.Register("unwatched", 3)

	mu.Lock()
	assert.Equal(t, seen, calls, "unsubscribed observer must not fire")
	mu.Unlock()
}

type countingRecorder struct {
	registered atomic.Int32
	cancelled  atomic.Int32
	exhausted  atomic.Int32
	active     atomic.Int32
}

func (r *countingRecorder) RetryRegistered()    { r.registered.Add(1) }
func (r *countingRecorder) RetryCancelled()     { r.cancelled.Add(1) }
func (r *countingRecorder) RetryExhausted()     { r.exhausted.Add(1) }
func (r *countingRecorder) ActiveRetries(n int) { r.active.Store(int32(n)) }

func TestRecorderEvents(t *testing.T) {
	rec := &countingRecorder{}
	s := NewScheduler(Config{
		Policy:       resilience.Constant(time.Minute),
		TickInterval: 10 * time.Millisecond,
		Recorder:     rec,
	}, nil)
	defer s.Close()

	rid, _ := s.Register("a", 1)
	s.Register("b", 3)
	assert.Equal(t, int32(2), rec.registered.Load())
	assert.Equal(t, int32(2), rec.active.Load())

	// Exhaust "a": max attempts 1 means the next 429 removes it.
	_, err := s.MarkAttempt(rid)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(1), rec.exhausted.Load())

	s.CancelAll()
	assert.Equal(t, int32(1), rec.cancelled.Load())
	assert.Equal(t, int32(0), rec.active.Load())
}

func TestConcurrentRegisterCancel(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rid, _ := s.Register("concurrent", 3)
			s.Cancel(rid)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, s.Len())
}
