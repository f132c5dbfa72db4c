package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
)

var errThrottled = errors.New("throttled")

func throttleClassifier(err error) (time.Duration, bool) {
	if errors.Is(err, errThrottled) {
		return 0, true
	}
	return 0, false
}

func TestPacedPassthrough(t *testing.T) {
	s := newTestScheduler(resilience.Constant(10 * time.Millisecond))
	defer s.Close()

	op := Paced(s, "events poll", 3, throttleClassifier, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Zero(t, s.Len(), "no entry for a call that was never limited")
}

func TestPacedOtherErrorsPassthrough(t *testing.T) {
	s := newTestScheduler(resilience.Constant(10 * time.Millisecond))
	defer s.Close()

	boom := errors.New("boom")
	op := Paced(s, "events poll", 3, throttleClassifier, func(ctx context.Context) (int, error) {
		return 0, boom
	})

	_, err := op(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.Len())
}

func TestPacedRetriesUntilClear(t *testing.T) {
	s := newTestScheduler(resilience.Constant(10 * time.Millisecond))
	defer s.Close()

	var calls atomic.Int32
	op := Paced(s, "events poll", 5, throttleClassifier, func(ctx context.Context) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errThrottled
		}
		return 7, nil
	})

	v, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, s.Len(), "entry resolved once the limit cleared")
}

func TestPacedExhaustion(t *testing.T) {
	s := newTestScheduler(resilience.Constant(5 * time.Millisecond))
	defer s.Close()

	var calls atomic.Int32
	op := Paced(s, "events poll", 2, throttleClassifier, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errThrottled
	})

	_, err := op(context.Background())
	assert.ErrorIs(t, err, errThrottled)
	// The limited call is attempt one; the budget of two admits a single
	// retry before exhaustion.
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, s.Len())
}

func TestPacedCancelAborts(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	var calls atomic.Int32
	op := Paced(s, "events poll", 3, throttleClassifier, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errThrottled
	})

	done := make(chan error, 1)
	go func() {
		_, err := op(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
	rid := s.Snapshot()[0].ID
	require.True(t, s.Cancel(rid))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errThrottled)
	case <-time.After(time.Second):
		t.Fatal("cancelled call did not return")
	}
	assert.Equal(t, int32(1), calls.Load(), "no retry after cancellation")
}

func TestPacedContextCancelled(t *testing.T) {
	s := newTestScheduler(resilience.Constant(time.Minute))
	defer s.Close()

	op := Paced(s, "events poll", 3, throttleClassifier, func(ctx context.Context) (int, error) {
		return 0, errThrottled
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := op(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("call did not observe context cancellation")
	}
	assert.Zero(t, s.Len(), "abandoned entry is removed")
}
