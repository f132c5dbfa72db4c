package retry

import (
	"context"
	"time"

	"github.com/sentinelvision/console/backend/internal/infrastructure/resilience"
)

// Classifier inspects an operation error and reports whether it is a
// platform rate limit, along with the server-requested wait when one was
// given. It must treat a nil error as not limited.
type Classifier func(err error) (wait time.Duration, limited bool)

// Paced wraps op so rate-limited calls defer to the scheduler instead of
// hammering the platform. The first 429 registers a pending entry the UI
// can see and cancel; the call then retries each time the countdown
// elapses, marking further 429s as attempts. The wrapped call returns
// when the platform stops rate limiting, when the entry is cancelled or
// exhausted, or when ctx is done.
func Paced[T any](s *Scheduler, description string, maxAttempts int, classify Classifier, op resilience.Operation[T]) resilience.Operation[T] {
	return func(ctx context.Context) (T, error) {
		var zero T

		data, err := op(ctx)
		if err == nil {
			return data, nil
		}
		wait, limited := classify(err)
		if !limited {
			return data, err
		}

		rid, token, retryAt := s.RegisterAfter(description, maxAttempts, wait)
		for {
			timer := time.NewTimer(time.Until(retryAt))
			select {
			case <-ctx.Done():
				timer.Stop()
				s.Resolve(rid)
				return zero, ctx.Err()
			case <-token.Done():
				timer.Stop()
				return zero, err
			case <-timer.C:
			}

			next, markErr := s.MarkAttempt(rid)
			if markErr != nil {
				// Exhausted, or cancelled while the timer ran.
				return zero, err
			}

			data, err = op(ctx)
			if err == nil {
				s.Resolve(rid)
				return data, nil
			}
			if _, limited = classify(err); !limited {
				s.Resolve(rid)
				return zero, err
			}
			retryAt = next
		}
	}
}
