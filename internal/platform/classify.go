package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Outcome says what a caller should do about a failed platform request.
type Outcome int

const (
	// OutcomeTransient failures are worth retrying with backoff.
	OutcomeTransient Outcome = iota
	// OutcomeRateLimited failures must wait out a server-paced delay.
	OutcomeRateLimited
	// OutcomeFatal failures will not succeed on retry.
	OutcomeFatal
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeTransient:
		return "transient"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StatusError is a non-2xx platform response.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("platform returned %d, retry after %s", e.Code, e.RetryAfter)
	}
	if e.Body != "" {
		return fmt.Sprintf("platform returned %d: %s", e.Code, truncate(e.Body, 160))
	}
	return fmt.Sprintf("platform returned %d", e.Code)
}

// Classify maps a request error to the action the caller should take.
// Rate limits belong to the retry scheduler, transient failures to
// backoff loops, fatal failures surface immediately.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeTransient
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return OutcomeRateLimited
		case se.Code >= http.StatusInternalServerError:
			return OutcomeTransient
		case se.Code == http.StatusRequestTimeout:
			return OutcomeTransient
		default:
			return OutcomeFatal
		}
	}

	// A cancelled caller does not want another attempt.
	if errors.Is(err, context.Canceled) {
		return OutcomeFatal
	}

	// Network failures, timeouts included, are worth another try.
	return OutcomeTransient
}

// RetryAfter extracts the server-suggested delay from a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusTooManyRequests && se.RetryAfter > 0 {
		return se.RetryAfter, true
	}
	return 0, false
}

// parseRetryAfter reads a Retry-After header value in either the
// delay-seconds or the HTTP-date form.
func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
