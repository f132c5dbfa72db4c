package resilience

import (
	"math/rand/v2"
	"time"
)

// Policy computes the delay to wait before the given attempt.
// Attempts are 1-based; values below 1 are treated as 1. Policies are
// pure functions so callers can share one instance freely.
type Policy func(attempt int) time.Duration

// Exponential returns a policy that doubles the base delay per attempt
// up to max: base, 2*base, 4*base, ... The sequence never decreases and
// never exceeds max.
func Exponential(base, max time.Duration) Policy {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}

	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}

		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max || d < 0 { // d < 0 means the doubling overflowed
				return max
			}
		}
		return d
	}
}

// Constant returns a policy with a fixed delay regardless of attempt.
func Constant(d time.Duration) Policy {
	if d < 0 {
		d = 0
	}
	return func(int) time.Duration {
		return d
	}
}

// Jitter wraps a policy, spreading each delay by up to frac in either
// direction so that retry herds desynchronize. frac outside (0, 1] is
// ignored and the policy is returned unchanged.
func Jitter(p Policy, frac float64) Policy {
	if frac <= 0 || frac > 1 {
		return p
	}

	return func(attempt int) time.Duration {
		d := p(attempt)
		if d <= 0 {
			return d
		}
		offset := (rand.Float64()*2 - 1) * frac * float64(d)
		j := time.Duration(float64(d) + offset)
		if j < 0 {
			j = 0
		}
		return j
	}
}
