/*
Package retry tracks platform rate-limit retries across the whole
process.

# Overview

When the platform answers 429 the owning call site registers here
instead of sleeping privately. The scheduler owns the countdowns so the
operator UI can show every pending retry, cancel one, or cancel all,
regardless of which component is waiting.

# Flow

	rid, token := scheduler.Register("events page 3", 3)
	select {
	case <-token.Done():
		return // operator cancelled
	case <-time.After(time.Until(retryAt)):
	}
	// try again; on another 429:
	retryAt, err := scheduler.MarkAttempt(rid)
	if errors.Is(err, retry.ErrRetriesExhausted) {
		// give up, surface the failure
	}

A single shared tick (1s by default) refreshes the visible countdowns
while anything is pending and stops when the registry drains.
*/
package retry
