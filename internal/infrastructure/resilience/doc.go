/*
Package resilience provides the retry, cancellation, and degradation
primitives the console backend builds on.

# Overview

Everything the backend does against the platform API can fail
transiently: rate limits, blips, restarts. This package concentrates the
recovery machinery so the rest of the codebase composes it instead of
reinventing it per call site.

# Components

- Policy: pure backoff computation (exponential with cap, constant, jitter)
- Token: idempotent cancellation with Done channel and callbacks
- Fetcher: generic retry-then-poll wrapper with a status surface
- Breaker: three-state circuit breaker (Closed, Open, Half-Open)

# Usage

	// Retry a platform call up to 3 times with capped backoff,
	// then poll it every 30s.
	f := resilience.NewFetcher("events", listEvents, resilience.FetchConfig[[]Event]{
		Attempts:     3,
		Delay:        time.Second,
		PollInterval: 30 * time.Second,
	}, logger)
	f.Start()
	defer f.Close()

	// Guard an upstream probe with a breaker.
	breaker := resilience.New("platform", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	report, err := resilience.Do(breaker, probe)

# Cancellation

Tokens make cancellation explicit and race-free: Cancel before a timer
fires wins, a callback registered after Cancel still runs, and loops
select on Done alongside their timers. Cancellation is never reported
as a failure.
*/
package resilience
