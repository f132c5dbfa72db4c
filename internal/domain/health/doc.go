// Package health derives what the operator sees about platform health:
// the normal/degraded service mode and the per-worker status board.
//
// The Aggregator merges two independent inputs, the combined realtime
// channel state and the platform's self-reported health, and owns the
// grace window that keeps short transport outages from flashing the
// degraded banner. Workers folds worker lifecycle events from the
// stream into a queryable registry.
package health
