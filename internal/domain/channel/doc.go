// Package channel tracks the connection state of each realtime channel
// the backend keeps open to the platform ("events", "system").
//
// Each channel gets one Machine driving the
// disconnected/reconnecting/connected/failed lifecycle with bounded,
// backoff-spaced reconnection. Combine folds the per-channel states
// into the single indicator the operator UI shows.
package channel
