// Package platform is the REST client for the upstream monitoring
// platform.
//
// The client is deliberately thin. Connection-level retries happen in
// the underlying retryablehttp transport, while 429 responses surface
// as *StatusError with the parsed Retry-After so the retry scheduler
// can pace them. Classify sorts request errors into rate-limited,
// transient and fatal outcomes for callers that own their own retry
// loops. The health probe runs behind a circuit breaker so a flapping
// upstream cannot stall the degradation poller.
package platform
