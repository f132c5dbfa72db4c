// Package config provides 12-factor configuration management for the
// console backend.
//
// Configuration is loaded from environment variables with sensible
// defaults. A YAML file can be overlaid on top for deployments that
// prefer files over environment.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Platform: upstream API and stream endpoints, channels, timeouts
//   - Retry: rate limit retry scheduler tuning
//   - Reconnect: per-channel reconnection bounds and backoff
//   - Polling: degraded-mode events fallback
//   - Degradation: grace window and health probe interval
//   - RateLimit: per-IP rate limiting of the console API
//   - Auth: operator key hash for mutating endpoints
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Console on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, PLATFORM_URL, PLATFORM_STREAM_URL, PLATFORM_CHANNELS
//   - RETRY_MAX_ATTEMPTS, RECONNECT_MAX_ATTEMPTS, POLL_INTERVAL
//   - LOG_LEVEL, LOG_DEV, RATE_LIMIT_RPS, OPERATOR_KEY_HASH
package config
