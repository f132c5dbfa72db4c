// Package http provides HTTP handlers and routing for the console REST API.
//
// This package implements all HTTP endpoints using the Gin framework,
// serving the status surface the console UI polls and the operator
// actions it triggers.
//
// Endpoints:
//   - Health: / and /health
//   - Connection: /status/connection, /channels/:name/retry
//   - Retries: /status/retries, /retries/:id, /retries
//   - Workers: /status/workers
//   - Degradation: /status/degradation
//   - Metrics: /metrics/json
//   - Debug: /debug/bundle
//
// Features:
//   - JSON request/response handling
//   - Proper HTTP status codes
//   - Error response formatting
//   - Retry ID validation before registry lookups
//
// Example Usage:
//
//	handlers := http.NewHandlers(scheduler, channels, workers, aggregator, metrics, platform, log)
//	router.GET("/health", handlers.Health)
//	router.DELETE("/retries/:id", handlers.CancelRetry)
package http
