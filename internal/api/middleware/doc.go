// Package middleware provides production-ready HTTP middleware for the
// console backend.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//   - OperatorAuth: bcrypt-checked operator key for mutating endpoints
//
// Rate Limiting:
//   - Per-IP tracking with automatic cleanup of idle clients
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//   - Global rate limiting option
//
// Operator Auth:
//   - Reads X-Operator-Key and compares against a bcrypt hash
//   - An empty configured hash disables the check
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	actions := router.Group("", middleware.OperatorAuth(cfg.Auth.OperatorKeyHash))
package middleware
