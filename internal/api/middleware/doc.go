// Package middleware provides the gin middleware stack of the jsbench API.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//   - Recovery: Panic recovery with a JSON error body
//   - Logger: Structured request logging via zap
//   - RequestID: X-Request-ID propagation, echoed on every response
//
// Rate Limiting:
//   - Per-IP tracking with cleanup of idle clients
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger), middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
