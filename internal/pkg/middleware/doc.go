// Package middleware provides HTTP middleware shared by the API server.
//
// RateLimiter keys callers by the X-Session-ID header when present and by
// client address otherwise:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = rl.Middleware(handler)
package middleware
