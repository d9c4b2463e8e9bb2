// Package middleware provides request authentication and rate limiting.
//
// AuthMiddleware verifies the bearer access token and stores the claims and
// user id on the request context; handlers read the caller with
// contextkeys.GetUserID. RateLimitMiddleware counts requests per user (or
// per client IP before authentication) in a redis fixed window.
//
//	authed := router.NewRoute().Subrouter()
//	authed.Use(middleware.NewAuthMiddleware(issuer).Handler)
//	authed.Use(middleware.NewRateLimitMiddleware(limiter).Handler)
//
// Rate limiting must run after authentication to key by user.
package middleware
