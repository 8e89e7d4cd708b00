// Package middleware provides HTTP middleware for authentication,
// usage limit enforcement, and rate limiting.
//
// # Middleware Ordering Requirements
//
// Usage limit middleware has strict ordering dependencies. Incorrect
// order will cause limit checks to silently pass (no user ID in
// context).
//
// REQUIRED ORDERING (outer to inner):
//  1. AuthMiddleware - validates the Bearer JWT and sets the user ID
//  2. Rate limit middleware - keys its counters by that user ID
//  3. EnforceLimit - reads the user ID to check feature counters
//
// Example:
//
//	router.Use(authMiddleware.Handler)
//	router.Use(rateLimiter.Handler)
//	router.Handle("/api/v1/invoices",
//	    limits.EnforceLimit("invoices")(createInvoice)).Methods("POST")
//
// # Rate Limiting
//
// Two implementations share the same config shape: an in-memory token
// bucket for single-instance deployments, and a Redis fixed-window
// counter that multiple instances can share. Both fail open when their
// backing store errors so a cache outage never takes the API down with
// it.
package middleware
