// Package api exposes the DukaBook REST surface on gorilla/mux.
//
// All business routes live under /api/v1 and require a Bearer token;
// registration, login and health checks are public. Handlers stay
// thin: they parse and validate input, call the storage and service
// layers, and translate domain errors to HTTP statuses. Creation
// endpoints are gated by per-plan usage limits and bump the matching
// counter asynchronously after a successful write.
package api
