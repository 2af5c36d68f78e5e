// Package server exposes the engine over HTTP.
//
// # Routes
//
//	POST /v1/evaluate   judge an artifact, body {"identifier": "...", "features": {...}}
//	POST /v1/resolve    effective policy for an identifier, body {"identifier": "..."}
//	GET  /healthz       liveness
//	GET  /readyz        readiness (503 while the engine is degraded)
//	GET  /version       build information
//	GET  /metrics       Prometheus metrics, when a collector is configured
//
// Evaluation always answers 200 when the request is well formed, including
// for blocked artifacts; the verdict is in the body. Errors use the shape
// {"error": {"message": "...", "type": "..."}, "request_id": "..."}.
//
// # Middleware
//
// Every request gets an X-Request-ID (taken from the client or generated as
// a UUID) that is attached to the context for logging. Requests are logged
// on completion and panics are recovered into a 500 response.
//
// # Lifecycle
//
//	srv := server.New(cfg.Server, eng, server.Options{Health: checker, Metrics: collector})
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully within
// the configured shutdown timeout.
//
// # Authentication
//
// With server.auth.enabled the /v1 routes require one of the configured
// API keys, sent as "Authorization: Bearer <key>" or in X-API-Key. Probes,
// version and metrics stay unauthenticated. The key's name is available to
// handlers through Principal.
//
// # Rate limiting
//
// With server.rate_limit.enabled each caller gets a token bucket of burst
// tokens refilled at requests_per_second, plus an optional cap on in-flight
// requests. A caller is the authenticated key name or else the client IP.
// Rejected requests get 429 with a Retry-After header.
//
// # TLS
//
// With server.tls.enabled the listener serves HTTPS. The key pair is polled
// every reload_interval and swapped in when the files change; a pair that
// fails to load or has expired keeps the previous one serving. Setting
// client_ca_file requires clients to present a certificate signed by it.
package server
