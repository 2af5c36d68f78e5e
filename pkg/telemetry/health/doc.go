// Package health implements liveness and readiness checks.
//
// Liveness only reports that the process is serving. Readiness runs every
// registered check concurrently, each under a timeout; a failing check makes
// the service "degraded" and the readiness endpoint answers 503. The server
// registers a "rules" check that fails while the engine has no valid rule
// graph, and an "audit" check when audit storage is enabled.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("rules", eng.Ready)
//	mux.Handle("GET /healthz", checker.LivenessHandler())
//	mux.Handle("GET /readyz", checker.ReadinessHandler())
package health
