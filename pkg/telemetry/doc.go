// Package telemetry groups Rampart's observability packages.
//
//   - logging: slog logger construction, request-scoped fields, secret masking
//   - metrics: Prometheus collectors for evaluations, rule graph builds and
//     rate-limited requests
//   - health: liveness and readiness checks with HTTP handlers
//   - tracing: OTLP tracer provider, sampling and trace-context propagation
//
// Engine code starts spans through otel.Tracer; tracing.New installs the
// exporting provider when telemetry.tracing is enabled.
package telemetry
