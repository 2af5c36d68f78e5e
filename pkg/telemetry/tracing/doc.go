// Package tracing installs the OpenTelemetry tracer provider.
//
// The engine and server create spans through the global provider. When
// telemetry.tracing.enabled is false New leaves the global no-op provider in
// place, so span creation costs next to nothing. When enabled, spans are
// batched to an OTLP gRPC collector:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// Samplers are parent based: a sampled caller keeps the trace sampled
// regardless of the local ratio. Middleware extracts W3C traceparent and
// baggage headers so evaluation spans join the caller's trace.
package tracing
