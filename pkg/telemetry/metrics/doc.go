// Package metrics exposes Rampart's Prometheus metrics.
//
// Metrics (namespace "rampart" by default):
//
//	rampart_evaluations_total{verdict}                 counter
//	rampart_evaluation_duration_seconds                 histogram
//	rampart_violations_total{domain,severity}          counter
//	rampart_shadowed_documents_total{domain}           counter
//	rampart_graph_builds_total{result}                 counter
//	rampart_graph_documents                            gauge
//	rampart_graph_degraded                             gauge
//	rampart_audit_records_dropped_total                counter
//
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
//
//	c := metrics.NewCollector("rampart", nil)
//	http.Handle("/metrics", c.Handler())
package metrics
