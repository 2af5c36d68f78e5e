package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes metric names when none is configured.
const DefaultNamespace = "rampart"

// Collector owns the Prometheus collectors for the engine, the rule
// manager and the audit recorder.
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	violationsTotal    *prometheus.CounterVec
	shadowedTotal      *prometheus.CounterVec

	graphBuildsTotal *prometheus.CounterVec
	graphDocuments   prometheus.Gauge
	graphDegraded    prometheus.Gauge

	auditDropped prometheus.Counter
	rateLimited  *prometheus.CounterVec
}

// NewCollector creates and registers the collectors. A nil registry gets a
// fresh one so tests never collide on the global registry.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of artifact evaluations by verdict",
			},
			[]string{"verdict"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of resolve and evaluate for one artifact",
				// Resolution is in-memory and should stay well under 10ms.
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15),
			},
		),

		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total number of constraint violations by concern domain and severity",
			},
			[]string{"domain", "severity"},
		),

		shadowedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shadowed_documents_total",
				Help:      "Candidate documents that owned a domain but lost it to a more specific document",
			},
			[]string{"domain"},
		),

		graphBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_builds_total",
				Help:      "Rule graph builds by result (success, failure)",
			},
			[]string{"result"},
		),

		graphDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_documents",
				Help:      "Number of documents in the active rule graph",
			},
		),

		graphDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_degraded",
				Help:      "1 while no valid rule graph is loaded and every artifact is blocked",
			},
		),

		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_records_dropped_total",
				Help:      "Audit records dropped because the recorder buffer was full",
			},
		),

		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_rate_limited_total",
				Help:      "API requests rejected by the per-caller rate limiter",
			},
			[]string{"path"},
		),
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationDuration,
		c.violationsTotal,
		c.shadowedTotal,
		c.graphBuildsTotal,
		c.graphDocuments,
		c.graphDegraded,
		c.auditDropped,
		c.rateLimited,
	)

	return c
}

// RecordEvaluation records one evaluation and its duration.
func (c *Collector) RecordEvaluation(verdict string, duration time.Duration) {
	if c == nil {
		return
	}
	c.evaluationsTotal.WithLabelValues(verdict).Inc()
	c.evaluationDuration.Observe(duration.Seconds())
}

// RecordViolation counts one violation.
func (c *Collector) RecordViolation(domain, severity string) {
	if c == nil {
		return
	}
	c.violationsTotal.WithLabelValues(domain, severity).Inc()
}

// RecordShadowed counts a shadowed candidate for domain.
func (c *Collector) RecordShadowed(domain string) {
	if c == nil {
		return
	}
	c.shadowedTotal.WithLabelValues(domain).Inc()
}

// RecordGraphBuild records a build attempt. documents is the size of the
// graph that became active on success.
func (c *Collector) RecordGraphBuild(ok bool, documents int) {
	if c == nil {
		return
	}
	if !ok {
		c.graphBuildsTotal.WithLabelValues("failure").Inc()
		return
	}
	c.graphBuildsTotal.WithLabelValues("success").Inc()
	c.graphDocuments.Set(float64(documents))
}

// SetDegraded flags whether the engine is running without a valid graph.
func (c *Collector) SetDegraded(degraded bool) {
	if c == nil {
		return
	}
	if degraded {
		c.graphDegraded.Set(1)
	} else {
		c.graphDegraded.Set(0)
	}
}

// RecordAuditDropped counts a dropped audit record.
func (c *Collector) RecordAuditDropped() {
	if c == nil {
		return
	}
	c.auditDropped.Inc()
}

// RecordRateLimited counts a request rejected with 429.
func (c *Collector) RecordRateLimited(path string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(path).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
