package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/rampart/pkg/audit"
	"mercator-hq/rampart/pkg/audit/recorder"
	"mercator-hq/rampart/pkg/policy/evaluator"
	"mercator-hq/rampart/pkg/policy/graph"
	"mercator-hq/rampart/pkg/policy/merger"
	"mercator-hq/rampart/pkg/rules"
	"mercator-hq/rampart/pkg/telemetry/metrics"
)

// TracerName is the instrumentation name used for engine spans.
const TracerName = "mercator-hq/rampart/pkg/policy/engine"

// DegradedReason is the violation reason reported while no valid graph is
// active.
const DegradedReason = "rule graph invalid"

// DegradedDomain is the domain of the degraded-mode violation.
const DegradedDomain = "rule-graph"

var (
	// ErrNilArtifact is returned by Evaluate when called without an artifact.
	ErrNilArtifact = errors.New("artifact cannot be nil")

	// ErrNoGraph is the degraded cause before any graph has been swapped in.
	ErrNoGraph = errors.New("no rule graph loaded")
)

// Recorder accepts rendered audit records.
type Recorder interface {
	Record(record *audit.Record) error
}

// Options configures an Engine. Every field is optional.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Recorder Recorder

	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

// Result is the outcome of one evaluation.
type Result struct {
	Policy   *merger.EffectivePolicy `json:"policy"`
	Decision *evaluator.Decision     `json:"decision"`
	Record   *audit.Record           `json:"record"`

	// Degraded is set when the artifact was blocked because no valid graph
	// was active.
	Degraded bool `json:"degraded,omitempty"`
}

type snapshot struct {
	graph *graph.Graph
	err   error
}

// Engine evaluates artifacts against the active rule graph. It is safe for
// concurrent use.
type Engine struct {
	current  atomic.Pointer[snapshot]
	logger   *slog.Logger
	metrics  *metrics.Collector
	recorder Recorder
	tracer   trace.Tracer
}

// New creates an engine in degraded mode. Call Swap to activate a graph.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}

	e := &Engine{
		logger:   logger.With("component", "policy.engine"),
		metrics:  opts.Metrics,
		recorder: opts.Recorder,
		tracer:   tracer,
	}
	e.current.Store(&snapshot{err: ErrNoGraph})
	e.metrics.SetDegraded(true)
	return e
}

// Swap activates g. A nil graph is treated as Invalidate(ErrNoGraph).
func (e *Engine) Swap(g *graph.Graph) {
	if g == nil {
		e.Invalidate(ErrNoGraph)
		return
	}
	prev := e.current.Swap(&snapshot{graph: g})
	e.metrics.SetDegraded(false)

	attrs := []any{"documents", g.Len(), "version", g.Version()}
	if prev != nil && prev.graph != nil {
		attrs = append(attrs, "previous_version", prev.graph.Version())
	}
	e.logger.Info("Rule graph activated", attrs...)
}

// Invalidate drops the active graph and enters degraded mode.
func (e *Engine) Invalidate(err error) {
	if err == nil {
		err = ErrNoGraph
	}
	e.current.Store(&snapshot{err: err})
	e.metrics.SetDegraded(true)
	e.logger.Error("Rule graph invalidated, blocking all artifacts", "error", err)
}

// Graph returns the active graph, or nil in degraded mode.
func (e *Engine) Graph() *graph.Graph {
	return e.current.Load().graph
}

// Ready returns the degraded cause, or nil when a graph is active.
func (e *Engine) Ready(context.Context) error {
	s := e.current.Load()
	if s.graph == nil {
		return fmt.Errorf("%s: %w", DegradedReason, s.err)
	}
	return nil
}

// Resolve returns the effective policy for identifier against the active
// graph. In degraded mode it returns the degraded cause.
func (e *Engine) Resolve(ctx context.Context, identifier string) (*merger.EffectivePolicy, error) {
	s := e.current.Load()
	if s.graph == nil {
		return nil, fmt.Errorf("%s: %w", DegradedReason, s.err)
	}

	_, span := e.tracer.Start(ctx, "rampart.resolve",
		trace.WithAttributes(attribute.String("rampart.identifier", identifier)))
	defer span.End()

	policy := merger.Resolve(s.graph, identifier)
	span.SetAttributes(
		attribute.Int("rampart.clauses", len(policy.Clauses)),
		attribute.String("rampart.graph_version", policy.Version),
	)
	return policy, nil
}

// Evaluate judges artifact against the active graph. The only error is
// ErrNilArtifact; violations are reported in the decision.
func (e *Engine) Evaluate(ctx context.Context, artifact *evaluator.Artifact) (*Result, error) {
	if artifact == nil {
		return nil, ErrNilArtifact
	}

	start := time.Now()
	_, span := e.tracer.Start(ctx, "rampart.evaluate",
		trace.WithAttributes(attribute.String("rampart.identifier", artifact.Identifier)))
	defer span.End()

	s := e.current.Load()

	var result *Result
	if s.graph == nil {
		result = degraded(artifact, s.err)
	} else {
		policy := merger.Resolve(s.graph, artifact.Identifier)
		decision := evaluator.Evaluate(policy, *artifact)
		result = &Result{
			Policy:   policy,
			Decision: decision,
			Record:   audit.RenderWith(decision, audit.Meta{PolicyVersion: policy.Version}),
		}
		e.reportShadowed(policy)
	}

	duration := time.Since(start)
	decision := result.Decision

	span.SetAttributes(
		attribute.String("rampart.verdict", string(decision.Verdict)),
		attribute.Int("rampart.violations", len(decision.Violations)),
		attribute.String("rampart.graph_version", decision.PolicyVersion),
		attribute.Bool("rampart.degraded", result.Degraded),
	)
	if decision.Verdict == evaluator.VerdictBlock {
		span.SetStatus(codes.Error, "artifact blocked")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	e.metrics.RecordEvaluation(string(decision.Verdict), duration)
	for _, v := range decision.Violations {
		e.metrics.RecordViolation(v.Clause.Domain, string(v.Severity))
	}

	e.logger.Debug("Artifact evaluated",
		"identifier", artifact.Identifier,
		"verdict", decision.Verdict,
		"violations", len(decision.Violations),
		"version", decision.PolicyVersion,
		"duration_ms", duration.Milliseconds(),
	)

	e.record(result.Record)
	return result, nil
}

func (e *Engine) reportShadowed(policy *merger.EffectivePolicy) {
	for _, sh := range policy.Shadowed {
		e.metrics.RecordShadowed(sh.Domain)
		e.logger.Warn("Document shadowed by more specific owner",
			"identifier", policy.Identifier,
			"domain", sh.Domain,
			"document", sh.Candidate,
			"owner", sh.Owner,
		)
	}
}

func (e *Engine) record(record *audit.Record) {
	if e.recorder == nil || record == nil {
		return
	}
	if err := e.recorder.Record(record); err != nil {
		if errors.Is(err, recorder.ErrBufferFull) {
			e.metrics.RecordAuditDropped()
		}
		e.logger.Warn("Audit record not queued", "id", record.ID, "error", err)
	}
}

// degraded builds the blocking result used while no graph is active.
func degraded(artifact *evaluator.Artifact, cause error) *Result {
	clause := merger.ResolvedClause{
		Constraint: rules.Constraint{
			Kind:     rules.KindProhibition,
			Domain:   DegradedDomain,
			Severity: rules.SeverityFatal,
		},
	}
	detail := DegradedReason
	if cause != nil {
		detail = cause.Error()
	}

	decision := &evaluator.Decision{
		Identifier: artifact.Identifier,
		Verdict:    evaluator.VerdictBlock,
		Violations: []evaluator.Violation{{
			Clause:   clause,
			Severity: rules.SeverityFatal,
			Reason:   DegradedReason,
		}},
		Annotations: []evaluator.Annotation{},
		AuditTrail: []evaluator.TrailEntry{{
			Domain:   DegradedDomain,
			Kind:     rules.KindProhibition,
			Severity: rules.SeverityFatal,
			Outcome:  evaluator.OutcomeSkipped,
			Detail:   detail,
		}},
	}
	return &Result{
		Policy: &merger.EffectivePolicy{
			Identifier:  artifact.Identifier,
			Clauses:     []merger.ResolvedClause{},
			Authorities: map[string]string{},
			Candidates:  []string{},
		},
		Decision: decision,
		Record:   audit.RenderWith(decision, audit.Meta{}),
		Degraded: true,
	}
}
