package evaluator

import (
	"fmt"

	"mercator-hq/rampart/pkg/policy/merger"
	"mercator-hq/rampart/pkg/rules"
)

// Evaluate checks policy against artifact. A nil policy evaluates as an
// empty one.
func Evaluate(policy *merger.EffectivePolicy, artifact Artifact) *Decision {
	decision := &Decision{
		Identifier:  artifact.Identifier,
		Violations:  []Violation{},
		Annotations: []Annotation{},
		AuditTrail:  []TrailEntry{},
	}
	if policy == nil {
		decision.Verdict = VerdictAllow
		return decision
	}
	decision.PolicyVersion = policy.Version
	if decision.Identifier == "" {
		decision.Identifier = policy.Identifier
	}

	clauses := make([]merger.ResolvedClause, len(policy.Clauses))
	copy(clauses, policy.Clauses)
	merger.Sort(clauses)

	trail := make([]TrailEntry, len(clauses))
	features := applyDefaults(clauses, artifact.Features, trail, decision)

	disclosed := false
	for i, c := range clauses {
		if c.Kind == rules.KindDefault {
			continue
		}

		entry := newEntry(c)
		satisfied, known := c.Predicate.Eval(features)

		switch c.Kind {
		case rules.KindProhibition:
			if satisfied {
				entry.Outcome = OutcomeViolation
				entry.Detail = reason(c, "prohibited "+c.Predicate.String())
				decision.addViolation(c, c.EffectiveSeverity(), entry.Detail)
			} else {
				entry.Outcome = OutcomePass
			}

		case rules.KindRequirement:
			if !satisfied {
				entry.Outcome = OutcomeViolation
				entry.Detail = reason(c, "required "+c.Predicate.String())
				decision.addViolation(c, c.EffectiveSeverity(), entry.Detail)
			} else {
				entry.Outcome = OutcomePass
			}

		case rules.KindCheck:
			switch {
			case !known && c.Predicate.Op != rules.OpAbsent:
				entry.Outcome = OutcomeUnverified
				entry.Severity = rules.SeverityWarn
				entry.Detail = "unverified: " + reason(c, "no value supplied for "+c.Predicate.Feature)
				decision.addViolation(c, rules.SeverityWarn, entry.Detail)
			case !satisfied:
				entry.Outcome = OutcomeViolation
				entry.Detail = reason(c, "check failed: "+c.Predicate.String())
				decision.addViolation(c, c.EffectiveSeverity(), entry.Detail)
			default:
				entry.Outcome = OutcomePass
			}

		case rules.KindDisclosure:
			if c.Predicate.IsZero() || satisfied {
				entry.Outcome = OutcomeAnnotated
				entry.Detail = reason(c, "disclosure required")
				disclosed = true
				decision.Annotations = append(decision.Annotations, Annotation{
					RuleID:   c.Authority,
					Domain:   c.Domain,
					Kind:     c.Kind,
					Severity: c.EffectiveSeverity(),
					Message:  entry.Detail,
				})
			} else {
				entry.Outcome = OutcomeSkipped
			}

		case rules.KindAuditMarker:
			entry.Outcome = OutcomeRecorded
			entry.Detail = c.Marker
			if entry.Detail == "" {
				entry.Detail = c.Description
			}
		}

		trail[i] = entry
	}

	decision.AuditTrail = trail
	decision.Verdict = verdictFor(decision, disclosed)
	return decision
}

// applyDefaults runs the first pass. It returns the feature set the second
// pass evaluates against: the explicit features plus assumed values.
func applyDefaults(clauses []merger.ResolvedClause, explicit map[string]any, trail []TrailEntry, decision *Decision) map[string]any {
	features := make(map[string]any, len(explicit))
	for k, v := range explicit {
		features[k] = v
	}

	for i, c := range clauses {
		if c.Kind != rules.KindDefault {
			continue
		}
		entry := newEntry(c)
		feature := c.Predicate.Feature

		switch _, set := features[feature]; {
		case set && !isAssumed(decision, feature):
			entry.Outcome = OutcomeSkipped
			entry.Detail = "explicit value supplied for " + feature
		case set:
			entry.Outcome = OutcomeSkipped
			entry.Detail = fmt.Sprintf("%s already assumed by an earlier default", feature)
		default:
			features[feature] = c.Predicate.Value
			if decision.Assumed == nil {
				decision.Assumed = make(map[string]any)
			}
			decision.Assumed[feature] = c.Predicate.Value
			entry.Outcome = OutcomeAssumed
			entry.Detail = fmt.Sprintf("assumed %s=%s", feature, rules.Canonical(c.Predicate.Value))
		}
		trail[i] = entry
	}
	return features
}

func isAssumed(d *Decision, feature string) bool {
	_, ok := d.Assumed[feature]
	return ok
}

func newEntry(c merger.ResolvedClause) TrailEntry {
	return TrailEntry{
		RuleID:   c.Authority,
		Domain:   c.Domain,
		Kind:     c.Kind,
		Severity: c.EffectiveSeverity(),
	}
}

func (d *Decision) addViolation(c merger.ResolvedClause, sev rules.Severity, reason string) {
	d.Violations = append(d.Violations, Violation{Clause: c, Severity: sev, Reason: reason})
}

// reason prefers the clause's own description over the generated text.
func reason(c merger.ResolvedClause, fallback string) string {
	if c.Description != "" {
		return c.Description
	}
	return fallback
}

func verdictFor(d *Decision, disclosed bool) Verdict {
	switch {
	case d.Fatal():
		return VerdictBlock
	case len(d.Violations) > 0 || disclosed:
		return VerdictAllowWithAnnotations
	default:
		return VerdictAllow
	}
}
