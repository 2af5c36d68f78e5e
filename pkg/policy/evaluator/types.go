package evaluator

import (
	"mercator-hq/rampart/pkg/policy/merger"
	"mercator-hq/rampart/pkg/rules"
)

// Verdict is the overall outcome of an evaluation.
type Verdict string

const (
	VerdictAllow                Verdict = "allow"
	VerdictAllowWithAnnotations Verdict = "allow-with-annotations"
	VerdictBlock                Verdict = "block"
)

// Rank orders verdicts by strictness.
func (v Verdict) Rank() int {
	switch v {
	case VerdictBlock:
		return 2
	case VerdictAllowWithAnnotations:
		return 1
	default:
		return 0
	}
}

// Outcome is the result of evaluating one clause.
type Outcome string

const (
	OutcomePass       Outcome = "pass"
	OutcomeViolation  Outcome = "violation"
	OutcomeUnverified Outcome = "unverified"
	OutcomeAssumed    Outcome = "assumed"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeAnnotated  Outcome = "annotated"
	OutcomeRecorded   Outcome = "recorded"
)

// Artifact is the thing being judged: an identifier plus the feature
// assertions the caller supplies about it.
type Artifact struct {
	Identifier string         `json:"identifier"`
	Features   map[string]any `json:"features,omitempty"`
}

// Violation is a clause the artifact failed.
type Violation struct {
	Clause   merger.ResolvedClause `json:"clause"`
	Severity rules.Severity        `json:"severity"`
	Reason   string                `json:"reason"`
}

// Annotation is a non-blocking notice for the caller to surface.
type Annotation struct {
	RuleID   string         `json:"ruleId"`
	Domain   string         `json:"domain"`
	Kind     rules.Kind     `json:"kind"`
	Severity rules.Severity `json:"severity"`
	Message  string         `json:"message"`
}

// TrailEntry records what happened to one clause.
type TrailEntry struct {
	RuleID   string         `json:"ruleId"`
	Domain   string         `json:"domain"`
	Kind     rules.Kind     `json:"kind"`
	Severity rules.Severity `json:"severity"`
	Outcome  Outcome        `json:"outcome"`
	Detail   string         `json:"detail,omitempty"`
}

// Decision is the result of evaluating an artifact against its policy.
type Decision struct {
	Identifier string `json:"identifier"`

	// Verdict is block when any violation is fatal. Otherwise it is
	// allow-with-annotations when there is any violation or any disclosure
	// annotation, else allow. A disclosure alone never adds a violation;
	// check Violations to tell the two apart.
	Verdict Verdict `json:"verdict"`

	Violations    []Violation  `json:"violations"`
	Annotations   []Annotation `json:"annotations"`
	AuditTrail    []TrailEntry `json:"auditTrail"`
	PolicyVersion string       `json:"policyVersion,omitempty"`

	// Assumed holds the feature values supplied by default clauses.
	Assumed map[string]any `json:"assumed,omitempty"`
}

// Fatal reports whether any violation is fatal.
func (d *Decision) Fatal() bool {
	for _, v := range d.Violations {
		if v.Severity == rules.SeverityFatal {
			return true
		}
	}
	return false
}
