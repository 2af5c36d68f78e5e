package audit

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/rampart/pkg/policy/evaluator"
)

// OutcomeViolation marks entries rendered from a decision's violations.
const OutcomeViolation = string(evaluator.OutcomeViolation)

// Meta stamps a rendered record.
type Meta struct {
	// ID defaults to a new UUID.
	ID string

	// RecordedAt defaults to the current time in UTC.
	RecordedAt time.Time

	// PolicyVersion defaults to the decision's policy version.
	PolicyVersion string
}

// Render packages a decision into an audit record without stamping it.
// A nil decision renders an empty record.
func Render(decision *evaluator.Decision) *Record {
	record := &Record{Entries: []Entry{}}
	if decision == nil {
		return record
	}

	record.Identifier = decision.Identifier
	record.Verdict = string(decision.Verdict)
	record.PolicyVersion = decision.PolicyVersion
	record.Violations = len(decision.Violations)

	record.Entries = make([]Entry, 0, len(decision.AuditTrail)+len(decision.Violations))
	for _, e := range decision.AuditTrail {
		record.Entries = append(record.Entries, Entry{
			RuleID:     e.RuleID,
			Domain:     e.Domain,
			ClauseKind: string(e.Kind),
			Outcome:    string(e.Outcome),
			Severity:   string(e.Severity),
			Reason:     e.Detail,
		})
	}
	for _, v := range decision.Violations {
		record.Entries = append(record.Entries, Entry{
			RuleID:     v.Clause.Authority,
			Domain:     v.Clause.Domain,
			ClauseKind: string(v.Clause.Kind),
			Outcome:    OutcomeViolation,
			Severity:   string(v.Severity),
			Reason:     v.Reason,
		})
	}
	return record
}

// RenderWith renders decision and stamps the result with meta.
func RenderWith(decision *evaluator.Decision, meta Meta) *Record {
	record := Render(decision)

	record.ID = meta.ID
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.RecordedAt = meta.RecordedAt
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	if meta.PolicyVersion != "" {
		record.PolicyVersion = meta.PolicyVersion
	}
	return record
}
