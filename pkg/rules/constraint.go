package rules

import (
	"fmt"
	"strings"
)

// Kind is the tagged variant of a constraint clause.
type Kind string

const (
	// KindProhibition must never occur.
	KindProhibition Kind = "prohibition"
	// KindRequirement must occur.
	KindRequirement Kind = "requirement"
	// KindDefault supplies an assumed feature value absent an explicit one.
	KindDefault Kind = "default"
	// KindCheck is a generative-time verification step.
	KindCheck Kind = "check"
	// KindDisclosure is an uncertainty-handling directive.
	KindDisclosure Kind = "disclosure"
	// KindAuditMarker is a required provenance annotation.
	KindAuditMarker Kind = "audit-marker"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindProhibition, KindRequirement, KindDefault, KindCheck, KindDisclosure, KindAuditMarker:
		return true
	}
	return false
}

// Severity orders constraints for conflict resolution: fatal > warn > info.
type Severity string

const (
	SeverityFatal Severity = "fatal"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// Rank returns a comparable weight; higher is more severe. Unknown
// severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityFatal:
		return 3
	case SeverityWarn:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Operator is a predicate comparison operator.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpIn        Operator = "in"
	OpPresent   Operator = "present"
	OpAbsent    Operator = "absent"
)

// Predicate is an abstract condition over one artifact feature.
type Predicate struct {
	Feature string   `yaml:"feature,omitempty" json:"feature,omitempty"`
	Op      Operator `yaml:"op,omitempty" json:"op,omitempty"`
	Value   any      `yaml:"value,omitempty" json:"value,omitempty"`
}

// IsZero reports whether the predicate is empty.
func (p Predicate) IsZero() bool {
	return p.Feature == ""
}

// Key returns a canonical form of the predicate used to detect identical
// conditions across documents.
func (p Predicate) Key() string {
	op := p.Op
	if op == "" {
		op = OpEquals
	}
	return fmt.Sprintf("%s|%s|%s", p.Feature, op, Canonical(p.Value))
}

// Eval evaluates the predicate against a feature set. The second return
// value reports whether the feature was known.
func (p Predicate) Eval(features map[string]any) (satisfied, known bool) {
	actual, known := features[p.Feature]
	switch p.Op {
	case OpAbsent:
		return !known, known
	case OpPresent:
		return known, known
	}
	if !known {
		return false, false
	}
	switch p.Op {
	case OpNotEquals:
		return Canonical(actual) != Canonical(p.Value), true
	case OpIn:
		for _, candidate := range asList(p.Value) {
			if Canonical(actual) == Canonical(candidate) {
				return true, true
			}
		}
		return false, true
	default:
		return Canonical(actual) == Canonical(p.Value), true
	}
}

// String renders the predicate for messages and audit entries.
func (p Predicate) String() string {
	if p.IsZero() {
		return "<always>"
	}
	switch p.Op {
	case OpPresent, OpAbsent:
		return fmt.Sprintf("%s %s", p.Feature, p.Op)
	case "":
		return fmt.Sprintf("%s equals %s", p.Feature, Canonical(p.Value))
	}
	return fmt.Sprintf("%s %s %s", p.Feature, p.Op, Canonical(p.Value))
}

// Canonical returns the comparison form of a feature value. Booleans and
// strings with the same text compare equal ("true" == true).
func Canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = Canonical(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(t)
	}
}

func asList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// Constraint is one atomic rule clause.
type Constraint struct {
	Kind        Kind      `yaml:"kind" json:"kind"`
	Domain      string    `yaml:"-" json:"domain"`
	Predicate   Predicate `yaml:"predicate,omitempty" json:"predicate"`
	Severity    Severity  `yaml:"severity,omitempty" json:"severity,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`

	// Marker is the provenance annotation text of an audit-marker clause.
	Marker string `yaml:"marker,omitempty" json:"marker,omitempty"`
}

// EffectiveSeverity returns the clause severity, defaulting to warn.
func (c Constraint) EffectiveSeverity() Severity {
	if c.Severity == "" {
		return SeverityWarn
	}
	return c.Severity
}

func (c Constraint) validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("unknown constraint kind %q", c.Kind)
	}
	if c.Severity != "" && !c.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", c.Severity)
	}

	switch c.Predicate.Op {
	case "", OpEquals, OpNotEquals, OpIn, OpPresent, OpAbsent:
	default:
		return fmt.Errorf("unknown predicate operator %q", c.Predicate.Op)
	}

	switch c.Kind {
	case KindProhibition, KindRequirement, KindCheck:
		if c.Predicate.IsZero() {
			return fmt.Errorf("%s clause requires a predicate feature", c.Kind)
		}
	case KindDefault:
		if c.Predicate.IsZero() {
			return fmt.Errorf("default clause requires a predicate feature")
		}
		if c.Predicate.Op != "" && c.Predicate.Op != OpEquals {
			return fmt.Errorf("default clause predicate must use %q", OpEquals)
		}
	case KindAuditMarker:
		if c.Marker == "" && c.Description == "" {
			return fmt.Errorf("audit-marker clause requires a marker")
		}
	}
	return nil
}
