package rules

import "testing"

func TestPredicateEval(t *testing.T) {
	features := map[string]any{
		"usesRawEval": true,
		"framework":   "react",
		"flag":        "true",
	}

	tests := []struct {
		name          string
		pred          Predicate
		wantSatisfied bool
		wantKnown     bool
	}{
		{"equals bool", Predicate{Feature: "usesRawEval", Op: OpEquals, Value: true}, true, true},
		{"equals default op", Predicate{Feature: "usesRawEval", Value: true}, true, true},
		{"equals mismatch", Predicate{Feature: "usesRawEval", Value: false}, false, true},
		{"string and bool compare by text", Predicate{Feature: "flag", Value: true}, true, true},
		{"not equals", Predicate{Feature: "framework", Op: OpNotEquals, Value: "vue"}, true, true},
		{"in list", Predicate{Feature: "framework", Op: OpIn, Value: []any{"vue", "react"}}, true, true},
		{"in list miss", Predicate{Feature: "framework", Op: OpIn, Value: []any{"vue"}}, false, true},
		{"present", Predicate{Feature: "framework", Op: OpPresent}, true, true},
		{"absent on known", Predicate{Feature: "framework", Op: OpAbsent}, false, true},
		{"absent on unknown", Predicate{Feature: "missing", Op: OpAbsent}, true, false},
		{"equals on unknown", Predicate{Feature: "missing", Value: true}, false, false},
		{"not equals on unknown", Predicate{Feature: "missing", Op: OpNotEquals, Value: true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			satisfied, known := tt.pred.Eval(features)
			if satisfied != tt.wantSatisfied || known != tt.wantKnown {
				t.Errorf("Eval() = (%v, %v), want (%v, %v)", satisfied, known, tt.wantSatisfied, tt.wantKnown)
			}
		})
	}
}

func TestPredicateKey(t *testing.T) {
	a := Predicate{Feature: "f", Value: true}
	b := Predicate{Feature: "f", Op: OpEquals, Value: "true"}
	if a.Key() != b.Key() {
		t.Errorf("Key() mismatch: %q vs %q", a.Key(), b.Key())
	}

	c := Predicate{Feature: "f", Op: OpNotEquals, Value: true}
	if a.Key() == c.Key() {
		t.Error("different operators should produce different keys")
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityFatal.Rank() > SeverityWarn.Rank() && SeverityWarn.Rank() > SeverityInfo.Rank()) {
		t.Error("expected fatal > warn > info")
	}
	if Severity("critical").Valid() {
		t.Error("unknown severity should be invalid")
	}
	if got := (Constraint{}).EffectiveSeverity(); got != SeverityWarn {
		t.Errorf("EffectiveSeverity() = %q, want warn", got)
	}
}
