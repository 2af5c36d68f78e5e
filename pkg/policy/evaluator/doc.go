// Package evaluator checks an effective policy against the features of one
// artifact and produces a Decision.
//
// Evaluation runs in two passes over a sorted copy of the policy clauses.
// The first pass applies default clauses, which supply an assumed value for
// a feature the caller did not set. The second pass evaluates every other
// clause against the explicit and assumed features:
//
//	prohibition   satisfied predicate is a violation
//	requirement   unsatisfied predicate is a violation
//	check         unknown feature is a warn "unverified" violation;
//	              a known but unsatisfied feature is a violation
//	disclosure    annotates the decision, never a violation
//	audit-marker  always recorded in the audit trail
//
// The verdict is block when any violation is fatal, allow-with-annotations
// when there is any violation or disclosure, and allow otherwise. Every
// clause yields exactly one audit trail entry.
//
// Evaluate is pure and never fails. Clause order in the input policy does
// not affect the result.
package evaluator
