// Package rules defines the data model for security rule documents.
//
// A rule document is one named policy unit. It applies to a set of artifacts
// (selected by glob patterns or by the AlwaysApply flag), owns constraint
// clauses grouped by concern domain, and may delegate individual concern
// domains to other documents.
//
// # Document Structure
//
//	Document
//	├── ID, Description
//	├── Applicability ([]string glob patterns)
//	├── AlwaysApply (bool)
//	├── Delegates ([]Delegation: domain -> target document id)
//	└── Clauses (map[domain][]Constraint)
//	    └── Constraint
//	        ├── Kind (prohibition, requirement, default, check, disclosure, audit-marker)
//	        ├── Predicate (feature, op, value)
//	        └── Severity (fatal, warn, info)
//
// Documents are loaded once and treated as immutable afterwards. The package
// performs only per-document validation; cross-document checks (dangling
// delegations, cycles) belong to the graph builder in pkg/policy/graph.
package rules
