// Package graph assembles loaded rule documents into an immutable delegation
// graph keyed by rule id.
//
// Edges are the documents' delegations, labelled by concern domain. All
// structural validation happens at build time so that evaluation never has
// to fail:
//
//   - DanglingDelegation: a delegation names an unknown document
//   - DuplicateDelegation: a document delegates the same domain twice
//   - DelegationCycle: following one domain's delegations returns to a
//     document already on the path
//   - UnknownConcernDomain: the end of a delegation chain neither owns
//     clauses for the domain nor delegates it further
//   - AmbiguousOwnership: two AlwaysApply documents both own one domain
//
// A failed build returns no graph. A successful build precomputes every
// delegation chain, so resolving the authority of a domain is a map lookup.
// The graph is never mutated after Build returns and is safe for concurrent
// readers without locking; a changed document set requires a new Build.
package graph
