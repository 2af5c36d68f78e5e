// Package merger resolves the effective policy for one artifact.
//
// Resolution selects the candidate documents for the artifact identifier,
// then walks each concern domain to its single authority through the
// prebuilt delegation chains. Only the authority's clauses for a domain
// are collected, so a concern is never enforced twice by documents that
// delegated it away.
//
// For each domain the owning candidate is the first candidate, in
// specificity order, that owns or delegates the domain. Any other candidate
// referencing the domain either resolves to the same authority (and is
// deduplicated) or is recorded as shadowed.
//
// A requirement and a prohibition from different authorities over the same
// feature state contradict. The higher severity wins and the lower one is
// dropped. At equal severity the prohibition is recorded as the winner but
// both clauses are kept, so an artifact fails one of them whatever it
// asserts. Every pair is recorded in Conflicts.
//
// Resolve is pure: the same graph and identifier always produce the same
// EffectivePolicy, and the graph is only read.
package merger
