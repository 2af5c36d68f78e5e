package merger

import (
	"fmt"
	"sort"

	"mercator-hq/rampart/pkg/policy/graph"
	"mercator-hq/rampart/pkg/policy/matcher"
	"mercator-hq/rampart/pkg/rules"
)

// ResolvedClause is a constraint tagged with the document that is
// authoritative for its domain.
type ResolvedClause struct {
	rules.Constraint

	// Authority is the id of the document the clause came from.
	Authority string `json:"authority"`

	// Via is the delegation chain from the owning candidate to Authority,
	// inclusive at both ends.
	Via []string `json:"via,omitempty"`

	// Index is the clause's position within the authority's domain.
	Index int `json:"index"`
}

// Conflict records a contradiction between two authorities and how it was
// decided.
type Conflict struct {
	Winner ResolvedClause `json:"winner"`
	Loser  ResolvedClause `json:"loser"`
	Reason string         `json:"reason"`

	// Retained is set when the loser stays in the policy. At equal
	// severity no feature value satisfies both clauses, so both are kept
	// and every artifact fails one of them at that severity.
	Retained bool `json:"retained,omitempty"`
}

// Shadow records a candidate whose claim on a domain lost to a more
// specific candidate with a different authority.
type Shadow struct {
	Domain string `json:"domain"`

	// Candidate is the document whose claim was ignored, and Authority
	// the document its chain resolved to.
	Candidate string `json:"candidate"`
	Authority string `json:"authority"`

	// Owner is the candidate that owns the domain for this artifact.
	Owner string `json:"owner"`
}

// EffectivePolicy is the flattened set of constraints that applies to one
// artifact. Each domain contributes the clauses of its single authority, so
// a document reached through several candidates appears once. Identical
// clauses that different authorities own under different domains are all
// kept, each attributed to its own domain.
type EffectivePolicy struct {
	Identifier string `json:"identifier"`

	// Clauses is ordered by severity descending, then domain, authority
	// and clause index.
	Clauses []ResolvedClause `json:"clauses"`

	// Authorities maps each resolved domain to its authority document.
	Authorities map[string]string `json:"authorities"`

	// Candidates lists the selected documents in candidate order.
	Candidates []string `json:"candidates"`

	Conflicts []Conflict `json:"conflicts,omitempty"`
	Shadowed  []Shadow   `json:"shadowed,omitempty"`

	// Version is the document-set version of the graph resolved against.
	Version string `json:"version"`
}

// Resolve computes the effective policy of identifier against g. A nil
// graph yields an empty policy.
func Resolve(g *graph.Graph, identifier string) *EffectivePolicy {
	policy := &EffectivePolicy{
		Identifier:  identifier,
		Authorities: make(map[string]string),
		Candidates:  []string{},
		Clauses:     []ResolvedClause{},
	}
	if g == nil {
		return policy
	}
	policy.Version = g.Version()

	candidates := matcher.Select(g.Documents(), identifier)
	for _, c := range candidates {
		policy.Candidates = append(policy.Candidates, c.Document.ID)
	}

	for _, domain := range referencedDomains(candidates) {
		owner := ""
		for _, c := range candidates {
			if !claims(g, c.Document, domain) {
				continue
			}
			if owner == "" {
				owner = c.Document.ID
				continue
			}
			if other := g.Authority(c.Document.ID, domain); other != g.Authority(owner, domain) {
				policy.Shadowed = append(policy.Shadowed, Shadow{
					Domain:    domain,
					Candidate: c.Document.ID,
					Authority: other,
					Owner:     owner,
				})
			}
		}

		authority := g.Authority(owner, domain)
		policy.Authorities[domain] = authority

		doc, ok := g.Document(authority)
		if !ok {
			continue
		}
		via := g.Chain(owner, domain)
		for i, c := range doc.Clauses[domain] {
			policy.Clauses = append(policy.Clauses, ResolvedClause{
				Constraint: c,
				Authority:  authority,
				Via:        via,
				Index:      i,
			})
		}
	}

	Sort(policy.Clauses)
	policy.Clauses, policy.Conflicts = resolveConflicts(policy.Clauses)
	return policy
}

// claims reports whether doc owns or delegates domain.
func claims(g *graph.Graph, doc *rules.Document, domain string) bool {
	return doc.OwnsDomain(domain) || g.Delegates(doc.ID, domain)
}

func referencedDomains(candidates []matcher.Candidate) []string {
	seen := make(map[string]struct{})
	for _, c := range candidates {
		for _, domain := range c.Document.ReferencedDomains() {
			seen[domain] = struct{}{}
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Less reports whether a sorts before b: severity descending, then domain,
// authority and clause index ascending.
func Less(a, b ResolvedClause) bool {
	if ra, rb := a.EffectiveSeverity().Rank(), b.EffectiveSeverity().Rank(); ra != rb {
		return ra > rb
	}
	if a.Domain != b.Domain {
		return a.Domain < b.Domain
	}
	if a.Authority != b.Authority {
		return a.Authority < b.Authority
	}
	return a.Index < b.Index
}

// Sort orders clauses in place by Less.
func Sort(clauses []ResolvedClause) {
	sort.SliceStable(clauses, func(i, j int) bool { return Less(clauses[i], clauses[j]) })
}

// resolveConflicts decides every requirement/prohibition pair from
// different authorities with identical predicates. The lower severity side
// is dropped. At equal severity the prohibition is recorded as the winner
// and both clauses stay. clauses must already be sorted; the result keeps
// that order.
func resolveConflicts(clauses []ResolvedClause) ([]ResolvedClause, []Conflict) {
	var conflicts []Conflict
	removed := make([]bool, len(clauses))

	for i, req := range clauses {
		if req.Kind != rules.KindRequirement {
			continue
		}
		key := req.Predicate.Key()
		for j, pro := range clauses {
			if removed[i] {
				break
			}
			if removed[j] || pro.Kind != rules.KindProhibition || pro.Authority == req.Authority {
				continue
			}
			if pro.Predicate.Key() != key {
				continue
			}

			reqRank, proRank := req.EffectiveSeverity().Rank(), pro.EffectiveSeverity().Rank()
			if reqRank > proRank {
				removed[j] = true
				conflicts = append(conflicts, Conflict{
					Winner: req,
					Loser:  pro,
					Reason: fmt.Sprintf("requirement severity %s exceeds prohibition severity %s", req.EffectiveSeverity(), pro.EffectiveSeverity()),
				})
				continue
			}

			if proRank == reqRank {
				conflicts = append(conflicts, Conflict{
					Winner:   pro,
					Loser:    req,
					Reason:   "deny overrides at equal severity",
					Retained: true,
				})
				continue
			}

			removed[i] = true
			conflicts = append(conflicts, Conflict{
				Winner: pro,
				Loser:  req,
				Reason: fmt.Sprintf("prohibition severity %s exceeds requirement severity %s", pro.EffectiveSeverity(), req.EffectiveSeverity()),
			})
		}
	}

	if len(conflicts) == 0 {
		return clauses, nil
	}
	kept := make([]ResolvedClause, 0, len(clauses))
	for i, c := range clauses {
		if !removed[i] {
			kept = append(kept, c)
		}
	}
	return kept, conflicts
}
