package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"mercator-hq/rampart/pkg/policy/matcher"
	"mercator-hq/rampart/pkg/rules"
)

// Options configures a graph build.
type Options struct {
	// CollectAll keeps checking after the first error and returns every
	// error found as *BuildErrors. Checks that depend on an earlier check
	// passing (cycle detection needs resolvable edges) skip the offending
	// documents instead of aborting.
	CollectAll bool

	// Version overrides the computed document-set version, for example
	// with a git commit SHA.
	Version string
}

// Graph is the validated, immutable rule graph.
type Graph struct {
	docs    map[string]*rules.Document
	ordered []*rules.Document

	// chains[id][domain] is the delegation path from id to the authority
	// for domain, inclusive at both ends. Only delegating documents have
	// entries.
	chains map[string]map[string][]string

	version string
}

// Build validates docs and assembles the graph. The first error found is
// returned as a *ConfigError and no graph is produced.
func Build(docs []*rules.Document) (*Graph, error) {
	return BuildWithOptions(docs, Options{})
}

// BuildWithOptions is Build with explicit options.
func BuildWithOptions(docs []*rules.Document, opts Options) (*Graph, error) {
	b := &builder{
		collectAll: opts.CollectAll,
		docs:       make(map[string]*rules.Document, len(docs)),
		chains:     make(map[string]map[string][]string),
	}

	if !b.run(docs) {
		return nil, b.err()
	}

	g := &Graph{
		docs:    b.docs,
		ordered: b.ordered,
		chains:  b.chains,
		version: opts.Version,
	}
	if g.version == "" {
		g.version = computeVersion(g.ordered)
	}
	return g, nil
}

// Validate runs every check over docs and returns all errors found, or nil
// when the set would build.
func Validate(docs []*rules.Document) []*ConfigError {
	_, err := BuildWithOptions(docs, Options{CollectAll: true})
	if err == nil {
		return nil
	}
	if be, ok := err.(*BuildErrors); ok {
		return be.Errors
	}
	return []*ConfigError{err.(*ConfigError)}
}

// Document returns the document with the given id.
func (g *Graph) Document(id string) (*rules.Document, bool) {
	doc, ok := g.docs[id]
	return doc, ok
}

// Documents returns every document sorted by id. The slice is a copy; the
// documents are shared and must not be modified.
func (g *Graph) Documents() []*rules.Document {
	out := make([]*rules.Document, len(g.ordered))
	copy(out, g.ordered)
	return out
}

// Len returns the number of documents in the graph.
func (g *Graph) Len() int {
	return len(g.ordered)
}

// Version identifies the document set the graph was built from.
func (g *Graph) Version() string {
	return g.version
}

// WithVersion returns a copy of the graph reporting version v. The
// underlying documents and chains are shared.
func (g *Graph) WithVersion(v string) *Graph {
	out := *g
	out.version = v
	return &out
}

// Delegates reports whether document id delegates domain.
func (g *Graph) Delegates(id, domain string) bool {
	_, ok := g.chains[id][domain]
	return ok
}

// Authority returns the id of the document whose clauses are authoritative
// for domain when starting from document id. A document that does not
// delegate domain is its own authority.
func (g *Graph) Authority(id, domain string) string {
	if chain, ok := g.chains[id][domain]; ok {
		return chain[len(chain)-1]
	}
	return id
}

// Chain returns the delegation path from id to the authority for domain,
// inclusive at both ends. A non-delegating document yields [id].
func (g *Graph) Chain(id, domain string) []string {
	if chain, ok := g.chains[id][domain]; ok {
		out := make([]string, len(chain))
		copy(out, chain)
		return out
	}
	return []string{id}
}

// Documents returned by the graph are canonicalised for hashing without
// their Source, so moving a file does not change the version.
func computeVersion(ordered []*rules.Document) string {
	canonical := make([]rules.Document, len(ordered))
	for i, doc := range ordered {
		canonical[i] = *doc
		canonical[i].Source = ""
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		// Predicate values come from YAML scalars and lists, which always
		// marshal. Fall back to the ids.
		data = []byte(fmt.Sprint(ids(ordered)))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func ids(docs []*rules.Document) []string {
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = doc.ID
	}
	return out
}

// builder carries state across the ordered build checks.
type builder struct {
	collectAll bool
	errs       []*ConfigError

	docs    map[string]*rules.Document
	ordered []*rules.Document
	chains  map[string]map[string][]string

	// broken marks documents excluded from later checks in collect mode.
	broken map[string]bool
}

// report records err and returns whether checking should continue.
func (b *builder) report(err *ConfigError) bool {
	b.errs = append(b.errs, err)
	return b.collectAll
}

func (b *builder) err() error {
	if len(b.errs) == 0 {
		return nil
	}
	if !b.collectAll {
		return b.errs[0]
	}
	return &BuildErrors{Errors: b.errs}
}

func (b *builder) markBroken(id string) {
	if b.broken == nil {
		b.broken = make(map[string]bool)
	}
	b.broken[id] = true
}

// run executes the checks in order and reports whether the set is valid.
func (b *builder) run(docs []*rules.Document) bool {
	steps := []func() bool{
		func() bool { return b.collect(docs) },
		b.checkDelegations,
		b.checkCycles,
		b.checkTerminals,
		b.checkOwnership,
	}
	for _, step := range steps {
		if !step() {
			return false
		}
	}
	return len(b.errs) == 0
}

// collect copies, normalises and validates each document and rejects
// duplicate ids.
func (b *builder) collect(docs []*rules.Document) bool {
	for i, in := range docs {
		if in == nil {
			if !b.report(&ConfigError{Kind: KindInvalidDocument, Message: fmt.Sprintf("document %d is nil", i)}) {
				return false
			}
			continue
		}

		if prev, ok := b.docs[in.ID]; ok && in.ID != "" {
			err := &ConfigError{
				Kind:     KindDuplicateDocument,
				Document: in.ID,
				Message:  fmt.Sprintf("defined in %s and %s", sourceOf(prev), sourceOf(in)),
			}
			if !b.report(err) {
				return false
			}
			continue
		}

		doc := in.Clone()
		doc.Normalize()

		if err := doc.Validate(); err != nil {
			if !b.report(&ConfigError{Kind: KindInvalidDocument, Document: doc.ID, Cause: err}) {
				return false
			}
			continue
		}
		if err := validatePatterns(doc); err != nil {
			if !b.report(err) {
				return false
			}
			continue
		}

		b.docs[doc.ID] = doc
		b.ordered = append(b.ordered, doc)
	}

	sort.Slice(b.ordered, func(i, j int) bool { return b.ordered[i].ID < b.ordered[j].ID })
	return true
}

func validatePatterns(doc *rules.Document) *ConfigError {
	for i, pattern := range doc.Applicability {
		if !matcher.Valid(pattern) {
			return &ConfigError{
				Kind:     KindInvalidDocument,
				Document: doc.ID,
				Message:  fmt.Sprintf("applicability[%d]: invalid pattern %q", i, pattern),
			}
		}
	}
	return nil
}

func sourceOf(doc *rules.Document) string {
	if doc.Source == "" {
		return "<unknown>"
	}
	return doc.Source
}

// checkDelegations rejects delegations to unknown documents and domains
// delegated more than once by one document.
func (b *builder) checkDelegations() bool {
	for _, doc := range b.ordered {
		seen := make(map[string]bool, len(doc.Delegates))
		for _, del := range doc.Delegates {
			if seen[del.Domain] {
				b.markBroken(doc.ID)
				err := &ConfigError{Kind: KindDuplicateDelegation, Document: doc.ID, Domain: del.Domain}
				if !b.report(err) {
					return false
				}
				continue
			}
			seen[del.Domain] = true

			if _, ok := b.docs[del.To]; !ok {
				b.markBroken(doc.ID)
				err := &ConfigError{Kind: KindDanglingDelegation, Document: doc.ID, Domain: del.Domain, Target: del.To}
				if !b.report(err) {
					return false
				}
			}
		}
	}
	return true
}

// Per-domain walk states for cycle detection.
const (
	unvisited = iota
	visiting
	done
)

// checkCycles follows every delegation chain per domain. Each document
// delegates a domain at most once, so a chain is a simple walk and a
// revisit of a document on the current path is a cycle.
func (b *builder) checkCycles() bool {
	for _, domain := range b.delegatedDomains() {
		state := make(map[string]int)

		for _, doc := range b.ordered {
			if b.broken[doc.ID] || state[doc.ID] != unvisited {
				continue
			}
			if _, ok := doc.DelegateFor(domain); !ok {
				continue
			}

			var (
				path     []string
				tail     []string
				resolved = true
				current  = doc.ID
			)
		walk:
			for {
				switch state[current] {
				case visiting:
					start := indexOf(path, current)
					cycle := append(append([]string(nil), path[start:]...), current)
					resolved = false
					if !b.report(&ConfigError{Kind: KindDelegationCycle, Document: current, Domain: domain, Cycle: cycle}) {
						return false
					}
					break walk
				case done:
					if chain, ok := b.chains[current][domain]; ok {
						tail = chain
					} else if _, delegates := b.docs[current].DelegateFor(domain); delegates {
						resolved = false
					} else {
						tail = []string{current}
					}
					break walk
				}

				state[current] = visiting
				path = append(path, current)

				next, ok := b.docs[current].DelegateFor(domain)
				if !ok {
					break
				}
				if b.broken[next] {
					resolved = false
					break
				}
				current = next
			}

			for _, id := range path {
				state[id] = done
			}
			if !resolved {
				for _, id := range path {
					b.markBroken(id)
				}
				continue
			}
			b.recordChains(domain, path, tail)
		}
	}
	return true
}

// recordChains stores the chain for every delegating document on path.
// tail is the already resolved remainder of the chain when the walk joined
// a known one.
func (b *builder) recordChains(domain string, path, tail []string) {
	for i, id := range path {
		if _, ok := b.docs[id].DelegateFor(domain); !ok {
			continue
		}
		chain := append(append([]string(nil), path[i:]...), tail...)
		if b.chains[id] == nil {
			b.chains[id] = make(map[string][]string)
		}
		b.chains[id][domain] = chain
	}
}

func (b *builder) delegatedDomains() []string {
	seen := make(map[string]struct{})
	for _, doc := range b.ordered {
		for _, del := range doc.Delegates {
			seen[del.Domain] = struct{}{}
		}
	}
	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

func indexOf(path []string, id string) int {
	for i, p := range path {
		if p == id {
			return i
		}
	}
	return 0
}

// checkTerminals rejects chains whose authority has no clauses for the
// delegated domain.
func (b *builder) checkTerminals() bool {
	for _, doc := range b.ordered {
		for _, domain := range sortedChainDomains(b.chains[doc.ID]) {
			chain := b.chains[doc.ID][domain]
			authority := chain[len(chain)-1]
			if b.docs[authority].OwnsDomain(domain) {
				continue
			}
			// Report once, at the last delegating document.
			from := chain[len(chain)-2]
			if from != doc.ID {
				continue
			}
			err := &ConfigError{Kind: KindUnknownConcernDomain, Document: from, Domain: domain, Target: authority}
			if !b.report(err) {
				return false
			}
		}
	}
	return true
}

func sortedChainDomains(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// checkOwnership rejects two pattern-less AlwaysApply documents that both
// own clauses for a domain without delegating it. Both sort at the same
// specificity for every artifact, so ownership would fall to id order.
func (b *builder) checkOwnership() bool {
	owners := make(map[string]string)
	for _, doc := range b.ordered {
		if !doc.AlwaysApply || len(doc.Applicability) > 0 {
			continue
		}
		for _, domain := range doc.Domains() {
			if _, delegated := doc.DelegateFor(domain); delegated {
				continue
			}
			prev, ok := owners[domain]
			if !ok {
				owners[domain] = doc.ID
				continue
			}
			err := &ConfigError{Kind: KindAmbiguousOwnership, Document: prev, Domain: domain, Target: doc.ID}
			if !b.report(err) {
				return false
			}
		}
	}
	return true
}
