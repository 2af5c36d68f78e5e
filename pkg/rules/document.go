package rules

import (
	"fmt"
	"sort"
)

// Document is one named policy unit.
type Document struct {
	// ID uniquely identifies the document across the loaded set.
	ID string `yaml:"id" json:"id"`

	// Description is free text for humans. It is never interpreted.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Applicability is the ordered set of glob patterns over artifact
	// identifiers. An empty set never auto-applies.
	Applicability []string `yaml:"applicability,omitempty" json:"applicability,omitempty"`

	// AlwaysApply makes the document apply to every artifact regardless of
	// pattern match.
	AlwaysApply bool `yaml:"alwaysApply,omitempty" json:"alwaysApply,omitempty"`

	// Delegates lists the concern domains this document defers to other
	// documents, in declaration order.
	Delegates []Delegation `yaml:"delegates,omitempty" json:"delegates,omitempty"`

	// Clauses maps a concern domain to the constraints this document owns
	// for that domain.
	Clauses map[string][]Constraint `yaml:"clauses,omitempty" json:"clauses,omitempty"`

	// Source is the file (or other origin) the document was loaded from.
	Source string `yaml:"-" json:"source,omitempty"`
}

// Delegation defers one concern domain to another document.
type Delegation struct {
	Domain string `yaml:"domain" json:"domain"`
	To     string `yaml:"to" json:"to"`
}

// Domains returns the sorted set of domains this document owns clauses for.
func (d *Document) Domains() []string {
	domains := make([]string, 0, len(d.Clauses))
	for domain, clauses := range d.Clauses {
		if len(clauses) > 0 {
			domains = append(domains, domain)
		}
	}
	sort.Strings(domains)
	return domains
}

// OwnsDomain reports whether the document has at least one clause in domain.
func (d *Document) OwnsDomain(domain string) bool {
	return len(d.Clauses[domain]) > 0
}

// DelegateFor returns the target document id for domain, if the document
// delegates it. When a domain is delegated more than once the first
// declaration is returned; the graph builder rejects such documents.
func (d *Document) DelegateFor(domain string) (string, bool) {
	for _, del := range d.Delegates {
		if del.Domain == domain {
			return del.To, true
		}
	}
	return "", false
}

// ReferencedDomains returns every domain the document owns or delegates, sorted.
func (d *Document) ReferencedDomains() []string {
	seen := make(map[string]struct{})
	for _, domain := range d.Domains() {
		seen[domain] = struct{}{}
	}
	for _, del := range d.Delegates {
		seen[del.Domain] = struct{}{}
	}
	domains := make([]string, 0, len(seen))
	for domain := range seen {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Normalize fills each constraint's Domain from its clause map key and
// applies the default predicate operator. It is idempotent.
func (d *Document) Normalize() {
	for domain, clauses := range d.Clauses {
		for i := range clauses {
			clauses[i].Domain = domain
			if clauses[i].Predicate.Op == "" && clauses[i].Predicate.Feature != "" {
				clauses[i].Predicate.Op = OpEquals
			}
		}
	}
}

// Validate checks the document in isolation. It returns the first problem
// found as a *FieldError.
func (d *Document) Validate() error {
	if d.ID == "" {
		return &FieldError{Field: "id", Message: "document id is required"}
	}

	for i, pattern := range d.Applicability {
		if pattern == "" {
			return &FieldError{
				Document: d.ID,
				Field:    fmt.Sprintf("applicability[%d]", i),
				Message:  "pattern cannot be empty",
			}
		}
	}

	for i, del := range d.Delegates {
		field := fmt.Sprintf("delegates[%d]", i)
		if del.Domain == "" {
			return &FieldError{Document: d.ID, Field: field + ".domain", Message: "delegated domain is required"}
		}
		if del.To == "" {
			return &FieldError{Document: d.ID, Field: field + ".to", Message: "delegation target is required"}
		}
	}

	for _, domain := range sortedKeys(d.Clauses) {
		if domain == "" {
			return &FieldError{Document: d.ID, Field: "clauses", Message: "domain name cannot be empty"}
		}
		for i, c := range d.Clauses[domain] {
			if err := c.validate(); err != nil {
				return &FieldError{
					Document: d.ID,
					Field:    fmt.Sprintf("clauses.%s[%d]", domain, i),
					Message:  err.Error(),
				}
			}
		}
	}

	return nil
}

func sortedKeys(m map[string][]Constraint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FieldError reports an invalid field of a single document.
type FieldError struct {
	Document string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("invalid document: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid document %q: %s: %s", e.Document, e.Field, e.Message)
}

// Clone returns a deep copy of the document's slices and clause map.
// Predicate values are shared.
func (d *Document) Clone() *Document {
	out := *d
	out.Applicability = append([]string(nil), d.Applicability...)
	out.Delegates = append([]Delegation(nil), d.Delegates...)
	if d.Clauses != nil {
		out.Clauses = make(map[string][]Constraint, len(d.Clauses))
		for domain, clauses := range d.Clauses {
			out.Clauses[domain] = append([]Constraint(nil), clauses...)
		}
	}
	return &out
}
