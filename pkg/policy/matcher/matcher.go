package matcher

import (
	"math"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"mercator-hq/rampart/pkg/rules"
)

// AlwaysApplySpecificity is the candidate score of an AlwaysApply document
// none of whose patterns match. It ranks below every matched pattern.
const AlwaysApplySpecificity = math.MinInt32

// Candidate is a document selected for an artifact.
type Candidate struct {
	Document *rules.Document

	// Specificity is the score of the most specific matching pattern.
	Specificity int

	// Pattern is the matching pattern that produced Specificity. It is
	// empty for an AlwaysApply document with no matching pattern.
	Pattern string
}

// Match reports whether pattern matches identifier. Invalid patterns never
// match.
func Match(pattern, identifier string) bool {
	ok, err := doublestar.Match(pattern, normalize(identifier))
	return err == nil && ok
}

// Valid reports whether pattern is a well-formed glob.
func Valid(pattern string) bool {
	return pattern != "" && doublestar.ValidatePattern(pattern)
}

// Specificity scores a pattern: literal characters minus wildcard tokens.
// "**", "*", "?", a "[...]" class and a "{...}" alternation each count as
// one wildcard token.
func Specificity(pattern string) int {
	literals, wildcards := 0, 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			if i+1 < len(pattern) {
				i++
			}
			literals++
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
			}
			wildcards++
		case '?':
			wildcards++
		case '[':
			i = skipTo(pattern, i, ']')
			wildcards++
		case '{':
			i = skipTo(pattern, i, '}')
			wildcards++
		default:
			literals++
		}
	}
	return literals - wildcards
}

func skipTo(pattern string, i int, closing byte) int {
	if j := strings.IndexByte(pattern[i+1:], closing); j >= 0 {
		return i + 1 + j
	}
	return len(pattern) - 1
}

// Select returns the candidates for identifier: every AlwaysApply document
// plus every document with at least one matching pattern, ordered by
// specificity descending then id ascending.
func Select(docs []*rules.Document, identifier string) []Candidate {
	candidates := make([]Candidate, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		best, pattern, matched := bestMatch(doc.Applicability, identifier)
		switch {
		case matched:
			candidates = append(candidates, Candidate{Document: doc, Specificity: best, Pattern: pattern})
		case doc.AlwaysApply:
			candidates = append(candidates, Candidate{Document: doc, Specificity: AlwaysApplySpecificity})
		}
	}
	Sort(candidates)
	return candidates
}

// Sort orders candidates by specificity descending, then document id.
func Sort(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Specificity != candidates[j].Specificity {
			return candidates[i].Specificity > candidates[j].Specificity
		}
		return candidates[i].Document.ID < candidates[j].Document.ID
	})
}

func bestMatch(patterns []string, identifier string) (int, string, bool) {
	best, bestPattern, matched := 0, "", false
	for _, p := range patterns {
		if !Match(p, identifier) {
			continue
		}
		score := Specificity(p)
		if !matched || score > best {
			best, bestPattern, matched = score, p, true
		}
	}
	return best, bestPattern, matched
}

// normalize converts an identifier to the slash-separated, cleaned form the
// glob engine expects. Leading "./" is dropped.
func normalize(identifier string) string {
	id := strings.ReplaceAll(identifier, "\\", "/")
	if id == "" {
		return id
	}
	id = path.Clean(id)
	return strings.TrimPrefix(id, "./")
}
