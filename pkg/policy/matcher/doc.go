// Package matcher decides which rule documents apply to an artifact.
//
// Patterns use glob semantics over slash-separated identifiers:
//
//   - "*" matches any run of characters within one path segment
//   - "**" matches across segments (zero or more directories)
//   - literal segments match exactly
//
// Matching is delegated to github.com/bmatcuk/doublestar/v4. There is no
// partial or fuzzy matching: a pattern either matches or it does not.
//
// Specificity is used to order candidates, never to filter them:
//
//	specificity = literal characters - wildcard tokens
//
// Ties are broken by document id so that ordering is deterministic.
package matcher
