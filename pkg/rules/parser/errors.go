package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType categorizes a parse error.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // malformed YAML
	ErrorTypeStructural ErrorType = "structural" // unknown key, wrong type
	ErrorTypeValidation ErrorType = "validation" // document failed validation
	ErrorTypeIO         ErrorType = "io"         // file access
)

// ParseError reports a problem at a location in a rule file.
type ParseError struct {
	Type       ErrorType
	File       string
	Line       int
	Column     int
	Message    string
	Suggestion string
	Cause      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] ", e.Type)
	if e.File != "" {
		sb.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
			if e.Column > 0 {
				fmt.Fprintf(&sb, ":%d", e.Column)
			}
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, " (%s)", e.Suggestion)
	}
	return sb.String()
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ErrorList collects parse errors across files.
type ErrorList struct {
	Errors []*ParseError
}

// Add appends err to the list.
func (l *ErrorList) Add(err *ParseError) {
	l.Errors = append(l.Errors, err)
}

// HasErrors reports whether any error was added.
func (l *ErrorList) HasErrors() bool {
	return len(l.Errors) > 0
}

// Error implements the error interface.
func (l *ErrorList) Error() string {
	if len(l.Errors) == 1 {
		return l.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d parse errors:\n", len(l.Errors))
	for _, err := range l.Errors {
		sb.WriteString("  ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Unwrap returns the individual errors.
func (l *ErrorList) Unwrap() []error {
	errs := make([]error, len(l.Errors))
	for i, err := range l.Errors {
		errs[i] = err
	}
	return errs
}

// ToError returns the list as an error, or nil when it is empty.
func (l *ErrorList) ToError() error {
	if !l.HasErrors() {
		return nil
	}
	return l
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// lineOf extracts the first line number from a yaml.v3 error message.
func lineOf(err error) int {
	m := yamlLine.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// suggest returns "did you mean" text for an unknown key.
func suggest(unknown string, valid []string) string {
	best, bestDist := "", 1000
	for _, v := range valid {
		if d := levenshtein(strings.ToLower(unknown), strings.ToLower(v)); d < bestDist {
			best, bestDist = v, d
		}
	}
	if bestDist <= 3 {
		return fmt.Sprintf("did you mean %q?", best)
	}
	return "valid keys: " + strings.Join(valid, ", ")
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
