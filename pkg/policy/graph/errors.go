package graph

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a configuration error.
type ErrorKind string

const (
	KindInvalidDocument      ErrorKind = "InvalidDocument"
	KindDuplicateDocument    ErrorKind = "DuplicateDocument"
	KindDanglingDelegation   ErrorKind = "DanglingDelegation"
	KindDuplicateDelegation  ErrorKind = "DuplicateDelegation"
	KindDelegationCycle      ErrorKind = "DelegationCycle"
	KindUnknownConcernDomain ErrorKind = "UnknownConcernDomain"
	KindAmbiguousOwnership   ErrorKind = "AmbiguousOwnership"
)

// Sentinels for errors.Is comparisons against a *ConfigError of that kind.
var (
	ErrInvalidDocument      = &ConfigError{Kind: KindInvalidDocument}
	ErrDuplicateDocument    = &ConfigError{Kind: KindDuplicateDocument}
	ErrDanglingDelegation   = &ConfigError{Kind: KindDanglingDelegation}
	ErrDuplicateDelegation  = &ConfigError{Kind: KindDuplicateDelegation}
	ErrDelegationCycle      = &ConfigError{Kind: KindDelegationCycle}
	ErrUnknownConcernDomain = &ConfigError{Kind: KindUnknownConcernDomain}
	ErrAmbiguousOwnership   = &ConfigError{Kind: KindAmbiguousOwnership}
)

// ConfigError is a build-time failure of the document set. It is fatal to
// startup: no graph is produced.
type ConfigError struct {
	// Kind classifies the error.
	Kind ErrorKind

	// Document is the id of the document the error was found in.
	Document string

	// Domain is the concern domain involved, if any.
	Domain string

	// Target is the delegation target or conflicting document, if any.
	Target string

	// Cycle lists the document ids of a delegation cycle, closed with its
	// first element (a -> b -> a).
	Cycle []string

	// Message adds detail.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))

	switch e.Kind {
	case KindDelegationCycle:
		fmt.Fprintf(&sb, ": domain %q: %s", e.Domain, strings.Join(e.Cycle, " -> "))
	case KindDanglingDelegation:
		fmt.Fprintf(&sb, ": document %q delegates domain %q to unknown document %q", e.Document, e.Domain, e.Target)
	case KindDuplicateDelegation:
		fmt.Fprintf(&sb, ": document %q delegates domain %q more than once", e.Document, e.Domain)
	case KindUnknownConcernDomain:
		fmt.Fprintf(&sb, ": document %q delegates domain %q but %q neither owns nor delegates it", e.Document, e.Domain, e.Target)
	case KindAmbiguousOwnership:
		fmt.Fprintf(&sb, ": domain %q is owned by always-apply documents %q and %q", e.Domain, e.Document, e.Target)
	default:
		if e.Document != "" {
			fmt.Fprintf(&sb, ": document %q", e.Document)
		}
	}

	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *ConfigError of the same kind. This lets
// callers write errors.Is(err, graph.ErrDelegationCycle).
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// BuildErrors holds every configuration error found by Validate.
type BuildErrors struct {
	Errors []*ConfigError
}

// Error implements the error interface.
func (e *BuildErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d configuration errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %v\n", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the individual errors so errors.Is and errors.As see them.
func (e *BuildErrors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}
