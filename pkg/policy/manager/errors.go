package manager

import (
	"errors"
	"fmt"
)

// Stage names the step of a load that failed.
type Stage string

const (
	StageSource Stage = "source"
	StageParse  Stage = "parse"
	StageBuild  Stage = "build"
)

var (
	// ErrWatchDisabled is returned by Watch when rules.watch is off.
	ErrWatchDisabled = errors.New("rule watching is not enabled in configuration")

	// ErrAlreadyWatching is returned by Watch when a watch is running.
	ErrAlreadyWatching = errors.New("watch already started")
)

// LoadError is returned when a document set could not be loaded. The
// previously active graph, if any, is still in place.
type LoadError struct {
	Stage Stage
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("rule load failed at %s stage for %q: %v", e.Stage, e.Path, e.Cause)
}

// Unwrap returns the underlying parse, build or source error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}
