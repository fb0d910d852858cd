package fork

import (
	"errors"
	"fmt"
	"strings"
)

// #region sentinels
var (
	ErrDuplicateLabel = errors.New("fork: duplicate branch label")
	ErrLabelMismatch  = errors.New("fork: branch label sets differ")
	ErrUnknownLabel   = errors.New("fork: unknown branch label")
	ErrKind           = errors.New("fork: unsupported payload kind")
	ErrOutOfRange     = errors.New("fork: result outside [0, 1]")
	ErrPanic          = errors.New("fork: branch panicked")
)
// #endregion sentinels

// #region broadcast-error
// BranchFailure is one branch's error inside a BroadcastError.
type BranchFailure struct {
	Label string
	Err   error
}

func (f BranchFailure) Error() string { return f.Label + ": " + f.Err.Error() }
func (f BranchFailure) Unwrap() error { return f.Err }

// BroadcastError aggregates the branches that failed during a broadcast,
// in branch order.
type BroadcastError struct {
	Failures []BranchFailure
}

func (e *BroadcastError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("broadcast failed in %d branch(es): %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every branch error to errors.Is and errors.As.
func (e *BroadcastError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}

// Labels lists the failed branches.
func (e *BroadcastError) Labels() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Label
	}
	return out
}
// #endregion broadcast-error
