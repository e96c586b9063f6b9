package engine

import (
	"context"
	"errors"
	"fmt"
)

// ExecutionError reports a failure while running a phase of a search.
type ExecutionError struct {
	// Phase is the phase that failed.
	Phase Phase
	// SearchID identifies the affected search.
	SearchID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("search %s: %s phase: %v", e.SearchID, e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// EmptyScopeError is returned when a participant or transcript filter
// selects nothing, so the search cannot match.
type EmptyScopeError struct {
	// Scope names the filter, "participants" or "transcripts".
	Scope string
}

// Error implements the error interface.
func (e *EmptyScopeError) Error() string {
	return fmt.Sprintf("no %s match the filter", e.Scope)
}

// ErrUnknownSearch is returned for search ids the manager does not know.
var ErrUnknownSearch = errors.New("unknown search")

// IsCancelled reports whether err results from cancelling a search.
// Uses errors.Is to handle wrapped errors.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsEmptyScope reports whether err is an EmptyScopeError.
// Uses errors.As to handle wrapped errors.
func IsEmptyScope(err error) bool {
	var se *EmptyScopeError
	return errors.As(err, &se)
}

// IntegrityError describes a stored row that breaks an assumption of the
// pipeline, such as an anchor without an offset. Rows affected by one are
// skipped and the error is logged, not returned.
type IntegrityError struct {
	SearchID string
	MatchID  int64
	Reason   string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("search %s: match %d: %s", e.SearchID, e.MatchID, e.Reason)
}
