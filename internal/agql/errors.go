package agql

import (
	"errors"
	"fmt"
	"strings"
)

// CompilationError reports every problem found in an expression. Problems
// are collected rather than failing on the first, and each names the
// source text that triggered it.
type CompilationError struct {
	Expression string
	Problems   []string
}

// Error implements the error interface.
func (e *CompilationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("compile %q: %s", e.Expression, e.Problems[0])
	}
	return fmt.Sprintf("compile %q: %d problems: %s", e.Expression, len(e.Problems), strings.Join(e.Problems, "; "))
}

// IsCompilationError reports whether err is (or wraps) a CompilationError.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}
