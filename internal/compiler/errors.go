package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// CompilationError reports every problem found in a matrix. No statement is
// produced when one is returned.
type CompilationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *CompilationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid matrix: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid matrix: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// IsCompilationError reports whether err is (or wraps) a CompilationError.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}
