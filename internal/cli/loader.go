package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/corpusql/internal/agql"
	"github.com/roach88/corpusql/internal/compiler"
	"github.com/roach88/corpusql/internal/config"
	"github.com/roach88/corpusql/internal/engine"
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/store"
)

// LoadError represents an error that occurred while loading an input file.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LoadError) Unwrap() error { return e.Err }

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeParseFailed = "E003" // Input file could not be parsed
	ErrCodeSchema      = "E004" // Layer schema invalid
	ErrCodeStore       = "E005" // Database could not be opened or queried
	ErrCodeConfig      = "E006" // Configuration invalid
	ErrCodeWriteFailed = "E007" // Output write error

	// Compilation errors
	ErrCodeInvalidMatrix     = "E101" // Matrix failed validation
	ErrCodeInvalidExpression = "E102" // AGQL expression failed to compile

	// Search errors
	ErrCodeSearchFailed    = "E111" // Search failed while running
	ErrCodeSearchCancelled = "E112" // Search was cancelled
	ErrCodeEmptyScope      = "E113" // Participant or transcript filter selected nothing
	ErrCodeUnknownSearch   = "E114" // No such search id
)

// ErrorCode maps an error to its CLI error code.
func ErrorCode(err error) string {
	var loadErr *LoadError
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Code
	case errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound
	case compiler.IsCompilationError(err):
		return ErrCodeInvalidMatrix
	case agql.IsCompilationError(err):
		return ErrCodeInvalidExpression
	case engine.IsEmptyScope(err):
		return ErrCodeEmptyScope
	case engine.IsCancelled(err):
		return ErrCodeSearchCancelled
	case errors.Is(err, engine.ErrUnknownSearch), errors.Is(err, store.ErrSearchNotFound):
		return ErrCodeUnknownSearch
	default:
		var execErr *engine.ExecutionError
		if errors.As(err, &execErr) {
			return ErrCodeSearchFailed
		}
		return ErrCodeGeneric
	}
}

// errorDetails returns the problem list of compilation errors.
func errorDetails(err error) any {
	var matrixErr *compiler.CompilationError
	if errors.As(err, &matrixErr) {
		return matrixErr.Problems
	}
	var exprErr *agql.CompilationError
	if errors.As(err, &exprErr) {
		return exprErr.Problems
	}
	return nil
}

// LoadSchema reads the layer schema at path. An empty path means the
// standard layers only.
func LoadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return schema.Default(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema file not found: %s", path), Err: err}
	}
	s, err := schema.LoadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "loading schema", Err: err}
	}
	return s, nil
}

// LoadMatrix reads a search matrix from a YAML or JSON file.
func LoadMatrix(path string) (ir.Matrix, error) {
	if _, err := os.Stat(path); err != nil {
		return ir.Matrix{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("matrix file not found: %s", path), Err: err}
	}
	m, err := ir.LoadMatrixFile(path)
	if err != nil {
		return ir.Matrix{}, &LoadError{Code: ErrCodeParseFailed, Message: "loading matrix", Err: err}
	}
	return m, nil
}

// openStore opens the configured database, with dsn overriding the
// configured one when set, and creates the tables of sc.
func openStore(ctx context.Context, cfg *config.Config, dsn string, sc *schema.Schema) (*store.Store, error) {
	opts := cfg.StoreOptions()
	if dsn != "" {
		opts.DSN = dsn
	}
	st, err := store.Open(ctx, opts)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: "opening database", Err: err}
	}
	if err := st.EnsureLayers(ctx, sc); err != nil {
		st.Close()
		return nil, &LoadError{Code: ErrCodeStore, Message: "creating layer tables", Err: err}
	}
	return st, nil
}
