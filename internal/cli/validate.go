package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/corpusql/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Strategy string   `json:"strategy,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <matrix-file>",
		Short: "Validate a search matrix without running it",
		Long: `Validate a search matrix against the layer schema.

Reports every problem found in the matrix and its filters, or the strategy
a valid matrix compiles to. Faster than search for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to a layer schema file (.yaml or .cue)")

	return cmd
}

func runValidate(opts *ValidateOptions, matrixPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.settings()
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	sc, dialect, err := compileTarget(cfg, opts.Schema, "")
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	m, err := LoadMatrix(matrixPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Validating matrix with %d column(s) from %s", len(m.Columns), matrixPath)

	problems := compiler.Validate(m, sc)
	if len(problems) > 0 {
		return outputValidationProblems(formatter, problems)
	}

	// Filters are only checked by compiling them.
	plan, err := compiler.Compile(m, sc, compiler.Options{Dialect: dialect})
	if err != nil {
		if compErr, ok := err.(*compiler.CompilationError); ok {
			return outputValidationProblems(formatter, compErr.Problems)
		}
		return formatter.Fail(ExitFailure, err)
	}

	return outputValidateSuccess(formatter, plan.Strategy.String())
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, strategy string) error {
	return formatter.Success(ValidationResult{Valid: true, Strategy: strategy}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Matrix valid (%s strategy)\n", strategy)
	})
}

// outputValidationProblems outputs every problem found in the matrix.
func outputValidationProblems(formatter *OutputFormatter, problems []string) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: false, Problems: problems}
		if err := formatter.Report(result, ErrCodeInvalidMatrix, problems[0]); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		fmt.Fprintln(formatter.Writer)
		for _, p := range problems {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeInvalidMatrix, p)
		}
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(problems)))
}
