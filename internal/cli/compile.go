package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/corpusql/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Schema   string
	Dialect  string
	Strategy string // empty means automatic
	Output   string // output file path
}

// CompilationResult describes a compiled matrix.
type CompilationResult struct {
	Strategy    string       `json:"strategy"`
	TargetLayer string       `json:"target_layer"`
	Target      TargetResult `json:"target"`
	Fingerprint string       `json:"fingerprint"`
	SQL         string       `json:"sql"`
	Params      []any        `json:"params"`
	Scope       []ScopeCheck `json:"scope,omitempty"`
}

// TargetResult locates the target constraint of a matrix.
type TargetResult struct {
	Column int    `json:"column"`
	Layer  string `json:"layer"`
	Match  int    `json:"match"`
}

// ScopeCheck is one filter count query.
type ScopeCheck struct {
	Name   string `json:"name"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <matrix-file>",
		Short: "Compile a search matrix to SQL",
		Long: `Compile a search matrix to the SQL statement a search would run.

The matrix is validated against the layer schema, a strategy is chosen
(or forced with --strategy) and the insert statement filling the result
table is printed together with its parameters and filter checks.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to a layer schema file (.yaml or .cue)")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (sqlite|postgres)")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "force a strategy (general|orthography|span)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the SQL to this file")

	return cmd
}

func runCompile(opts *CompileOptions, matrixPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.settings()
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	sc, dialect, err := compileTarget(cfg, opts.Schema, opts.Dialect)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	force, err := parseForce(opts.Strategy)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	m, err := LoadMatrix(matrixPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	formatter.VerboseLog("Loaded matrix with %d column(s) from %s", len(m.Columns), matrixPath)

	plan, err := compiler.Compile(m, sc, compiler.Options{Dialect: dialect, Force: force})
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	result := newCompilationResult(plan)

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(plan.SQL+"\n"), 0644); err != nil {
			return formatter.Fail(ExitCommandError, &LoadError{Code: ErrCodeWriteFailed, Message: "writing output file", Err: err})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// parseForce parses the --strategy flag. Empty means automatic.
func parseForce(name string) (compiler.Strategy, error) {
	if name == "" {
		return 0, nil
	}
	s, err := compiler.ParseStrategy(name)
	if err != nil {
		return 0, &LoadError{Code: ErrCodeConfig, Message: "invalid strategy", Err: err}
	}
	return s, nil
}

func newCompilationResult(plan *compiler.Plan) CompilationResult {
	result := CompilationResult{
		Strategy:    plan.Strategy.String(),
		Target:      TargetResult{Column: plan.Target.Column, Layer: plan.Target.Layer, Match: plan.Target.Match},
		Fingerprint: plan.Fingerprint,
		SQL:         plan.SQL,
		Params:      nonNil(plan.Params),
	}
	if plan.TargetLayer != nil {
		result.TargetLayer = plan.TargetLayer.ID
	}
	for _, check := range plan.Scope {
		result.Scope = append(result.Scope, ScopeCheck{Name: check.Name, SQL: check.SQL, Params: nonNil(check.Params)})
	}
	return result
}

func nonNil(params []any) []any {
	if params == nil {
		return []any{}
	}
	return params
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult, outputFile string) error {
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Compiled with the %s strategy\n\n", result.Strategy)
		fmt.Fprintf(w, "Target: column %d, layer %s\n", result.Target.Column, result.TargetLayer)
		fmt.Fprintf(w, "Fingerprint: %s\n\n", result.Fingerprint)
		fmt.Fprintln(w, result.SQL)
		if len(result.Params) > 0 {
			fmt.Fprintf(w, "\nParams: %v\n", result.Params)
		}
		if len(result.Scope) > 0 {
			fmt.Fprintln(w, "\nFilter checks:")
			for _, check := range result.Scope {
				fmt.Fprintf(w, "  %s: %s\n", check.Name, check.SQL)
			}
		}
		if outputFile != "" {
			fmt.Fprintf(w, "\nWrote SQL to %s\n", outputFile)
		}
	})
}
