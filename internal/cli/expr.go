package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/corpusql/internal/agql"
	"github.com/roach88/corpusql/internal/config"
	"github.com/roach88/corpusql/internal/querysql"
	"github.com/roach88/corpusql/internal/schema"
)

// ExprOptions holds flags for the expr command.
type ExprOptions struct {
	*RootOptions
	Projection string
	Limit      string
	Schema     string // schema file, overrides schema.path
	Dialect    string // sqlite | postgres, defaults to the configured driver
}

// ExprResult is the compiled form of an expression.
type ExprResult struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// NewExprCommand creates the expr command.
func NewExprCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExprOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expr <expression>",
		Short: "Compile an AGQL expression to SQL",
		Long: `Compile an annotation graph query expression to parameterized SQL.

Examples:
  corpusql expr "layer.id == 'word' && /th.*/.test(label)"
  corpusql expr "['ew_0_1', 'ew_0_2'].includes(id)" --projection ids
  corpusql expr "label == 'cat'" --projection count --dialect postgres`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpr(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Projection, "projection", agql.ProjectRows, "projection (rows|ids|count)")
	cmd.Flags().StringVar(&opts.Limit, "limit", "", `limit clause ("n", "LIMIT n OFFSET m")`)
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to a layer schema file (.yaml or .cue)")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (sqlite|postgres)")

	return cmd
}

func runExpr(opts *ExprOptions, expression string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.settings()
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	sc, dialect, err := compileTarget(cfg, opts.Schema, opts.Dialect)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	c := agql.NewCompiler(sc, dialect)
	sqlText, params, err := c.Compile(expression, opts.Projection, nil, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	result := ExprResult{SQL: sqlText, Params: nonNil(params)}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintln(w, result.SQL)
		if len(result.Params) > 0 {
			fmt.Fprintf(w, "Params: %v\n", result.Params)
		}
	})
}

// compileTarget resolves the schema and dialect a command compiles for.
// Flags override the configuration.
func compileTarget(cfg *config.Config, schemaPath, dialectName string) (*schema.Schema, querysql.Dialect, error) {
	if schemaPath == "" {
		schemaPath = cfg.Schema.Path
	}
	sc, err := LoadSchema(schemaPath)
	if err != nil {
		return nil, 0, err
	}
	if dialectName == "" {
		dialectName = cfg.DB.Driver
	}
	dialect, err := querysql.ParseDialect(dialectName)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeConfig, Message: "invalid dialect", Err: err}
	}
	return sc, dialect, nil
}
