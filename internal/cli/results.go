package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/corpusql/internal/engine"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Database string
	Schema   string
	Offset   int
	Limit    int
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results <search-id>",
		Short: "Page through the matches of a finished search",
		Long: `Print the ranked matches a finished search left in the database.

Examples:
  corpusql results 0190a5c4-7b2e-7c3d-8e4f-5a6b7c8d9e0f
  corpusql results 0190a5c4-7b2e-7c3d-8e4f-5a6b7c8d9e0f --offset 100 --limit 50`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (overrides db.dsn)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to a layer schema file (.yaml or .cue)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "skip this many matches")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "print at most this many matches (0 prints all)")

	return cmd
}

func runResults(opts *ResultsOptions, searchID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	cfg, err := opts.settings()
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	schemaPath := opts.Schema
	if schemaPath == "" {
		schemaPath = cfg.Schema.Path
	}
	sc, err := LoadSchema(schemaPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	st, err := openStore(ctx, cfg, opts.Database, sc)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	defer st.Close()

	sr, err := st.GetSearch(ctx, searchID)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	if sr.State != engine.StateDone.String() {
		return formatter.Fail(ExitFailure, fmt.Errorf("search %s is %s", searchID, sr.State))
	}

	res := engine.NewResults(st, searchID, cfg.Search.PageSize)
	res.Seek(opts.Offset)
	result := SearchResult{
		SearchID: sr.ID,
		Strategy: sr.Strategy,
		State:    sr.State,
		Total:    sr.MatchCount,
		Matches:  []MatchResult{},
	}
	for (opts.Limit <= 0 || len(result.Matches) < opts.Limit) && res.Next(ctx) {
		result.Matches = append(result.Matches, MatchResult{Rank: res.Result().Rank, ID: res.MatchID().Encode()})
	}
	if err := res.Err(); err != nil {
		return formatter.Fail(ExitFailure, &LoadError{Code: ErrCodeStore, Message: "reading matches", Err: err})
	}
	formatter.VerboseLog("Read %d match(es) from offset %d", len(result.Matches), opts.Offset)

	return outputSearchResult(formatter, result, false)
}
