package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/corpusql/internal/config"
	"github.com/roach88/corpusql/internal/engine"
	"github.com/roach88/corpusql/internal/metrics"
	"github.com/roach88/corpusql/internal/schema"
)

// progressInterval is how often --verbose reports search progress.
const progressInterval = 250 * time.Millisecond

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Database      string // overrides db.dsn
	Schema        string
	Strategy      string
	Overlap       float64 // overrides search.overlap_max_percent
	PerTranscript int     // overrides search.per_transcript
	Limit         int     // matches printed, 0 means all
}

// SearchResult is the outcome of a search.
type SearchResult struct {
	SearchID string        `json:"search_id"`
	Strategy string        `json:"strategy"`
	State    string        `json:"state"`
	Total    int           `json:"total"`
	Matches  []MatchResult `json:"matches"`
}

// MatchResult is one ranked match.
type MatchResult struct {
	Rank int64  `json:"rank"`
	ID   string `json:"id"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <matrix-file>",
		Short: "Run a search over the corpus",
		Long: `Run a search matrix over the corpus database and print its matches.

The search id is printed first; matches stay in the database and can be
paged through later with the results command. Ctrl-C cancels the search.

Examples:
  corpusql search matrix.yaml --db corpus.db
  corpusql search matrix.yaml --overlap 50 --per-transcript 1
  corpusql search matrix.yaml --strategy general --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (overrides db.dsn)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "path to a layer schema file (.yaml or .cue)")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "force a strategy (general|orthography|span)")
	cmd.Flags().Float64Var(&opts.Overlap, "overlap", 0, "drop matches overlapped by another speaker by more than this percentage")
	cmd.Flags().IntVar(&opts.PerTranscript, "per-transcript", 0, "keep at most this many matches per transcript")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "print at most this many matches (0 prints all)")

	return cmd
}

func runSearch(opts *SearchOptions, matrixPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

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
	force, err := parseForce(opts.Strategy)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	m, err := LoadMatrix(matrixPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}

	// Setup signal handling for graceful cancellation
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling search", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Warn("metrics endpoint stopped", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	st, err := openStore(ctx, cfg, opts.Database, sc)
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	defer st.Close()

	mgr, err := engine.NewManager(st, cfg.Search.Workers, engine.UUIDv7Generator{}, engine.Options{
		Schema:   sc,
		Force:    force,
		PageSize: cfg.Search.PageSize,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, err)
	}
	defer mgr.Close()

	filters := searchFilters(opts, cmd, cfg, sc)
	id, err := mgr.Submit(ctx, m, filters...)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	slog.Debug("search submitted", "search_id", id, "filters", len(filters))

	task, err := waitForSearch(ctx, mgr, id, formatter)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	switch task.State() {
	case engine.StateDone:
	case engine.StateCancelled:
		return formatter.Fail(ExitFailure, &engine.ExecutionError{Phase: task.Phase(), SearchID: id, Err: context.Canceled})
	default:
		return formatter.Fail(ExitFailure, task.Err())
	}

	res, err := mgr.Results(id)
	if err != nil {
		return formatter.Fail(ExitFailure, err)
	}
	result := SearchResult{
		SearchID: id,
		Strategy: task.Plan().Strategy.String(),
		State:    task.State().String(),
		Total:    task.Matches(),
		Matches:  []MatchResult{},
	}
	for (opts.Limit <= 0 || len(result.Matches) < opts.Limit) && res.Next(ctx) {
		result.Matches = append(result.Matches, MatchResult{Rank: res.Result().Rank, ID: res.MatchID().Encode()})
	}
	if err := res.Err(); err != nil {
		return formatter.Fail(ExitFailure, &LoadError{Code: ErrCodeStore, Message: "reading matches", Err: err})
	}

	return outputSearchResult(formatter, result, true)
}

// searchFilters builds the filters of a search. Flags override the
// configuration when set.
func searchFilters(opts *SearchOptions, cmd *cobra.Command, cfg *config.Config, sc *schema.Schema) []engine.Filter {
	overlap := cfg.Search.OverlapMaxPercent
	if cmd.Flags().Changed("overlap") {
		overlap = opts.Overlap
	}
	perTranscript := cfg.Search.PerTranscript
	if cmd.Flags().Changed("per-transcript") {
		perTranscript = opts.PerTranscript
	}

	var filters []engine.Filter
	if overlap > 0 {
		filters = append(filters, &engine.OverlapFilter{MaxPercent: overlap, Schema: sc})
	}
	if perTranscript > 0 {
		filters = append(filters, &engine.TranscriptCap{PerTranscript: perTranscript})
	}
	return filters
}

// waitForSearch blocks until the search finishes. When ctx is cancelled
// first the search is cancelled and waited for.
func waitForSearch(ctx context.Context, mgr *engine.Manager, id string, formatter *OutputFormatter) (*engine.Task, error) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	task, err := mgr.Get(id)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case <-task.Done():
			return task, nil
		case <-ticker.C:
			if pct, err := mgr.Percent(id); err == nil {
				formatter.VerboseLog("search %s: %s %d%%", id, task.Phase(), pct)
			}
		case <-ctx.Done():
			if err := mgr.Cancel(id); err != nil {
				return nil, err
			}
			return mgr.Wait(context.WithoutCancel(ctx), id)
		}
	}
}

// outputSearchResult outputs the matches of a finished search. more
// suggests the results command when not every match was printed.
func outputSearchResult(formatter *OutputFormatter, result SearchResult, more bool) error {
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Search %s (%s strategy): %d match(es)\n", result.SearchID, result.Strategy, result.Total)
		for _, m := range result.Matches {
			fmt.Fprintf(w, "%6d  %s\n", m.Rank, m.ID)
		}
		if shown := len(result.Matches); more && shown < result.Total {
			fmt.Fprintf(w, "... %d more (corpusql results %s --offset %d)\n", result.Total-shown, result.SearchID, shown)
		}
	})
}
