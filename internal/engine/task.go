package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/corpusql/internal/agql"
	"github.com/roach88/corpusql/internal/compiler"
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/metrics"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/store"
)

// DefaultPageSize is the number of durable rows read at a time.
const DefaultPageSize = 500

// scratchTable is the temporary table a search collects candidates in.
const scratchTable = compiler.DefaultResultTable

// Options configure a Task.
type Options struct {
	// Schema describes the corpus layers. Nil means schema.Default().
	Schema *schema.Schema
	// Access restricts the transcripts a search can see.
	Access queryir.Restriction
	// Expressions compiles participant and transcript filters. Nil means
	// a compiler for Schema and the store's dialect.
	Expressions *agql.Compiler
	// Filters run over the durable rows in rank order. The task runs
	// clones, so one filter value can serve many searches.
	Filters []Filter
	// Now is the clock used for progress and phase timing. Nil means
	// time.Now.
	Now func() time.Time
	// MatchTau shapes the match-phase progress curve. Zero means
	// DefaultMatchTau.
	MatchTau time.Duration
	// Force selects a strategy instead of the automatic choice.
	Force compiler.Strategy
	// PageSize is the number of rows the filter phase reads at a time.
	// Zero means DefaultPageSize.
	PageSize int
}

// Task runs one search. A Task runs once; Cancel may be called from any
// goroutine at any time.
type Task struct {
	id       string
	st       *store.Store
	matrix   ir.Matrix
	opts     Options
	progress *ProgressEstimator
	done     chan struct{}

	mu        sync.Mutex
	state     State
	phase     Phase
	err       error
	matches   int
	plan      *compiler.Plan
	cancel    context.CancelFunc
	cancelled bool
	recorded  bool
}

// NewTask creates a pending search over st.
func NewTask(id string, st *store.Store, m ir.Matrix, opts Options) *Task {
	if opts.Schema == nil {
		opts.Schema = schema.Default()
	}
	if opts.Expressions == nil {
		opts.Expressions = agql.NewCompiler(opts.Schema, st.Dialect())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	filters := make([]Filter, len(opts.Filters))
	for i, f := range opts.Filters {
		filters[i] = f.Clone()
	}
	opts.Filters = filters
	return &Task{
		id:       id,
		st:       st,
		matrix:   m,
		opts:     opts,
		progress: NewProgressEstimator(opts.Now, opts.MatchTau),
		done:     make(chan struct{}),
		state:    StatePending,
	}
}

// ID returns the search id.
func (t *Task) ID() string { return t.id }

// State returns the lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Phase returns the phase currently executing, or the last one entered.
func (t *Task) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Err returns the error of a failed search. It is nil for searches that
// are running, done or cancelled.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Matches returns the number of durable rows of a finished search.
func (t *Task) Matches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.matches
}

// Plan returns the compiled plan once the scope phase has run.
func (t *Task) Plan() *compiler.Plan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.plan
}

// Percent returns the progress estimate in [0, 100].
func (t *Task) Percent() int {
	return t.progress.Percent()
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel requests cancellation. The statement in flight is interrupted
// and the task ends in StateCancelled. Cancelling a finished task does
// nothing.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Finished() {
		return
	}
	t.cancelled = true
	if t.cancel != nil {
		t.cancel()
	}
}

// Run executes the search and blocks until it finishes. It returns the
// failure of a failed search, or an error wrapping context.Canceled for a
// cancelled one.
func (t *Task) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StatePending {
		t.mu.Unlock()
		return fmt.Errorf("search %s already started", t.id)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.cancel = cancel
	t.state = StateRunning
	if t.cancelled {
		cancel()
	}
	t.mu.Unlock()

	metrics.SearchesRunning.Inc()
	defer metrics.SearchesRunning.Dec()

	slog.Info("search started", "search_id", t.id, "columns", len(t.matrix.Columns))
	err := t.run(ctx)
	return t.finish(ctx, err)
}

func (t *Task) run(ctx context.Context) error {
	conn, err := t.st.Conn(ctx)
	if err != nil {
		return &ExecutionError{Phase: PhaseScope, SearchID: t.id, Err: err}
	}
	defer conn.Close()
	db := t.st.With(conn)

	steps := []struct {
		phase Phase
		fn    func(context.Context, *store.Store) (int, error)
	}{
		{PhaseScope, t.scope},
		{PhaseMatch, t.match},
		{PhaseBackfill, t.backfill},
		{PhaseDedup, t.dedup},
		{PhasePromote, t.promote},
		{PhaseFilter, t.filter},
	}
	defer func() {
		if err := db.DropScratch(context.WithoutCancel(ctx), scratchTable); err != nil {
			slog.Warn("failed to drop scratch table", "search_id", t.id, "error", err)
		}
	}()
	for _, step := range steps {
		if err := t.step(ctx, db, step.phase, step.fn); err != nil {
			return err
		}
	}
	return nil
}

// step runs one phase, timing and logging it.
func (t *Task) step(ctx context.Context, db *store.Store, p Phase, fn func(context.Context, *store.Store) (int, error)) error {
	if err := ctx.Err(); err != nil {
		return &ExecutionError{Phase: p, SearchID: t.id, Err: err}
	}
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
	t.progress.Enter(p)

	start := t.opts.Now()
	slog.Debug("phase started", "search_id", t.id, "phase", p.String())
	rows, err := fn(ctx, db)
	metrics.PhaseDuration.WithLabelValues(p.String()).Observe(t.opts.Now().Sub(start).Seconds())
	if err != nil {
		return &ExecutionError{Phase: p, SearchID: t.id, Err: err}
	}
	slog.Debug("phase finished", "search_id", t.id, "phase", p.String(), "rows", rows)
	return nil
}

// finish records the terminal state and cleans up after failures.
func (t *Task) finish(ctx context.Context, err error) error {
	t.mu.Lock()
	cancelled := t.cancelled || (err != nil && errCancelled(ctx, err))
	recorded := t.recorded
	strategy := "none"
	if t.plan != nil {
		strategy = t.plan.Strategy.String()
	}
	t.mu.Unlock()

	cleanup := context.WithoutCancel(ctx)
	var state State
	switch {
	case cancelled:
		state = StateCancelled
		err = &ExecutionError{Phase: t.Phase(), SearchID: t.id, Err: context.Canceled}
	case err != nil:
		state = StateFailed
	default:
		state = StateDone
	}

	matches := 0
	if state == StateDone {
		n, cerr := t.st.CountResults(cleanup, t.id)
		if cerr != nil {
			state, err = StateFailed, &ExecutionError{Phase: PhaseDone, SearchID: t.id, Err: cerr}
		}
		matches = n
	}
	if state != StateDone {
		if derr := t.st.DeleteResults(cleanup, t.id); derr != nil {
			slog.Error("failed to remove durable rows", "search_id", t.id, "error", derr)
		}
		matches = 0
	}
	if recorded {
		if uerr := t.st.UpdateSearch(cleanup, t.id, state.String(), matches); uerr != nil {
			slog.Error("failed to record search state", "search_id", t.id, "error", uerr)
		}
	}

	metrics.SearchesTotal.WithLabelValues(strategy, state.String()).Inc()
	switch state {
	case StateDone:
		metrics.MatchesTotal.Add(float64(matches))
		t.progress.Finish()
		slog.Info("search finished", "search_id", t.id, "strategy", strategy, "matches", matches)
	case StateCancelled:
		slog.Info("search cancelled", "search_id", t.id, "phase", t.Phase().String())
	default:
		slog.Error("search failed", "search_id", t.id, "error", err)
	}

	t.mu.Lock()
	t.state = state
	t.matches = matches
	if state == StateFailed {
		t.err = err
	}
	if state == StateDone {
		t.phase = PhaseDone
	}
	t.mu.Unlock()
	close(t.done)

	if state == StateDone {
		return nil
	}
	return err
}

// scope compiles the matrix, records the search and checks that its
// filters select something.
func (t *Task) scope(ctx context.Context, db *store.Store) (int, error) {
	plan, err := compiler.Compile(t.matrix, t.opts.Schema, compiler.Options{
		Dialect:     db.Dialect(),
		Access:      t.opts.Access,
		ResultTable: scratchTable,
		Expressions: t.opts.Expressions,
		Force:       t.opts.Force,
	})
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.plan = plan
	t.mu.Unlock()

	if err := db.CreateSearch(ctx, store.Search{
		ID:          t.id,
		Fingerprint: plan.Fingerprint,
		Strategy:    plan.Strategy.String(),
		State:       StateRunning.String(),
	}); err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.recorded = true
	t.mu.Unlock()

	for _, check := range plan.Scope {
		var n int
		if err := db.GetRaw(ctx, &n, check.SQL, check.Params...); err != nil {
			return 0, fmt.Errorf("count %ss: %w", check.Name, err)
		}
		if n == 0 {
			return 0, &EmptyScopeError{Scope: check.Name + "s"}
		}
		slog.Debug("scope resolved", "search_id", t.id, "scope", check.Name, "count", n)
	}
	return len(plan.Scope), nil
}

// match runs the compiled insert into the scratch table.
func (t *Task) match(ctx context.Context, db *store.Store) (int, error) {
	if err := db.CreateScratch(ctx, scratchTable); err != nil {
		return 0, err
	}
	res, err := db.ExecRaw(ctx, t.plan.SQL, t.plan.Params...)
	if err != nil {
		return 0, fmt.Errorf("run %s query: %w", t.plan.Strategy, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// dedup keeps the first row for each target annotation, then the first
// MaxMatches rows of what is left.
func (t *Task) dedup(ctx context.Context, db *store.Store) (int, error) {
	const copyTable = scratchTable + "_copy"
	if err := db.DropScratch(ctx, copyTable); err != nil {
		return 0, err
	}
	if _, err := db.Exec(ctx, fmt.Sprintf(
		"CREATE TEMPORARY TABLE %s AS SELECT match_id, target_annotation_uid FROM %s", copyTable, scratchTable)); err != nil {
		return 0, fmt.Errorf("copy candidates: %w", err)
	}
	defer func() {
		if err := db.DropScratch(context.WithoutCancel(ctx), copyTable); err != nil {
			slog.Warn("failed to drop scratch table", "search_id", t.id, "error", err)
		}
	}()
	res, err := db.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %[1]s WHERE EXISTS (
			SELECT 1 FROM %[2]s c
			WHERE c.target_annotation_uid = %[1]s.target_annotation_uid
			AND c.match_id < %[1]s.match_id
		)`, scratchTable, copyTable))
	if err != nil {
		return 0, fmt.Errorf("remove duplicate targets: %w", err)
	}
	n, _ := res.RowsAffected()

	if limit := t.matrix.MaxMatches; limit > 0 {
		if _, err := db.Exec(ctx, fmt.Sprintf(`
			DELETE FROM %[1]s WHERE match_id NOT IN (
				SELECT match_id FROM %[1]s ORDER BY match_id LIMIT ?
			)`, scratchTable), limit); err != nil {
			return 0, fmt.Errorf("apply match limit: %w", err)
		}
	}
	return int(n), nil
}

// promote copies the scratch rows into the durable result table, finding
// each row's bounding utterance and speaker and ranking rows by speaker
// name, transcript name and match order.
func (t *Task) promote(ctx context.Context, db *store.Store) (int, error) {
	collate := db.Dialect().BinaryCollation()
	res, err := db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO result (
			search_id, match_id, rank, ag_id, speaker_number,
			start_anchor_id, end_anchor_id, defining_annotation_id,
			segment_annotation_id, target_annotation_id, target_annotation_uid,
			turn_annotation_id, first_matched_word_annotation_id,
			last_matched_word_annotation_id, complete
		)
		SELECT ?, m.match_id,
			ROW_NUMBER() OVER (ORDER BY sp.name %[1]s, t.transcript_id %[1]s, m.match_id),
			m.ag_id, turn.parent_id,
			m.start_anchor_id, m.end_anchor_id,
			(SELECT u.annotation_id FROM %[2]s u
				INNER JOIN anchor us ON us.anchor_id = u.start_anchor_id
				WHERE u.turn_annotation_id = m.turn_annotation_id
				AND us.time_offset <= ms.time_offset
				ORDER BY us.time_offset DESC, u.annotation_id
				LIMIT 1),
			m.segment_annotation_id, m.target_annotation_id, m.target_annotation_uid,
			m.turn_annotation_id, m.first_matched_word_annotation_id,
			m.last_matched_word_annotation_id, 1
		FROM %[3]s m
		INNER JOIN transcript t ON t.ag_id = m.ag_id
		LEFT OUTER JOIN %[4]s turn ON turn.annotation_id = m.turn_annotation_id
		LEFT OUTER JOIN speaker sp ON sp.speaker_number = turn.parent_id
		LEFT OUTER JOIN anchor ms ON ms.anchor_id = m.start_anchor_id
	`, collate, t.opts.Schema.Utterance().Table(), scratchTable, t.opts.Schema.Turn().Table()), t.id)
	if err != nil {
		return 0, fmt.Errorf("promote matches: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// filter runs the post-match filters over the durable rows in rank order
// and removes the rows they reject.
func (t *Task) filter(ctx context.Context, db *store.Store) (int, error) {
	if len(t.opts.Filters) == 0 {
		return 0, nil
	}
	var rejected []int64
	for offset := 0; ; offset += t.opts.PageSize {
		page, err := db.Results(ctx, t.id, offset, t.opts.PageSize)
		if err != nil {
			return 0, err
		}
		for _, r := range page {
			keep, err := t.keep(ctx, db, r)
			if err != nil {
				return 0, err
			}
			if !keep {
				rejected = append(rejected, r.MatchNumber)
			}
		}
		if len(page) < t.opts.PageSize {
			break
		}
	}

	for _, match := range rejected {
		if err := db.DeleteResult(ctx, t.id, match); err != nil {
			return 0, err
		}
	}
	return len(rejected), nil
}

// keep applies the filters to r in order, stopping at the first rejection.
func (t *Task) keep(ctx context.Context, db *store.Store, r store.Result) (bool, error) {
	for _, f := range t.opts.Filters {
		ok, err := f.Keep(ctx, db, r)
		if err != nil {
			return false, fmt.Errorf("%s filter: %w", f.Name(), err)
		}
		if !ok {
			metrics.FilteredTotal.WithLabelValues(f.Name()).Inc()
			return false, nil
		}
	}
	return true, nil
}

// errCancelled reports whether err, or the context, shows cancellation.
func errCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
