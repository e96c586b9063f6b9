package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/corpusql/internal/compiler"
	"github.com/roach88/corpusql/internal/engine"
	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/store"
	"github.com/roach88/corpusql/internal/testutil"
)

// Harness is the scenario execution engine. It owns a fresh store holding
// the scenario corpus.
type Harness struct {
	store   *store.Store
	schema  *schema.Schema
	builder *testutil.Builder
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Build the schema and create its layer tables
// 2. Write the transcripts
// 3. Run the search to completion
// 4. Check how it ended, then evaluate the assertions
//
// An error means the scenario could not be executed at all; a search that
// ends differently than expected is reported through Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	sc, err := scenario.Schema.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}

	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.EnsureLayers(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to create layer tables: %w", err)
	}

	h := &Harness{store: st, schema: sc, builder: testutil.NewBuilder(st, sc)}
	if err := h.load(ctx, scenario.Transcripts); err != nil {
		return nil, err
	}

	task := engine.NewTask(scenario.SearchID, st, scenario.Search.Matrix, h.options(scenario.Search))
	runErr := task.Run(ctx)

	result := NewResult()
	result.State = task.State().String()
	if plan := task.Plan(); plan != nil {
		result.Strategy = plan.Strategy.String()
	}
	checkOutcome(scenario.Search.Expect, result, runErr)

	if task.State() == engine.StateDone {
		matches, err := h.collect(ctx, scenario.SearchID)
		if err != nil {
			return nil, err
		}
		result.Matches = matches
	}

	for _, a := range scenario.Assertions {
		if err := evaluateAssertion(a, result); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

// load writes the scenario corpus.
func (h *Harness) load(ctx context.Context, transcripts []TranscriptFixture) error {
	for _, fixture := range transcripts {
		tr, err := h.builder.Add(ctx, fixture.Name, fixture.Utterances...)
		if err != nil {
			return fmt.Errorf("failed to write transcript: %w", err)
		}
		for _, sp := range fixture.Spans {
			if _, err := h.builder.Span(ctx, tr, sp.Layer, sp.Label, sp.Start, sp.End); err != nil {
				return fmt.Errorf("transcript %s: failed to write span: %w", fixture.Name, err)
			}
		}
		for _, a := range fixture.Attributes {
			owner := tr.AgID
			if a.Speaker != "" {
				speaker, ok := tr.Speakers[a.Speaker]
				if !ok {
					return fmt.Errorf("transcript %s: unknown speaker %q", fixture.Name, a.Speaker)
				}
				owner = speaker
			}
			if err := h.builder.Attribute(ctx, a.Layer, owner, a.Value); err != nil {
				return fmt.Errorf("transcript %s: failed to write attribute: %w", fixture.Name, err)
			}
		}
	}
	return nil
}

func (h *Harness) options(step SearchStep) engine.Options {
	opts := engine.Options{Schema: h.schema}
	if step.Strategy != "" {
		// Validated when the scenario was loaded.
		opts.Force, _ = compiler.ParseStrategy(step.Strategy)
	}
	if step.OverlapMaxPercent > 0 {
		opts.Filters = append(opts.Filters, &engine.OverlapFilter{MaxPercent: step.OverlapMaxPercent, Schema: h.schema})
	}
	if step.PerTranscript > 0 {
		opts.Filters = append(opts.Filters, &engine.TranscriptCap{PerTranscript: step.PerTranscript})
	}
	return opts
}

// checkOutcome compares the final state with the expect clause.
func checkOutcome(expect *ExpectClause, result *Result, runErr error) {
	want := "done"
	if expect != nil {
		want = expect.State
	}
	if result.State != want {
		msg := fmt.Sprintf("search ended %s, expected %s", result.State, want)
		if runErr != nil {
			msg += ": " + runErr.Error()
		}
		result.AddError(msg)
		return
	}
	if expect == nil || expect.Error == "" {
		return
	}
	if runErr == nil {
		result.AddError(fmt.Sprintf("expected error containing %q, got none", expect.Error))
		return
	}
	if !strings.Contains(runErr.Error(), expect.Error) {
		result.AddError(fmt.Sprintf("expected error containing %q, got %q", expect.Error, runErr.Error()))
	}
}

// collect reads the surviving rows and resolves speaker and word labels.
func (h *Harness) collect(ctx context.Context, searchID string) ([]Match, error) {
	matches := []Match{}
	wordTable := h.schema.Word().Table()

	res := engine.NewResults(h.store, searchID, 0)
	for res.Next(ctx) {
		r := res.Result()
		m := Match{Rank: r.Rank, Transcript: r.TranscriptID, ID: res.MatchID().Encode()}
		if r.SpeakerNumber.Valid {
			if err := h.store.Get(ctx, &m.Speaker, "SELECT name FROM speaker WHERE speaker_number = ?", r.SpeakerNumber.Int64); err != nil {
				return nil, fmt.Errorf("failed to read speaker: %w", err)
			}
		}
		if r.FirstWordID.Valid {
			if err := h.store.Get(ctx, &m.FirstWord, "SELECT label FROM "+wordTable+" WHERE annotation_id = ?", r.FirstWordID.Int64); err != nil {
				return nil, fmt.Errorf("failed to read first word: %w", err)
			}
		}
		if r.LastWordID.Valid {
			if err := h.store.Get(ctx, &m.LastWord, "SELECT label FROM "+wordTable+" WHERE annotation_id = ?", r.LastWordID.Int64); err != nil {
				return nil, fmt.Errorf("failed to read last word: %w", err)
			}
		}
		matches = append(matches, m)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return matches, nil
}
