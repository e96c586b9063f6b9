package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/testutil"
)

func wordColumn(pattern string) ir.Column {
	return ir.Column{Layers: map[string][]ir.LayerMatch{"word": {{Pattern: pattern}}}}
}

func run(t *testing.T, scenario *Scenario) *Result {
	t.Helper()
	if scenario.SearchID == "" {
		scenario.SearchID = DefaultSearchID
	}
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestRun_MinimalScenario(t *testing.T) {
	result := run(t, &Scenario{
		Name: "minimal",
		Transcripts: []TranscriptFixture{
			{Name: "a.trs", Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"the", "cat"}}}},
		},
		Search:     SearchStep{Matrix: ir.Matrix{Columns: []ir.Column{wordColumn("cat")}}},
		Assertions: []Assertion{{Type: AssertCount, Count: 1}},
	})

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "done", result.State)
	assert.Equal(t, "general", result.Strategy)
	require.Len(t, result.Matches, 1)

	m := result.Matches[0]
	assert.Equal(t, int64(1), m.Rank)
	assert.Equal(t, "a.trs", m.Transcript)
	assert.Equal(t, "ann", m.Speaker)
	assert.Equal(t, "cat", m.FirstWord)
	assert.Equal(t, "cat", m.LastWord)
	assert.Contains(t, m.ID, "a.trs;")
}

func TestRun_OverlapFilter(t *testing.T) {
	result := run(t, &Scenario{
		Name: "overlap",
		Transcripts: []TranscriptFixture{
			{Name: "a.trs", Utterances: []testutil.Utterance{
				{Speaker: "ann", Words: []string{"cat", "sat"}},
				{Speaker: "bob", Words: []string{"mm", "hmm"}},
			}},
			{Name: "b.trs", Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"cat"}}}},
		},
		Search: SearchStep{
			Matrix:            ir.Matrix{Columns: []ir.Column{wordColumn("cat")}},
			OverlapMaxPercent: 50,
		},
		Assertions: []Assertion{{Type: AssertTranscripts, Values: []string{"b.trs"}}},
	})

	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ExpectedFailure(t *testing.T) {
	result := run(t, &Scenario{
		Name: "empty_scope",
		Transcripts: []TranscriptFixture{
			{Name: "a.trs", Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"cat"}}}},
		},
		Search: SearchStep{
			Matrix: ir.Matrix{
				Columns:         []ir.Column{wordColumn("cat")},
				TranscriptQuery: "/nothing.*/.test(id)",
			},
			Expect: &ExpectClause{State: "failed", Error: "no transcripts match the filter"},
		},
		Assertions: []Assertion{{Type: AssertCount, Count: 0}},
	})

	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "failed", result.State)
	assert.Empty(t, result.Matches)
}

func TestRun_UnexpectedFailure(t *testing.T) {
	result := run(t, &Scenario{
		Name: "invalid",
		Transcripts: []TranscriptFixture{
			{Name: "a.trs", Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"cat"}}}},
		},
		Search: SearchStep{Matrix: ir.Matrix{}},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "search ended failed, expected done")
	assert.Contains(t, result.Errors[0], "matrix has no columns")
}

func TestRun_WrongErrorText(t *testing.T) {
	result := run(t, &Scenario{
		Name: "wrong_error",
		Transcripts: []TranscriptFixture{
			{Name: "a.trs", Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"cat"}}}},
		},
		Search: SearchStep{
			Matrix: ir.Matrix{},
			Expect: &ExpectClause{State: "failed", Error: "something else"},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected error containing "something else"`)
}

func TestRun_AssertionFailure(t *testing.T) {
	result := run(t, &Scenario{
		Name: "miscounted",
		Transcripts: []TranscriptFixture{
			{Name: "a.trs", Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"cat", "cat"}}}},
		},
		Search: SearchStep{Matrix: ir.Matrix{Columns: []ir.Column{wordColumn("cat")}}},
		Assertions: []Assertion{
			{Type: AssertCount, Count: 3},
			{Type: AssertStrategy, Value: "span"},
		},
	})

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: count")
	assert.Contains(t, result.Errors[0], "Expected: 3 match(es)")
	assert.Contains(t, result.Errors[0], "Actual: 2 match(es)")
	assert.Contains(t, result.Errors[1], "Assertion failed: strategy")
}

func TestRun_FixtureErrors(t *testing.T) {
	tests := []struct {
		name    string
		fixture TranscriptFixture
		want    string
	}{
		{
			name: "unknown word layer",
			fixture: TranscriptFixture{Name: "a.trs", Utterances: []testutil.Utterance{
				{Speaker: "ann", Words: []string{"cat"}, Layers: map[string][]string{"pos": {"NN"}}},
			}},
			want: `unknown layer "pos"`,
		},
		{
			name: "unknown span layer",
			fixture: TranscriptFixture{
				Name:       "a.trs",
				Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"cat"}}},
				Spans:      []SpanFixture{{Layer: "topic", Label: "pets", Start: 0, End: 1}},
			},
			want: "failed to write span",
		},
		{
			name: "unknown speaker",
			fixture: TranscriptFixture{
				Name:       "a.trs",
				Utterances: []testutil.Utterance{{Speaker: "ann", Words: []string{"cat"}}},
				Attributes: []AttributeFixture{{Layer: "participant_gender", Speaker: "zed", Value: "f"}},
			},
			want: `unknown speaker "zed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), &Scenario{
				Name:        "broken",
				SearchID:    DefaultSearchID,
				Transcripts: []TranscriptFixture{tt.fixture},
				Search:      SearchStep{Matrix: ir.Matrix{Columns: []ir.Column{wordColumn("cat")}}},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
