package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/corpusql/internal/compiler"
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/store"
	"github.com/roach88/corpusql/internal/testutil"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.WithDefaults(
		schema.Layer{ID: "pos", ParentID: schema.WordLayer, Kind: schema.KindTemporal, Scope: schema.ScopeWord, Key: 30},
		schema.Layer{ID: "topic", ParentID: schema.TranscriptLayer, Kind: schema.KindTemporal, Scope: schema.ScopeFreeform, Alignment: schema.AlignInterval, Key: 40},
	)
	require.NoError(t, err)
	return s
}

func newCorpus(t *testing.T) *testutil.Corpus {
	t.Helper()
	return testutil.NewCorpus(t, testSchema(t))
}

// col builds a column from alternating layer ids and matches.
func col(adj int, pairs ...any) ir.Column {
	c := ir.Column{Layers: map[string][]ir.LayerMatch{}, Adj: adj}
	for i := 0; i < len(pairs); i += 2 {
		id := pairs[i].(string)
		c.Layers[id] = append(c.Layers[id], pairs[i+1].(ir.LayerMatch))
	}
	return c
}

func pattern(p string) ir.LayerMatch { return ir.LayerMatch{Pattern: p} }

func words(ws ...string) []string { return ws }

// search runs m to completion and returns the task and its durable rows.
func search(t *testing.T, c *testutil.Corpus, m ir.Matrix, filters ...Filter) (*Task, []store.Result) {
	t.Helper()
	ctx := context.Background()
	task := NewTask("search-1", c.Store, m, Options{Schema: c.Schema, Filters: filters})
	require.NoError(t, task.Run(ctx))
	rows, err := c.Store.Results(ctx, task.ID(), 0, 0)
	require.NoError(t, err)
	return task, rows
}

func TestTaskWordPair(t *testing.T) {
	c := newCorpus(t)
	tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("the", "cat", "dog", "ran")})

	m := ir.Matrix{Columns: []ir.Column{
		col(1, schema.WordLayer, pattern("cat")),
		col(0, schema.WordLayer, pattern("dog")),
	}}
	task, rows := search(t, c, m)

	assert.Equal(t, StateDone, task.State())
	assert.Equal(t, PhaseDone, task.Phase())
	assert.NoError(t, task.Err())
	assert.Equal(t, 100, task.Percent())
	assert.Equal(t, 1, task.Matches())
	assert.Equal(t, compiler.StrategyGeneral, task.Plan().Strategy)

	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, int64(1), r.Rank)
	assert.Equal(t, "a.trs", r.TranscriptID)
	assert.Equal(t, tr.Words[0][1], r.FirstWordID.Int64)
	assert.Equal(t, tr.Words[0][2], r.LastWordID.Int64)
	assert.Equal(t, tr.Speakers["ann"], r.SpeakerNumber.Int64)
	assert.Equal(t, tr.Utterances[0], r.DefiningAnnotationID.Int64)
	assert.Equal(t, tr.Turns[0], r.TurnAnnotationID.Int64)
	assert.Equal(t, 1.0, r.StartOffset.Float64)
	assert.Equal(t, 3.0, r.EndOffset.Float64)
	assert.True(t, r.Complete)

	sr, err := c.Store.GetSearch(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, "done", sr.State)
	assert.Equal(t, 1, sr.MatchCount)
	assert.Equal(t, task.Plan().Fingerprint, sr.Fingerprint)
}

func TestTaskOrthographyPair(t *testing.T) {
	c := newCorpus(t)
	tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("The", "Cat", "dog", "ran")})

	m := ir.Matrix{Columns: []ir.Column{
		col(1, schema.OrthographyLayer, pattern("cat")),
		col(0, schema.OrthographyLayer, pattern("dog")),
	}}
	task, rows := search(t, c, m)

	assert.Equal(t, compiler.StrategyOrthography, task.Plan().Strategy)
	require.Len(t, rows, 1)
	assert.Equal(t, tr.Words[0][1], rows[0].FirstWordID.Int64)
	assert.Equal(t, tr.Words[0][2], rows[0].LastWordID.Int64)
}

func TestTaskAdjacency(t *testing.T) {
	tests := []struct {
		name  string
		words []string
		adj   int
		want  int
	}{
		{"gap of four within four", words("the", "cat", "sat", "on", "the", "dog"), 4, 1},
		{"gap of four beyond three", words("the", "cat", "sat", "on", "the", "dog"), 3, 0},
		{"gap of four beyond one", words("the", "cat", "sat", "on", "the", "dog"), 1, 0},
		{"gap of two within two", words("the", "cat", "sat", "dog"), 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCorpus(t)
			c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: tt.words})
			m := ir.Matrix{Columns: []ir.Column{
				col(tt.adj, schema.WordLayer, pattern("cat")),
				col(0, schema.WordLayer, pattern("dog")),
			}}
			_, rows := search(t, c, m)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestTaskAbsence(t *testing.T) {
	c := newCorpus(t)
	bare := c.Add("a.trs", testutil.Utterance{
		Speaker: "ann", Words: words("the", "cat"),
		Layers: map[string][]string{"pos": {"D", ""}},
	})
	c.Add("b.trs", testutil.Utterance{
		Speaker: "ann", Words: words("a", "cat"),
		Layers: map[string][]string{"pos": {"D", "N"}},
	})

	m := ir.Matrix{Columns: []ir.Column{
		col(0, schema.WordLayer, pattern("cat"), "pos", ir.LayerMatch{Pattern: ".+", Not: true}),
	}}
	_, rows := search(t, c, m)
	require.Len(t, rows, 1)
	assert.Equal(t, bare.Words[0][1], rows[0].FirstWordID.Int64)
}

func TestTaskRanksBySpeakerThenTranscript(t *testing.T) {
	c := newCorpus(t)
	c.Add("b.trs",
		testutil.Utterance{Speaker: "zoe", Words: words("cat")},
		testutil.Utterance{Speaker: "ann", Start: 5, Words: words("cat", "cat")},
	)
	c.Add("a.trs", testutil.Utterance{Speaker: "zoe", Words: words("cat")})

	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}
	_, rows := search(t, c, m)
	require.Len(t, rows, 4)

	var order []string
	for i, r := range rows {
		assert.Equal(t, int64(i+1), r.Rank)
		order = append(order, r.TranscriptID)
	}
	assert.Equal(t, []string{"b.trs", "b.trs", "a.trs", "b.trs"}, order)
	assert.Less(t, rows[0].StartOffset.Float64, rows[1].StartOffset.Float64)
}

func TestTaskMaxMatches(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "cat", "cat")})

	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}, MaxMatches: 2}
	_, rows := search(t, c, m)
	assert.Len(t, rows, 2)
}

func TestTaskSegmentChainStaysInWord(t *testing.T) {
	tests := []struct {
		name          string
		first, second string
		want          int
	}{
		{"within a word", "a", "t", 2},
		{"across a word boundary", "t", "s", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCorpus(t)
			c.Add("a.trs", testutil.Utterance{
				Speaker:  "ann",
				Words:    words("cat", "sat"),
				Segments: [][]string{{"k", "a", "t"}, {"s", "a", "t"}},
			})
			m := ir.Matrix{Columns: []ir.Column{
				col(1, schema.SegmentLayer, pattern(tt.first)),
				col(0, schema.SegmentLayer, pattern(tt.second)),
			}}
			_, rows := search(t, c, m)
			assert.Len(t, rows, tt.want)
		})
	}
}

func TestTaskMaxMatchesAfterDedup(t *testing.T) {
	c := newCorpus(t)
	tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("a", "a", "x", "x")})

	// Both a's reach the first x, so the first two candidates share a target.
	m := ir.Matrix{
		Columns: []ir.Column{
			col(2, schema.WordLayer, pattern("a")),
			col(0, schema.WordLayer, ir.LayerMatch{Pattern: "x", Target: true}),
		},
		MaxMatches: 2,
	}
	_, rows := search(t, c, m)
	require.Len(t, rows, 2)
	assert.Equal(t, tr.Words[0][2], rows[0].LastWordID.Int64)
	assert.Equal(t, tr.Words[0][3], rows[1].LastWordID.Int64)
}

func TestTaskOverlapFilter(t *testing.T) {
	setup := func(t *testing.T) *testutil.Corpus {
		c := newCorpus(t)
		// bob talks over three of ann's four seconds.
		c.Add("a.trs",
			testutil.Utterance{Speaker: "ann", Words: words("the", "cat", "sat", "on")},
			testutil.Utterance{Speaker: "bob", Start: 1, Step: 1.5, Words: words("yes", "no")},
		)
		return c
	}
	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}

	t.Run("excluded above threshold", func(t *testing.T) {
		c := setup(t)
		_, rows := search(t, c, m, &OverlapFilter{MaxPercent: 50, Schema: c.Schema})
		assert.Empty(t, rows)
	})
	t.Run("kept below threshold", func(t *testing.T) {
		c := setup(t)
		_, rows := search(t, c, m, &OverlapFilter{MaxPercent: 90, Schema: c.Schema})
		assert.Len(t, rows, 1)
	})
}

func TestTaskTranscriptCap(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "cat", "cat")})
	c.Add("b.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "cat")})

	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}
	task, rows := search(t, c, m, &TranscriptCap{PerTranscript: 1})
	require.Len(t, rows, 2)
	assert.Equal(t, "a.trs", rows[0].TranscriptID)
	assert.Equal(t, "b.trs", rows[1].TranscriptID)
	assert.Equal(t, 2, task.Matches())
}

func TestTaskFiltersCompose(t *testing.T) {
	c := newCorpus(t)
	// The first cat overlaps with bob; the cap then counts only kept rows.
	c.Add("a.trs",
		testutil.Utterance{Speaker: "ann", Words: words("cat")},
		testutil.Utterance{Speaker: "bob", Words: words("no")},
		testutil.Utterance{Speaker: "ann", Start: 5, Words: words("cat")},
	)
	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}
	_, rows := search(t, c, m,
		&OverlapFilter{MaxPercent: 50, Schema: c.Schema},
		&TranscriptCap{PerTranscript: 1},
	)
	require.Len(t, rows, 1)
	assert.Equal(t, 5.0, rows[0].StartOffset.Float64)
}

func TestTaskSpanBackfill(t *testing.T) {
	c := newCorpus(t)
	tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("the", "cat", "sat", "on")})
	contained := c.Span(tr, "topic", "animals", 1, 3)
	c.Span(tr, "topic", "animals", 10, 11)
	empty := c.Add("b.trs")
	c.Span(empty, "topic", "animals", 0, 1)

	m := ir.Matrix{Columns: []ir.Column{col(0, "topic", pattern("animals"))}}
	task, rows := search(t, c, m)
	assert.Equal(t, compiler.StrategySpan, task.Plan().Strategy)
	require.Len(t, rows, 2)

	// Contained words.
	assert.Equal(t, contained, rows[0].TargetAnnotationID.Int64)
	assert.Equal(t, tr.Words[0][1], rows[0].FirstWordID.Int64)
	assert.Equal(t, tr.Words[0][2], rows[0].LastWordID.Int64)
	assert.Equal(t, tr.Turns[0], rows[0].TurnAnnotationID.Int64)
	assert.Equal(t, tr.Speakers["ann"], rows[0].SpeakerNumber.Int64)

	// Nearest word by start offset.
	assert.Equal(t, tr.Words[0][3], rows[1].FirstWordID.Int64)
	assert.Equal(t, tr.Words[0][3], rows[1].LastWordID.Int64)
}

func TestTaskSpanAnchorExactSkipsNearestWord(t *testing.T) {
	c := newCorpus(t)
	tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("the", "cat", "sat", "on")})
	c.Span(tr, "topic", "animals", 1, 3)
	c.Span(tr, "topic", "animals", 10, 11)

	m := ir.Matrix{Columns: []ir.Column{
		col(0, "topic", ir.LayerMatch{Pattern: "animals", AnchorStart: true}),
	}}
	_, rows := search(t, c, m)
	require.Len(t, rows, 1)
	assert.Equal(t, tr.Words[0][1], rows[0].FirstWordID.Int64)
}

func TestTaskSpanMaxMatchesAfterBackfill(t *testing.T) {
	c := newCorpus(t)
	empty := c.Add("0.trs")
	tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("the", "cat", "sat", "on")})
	c.Span(empty, "topic", "animals", 0, 1)
	c.Span(tr, "topic", "animals", 0, 1)
	c.Span(tr, "topic", "animals", 2, 3)

	m := ir.Matrix{Columns: []ir.Column{col(0, "topic", pattern("animals"))}, MaxMatches: 1}
	_, rows := search(t, c, m)
	require.Len(t, rows, 1)
	assert.Equal(t, tr.Words[0][0], rows[0].FirstWordID.Int64)
}

func TestTaskDedupKeepsFirstTarget(t *testing.T) {
	c := newCorpus(t)
	tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("the", "cat", "sat")})

	// Both "the cat" and "cat sat" target the cat.
	m := ir.Matrix{Columns: []ir.Column{
		col(2, schema.WordLayer, ir.LayerMatch{Pattern: "the|cat"}),
		col(0, schema.WordLayer, ir.LayerMatch{Pattern: "cat|sat", Target: true}),
	}}
	_, rows := search(t, c, m)
	targets := map[string]bool{}
	for _, r := range rows {
		assert.False(t, targets[r.TargetAnnotationUID.String], "duplicate target %s", r.TargetAnnotationUID.String)
		targets[r.TargetAnnotationUID.String] = true
	}
	assert.Len(t, rows, 2)
	assert.Equal(t, tr.Words[0][0], rows[0].FirstWordID.Int64)
}

func TestTaskEmptyScopeFails(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat")})

	m := ir.Matrix{
		Columns:         []ir.Column{col(0, schema.WordLayer, pattern("cat"))},
		TranscriptQuery: "/nothing.*/.test(id)",
	}
	task := NewTask("search-1", c.Store, m, Options{Schema: c.Schema})
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsEmptyScope(err))
	assert.False(t, IsCancelled(err))
	assert.Equal(t, StateFailed, task.State())
	assert.Equal(t, PhaseScope, task.Phase())
	assert.Error(t, task.Err())

	sr, err := c.Store.GetSearch(context.Background(), "search-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", sr.State)
}

func TestTaskCompilationErrorFails(t *testing.T) {
	c := newCorpus(t)
	task := NewTask("search-1", c.Store, ir.Matrix{}, Options{Schema: c.Schema})
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.True(t, compiler.IsCompilationError(err))
	assert.Equal(t, StateFailed, task.State())

	_, err = c.Store.GetSearch(context.Background(), "search-1")
	assert.ErrorIs(t, err, store.ErrSearchNotFound)
}

func TestTaskCancelBeforeRun(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat")})
	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}

	task := NewTask("search-1", c.Store, m, Options{Schema: c.Schema})
	task.Cancel()
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, StateCancelled, task.State())
	assert.NoError(t, task.Err())
	assert.Less(t, task.Percent(), 100)
}

// cancelOnKeep cancels its task from inside the filter phase, after the
// rows have been promoted.
type cancelOnKeep struct{ task *Task }

func (f *cancelOnKeep) Name() string { return "cancel" }
func (f *cancelOnKeep) Clone() Filter { return f }
func (f *cancelOnKeep) Keep(context.Context, *store.Store, store.Result) (bool, error) {
	f.task.Cancel()
	return true, nil
}

func TestTaskCancelRemovesDurableRows(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "cat")})
	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}

	f := &cancelOnKeep{}
	task := NewTask("search-1", c.Store, m, Options{Schema: c.Schema, Filters: []Filter{f}})
	f.task = task
	err := task.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, StateCancelled, task.State())
	assert.NoError(t, task.Err())

	ctx := context.Background()
	n, err := c.Store.CountResults(ctx, "search-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	sr, err := c.Store.GetSearch(ctx, "search-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", sr.State)
}

func TestTaskCancelDuringMatch(t *testing.T) {
	c := newCorpus(t)
	long := make([]string, 2000)
	for i := range long {
		long[i] = "w"
	}
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Step: 0.1, Words: long})

	// Three columns with a wide gap keep the insert busy for long enough
	// to be interrupted.
	m := ir.Matrix{Columns: []ir.Column{
		col(400, schema.WordLayer, pattern("w")),
		col(400, schema.WordLayer, pattern("w")),
		col(0, schema.WordLayer, pattern("w")),
	}}
	task := NewTask("search-1", c.Store, m, Options{Schema: c.Schema})
	errc := make(chan error, 1)
	go func() { errc <- task.Run(context.Background()) }()

	require.Eventually(t, func() bool { return task.Phase() == PhaseMatch }, 10*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	task.Cancel()

	var err error
	select {
	case err = <-errc:
	case <-time.After(10 * time.Second):
		t.Fatal("match statement was not interrupted")
	}
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, StateCancelled, task.State())
	assert.Equal(t, PhaseMatch, task.Phase())
	assert.NoError(t, task.Err())

	ctx := context.Background()
	n, err := c.Store.CountResults(ctx, "search-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	sr, err := c.Store.GetSearch(ctx, "search-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", sr.State)
}

func TestTaskUtteranceAnchoring(t *testing.T) {
	atStart := ir.LayerMatch{AnchorStart: true}
	atEnd := ir.LayerMatch{AnchorEnd: true}
	tests := []struct {
		name    string
		columns []ir.Column
		first   int // index of the first matched word, or -1 for no match
		last    int
	}{
		{
			name:    "start anchored first column",
			columns: []ir.Column{col(0, schema.WordLayer, pattern("the"), schema.UtteranceLayer, atStart)},
			first:   0,
			last:    0,
		},
		{
			name: "end anchored last column",
			columns: []ir.Column{
				col(1, schema.WordLayer, pattern("the")),
				col(0, schema.WordLayer, pattern("dog"), schema.UtteranceLayer, atEnd),
			},
			first: 2,
			last:  3,
		},
		{
			name: "end anchored middle column",
			columns: []ir.Column{
				col(1, schema.WordLayer, pattern("the")),
				col(1, schema.WordLayer, pattern("cat"), schema.UtteranceLayer, atEnd),
				col(0, schema.WordLayer, pattern("the")),
			},
			first: -1,
		},
		{
			name:    "end anchored word inside the utterance",
			columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"), schema.UtteranceLayer, atEnd)},
			first:   -1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCorpus(t)
			tr := c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("the", "cat", "the", "dog")})

			_, rows := search(t, c, ir.Matrix{Columns: tt.columns})
			if tt.first < 0 {
				assert.Empty(t, rows)
				return
			}
			require.Len(t, rows, 1)
			assert.Equal(t, tr.Words[0][tt.first], rows[0].FirstWordID.Int64)
			assert.Equal(t, tr.Words[0][tt.last], rows[0].LastWordID.Int64)
		})
	}
}

func TestTaskRunsOnce(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat")})
	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}

	task := NewTask("search-1", c.Store, m, Options{Schema: c.Schema})
	require.NoError(t, task.Run(context.Background()))
	assert.Error(t, task.Run(context.Background()))

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}
