package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/testutil"
)

func newManager(t *testing.T, c *testutil.Corpus) *Manager {
	t.Helper()
	m, err := NewManager(c.Store, 2, testutil.NewSequentialIDs("search"), Options{Schema: c.Schema})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestManagerSubmitAndWait(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "dog", "cat")})
	mgr := newManager(t, c)
	ctx := waitCtx(t)

	id, err := mgr.Submit(ctx, ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}})
	require.NoError(t, err)
	assert.Equal(t, "search-1", id)

	task, err := mgr.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, task.State())

	pct, err := mgr.Percent(id)
	require.NoError(t, err)
	assert.Equal(t, 100, pct)

	res, err := mgr.Results(id)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, collectRanks(ctx, res))
}

func TestManagerSubmitWithFilters(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "dog", "cat")})
	mgr := newManager(t, c)
	ctx := waitCtx(t)

	id, err := mgr.Submit(ctx, ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}},
		&TranscriptCap{PerTranscript: 1})
	require.NoError(t, err)
	task, err := mgr.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Matches())
}

func TestManagerConcurrentSearchesKeepFilterStateApart(t *testing.T) {
	c := newCorpus(t)
	cats := make([]string, 30)
	for i := range cats {
		cats[i] = "cat"
	}
	const transcripts = 20
	for i := range transcripts {
		c.Add(fmt.Sprintf("t%02d.trs", i), testutil.Utterance{Speaker: "ann", Words: cats})
	}

	// One filter value shared by every search through the defaults.
	mgr, err := NewManager(c.Store, 4, testutil.NewSequentialIDs("search"), Options{
		Schema:  c.Schema,
		Filters: []Filter{&TranscriptCap{PerTranscript: 1}},
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	ctx := waitCtx(t)

	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}
	var ids []string
	for range 4 {
		id, err := mgr.Submit(ctx, m)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		task, err := mgr.Wait(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StateDone, task.State(), id)
		assert.Equal(t, transcripts, task.Matches(), id)
	}
}

func TestManagerRemoveMatchAndRemove(t *testing.T) {
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "dog", "cat")})
	mgr := newManager(t, c)
	ctx := waitCtx(t)

	id, err := mgr.Submit(ctx, ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}})
	require.NoError(t, err)
	_, err = mgr.Wait(ctx, id)
	require.NoError(t, err)

	rows, err := c.Store.Results(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NoError(t, mgr.RemoveMatch(ctx, id, rows[0].MatchNumber))
	n, err := c.Store.CountResults(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, mgr.Remove(ctx, id))
	n, err = c.Store.CountResults(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = mgr.Get(id)
	assert.ErrorIs(t, err, ErrUnknownSearch)
	assert.ErrorIs(t, mgr.Cancel(id), ErrUnknownSearch)
}

func TestManagerResultsOfFailedSearch(t *testing.T) {
	c := newCorpus(t)
	mgr := newManager(t, c)
	ctx := waitCtx(t)

	id, err := mgr.Submit(ctx, ir.Matrix{})
	require.NoError(t, err)
	task, err := mgr.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, task.State())

	_, err = mgr.Results(id)
	assert.Error(t, err)
}

func TestManagerUnknownSearch(t *testing.T) {
	c := newCorpus(t)
	mgr := newManager(t, c)

	_, err := mgr.Percent("nope")
	assert.ErrorIs(t, err, ErrUnknownSearch)
	_, err = mgr.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSearch)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	assert.Len(t, UUIDv7Generator{}.Generate(), 36)
}
