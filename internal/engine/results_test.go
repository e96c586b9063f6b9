package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/testutil"
)

// fiveCats runs a search with five matches and returns its store view.
func fiveCats(t *testing.T) (*testutil.Corpus, *Task) {
	t.Helper()
	c := newCorpus(t)
	c.Add("a.trs", testutil.Utterance{Speaker: "ann", Words: words("cat", "cat", "cat", "cat", "cat")})
	m := ir.Matrix{Columns: []ir.Column{col(0, schema.WordLayer, pattern("cat"))}}
	task, _ := search(t, c, m)
	return c, task
}

func collectRanks(ctx context.Context, res *Results) []int64 {
	var ranks []int64
	for res.Next(ctx) {
		ranks = append(ranks, res.Result().Rank)
	}
	return ranks
}

func TestResultsPages(t *testing.T) {
	c, task := fiveCats(t)
	ctx := context.Background()

	res := NewResults(c.Store, task.ID(), 2)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, collectRanks(ctx, res))
	assert.NoError(t, res.Err())
	assert.False(t, res.Next(ctx))

	n, err := res.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestResultsSeek(t *testing.T) {
	c, task := fiveCats(t)
	ctx := context.Background()

	res := NewResults(c.Store, task.ID(), 2)
	res.Seek(3)
	assert.Equal(t, []int64{4, 5}, collectRanks(ctx, res))

	res.Seek(1)
	require.True(t, res.Next(ctx))
	assert.Equal(t, int64(2), res.Result().Rank)
	assert.Equal(t, "a.trs", res.MatchID().Transcript)
}

func TestResultsRemoveDuringIteration(t *testing.T) {
	c, task := fiveCats(t)
	ctx := context.Background()

	res := NewResults(c.Store, task.ID(), 2)
	require.True(t, res.Next(ctx))
	first := res.Result()
	require.True(t, res.Next(ctx))

	require.NoError(t, c.Store.DeleteResult(ctx, task.ID(), first.MatchNumber))
	assert.Equal(t, []int64{3, 4, 5}, collectRanks(ctx, res))
}

func TestResultsCancel(t *testing.T) {
	c, task := fiveCats(t)
	ctx := context.Background()

	res := NewResults(c.Store, task.ID(), 2)
	require.True(t, res.Next(ctx))
	res.Cancel()
	assert.False(t, res.Next(ctx))
	assert.NoError(t, res.Err())
}

func TestResultsContextDone(t *testing.T) {
	c, task := fiveCats(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewResults(c.Store, task.ID(), 2)
	assert.False(t, res.Next(ctx))
	assert.ErrorIs(t, res.Err(), context.Canceled)
}

func TestResultsEmptySearch(t *testing.T) {
	c := newCorpus(t)
	res := NewResults(c.Store, "missing", 0)
	assert.False(t, res.Next(context.Background()))
	assert.NoError(t, res.Err())
}
