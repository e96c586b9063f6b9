package cli

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCommand_JSON(t *testing.T) {
	db := corpusDB(t)
	matrix := writeFile(t, t.TempDir(), "cat.yaml", catMatrix)

	out, err := runCLI(t, "--format", "json", "search", matrix, "--db", db)
	require.NoError(t, err)

	var result SearchResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, result.SearchID)
	assert.Equal(t, "general", result.Strategy)
	assert.Equal(t, "done", result.State)
	assert.Equal(t, 3, result.Total)
	require.Len(t, result.Matches, 3)
	for i, m := range result.Matches {
		assert.Equal(t, int64(i+1), m.Rank)
	}
	assert.True(t, strings.HasPrefix(result.Matches[0].ID, "a.trs;"), result.Matches[0].ID)
	assert.True(t, strings.HasPrefix(result.Matches[2].ID, "b.trs;"), result.Matches[2].ID)
}

func TestSearchCommand_Text(t *testing.T) {
	db := corpusDB(t)
	matrix := writeFile(t, t.TempDir(), "cat.yaml", catMatrix)

	out, err := runCLI(t, "search", matrix, "--db", db, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "(general strategy): 3 match(es)")
	assert.Contains(t, out, "a.trs;")
	assert.Contains(t, out, "... 2 more")
}

func TestSearchCommand_PerTranscript(t *testing.T) {
	db := corpusDB(t)
	matrix := writeFile(t, t.TempDir(), "cat.yaml", catMatrix)

	out, err := runCLI(t, "--format", "json", "search", matrix, "--db", db, "--per-transcript", "1")
	require.NoError(t, err)

	var result SearchResult
	decodeData(t, out, &result)
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Matches, 2)
	assert.True(t, strings.HasPrefix(result.Matches[0].ID, "a.trs;"))
	assert.True(t, strings.HasPrefix(result.Matches[1].ID, "b.trs;"))
}

func TestSearchCommand_EmptyScope(t *testing.T) {
	db := corpusDB(t)
	matrix := writeFile(t, t.TempDir(), "none.yaml", catMatrix+"transcript_query: \"/zzz.*/.test(id)\"\n")

	out, err := runCLI(t, "--format", "json", "search", matrix, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeData(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeEmptyScope, resp.Error.Code)
}

func TestSearchCommand_InvalidMatrix(t *testing.T) {
	db := corpusDB(t)
	matrix := writeFile(t, t.TempDir(), "empty.yaml", "columns: []\n")

	out, err := runCLI(t, "--format", "json", "search", matrix, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeData(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "matrix has no columns")
}

func TestResultsCommand_Pages(t *testing.T) {
	db := corpusDB(t)
	matrix := writeFile(t, t.TempDir(), "cat.yaml", catMatrix)

	out, err := runCLI(t, "--format", "json", "search", matrix, "--db", db)
	require.NoError(t, err)
	var search SearchResult
	decodeData(t, out, &search)

	out, err = runCLI(t, "--format", "json", "results", search.SearchID, "--db", db, "--offset", "1", "--limit", "1")
	require.NoError(t, err)

	var page SearchResult
	decodeData(t, out, &page)
	assert.Equal(t, search.SearchID, page.SearchID)
	assert.Equal(t, "general", page.Strategy)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Matches, 1)
	assert.Equal(t, search.Matches[1], page.Matches[0])
}

func TestResultsCommand_Text(t *testing.T) {
	db := corpusDB(t)
	matrix := writeFile(t, t.TempDir(), "cat.yaml", catMatrix)

	out, err := runCLI(t, "--format", "json", "search", matrix, "--db", db)
	require.NoError(t, err)
	var search SearchResult
	decodeData(t, out, &search)

	out, err = runCLI(t, "results", search.SearchID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Search %s (general strategy): 3 match(es)", search.SearchID))
	for _, m := range search.Matches {
		assert.Contains(t, out, m.ID)
	}
}

func TestResultsCommand_UnknownSearch(t *testing.T) {
	db := corpusDB(t)

	out, err := runCLI(t, "--format", "json", "results", "nope", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeData(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownSearch, resp.Error.Code)
}
