package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/store"
	"github.com/roach88/corpusql/internal/testutil"
)

const catMatrix = `columns:
  - layers:
      word: [{ pattern: cat }]
`

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData unmarshals the data of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if v != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// corpusDB writes a small corpus to a SQLite file: "cat" is said twice in
// a.trs and once in b.trs.
func corpusDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	st, err := store.OpenSQLite(ctx, path)
	require.NoError(t, err)
	sc := schema.Default()
	require.NoError(t, st.EnsureLayers(ctx, sc))

	b := testutil.NewBuilder(st, sc)
	_, err = b.Add(ctx, "a.trs",
		testutil.Utterance{Speaker: "ann", Main: true, Words: []string{"the", "cat", "sat"}},
		testutil.Utterance{Speaker: "bob", Start: 5, Words: []string{"a", "cat"}},
	)
	require.NoError(t, err)
	_, err = b.Add(ctx, "b.trs", testutil.Utterance{Speaker: "bob", Words: []string{"cat"}})
	require.NoError(t, err)
	require.NoError(t, st.Close())
	return path
}
