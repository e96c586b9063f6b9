package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCommand_Text(t *testing.T) {
	matrix := writeFile(t, t.TempDir(), "cat.yaml", catMatrix)

	out, err := runCLI(t, "compile", matrix)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled with the general strategy")
	assert.Contains(t, out, "Target: column 0, layer word")
	assert.Contains(t, out, "INSERT INTO _result")
}

func TestCompileCommand_JSON(t *testing.T) {
	matrix := writeFile(t, t.TempDir(), "cat.yaml", catMatrix)

	out, err := runCLI(t, "--format", "json", "compile", matrix)
	require.NoError(t, err)

	var result CompilationResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "general", result.Strategy)
	assert.Equal(t, "word", result.TargetLayer)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Contains(t, result.Params, "^(cat)$")
	assert.Empty(t, result.Scope)
}

func TestCompileCommand_ScopeChecks(t *testing.T) {
	matrix := writeFile(t, t.TempDir(), "filtered.yaml", catMatrix+"transcript_query: \"/a.*/.test(id)\"\n")

	out, err := runCLI(t, "--format", "json", "compile", matrix)
	require.NoError(t, err)

	var result CompilationResult
	decodeData(t, out, &result)
	require.Len(t, result.Scope, 1)
	assert.Equal(t, "transcript", result.Scope[0].Name)
}

func TestCompileCommand_OutputFile(t *testing.T) {
	dir := t.TempDir()
	matrix := writeFile(t, dir, "cat.yaml", catMatrix)
	output := filepath.Join(dir, "cat.sql")

	out, err := runCLI(t, "compile", matrix, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote SQL to "+output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INSERT INTO _result")
}

func TestCompileCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	valid := writeFile(t, dir, "cat.yaml", catMatrix)
	empty := writeFile(t, dir, "empty.yaml", "columns: []\n")
	broken := writeFile(t, dir, "broken.yaml", "columns: [{ layers: { word: [{ nope: 1 }] } }]\n")

	tests := []struct {
		name     string
		args     []string
		exitCode int
		code     string
	}{
		{"missing file", []string{filepath.Join(dir, "missing.yaml")}, ExitCommandError, ErrCodeNotFound},
		{"unparseable", []string{broken}, ExitCommandError, ErrCodeParseFailed},
		{"invalid matrix", []string{empty}, ExitFailure, ErrCodeInvalidMatrix},
		{"strategy does not apply", []string{valid, "--strategy", "span"}, ExitFailure, ErrCodeInvalidMatrix},
		{"unknown strategy", []string{valid, "--strategy", "fastest"}, ExitCommandError, ErrCodeConfig},
		{"missing schema", []string{valid, "--schema", filepath.Join(dir, "missing.cue")}, ExitCommandError, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, append([]string{"--format", "json", "compile"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))

			resp := decodeData(t, out, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
