package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
schema:
  layers:
    - { id: topic, scope: freeform, alignment: interval, key: 40, parent: transcript }
transcripts:
  - name: a.trs
    utterances:
      - speaker: ann
        main: true
        start: 1.5
        step: 0.5
        words: [the, cat]
    spans:
      - { layer: topic, label: pets, start: 1.5, end: 2.5 }
search:
  matrix:
    columns:
      - layers:
          word: [{ pattern: the }]
        adj: 2
      - layers:
          word: [{ pattern: cat, target: true }]
  strategy: general
  per_transcript: 1
assertions:
  - type: count
    count: 1
  - type: first_words
    values: [the]
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, DefaultSearchID, scenario.SearchID)
	require.Len(t, scenario.Schema.Layers, 1)
	assert.Equal(t, "topic", scenario.Schema.Layers[0].ID)

	require.Len(t, scenario.Transcripts, 1)
	tr := scenario.Transcripts[0]
	require.Len(t, tr.Utterances, 1)
	assert.True(t, tr.Utterances[0].Main)
	assert.Equal(t, 1.5, tr.Utterances[0].Start)
	assert.Equal(t, 0.5, tr.Utterances[0].Step)
	assert.Equal(t, []string{"the", "cat"}, tr.Utterances[0].Words)
	assert.Equal(t, SpanFixture{Layer: "topic", Label: "pets", Start: 1.5, End: 2.5}, tr.Spans[0])

	m := scenario.Search.Matrix
	require.Len(t, m.Columns, 2)
	assert.Equal(t, 2, m.Columns[0].Adj)
	assert.True(t, m.Columns[1].Layers["word"][0].Target)
	assert.Equal(t, "word", m.Columns[1].Layers["word"][0].ID)
	assert.Equal(t, "general", scenario.Search.Strategy)
	assert.Equal(t, 1, scenario.Search.PerTranscript)
	assert.Len(t, scenario.Assertions, 2)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	corpus := `
transcripts:
  - name: a.trs
    utterances: [{ speaker: ann, words: [cat] }]
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", corpus, "name is required"},
		{"no transcripts", "name: x\n", "at least one transcript is required"},
		{"unnamed transcript", "name: x\ntranscripts:\n  - utterances: []\n", "transcripts[0]: name is required"},
		{"duplicate transcript", "name: x\ntranscripts:\n  - name: a\n  - name: a\n", `duplicate name "a"`},
		{"unknown field", "name: x\nflow_token: y\n" + corpus, "field flow_token not found"},
		{"span without layer", "name: x\ntranscripts:\n  - name: a\n    spans: [{ label: p, start: 0, end: 1 }]\n", "layer is required"},
		{"span backwards", "name: x\ntranscripts:\n  - name: a\n    spans: [{ layer: t, start: 2, end: 1 }]\n", "end before start"},
		{"attribute without layer", "name: x\ntranscripts:\n  - name: a\n    attributes: [{ value: v }]\n", "attributes[0]: layer is required"},
		{"unknown strategy", "name: x\nsearch: { strategy: fast }\n" + corpus, `unknown strategy "fast"`},
		{"overlap out of range", "name: x\nsearch: { overlap_max_percent: 120 }\n" + corpus, "overlap_max_percent"},
		{"negative cap", "name: x\nsearch: { per_transcript: -1 }\n" + corpus, "per_transcript"},
		{"unknown state", "name: x\nsearch: { expect: { state: lost } }\n" + corpus, `unknown state "lost"`},
		{"assertion without type", "name: x\nassertions: [{ count: 1 }]\n" + corpus, "type is required"},
		{"unknown assertion", "name: x\nassertions: [{ type: trace_contains }]\n" + corpus, `unknown assertion type "trace_contains"`},
		{"values missing", "name: x\nassertions: [{ type: speakers }]\n" + corpus, "values list is required for speakers"},
		{"negative count", "name: x\nassertions: [{ type: count, count: -1 }]\n" + corpus, "count must be non-negative"},
		{"bad strategy assertion", "name: x\nassertions: [{ type: strategy, value: quick }]\n" + corpus, `unknown strategy "quick"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_EmptyValuesAllowed(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: none
search_id: fixed
transcripts:
  - name: a.trs
assertions:
  - type: transcripts
    values: []
`))
	require.NoError(t, err)
	assert.Equal(t, "fixed", scenario.SearchID)
	assert.NotNil(t, scenario.Assertions[0].Values)
}
