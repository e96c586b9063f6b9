package ir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestLayerMatchClassification(t *testing.T) {
	assert.True(t, LayerMatch{Pattern: ".+", Not: true}.IsAbsence())
	assert.True(t, LayerMatch{Pattern: ".*", Not: true}.IsAbsence())
	assert.False(t, LayerMatch{Pattern: ".+"}.IsAbsence())
	assert.False(t, LayerMatch{Pattern: "cat", Not: true}.IsAbsence())

	assert.True(t, LayerMatch{}.IsEmpty())
	assert.False(t, LayerMatch{}.Constrains())
	assert.True(t, LayerMatch{Target: true}.Constrains())
	assert.True(t, LayerMatch{AnchorStart: true}.IsAnchorOnly())
	assert.False(t, LayerMatch{AnchorStart: true, Pattern: "x"}.IsAnchorOnly())
	assert.True(t, LayerMatch{Min: ptr(1.0)}.IsRange())
	assert.False(t, LayerMatch{Min: ptr(1.0)}.IsRegex())
}

func TestColumnAdjacency(t *testing.T) {
	assert.Equal(t, 1, Column{}.Adjacency())
	assert.Equal(t, 1, Column{Adj: 1}.Adjacency())
	assert.Equal(t, 3, Column{Adj: 3}.Adjacency())
}

func TestColumnLayerIDs(t *testing.T) {
	c := Column{Layers: map[string][]LayerMatch{
		"segment":     {{Pattern: "a"}},
		"orthography": {{Pattern: "b"}},
		"zzz":         {{Pattern: "c"}},
		"pos":         {{Pattern: "d"}},
	}}
	order := map[string]int{"orthography": 5, "segment": 6, "pos": 2}
	ids := c.LayerIDs(func(id string) int {
		if r, ok := order[id]; ok {
			return r
		}
		return -1
	})
	assert.Equal(t, []string{"pos", "orthography", "segment", "zzz"}, ids)
}

func TestFingerprintIgnoresMapOrderAndNormalization(t *testing.T) {
	a := Matrix{Columns: []Column{{Layers: map[string][]LayerMatch{
		"orthography": {{Pattern: "caf\u00e9"}},
		"pos":         {{Pattern: "N.*"}},
	}}}}
	b := Matrix{Columns: []Column{{Layers: map[string][]LayerMatch{
		"pos":         {{Pattern: "N.*"}},
		"orthography": {{Pattern: "cafe\u0301"}},
	}}}}
	fa, err := Fingerprint(a)
	require.NoError(t, err)
	assert.Len(t, fa, 64)
	assert.Equal(t, fa, MustFingerprint(b))
}

func TestFingerprintChangesWithConstraints(t *testing.T) {
	base := Matrix{Columns: []Column{{Layers: map[string][]LayerMatch{"orthography": {{Pattern: "cat"}}}}}}
	fp := MustFingerprint(base)

	adj := base
	adj.Columns = []Column{{Layers: base.Columns[0].Layers, Adj: 2}}
	assert.NotEqual(t, fp, MustFingerprint(adj))

	rng := Matrix{Columns: []Column{{Layers: map[string][]LayerMatch{"orthography": {{Min: ptr(1.5)}}}}}}
	rng2 := Matrix{Columns: []Column{{Layers: map[string][]LayerMatch{"orthography": {{Min: ptr(2.5)}}}}}}
	assert.NotEqual(t, MustFingerprint(rng), MustFingerprint(rng2))

	conf := base
	conf.MinAnchorConfidence = ptr(50)
	assert.NotEqual(t, fp, MustFingerprint(conf))
}

func TestLoadMatrixFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.yaml")
	doc := `
columns:
  - layers:
      orthography:
        - pattern: the
          anchor_start: true
    adj: 2
  - layers:
      orthography:
        - pattern: cat
      segment:
        - pattern: "k"
          target: true
participant_query: "labels('participant_gender').includes('F')"
main_participant_only: true
min_anchor_confidence: 50
max_matches: 10
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := LoadMatrixFile(path)
	require.NoError(t, err)
	require.Len(t, m.Columns, 2)
	assert.Equal(t, 2, m.Columns[0].Adj)
	assert.Equal(t, "orthography", m.Columns[0].Layers["orthography"][0].ID)
	assert.True(t, m.Columns[0].Layers["orthography"][0].AnchorStart)
	assert.True(t, m.Columns[1].Layers["segment"][0].Target)
	assert.Equal(t, "segment", m.Columns[1].Layers["segment"][0].ID)
	assert.True(t, m.MainParticipantOnly)
	require.NotNil(t, m.MinAnchorConfidence)
	assert.Equal(t, 50, *m.MinAnchorConfidence)
	assert.Equal(t, 10, m.MaxMatches)
	assert.True(t, m.HasFilters())
}

func TestLoadMatrixFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	doc := `{"columns":[{"layers":{"word":[{"min":1,"max":3}]}}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := LoadMatrixFile(path)
	require.NoError(t, err)
	lm := m.Columns[0].Layers["word"][0]
	require.NotNil(t, lm.Min)
	assert.Equal(t, 1.0, *lm.Min)
	assert.Equal(t, 3.0, *lm.Max)
	assert.False(t, m.HasFilters())
}

func TestLoadMatrixRejectsUnknownFields(t *testing.T) {
	_, err := ParseMatrixYAML([]byte("columns: []\nbogus: 1\n"))
	assert.Error(t, err)
	_, err = ParseMatrixJSON([]byte(`{"columns":[],"bogus":1}`))
	assert.Error(t, err)
}
