package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/corpusql/internal/ir"
)

// Snapshot captures the outcome of a scenario execution.
type Snapshot struct {
	ScenarioName string  `json:"scenario_name"`
	State        string  `json:"state"`
	Strategy     string  `json:"strategy,omitempty"`
	Matches      []Match `json:"matches"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: name,
		State:        result.State,
		Strategy:     result.Strategy,
		Matches:      result.Matches,
	}
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, slices and maps.
func (s Snapshot) toCanonicalMap() map[string]any {
	matches := make([]any, len(s.Matches))
	for i, m := range s.Matches {
		match := map[string]any{
			"rank":       m.Rank,
			"transcript": m.Transcript,
			"id":         m.ID,
		}
		if m.Speaker != "" {
			match["speaker"] = m.Speaker
		}
		if m.FirstWord != "" {
			match["first_word"] = m.FirstWord
		}
		if m.LastWord != "" {
			match["last_word"] = m.LastWord
		}
		matches[i] = match
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"state":         s.State,
		"matches":       matches,
	}
	if s.Strategy != "" {
		result["strategy"] = s.Strategy
	}
	return result
}

// Marshal renders the snapshot as canonical JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
