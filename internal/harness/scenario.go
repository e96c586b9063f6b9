package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/corpusql/internal/compiler"
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/testutil"
)

// DefaultSearchID is the search id used when a scenario names none.
const DefaultSearchID = "scenario"

// Scenario defines a conformance test scenario: a small corpus, one
// search over it and assertions on the matches it returns.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema adds layers to the standard ones.
	Schema schema.File `yaml:"schema,omitempty"`

	// Transcripts are written in order, so earlier transcripts get lower
	// graph ids.
	Transcripts []TranscriptFixture `yaml:"transcripts"`

	// Search is the search under test.
	Search SearchStep `yaml:"search"`

	// Assertions validate the matches of a finished search.
	Assertions []Assertion `yaml:"assertions"`

	// SearchID fixes the search id for deterministic match output.
	// Empty means DefaultSearchID.
	SearchID string `yaml:"search_id,omitempty"`
}

// TranscriptFixture is one transcript of the scenario corpus.
type TranscriptFixture struct {
	Name       string               `yaml:"name"`
	Utterances []testutil.Utterance `yaml:"utterances"`
	Spans      []SpanFixture        `yaml:"spans,omitempty"`
	Attributes []AttributeFixture   `yaml:"attributes,omitempty"`
}

// SpanFixture is a free-form or meta annotation between two offsets.
type SpanFixture struct {
	Layer string  `yaml:"layer"`
	Label string  `yaml:"label"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// AttributeFixture is a transcript attribute, or a participant attribute
// when Speaker is set.
type AttributeFixture struct {
	Layer   string `yaml:"layer"`
	Speaker string `yaml:"speaker,omitempty"`
	Value   string `yaml:"value"`
}

// SearchStep configures the search.
type SearchStep struct {
	Matrix ir.Matrix `yaml:"matrix"`

	// Strategy forces a strategy by name. Empty means the automatic choice.
	Strategy string `yaml:"strategy,omitempty"`

	// OverlapMaxPercent enables the overlap filter when positive.
	OverlapMaxPercent float64 `yaml:"overlap_max_percent,omitempty"`

	// PerTranscript enables the per-transcript cap when positive.
	PerTranscript int `yaml:"per_transcript,omitempty"`

	// Expect checks how the search ends. Nil means it must finish.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies how the search ends.
type ExpectClause struct {
	// State is the expected final state: done, failed or cancelled.
	State string `yaml:"state"`

	// Error is a substring of the expected error message.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the matches of the search.
type Assertion struct {
	// Type specifies the assertion type:
	// - "count": Check the number of matches
	// - "transcripts": Check the transcript of each match, in rank order
	// - "speakers": Check the speaker of each match, in rank order
	// - "first_words": Check the first word label of each match, in rank order
	// - "strategy": Check the strategy the search ran with
	Type string `yaml:"type"`

	// Count is the expected number of matches (used by count).
	Count int `yaml:"count,omitempty"`

	// Values are the expected values in rank order.
	Values []string `yaml:"values,omitempty"`

	// Value is the expected strategy name (used by strategy).
	Value string `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertCount       = "count"
	AssertTranscripts = "transcripts"
	AssertSpeakers    = "speakers"
	AssertFirstWords  = "first_words"
	AssertStrategy    = "strategy"
)

// LoadScenario loads and validates a scenario from a YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.SearchID == "" {
		scenario.SearchID = DefaultSearchID
	}
	scenario.Search.Matrix.Normalize()
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Transcripts) == 0 {
		return fmt.Errorf("at least one transcript is required")
	}
	seen := map[string]bool{}
	for i, tr := range s.Transcripts {
		if tr.Name == "" {
			return fmt.Errorf("transcripts[%d]: name is required", i)
		}
		if seen[tr.Name] {
			return fmt.Errorf("transcripts[%d]: duplicate name %q", i, tr.Name)
		}
		seen[tr.Name] = true
		for j, sp := range tr.Spans {
			if sp.Layer == "" {
				return fmt.Errorf("transcripts[%d].spans[%d]: layer is required", i, j)
			}
			if sp.End < sp.Start {
				return fmt.Errorf("transcripts[%d].spans[%d]: end before start", i, j)
			}
		}
		for j, a := range tr.Attributes {
			if a.Layer == "" {
				return fmt.Errorf("transcripts[%d].attributes[%d]: layer is required", i, j)
			}
		}
	}

	if s.Search.Strategy != "" {
		if _, err := compiler.ParseStrategy(s.Search.Strategy); err != nil {
			return fmt.Errorf("search.strategy: %w", err)
		}
	}
	if p := s.Search.OverlapMaxPercent; p < 0 || p > 100 {
		return fmt.Errorf("search.overlap_max_percent: must be within [0, 100], got %v", p)
	}
	if s.Search.PerTranscript < 0 {
		return fmt.Errorf("search.per_transcript: must not be negative")
	}
	if e := s.Search.Expect; e != nil {
		switch e.State {
		case "done", "failed", "cancelled":
		default:
			return fmt.Errorf("search.expect.state: unknown state %q", e.State)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTranscripts, AssertSpeakers, AssertFirstWords:
		if a.Values == nil {
			return fmt.Errorf("assertions[%d]: values list is required for %s", index, a.Type)
		}
	case AssertStrategy:
		if _, err := compiler.ParseStrategy(a.Value); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
