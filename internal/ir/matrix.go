package ir

import "sort"

// LayerMatch is one constraint on one layer at one matrix position.
//
// A constraint is either a regular expression (Pattern, optionally negated)
// or a numeric range [Min, Max) over the label, never both.
type LayerMatch struct {
	// ID is the layer id. It mirrors the key the match is stored under in
	// Column.Layers and is filled in by the loaders.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Not     bool     `json:"not,omitempty" yaml:"not,omitempty"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// AnchorStart requires the match to start where the annotation starts.
	AnchorStart bool `json:"anchor_start,omitempty" yaml:"anchor_start,omitempty"`
	// AnchorEnd requires the match to end where the annotation ends.
	AnchorEnd bool `json:"anchor_end,omitempty" yaml:"anchor_end,omitempty"`

	Target bool `json:"target,omitempty" yaml:"target,omitempty"`
}

// IsRange reports whether the constraint is numeric.
func (m LayerMatch) IsRange() bool {
	return m.Min != nil || m.Max != nil
}

// IsRegex reports whether the constraint is a pattern match.
func (m LayerMatch) IsRegex() bool {
	return m.Pattern != ""
}

// IsAbsence reports whether the constraint means "no annotation on this
// layer here": a negated match-anything pattern.
func (m LayerMatch) IsAbsence() bool {
	return m.Not && (m.Pattern == ".+" || m.Pattern == ".*")
}

// IsEmpty reports whether the constraint restricts nothing at all.
func (m LayerMatch) IsEmpty() bool {
	return m.Pattern == "" && !m.IsRange() && !m.AnchorStart && !m.AnchorEnd
}

// IsAnchorOnly reports whether the constraint only carries anchor flags.
func (m LayerMatch) IsAnchorOnly() bool {
	return m.Pattern == "" && !m.IsRange() && (m.AnchorStart || m.AnchorEnd)
}

// Constrains reports whether the constraint participates in the query: it
// restricts something or is the designated target.
func (m LayerMatch) Constrains() bool {
	return !m.IsEmpty() || m.Target
}

// Column is one position of a matrix.
type Column struct {
	Layers map[string][]LayerMatch `json:"layers" yaml:"layers"`

	// Adj bounds the word-position gap to the next column. 0 and 1 both mean
	// the immediately following word.
	Adj int `json:"adj,omitempty" yaml:"adj,omitempty"`
}

// Adjacency returns the effective adjacency bound (at least 1).
func (c Column) Adjacency() int {
	if c.Adj < 1 {
		return 1
	}
	return c.Adj
}

// LayerIDs returns the layers of the column ordered by order(id), ties and
// unknown layers (order < 0) falling back to the id.
func (c Column) LayerIDs(order func(id string) int) []string {
	ids := make([]string, 0, len(c.Layers))
	for id := range c.Layers {
		ids = append(ids, id)
	}
	rank := func(id string) int {
		if r := order(id); r >= 0 {
			return r
		}
		return int(^uint(0) >> 1)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := rank(ids[i]), rank(ids[j])
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Matrix is a complete sequential search definition.
type Matrix struct {
	Columns []Column `json:"columns" yaml:"columns"`

	// ParticipantQuery is an AGQL filter over participants, e.g.
	// "labels('participant_gender').includes('F')".
	ParticipantQuery string `json:"participant_query,omitempty" yaml:"participant_query,omitempty"`
	// TranscriptQuery is an AGQL filter over transcripts.
	TranscriptQuery string `json:"transcript_query,omitempty" yaml:"transcript_query,omitempty"`

	MainParticipantOnly bool `json:"main_participant_only,omitempty" yaml:"main_participant_only,omitempty"`

	// MinAnchorConfidence, when set, requires both outer anchors of a match
	// to have at least this alignment confidence.
	MinAnchorConfidence *int `json:"min_anchor_confidence,omitempty" yaml:"min_anchor_confidence,omitempty"`

	// MaxMatches caps the number of rows the match phase inserts (0 = no cap).
	MaxMatches int `json:"max_matches,omitempty" yaml:"max_matches,omitempty"`
}

// HasFilters reports whether the matrix restricts participants or transcripts.
func (m Matrix) HasFilters() bool {
	return m.ParticipantQuery != "" || m.TranscriptQuery != "" || m.MainParticipantOnly
}

// Normalize fills LayerMatch.ID from the map keys.
func (m *Matrix) Normalize() {
	for i := range m.Columns {
		for id, matches := range m.Columns[i].Layers {
			for j := range matches {
				matches[j].ID = id
			}
		}
	}
}
