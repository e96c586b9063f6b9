package compiler

import (
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
)

// Target identifies the constraint whose annotation is the primary result
// of each match.
type Target struct {
	Column int
	Layer  string
	// Match indexes Column.Layers[Layer]; -1 means the column's word itself.
	Match int
}

// ResolveTarget picks the target of a valid matrix: the constraint marked
// as target, else the first segment constraint, else the first constraint
// that restricts anything. Columns are scanned in order and layers in schema
// order. Absence constraints are never chosen. When nothing qualifies the
// word of the first column is the target.
func ResolveTarget(m ir.Matrix, s *schema.Schema) Target {
	type candidate struct {
		t     Target
		layer *schema.Layer
		match ir.LayerMatch
	}
	var all []candidate
	for i, col := range m.Columns {
		for _, id := range col.LayerIDs(s.Index) {
			l, ok := s.Layer(id)
			if !ok {
				continue
			}
			for j, lm := range col.Layers[id] {
				all = append(all, candidate{Target{Column: i, Layer: id, Match: j}, l, lm})
			}
		}
	}

	for _, c := range all {
		if c.match.Target {
			return c.t
		}
	}
	for _, c := range all {
		if c.layer.Scope == schema.ScopeSegment && !c.match.IsEmpty() && !c.match.IsAbsence() {
			return c.t
		}
	}
	for _, c := range all {
		if !c.match.IsEmpty() && !c.match.IsAbsence() {
			return c.t
		}
	}
	return Target{Column: 0, Layer: schema.WordLayer, Match: -1}
}

func (t Target) is(col int, layer string, match int) bool {
	return t.Column == col && t.Layer == layer && t.Match == match
}
