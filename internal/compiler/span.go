package compiler

import (
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/schema"
)

// SpanPlan describes a span-strategy search. Its rows carry no word
// tokens; the engine assigns them after the main query.
type SpanPlan struct {
	Layer *schema.Layer
	// AnchorExact is set when the constraint was anchored to its span's
	// edges. Token assignment then only accepts words sharing the span's
	// anchors.
	AnchorExact bool
}

// buildSpan compiles a single free-form constraint into a direct query on
// its layer.
func buildSpan(m ir.Matrix, s *schema.Schema, f *filters) (*queryir.Select, []string, *SpanPlan) {
	var (
		layer *schema.Layer
		match ir.LayerMatch
	)
	for _, id := range m.Columns[0].LayerIDs(s.Index) {
		for _, lm := range m.Columns[0].Layers[id] {
			if lm.Constrains() {
				layer, _ = s.Layer(id)
				match = lm
			}
		}
	}

	const a = "span"
	sel := &queryir.Select{From: queryir.Table{Name: layer.Table(), Alias: a}}
	sel.AddWhere(labelTemplates[kindOf(match)](queryir.C(a, "label"), match))
	if f != nil && f.access != nil {
		sel.AddWhere(f.access.Apply(queryir.C(a, "ag_id")))
	}
	out := resultFields{
		agID:      queryir.C(a, "ag_id"),
		start:     queryir.C(a, "start_anchor_id"),
		end:       queryir.C(a, "end_anchor_id"),
		target:    queryir.C(a, "annotation_id"),
		targetUID: queryir.IDRef{Prefix: layer.UIDPrefix(), Col: queryir.C(a, "annotation_id")},
	}
	sel.Fields = out.fields()
	sel.OrderBy = []queryir.Order{
		{Expr: queryir.C(a, "ag_id")},
		{Expr: queryir.C(a, "annotation_id")},
	}
	return sel, out.columns(), &SpanPlan{Layer: layer, AnchorExact: match.AnchorStart || match.AnchorEnd}
}
