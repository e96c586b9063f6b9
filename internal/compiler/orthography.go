package compiler

import (
	"fmt"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/schema"
)

// buildOrthography compiles a matrix of orthography patterns into a chain
// of self-joins on the orthography layer. Orthography rows carry their
// word's turn, ordinal and anchors, so no word or anchor joins are needed.
func buildOrthography(m ir.Matrix, s *schema.Schema, target Target, f *filters) (*queryir.Select, []string) {
	ortho, _ := s.Orthography()
	sel := &queryir.Select{}
	aliases := make([]string, len(m.Columns))
	for i, col := range m.Columns {
		a := fmt.Sprintf("o%d", i)
		aliases[i] = a
		if i == 0 {
			sel.From = queryir.Table{Name: ortho.Table(), Alias: a}
		} else {
			sel.AddJoin(queryir.Join{
				Table: queryir.Table{Name: ortho.Table(), Alias: a},
				On:    queryir.And(chain(aliases[i-1], a, "turn_annotation_id", "ordinal_in_turn", 1)...),
			})
		}
		for _, lm := range col.Layers[schema.OrthographyLayer] {
			if lm.IsRegex() {
				sel.AddWhere(labelTemplates[kindPattern](queryir.C(a, "label"), lm))
			}
		}
	}

	first, last := aliases[0], aliases[len(aliases)-1]
	if f != nil && f.access != nil {
		sel.AddWhere(f.access.Apply(queryir.C(first, "ag_id")))
	}
	tgt := aliases[target.Column]
	out := resultFields{
		agID:      queryir.C(first, "ag_id"),
		turn:      queryir.C(first, "turn_annotation_id"),
		start:     queryir.C(first, "start_anchor_id"),
		end:       queryir.C(last, "end_anchor_id"),
		target:    queryir.C(tgt, "annotation_id"),
		targetUID: queryir.IDRef{Prefix: ortho.UIDPrefix(), Col: queryir.C(tgt, "annotation_id")},
		firstWord: queryir.C(first, "word_annotation_id"),
		lastWord:  queryir.C(last, "word_annotation_id"),
	}
	sel.Fields = out.fields()
	sel.OrderBy = []queryir.Order{
		{Expr: queryir.C(first, "ag_id")},
		{Expr: queryir.C(first, "turn_annotation_id")},
		{Expr: queryir.C(first, "ordinal_in_turn")},
	}
	return sel, out.columns()
}
