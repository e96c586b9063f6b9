package compiler

import (
	"fmt"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/schema"
)

// column is the compile-time state of one matrix column.
type column struct {
	index int
	def   ir.Column
	// word is the alias of the column's word row. Consecutive columns
	// chained within one word share it.
	word string
	// primary is the layer whose rows anchor the column's position.
	primary *schema.Layer
	// segment is the alias of the primary segment row, when primary is a
	// segment layer.
	segment string
	seq     int
}

type generalBuilder struct {
	m      ir.Matrix
	s      *schema.Schema
	target Target
	sel    *queryir.Select
	cols   []*column

	targetAlias string
	targetLayer *schema.Layer
}

// buildGeneral compiles any valid matrix into a SELECT yielding one row per
// candidate match, and returns it with the result columns it fills.
func buildGeneral(m ir.Matrix, s *schema.Schema, target Target, f *filters) (*queryir.Select, []string) {
	b := &generalBuilder{m: m, s: s, target: target, sel: &queryir.Select{}}
	for i, def := range m.Columns {
		b.cols = append(b.cols, &column{index: i, def: def, primary: b.primaryOf(i, def)})
	}

	word := s.Word()
	for i, col := range b.cols {
		if i == 0 {
			col.word = "w0"
			b.sel.From = queryir.Table{Name: word.Table(), Alias: col.word}
		} else {
			prev := b.cols[i-1]
			if prev.onSegment() && col.onSegment() {
				col.word = prev.word
			} else {
				col.word = fmt.Sprintf("w%d", i)
				b.sel.AddJoin(queryir.Join{
					Table: queryir.Table{Name: word.Table(), Alias: col.word},
					On:    queryir.And(chain(prev.word, col.word, "turn_annotation_id", "ordinal_in_turn", prev.def.Adjacency())...),
				})
			}
		}
		b.placeColumn(col)
		if i > 0 && b.cols[i-1].onSegment() && col.onSegment() {
			prev := b.cols[i-1]
			b.sel.AddWhere(chain(prev.segment, col.segment, "word_annotation_id", "ordinal_in_word", prev.def.Adjacency())...)
		}
	}

	first, last := b.cols[0], b.cols[len(b.cols)-1]
	f.apply(b.sel, queryir.C(first.word, "ag_id"), queryir.C(first.word, "turn_annotation_id"))

	startRow, endRow := first.word, last.word
	if first.segmentPrimary() {
		startRow = first.segment
	}
	if last.segmentPrimary() {
		endRow = last.segment
	}
	if m.MinAnchorConfidence != nil {
		floor := queryir.L(int64(*m.MinAnchorConfidence))
		b.sel.AddJoin(queryir.Join{
			Table: queryir.Table{Name: "anchor", Alias: "match_start"},
			On:    queryir.Eq(queryir.C("match_start", "anchor_id"), queryir.C(startRow, "start_anchor_id")),
		})
		b.sel.AddJoin(queryir.Join{
			Table: queryir.Table{Name: "anchor", Alias: "match_end"},
			On:    queryir.Eq(queryir.C("match_end", "anchor_id"), queryir.C(endRow, "end_anchor_id")),
		})
		b.sel.AddWhere(
			queryir.Ge(queryir.C("match_start", "alignment_status"), floor),
			queryir.Ge(queryir.C("match_end", "alignment_status"), floor),
		)
	}

	if b.targetAlias == "" {
		b.targetAlias, b.targetLayer = b.cols[target.Column].word, word
	}
	out := resultFields{
		agID:        queryir.C(first.word, "ag_id"),
		turn:        queryir.C(first.word, "turn_annotation_id"),
		start:       queryir.C(startRow, "start_anchor_id"),
		end:         queryir.C(endRow, "end_anchor_id"),
		target:      queryir.C(b.targetAlias, "annotation_id"),
		targetUID:   queryir.IDRef{Prefix: b.targetLayer.UIDPrefix(), Col: queryir.C(b.targetAlias, "annotation_id")},
		firstWord:   queryir.C(first.word, "annotation_id"),
		lastWord:    queryir.C(last.word, "annotation_id"),
		hasSegment:  b.targetLayer.Scope == schema.ScopeSegment,
		segmentFrom: queryir.C(b.targetAlias, "annotation_id"),
	}
	b.sel.Fields = out.fields()
	b.sel.OrderBy = []queryir.Order{
		{Expr: queryir.C(first.word, "ag_id")},
		{Expr: queryir.C(first.word, "turn_annotation_id")},
		{Expr: queryir.C(first.word, "ordinal_in_turn")},
		{Expr: queryir.C(b.targetAlias, "annotation_id")},
	}
	return b.sel, out.columns()
}

// onSegment reports whether the column is positioned by a segment row.
func (c *column) onSegment() bool {
	return c.primary.Scope == schema.ScopeSegment
}

func (c *column) segmentPrimary() bool {
	return c.segment != ""
}

// primaryOf picks the layer anchoring column i: the target when it is a
// segment layer, else a word-scope constraint, else a segment constraint,
// else the word layer itself.
func (b *generalBuilder) primaryOf(i int, def ir.Column) *schema.Layer {
	if b.target.Column == i && b.target.Match >= 0 {
		if l, ok := b.s.Layer(b.target.Layer); ok && l.Scope == schema.ScopeSegment {
			return l
		}
	}
	var segment *schema.Layer
	for _, id := range def.LayerIDs(b.s.Index) {
		l, _ := b.s.Layer(id)
		if !positive(def.Layers[id]) {
			continue
		}
		switch l.Scope {
		case schema.ScopeWord:
			return l
		case schema.ScopeSegment:
			if segment == nil {
				segment = l
			}
		}
	}
	if segment != nil {
		return segment
	}
	return b.s.Word()
}

// positive reports whether some match requires an annotation to exist.
func positive(matches []ir.LayerMatch) bool {
	for _, lm := range matches {
		if !lm.IsEmpty() && !lm.IsAbsence() {
			return true
		}
	}
	return false
}

// placeColumn joins every constraint of col. The primary segment
// constraint is placed first so that later templates may refer to it.
func (b *generalBuilder) placeColumn(col *column) {
	ids := col.def.LayerIDs(b.s.Index)
	if col.primary.Scope == schema.ScopeSegment {
		ids = primaryFirst(ids, col.primary.ID)
	}
	for _, id := range ids {
		l, _ := b.s.Layer(id)
		for j, lm := range col.def.Layers[id] {
			isTarget := b.target.is(col.index, id, j)
			if lm.IsEmpty() && !isTarget {
				continue
			}
			alias := b.place(col, l, lm)
			if l.ID == col.primary.ID && col.primary.Scope == schema.ScopeSegment && col.segment == "" && kindOf(lm) != kindAbsence {
				col.segment = alias
			}
			if isTarget {
				b.targetAlias, b.targetLayer = alias, l
			}
		}
	}
	if b.target.Column == col.index && b.target.Match < 0 {
		b.targetAlias, b.targetLayer = col.word, b.s.Word()
	}
}

func primaryFirst(ids []string, primary string) []string {
	out := []string{primary}
	for _, id := range ids {
		if id != primary {
			out = append(out, id)
		}
	}
	return out
}

// place joins one constraint and returns the alias of its rows.
func (b *generalBuilder) place(col *column, l *schema.Layer, lm ir.LayerMatch) string {
	kind := kindOf(lm)
	if l.ID == schema.WordLayer {
		b.sel.AddWhere(labelTemplates[kind](queryir.C(col.word, "label"), lm))
		return col.word
	}

	a := fmt.Sprintf("c%d_%d", col.index, col.seq)
	col.seq++
	class := classOf(l)
	lk := links[class]
	on := []queryir.Expr{queryir.Eq(queryir.C(a, lk.key), queryir.C(col.word, lk.wordKey))}

	if kind == kindAbsence {
		if lk.contained {
			wStart := b.offset(col.word, edgeStart)
			on = append(on,
				queryir.Le(anchorOffset(queryir.C(a, "start_anchor_id")), wStart),
				queryir.Lt(wStart, anchorOffset(queryir.C(a, "end_anchor_id"))))
		}
		b.sel.AddJoin(queryir.Join{
			Kind:  queryir.JoinLeft,
			Table: queryir.Table{Name: l.Table(), Alias: a},
			On:    queryir.And(on...),
		})
		b.sel.AddWhere(queryir.IsNull{X: queryir.C(a, "annotation_id")})
		return a
	}

	b.sel.AddJoin(queryir.Join{
		Table: queryir.Table{Name: l.Table(), Alias: a},
		On:    queryir.And(on...),
	})
	if lk.contained {
		wStart := b.offset(col.word, edgeStart)
		b.sel.AddWhere(
			queryir.Le(b.offset(a, edgeStart), wStart),
			queryir.Lt(wStart, b.offset(a, edgeEnd)))
	}
	b.sel.AddWhere(labelTemplates[kind](queryir.C(a, "label"), lm))
	if lm.AnchorStart {
		b.sel.AddWhere(anchorTemplates[class](b, col, l, a, edgeStart))
	}
	if lm.AnchorEnd {
		b.sel.AddWhere(anchorTemplates[class](b, col, l, a, edgeEnd))
	}
	return a
}

// offset joins the start or end anchor of the row aliased a and returns
// its time offset.
func (b *generalBuilder) offset(a string, edge anchorEdge) queryir.Col {
	alias, fk := a+"_start", "start_anchor_id"
	if edge == edgeEnd {
		alias, fk = a+"_end", "end_anchor_id"
	}
	b.sel.AddJoin(queryir.Join{
		Table: queryir.Table{Name: "anchor", Alias: alias},
		On:    queryir.Eq(queryir.C(alias, "anchor_id"), queryir.C(a, fk)),
	})
	return queryir.C(alias, "time_offset")
}

// anchorOffset is the time offset of anchor id as a scalar subquery, for
// use where the anchor cannot be joined.
func anchorOffset(id queryir.Col) queryir.Expr {
	alias := id.Table + "_" + id.Name
	return queryir.Subquery{Query: &queryir.Select{
		Fields: []queryir.Field{{Expr: queryir.C(alias, "time_offset")}},
		From:   queryir.Table{Name: "anchor", Alias: alias},
		Where:  []queryir.Expr{queryir.Eq(queryir.C(alias, "anchor_id"), id)},
	}}
}

// wordProbe starts a subquery over words aliased alias, joined to their
// start anchors. It returns the subquery and the start offset column.
func (b *generalBuilder) wordProbe(alias string) (*queryir.Select, queryir.Col) {
	start := alias + "_start"
	return &queryir.Select{
		Fields: []queryir.Field{{Expr: queryir.Num{Value: 1}}},
		From:   queryir.Table{Name: b.s.Word().Table(), Alias: alias},
		Joins: []queryir.Join{{
			Table: queryir.Table{Name: "anchor", Alias: start},
			On:    queryir.Eq(queryir.C(start, "anchor_id"), queryir.C(alias, "start_anchor_id")),
		}},
	}, queryir.C(start, "time_offset")
}

// borderBefore requires that the word preceding col's word in its turn, if
// any, starts before edge.
func (b *generalBuilder) borderBefore(col *column, edge queryir.Col) queryir.Expr {
	prev, start := b.neighbour(col, col.word+"_prev", -1)
	return queryir.Or(queryir.IsNull{X: queryir.C(prev, "annotation_id")}, queryir.Lt(start, edge))
}

// borderAfter requires that the word following col's word in its turn, if
// any, starts at or after edge.
func (b *generalBuilder) borderAfter(col *column, edge queryir.Col) queryir.Expr {
	next, start := b.neighbour(col, col.word+"_next", 1)
	return queryir.Or(queryir.IsNull{X: queryir.C(next, "annotation_id")}, queryir.Ge(start, edge))
}

func (b *generalBuilder) neighbour(col *column, alias string, step int64) (string, queryir.Col) {
	ordinal := queryir.Plus(queryir.C(col.word, "ordinal_in_turn"), step)
	if step < 0 {
		ordinal = queryir.Minus(queryir.C(col.word, "ordinal_in_turn"), -step)
	}
	b.sel.AddJoin(queryir.Join{
		Kind:  queryir.JoinLeft,
		Table: queryir.Table{Name: b.s.Word().Table(), Alias: alias},
		On: queryir.And(
			queryir.Eq(queryir.C(alias, "turn_annotation_id"), queryir.C(col.word, "turn_annotation_id")),
			queryir.Eq(queryir.C(alias, "ordinal_in_turn"), ordinal)),
	})
	start := alias + "_start"
	b.sel.AddJoin(queryir.Join{
		Kind:  queryir.JoinLeft,
		Table: queryir.Table{Name: "anchor", Alias: start},
		On:    queryir.Eq(queryir.C(start, "anchor_id"), queryir.C(alias, "start_anchor_id")),
	})
	return alias, queryir.C(start, "time_offset")
}

// chain relates consecutive positions: same group, and an ordinal gap
// between 1 and adj.
func chain(prev, cur, group, ordinal string, adj int) []queryir.Expr {
	terms := []queryir.Expr{queryir.Eq(queryir.C(cur, group), queryir.C(prev, group))}
	if adj <= 1 {
		return append(terms, queryir.Eq(queryir.C(cur, ordinal), queryir.Plus(queryir.C(prev, ordinal), 1)))
	}
	return append(terms,
		queryir.Gt(queryir.C(cur, ordinal), queryir.C(prev, ordinal)),
		queryir.Le(queryir.C(cur, ordinal), queryir.Binary{Op: queryir.OpAdd, L: queryir.C(prev, ordinal), R: queryir.L(int64(adj))}))
}

// resultFields are the expressions stored for each match.
type resultFields struct {
	agID, turn, start, end queryir.Expr
	target, targetUID      queryir.Expr
	firstWord, lastWord    queryir.Expr
	hasSegment             bool
	segmentFrom            queryir.Expr
}

// Result table columns, in insert order.
const (
	ColAgID        = "ag_id"
	ColTurn        = "turn_annotation_id"
	ColStartAnchor = "start_anchor_id"
	ColEndAnchor   = "end_anchor_id"
	ColTarget      = "target_annotation_id"
	ColTargetUID   = "target_annotation_uid"
	ColSegment     = "segment_annotation_id"
	ColFirstWord   = "first_matched_word_annotation_id"
	ColLastWord    = "last_matched_word_annotation_id"
)

func (r resultFields) columns() []string {
	cols := []string{ColAgID}
	if r.turn != nil {
		cols = append(cols, ColTurn)
	}
	cols = append(cols, ColStartAnchor, ColEndAnchor, ColTarget, ColTargetUID)
	if r.hasSegment {
		cols = append(cols, ColSegment)
	}
	if r.firstWord != nil {
		cols = append(cols, ColFirstWord, ColLastWord)
	}
	return cols
}

func (r resultFields) fields() []queryir.Field {
	fields := []queryir.Field{{Expr: r.agID}}
	if r.turn != nil {
		fields = append(fields, queryir.Field{Expr: r.turn})
	}
	fields = append(fields,
		queryir.Field{Expr: r.start},
		queryir.Field{Expr: r.end},
		queryir.Field{Expr: r.target},
		queryir.Field{Expr: r.targetUID})
	if r.hasSegment {
		fields = append(fields, queryir.Field{Expr: r.segmentFrom})
	}
	if r.firstWord != nil {
		fields = append(fields, queryir.Field{Expr: r.firstWord}, queryir.Field{Expr: r.lastWord})
	}
	return fields
}
