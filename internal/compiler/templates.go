package compiler

import (
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/schema"
)

// Join templates place one layer constraint relative to a column's word
// row. A template is chosen by three keys: the scope class of the layer,
// the kind of constraint, and the anchoring flags.

type scopeClass int

const (
	classWord scopeClass = iota + 1
	classSegment
	classMeta
	classFreeform
)

func classOf(l *schema.Layer) scopeClass {
	switch l.Scope {
	case schema.ScopeWord:
		return classWord
	case schema.ScopeSegment:
		return classSegment
	case schema.ScopeMeta:
		return classMeta
	default:
		return classFreeform
	}
}

type constraintKind int

const (
	kindExists constraintKind = iota + 1
	kindPattern
	kindRange
	kindAbsence
)

func kindOf(lm ir.LayerMatch) constraintKind {
	switch {
	case lm.IsAbsence():
		return kindAbsence
	case lm.IsRange():
		return kindRange
	case lm.IsRegex():
		return kindPattern
	default:
		return kindExists
	}
}

type anchorEdge int

const (
	edgeStart anchorEdge = iota
	edgeEnd
)

// link describes how rows of a layer relate to the word row: equality of
// a shared key column, and for coarser layers, containment of the word's
// start offset in the annotation's interval.
type link struct {
	key       string
	wordKey   string
	contained bool
}

var links = map[scopeClass]link{
	classWord:     {key: "word_annotation_id", wordKey: "annotation_id"},
	classSegment:  {key: "word_annotation_id", wordKey: "annotation_id"},
	classMeta:     {key: "turn_annotation_id", wordKey: "turn_annotation_id", contained: true},
	classFreeform: {key: "ag_id", wordKey: "ag_id", contained: true},
}

// anchorTemplate renders the predicate that pins the matched word to the
// start or end of the annotation held by alias a.
type anchorTemplate func(b *generalBuilder, col *column, l *schema.Layer, a string, edge anchorEdge) queryir.Expr

var anchorTemplates = map[scopeClass]anchorTemplate{
	classWord:     anchorWord,
	classSegment:  anchorSegment,
	classMeta:     anchorMeta,
	classFreeform: anchorFreeform,
}

// labelTemplates render the predicate on an annotation's label.
var labelTemplates = map[constraintKind]func(label queryir.Col, lm ir.LayerMatch) queryir.Expr{
	kindExists: func(queryir.Col, ir.LayerMatch) queryir.Expr { return nil },
	kindPattern: func(label queryir.Col, lm ir.LayerMatch) queryir.Expr {
		return queryir.Regexp{X: label, Pattern: queryir.L(anchorPattern(lm.Pattern)), Negate: lm.Not}
	},
	kindRange: func(label queryir.Col, lm ir.LayerMatch) queryir.Expr {
		var terms []queryir.Expr
		if lm.Min != nil {
			terms = append(terms, queryir.Ge(queryir.Real(label), queryir.L(*lm.Min)))
		}
		if lm.Max != nil {
			terms = append(terms, queryir.Lt(queryir.Real(label), queryir.L(*lm.Max)))
		}
		return queryir.And(terms...)
	},
	kindAbsence: func(queryir.Col, ir.LayerMatch) queryir.Expr { return nil },
}

// anchorWord: word-scope annotations share the word's anchors when they
// are aligned at all.
func anchorWord(b *generalBuilder, col *column, l *schema.Layer, a string, edge anchorEdge) queryir.Expr {
	if l.Alignment == schema.AlignNone {
		return nil
	}
	if edge == edgeStart {
		return queryir.Eq(queryir.C(a, "start_anchor_id"), queryir.C(col.word, "start_anchor_id"))
	}
	return queryir.Eq(queryir.C(a, "end_anchor_id"), queryir.C(col.word, "end_anchor_id"))
}

// anchorSegment: the segment is the first, or last, in its word.
func anchorSegment(b *generalBuilder, col *column, l *schema.Layer, a string, edge anchorEdge) queryir.Expr {
	if edge == edgeStart {
		return queryir.Eq(queryir.C(a, "ordinal_in_word"), queryir.Num{Value: 1})
	}
	later := a + "_later"
	return queryir.Exists{
		Negate: true,
		Query: &queryir.Select{
			Fields: []queryir.Field{{Expr: queryir.Num{Value: 1}}},
			From:   queryir.Table{Name: l.Table(), Alias: later},
			Where: []queryir.Expr{
				queryir.Eq(queryir.C(later, "word_annotation_id"), queryir.C(a, "word_annotation_id")),
				queryir.Gt(queryir.C(later, "ordinal_in_word"), queryir.C(a, "ordinal_in_word")),
			},
		},
	}
}

// anchorMeta pins the word to an edge of a turn-contained span. At the
// outer edges of the matrix a join to the neighbouring word is used;
// elsewhere no word of the same turn may lie between the edge and the
// matched word.
func anchorMeta(b *generalBuilder, col *column, l *schema.Layer, a string, edge anchorEdge) queryir.Expr {
	if edge == edgeStart && col.index == 0 {
		return b.borderBefore(col, b.offset(a, edgeStart))
	}
	if edge == edgeEnd && col.index == len(b.cols)-1 {
		return b.borderAfter(col, b.offset(a, edgeEnd))
	}
	other := a + "_word"
	sub, start := b.wordProbe(other)
	w := col.word
	sub.Where = append(sub.Where, queryir.Eq(queryir.C(other, "turn_annotation_id"), queryir.C(w, "turn_annotation_id")))
	if edge == edgeStart {
		sub.Where = append(sub.Where,
			queryir.Lt(queryir.C(other, "ordinal_in_turn"), queryir.C(w, "ordinal_in_turn")),
			queryir.Ge(start, b.offset(a, edgeStart)))
	} else {
		sub.Where = append(sub.Where,
			queryir.Gt(queryir.C(other, "ordinal_in_turn"), queryir.C(w, "ordinal_in_turn")),
			queryir.Lt(start, b.offset(a, edgeEnd)))
	}
	return queryir.Exists{Query: sub, Negate: true}
}

// anchorFreeform: no word of the transcript starts between the edge of the
// span and the matched word.
func anchorFreeform(b *generalBuilder, col *column, l *schema.Layer, a string, edge anchorEdge) queryir.Expr {
	other := a + "_word"
	sub, start := b.wordProbe(other)
	wStart := b.offset(col.word, edgeStart)
	sub.Where = append(sub.Where, queryir.Eq(queryir.C(other, "ag_id"), queryir.C(col.word, "ag_id")))
	if edge == edgeStart {
		sub.Where = append(sub.Where,
			queryir.Ge(start, b.offset(a, edgeStart)),
			queryir.Lt(start, wStart))
	} else {
		sub.Where = append(sub.Where,
			queryir.Gt(start, wStart),
			queryir.Lt(start, b.offset(a, edgeEnd)))
	}
	return queryir.Exists{Query: sub, Negate: true}
}
