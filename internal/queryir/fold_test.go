package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordRef() IDRef {
	return IDRef{Prefix: "ew_0_", Col: C("annotation", "annotation_id")}
}

func TestFoldIDRefEquality(t *testing.T) {
	got := FoldExpr(Eq(wordRef(), L("ew_0_42")))
	assert.Equal(t, Eq(C("annotation", "annotation_id"), L(int64(42))), got)

	// literal on the left
	got = FoldExpr(Eq(L("ew_0_42"), wordRef()))
	assert.Equal(t, Eq(C("annotation", "annotation_id"), L(int64(42))), got)

	got = FoldExpr(Ne(wordRef(), L("ew_0_7")))
	assert.Equal(t, Ne(C("annotation", "annotation_id"), L(int64(7))), got)
}

func TestFoldIDRefForeignPrefix(t *testing.T) {
	assert.Equal(t, Bool{Value: false}, FoldExpr(Eq(wordRef(), L("em_12_42"))))
	assert.Equal(t, Bool{Value: true}, FoldExpr(Ne(wordRef(), L("ew_0_x"))))
}

func TestFoldIDRefIn(t *testing.T) {
	got := FoldExpr(In{X: wordRef(), List: []Expr{L("ew_0_1"), L("em_12_2"), L("ew_0_3")}})
	assert.Equal(t, In{X: C("annotation", "annotation_id"), List: []Expr{L(int64(1)), L(int64(3))}}, got)

	got = FoldExpr(In{X: wordRef(), List: []Expr{L("em_12_2")}})
	assert.Equal(t, Bool{Value: false}, got)

	got = FoldExpr(In{X: wordRef(), List: []Expr{L("em_12_2")}, Negate: true})
	assert.Equal(t, Bool{Value: true}, got)

	// non-literal items are left alone
	in := In{X: wordRef(), List: []Expr{C("x", "y")}}
	assert.Equal(t, in, FoldExpr(in))
}

func TestFoldLiteralComparison(t *testing.T) {
	assert.Equal(t, Bool{Value: true}, FoldExpr(Eq(L("word"), L("word"))))
	assert.Equal(t, Bool{Value: false}, FoldExpr(Eq(L("word"), L("turn"))))
	assert.Equal(t, Bool{Value: true}, FoldExpr(Ne(L(int64(1)), L(2.5))))
	assert.Equal(t, Bool{Value: true}, FoldExpr(Eq(L(int64(3)), L(3.0))))

	// mixed string/number is not folded
	e := Eq(L("3"), L(int64(3)))
	assert.Equal(t, e, FoldExpr(e))
}

func TestFoldAbsorbsConstants(t *testing.T) {
	label := Eq(C("annotation", "label"), L("cat"))
	got := FoldExpr(And(Eq(L("word"), L("word")), label))
	assert.Equal(t, label, got)

	got = FoldExpr(Binary{Op: OpAnd, L: Eq(L("a"), L("b")), R: label})
	assert.Equal(t, Bool{Value: false}, got)

	got = FoldExpr(Binary{Op: OpOr, L: Eq(L("a"), L("a")), R: label})
	assert.Equal(t, Bool{Value: true}, got)

	got = FoldExpr(Not{X: Eq(L("a"), L("b"))})
	assert.Equal(t, Bool{Value: true}, got)
}

func TestFoldSelectRecurses(t *testing.T) {
	sub := &Select{
		Fields: []Field{{Expr: C("w", "turn_annotation_id")}},
		From:   Table{Name: "annotation_layer_0", Alias: "w"},
		Where:  []Expr{Eq(IDRef{Prefix: "ew_0_", Col: C("w", "annotation_id")}, L("ew_0_5"))},
	}
	s := &Select{
		Fields: []Field{{Expr: C("t", "annotation_id")}},
		From:   Table{Name: "annotation_layer_11", Alias: "t"},
		Where: []Expr{
			Eq(L("turn"), L("turn")),
			InQuery{X: C("t", "annotation_id"), Query: sub},
		},
	}

	folded := Fold(s).(*Select)
	require.Len(t, folded.Where, 1, "constant true conjunct dropped")
	inq := folded.Where[0].(InQuery)
	assert.Equal(t, Eq(C("w", "annotation_id"), L(int64(5))), inq.Query.Where[0])

	// input untouched
	assert.Len(t, s.Where, 2)
	assert.IsType(t, Binary{}, sub.Where[0])
	assert.IsType(t, IDRef{}, sub.Where[0].(Binary).L)
}

func TestFoldInsert(t *testing.T) {
	ins := &Insert{
		Table:   "_result_1",
		Columns: []string{"ag_id"},
		Query: &Select{
			Fields: []Field{{Expr: C("w", "ag_id")}},
			From:   Table{Name: "annotation_layer_0", Alias: "w"},
			Where:  []Expr{Eq(IDRef{Prefix: "ew_0_", Col: C("w", "annotation_id")}, L("ew_0_9"))},
		},
	}
	folded := Fold(ins).(*Insert)
	assert.Equal(t, Eq(C("w", "annotation_id"), L(int64(9))), folded.Query.Where[0])
}

func TestStripPrefix(t *testing.T) {
	id, ok := StripPrefix("m_-2_", "m_-2_12")
	require.True(t, ok)
	assert.Equal(t, int64(12), id)

	_, ok = StripPrefix("m_-2_", "m_-2_")
	assert.False(t, ok)
	_, ok = StripPrefix("ew_0_", "ew_01")
	assert.False(t, ok)
}
