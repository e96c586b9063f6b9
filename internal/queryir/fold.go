package queryir

import (
	"strconv"
	"strings"
)

// Fold rewrites a statement so that indexed id columns are compared
// directly:
//
//	IDRef{p, c} = 'p123'          →  c = 123
//	IDRef{p, c} <> 'p123'         →  c <> 123
//	IDRef{p, c} IN ('p1', 'p2')   →  c IN (1, 2)
//	'a' = 'a'                     →  1 = 1
//	'a' = 'b'                     →  1 = 0
//
// A uid literal that cannot carry the prefix (different layer, non-numeric
// id) can never compare equal, so = folds to 1 = 0 and <> to 1 = 1, and such
// literals are dropped from IN lists. Constant terms are then absorbed by
// the enclosing AND/OR.
//
// Fold returns a new tree; the input is not modified.
func Fold(stmt Statement) Statement {
	switch s := stmt.(type) {
	case *Select:
		return FoldSelect(s)
	case *Insert:
		return &Insert{Table: s.Table, Columns: s.Columns, Query: FoldSelect(s.Query)}
	default:
		return stmt
	}
}

// FoldSelect folds every expression of a select, recursively.
func FoldSelect(s *Select) *Select {
	if s == nil {
		return nil
	}
	out := *s
	out.Fields = make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		out.Fields[i] = Field{Expr: FoldExpr(f.Expr), Alias: f.Alias}
	}
	out.From = foldTable(s.From)
	out.Joins = make([]Join, len(s.Joins))
	for i, j := range s.Joins {
		out.Joins[i] = Join{Kind: j.Kind, Table: foldTable(j.Table), On: FoldExpr(j.On)}
	}
	out.Where = nil
	for _, w := range s.Where {
		out.AddWhere(FoldExpr(w))
	}
	out.GroupBy = foldList(s.GroupBy)
	out.OrderBy = make([]Order, len(s.OrderBy))
	for i, o := range s.OrderBy {
		out.OrderBy[i] = Order{Expr: FoldExpr(o.Expr), Desc: o.Desc, Binary: o.Binary}
	}
	out.Limit = FoldExpr(s.Limit)
	out.Offset = FoldExpr(s.Offset)
	return &out
}

func foldTable(t Table) Table {
	if t.Query != nil {
		t.Query = FoldSelect(t.Query)
	}
	return t
}

func foldList(list []Expr) []Expr {
	if list == nil {
		return nil
	}
	out := make([]Expr, len(list))
	for i, e := range list {
		out[i] = FoldExpr(e)
	}
	return out
}

// FoldExpr folds a single expression tree.
func FoldExpr(e Expr) Expr {
	switch x := e.(type) {
	case nil:
		return nil
	case Binary:
		l, r := FoldExpr(x.L), FoldExpr(x.R)
		switch x.Op {
		case OpAnd:
			return And(l, r)
		case OpOr:
			return Or(l, r)
		case OpEq, OpNe:
			if folded, ok := foldComparison(x.Op, l, r); ok {
				return folded
			}
		}
		return Binary{Op: x.Op, L: l, R: r}
	case Not:
		inner := FoldExpr(x.X)
		if b, ok := inner.(Bool); ok {
			return Bool{Value: !b.Value}
		}
		return Not{X: inner}
	case In:
		return foldIn(In{X: FoldExpr(x.X), List: foldList(x.List), Negate: x.Negate})
	case InQuery:
		return InQuery{X: FoldExpr(x.X), Query: FoldSelect(x.Query), Negate: x.Negate}
	case Exists:
		return Exists{Query: FoldSelect(x.Query), Negate: x.Negate}
	case IsNull:
		return IsNull{X: FoldExpr(x.X), Negate: x.Negate}
	case Regexp:
		return Regexp{X: FoldExpr(x.X), Pattern: FoldExpr(x.Pattern), Negate: x.Negate, Fold: x.Fold}
	case Cast:
		return Cast{X: FoldExpr(x.X), Type: x.Type}
	case Func:
		return Func{Name: x.Name, Args: foldList(x.Args)}
	case Subquery:
		return Subquery{Query: FoldSelect(x.Query)}
	default:
		return e
	}
}

func foldComparison(op string, l, r Expr) (Expr, bool) {
	if ref, ok := l.(IDRef); ok {
		if lit, ok := r.(Lit); ok {
			return foldIDRef(op, ref, lit)
		}
	}
	if ref, ok := r.(IDRef); ok {
		if lit, ok := l.(Lit); ok {
			return foldIDRef(op, ref, lit)
		}
	}
	la, lok := l.(Lit)
	ra, rok := r.(Lit)
	if lok && rok {
		eq, comparable := litEqual(la.Value, ra.Value)
		if !comparable {
			return nil, false
		}
		return Bool{Value: eq == (op == OpEq)}, true
	}
	return nil, false
}

func foldIDRef(op string, ref IDRef, lit Lit) (Expr, bool) {
	s, ok := lit.Value.(string)
	if !ok {
		return nil, false
	}
	id, ok := StripPrefix(ref.Prefix, s)
	if !ok {
		return Bool{Value: op == OpNe}, true
	}
	return Binary{Op: op, L: ref.Col, R: Lit{Value: id}}, true
}

func foldIn(in In) Expr {
	ref, ok := in.X.(IDRef)
	if !ok {
		return in
	}
	ids := make([]Expr, 0, len(in.List))
	for _, e := range in.List {
		lit, ok := e.(Lit)
		if !ok {
			return in
		}
		s, ok := lit.Value.(string)
		if !ok {
			return in
		}
		if id, ok := StripPrefix(ref.Prefix, s); ok {
			ids = append(ids, Lit{Value: id})
		}
	}
	if len(ids) == 0 {
		return Bool{Value: in.Negate}
	}
	return In{X: ref.Col, List: ids, Negate: in.Negate}
}

// StripPrefix returns the numeric id of uid if it starts with prefix.
func StripPrefix(prefix, uid string) (int64, bool) {
	rest, ok := strings.CutPrefix(uid, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// litEqual compares two literal values. Numbers compare by value across
// integer and float types; other mixed types are not comparable.
func litEqual(a, b any) (equal, comparable bool) {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb, true
		}
		return false, false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv, ok
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv, ok
	}
	return false, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
