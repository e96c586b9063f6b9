package queryir

// C builds a column reference.
func C(table, name string) Col {
	return Col{Table: table, Name: name}
}

// L builds a literal.
func L(v any) Lit {
	return Lit{Value: v}
}

// Eq builds l = r.
func Eq(l, r Expr) Binary { return Binary{Op: OpEq, L: l, R: r} }

// Ne builds l <> r.
func Ne(l, r Expr) Binary { return Binary{Op: OpNe, L: l, R: r} }

// Lt builds l < r.
func Lt(l, r Expr) Binary { return Binary{Op: OpLt, L: l, R: r} }

// Le builds l <= r.
func Le(l, r Expr) Binary { return Binary{Op: OpLe, L: l, R: r} }

// Gt builds l > r.
func Gt(l, r Expr) Binary { return Binary{Op: OpGt, L: l, R: r} }

// Ge builds l >= r.
func Ge(l, r Expr) Binary { return Binary{Op: OpGe, L: l, R: r} }

// Plus builds l + n for an inline integer n.
func Plus(l Expr, n int64) Binary { return Binary{Op: OpAdd, L: l, R: Num{Value: n}} }

// Minus builds l - n for an inline integer n.
func Minus(l Expr, n int64) Binary { return Binary{Op: OpSub, L: l, R: Num{Value: n}} }

// And conjoins terms. Nil and constant-true terms are dropped; a
// constant-false term collapses the result. No terms yields Bool{true}.
func And(terms ...Expr) Expr {
	return junction(OpAnd, terms)
}

// Or disjoins terms. Nil and constant-false terms are dropped; a
// constant-true term collapses the result. No terms yields Bool{false}.
func Or(terms ...Expr) Expr {
	return junction(OpOr, terms)
}

func junction(op string, terms []Expr) Expr {
	absorbing := op == OpOr
	var kept []Expr
	for _, t := range terms {
		if t == nil {
			continue
		}
		if b, ok := t.(Bool); ok {
			if b.Value == absorbing {
				return b
			}
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return Bool{Value: !absorbing}
	}
	out := kept[0]
	for _, t := range kept[1:] {
		out = Binary{Op: op, L: out, R: t}
	}
	return out
}

// Negate returns the logical negation of e, pushing it into node types
// that carry their own negation flag.
func Negate(e Expr) Expr {
	switch x := e.(type) {
	case Bool:
		return Bool{Value: !x.Value}
	case Not:
		return x.X
	case In:
		x.Negate = !x.Negate
		return x
	case InQuery:
		x.Negate = !x.Negate
		return x
	case Exists:
		x.Negate = !x.Negate
		return x
	case IsNull:
		x.Negate = !x.Negate
		return x
	case Regexp:
		x.Negate = !x.Negate
		return x
	default:
		return Not{X: e}
	}
}

// Coalesce builds COALESCE(args...).
func Coalesce(args ...Expr) Func {
	return Func{Name: "COALESCE", Args: args}
}

// Count builds COUNT(*).
func Count() Func {
	return Func{Name: "COUNT", Args: []Expr{Star{}}}
}

// Real casts x to a floating point number.
func Real(x Expr) Cast {
	return Cast{X: x, Type: CastReal}
}

// Integer casts x to an integer.
func Integer(x Expr) Cast {
	return Cast{X: x, Type: CastInteger}
}
