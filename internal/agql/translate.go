package agql

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/corpusql/internal/queryir"
)

type valueKind int

const (
	kindScalar valueKind = iota + 1
	kindBool
	kindList
	kindRegex
	kindRelation
)

// value is the translation of one node.
type value struct {
	kind valueKind
	expr queryir.Expr
	// text marks label-like columns, which are cast when compared with a
	// number.
	text   bool
	number bool
	items  []queryir.Expr
	// pattern is anchored to match whole labels.
	pattern string
	fold    bool
	rel     *relation
}

func scalar(e queryir.Expr) value { return value{kind: kindScalar, expr: e} }

func text(e queryir.Expr) value { return value{kind: kindScalar, expr: e, text: true} }

func boolean(e queryir.Expr) value { return value{kind: kindBool, expr: e} }

var comparisonOps = map[string]string{
	OpEq: queryir.OpEq,
	OpNe: queryir.OpNe,
	OpLt: queryir.OpLt,
	OpLe: queryir.OpLe,
	OpGt: queryir.OpGt,
	OpGe: queryir.OpGe,
}

// translate converts n to a relational fragment. It returns false when n
// (or a descendant) could not be translated; the reason is recorded in the
// scope.
func (sc *scope) translate(n Node) (value, bool) {
	switch x := n.(type) {
	case *BadExpr:
		// reported by the parser
		return value{}, false
	case *String:
		return scalar(queryir.L(norm.NFC.String(x.Value))), true
	case *Number:
		lit, ok := numberLiteral(x.Text)
		if !ok {
			sc.problem(x, "invalid number")
			return value{}, false
		}
		return value{kind: kindScalar, expr: lit, number: true}, true
	case *Regex:
		return sc.regex(x)
	case *List:
		out := value{kind: kindList}
		ok := true
		for _, item := range x.Items {
			v, iok := sc.scalar(item)
			if !iok {
				ok = false
				continue
			}
			out.items = append(out.items, v.expr)
		}
		return out, ok
	case *Ident:
		return sc.reference(x)
	case *Member:
		if path(x) != nil {
			return sc.reference(x)
		}
		recv, ok := sc.translate(x.X)
		if !ok {
			return value{}, false
		}
		return sc.member(x, recv)
	case *Call:
		return sc.call(x)
	case *Binary:
		return sc.binary(x)
	case *Not:
		v, ok := sc.condition(x.X)
		if !ok {
			return value{}, false
		}
		return boolean(queryir.Negate(v.expr)), true
	}
	sc.problem(n, "unsupported expression")
	return value{}, false
}

// condition translates n and requires a boolean result.
func (sc *scope) condition(n Node) (value, bool) {
	v, ok := sc.translate(n)
	if !ok {
		return value{}, false
	}
	if v.kind != kindBool {
		sc.problem(n, "expected a condition")
		return value{}, false
	}
	return v, true
}

// scalar translates n and requires a single value.
func (sc *scope) scalar(n Node) (value, bool) {
	v, ok := sc.translate(n)
	if !ok {
		return value{}, false
	}
	if v.kind != kindScalar {
		sc.problem(n, "expected a value")
		return value{}, false
	}
	return v, true
}

func (sc *scope) reference(n Node) (value, bool) {
	v, ok := sc.property(path(n))
	if !ok {
		sc.problem(n, "unknown property of %s layer %q", sc.cat, sc.layer.ID)
	}
	return v, ok
}

func (sc *scope) regex(x *Regex) (value, bool) {
	fold := false
	for _, f := range x.Flags {
		if f != 'i' {
			sc.problem(x, "unsupported regular expression flag %q", f)
			return value{}, false
		}
		fold = true
	}
	pattern := "^(" + norm.NFC.String(x.Pattern) + ")$"
	if _, err := regexp.Compile(pattern); err != nil {
		sc.problem(x, "invalid regular expression")
		return value{}, false
	}
	return value{kind: kindRegex, pattern: pattern, fold: fold}, true
}

func (sc *scope) binary(x *Binary) (value, bool) {
	switch x.Op {
	case OpAnd, OpOr:
		l, lok := sc.condition(x.L)
		r, rok := sc.condition(x.R)
		if !lok || !rok {
			return value{}, false
		}
		if x.Op == OpAnd {
			return boolean(queryir.And(l.expr, r.expr)), true
		}
		return boolean(queryir.Or(l.expr, r.expr)), true
	}

	op, known := comparisonOps[x.Op]
	if !known {
		sc.problem(x, "unsupported operator %q", x.Op)
		return value{}, false
	}
	l, lok := sc.scalar(x.L)
	r, rok := sc.scalar(x.R)
	if !lok || !rok {
		return value{}, false
	}
	le, re := l.expr, r.expr
	// labels are text; numeric comparisons need a numeric cast
	if r.number && l.text {
		le = queryir.Real(le)
	}
	if l.number && r.text {
		re = queryir.Real(re)
	}
	return boolean(queryir.Binary{Op: op, L: le, R: re}), true
}

func (sc *scope) call(x *Call) (value, bool) {
	switch fn := x.Fn.(type) {
	case *Ident:
		return sc.function(x, fn.Name)
	case *Member:
		recv, ok := sc.translate(fn.X)
		if !ok {
			return value{}, false
		}
		return sc.method(x, fn.Name, recv)
	}
	sc.problem(x, "unsupported call")
	return value{}, false
}

var relModes = map[string]relMode{
	"labels": relLabels,
	"list":   relLabels,
	"all":    relAll,
	"first":  relFirst,
	"last":   relLast,
}

func (sc *scope) function(x *Call, name string) (value, bool) {
	if mode, ok := relModes[name]; ok {
		if len(x.Args) != 1 {
			sc.problem(x, "%s takes one layer id", name)
			return value{}, false
		}
		id, ok := x.Args[0].(*String)
		if !ok {
			sc.problem(x, "%s takes a quoted layer id", name)
			return value{}, false
		}
		rel, ok := sc.relate(x, id.Value, mode)
		if !ok {
			return value{}, false
		}
		return value{kind: kindRelation, rel: rel}, true
	}

	if name == "coalesce" {
		if len(x.Args) == 0 {
			sc.problem(x, "coalesce needs at least one argument")
			return value{}, false
		}
		out := value{kind: kindScalar}
		args := make([]queryir.Expr, 0, len(x.Args))
		ok := true
		for _, a := range x.Args {
			v, aok := sc.scalar(a)
			if !aok {
				ok = false
				continue
			}
			out.text = out.text || v.text
			args = append(args, v.expr)
		}
		if !ok {
			return value{}, false
		}
		out.expr = queryir.Coalesce(args...)
		return out, true
	}

	sc.problem(x, "unknown function %q", name)
	return value{}, false
}

func (sc *scope) method(x *Call, name string, recv value) (value, bool) {
	if len(x.Args) != 1 {
		sc.problem(x, "%s takes one argument", name)
		return value{}, false
	}
	switch name {
	case "test":
		if recv.kind != kindRegex {
			sc.problem(x, "test applies to a regular expression")
			return value{}, false
		}
		arg, ok := sc.scalar(x.Args[0])
		if !ok {
			return value{}, false
		}
		return boolean(queryir.Regexp{X: arg.expr, Pattern: queryir.L(recv.pattern), Fold: recv.fold}), true

	case "includes":
		arg, ok := sc.scalar(x.Args[0])
		if !ok {
			return value{}, false
		}
		switch {
		case recv.kind == kindList:
			return boolean(queryir.In{X: arg.expr, List: recv.items}), true
		case recv.kind == kindRelation && (recv.rel.mode == relLabels || recv.rel.mode == relAll):
			return boolean(queryir.InQuery{X: arg.expr, Query: recv.rel.query(recv.rel.label)}), true
		}

	case "includesAny":
		arg, ok := sc.translate(x.Args[0])
		if !ok {
			return value{}, false
		}
		list, rel := recv, arg
		if recv.kind == kindRelation {
			list, rel = arg, recv
		}
		if list.kind == kindList && rel.kind == kindRelation {
			q := rel.rel.query(queryir.Num{Value: 1})
			q.AddWhere(queryir.In{X: rel.rel.label, List: list.items})
			return boolean(queryir.Exists{Query: q}), true
		}
	}
	sc.problem(x, "unsupported method %q", name)
	return value{}, false
}

// member resolves a property of a computed value, such as
// first('L').label or labels('L').length.
func (sc *scope) member(x *Member, recv value) (value, bool) {
	if recv.kind == kindRelation {
		rel := recv.rel
		single := rel.mode == relFirst || rel.mode == relLast
		switch {
		case x.Name == "length" && !single:
			return scalar(rel.count()), true
		case x.Name == "label" && single:
			return text(queryir.Subquery{Query: rel.query(rel.label)}), true
		case x.Name == "id" && single:
			return scalar(queryir.Subquery{Query: rel.query(rel.uid)}), true
		case x.Name == "ordinal" && single:
			return scalar(queryir.Subquery{Query: rel.query(rel.ordinal)}), true
		case x.Name == "confidence" && single && rel.confidence != nil:
			return scalar(queryir.Subquery{Query: rel.query(rel.confidence)}), true
		}
	}
	sc.problem(x, "unsupported property %q", x.Name)
	return value{}, false
}

func numberLiteral(s string) (queryir.Lit, bool) {
	if strings.Contains(s, ".") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return queryir.Lit{}, false
		}
		return queryir.L(f), true
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return queryir.Lit{}, false
	}
	return queryir.L(i), true
}
