package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult lists structural problems found in a statement.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists every structural defect, in traversal order.
	Problems []string
}

// Validate checks that a statement is well formed before rendering:
//  1. Every select has a FROM source and at least one field
//  2. Aliases are unique within a select and every join has an ON condition
//  3. No nil expressions appear where one is required
//  4. Functions are limited to the portable set (COALESCE, COUNT, MIN, MAX, LENGTH)
//  5. An insert names as many columns as its select produces
//
// Validate is a pure function with no side effects.
func Validate(stmt Statement) ValidationResult {
	v := &validator{}
	switch s := stmt.(type) {
	case *Select:
		v.validateSelect("select", s)
	case *Insert:
		v.validateInsert(s)
	case nil:
		v.addProblem("nil statement")
	default:
		v.addProblem("unsupported statement type %T", stmt)
	}
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateInsert(ins *Insert) {
	if ins.Table == "" {
		v.addProblem("insert: missing table")
	}
	if ins.Query == nil {
		v.addProblem("insert: missing query")
		return
	}
	if len(ins.Columns) != len(ins.Query.Fields) {
		v.addProblem("insert into %s: %d columns but query yields %d fields", ins.Table, len(ins.Columns), len(ins.Query.Fields))
	}
	v.validateSelect("insert query", ins.Query)
}

func (v *validator) validateSelect(where string, s *Select) {
	if s == nil {
		v.addProblem("%s: nil select", where)
		return
	}
	if len(s.Fields) == 0 {
		v.addProblem("%s: no fields", where)
	}
	for i, f := range s.Fields {
		v.validateExpr(fmt.Sprintf("%s field %d", where, i), f.Expr)
	}

	aliases := map[string]bool{}
	v.validateTable(where+" from", s.From, aliases)
	for i, j := range s.Joins {
		ctx := fmt.Sprintf("%s join %d", where, i)
		v.validateTable(ctx, j.Table, aliases)
		if j.On == nil {
			v.addProblem("%s: missing ON condition", ctx)
		} else {
			v.validateExpr(ctx, j.On)
		}
	}
	for i, w := range s.Where {
		v.validateExpr(fmt.Sprintf("%s where %d", where, i), w)
	}
	for _, g := range s.GroupBy {
		v.validateExpr(where+" group by", g)
	}
	for _, o := range s.OrderBy {
		v.validateExpr(where+" order by", o.Expr)
	}
}

func (v *validator) validateTable(where string, t Table, aliases map[string]bool) {
	if t.Query == nil && t.Name == "" {
		v.addProblem("%s: missing table", where)
	}
	if t.Query != nil {
		v.validateSelect(where+" derived table", t.Query)
		if t.Alias == "" {
			v.addProblem("%s: derived table needs an alias", where)
		}
	}
	key := t.Alias
	if key == "" {
		key = t.Name
	}
	if aliases[key] {
		v.addProblem("%s: duplicate alias %q", where, key)
	}
	aliases[key] = true
}

var portableFuncs = map[string]bool{
	"COALESCE": true,
	"COUNT":    true,
	"MIN":      true,
	"MAX":      true,
	"LENGTH":   true,
}

func (v *validator) validateExpr(where string, e Expr) {
	switch x := e.(type) {
	case nil:
		v.addProblem("%s: nil expression", where)
	case Binary:
		v.validateExpr(where, x.L)
		v.validateExpr(where, x.R)
	case Not:
		v.validateExpr(where, x.X)
	case In:
		v.validateExpr(where, x.X)
		if len(x.List) == 0 {
			v.addProblem("%s: empty IN list", where)
		}
		for _, item := range x.List {
			v.validateExpr(where, item)
		}
	case InQuery:
		v.validateExpr(where, x.X)
		v.validateSelect(where+" subquery", x.Query)
	case Exists:
		v.validateSelect(where+" subquery", x.Query)
	case IsNull:
		v.validateExpr(where, x.X)
	case Regexp:
		v.validateExpr(where, x.X)
		v.validateExpr(where, x.Pattern)
	case Cast:
		v.validateExpr(where, x.X)
	case Func:
		if !portableFuncs[strings.ToUpper(x.Name)] {
			v.addProblem("%s: unsupported function %s", where, x.Name)
		}
		for _, a := range x.Args {
			v.validateExpr(where, a)
		}
	case Subquery:
		v.validateSelect(where+" subquery", x.Query)
	case Col:
		if x.Name == "" {
			v.addProblem("%s: column without name", where)
		}
	}
}
