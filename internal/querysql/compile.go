package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/corpusql/internal/queryir"
)

// SQLCompiler renders QueryIR statements to parameterized SQL.
//
// CRITICAL: All values are parameterized (never interpolated). The only
// inline constants are the folded booleans ("1 = 1" / "1 = 0") and
// structural integer offsets (queryir.Num).
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for the given dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// Compile converts a statement to SQL text and its bind parameters.
// Placeholders are ? for SQLite and $n for PostgreSQL.
func (c *SQLCompiler) Compile(stmt queryir.Statement) (string, []any, error) {
	if stmt == nil {
		return "", nil, fmt.Errorf("cannot compile nil statement")
	}
	w := &writer{dialect: c.Dialect}
	switch s := stmt.(type) {
	case *queryir.Select:
		w.selectStmt(s)
	case *queryir.Insert:
		w.insertStmt(s)
	default:
		return "", nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
	if w.err != nil {
		return "", nil, w.err
	}
	return c.rebind(w.sb.String()), w.params, nil
}

// CompileExpr renders a standalone expression (used for diagnostics and
// tests).
func (c *SQLCompiler) CompileExpr(e queryir.Expr) (string, []any, error) {
	w := &writer{dialect: c.Dialect}
	w.expr(e)
	if w.err != nil {
		return "", nil, w.err
	}
	return c.rebind(w.sb.String()), w.params, nil
}

// rebind converts ? placeholders for the dialect. Rendered SQL never
// contains a literal '?', so a plain rebind is safe.
func (c *SQLCompiler) rebind(q string) string {
	if c.Dialect == Postgres {
		return sqlx.Rebind(sqlx.DOLLAR, q)
	}
	return q
}

// writer accumulates SQL text and parameters in order.
type writer struct {
	dialect Dialect
	sb      strings.Builder
	params  []any
	err     error
}

func (w *writer) write(parts ...string) {
	for _, p := range parts {
		w.sb.WriteString(p)
	}
}

func (w *writer) param(v any) {
	w.sb.WriteString("?")
	w.params = append(w.params, v)
}

func (w *writer) fail(format string, args ...any) {
	if w.err == nil {
		w.err = fmt.Errorf(format, args...)
	}
}

func (w *writer) insertStmt(ins *queryir.Insert) {
	if ins.Query == nil {
		w.fail("insert into %s: missing query", ins.Table)
		return
	}
	w.write("INSERT INTO ", ins.Table, " (", strings.Join(ins.Columns, ", "), ") ")
	w.selectStmt(ins.Query)
}

func (w *writer) selectStmt(s *queryir.Select) {
	if s == nil {
		w.fail("cannot compile nil select")
		return
	}
	w.write("SELECT ")
	if s.Distinct {
		w.write("DISTINCT ")
	}
	if len(s.Fields) == 0 {
		w.fail("select without fields")
		return
	}
	for i, f := range s.Fields {
		if i > 0 {
			w.write(", ")
		}
		w.expr(f.Expr)
		if f.Alias != "" {
			w.write(" AS ", f.Alias)
		}
	}

	w.write(" FROM ")
	w.table(s.From)
	for _, j := range s.Joins {
		if j.Kind == queryir.JoinLeft {
			w.write(" LEFT OUTER JOIN ")
		} else {
			w.write(" INNER JOIN ")
		}
		w.table(j.Table)
		w.write(" ON ")
		if j.On == nil {
			w.write("1 = 1")
		} else {
			w.expr(j.On)
		}
	}

	if len(s.Where) > 0 {
		w.write(" WHERE ")
		for i, e := range s.Where {
			if i > 0 {
				w.write(" AND ")
			}
			w.operand(e, queryir.OpAnd)
		}
	}

	if len(s.GroupBy) > 0 {
		w.write(" GROUP BY ")
		for i, e := range s.GroupBy {
			if i > 0 {
				w.write(", ")
			}
			w.expr(e)
		}
	}

	if len(s.OrderBy) > 0 {
		w.write(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				w.write(", ")
			}
			w.expr(o.Expr)
			if o.Binary {
				w.write(" ", w.dialect.BinaryCollation())
			}
			if o.Desc {
				w.write(" DESC")
			} else {
				w.write(" ASC")
			}
		}
	}

	if s.Limit != nil {
		w.write(" LIMIT ")
		w.expr(s.Limit)
	}
	if s.Offset != nil {
		if s.Limit == nil && w.dialect == SQLite {
			// SQLite requires LIMIT before OFFSET
			w.write(" LIMIT -1")
		}
		w.write(" OFFSET ")
		w.expr(s.Offset)
	}
}

func (w *writer) table(t queryir.Table) {
	if t.Query != nil {
		w.write("(")
		w.selectStmt(t.Query)
		w.write(")")
	} else {
		w.write(t.Name)
	}
	if t.Alias != "" && t.Alias != t.Name {
		w.write(" ", t.Alias)
	}
}

// operand renders e as an operand of a boolean operator, parenthesizing
// junctions of the other kind.
func (w *writer) operand(e queryir.Expr, parent string) {
	if b, ok := e.(queryir.Binary); ok && (b.Op == queryir.OpAnd || b.Op == queryir.OpOr) && b.Op != parent {
		w.write("(")
		w.expr(e)
		w.write(")")
		return
	}
	w.expr(e)
}

// scalar renders e as an operand of a comparison or arithmetic operator.
func (w *writer) scalar(e queryir.Expr) {
	if b, ok := e.(queryir.Binary); ok && (b.Op == queryir.OpAnd || b.Op == queryir.OpOr) {
		w.write("(")
		w.expr(e)
		w.write(")")
		return
	}
	w.expr(e)
}

func (w *writer) expr(e queryir.Expr) {
	switch x := e.(type) {
	case nil:
		w.fail("nil expression")
	case queryir.Col:
		if x.Table != "" {
			w.write(x.Table, ".")
		}
		w.write(x.Name)
	case queryir.Lit:
		w.param(x.Value)
	case queryir.Bool:
		if x.Value {
			w.write("1 = 1")
		} else {
			w.write("1 = 0")
		}
	case queryir.Num:
		w.write(strconv.FormatInt(x.Value, 10))
	case queryir.IDRef:
		w.idRef(x)
	case queryir.Binary:
		switch x.Op {
		case queryir.OpAnd, queryir.OpOr:
			w.operand(x.L, x.Op)
			w.write(" ", x.Op, " ")
			w.operand(x.R, x.Op)
		default:
			w.scalar(x.L)
			w.write(" ", x.Op, " ")
			w.scalar(x.R)
		}
	case queryir.Not:
		w.write("NOT (")
		w.expr(x.X)
		w.write(")")
	case queryir.In:
		if len(x.List) == 0 {
			// an empty list matches nothing
			w.expr(queryir.Bool{Value: x.Negate})
			return
		}
		w.scalar(x.X)
		if x.Negate {
			w.write(" NOT IN (")
		} else {
			w.write(" IN (")
		}
		for i, item := range x.List {
			if i > 0 {
				w.write(", ")
			}
			w.expr(item)
		}
		w.write(")")
	case queryir.InQuery:
		w.scalar(x.X)
		if x.Negate {
			w.write(" NOT IN (")
		} else {
			w.write(" IN (")
		}
		w.selectStmt(x.Query)
		w.write(")")
	case queryir.Exists:
		if x.Negate {
			w.write("NOT ")
		}
		w.write("EXISTS (")
		w.selectStmt(x.Query)
		w.write(")")
	case queryir.IsNull:
		w.scalar(x.X)
		if x.Negate {
			w.write(" IS NOT NULL")
		} else {
			w.write(" IS NULL")
		}
	case queryir.Regexp:
		w.regexp(x)
	case queryir.Cast:
		w.cast(x)
	case queryir.Func:
		w.write(strings.ToUpper(x.Name), "(")
		for i, a := range x.Args {
			if i > 0 {
				w.write(", ")
			}
			w.expr(a)
		}
		w.write(")")
	case queryir.Subquery:
		w.write("(")
		w.selectStmt(x.Query)
		w.write(")")
	case queryir.Star:
		w.write("*")
	default:
		w.fail("unsupported expression type: %T", e)
	}
}

func (w *writer) idRef(x queryir.IDRef) {
	if w.dialect == Postgres {
		w.write("(CAST(")
		w.param(x.Prefix)
		w.write(" AS TEXT) || CAST(")
		w.expr(x.Col)
		w.write(" AS TEXT))")
		return
	}
	w.write("(")
	w.param(x.Prefix)
	w.write(" || ")
	w.expr(x.Col)
	w.write(")")
}

func (w *writer) regexp(x queryir.Regexp) {
	w.scalar(x.X)
	w.write(" ", w.dialect.regexpOp(x.Negate, x.Fold), " ")
	if w.dialect == SQLite && x.Fold {
		// Go regexp syntax carries case folding in the pattern
		if lit, ok := x.Pattern.(queryir.Lit); ok {
			if s, ok := lit.Value.(string); ok {
				w.param("(?i)" + s)
				return
			}
		}
		w.write("(")
		w.param("(?i)")
		w.write(" || ")
		w.expr(x.Pattern)
		w.write(")")
		return
	}
	w.scalar(x.Pattern)
}

func (w *writer) cast(x queryir.Cast) {
	isReal := x.Type == queryir.CastReal
	if w.dialect == Postgres {
		// PostgreSQL rejects non-numeric text in a cast; such labels are NULL
		w.write("CASE WHEN CAST(")
		w.expr(x.X)
		w.write(` AS TEXT) ~ '^-{0,1}[0-9]+(\.[0-9]+){0,1}$' THEN CAST(`)
		w.expr(x.X)
		w.write(" AS ", w.dialect.castType(isReal), ") END")
		return
	}
	w.write("CAST(")
	w.expr(x.X)
	w.write(" AS ", w.dialect.castType(isReal), ")")
}
