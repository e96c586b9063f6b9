package queryir

// Statement is a complete SQL statement.
//
// This is a sealed interface: only *Select and *Insert implement it.
type Statement interface {
	statementNode()
}

// Table is a FROM or JOIN source: a named table or a derived table.
type Table struct {
	Name  string
	Alias string
	// Query, when set, makes this a derived table; Name is ignored.
	Query *Select
}

// JoinKind selects inner or left outer join.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

// Join is one JOIN clause.
type Join struct {
	Kind  JoinKind
	Table Table
	On    Expr
}

// Field is one output column.
type Field struct {
	Expr  Expr
	Alias string
}

// Order is one ORDER BY term. Binary requests byte-wise collation for text.
type Order struct {
	Expr   Expr
	Desc   bool
	Binary bool
}

// Select is a SELECT statement.
//
// Semantics:
//
//	SELECT [DISTINCT] <fields> FROM <from> <joins>
//	WHERE <where[0]> AND <where[1]> ...
//	GROUP BY <group> ORDER BY <order> LIMIT <limit> OFFSET <offset>
//
// Where terms are conjoined. A nil Limit or Offset is omitted.
type Select struct {
	Distinct bool
	Fields   []Field
	From     Table
	Joins    []Join
	Where    []Expr
	GroupBy  []Expr
	OrderBy  []Order
	Limit    Expr
	Offset   Expr
}

func (*Select) statementNode() {}

// Insert is INSERT INTO Table (Columns) <Query>.
type Insert struct {
	Table   string
	Columns []string
	Query   *Select
}

func (*Insert) statementNode() {}

// AddJoin appends a join unless one with the same alias exists.
// It reports whether the join was added.
func (s *Select) AddJoin(j Join) bool {
	if s.HasAlias(j.Table.Alias) {
		return false
	}
	s.Joins = append(s.Joins, j)
	return true
}

// HasAlias reports whether alias is already bound in FROM or a JOIN.
func (s *Select) HasAlias(alias string) bool {
	if s.From.Alias == alias {
		return true
	}
	for _, j := range s.Joins {
		if j.Table.Alias == alias {
			return true
		}
	}
	return false
}

// AddWhere appends conjuncts, skipping nil and constant-true terms.
func (s *Select) AddWhere(exprs ...Expr) {
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if b, ok := e.(Bool); ok && b.Value {
			continue
		}
		s.Where = append(s.Where, e)
	}
}
