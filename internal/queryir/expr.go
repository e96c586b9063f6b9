package queryir

// Expr is a scalar or boolean SQL expression.
//
// This is a sealed interface: only types in this package implement it.
//
// Expr types:
//   - Col: qualified column reference
//   - Lit: bound literal value
//   - Bool: constant truth value (folding output)
//   - Num: inline integer constant
//   - IDRef: annotation uid reconstruction (prefix || id column)
//   - Binary, Not: operators
//   - In, InQuery, Exists, IsNull: set and null tests
//   - Regexp: POSIX-style pattern match
//   - Cast: numeric cast of a text column
//   - Func: function call
//   - Subquery: scalar subquery
//   - Star: the * argument of COUNT(*)
type Expr interface {
	exprNode()
}

// Col references column Name of the table aliased Table.
// An empty Table renders the bare column name.
type Col struct {
	Table string
	Name  string
}

func (Col) exprNode() {}

// Lit is a literal rendered as a bind parameter.
type Lit struct {
	Value any
}

func (Lit) exprNode() {}

// Bool is a constant truth value, rendered "1 = 1" or "1 = 0".
type Bool struct {
	Value bool
}

func (Bool) exprNode() {}

// Num is an integer constant rendered inline. Used for structural offsets
// such as ordinal + 1, never for user-supplied values.
type Num struct {
	Value int64
}

func (Num) exprNode() {}

// IDRef reconstructs an annotation uid: Prefix concatenated with the numeric
// id in Col.
type IDRef struct {
	Prefix string
	Col    Col
}

func (IDRef) exprNode() {}

// Binary operators.
const (
	OpEq     = "="
	OpNe     = "<>"
	OpLt     = "<"
	OpLe     = "<="
	OpGt     = ">"
	OpGe     = ">="
	OpAnd    = "AND"
	OpOr     = "OR"
	OpAdd    = "+"
	OpSub    = "-"
	OpConcat = "||"
)

// Binary applies Op to L and R.
type Binary struct {
	Op string
	L  Expr
	R  Expr
}

func (Binary) exprNode() {}

// Not negates X.
type Not struct {
	X Expr
}

func (Not) exprNode() {}

// In tests X against a list of values.
type In struct {
	X      Expr
	List   []Expr
	Negate bool
}

func (In) exprNode() {}

// InQuery tests X against the single-column result of Query.
type InQuery struct {
	X      Expr
	Query  *Select
	Negate bool
}

func (InQuery) exprNode() {}

// Exists tests whether Query returns any row.
type Exists struct {
	Query  *Select
	Negate bool
}

func (Exists) exprNode() {}

// IsNull tests X for NULL.
type IsNull struct {
	X      Expr
	Negate bool
}

func (IsNull) exprNode() {}

// Regexp matches X against a regular expression. Patterns are matched as
// given; callers anchor them when a whole-label match is wanted.
type Regexp struct {
	X       Expr
	Pattern Expr
	Negate  bool
	// Fold requests case-insensitive matching.
	Fold bool
}

func (Regexp) exprNode() {}

// CastType names a numeric cast target.
type CastType int

const (
	CastReal CastType = iota + 1
	CastInteger
)

// Cast converts X to a numeric type.
type Cast struct {
	X    Expr
	Type CastType
}

func (Cast) exprNode() {}

// Func calls a SQL function. Names are restricted to the portable set
// COALESCE, COUNT, MIN, MAX, LENGTH.
type Func struct {
	Name string
	Args []Expr
}

func (Func) exprNode() {}

// Subquery is a scalar subquery.
type Subquery struct {
	Query *Select
}

func (Subquery) exprNode() {}

// Star is the * in COUNT(*).
type Star struct{}

func (Star) exprNode() {}
