package agql

// Node is a parsed AGQL expression.
//
// This is a sealed interface: only types in this package implement it.
// Legacy spellings are normalized while parsing, so the tree for
// "label MATCHES 'a.*' AND NOT x IN ('b')" is identical to the tree for
// "/a.*/.test(label) && ![ 'b' ].includes(x)".
type Node interface {
	Span() (pos, end int)
	node()
}

type span struct {
	Pos, End int
}

func (s span) Span() (int, int) { return s.Pos, s.End }

// Ident is a bare identifier such as label or id.
type Ident struct {
	span
	Name string
}

// String is a quoted string literal.
type String struct {
	span
	Value string
}

// Number is a numeric literal; Text is the source spelling.
type Number struct {
	span
	Text string
}

// Regex is a /pattern/flags literal.
type Regex struct {
	span
	Pattern string
	Flags   string
}

// List is a bracketed (or, in legacy form, parenthesized) list of values.
type List struct {
	span
	Items []Node
}

// Member is X.Name.
type Member struct {
	span
	X    Node
	Name string
}

// Call is Fn(Args...). Fn is an Ident for functions and a Member for methods.
type Call struct {
	span
	Fn   Node
	Args []Node
}

// Binary operators, in their symbolic spelling.
const (
	OpEq  = "=="
	OpNe  = "!="
	OpLt  = "<"
	OpLe  = "<="
	OpGt  = ">"
	OpGe  = ">="
	OpAnd = "&&"
	OpOr  = "||"
)

// Binary is L Op R.
type Binary struct {
	span
	Op string
	L  Node
	R  Node
}

// Not is !X.
type Not struct {
	span
	X Node
}

// BadExpr stands in for source text that could not be parsed.
type BadExpr struct {
	span
	Text string
	Msg  string
}

func (*Ident) node()   {}
func (*String) node()  {}
func (*Number) node()  {}
func (*Regex) node()   {}
func (*List) node()    {}
func (*Member) node()  {}
func (*Call) node()    {}
func (*Binary) node()  {}
func (*Not) node()     {}
func (*BadExpr) node() {}

// path flattens a chain of members over an identifier (start.offset ->
// ["start", "offset"]). It returns nil for any other shape.
func path(n Node) []string {
	switch x := n.(type) {
	case *Ident:
		return []string{x.Name}
	case *Member:
		if p := path(x.X); p != nil {
			return append(p, x.Name)
		}
	}
	return nil
}

// walk visits n and its children in pre-order, left to right, until visit
// returns false.
func walk(n Node, visit func(Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	switch x := n.(type) {
	case *List:
		for _, item := range x.Items {
			if !walk(item, visit) {
				return false
			}
		}
	case *Member:
		return walk(x.X, visit)
	case *Call:
		if !walk(x.Fn, visit) {
			return false
		}
		for _, a := range x.Args {
			if !walk(a, visit) {
				return false
			}
		}
	case *Binary:
		return walk(x.L, visit) && walk(x.R, visit)
	case *Not:
		return walk(x.X, visit)
	}
	return true
}
