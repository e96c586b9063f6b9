package agql

import (
	"fmt"
	"strings"
)

// Parse parses an AGQL expression. Syntax errors do not stop the parse:
// each unparseable stretch of input becomes a BadExpr in the tree (or, for
// trailing input, only in the returned list) and parsing resumes at the
// next && / || / ) boundary.
func Parse(src string) (Node, []*BadExpr) {
	p := &parser{src: src, toks: lex(src)}
	root := p.parseOr()
	for p.tok().kind != tEOF {
		start := p.tok().pos
		p.next()
		p.skip()
		p.bad(start, "unexpected input")
	}
	return root, p.errs
}

type parser struct {
	src  string
	toks []token
	i    int
	errs []*BadExpr
}

func (p *parser) tok() token {
	return p.toks[p.i]
}

func (p *parser) peek() token {
	if p.i+1 < len(p.toks) {
		return p.toks[p.i+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tEOF {
		p.i++
	}
	return t
}

// prevEnd is the end offset of the last consumed token.
func (p *parser) prevEnd() int {
	if p.i == 0 {
		return 0
	}
	return p.toks[p.i-1].end
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.tok().is(kind, text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) atOr() bool {
	return p.tok().is(tOp, "||") || p.tok().is(tKeyword, "OR")
}

func (p *parser) atAnd() bool {
	return p.tok().is(tOp, "&&") || p.tok().is(tKeyword, "AND")
}

// skip advances to the next recovery boundary at nesting depth zero.
func (p *parser) skip() {
	depth := 0
	for {
		t := p.tok()
		switch {
		case t.kind == tEOF:
			return
		case t.is(tOp, "(") || t.is(tOp, "["):
			depth++
		case t.is(tOp, ")") || t.is(tOp, "]"):
			if depth == 0 {
				return
			}
			depth--
		case depth == 0 && (p.atAnd() || p.atOr() || t.is(tOp, ",")):
			return
		}
		p.next()
	}
}

// bad records a BadExpr covering the source from start to the last
// consumed token.
func (p *parser) bad(start int, msg string) *BadExpr {
	end := p.prevEnd()
	if end < start {
		end = start
	}
	text := strings.TrimSpace(p.src[start:end])
	if text == "" {
		if t := p.tok(); t.kind == tEOF {
			text = "end of input"
		} else {
			text = p.src[t.pos:t.end]
		}
	}
	b := &BadExpr{span: span{start, end}, Text: text, Msg: msg}
	p.errs = append(p.errs, b)
	return b
}

func (p *parser) parseOr() Node {
	x := p.parseAnd()
	for p.atOr() {
		p.next()
		y := p.parseAnd()
		x = &Binary{span: p.join(x, y), Op: OpOr, L: x, R: y}
	}
	return x
}

func (p *parser) parseAnd() Node {
	x := p.parseUnary()
	for p.atAnd() {
		p.next()
		y := p.parseUnary()
		x = &Binary{span: p.join(x, y), Op: OpAnd, L: x, R: y}
	}
	return x
}

func (p *parser) parseUnary() Node {
	start := p.tok().pos
	// NOT x IN (...) and NOT x MATCHES y negate the whole test
	if p.tok().is(tOp, "!") || p.tok().is(tKeyword, "NOT") {
		p.next()
		x := p.parseUnary()
		return &Not{span: span{start, p.prevEnd()}, X: x}
	}
	return p.parseCompare()
}

var comparisons = map[string]string{
	"==": OpEq,
	"=":  OpEq,
	"!=": OpNe,
	"<>": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

func (p *parser) parseCompare() Node {
	start := p.tok().pos
	x := p.parsePostfix()

	if t := p.tok(); t.kind == tOp {
		if op, ok := comparisons[t.text]; ok {
			p.next()
			y := p.parsePostfix()
			return &Binary{span: span{start, p.prevEnd()}, Op: op, L: x, R: y}
		}
	}

	negate := false
	if p.tok().is(tKeyword, "NOT") {
		if next := p.peek(); next.is(tKeyword, "MATCHES") || next.is(tKeyword, "IN") {
			p.next()
			negate = true
		}
	}

	var out Node
	switch {
	case p.accept(tKeyword, "MATCHES"):
		pat := p.parsePostfix()
		if s, ok := pat.(*String); ok {
			pat = &Regex{span: s.span, Pattern: s.Value}
		}
		out = p.method(start, pat, "test", x)
	case p.accept(tKeyword, "IN"):
		var set Node
		if p.tok().is(tOp, "(") {
			lstart := p.next().pos
			items := p.parseItems(")")
			set = &List{span: span{lstart, p.prevEnd()}, Items: items}
		} else {
			set = p.parsePostfix()
		}
		out = p.method(start, set, "includes", x)
	default:
		return x
	}
	if negate {
		return &Not{span: span{start, p.prevEnd()}, X: out}
	}
	return out
}

// method builds recv.name(arg), the canonical form of the legacy infix
// operators.
func (p *parser) method(start int, recv Node, name string, arg Node) Node {
	sp := span{start, p.prevEnd()}
	return &Call{span: sp, Fn: &Member{span: sp, X: recv, Name: name}, Args: []Node{arg}}
}

func (p *parser) parsePostfix() Node {
	start := p.tok().pos
	x := p.parsePrimary()
	for p.tok().is(tOp, ".") {
		p.next()
		t := p.tok()
		if t.kind != tIdent && t.kind != tKeyword {
			return p.bad(start, "expected a property name after '.'")
		}
		p.next()
		x = &Member{span: span{start, p.prevEnd()}, X: x, Name: t.text}
		if p.tok().is(tOp, "(") {
			p.next()
			args := p.parseItems(")")
			x = &Call{span: span{start, p.prevEnd()}, Fn: x, Args: args}
		}
	}
	return x
}

func (p *parser) parsePrimary() Node {
	t := p.tok()
	switch {
	case t.kind == tString:
		p.next()
		return &String{span: span{t.pos, t.end}, Value: t.text}
	case t.kind == tNumber:
		p.next()
		return &Number{span: span{t.pos, t.end}, Text: t.text}
	case t.kind == tRegex:
		p.next()
		return &Regex{span: span{t.pos, t.end}, Pattern: t.text, Flags: t.flags}
	case t.kind == tIdent:
		p.next()
		id := &Ident{span: span{t.pos, t.end}, Name: t.text}
		if p.tok().is(tOp, "(") {
			p.next()
			args := p.parseItems(")")
			return &Call{span: span{t.pos, p.prevEnd()}, Fn: id, Args: args}
		}
		return id
	case t.is(tOp, "["):
		p.next()
		items := p.parseItems("]")
		return &List{span: span{t.pos, p.prevEnd()}, Items: items}
	case t.is(tOp, "("):
		p.next()
		x := p.parseOr()
		if !p.accept(tOp, ")") {
			p.skip()
			p.accept(tOp, ")")
			return p.bad(t.pos, "expected ')'")
		}
		return x
	case t.kind == tIllegal:
		p.next()
		p.skip()
		return p.bad(t.pos, t.text)
	case t.kind == tEOF:
		return p.bad(t.pos, "unexpected end of expression")
	default:
		if !p.atBoundary() {
			p.next()
			p.skip()
		}
		return p.bad(t.pos, fmt.Sprintf("unexpected %q", t.text))
	}
}

// atBoundary reports whether the current token ends an operand.
func (p *parser) atBoundary() bool {
	t := p.tok()
	return p.atAnd() || p.atOr() || t.is(tOp, ")") || t.is(tOp, "]") || t.is(tOp, ",")
}

// parseItems parses a comma-separated list up to and including the closing
// token; the opening token has already been consumed.
func (p *parser) parseItems(closing string) []Node {
	var items []Node
	if p.accept(tOp, closing) {
		return items
	}
	for {
		items = append(items, p.parseOr())
		if p.accept(tOp, ",") {
			continue
		}
		if p.accept(tOp, closing) {
			return items
		}
		start := p.tok().pos
		p.skip()
		if !p.accept(tOp, closing) && p.tok().kind != tEOF {
			// a mismatched bracket; consume it so parsing makes progress
			p.next()
		}
		items = append(items, p.bad(start, fmt.Sprintf("expected ',' or '%s'", closing)))
		return items
	}
}

func (p *parser) join(x, y Node) span {
	pos, _ := x.Span()
	_, end := y.Span()
	return span{pos, end}
}
