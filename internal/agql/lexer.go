package agql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tIdent
	tString
	tNumber
	tRegex
	tOp
	tKeyword
	tIllegal
)

// token is one lexeme. For tString the text is the unescaped value; for
// tRegex it is the pattern and flags holds the trailing flag letters; for
// tKeyword it is upper-cased.
type token struct {
	kind  tokenKind
	text  string
	flags string
	pos   int
	end   int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

var keywords = map[string]bool{
	"AND":     true,
	"OR":      true,
	"NOT":     true,
	"IN":      true,
	"MATCHES": true,
}

// two-character operators first so the longest match wins
var operators = []string{
	"==", "!=", "<>", "<=", ">=", "&&", "||",
	"=", "<", ">", "!", "(", ")", "[", "]", ".", ",",
}

// lex splits src into tokens. Lexical errors become tIllegal tokens so the
// parser can report them alongside grammar errors.
func lex(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '\'' || r == '"':
			tok, next := lexString(src, i, byte(r))
			toks = append(toks, tok)
			i = next
		case r == '/':
			tok, next := lexRegex(src, i)
			toks = append(toks, tok)
			i = next
		case r >= '0' && r <= '9' || r == '-' && i+1 < len(src) && isDigit(src[i+1]):
			start := i
			i++
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tNumber, text: src[start:i], pos: start, end: i})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			word := src[start:i]
			if up := strings.ToUpper(word); keywords[up] {
				toks = append(toks, token{kind: tKeyword, text: up, pos: start, end: i})
			} else {
				toks = append(toks, token{kind: tIdent, text: word, pos: start, end: i})
			}
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tOp, text: op, pos: i, end: i + len(op)})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				toks = append(toks, token{kind: tIllegal, text: fmt.Sprintf("unexpected character %q", r), pos: i, end: i + size})
				i += size
			}
		}
	}
	return append(toks, token{kind: tEOF, pos: len(src), end: len(src)})
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func lexString(src string, start int, quote byte) (token, int) {
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			next := src[i+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
			i += 2
		case c == quote:
			return token{kind: tString, text: sb.String(), pos: start, end: i + 1}, i + 1
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return token{kind: tIllegal, text: "unterminated string", pos: start, end: len(src)}, len(src)
}

// lexRegex scans /pattern/flags. Escaped slashes (\/) are unescaped; other
// escapes are kept for the regular expression engine.
func lexRegex(src string, start int) (token, int) {
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			if src[i+1] == '/' {
				sb.WriteByte('/')
			} else {
				sb.WriteByte(c)
				sb.WriteByte(src[i+1])
			}
			i += 2
		case c == '/':
			i++
			flagStart := i
			for i < len(src) && src[i] >= 'a' && src[i] <= 'z' {
				i++
			}
			return token{kind: tRegex, text: sb.String(), flags: src[flagStart:i], pos: start, end: i}, i
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return token{kind: tIllegal, text: "unterminated regular expression", pos: start, end: len(src)}, len(src)
}
