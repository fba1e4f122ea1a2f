package expression

import (
	"strings"
	"text/scanner"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPunct
	tokIllegal
)

type token struct {
	kind tokenKind
	lit  string
	pos  Position
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNumber:
		return "number " + t.lit
	default:
		return "'" + t.lit + "'"
	}
}

// lexer splits DSL source into identifiers, numbers and punctuation.
type lexer struct {
	sc  scanner.Scanner
	err *SyntaxError
}

func newLexer(src string) *lexer {
	l := &lexer{}
	l.sc.Init(strings.NewReader(src))
	l.sc.Mode = scanner.ScanIdents | scanner.ScanFloats
	l.sc.Error = func(s *scanner.Scanner, msg string) {
		if l.err == nil {
			l.err = &SyntaxError{
				Pos:   Position{Line: s.Position.Line, Column: s.Position.Column},
				Found: msg,
			}
		}
	}
	return l
}

func (l *lexer) next() token {
	r := l.sc.Scan()
	pos := Position{Line: l.sc.Position.Line, Column: l.sc.Position.Column}

	switch r {
	case scanner.EOF:
		return token{kind: tokEOF, pos: pos}
	case scanner.Ident:
		return token{kind: tokIdent, lit: l.sc.TokenText(), pos: pos}
	case scanner.Int, scanner.Float:
		return token{kind: tokNumber, lit: l.sc.TokenText(), pos: pos}
	case '=', '!', '<', '>':
		lit := string(r)
		if l.sc.Peek() == '=' {
			l.sc.Next()
			lit += "="
		}
		if lit == "!" {
			return token{kind: tokIllegal, lit: lit, pos: pos}
		}
		return token{kind: tokPunct, lit: lit, pos: pos}
	case '+', '-', '*', '/', '(', ')', '{', '}', ',', ';':
		return token{kind: tokPunct, lit: string(r), pos: pos}
	}
	return token{kind: tokIllegal, lit: l.sc.TokenText(), pos: pos}
}
