package query

import (
	"strings"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// lexer tokenizes a SELECT statement (§6's grammar). There is no pack
// example of a SQL grammar; this recursive-descent lexer/parser pair follows
// the shape of Go's own text/template parser rather than a parser-combinator
// library, since nothing in the corpus wires one.
type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer { return &lexer{src: []rune(src)} }

func (l *lexer) peekByte() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
func isIdentCont(r rune) bool { return isIdentStart(r) || (r >= '0' && r <= '9') }
func isDigit(r rune) bool     { return r >= '0' && r <= '9' }

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	r := l.src[l.pos]

	if isIdentStart(r) {
		start := l.pos
		for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos])}, nil
	}

	if isDigit(r) {
		start := l.pos
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: string(l.src[start:l.pos])}, nil
	}

	if r == '\'' {
		l.pos++
		var b strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != '\'' {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
			}
			b.WriteRune(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, nimbuserr.New(nimbuserr.SyntaxError, "unterminated string literal")
		}
		l.pos++ // closing quote
		return token{kind: tokString, text: b.String()}, nil
	}

	// Two-character operators.
	if l.pos+1 < len(l.src) {
		two := string(l.src[l.pos : l.pos+2])
		switch two {
		case "<=", ">=", "<>", "!=":
			l.pos += 2
			return token{kind: tokPunct, text: two}, nil
		}
	}

	switch r {
	case '=', '<', '>', '+', '-', '*', '/', '%', '(', ')', ',', '.':
		l.pos++
		return token{kind: tokPunct, text: string(r)}, nil
	}

	return token{}, nimbuserr.New(nimbuserr.SyntaxError, "unexpected character %q", string(r))
}
