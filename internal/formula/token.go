package formula

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp     // + - * / %
	tokCmp    // < <= > >= == !=
	tokLogic  // && ||
	tokNot    // !
	tokLParen // (
	tokRParen // )
	tokComma
	tokQuestion
	tokColon
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c >= '0' && c <= '9' || c == '.':
			if err := l.lexNumber(); err != nil {
				return nil, err
			}
		case c == '\'' || c == '"':
			if err := l.lexString(c); err != nil {
				return nil, err
			}
		case isIdentStart(rune(c)):
			l.lexIdent()
		default:
			if err := l.lexSymbol(); err != nil {
				return nil, err
			}
		}
	}
	l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
	return l.toks, nil
}

func (l *lexer) lexNumber() error {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '.' {
			if seenDot {
				return fmt.Errorf("%w: malformed number at %d", ErrInvalidExpression, start)
			}
			seenDot = true
		} else if c < '0' || c > '9' {
			break
		}
		l.pos++
	}
	text := l.src[start:l.pos]
	if text == "." {
		return fmt.Errorf("%w: malformed number at %d", ErrInvalidExpression, start)
	}
	l.toks = append(l.toks, token{kind: tokNumber, text: text, pos: start})
	return nil
}

func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) && l.src[l.pos] != quote {
		b.WriteByte(l.src[l.pos])
		l.pos++
	}
	if l.pos >= len(l.src) {
		return fmt.Errorf("%w: unterminated string at %d", ErrInvalidExpression, start)
	}
	l.pos++
	l.toks = append(l.toks, token{kind: tokString, text: b.String(), pos: start})
	return nil
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	l.toks = append(l.toks, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) lexSymbol() error {
	start := l.pos
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "<=", ">=", "==", "!=":
		l.toks = append(l.toks, token{kind: tokCmp, text: two, pos: start})
		l.pos += 2
		return nil
	case "&&", "||":
		l.toks = append(l.toks, token{kind: tokLogic, text: two, pos: start})
		l.pos += 2
		return nil
	}
	switch c := l.src[l.pos]; c {
	case '+', '-', '*', '/', '%':
		l.toks = append(l.toks, token{kind: tokOp, text: string(c), pos: start})
	case '<', '>':
		l.toks = append(l.toks, token{kind: tokCmp, text: string(c), pos: start})
	case '!':
		l.toks = append(l.toks, token{kind: tokNot, text: "!", pos: start})
	case '(':
		l.toks = append(l.toks, token{kind: tokLParen, text: "(", pos: start})
	case ')':
		l.toks = append(l.toks, token{kind: tokRParen, text: ")", pos: start})
	case ',':
		l.toks = append(l.toks, token{kind: tokComma, text: ",", pos: start})
	case '?':
		l.toks = append(l.toks, token{kind: tokQuestion, text: "?", pos: start})
	case ':':
		l.toks = append(l.toks, token{kind: tokColon, text: ":", pos: start})
	default:
		return fmt.Errorf("%w: unexpected character %q at %d", ErrInvalidExpression, c, start)
	}
	l.pos++
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
