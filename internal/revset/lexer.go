package revset

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLParen
	tokRParen
	tokComma
	tokPipe
	tokAmp
	tokTilde
	tokDagRange
	tokRange
	tokMinus
	tokPlus
	tokAt
	tokColon
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokPipe:
		return "'|'"
	case tokAmp:
		return "'&'"
	case tokTilde:
		return "'~'"
	case tokDagRange:
		return "'::'"
	case tokRange:
		return "'..'"
	case tokMinus:
		return "'-'"
	case tokPlus:
		return "'+'"
	case tokAt:
		return "'@'"
	case tokColon:
		return "':'"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind tokenKind
	text string
	span Span
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '/' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lex splits input into tokens. Identifiers are runs of identifier
// characters joined by single '.' or '-', so "release-1.2" is one token
// while "x-" and "x..y" are not.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		start := i
		emit := func(kind tokenKind, n int) {
			toks = append(toks, token{kind: kind, text: input[start : start+n], span: Span{start, start + n}})
			i = start + n
		}
		switch {
		case r == '(':
			emit(tokLParen, 1)
		case r == ')':
			emit(tokRParen, 1)
		case r == ',':
			emit(tokComma, 1)
		case r == '|':
			emit(tokPipe, 1)
		case r == '&':
			emit(tokAmp, 1)
		case r == '~':
			emit(tokTilde, 1)
		case r == '-':
			emit(tokMinus, 1)
		case r == '+':
			emit(tokPlus, 1)
		case r == '@':
			emit(tokAt, 1)
		case r == ':':
			if strings.HasPrefix(input[i:], "::") {
				emit(tokDagRange, 2)
			} else {
				emit(tokColon, 1)
			}
		case r == '.':
			if !strings.HasPrefix(input[i:], "..") {
				return nil, &ParseError{Message: "unexpected '.'", Span: Span{i, i + 1}, Input: input}
			}
			emit(tokRange, 2)
		case r == '"' || r == '\'':
			tok, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = tok.span.End
		case isIdentRune(r):
			end := scanIdent(input, i)
			toks = append(toks, token{kind: tokIdent, text: input[i:end], span: Span{i, end}})
			i = end
		default:
			return nil, &ParseError{Message: fmt.Sprintf("unexpected character %q", r), Span: Span{i, i + size}, Input: input}
		}
	}
	toks = append(toks, token{kind: tokEOF, span: Span{len(input), len(input)}})
	return toks, nil
}

func scanIdent(input string, i int) int {
	for {
		for i < len(input) {
			r, size := utf8.DecodeRuneInString(input[i:])
			if !isIdentRune(r) {
				break
			}
			i += size
		}
		if i+1 >= len(input) || (input[i] != '.' && input[i] != '-') {
			return i
		}
		next, _ := utf8.DecodeRuneInString(input[i+1:])
		if !isIdentRune(next) {
			return i
		}
		i++
	}
}

// lexString reads a double-quoted string with backslash escapes or a
// single-quoted raw string starting at input[start].
func lexString(input string, start int) (token, error) {
	quote := input[start]
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch {
		case c == quote:
			return token{kind: tokString, text: sb.String(), span: Span{start, i + 1}}, nil
		case c == '\\' && quote == '"':
			if i+1 >= len(input) {
				i++
				continue
			}
			switch e := input[i+1]; e {
			case '"', '\\':
				sb.WriteByte(e)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return token{}, &ParseError{
					Message: fmt.Sprintf("invalid escape %q", input[i:i+2]),
					Span:    Span{i, i + 2},
					Input:   input,
				}
			}
			i += 2
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return token{}, &ParseError{Message: "unterminated string", Span: Span{start, len(input)}, Input: input}
}
