// Package revset implements the revision query language: a lexer and
// precedence parser producing an expression tree, a rewriting optimizer,
// and a lazy evaluator over the commit graph index.
//
// Operators, loosest binding first:
//
//	x | y, x ~ y      union, difference (left-associative)
//	x & y             intersection (left-associative)
//	~x                complement within visible commits
//	x::y  ::x  x::  ::   x..y  ..x  x..  ..   ranges (non-associative)
//	x-  x+            parents, children (postfix, repeatable)
//
// Function calls such as ancestors(x, 3) or author(exact:"Ann") are
// primaries, as are symbols, quoted strings, "@" and "name@".
package revset

import (
	"errors"
	"fmt"
	"slices"
)

type parser struct {
	input string
	toks  []token
	pos   int
}

// Parse parses input into an expression tree.
func Parse(input string) (Expr, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, toks: toks}
	if tok := p.peek(); tok.kind == tokEOF {
		return nil, p.errorf(tok.span, "empty revset")
	}
	expr, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok.span, "unexpected %s", tok.kind)
	}
	return expr, nil
}

// ParseWithAliases parses input and replaces every symbol naming an alias
// with the alias body, recursively.
func ParseWithAliases(input string, aliases map[string]string) (Expr, error) {
	expr, err := Parse(input)
	if err != nil || len(aliases) == 0 {
		return expr, err
	}
	return expandAliases(expr, input, aliases, nil)
}

// CheckAliases verifies that every alias name is a plain identifier and
// every body parses and expands without recursion.
func CheckAliases(aliases map[string]string) error {
	for name := range aliases {
		toks, err := lex(name)
		if err != nil || len(toks) != 2 || toks[0].kind != tokIdent {
			return fmt.Errorf("invalid revset alias name %q", name)
		}
	}
	for _, name := range sortedKeys(aliases) {
		if _, err := ParseWithAliases(name, aliases); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func expandAliases(expr Expr, input string, aliases map[string]string, stack []string) (Expr, error) {
	return transform(expr, func(e Expr) (Expr, error) {
		sym, ok := e.(*SymbolExpr)
		if !ok {
			return nil, nil
		}
		body, ok := aliases[sym.Name]
		if !ok {
			return nil, nil
		}
		if slices.Contains(stack, sym.Name) {
			return nil, &ParseError{
				Message: fmt.Sprintf("alias %q expands recursively", sym.Name),
				Span:    sym.span,
				Input:   input,
			}
		}
		inner, err := Parse(body)
		if err == nil {
			inner, err = expandAliases(inner, body, aliases, append(slices.Clone(stack), sym.Name))
		}
		if err != nil {
			msg := err.Error()
			var pe *ParseError
			if errors.As(err, &pe) {
				msg = pe.Message
			}
			return nil, &ParseError{
				Message: fmt.Sprintf("in alias %q: %s", sym.Name, msg),
				Span:    sym.span,
				Input:   input,
			}
		}
		return inner, nil
	})
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, p.errorf(tok.span, "expected %s, found %s", kind, tok.kind)
	}
	return tok, nil
}

func (p *parser) errorf(span Span, format string, args ...interface{}) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Span: span, Input: p.input}
}

func join(a, b Span) Span { return Span{Start: a.Start, End: b.End} }

func (p *parser) startsOperand() bool {
	switch p.peek().kind {
	case tokIdent, tokString, tokLParen, tokAt:
		return true
	}
	return false
}

func (p *parser) parseUnion() (Expr, error) {
	left, err := p.parseIntersection()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokPipe && op != tokTilde {
			return left, nil
		}
		p.next()
		right, err := p.parseIntersection()
		if err != nil {
			return nil, err
		}
		n := node{join(left.Span(), right.Span())}
		if op == tokPipe {
			left = &UnionExpr{node: n, L: left, R: right}
		} else {
			left = &DifferenceExpr{node: n, L: left, R: right}
		}
	}
}

func (p *parser) parseIntersection() (Expr, error) {
	left, err := p.parseNegation()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAmp {
		p.next()
		right, err := p.parseNegation()
		if err != nil {
			return nil, err
		}
		left = &IntersectionExpr{node: node{join(left.Span(), right.Span())}, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseNegation() (Expr, error) {
	if p.peek().kind != tokTilde {
		return p.parseRange()
	}
	tok := p.next()
	of, err := p.parseNegation()
	if err != nil {
		return nil, err
	}
	return &ComplementExpr{node: node{join(tok.span, of.Span())}, Of: of}, nil
}

func (p *parser) parseRange() (Expr, error) {
	if tok := p.peek(); tok.kind == tokDagRange || tok.kind == tokRange {
		p.next()
		if !p.startsOperand() {
			if tok.kind == tokDagRange {
				return &AllExpr{node{tok.span}}, nil
			}
			return &RangeExpr{node: node{tok.span}, Roots: &RootExpr{node{tok.span}}, Heads: &VisibleHeadsExpr{node{tok.span}}}, nil
		}
		heads, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		n := node{join(tok.span, heads.Span())}
		if tok.kind == tokDagRange {
			return &AncestorsExpr{node: n, Of: heads}, nil
		}
		return &RangeExpr{node: n, Roots: &RootExpr{node{tok.span}}, Heads: heads}, nil
	}

	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokDagRange && tok.kind != tokRange {
		return left, nil
	}
	p.next()
	if !p.startsOperand() {
		n := node{join(left.Span(), tok.span)}
		if tok.kind == tokDagRange {
			return &DescendantsExpr{node: n, Of: left}, nil
		}
		return &RangeExpr{node: n, Roots: left, Heads: &VisibleHeadsExpr{node{tok.span}}}, nil
	}
	right, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	n := node{join(left.Span(), right.Span())}
	if tok.kind == tokDagRange {
		return &DagRangeExpr{node: n, Roots: left, Heads: right}, nil
	}
	return &RangeExpr{node: n, Roots: left, Heads: right}, nil
}

func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.kind {
		case tokMinus:
			p.next()
			expr = &ParentsExpr{node: node{join(expr.Span(), tok.span)}, Of: expr}
		case tokPlus:
			p.next()
			expr = &ChildrenExpr{node: node{join(expr.Span(), tok.span)}, Of: expr}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseUnion()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokAt:
		return &WorkingCopyExpr{node: node{tok.span}}, nil
	case tokIdent:
		switch p.peek().kind {
		case tokLParen:
			return p.parseCall(tok)
		case tokAt:
			at := p.next()
			return &WorkingCopyExpr{node: node{join(tok.span, at.span)}, Workspace: tok.text}, nil
		}
		return &SymbolExpr{node: node{tok.span}, Name: tok.text}, nil
	case tokString:
		return &SymbolExpr{node: node{tok.span}, Name: tok.text}, nil
	}
	return nil, p.errorf(tok.span, "expected expression, found %s", tok.kind)
}

// argument is one parsed function argument. Bare identifiers, strings and
// "kind:text" patterns are kept as literals so functions taking patterns
// can read them; literals that are not patterns also parse as symbols.
type argument struct {
	span    Span
	expr    Expr
	kind    string
	text    string
	literal bool
}

func (p *parser) parseCall(name token) (Expr, error) {
	p.next() // (
	var args []argument
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseArgument()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	closing, err := p.expect(tokRParen)
	if err != nil {
		return nil, err
	}
	span := join(name.span, closing.span)

	fn, ok := functions[name.text]
	if !ok {
		return nil, p.errorf(name.span, "function %q doesn't exist", name.text)
	}
	if len(args) < fn.minArgs || len(args) > fn.maxArgs {
		return nil, p.errorf(span, "function %q expects %s", name.text, arity(fn.minArgs, fn.maxArgs))
	}
	expr, err := fn.build(node{span}, args)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, p.errorf(pe.Span, "%s", pe.Message)
		}
		return nil, p.errorf(span, "%v", err)
	}
	return expr, nil
}

func (p *parser) parseArgument() (argument, error) {
	tok := p.peek()
	if tok.kind == tokIdent || tok.kind == tokString {
		after := p.peekAt(1)
		if tok.kind == tokIdent && after.kind == tokColon {
			p.next()
			p.next()
			val := p.next()
			if val.kind != tokIdent && val.kind != tokString {
				return argument{}, p.errorf(val.span, "expected pattern after %q", tok.text+":")
			}
			return argument{span: join(tok.span, val.span), kind: tok.text, text: val.text, literal: true}, nil
		}
		if after.kind == tokComma || after.kind == tokRParen {
			p.next()
			return argument{
				span:    tok.span,
				expr:    &SymbolExpr{node: node{tok.span}, Name: tok.text},
				text:    tok.text,
				literal: true,
			}, nil
		}
	}
	expr, err := p.parseUnion()
	if err != nil {
		return argument{}, err
	}
	return argument{span: expr.Span(), expr: expr}, nil
}

func arity(lo, hi int) string {
	plural := func(n int) string {
		if n == 1 {
			return "1 argument"
		}
		return fmt.Sprintf("%d arguments", n)
	}
	switch {
	case hi == 0:
		return "no arguments"
	case lo == hi:
		return plural(lo)
	case lo == 0:
		return "at most " + plural(hi)
	}
	return fmt.Sprintf("%d to %d arguments", lo, hi)
}
