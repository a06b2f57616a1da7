// ABOUTME: Sandboxed arithmetic evaluator backing the calculate tool
// ABOUTME: Closed grammar: numeric literals, + - * / ( ), unary minus; nothing else

package evaluator

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrDivisionByZero is returned when an expression divides by zero.
var ErrDivisionByZero = errors.New("division by zero")

// ParseError describes input outside the arithmetic grammar, with the
// byte offset of the offending token. Identifiers, calls, and anything
// else that could reach code execution land here.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

// Evaluate tokenizes, parses, and evaluates an arithmetic expression
// using double-precision floats.
func Evaluate(input string) (float64, error) {
	tokens, err := lex(input)
	if err != nil {
		return 0, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return 0, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.describe())}
	}

	return root.eval()
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	value float64
	pos   int
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokNumber:
		return fmt.Sprintf("number %v", t.value)
	case tokPlus:
		return `"+"`
	case tokMinus:
		return `"-"`
	case tokStar:
		return `"*"`
	case tokSlash:
		return `"/"`
	case tokLParen:
		return `"("`
	default:
		return `")"`
	}
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+':
			tokens = append(tokens, token{kind: tokPlus, pos: i})
			i++
		case c == '-':
			tokens = append(tokens, token{kind: tokMinus, pos: i})
			i++
		case c == '*':
			tokens = append(tokens, token{kind: tokStar, pos: i})
			i++
		case c == '/':
			tokens = append(tokens, token{kind: tokSlash, pos: i})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: i})
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			value, err := strconv.ParseFloat(input[start:i], 64)
			if err != nil {
				return nil, &ParseError{Pos: start, Msg: fmt.Sprintf("invalid number %q", input[start:i])}
			}
			tokens = append(tokens, token{kind: tokNumber, value: value, pos: start})
		default:
			return nil, &ParseError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

// Expression tree nodes

type node interface {
	eval() (float64, error)
}

type literal float64

func (l literal) eval() (float64, error) { return float64(l), nil }

type negate struct {
	operand node
}

func (n negate) eval() (float64, error) {
	v, err := n.operand.eval()
	if err != nil {
		return 0, err
	}
	return -v, nil
}

type binary struct {
	op          tokenKind
	left, right node
}

func (b binary) eval() (float64, error) {
	l, err := b.left.eval()
	if err != nil {
		return 0, err
	}
	r, err := b.right.eval()
	if err != nil {
		return 0, err
	}
	switch b.op {
	case tokPlus:
		return l + r, nil
	case tokMinus:
		return l - r, nil
	case tokStar:
		return l * r, nil
	default:
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return l / r, nil
	}
}

// Recursive-descent parser with standard operator precedence:
// expr -> term { (+|-) term }, term -> unary { (*|/) unary },
// unary -> - unary | primary, primary -> number | ( expr ).
type parser struct {
	tokens []token
	i      int
}

func (p *parser) peek() token { return p.tokens[p.i] }

func (p *parser) next() token {
	tok := p.tokens[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokPlus, tokMinus:
			op := p.next().kind
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = binary{op: op, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokStar, tokSlash:
			op := p.next().kind
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = binary{op: op, left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negate{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return literal(tok.value), nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.kind != tokRParen {
			return nil, &ParseError{Pos: closing.pos, Msg: "expected closing parenthesis"}
		}
		return inner, nil
	default:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.describe())}
	}
}
