package calc

import "fmt"

// NodeKind enumerates the node shapes the evaluator accepts.
type NodeKind int

const (
	KindNumber NodeKind = iota
	KindBinary
	KindUnary
	KindGroup
)

// Node is one vertex of a restricted arithmetic syntax tree.
//
//	KindNumber: Value holds the literal.
//	KindBinary: Op is one of + - * / % **, Left and Right are set.
//	KindUnary:  Op is + or -, Left is the operand.
//	KindGroup:  Left is the parenthesized sub-expression.
type Node struct {
	Kind  NodeKind
	Op    string
	Value Value
	Left  *Node
	Right *Node
}

// Grammar, lowest precedence first. Power is right-associative and binds
// tighter than a unary sign on its left, so -2**2 is -4 and 2**-1 is 0.5.
//
//	expr   := term (("+" | "-") term)*
//	term   := unary (("*" | "/" | "%") unary)*
//	unary  := ("+" | "-") unary | power
//	power  := atom ["**" unary]
//	atom   := NUMBER | "(" expr ")"
type parser struct {
	toks []token
	pos  int
}

// Parse normalizes and screens expr, then builds its syntax tree.
func Parse(expr string) (*Node, error) {
	expr = Normalize(expr)
	if err := screen(expr); err != nil {
		return nil, err
	}
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidExpression, t.text, t.pos)
	}
	return n, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t, ok := p.peek()
	if !ok || t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) expr() (*Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Op: op, Left: left, Right: right}
	}
}

func (p *parser) term() (*Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Op: op, Left: left, Right: right}
	}
}

func (p *parser) unary() (*Node, error) {
	if op, ok := p.acceptOp("+", "-"); ok {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindUnary, Op: op, Left: operand}, nil
	}
	return p.power()
}

func (p *parser) power() (*Node, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	if _, ok := p.acceptOp("**"); !ok {
		return base, nil
	}
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindBinary, Op: "**", Left: base, Right: exp}, nil
}

func (p *parser) atom() (*Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return &Node{Kind: KindNumber, Value: t.num}, nil
	case tokLParen:
		p.pos++
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
		}
		p.pos++
		return &Node{Kind: KindGroup, Left: inner}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidExpression, t.text, t.pos)
	}
}
