// Package calc evaluates arithmetic expressions without executing code. Input
// is screened textually, parsed into a restricted tree and walked.
package calc

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidExpression is returned for anything outside the grammar.
	ErrInvalidExpression = errors.New("invalid expression")
	// ErrDivisionByZero is returned when / or % has a zero right operand.
	ErrDivisionByZero = errors.New("division by zero")
)

// Evaluate parses and evaluates expr.
func Evaluate(expr string) (Value, error) {
	root, err := Parse(expr)
	if err != nil {
		return Value{}, err
	}
	v, err := Eval(root)
	if err != nil {
		return Value{}, err
	}
	if v.isFloat && (math.IsInf(v.f, 0) || math.IsNaN(v.f)) {
		return Value{}, fmt.Errorf("%w: result is not a finite number", ErrInvalidExpression)
	}
	return v, nil
}

// Eval walks a tree produced by Parse. Unknown node kinds or operators fail
// closed.
func Eval(n *Node) (Value, error) {
	if n == nil {
		return Value{}, fmt.Errorf("%w: empty node", ErrInvalidExpression)
	}
	switch n.Kind {
	case KindNumber:
		return n.Value, nil
	case KindGroup:
		return Eval(n.Left)
	case KindUnary:
		v, err := Eval(n.Left)
		if err != nil {
			return Value{}, err
		}
		switch n.Op {
		case "+":
			return v, nil
		case "-":
			return negate(v), nil
		}
	case KindBinary:
		l, err := Eval(n.Left)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(n.Right)
		if err != nil {
			return Value{}, err
		}
		return binary(n.Op, l, r)
	}
	return Value{}, fmt.Errorf("%w: unsupported node", ErrInvalidExpression)
}

func negate(v Value) Value {
	if v.isFloat {
		return Float(-v.f)
	}
	if v.i == math.MinInt64 {
		return Float(-float64(v.i))
	}
	return Int(-v.i)
}

func binary(op string, l, r Value) (Value, error) {
	switch op {
	case "+":
		if l.IsInt() && r.IsInt() {
			if s, ok := addInt(l.i, r.i); ok {
				return Int(s), nil
			}
		}
		return Float(l.Float64() + r.Float64()), nil
	case "-":
		if l.IsInt() && r.IsInt() {
			if r.i != math.MinInt64 {
				if s, ok := addInt(l.i, -r.i); ok {
					return Int(s), nil
				}
			}
		}
		return Float(l.Float64() - r.Float64()), nil
	case "*":
		if l.IsInt() && r.IsInt() {
			if p, ok := mulInt(l.i, r.i); ok {
				return Int(p), nil
			}
		}
		return Float(l.Float64() * r.Float64()), nil
	case "/":
		if r.isZero() {
			return Value{}, ErrDivisionByZero
		}
		return Float(l.Float64() / r.Float64()), nil
	case "%":
		if r.isZero() {
			return Value{}, ErrDivisionByZero
		}
		if l.IsInt() && r.IsInt() {
			return Int(floorModInt(l.i, r.i)), nil
		}
		return Float(floorModFloat(l.Float64(), r.Float64())), nil
	case "**":
		return pow(l, r)
	}
	return Value{}, fmt.Errorf("%w: unsupported operator %q", ErrInvalidExpression, op)
}

func pow(base, exp Value) (Value, error) {
	if base.isZero() && exp.Float64() < 0 {
		return Value{}, fmt.Errorf("%w: zero raised to a negative power", ErrDivisionByZero)
	}
	if base.IsInt() && exp.IsInt() && exp.i >= 0 {
		if p, ok := powInt(base.i, exp.i); ok {
			return Int(p), nil
		}
	}
	b, e := base.Float64(), exp.Float64()
	if b < 0 && e != math.Trunc(e) {
		return Value{}, fmt.Errorf("%w: fractional power of a negative number", ErrInvalidExpression)
	}
	return Float(math.Pow(b, e)), nil
}

func addInt(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}

func powInt(base, exp int64) (int64, bool) {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			var ok bool
			if result, ok = mulInt(result, base); !ok {
				return 0, false
			}
		}
		exp >>= 1
		if exp > 0 {
			var ok bool
			if base, ok = mulInt(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

// The remainder takes the sign of the divisor: -7 % 3 == 2, 7 % -3 == -2.
func floorModInt(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func floorModFloat(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}
