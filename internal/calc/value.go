package calc

import (
	"math"
	"strconv"
	"strings"
)

// Value is the result of an evaluation. Integer results stay integral until
// an operation forces floating point (division, fractional powers, overflow).
type Value struct {
	i       int64
	f       float64
	isFloat bool
}

// Int returns an integral Value.
func Int(n int64) Value { return Value{i: n} }

// Float returns a floating-point Value.
func Float(f float64) Value { return Value{f: f, isFloat: true} }

// IsInt reports whether v holds an integer.
func (v Value) IsInt() bool { return !v.isFloat }

// Int64 returns the integer value; floats are truncated.
func (v Value) Int64() int64 {
	if v.isFloat {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns v as a float64.
func (v Value) Float64() float64 {
	if v.isFloat {
		return v.f
	}
	return float64(v.i)
}

func (v Value) isZero() bool {
	if v.isFloat {
		return v.f == 0
	}
	return v.i == 0
}

// String renders integers without a decimal point and floats with at least
// one fractional digit, so 10/2 prints as "5.0" and 2+3 as "5".
func (v Value) String() string {
	if !v.isFloat {
		return strconv.FormatInt(v.i, 10)
	}
	f := v.f
	abs := math.Abs(f)
	var s string
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s = strconv.FormatFloat(f, 'g', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}

// MarshalJSON emits the value as a JSON number, keeping the ".0" on floats.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}
