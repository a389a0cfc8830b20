package calc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  Value
	pos  int
}

var (
	glyphs = strings.NewReplacer(
		"^", "**",
		"×", "*",
		"÷", "/",
		"−", "-",
	)
	allowedChars = regexp.MustCompile(`^[0-9+\-*/().%\s]+$`)
	whitespace   = regexp.MustCompile(`\s+`)

	// Substrings that have no business in arithmetic and hint at code
	// execution attempts. Checked before any structural parsing.
	deniedFragments = []string{"__", "import", "exec", "eval", "open"}
)

// Normalize rewrites alternate operator glyphs to ASCII and collapses runs of
// whitespace.
func Normalize(expr string) string {
	expr = glyphs.Replace(strings.TrimSpace(expr))
	return whitespace.ReplaceAllString(expr, " ")
}

func screen(expr string) error {
	if expr == "" {
		return fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	lower := strings.ToLower(expr)
	for _, frag := range deniedFragments {
		if strings.Contains(lower, frag) {
			return fmt.Errorf("%w: forbidden fragment %q", ErrInvalidExpression, frag)
		}
	}
	if !allowedChars.MatchString(expr) {
		return fmt.Errorf("%w: only numbers, + - * / %% ** and parentheses are allowed", ErrInvalidExpression)
	}
	return nil
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '*' && i+1 < len(expr) && expr[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "**", pos: i})
			i += 2
		case strings.IndexByte("+-*/%", c) >= 0:
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '.' || (c >= '0' && c <= '9'):
			start := i
			dots := 0
			for i < len(expr) && (expr[i] == '.' || (expr[i] >= '0' && expr[i] <= '9')) {
				if expr[i] == '.' {
					dots++
				}
				i++
			}
			lit := expr[start:i]
			num, err := parseNumber(lit, dots)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokNumber, text: lit, num: num, pos: start})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrInvalidExpression, c)
		}
	}
	return toks, nil
}

func parseNumber(lit string, dots int) (Value, error) {
	if dots > 1 || lit == "." {
		return Value{}, fmt.Errorf("%w: malformed number %q", ErrInvalidExpression, lit)
	}
	if dots == 0 {
		n, err := strconv.ParseInt(lit, 10, 64)
		if err == nil {
			return Int(n), nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: malformed number %q", ErrInvalidExpression, lit)
	}
	return Float(f), nil
}
