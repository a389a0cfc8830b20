// Package text2sql turns outlet questions into parameterized SELECT
// statements, gates them before execution and renders the rows as text.
package text2sql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMaxRows bounds list-style templates when no limit is configured.
const DefaultMaxRows = 50

// Query is a translated outlet question. SQL uses ? placeholders that are
// bound to Args at execution time.
type Query struct {
	Pattern     string `json:"pattern"`
	SQL         string `json:"sql"`
	Args        []any  `json:"params"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}

// Display renders the SQL with its arguments inlined for people to read.
// The result is never executed.
func (q Query) Display() string {
	var b strings.Builder
	args := q.Args
	for _, r := range q.SQL {
		if r == '?' && len(args) > 0 {
			b.WriteString(literal(args[0]))
			args = args[1:]
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}

// Pattern is one row of the ordered dispatch table. Build receives the
// cleaned first capture group (empty when the regex has none) and the row
// limit, and returns the SQL template with its bound arguments.
type Pattern struct {
	Name        string
	Description string
	Regexp      *regexp.Regexp
	Build       func(location string, limit int) (string, []any)
}

const (
	outletColumns = "id, name, address, phone, hours, area, services"
	likeEscape    = ` ESCAPE '\'`
)

// DefaultPatterns returns the dispatch table in priority order. The first
// matching entry wins, so order is part of the behaviour.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "location",
			Description: "Find outlets in a specific location",
			Regexp:      regexp.MustCompile(`outlets?\s+in\s+(.+)`),
			Build:       searchAreaAddressName,
		},
		{
			Name:        "hours",
			Description: "Get opening hours for outlets",
			Regexp:      regexp.MustCompile(`opening\s+hours?\s+(.+)`),
			Build:       searchNameArea("name, hours, address"),
		},
		{
			Name:        "phone",
			Description: "Get phone numbers for outlets",
			Regexp:      regexp.MustCompile(`phone\s+numbers?\s+(.+)`),
			Build:       searchNameArea("name, phone, address"),
		},
		{
			Name:        "address",
			Description: "Get addresses for outlets",
			Regexp:      regexp.MustCompile(`address(?:es)?\s+(.+)`),
			Build:       searchNameArea("name, address"),
		},
		{
			Name:        "services",
			Description: "Get services for outlets",
			Regexp:      regexp.MustCompile(`services?\s+(.+)`),
			Build:       searchNameArea("name, services, address"),
		},
		{
			Name:        "list_all",
			Description: "List all outlets",
			Regexp:      regexp.MustCompile(`\ball\s+outlets?\b`),
			Build:       listAll,
		},
		{
			Name:        "count",
			Description: "Count total outlets",
			Regexp:      regexp.MustCompile(`\b(?:count|how\s+many)\s+outlets?\b`),
			Build: func(string, int) (string, []any) {
				return "SELECT COUNT(*) AS total_outlets FROM outlets", nil
			},
		},
		{
			Name:        "named",
			Description: "Find specific outlet",
			Regexp:      regexp.MustCompile(`(.+)\s+outlet`),
			Build:       searchNameArea(outletColumns),
		},
	}
}

func searchAreaAddressName(loc string, limit int) (string, []any) {
	like := likeArg(loc)
	sql := "SELECT " + outletColumns + " FROM outlets WHERE LOWER(area) LIKE ?" + likeEscape +
		" OR LOWER(address) LIKE ?" + likeEscape +
		" OR LOWER(name) LIKE ?" + likeEscape +
		" ORDER BY area, name LIMIT ?"
	return sql, []any{like, like, like, limit}
}

func searchNameArea(columns string) func(string, int) (string, []any) {
	return func(loc string, limit int) (string, []any) {
		like := likeArg(loc)
		sql := "SELECT " + columns + " FROM outlets WHERE LOWER(name) LIKE ?" + likeEscape +
			" OR LOWER(area) LIKE ?" + likeEscape +
			" ORDER BY name LIMIT ?"
		return sql, []any{like, like, limit}
	}
}

func listAll(_ string, limit int) (string, []any) {
	return "SELECT name, area, address, hours FROM outlets ORDER BY area, name LIMIT ?", []any{limit}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeArg(loc string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(loc)) + "%"
}

var (
	leadingFiller  = regexp.MustCompile(`^(?:(?:for|of|at|in|near|around|the|your|our|a|an)(?:\s+|$))+`)
	trailingFiller = regexp.MustCompile(`(?:\s+(?:outlets?|stores?|branch(?:es)?))+$`)
)

// cleanLocation strips connective words and punctuation from a captured
// location so "for the ss2 outlet?" becomes "ss2".
func cleanLocation(s string) string {
	s = strings.Trim(strings.TrimSpace(s), " ?.!,'\"")
	s = leadingFiller.ReplaceAllString(s, "")
	s = trailingFiller.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Translator maps outlet questions to queries. It holds no mutable state and
// is safe for concurrent use.
type Translator struct {
	patterns []Pattern
	areas    *Areas
	maxRows  int
}

// Option configures a Translator.
type Option func(*Translator)

// WithPatterns replaces the dispatch table.
func WithPatterns(p []Pattern) Option {
	return func(t *Translator) { t.patterns = p }
}

// WithMaxRows sets the LIMIT bound into list-style templates.
func WithMaxRows(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.maxRows = n
		}
	}
}

// NewTranslator builds a translator. A nil areas disables the keyword
// fallback.
func NewTranslator(areas *Areas, opts ...Option) *Translator {
	t := &Translator{
		patterns: DefaultPatterns(),
		areas:    areas,
		maxRows:  DefaultMaxRows,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Patterns returns the dispatch table in evaluation order.
func (t *Translator) Patterns() []Pattern {
	out := make([]Pattern, len(t.patterns))
	copy(out, t.patterns)
	return out
}

// Translate picks the first matching pattern. Without a pattern match it
// falls back to an area search when a known area is mentioned, and to a
// plain listing otherwise.
func (t *Translator) Translate(question string) Query {
	q := strings.ToLower(strings.TrimSpace(question))

	for _, p := range t.patterns {
		m := p.Regexp.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		var loc string
		if len(m) > 1 {
			loc = cleanLocation(m[1])
		}
		if len(m) > 1 && loc == "" {
			// Capture was only filler words ("outlets in the").
			continue
		}
		sql, args := p.Build(loc, t.maxRows)
		return Query{Pattern: p.Name, SQL: sql, Args: args, Description: p.Description, Location: loc}
	}

	if name, _, ok := t.areas.Find(q); ok {
		loc := strings.ToLower(name)
		sql, args := searchAreaAddressName(loc, t.maxRows)
		return Query{
			Pattern:     "area_keyword",
			SQL:         sql,
			Args:        args,
			Description: "Search outlets by location",
			Location:    loc,
		}
	}

	sql, args := t.listGeneral()
	return Query{
		Pattern:     "list_general",
		SQL:         sql,
		Args:        args,
		Description: "List all outlets (general query)",
	}
}

func (t *Translator) listGeneral() (string, []any) {
	return "SELECT name, area, address, hours FROM outlets ORDER BY area, name LIMIT ?", []any{t.maxRows}
}
