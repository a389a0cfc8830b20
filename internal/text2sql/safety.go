package text2sql

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeQuery is returned by Check for SQL that must not be executed.
var ErrUnsafeQuery = errors.New("unsafe query")

// deniedSQL lists substrings that never appear in a translated read query.
// Matching is textual, so "created_at" is rejected too; templates avoid it.
var deniedSQL = []string{
	";", "--",
	"drop", "delete", "insert", "update", "alter", "create", "truncate",
	"exec", "execute", "union",
}

// Check reports why sql fails the gate, or nil when it may be executed.
func Check(sql string) error {
	q := strings.ToLower(strings.TrimSpace(sql))
	if !strings.HasPrefix(q, "select") {
		return fmt.Errorf("%w: only SELECT statements are allowed", ErrUnsafeQuery)
	}
	for _, frag := range deniedSQL {
		if strings.Contains(q, frag) {
			return fmt.Errorf("%w: contains %q", ErrUnsafeQuery, frag)
		}
	}
	return nil
}

// IsSafe reports whether sql passes the gate.
func IsSafe(sql string) bool {
	return Check(sql) == nil
}
