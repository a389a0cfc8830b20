package text2sql

import (
	"fmt"
	"strings"
)

// Row is one result row keyed by column name.
type Row map[string]any

// field returns the trimmed string form of a column, or "" when absent.
func (r Row) field(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// Format renders rows as a chat reply for the question that produced them.
// Every column is optional.
func Format(rows []Row, question string) string {
	switch len(rows) {
	case 0:
		return fmt.Sprintf("I couldn't find any outlets matching your query: '%s'. "+
			"Try a broader search, like an area name, or ask for all outlets.", question)
	case 1:
		return formatSingle(rows[0])
	default:
		return formatList(rows, question)
	}
}

func formatSingle(row Row) string {
	if total := row.field("total_outlets"); total != "" {
		if total == "1" {
			return "There is 1 outlet in the directory."
		}
		return fmt.Sprintf("There are %s outlets in the directory.", total)
	}

	name := row.field("name")
	if name == "" {
		name = "the outlet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the information for %s:", name)
	for _, f := range []struct{ key, label string }{
		{"address", "📍 Address"},
		{"hours", "🕒 Hours"},
		{"phone", "📞 Phone"},
		{"services", "🛍️ Services"},
	} {
		if v := row.field(f.key); v != "" {
			fmt.Fprintf(&b, "\n%s: %s", f.label, v)
		}
	}
	return b.String()
}

func formatList(rows []Row, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d outlets for your query '%s':\n", len(rows), question)
	for i, row := range rows {
		name := row.field("name")
		if name == "" {
			name = "Unnamed outlet"
		}
		fmt.Fprintf(&b, "\n%d. **%s**", i+1, name)
		if addr := shortAddress(row.field("address")); addr != "" {
			fmt.Fprintf(&b, "\n   📍 %s", addr)
		}
		if hours := row.field("hours"); hours != "" {
			fmt.Fprintf(&b, "\n   🕒 %s", hours)
		}
	}
	b.WriteString("\n\nWould you like more details about any specific outlet?")
	return b.String()
}

func shortAddress(addr string) string {
	if i := strings.IndexByte(addr, ','); i >= 0 {
		return strings.TrimSpace(addr[:i])
	}
	return addr
}
