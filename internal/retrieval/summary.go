package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const descriptionPreview = 100

// Summarize renders ranked hits as a chat reply.
func Summarize(query string, hits []ProductHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("I couldn't find any drinkware products matching '%s'. Please try a different search term or browse our available items.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on your search for '%s', I found %d relevant drinkware %s:\n", query, len(hits), plural(len(hits), "product", "products"))
	for i, h := range hits {
		price := h.Price
		if price == "" {
			price = "Price not available"
		}
		fmt.Fprintf(&b, "\n%d. **%s** - %s", i+1, h.Name, price)
		if d := strings.TrimSpace(h.Description); d != "" {
			fmt.Fprintf(&b, "\n   %s", preview(d, descriptionPreview))
		}
		b.WriteString("\n")
	}

	if len(hits) == 1 {
		fmt.Fprintf(&b, "\nThis %s seems perfect for your needs!", hits[0].Name)
	} else {
		fmt.Fprintf(&b, "\nAll of these options are great for coffee lovers. The %s is our top recommendation based on your search.", hits[0].Name)
	}
	return b.String()
}

// preview cuts s to n runes, marking the cut with "...".
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
