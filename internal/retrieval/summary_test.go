package retrieval

import (
	"strings"
	"testing"
)

func TestSummarize_Empty(t *testing.T) {
	got := Summarize("teapot", nil)
	if !strings.Contains(got, "'teapot'") || !strings.Contains(got, "try a different search term") {
		t.Errorf("Summarize = %q", got)
	}
}

func TestSummarize_Single(t *testing.T) {
	got := Summarize("tumbler", []ProductHit{{Name: "ZUS All-Can Tumbler", Price: "RM 79.00", Description: "600ml"}})
	for _, want := range []string{
		"Based on your search for 'tumbler', I found 1 relevant drinkware product:",
		"1. **ZUS All-Can Tumbler** - RM 79.00",
		"   600ml",
		"This ZUS All-Can Tumbler seems perfect for your needs!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestSummarize_List(t *testing.T) {
	long := strings.Repeat("a", 120)
	got := Summarize("cups", []ProductHit{
		{Name: "Mug", Price: "RM 39.00", Description: long},
		{Name: "Cup"},
	})
	for _, want := range []string{
		"I found 2 relevant drinkware products:",
		"2. **Cup** - Price not available",
		strings.Repeat("a", 100) + "...",
		"The Mug is our top recommendation",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, strings.Repeat("a", 101)) {
		t.Error("description was not truncated")
	}
}

func TestPreview_Runes(t *testing.T) {
	if got := preview("éééé", 2); got != "éé..." {
		t.Errorf("preview = %q", got)
	}
	if got := preview("abc", 3); got != "abc" {
		t.Errorf("preview = %q", got)
	}
}
