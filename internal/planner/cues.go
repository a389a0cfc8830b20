package planner

import (
	"regexp"
	"strings"

	"github.com/kalambet/kopi/internal/calc"
)

// Category groups cues that point at the same intent.
type Category string

const (
	CatArithmetic Category = "arithmetic"
	CatProduct    Category = "product"
	// CatBrowse holds generic search phrasing ("find", "looking for"). It
	// only counts towards a product search when no outlet cue fired.
	CatBrowse    Category = "browse"
	CatOutlet    Category = "outlet"
	CatReference Category = "reference"
	CatEnd       Category = "end"
	CatGreeting  Category = "greeting"
)

// Cue is a named pattern matched against the lower-cased message.
type Cue struct {
	Name     string
	Category Category
	Pattern  *regexp.Regexp
}

func cue(cat Category, name, pattern string) Cue {
	return Cue{Name: name, Category: cat, Pattern: regexp.MustCompile(pattern)}
}

// DefaultCues returns the cue catalogue. Area names are matched separately
// from configured data and reported under CatOutlet.
func DefaultCues() []Cue {
	return []Cue{
		cue(CatArithmetic, "operator", `\d\s*(?:\*\*|[-+*/%^×÷−])\s*[-+(−]*\s*[\d.(]`),
		cue(CatArithmetic, "math_verb", `\b(?:calculate|calculation|compute|solve|evaluate|math)\b`),

		cue(CatProduct, "product_noun", `\b(?:products?|items?|tumblers?|cups?|mugs?|bottles?|drinkware|flasks?|merch(?:andise)?|straws?|lids?|sleeves?)\b`),
		cue(CatProduct, "purchase", `\b(?:buy|buying|purchase|shop|shopping)\b`),
		cue(CatProduct, "recommend", `\b(?:recommend|suggest)(?:s|ed|ation|ations)?\b`),
		cue(CatProduct, "sell", `\bwhat\b.*\bsells?\b|\bdo\s+you\s+sell\b`),

		cue(CatBrowse, "search_verb", `\b(?:find|search(?:ing)?|looking\s+for|look\s+for|show\s+me|do\s+you\s+have)\s+\w+`),

		cue(CatOutlet, "outlet_noun", `\b(?:outlets?|stores?|branch(?:es)?|caf[eé]s?|locations?)\b`),
		cue(CatOutlet, "hours", `\b(?:hours?|opening|open|opens|closing|close|closes|what\s+time)\b`),
		cue(CatOutlet, "contact", `\b(?:address|directions?|phone|contact|call)\b`),
		cue(CatOutlet, "services", `\b(?:services?|dine[\s-]?in|drive[\s-]?thru|delivery|wifi|parking)\b`),
		cue(CatOutlet, "where", `\bwhere\b`),

		cue(CatReference, "pronoun", `\b(?:it|there|that\s+one|this\s+one|that\s+place|that\s+outlet|same\s+place)\b`),

		cue(CatEnd, "farewell", `\b(?:bye|goodbye|good\s*night|see\s+(?:you|ya)|thanks|thank\s+you|that'?s\s+all|no\s+more\s+questions|quit|exit)\b`),

		cue(CatGreeting, "greeting", `^(?:hi|hello|hey|hiya|good\s+(?:morning|afternoon|evening))\b`),
	}
}

var (
	wordOperators = strings.NewReplacer(
		" plus ", " + ",
		" minus ", " - ",
		" times ", " * ",
		" multiplied by ", " * ",
		" divided by ", " / ",
		" over ", " / ",
		" modulo ", " % ",
		" mod ", " % ",
		" to the power of ", " ** ",
	)
	exprCandidate = regexp.MustCompile(`[-−+(]*\s*[\d.][\d\s.+\-*/%^×÷()−]*`)
	hasOperator   = regexp.MustCompile(`\d\s*(?:\*\*|[-+*/%^×÷−])\s*[-+(−]*\s*[\d.(]`)
	followUp      = regexp.MustCompile(`^(?:what|when|where|which|how|is|are|does|do|can|could|will|and)\b|\?\s*$`)
	queryCount    = regexp.MustCompile(`\b(?:how\s+many|count)\b|\bnumber\s+of\s+(?:outlets|stores|branches)\b`)
	queryList     = regexp.MustCompile(`\b(?:all|list|every)\b`)
	queryPhone    = regexp.MustCompile(`\b(?:phone|call|contact|number)\b`)
	queryAddress  = regexp.MustCompile(`\b(?:address|directions?|where)\b`)
	queryHours    = regexp.MustCompile(`\b(?:hours?|opening|open|opens|closing|close|closes|what\s+time)\b`)
	queryServices = regexp.MustCompile(`\b(?:services?|dine[\s-]?in|drive[\s-]?thru|delivery|wifi|parking)\b`)
	placeAfter    = regexp.MustCompile(`\b(?:in|at|near|around)\s+(?:the\s+)?([a-z][a-z0-9'\-]*(?:\s+[a-z0-9][a-z0-9'\-]*){0,4})`)
)

// words that end a location phrase or cannot start one.
var placeStopwords = map[string]bool{
	"open": true, "opens": true, "close": true, "closes": true, "closing": true,
	"today": true, "tonight": true, "tomorrow": true, "now": true, "please": true,
	"and": true, "for": true, "on": true, "from": true, "with": true, "that": true,
	"outlet": true, "outlets": true, "store": true, "stores": true, "branch": true, "branches": true, "area": true,
	"morning": true, "afternoon": true, "evening": true, "weekend": true, "weekends": true,
	"total": true, "general": true, "me": true, "you": true, "here": true, "my": true,
	"is": true, "are": true, "does": true, "do": true, "what": true, "which": true, "the": true,
}

// extractExpression returns the first parseable arithmetic substring of
// text, with word operators ("plus", "divided by") already rewritten.
func extractExpression(text string) string {
	for _, cand := range exprCandidate.FindAllString(text, -1) {
		cand = strings.TrimRight(strings.TrimSpace(cand), " +-*/%^×÷−(")
		cand = trimUnbalanced(cand)
		if !hasOperator.MatchString(cand) {
			continue
		}
		if _, err := calc.Parse(cand); err == nil {
			return cand
		}
	}
	return ""
}

// trimUnbalanced drops trailing ")" without a partner, as in "(is it 2+2)".
func trimUnbalanced(s string) string {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	for depth < 0 && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ")"))
		depth++
	}
	return strings.TrimLeft(s, " ")
}

// extractPlace returns the words after "in/at/near" as a location, stopping
// at time words and verbs. It is used only when an outlet cue fired.
func extractPlace(norm, raw string) string {
	for _, m := range placeAfter.FindAllStringSubmatchIndex(norm, -1) {
		words := strings.Fields(norm[m[2]:m[3]])
		var kept []string
		for _, w := range words {
			if placeStopwords[w] {
				break
			}
			kept = append(kept, w)
		}
		if len(kept) == 0 || len(kept) > 3 {
			continue
		}
		place := strings.Join(kept, " ")
		// Echo the user's own casing when byte offsets line up.
		if len(norm) == len(raw) && strings.HasPrefix(norm[m[2]:], place) {
			return raw[m[2] : m[2]+len(place)]
		}
		return place
	}
	return ""
}

var (
	productLead = regexp.MustCompile(`^(?:(?:hi|hello|hey|please|can\s+you|could\s+you|i'?m|i\s+am|i'?d\s+like\s+to|i\s+want\s+to|i\s+want|i\s+need|help\s+me|me|looking\s+for|look\s+for|find|search\s+for|search|show|recommend|suggest|do\s+you\s+have|do\s+you\s+sell|what|which|any|some|a|an|the|to|buy|purchase|get|for|good|your|nice)\b[\s,]*)+`)
	productTail = regexp.MustCompile(`(?:\s+(?:do\s+you\s+(?:have|sell|offer)|are\s+available|you\s+have|please))+$`)
)

// residualPhrase strips request filler so "I'm looking for a tumbler?"
// becomes "tumbler". The raw text is returned when nothing is left.
func residualPhrase(norm, raw string) string {
	trimmed := strings.TrimRight(norm, " ?.!")
	lead := productLead.FindStringIndex(trimmed)
	start := 0
	if lead != nil {
		start = lead[1]
	}
	end := len(trimmed)
	if tail := productTail.FindStringIndex(trimmed[start:]); tail != nil {
		end = start + tail[0]
	}
	if start >= end {
		return strings.TrimSpace(raw)
	}
	if len(norm) == len(raw) {
		return strings.TrimSpace(raw[start:end])
	}
	return strings.TrimSpace(trimmed[start:end])
}
