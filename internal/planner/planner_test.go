package planner

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/kopi/internal/memory"
	"github.com/kalambet/kopi/internal/text2sql"
)

func newTestPlanner() *Planner {
	return New(text2sql.DefaultAreas())
}

func TestDecide_Actions(t *testing.T) {
	tests := []struct {
		text   string
		action Action
		rule   string
		params map[string]string
	}{
		{"what is 2 + 3 * 4?", ActionCalculate, "calculate", map[string]string{ParamExpression: "2 + 3 * 4"}},
		{"calculate (10 - 4) / 2", ActionCalculate, "calculate", map[string]string{ParamExpression: "(10 - 4) / 2"}},
		{"What's 10 divided by 4", ActionCalculate, "calculate", map[string]string{ParamExpression: "10 / 4"}},
		{"2^8", ActionCalculate, "calculate", map[string]string{ParamExpression: "2^8"}},
		{"Calculate", ActionAsk, "calculate_ask", map[string]string{ParamMissing: ParamExpression}},
		{"I'm looking for a tumbler", ActionProductSearch, "product_search", map[string]string{ParamQuery: "tumbler"}},
		{"What tumblers do you sell?", ActionProductSearch, "product_search", map[string]string{ParamQuery: "tumblers"}},
		{"recommend me a good mug for travel", ActionProductSearch, "product_search", map[string]string{ParamQuery: "mug for travel"}},
		{"do you have something for cold brew", ActionProductSearch, "product_search", nil},
		{"outlets in SS2", ActionOutletQuery, "outlet_query", map[string]string{ParamLocation: "SS2", ParamQueryType: QueryLocation, ParamQuery: "outlets in ss2"}},
		{"What are the opening hours in Petaling Jaya?", ActionOutletQuery, "outlet_query", map[string]string{ParamLocation: "Petaling Jaya", ParamQueryType: QueryHours, ParamQuery: "opening hours petaling jaya"}},
		{"phone number for the KLCC outlet", ActionOutletQuery, "outlet_query", map[string]string{ParamLocation: "KLCC", ParamQueryType: QueryPhone}},
		{"Is there an outlet in Timbuktu?", ActionOutletQuery, "outlet_query", map[string]string{ParamLocation: "Timbuktu", ParamQuery: "outlets in timbuktu"}},
		{"how many outlets do you have", ActionOutletQuery, "outlet_query", map[string]string{ParamQueryType: QueryCount, ParamQuery: "count outlets"}},
		{"list all your outlets", ActionOutletQuery, "outlet_query", map[string]string{ParamQueryType: QueryList, ParamQuery: "all outlets"}},
		{"where can I find an outlet near me", ActionAsk, "outlet_ask", map[string]string{ParamMissing: ParamLocation}},
		{"what time do you open", ActionAsk, "outlet_ask", map[string]string{ParamMissing: ParamLocation}},
		{"thanks, bye!", ActionEnd, "end", nil},
		{"Hello", ActionAsk, "greeting", nil},
		{"the weather is nice", ActionAsk, "fallback", nil},
		{"", ActionAsk, "fallback", nil},
		{"   ", ActionAsk, "fallback", nil},
	}
	p := newTestPlanner()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := p.Decide(tt.text, memory.New("s"))
			if d.Action != tt.action || d.Rule != tt.rule {
				t.Fatalf("Decide(%q) = %s/%s, want %s/%s (rationale: %s)", tt.text, d.Action, d.Rule, tt.action, tt.rule, d.Rationale)
			}
			for k, want := range tt.params {
				if got := d.Param(k); got != want {
					t.Errorf("param %s = %q, want %q", k, got, want)
				}
			}
			if d.Rationale == "" {
				t.Error("rationale must not be empty")
			}
			if d.Confidence <= 0 || d.Confidence > 1 {
				t.Errorf("confidence %v out of range", d.Confidence)
			}
		})
	}
}

func TestDecide_ResolvesReferenceFromMemory(t *testing.T) {
	mem := memory.New("s")
	mem.SetSlot(memory.SlotLocation, "Petaling Jaya")

	d := newTestPlanner().Decide("what time does it open", mem)
	if d.Action != ActionOutletQuery {
		t.Fatalf("Action = %s, want OUTLET_QUERY (rationale: %s)", d.Action, d.Rationale)
	}
	if d.Param(ParamLocation) != "Petaling Jaya" {
		t.Errorf("location = %q, want Petaling Jaya", d.Param(ParamLocation))
	}
	if d.Param(ParamQueryType) != QueryHours {
		t.Errorf("query_type = %q, want hours", d.Param(ParamQueryType))
	}
	if !strings.Contains(d.Rationale, "memory") {
		t.Errorf("rationale should say the location came from memory: %s", d.Rationale)
	}
}

func TestDecide_CanonicalizesRememberedAlias(t *testing.T) {
	mem := memory.New("s")
	mem.SetSlot(memory.SlotLocation, "pj")

	d := newTestPlanner().Decide("what time does it open", mem)
	if d.Param(ParamLocation) != "Petaling Jaya" {
		t.Errorf("location = %q, want Petaling Jaya", d.Param(ParamLocation))
	}
}

func TestDecide_CountWithLocationKeepsLocation(t *testing.T) {
	p := newTestPlanner()
	tr := text2sql.NewTranslator(text2sql.DefaultAreas())

	tests := []struct {
		text string
		loc  string
	}{
		{"How many outlets are there in SS2?", "SS2"},
		{"how many outlets in Petaling Jaya", "Petaling Jaya"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := p.Decide(tt.text, nil)
			if d.Action != ActionOutletQuery {
				t.Fatalf("Action = %s, want OUTLET_QUERY", d.Action)
			}
			if d.Param(ParamQueryType) == QueryCount {
				t.Errorf("query_type = count, want a location-scoped query")
			}
			if d.Param(ParamLocation) != tt.loc {
				t.Errorf("location = %q, want %q", d.Param(ParamLocation), tt.loc)
			}
			q := tr.Translate(d.Param(ParamQuery))
			if q.Pattern == "count" || len(q.Args) == 0 {
				t.Errorf("translated to %s %v, want location args", q.Pattern, q.Args)
			}
		})
	}

	if d := p.Decide("how many outlets do you have?", nil); d.Param(ParamQueryType) != QueryCount {
		t.Errorf("plain count query_type = %q, want count", d.Param(ParamQueryType))
	}
}

func TestDecide_PronounFollowUpNeedsMemory(t *testing.T) {
	p := newTestPlanner()

	d := p.Decide("is it busy there?", memory.New("s"))
	if d.Action != ActionAsk {
		t.Errorf("without memory Action = %s, want ASK", d.Action)
	}

	mem := memory.New("s")
	mem.SetSlot(memory.SlotLocation, "KLCC")
	d = p.Decide("is it busy there?", mem)
	if d.Action != ActionOutletQuery || d.Param(ParamLocation) != "KLCC" {
		t.Errorf("with memory = %s %q, want OUTLET_QUERY KLCC", d.Action, d.Param(ParamLocation))
	}
}

func TestDecide_CalculateAskMentionsExpression(t *testing.T) {
	d := newTestPlanner().Decide("Calculate", nil)
	if d.Action != ActionAsk {
		t.Fatalf("Action = %s, want ASK", d.Action)
	}
	if !strings.Contains(d.Rationale, "mathematical expression") {
		t.Errorf("rationale = %q, want mention of a mathematical expression", d.Rationale)
	}
}

func TestDecide_OutletAskNamesMissingSlot(t *testing.T) {
	d := newTestPlanner().Decide("what are your opening hours?", memory.New("s"))
	if d.Action != ActionAsk {
		t.Fatalf("Action = %s, want ASK", d.Action)
	}
	if !strings.Contains(d.Rationale, `"location"`) {
		t.Errorf("rationale = %q, want it to name the location slot", d.Rationale)
	}
	if !strings.Contains(d.Param(ParamPrompt), "SS2") {
		t.Errorf("prompt should suggest configured areas, got %q", d.Param(ParamPrompt))
	}
}

func TestDecide_UpdatesLocationSlotForAnyAction(t *testing.T) {
	p := newTestPlanner()
	mem := memory.New("s")

	d := p.Decide("do you sell tumblers at the KLCC outlet?", mem)
	if d.Action != ActionProductSearch {
		t.Fatalf("Action = %s, want PRODUCT_SEARCH", d.Action)
	}
	if v, _ := mem.Slot(memory.SlotLocation); v != "KLCC" {
		t.Errorf("location slot = %q, want KLCC", v)
	}

	// Next turn resolves the remembered location.
	d = p.Decide("and the opening hours?", mem)
	if d.Action != ActionOutletQuery || d.Param(ParamLocation) != "KLCC" {
		t.Errorf("follow-up = %s %q, want OUTLET_QUERY KLCC", d.Action, d.Param(ParamLocation))
	}
	if v, _ := mem.Slot(memory.SlotQueryType); v != QueryHours {
		t.Errorf("query_type slot = %q, want hours", v)
	}
}

func TestDecide_NewLocationOverridesMemory(t *testing.T) {
	mem := memory.New("s")
	mem.SetSlot(memory.SlotLocation, "KLCC")
	d := newTestPlanner().Decide("opening hours in Bangsar", mem)
	if d.Param(ParamLocation) != "Bangsar" {
		t.Errorf("location = %q, want Bangsar", d.Param(ParamLocation))
	}
	if v, _ := mem.Slot(memory.SlotLocation); v != "Bangsar" {
		t.Errorf("slot = %q, want Bangsar", v)
	}
}

func TestDecide_PriorityOrder(t *testing.T) {
	p := newTestPlanner()
	tests := []struct {
		text string
		want Action
	}{
		// Arithmetic beats everything else.
		{"thanks, what is 3 * 7 at the outlet", ActionCalculate},
		// Product beats outlet.
		{"which outlet sells tumblers", ActionProductSearch},
		// Outlet beats farewell.
		{"thanks! what time does SS2 open", ActionOutletQuery},
		// Generic search phrasing yields to outlet cues.
		{"find outlets in damansara", ActionOutletQuery},
	}
	for _, tt := range tests {
		if d := p.Decide(tt.text, nil); d.Action != tt.want {
			t.Errorf("Decide(%q) = %s, want %s (%s)", tt.text, d.Action, tt.want, d.Rationale)
		}
	}
}

func TestDecide_ConfidenceScoring(t *testing.T) {
	p := newTestPlanner()

	calc := p.Decide("2 + 2", nil)
	if calc.Confidence < 0.8 {
		t.Errorf("CALCULATE confidence = %v, want >= 0.8", calc.Confidence)
	}

	one := p.Decide("outlets in ss2", nil)
	more := p.Decide("opening hours and phone number of the ss2 outlet", nil)
	if more.Confidence <= one.Confidence {
		t.Errorf("more cues should raise confidence: %v vs %v", more.Confidence, one.Confidence)
	}

	fallback := p.Decide("hmm", nil)
	if fallback.Confidence >= one.Confidence {
		t.Errorf("fallback confidence %v should be below matched rules", fallback.Confidence)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	p := newTestPlanner()
	first := p.Decide("opening hours in SS2", nil)
	for i := 0; i < 10; i++ {
		if d := p.Decide("opening hours in SS2", nil); !reflect.DeepEqual(d, first) {
			t.Fatalf("decision changed: %+v vs %+v", d, first)
		}
	}
}

func TestDecide_NilAreas(t *testing.T) {
	d := New(nil).Decide("outlets in SS2", nil)
	if d.Action != ActionOutletQuery || d.Param(ParamLocation) != "SS2" {
		t.Errorf("Decide = %s %q, want OUTLET_QUERY SS2 via generic capture", d.Action, d.Param(ParamLocation))
	}
}

func TestRules_Order(t *testing.T) {
	var names []string
	for _, r := range newTestPlanner().Rules() {
		names = append(names, r.Name)
	}
	want := []string{"calculate", "calculate_ask", "product_search", "outlet_query", "outlet_ask", "end", "greeting", "fallback"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("rules = %v, want %v", names, want)
	}
}

func TestDecide_ProducesTranslatableOutletQuestions(t *testing.T) {
	p := newTestPlanner()
	tr := text2sql.NewTranslator(text2sql.DefaultAreas())
	tests := map[string]string{
		"outlets in SS2":                 "location",
		"opening hours at KLCC":          "hours",
		"phone number of the PJ outlet":  "phone",
		"where is the Bangsar outlet":    "address",
		"does Mont Kiara have delivery?": "services",
		"how many outlets are there":     "count",
		"how many outlets in SS2":        "location",
		"show all outlets":               "list_all",
	}
	for text, pattern := range tests {
		d := p.Decide(text, nil)
		if d.Action != ActionOutletQuery {
			t.Errorf("Decide(%q) = %s, want OUTLET_QUERY (%s)", text, d.Action, d.Rationale)
			continue
		}
		q := tr.Translate(d.Param(ParamQuery))
		if q.Pattern != pattern {
			t.Errorf("%q -> %q -> pattern %q, want %q", text, d.Param(ParamQuery), q.Pattern, pattern)
		}
	}
}

func TestExtractExpression(t *testing.T) {
	tests := map[string]string{
		"what is 2+2?":           "2+2",
		"(3 + 4) * 5 please":     "(3 + 4) * 5",
		"is it 7 * 6)":           "7 * 6",
		"-3 + 5":                 "-3 + 5",
		"outlets in ss2":         "",
		"call 03 now":            "",
		"2 +":                    "",
		"8 ** 2 and then 1 - 1": "8 ** 2",
	}
	for in, want := range tests {
		if got := extractExpression(in); got != want {
			t.Errorf("extractExpression(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResidualPhrase(t *testing.T) {
	tests := map[string]string{
		"I'm looking for a Tumbler":      "Tumbler",
		"do you have ceramic mugs?":      "ceramic mugs",
		"show me your products":          "products",
		"recommend":                      "recommend",
		"Any cold cups you have please?": "cold cups",
	}
	for in, want := range tests {
		got := residualPhrase(strings.ToLower(in), in)
		if got != want {
			t.Errorf("residualPhrase(%q) = %q, want %q", in, got, want)
		}
	}
}
