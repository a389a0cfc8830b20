package planner

import (
	"fmt"
	"strings"
)

// Rule is one row of the decision table. Rules are tried in order and the
// first whose Match returns true produces the Decision.
//
// Confidence is Base plus Step for every extra cue fired in the Boost
// categories, capped at Base+2*Step. The rule order and bases are:
//
//	calculate        CALCULATE       0.85  expression isolated
//	calculate_ask    ASK             0.60  arithmetic cue, no expression
//	product_search   PRODUCT_SEARCH  0.75  product cue, or browse cue without outlet cues
//	outlet_query     OUTLET_QUERY    0.75  outlet cue (or reference + remembered location), location known
//	outlet_ask       ASK             0.60  outlet cue, location missing
//	end              END             0.85  farewell
//	greeting         ASK             0.80  greeting
//	fallback         ASK             0.30  nothing matched
type Rule struct {
	Name   string
	Action Action
	Base   float64
	Boost  []Category
	Match  func(t *turn) bool
	Build  func(t *turn) (params map[string]string, rationale string)
}

const (
	confidenceStep = 0.05
	maxBoostSteps  = 2
)

func (r Rule) confidence(t *turn) float64 {
	n := 0
	for _, c := range r.Boost {
		n += len(t.fired[c])
	}
	extra := n - 1
	if extra < 0 {
		extra = 0
	}
	if extra > maxBoostSteps {
		extra = maxBoostSteps
	}
	c := r.Base + float64(extra)*confidenceStep
	if c > 0.99 {
		c = 0.99
	}
	return c
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name:   "calculate",
			Action: ActionCalculate,
			Base:   0.85,
			Boost:  []Category{CatArithmetic},
			Match:  func(t *turn) bool { return t.has(CatArithmetic) && t.expression != "" },
			Build: func(t *turn) (map[string]string, string) {
				return map[string]string{ParamExpression: t.expression},
					fmt.Sprintf("arithmetic cues %s fired; isolated expression %q", t.list(CatArithmetic), t.expression)
			},
		},
		{
			Name:   "calculate_ask",
			Action: ActionAsk,
			Base:   0.6,
			Boost:  []Category{CatArithmetic},
			Match:  func(t *turn) bool { return t.has(CatArithmetic) },
			Build: func(t *turn) (map[string]string, string) {
				return map[string]string{
						ParamPrompt:  "What calculation would you like me to perform? For example: 12 * (3 + 4)",
						ParamMissing: ParamExpression,
					},
					fmt.Sprintf("arithmetic cues %s fired but no mathematical expression could be isolated; need a concrete mathematical expression", t.list(CatArithmetic))
			},
		},
		{
			Name:   "product_search",
			Action: ActionProductSearch,
			Base:   0.75,
			Boost:  []Category{CatProduct, CatBrowse},
			Match: func(t *turn) bool {
				return t.has(CatProduct) || (t.has(CatBrowse) && !t.has(CatOutlet))
			},
			Build: func(t *turn) (map[string]string, string) {
				q := residualPhrase(t.norm, t.raw)
				return map[string]string{ParamQuery: q},
					fmt.Sprintf("product cues %s fired; searching for %q", t.list(CatProduct, CatBrowse), q)
			},
		},
		{
			Name:   "outlet_query",
			Action: ActionOutletQuery,
			Base:   0.75,
			Boost:  []Category{CatOutlet, CatReference},
			Match: func(t *turn) bool {
				if !t.outletIntent() {
					return false
				}
				qt := t.queryType()
				return t.location != "" || qt == QueryCount || qt == QueryList
			},
			Build: func(t *turn) (map[string]string, string) {
				qt := t.queryType()
				params := map[string]string{
					ParamQueryType: qt,
					ParamQuery:     outletQuestion(qt, t.location),
				}
				why := fmt.Sprintf("outlet cues %s fired; query type %s", t.list(CatOutlet, CatReference), qt)
				if t.location != "" && qt != QueryCount && qt != QueryList {
					params[ParamLocation] = t.location
					why += fmt.Sprintf("; location %q from %s", t.location, t.locationFrom)
				}
				return params, why
			},
		},
		{
			Name:   "outlet_ask",
			Action: ActionAsk,
			Base:   0.6,
			Boost:  []Category{CatOutlet},
			Match:  func(t *turn) bool { return t.outletIntent() },
			Build: func(t *turn) (map[string]string, string) {
				return map[string]string{
						ParamPrompt:    t.locationPrompt(),
						ParamMissing:   ParamLocation,
						ParamQueryType: t.queryType(),
					},
					fmt.Sprintf("outlet cues %s fired but slot %q is missing from the message and memory", t.list(CatOutlet), ParamLocation)
			},
		},
		{
			Name:   "end",
			Action: ActionEnd,
			Base:   0.85,
			Boost:  []Category{CatEnd},
			Match:  func(t *turn) bool { return t.has(CatEnd) },
			Build: func(t *turn) (map[string]string, string) {
				return map[string]string{ParamFarewell: "Thank you for chatting with us! Have a great day."},
					fmt.Sprintf("farewell cues %s fired", t.list(CatEnd))
			},
		},
		{
			Name:   "greeting",
			Action: ActionAsk,
			Base:   0.8,
			Match:  func(t *turn) bool { return t.has(CatGreeting) },
			Build: func(t *turn) (map[string]string, string) {
				return map[string]string{ParamPrompt: "Hello! I can help with calculations, our drinkware products or outlet information. What would you like to know?"},
					"greeting cue fired"
			},
		},
		{
			Name:   "fallback",
			Action: ActionAsk,
			Base:   0.3,
			Match:  func(*turn) bool { return true },
			Build: func(t *turn) (map[string]string, string) {
				why := "no intent cues matched; asking for clarification"
				if t.norm == "" {
					why = "empty message; asking for clarification"
				}
				return map[string]string{ParamPrompt: "I'm not sure I understood. I can do calculations, search our drinkware products, or look up outlets. What would you like?"}, why
			},
		},
	}
}

// outletQuestion phrases a translator-friendly question for the query type.
func outletQuestion(queryType, location string) string {
	loc := strings.ToLower(location)
	switch queryType {
	case QueryHours:
		return "opening hours " + loc
	case QueryPhone:
		return "phone number " + loc
	case QueryAddress:
		return "address " + loc
	case QueryServices:
		return "services " + loc
	case QueryCount:
		return "count outlets"
	case QueryList:
		return "all outlets"
	default:
		return "outlets in " + loc
	}
}
