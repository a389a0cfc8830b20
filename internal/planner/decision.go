// Package planner decides what the assistant should do with a user message.
// Decisions come from an ordered rule table over regex cue matches; nothing
// is learned and the same input and memory always give the same Decision.
package planner

// Action is the next step the execution layer should take.
type Action string

const (
	ActionAsk           Action = "ASK"
	ActionCalculate     Action = "CALCULATE"
	ActionProductSearch Action = "PRODUCT_SEARCH"
	ActionOutletQuery   Action = "OUTLET_QUERY"
	ActionEnd           Action = "END"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionAsk, ActionCalculate, ActionProductSearch, ActionOutletQuery, ActionEnd:
		return true
	}
	return false
}

// Parameter keys carried in Decision.Params.
const (
	ParamExpression = "expression"
	ParamQuery      = "query"
	ParamLocation   = "location"
	ParamQueryType  = "query_type"
	ParamPrompt     = "prompt"
	ParamMissing    = "missing"
	ParamFarewell   = "farewell"
)

// Outlet query types.
const (
	QueryHours    = "hours"
	QueryPhone    = "phone"
	QueryAddress  = "address"
	QueryServices = "services"
	QueryCount    = "count"
	QueryList     = "list"
	QueryLocation = "location"
)

// Decision is the planner's output for one message.
type Decision struct {
	Action      Action            `json:"action"`
	Params      map[string]string `json:"params,omitempty"`
	Confidence  float64           `json:"confidence"`
	Rationale   string            `json:"rationale"`
	Rule        string            `json:"rule"`
	Cues        []string          `json:"cues,omitempty"`
	SlotUpdates map[string]string `json:"slot_updates,omitempty"`
}

// Param returns a parameter or "".
func (d Decision) Param(key string) string {
	return d.Params[key]
}
