package planner

import (
	"fmt"
	"strings"

	"github.com/kalambet/kopi/internal/memory"
	"github.com/kalambet/kopi/internal/text2sql"
)

// Memory is the slice of conversation state the planner reads and writes.
// *memory.Conversation implements it.
type Memory interface {
	Slot(name string) (string, bool)
	SetSlot(name, value string)
}

// Planner classifies messages. It keeps no per-conversation state and is
// safe for concurrent use; all context comes through the Memory argument.
type Planner struct {
	areas *text2sql.Areas
	cues  []Cue
	rules []Rule
}

// New returns a planner that recognises the given areas as locations.
func New(areas *text2sql.Areas) *Planner {
	return &Planner{areas: areas, cues: DefaultCues(), rules: defaultRules()}
}

// Rules returns the decision table in evaluation order.
func (p *Planner) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Decide picks an action for text. mem may be nil. After deciding, any
// location mentioned in text is written to mem whatever the action.
func (p *Planner) Decide(text string, mem Memory) Decision {
	t := p.prepare(text, mem)

	var d Decision
	for _, r := range p.rules {
		if !r.Match(t) {
			continue
		}
		params, why := r.Build(t)
		d = Decision{
			Action:     r.Action,
			Params:     params,
			Confidence: r.confidence(t),
			Rationale:  why,
			Rule:       r.Name,
			Cues:       t.allCues(),
		}
		break
	}

	d.SlotUpdates = t.slotUpdates(d)
	if mem != nil {
		for k, v := range d.SlotUpdates {
			mem.SetSlot(k, v)
		}
	}
	return d
}

// turn is the per-call working state shared by the rules.
type turn struct {
	raw  string
	norm string
	mem  Memory

	fired map[Category][]string

	expression   string
	textLocation string
	location     string
	locationFrom string
	areaPrompt   []string
}

func (p *Planner) prepare(text string, mem Memory) *turn {
	raw := strings.TrimSpace(text)
	t := &turn{
		raw:   raw,
		norm:  strings.ToLower(raw),
		mem:   mem,
		fired: make(map[Category][]string),
	}
	if t.norm == "" {
		return t
	}

	math := strings.TrimSpace(wordOperators.Replace(" " + t.norm + " "))
	for _, c := range p.cues {
		subject := t.norm
		if c.Category == CatArithmetic {
			subject = math
		}
		if c.Pattern.MatchString(subject) {
			t.fired[c.Category] = append(t.fired[c.Category], c.Name)
		}
	}
	if t.has(CatArithmetic) {
		t.expression = extractExpression(math)
	}

	if name, _, ok := p.areas.Find(t.norm); ok {
		t.fired[CatOutlet] = append(t.fired[CatOutlet], "area:"+name)
		t.textLocation = name
	} else if t.has(CatOutlet) {
		t.textLocation = extractPlace(t.norm, t.raw)
	}

	switch {
	case t.textLocation != "":
		t.location, t.locationFrom = t.textLocation, "message"
	case mem != nil:
		if v, ok := mem.Slot(memory.SlotLocation); ok && v != "" {
			t.location, t.locationFrom = p.areas.Canonical(v), "memory"
		}
	}

	names := p.areas.Names()
	if len(names) > 3 {
		names = names[:3]
	}
	t.areaPrompt = names
	return t
}

func (t *turn) has(c Category) bool { return len(t.fired[c]) > 0 }

// list renders fired cue names for the rationale, e.g. [hours area:SS2].
func (t *turn) list(cats ...Category) string {
	var names []string
	for _, c := range cats {
		names = append(names, t.fired[c]...)
	}
	return "[" + strings.Join(names, " ") + "]"
}

func (t *turn) allCues() []string {
	var out []string
	for _, c := range []Category{CatArithmetic, CatProduct, CatBrowse, CatOutlet, CatReference, CatEnd, CatGreeting} {
		for _, n := range t.fired[c] {
			out = append(out, string(c)+"."+n)
		}
	}
	return out
}

// outletIntent is true when an outlet cue fired, or when the message is a
// follow-up question referring back to a remembered location.
func (t *turn) outletIntent() bool {
	if t.has(CatOutlet) {
		return true
	}
	return t.has(CatReference) && t.locationFrom == "memory" && followUp.MatchString(t.norm)
}

func (t *turn) queryType() string {
	switch {
	case queryCount.MatchString(t.norm) && t.textLocation == "":
		return QueryCount
	case queryHours.MatchString(t.norm):
		return QueryHours
	case queryPhone.MatchString(t.norm):
		return QueryPhone
	case queryServices.MatchString(t.norm):
		return QueryServices
	case queryAddress.MatchString(t.norm):
		return QueryAddress
	case queryList.MatchString(t.norm) && t.textLocation == "":
		return QueryList
	default:
		return QueryLocation
	}
}

func (t *turn) locationPrompt() string {
	if len(t.areaPrompt) == 0 {
		return "Which location or area are you interested in?"
	}
	return fmt.Sprintf("Which location or area are you interested in? For example: %s.", strings.Join(t.areaPrompt, ", "))
}

func (t *turn) slotUpdates(d Decision) map[string]string {
	updates := make(map[string]string)
	if t.textLocation != "" {
		updates[memory.SlotLocation] = t.textLocation
	}
	switch d.Action {
	case ActionOutletQuery:
		updates[memory.SlotQueryType] = d.Param(ParamQueryType)
		updates[memory.SlotTopic] = "outlets"
	case ActionProductSearch:
		updates[memory.SlotTopic] = "products"
	case ActionCalculate:
		updates[memory.SlotTopic] = "calculation"
	}
	if len(updates) == 0 {
		return nil
	}
	return updates
}
