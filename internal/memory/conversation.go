// Package memory holds per-session conversation state: an append-only turn
// log and a last-write-wins slot store.
package memory

import (
	"sync"
	"time"
)

// Role identifies who spoke a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Well-known slot names.
const (
	SlotLocation  = "location"
	SlotQueryType = "query_type"
	SlotTopic     = "topic"
)

// Turn is one utterance. Turns are never modified after Append.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Conversation is the memory of a single session. It is never shared
// between sessions.
type Conversation struct {
	id    string
	clock Clock

	mu    sync.RWMutex
	turns []Turn
	slots map[string]string
}

// New returns an empty conversation.
func New(id string) *Conversation {
	return NewWithClock(id, realClock{})
}

// NewWithClock returns an empty conversation stamped by clock.
func NewWithClock(id string, clock Clock) *Conversation {
	return &Conversation{id: id, clock: clock, slots: make(map[string]string)}
}

// ID returns the session identifier.
func (c *Conversation) ID() string { return c.id }

// Append records a turn and returns it.
func (c *Conversation) Append(role Role, text string) Turn {
	t := Turn{Role: role, Text: text, At: c.clock.Now().UTC()}
	c.mu.Lock()
	c.turns = append(c.turns, t)
	c.mu.Unlock()
	return t
}

// Turns returns a copy of the turn log, oldest first.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Slot returns the last value stored under name.
func (c *Conversation) Slot(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.slots[name]
	return v, ok
}

// SetSlot overwrites the value for name. Empty values are ignored.
func (c *Conversation) SetSlot(name, value string) {
	if value == "" {
		return
	}
	c.mu.Lock()
	c.slots[name] = value
	c.mu.Unlock()
}

// Slots returns a copy of the slot store.
func (c *Conversation) Slots() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.slots))
	for k, v := range c.slots {
		out[k] = v
	}
	return out
}

// Snapshot is the serializable form of a Conversation.
type Snapshot struct {
	ID        string            `json:"id"`
	Turns     []Turn            `json:"turns"`
	Slots     map[string]string `json:"slots"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Snapshot copies the conversation's state.
func (c *Conversation) Snapshot() Snapshot {
	return Snapshot{
		ID:        c.id,
		Turns:     c.Turns(),
		Slots:     c.Slots(),
		UpdatedAt: c.clock.Now().UTC(),
	}
}

// Restore rebuilds a conversation from a snapshot. New turns are stamped
// by clock, or the wall clock when clock is nil.
func Restore(s Snapshot, clock Clock) *Conversation {
	if clock == nil {
		clock = realClock{}
	}
	c := NewWithClock(s.ID, clock)
	c.turns = append(c.turns, s.Turns...)
	for k, v := range s.Slots {
		c.slots[k] = v
	}
	return c
}
