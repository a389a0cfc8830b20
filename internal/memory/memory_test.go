package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestConversation_AppendOnly(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock("s1", clock)
	c.Append(RoleUser, "hi")
	clock.Advance(time.Second)
	c.Append(RoleAssistant, "hello")

	turns := c.Turns()
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "hi" {
		t.Errorf("turns[0] = %+v", turns[0])
	}
	if !turns[1].At.After(turns[0].At) {
		t.Error("turn timestamps should follow append order")
	}

	// Mutating the returned slice must not change the log.
	turns[0].Text = "changed"
	if c.Turns()[0].Text != "hi" {
		t.Error("Turns() should return a copy")
	}
}

func TestConversation_SlotsLastWriteWins(t *testing.T) {
	c := New("s1")
	if _, ok := c.Slot(SlotLocation); ok {
		t.Fatal("new conversation should have no slots")
	}
	c.SetSlot(SlotLocation, "SS2")
	c.SetSlot(SlotLocation, "Petaling Jaya")
	c.SetSlot(SlotLocation, "")

	v, ok := c.Slot(SlotLocation)
	if !ok || v != "Petaling Jaya" {
		t.Errorf("Slot(location) = %q, %v; want Petaling Jaya", v, ok)
	}

	slots := c.Slots()
	slots[SlotLocation] = "mutated"
	if v, _ := c.Slot(SlotLocation); v != "Petaling Jaya" {
		t.Error("Slots() should return a copy")
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := New("s1")
	c.Append(RoleUser, "outlets in ss2")
	c.SetSlot(SlotLocation, "SS2")

	r := Restore(c.Snapshot(), nil)
	if r.ID() != "s1" || r.Len() != 1 {
		t.Fatalf("restored id=%q len=%d", r.ID(), r.Len())
	}
	if v, _ := r.Slot(SlotLocation); v != "SS2" {
		t.Errorf("restored slot = %q", v)
	}

	r.Append(RoleAssistant, "ok")
	if c.Len() != 1 {
		t.Error("restored conversation should not share state with the one it was saved from")
	}
}

func TestMemoryStore_KeepsClock(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStoreWithClock(time.Hour, clock)

	c, err := LoadOrNew(ctx, s, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Append(RoleUser, "hi").At; !got.Equal(clock.Now()) {
		t.Errorf("new session turn at %v, want %v", got, clock.Now())
	}
	if err := s.Save(ctx, c); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	loaded, err := LoadOrNew(ctx, s, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got := loaded.Append(RoleAssistant, "hello").At; !got.Equal(clock.Now()) {
		t.Errorf("restored session turn at %v, want %v", got, clock.Now())
	}
}

func TestMemoryStore_IsolatesSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	a := New("a")
	a.SetSlot(SlotLocation, "KLCC")
	if err := s.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	b := New("b")
	b.SetSlot(SlotLocation, "SS2")
	if err := s.Save(ctx, b); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get(a) error: %v", err)
	}
	if v, _ := got.Slot(SlotLocation); v != "KLCC" {
		t.Errorf("a location = %q, want KLCC", v)
	}

	// Changes to a loaded copy are invisible until saved.
	got.SetSlot(SlotLocation, "Bangsar")
	again, _ := s.Get(ctx, "a")
	if v, _ := again.Slot(SlotLocation); v != "KLCC" {
		t.Errorf("unsaved change leaked: %q", v)
	}
}

func TestMemoryStore_NotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}

	c, err := LoadOrNew(ctx, s, "fresh")
	if err != nil || c.ID() != "fresh" || c.Len() != 0 {
		t.Fatalf("LoadOrNew = %v, %v", c, err)
	}

	if err := s.Save(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "fresh"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("after delete error = %v, want ErrSessionNotFound", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("deleting unknown session: %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStoreWithClock(time.Minute, clock)

	if err := s.Save(ctx, New("s1")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Second)
	if _, err := s.Get(ctx, "s1"); err != nil {
		t.Fatalf("session should still be live: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := s.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound after TTL", err)
	}
	if s.Len() != 0 {
		t.Errorf("expired session should be dropped, Len() = %d", s.Len())
	}
}
