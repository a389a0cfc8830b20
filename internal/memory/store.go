package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when a session has no stored memory.
var ErrSessionNotFound = errors.New("session not found")

// Store persists conversations between turns.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, c *Conversation) error
	Delete(ctx context.Context, id string) error
}

// LoadOrNew returns the stored conversation for id, or a fresh one when the
// session is unknown.
func LoadOrNew(ctx context.Context, s Store, id string) (*Conversation, error) {
	c, err := s.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return NewWithClock(id, storeClock(s)), nil
	}
	return c, err
}

// storeClock returns the clock a store stamps its conversations with.
func storeClock(s Store) Clock {
	if c, ok := s.(interface{ conversationClock() Clock }); ok {
		return c.conversationClock()
	}
	return realClock{}
}

type entry struct {
	snap    Snapshot
	expires time.Time
}

// MemoryStore keeps sessions in process. Entries idle longer than the TTL
// are dropped lazily on access.
type MemoryStore struct {
	ttl   time.Duration
	clock Clock

	mu       sync.Mutex
	sessions map[string]entry
}

// NewMemoryStore returns an in-process store. A zero ttl keeps sessions
// forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return NewMemoryStoreWithClock(ttl, realClock{})
}

// NewMemoryStoreWithClock returns an in-process store using clock for expiry.
func NewMemoryStoreWithClock(ttl time.Duration, clock Clock) *MemoryStore {
	return &MemoryStore{ttl: ttl, clock: clock, sessions: make(map[string]entry)}
}

// Get returns a private copy of the session's conversation.
func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.ttl > 0 && s.clock.Now().After(e.expires) {
		delete(s.sessions, id)
		return nil, ErrSessionNotFound
	}
	return Restore(e.snap, s.clock), nil
}

func (s *MemoryStore) conversationClock() Clock { return s.clock }

// Save stores a copy of c, refreshing its expiry.
func (s *MemoryStore) Save(_ context.Context, c *Conversation) error {
	snap := c.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[snap.ID] = entry{snap: snap, expires: s.clock.Now().Add(s.ttl)}
	return nil
}

// Delete forgets a session. Deleting an unknown session is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
