package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kalambet/kopi/internal/memory"
)

// Session returns a copy of the stored conversation. Unknown sessions
// return memory.ErrSessionNotFound.
func (a *Assistant) Session(ctx context.Context, id string) (memory.Snapshot, error) {
	unlock := a.locks.lock(id)
	defer unlock()

	conv, err := a.sessions.Get(ctx, id)
	if errors.Is(err, memory.ErrSessionNotFound) {
		return memory.Snapshot{}, err
	}
	if err != nil {
		a.metrics.ObserveBackendError("sessions")
		return memory.Snapshot{}, fmt.Errorf("%w: loading session %s: %v", ErrUnavailable, id, err)
	}
	return conv.Snapshot(), nil
}

// Reset forgets a conversation. Resetting an unknown session is not an
// error.
func (a *Assistant) Reset(ctx context.Context, id string) error {
	unlock := a.locks.lock(id)
	defer unlock()

	if err := a.sessions.Delete(ctx, id); err != nil {
		a.metrics.ObserveBackendError("sessions")
		return fmt.Errorf("%w: deleting session %s: %v", ErrUnavailable, id, err)
	}
	return nil
}

// sessionLocks hands out one mutex per session id and drops it once no
// goroutine holds or waits for it.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[string]*sessionLock)}
}

func (s *sessionLocks) lock(id string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.m[id]
	if !ok {
		l = &sessionLock{}
		s.m[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.m, id)
		}
		s.mu.Unlock()
	}
}

func (s *sessionLocks) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
