package pending

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps resume contexts in process memory. Suitable for a
// single instance; contexts do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]*ResumeContext
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[string]*ResumeContext),
		now:      time.Now,
	}
}

// Put stores or replaces the context for its journey ID
func (s *MemoryStore) Put(_ context.Context, rc *ResumeContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[rc.JourneyID] = rc.Clone()
	return nil
}

// Get retrieves a context, or ErrContextNotFound. Expired contexts read
// as absent.
func (s *MemoryStore) Get(_ context.Context, journeyID string) (*ResumeContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rc, ok := s.contexts[journeyID]
	if !ok || rc.Expired(s.now()) {
		return nil, ErrContextNotFound
	}
	return rc.Clone(), nil
}

// Delete removes a context
func (s *MemoryStore) Delete(_ context.Context, journeyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contexts, journeyID)
	return nil
}

// DeleteExpired sweeps expired contexts
func (s *MemoryStore) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for id, rc := range s.contexts {
		if rc.Expired(now) {
			delete(s.contexts, id)
			count++
		}
	}
	return count, nil
}

// Count reports how many contexts are stored, expired ones included
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.contexts), nil
}
