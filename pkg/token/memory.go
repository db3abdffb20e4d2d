package token

import (
	"context"
	"sync"
)

// MemoryStore keeps the session in process memory. It serves tests and
// embeddings that run without redis; the semantics match RedisStore.
type MemoryStore struct {
	subscribers
	mu       sync.RWMutex
	triple   *Triple
	identity Identity
}

// NewMemoryStore creates an empty in-process session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read returns a copy of the stored session, or a nil triple when none
// exists.
func (s *MemoryStore) Read(_ context.Context) (*Triple, Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.triple == nil {
		return nil, nil, nil
	}
	cp := *s.triple
	return &cp, s.identity, nil
}

// Write stores a complete triple with its identity and notifies
// subscribers.
func (s *MemoryStore) Write(_ context.Context, triple *Triple, identity Identity) error {
	if !triple.Complete() {
		return ErrPartialTriple
	}

	cp := *triple
	s.mu.Lock()
	s.triple = &cp
	s.identity = identity
	s.mu.Unlock()

	s.notify(&cp, identity)
	return nil
}

// Clear drops the session and notifies subscribers with a nil triple.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.triple = nil
	s.identity = nil
	s.mu.Unlock()

	s.notify(nil, nil)
	return nil
}
