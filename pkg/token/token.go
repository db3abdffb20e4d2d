// Package token holds the session token triple and the stores that
// persist it. A session either carries all three tokens or none; partial
// triples never reach storage.
package token

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPartialTriple rejects writes that carry only some of the three tokens.
var ErrPartialTriple = errors.New("token triple must be complete")

// Triple is the session token set returned by the auth backend.
type Triple struct {
	AccessToken   string     `json:"access_token"`
	IdentityToken string     `json:"id_token"`
	RefreshToken  string     `json:"refresh_token"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Complete reports whether all three tokens are present.
func (t *Triple) Complete() bool {
	return t != nil && t.AccessToken != "" && t.IdentityToken != "" && t.RefreshToken != ""
}

// Identity is the opaque user profile stored alongside the triple. The
// client never interprets it beyond the subject lookup.
type Identity map[string]any

// Subject returns the stable user identifier when the profile carries one.
func (id Identity) Subject() string {
	for _, key := range []string{"sub", "_id", "user_id"} {
		if v, ok := id[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Listener observes session changes. The triple is nil after a clear.
type Listener func(triple *Triple, identity Identity)

// Store persists the session and notifies subscribers of every change.
type Store interface {
	// Read returns the stored triple and identity. A nil triple with a nil
	// error means no session exists.
	Read(ctx context.Context) (*Triple, Identity, error)

	// Write atomically persists a complete triple together with its
	// identity, then notifies subscribers. Incomplete triples are rejected
	// with ErrPartialTriple before anything is stored.
	Write(ctx context.Context, triple *Triple, identity Identity) error

	// Clear removes the session, then notifies subscribers with a nil
	// triple. Clearing an empty store is a no-op that still notifies.
	Clear(ctx context.Context) error

	// Subscribe registers a listener and returns its unsubscribe function.
	Subscribe(fn Listener) (unsubscribe func())
}

// subscribers is the listener registry shared by the store
// implementations. Notification runs synchronously on the goroutine that
// performed the write, after persistence succeeded.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]Listener
}

// Subscribe registers fn for session changes and returns its unsubscribe
// function. Unsubscribing twice is safe.
func (s *subscribers) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[int]Listener)
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

// notify invokes every registered listener. The registry lock is released
// first so listeners may subscribe or unsubscribe re-entrantly.
func (s *subscribers) notify(triple *Triple, identity Identity) {
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(triple, identity)
	}
}
