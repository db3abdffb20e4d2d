package cache

import (
	"context"
	"sync"
)

// Memory is an in-process page cache with the same contract as Manager.
// It serves tests and embeddings that run without Redis.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Memory) Get(_ context.Context, key Key) (*Entry, error) {
	k := key.String()

	m.mu.RLock()
	entry, ok := m.entries[k]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired() {
		m.mu.Lock()
		delete(m.entries, k)
		m.mu.Unlock()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()

	return entry, nil
}

// Set stores a cache entry until its Expires time passes.
func (m *Memory) Set(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	if entry.TTL() <= 0 {
		return nil
	}

	m.mu.Lock()
	m.entries[key.String()] = entry
	m.mu.Unlock()

	CacheBytesWritten.WithLabelValues("memory").Add(float64(len(entry.Data)))

	return nil
}

// Delete removes a cache entry.
func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.entries, key.String())
	m.mu.Unlock()

	return nil
}

// Len reports the number of live entries, expired ones included until
// their next Get.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
