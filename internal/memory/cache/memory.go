// Package cache provides the fast memory cache drivers: an in-process map
// with expiry and a Redis-backed store for multi-process deployments.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/internal/memory"
)

type entry struct {
	mem       *memory.SessionMemory
	expiresAt time.Time
}

// MemoryStore is an in-process cache with per-entry TTL. Expired entries are
// dropped lazily on read and by the janitor sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryStore creates an empty in-process cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry)}
}

// Get implements memory.CacheStore. Returns a snapshot copy.
func (s *MemoryStore) Get(_ context.Context, key string) (*memory.SessionMemory, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, ok := s.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.mem.Clone(), true
}

// Set implements memory.CacheStore. TTL is measured from this write.
func (s *MemoryStore) Set(_ context.Context, key string, mem *memory.SessionMemory, ttl time.Duration) bool {
	s.mu.Lock()
	s.entries[key] = entry{mem: mem.Clone(), expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return true
}

// Delete implements memory.CacheStore.
func (s *MemoryStore) Delete(_ context.Context, key string) bool {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return true
}

// Len returns the number of live entries (expired ones included until swept).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Janitor sweeps expired entries at the given interval until ctx is cancelled.
func (s *MemoryStore) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}
