package memory

import (
	"context"
	"errors"
	"time"
)

// ErrDurableUnavailable marks durable-store failures. It is absorbed inside
// this package and never surfaced to callers of the manager.
var ErrDurableUnavailable = errors.New("durable memory store unavailable")

// CacheStore is the fast memory cache holding the authoritative in-flight
// copy of each session, keyed with a TTL measured from last write.
//
// Implementations degrade gracefully: a broken backend reports misses and
// failed writes instead of returning errors. Drivers live in memory/cache.
type CacheStore interface {
	// Get returns a snapshot of the cached session, or ok=false on miss.
	Get(ctx context.Context, key string) (mem *SessionMemory, ok bool)

	// Set writes the session with the given TTL. Returns false on failure.
	Set(ctx context.Context, key string, mem *SessionMemory, ttl time.Duration) bool

	// Delete removes a key. Returns false on failure.
	Delete(ctx context.Context, key string) bool
}

// DurableStore is the external long-term memory service replica. Best-effort:
// it may lag the cache or be unavailable entirely.
type DurableStore interface {
	// Get returns the stored session or nil when none exists.
	Get(ctx context.Context, userID, sessionID string) (*SessionMemory, error)

	// Put writes the session replica.
	Put(ctx context.Context, userID, sessionID string, mem *SessionMemory) error
}
