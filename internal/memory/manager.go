package memory

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// Defaults for the bounded window and cache expiry.
const (
	DefaultWindow         = 10
	DefaultTTL            = 24 * time.Hour
	DefaultDurableTimeout = 3 * time.Second
)

const numStripes = 64

// Manager composes the fast cache and the durable store into a single
// GetContext/AppendTurn contract.
//
// GetContext never fails: a slow or broken durable store degrades to an
// empty session rather than stalling or failing the caller. AppendTurn
// writes the cache synchronously (read-your-writes within the cache) and
// replicates to the durable store fire-and-forget, single attempt.
type Manager struct {
	cache          CacheStore
	durable        DurableStore // may be nil
	window         int
	ttl            time.Duration
	durableTimeout time.Duration

	// Striped per-key locks keep the read-modify-write in AppendTurn atomic
	// for a given session without serializing unrelated sessions.
	stripes [numStripes]sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets the bounded history window.
func WithWindow(w int) Option {
	return func(m *Manager) {
		if w > 0 {
			m.window = w
		}
	}
}

// WithTTL sets the cache entry TTL, measured from last write.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithDurableTimeout bounds every durable-store call.
func WithDurableTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.durableTimeout = d
		}
	}
}

// NewManager creates a context manager. durable may be nil when no durable
// store is configured.
func NewManager(cache CacheStore, durable DurableStore, opts ...Option) *Manager {
	m := &Manager{
		cache:          cache,
		durable:        durable,
		window:         DefaultWindow,
		ttl:            DefaultTTL,
		durableTimeout: DefaultDurableTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Window returns the configured bounded history window.
func (m *Manager) Window() int { return m.window }

// GetContext returns the session memory for (userID, sessionID). It tries
// the cache first, then the durable store with a short timeout, and falls
// back to an empty session on any durable failure. Never fails.
func (m *Manager) GetContext(ctx context.Context, userID, sessionID string) *SessionMemory {
	key := sessionCacheKey(userID, sessionID)
	if mem, ok := m.cache.Get(ctx, key); ok {
		return mem
	}
	if mem := m.durableGet(ctx, userID, sessionID); mem != nil {
		m.cache.Set(ctx, key, mem, m.ttl)
		return mem
	}
	return NewSessionMemory(userID, sessionID)
}

// AppendTurn appends a turn to the session, truncates the history to the
// bounded window, writes the cache before returning, and schedules a single
// best-effort durable write. Durable failure is logged, never propagated.
func (m *Manager) AppendTurn(ctx context.Context, userID, sessionID string, turn ConversationTurn) {
	key := sessionCacheKey(userID, sessionID)
	stripe := &m.stripes[stripeIndex(key)]

	stripe.Lock()
	mem, ok := m.cache.Get(ctx, key)
	if !ok {
		if mem = m.durableGet(ctx, userID, sessionID); mem == nil {
			mem = NewSessionMemory(userID, sessionID)
		}
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	mem.Append(turn, m.window)
	if !m.cache.Set(ctx, key, mem, m.ttl) {
		log.Printf("[Memory] ⚠️ Cache write failed for %s", key)
	}
	stripe.Unlock()

	if m.durable == nil {
		return
	}
	// Fire-and-forget replica write. Single attempt with its own timeout so
	// a durable-store outage cannot pile up retries in the hot path.
	snapshot := mem.Clone()
	go func() {
		dctx, cancel := context.WithTimeout(context.Background(), m.durableTimeout)
		defer cancel()
		if err := m.durable.Put(dctx, userID, sessionID, snapshot); err != nil {
			log.Printf("[Memory] Durable write failed for %s: %v", key, err)
		}
	}()
}

// Forget drops the cached session, forcing the next GetContext to fall
// through to the durable store.
func (m *Manager) Forget(ctx context.Context, userID, sessionID string) {
	m.cache.Delete(ctx, sessionCacheKey(userID, sessionID))
}

// durableGet reads the durable replica with a bounded timeout. Any error or
// timeout degrades to a miss (logged, not surfaced).
func (m *Manager) durableGet(ctx context.Context, userID, sessionID string) *SessionMemory {
	if m.durable == nil {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, m.durableTimeout)
	defer cancel()

	mem, err := m.durable.Get(dctx, userID, sessionID)
	if err != nil {
		log.Printf("[Memory] Durable read failed for %s/%s, degrading to empty: %v", userID, sessionID, err)
		return nil
	}
	return mem
}

func sessionCacheKey(userID, sessionID string) string {
	return "ctx:" + userID + ":" + sessionID
}

func stripeIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % numStripes)
}
