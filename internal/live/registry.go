package live

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultSweepInterval is the period of the liveness sweep.
const DefaultSweepInterval = 60 * time.Second

// Registry tracks live connections. It is mutated concurrently by connect,
// disconnect, and the sweep; all access goes through its lock. Constructed
// once per process and passed to the collaborators that need it.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	bySession map[string]map[string]*Conn // session key -> conn id -> conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Conn),
		bySession: make(map[string]map[string]*Conn),
	}
}

// Register adds a connection in the CONNECTING state. alive may be nil.
func (r *Registry) Register(connectionID, userID, sessionID string, send SendFunc, alive AliveFunc) *Conn {
	conn := &Conn{
		ID:            connectionID,
		UserID:        userID,
		SessionID:     sessionID,
		EstablishedAt: time.Now(),
		state:         StateConnecting,
		send:          send,
		alive:         alive,
	}

	key := sessionKey(userID, sessionID)
	r.mu.Lock()
	r.conns[connectionID] = conn
	if r.bySession[key] == nil {
		r.bySession[key] = make(map[string]*Conn)
	}
	r.bySession[key][connectionID] = conn
	r.mu.Unlock()

	return conn
}

// MarkOpen transitions a connection to OPEN once its handshake completes.
func (r *Registry) MarkOpen(connectionID string) {
	r.mu.Lock()
	if conn, ok := r.conns[connectionID]; ok && conn.state == StateConnecting {
		conn.state = StateOpen
	}
	r.mu.Unlock()
}

// MarkClosed transitions a connection to CLOSED. The entry stays in the
// registry until Unregister or the sweep removes it; sending to it becomes a
// silent no-op.
func (r *Registry) MarkClosed(connectionID string) {
	r.mu.Lock()
	if conn, ok := r.conns[connectionID]; ok {
		conn.state = StateClosed
	}
	r.mu.Unlock()
}

// Unregister removes a connection.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	r.remove(connectionID)
	r.mu.Unlock()
}

// State returns the state of a connection, or CLOSED for unknown ids.
func (r *Registry) State(connectionID string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.conns[connectionID]; ok {
		return conn.state
	}
	return StateClosed
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SendToSession fans payload out to every OPEN connection matching
// (userID, sessionID). Returns true when at least one delivery succeeded;
// false means the user has no active connection, which callers log rather
// than treat as an error. Stale CLOSED entries are skipped silently.
func (r *Registry) SendToSession(userID, sessionID string, payload any) bool {
	key := sessionKey(userID, sessionID)

	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.bySession[key]))
	for _, conn := range r.bySession[key] {
		if conn.state == StateOpen {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	delivered := false
	for _, conn := range targets {
		if err := conn.send(payload); err != nil {
			log.Printf("[Live] Send failed on %s: %v", conn.ID, err)
			continue
		}
		delivered = true
	}
	return delivered
}

// Sweep runs the periodic liveness sweep until ctx is cancelled, removing
// connections whose transport reports a non-open state.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.SweepOnce(); removed > 0 {
				log.Printf("[Live] Sweep removed %d dead connection(s)", removed)
			}
		}
	}
}

// SweepOnce removes dead connections and returns how many were dropped.
func (r *Registry) SweepOnce() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dead []string
	for id, conn := range r.conns {
		if conn.state == StateClosed || (conn.alive != nil && !conn.alive()) {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		r.remove(id)
	}
	return len(dead)
}

// remove must be called with the lock held.
func (r *Registry) remove(connectionID string) {
	conn, ok := r.conns[connectionID]
	if !ok {
		return
	}
	delete(r.conns, connectionID)

	key := sessionKey(conn.UserID, conn.SessionID)
	if sess := r.bySession[key]; sess != nil {
		delete(sess, connectionID)
		if len(sess) == 0 {
			delete(r.bySession, key)
		}
	}
}

func sessionKey(userID, sessionID string) string {
	return userID + "|" + sessionID
}
