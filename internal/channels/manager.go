package channels

import (
	"context"
	"log"
	"sync"

	"github.com/relaydesk/relaydesk/internal/bus"
)

// Manager holds the registered adapters, keyed by channel tag, and
// subscribes each one to the responses topic. Channel dispatch is a registry
// lookup resolved at startup, not a per-call branch.
type Manager struct {
	Bus      *bus.MessageBus
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewManager creates an adapter manager.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		Bus:      msgBus,
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the manager.
func (m *Manager) Register(a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[a.Name()] = a
}

// Get returns an adapter by channel tag.
func (m *Manager) Get(name string) Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adapters[name]
}

// EnabledChannels returns the registered channel tags.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	return names
}

// StartAll subscribes every adapter to its slice of the responses topic and
// starts them concurrently. Blocks until all adapters return.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	adapters := make(map[string]Adapter, len(m.adapters))
	for name, a := range m.adapters {
		adapters[name] = a
	}
	m.mu.RUnlock()

	if len(adapters) == 0 {
		log.Println("No channels enabled")
		return nil
	}

	for name, a := range adapters {
		chName := name
		adapter := a
		m.Bus.Subscribe(bus.TopicResponses, func(payload any) {
			msg, ok := payload.(bus.OutboundMessage)
			if !ok || msg.Channel != chName {
				return
			}
			delivered, err := adapter.Deliver(msg)
			if err != nil {
				log.Printf("[Channels] Delivery via %s failed: %v", chName, err)
				return
			}
			if !delivered {
				log.Printf("[Channels] %s: user %s currently has no active connection", chName, msg.UserID)
			}
		})
	}

	var wg sync.WaitGroup
	for name, a := range adapters {
		wg.Add(1)
		go func(n string, adapter Adapter) {
			defer wg.Done()
			log.Printf("Starting %s channel...", n)
			if err := adapter.Start(ctx); err != nil {
				log.Printf("Channel %s error: %v", n, err)
			}
		}(name, a)
	}

	wg.Wait()
	return nil
}

// StopAll stops all adapters.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, a := range m.adapters {
		if err := a.Stop(); err != nil {
			log.Printf("Error stopping %s: %v", name, err)
		}
	}
}

// Status returns the running state of all adapters.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.adapters))
	for name, a := range m.adapters {
		status[name] = a.IsRunning()
	}
	return status
}
