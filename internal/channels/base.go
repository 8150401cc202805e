// Package channels defines the Adapter interface for channel integrations
// and the manager that wires adapters to the broadcast bus.
package channels

import (
	"context"
	"time"

	"github.com/relaydesk/relaydesk/internal/bus"
)

// Adapter converts channel-native events into canonical inbound messages and
// delivers canonical outbound messages back to its channel. The router
// depends on adapters only through the bus, never the other way around.
type Adapter interface {
	// Name returns the channel tag (e.g. "widget", "messaging", "email").
	Name() string

	// Start begins listening for channel events. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter.
	Stop() error

	// Deliver sends an outbound message over the channel. delivered=false
	// with a nil error means the recipient is currently unreachable.
	Deliver(msg bus.OutboundMessage) (delivered bool, err error)

	// IsRunning returns whether the adapter is active.
	IsRunning() bool
}

// BaseAdapter provides shared logic for adapter implementations.
type BaseAdapter struct {
	ChannelName string
	Bus         *bus.MessageBus
	AllowFrom   []string
	Running     bool
}

// IsAllowed checks whether a sender is permitted to interact.
func (b *BaseAdapter) IsAllowed(userID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	for _, allowed := range b.AllowFrom {
		if allowed == userID {
			return true
		}
	}
	return false
}

// HandleMessage validates a canonical message built from a channel event and
// publishes it on the inbound queue. Returns the validation error, if any,
// so the adapter can answer the sender on its own transport.
func (b *BaseAdapter) HandleMessage(userID, sessionID, text string, attrs map[string]any) error {
	if !b.IsAllowed(userID) {
		return nil
	}
	msg := bus.InboundMessage{
		Text:       text,
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    b.ChannelName,
		ReceivedAt: time.Now(),
		Attributes: attrs,
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	b.Bus.PublishInbound(msg)
	return nil
}
