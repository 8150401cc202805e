package channels

import (
	"context"

	"github.com/relaydesk/relaydesk/internal/bus"
	"github.com/relaydesk/relaydesk/internal/live"
)

// WidgetAdapter delivers replies to the web chat widget through the live
// connection registry. Inbound traffic for this channel arrives over the
// websocket server, not through this adapter.
type WidgetAdapter struct {
	BaseAdapter
	registry *live.Registry
}

// NewWidgetAdapter creates the widget adapter.
func NewWidgetAdapter(registry *live.Registry, msgBus *bus.MessageBus) *WidgetAdapter {
	return &WidgetAdapter{
		BaseAdapter: BaseAdapter{
			ChannelName: bus.ChannelWidget,
			Bus:         msgBus,
		},
		registry: registry,
	}
}

// Name implements Adapter.
func (w *WidgetAdapter) Name() string { return bus.ChannelWidget }

// IsRunning implements Adapter.
func (w *WidgetAdapter) IsRunning() bool { return w.Running }

// Start implements Adapter. The websocket server owns the transport; this
// adapter only needs to be marked live for delivery.
func (w *WidgetAdapter) Start(ctx context.Context) error {
	w.Running = true
	<-ctx.Done()
	w.Running = false
	return nil
}

// Stop implements Adapter.
func (w *WidgetAdapter) Stop() error {
	w.Running = false
	return nil
}

// Deliver fans the message out to every open connection of the session.
// delivered=false means no active connection matched, which is not an error.
func (w *WidgetAdapter) Deliver(msg bus.OutboundMessage) (bool, error) {
	delivered := w.registry.SendToSession(msg.UserID, msg.SessionID, map[string]any{
		"type":       "message",
		"text":       msg.Text,
		"messageId":  msg.MessageID,
		"sessionId":  msg.SessionID,
		"producedAt": msg.ProducedAt,
	})
	return delivered, nil
}
