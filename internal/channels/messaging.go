package channels

import (
	"context"
	"errors"

	"github.com/relaydesk/relaydesk/internal/bus"
)

// MessagingSendFunc is the narrow transport capability the messaging adapter
// delivers through. The concrete webhook/API plumbing lives outside the core.
type MessagingSendFunc func(ctx context.Context, userID, text string) error

// MessagingAdapter bridges a messaging-app integration. Inbound webhook
// events are handed to HandleWebhook by the hosting HTTP layer; outbound
// delivery goes through the injected send capability.
type MessagingAdapter struct {
	BaseAdapter
	send   MessagingSendFunc
	cancel context.CancelFunc
}

// NewMessagingAdapter creates a messaging adapter.
func NewMessagingAdapter(send MessagingSendFunc, allowFrom []string, msgBus *bus.MessageBus) *MessagingAdapter {
	return &MessagingAdapter{
		BaseAdapter: BaseAdapter{
			ChannelName: bus.ChannelMessaging,
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		send: send,
	}
}

// Name implements Adapter.
func (m *MessagingAdapter) Name() string { return bus.ChannelMessaging }

// IsRunning implements Adapter.
func (m *MessagingAdapter) IsRunning() bool { return m.Running }

// Start implements Adapter.
func (m *MessagingAdapter) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)
	m.Running = true
	<-ctx.Done()
	m.Running = false
	return nil
}

// Stop implements Adapter.
func (m *MessagingAdapter) Stop() error {
	m.Running = false
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// HandleWebhook converts a webhook event into a canonical inbound message.
// The session defaults from (channel, userID).
func (m *MessagingAdapter) HandleWebhook(userID, text string, attrs map[string]any) error {
	return m.HandleMessage(userID, "", text, attrs)
}

// Deliver sends msg through the injected transport.
func (m *MessagingAdapter) Deliver(msg bus.OutboundMessage) (bool, error) {
	if m.send == nil {
		return false, &DeliveryError{Channel: m.ChannelName, Err: errors.New("transport not configured")}
	}
	if err := m.send(context.Background(), msg.UserID, msg.Text); err != nil {
		return false, &DeliveryError{Channel: m.ChannelName, Err: err}
	}
	return true, nil
}
