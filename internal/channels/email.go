package channels

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/relaydesk/relaydesk/internal/bus"
)

// EmailSendFunc is the narrow outbound mail capability. IMAP/SMTP plumbing
// lives outside the core.
type EmailSendFunc func(ctx context.Context, to, subject, body string) error

// EmailAdapter bridges the email channel. Inbound mail is handed to
// HandleInbound by the mail receiver; replies go out through the injected
// sender.
type EmailAdapter struct {
	BaseAdapter
	send    EmailSendFunc
	mu      sync.Mutex
	subject map[string]string // userID -> last inbound subject
	cancel  context.CancelFunc
}

// NewEmailAdapter creates an email adapter.
func NewEmailAdapter(send EmailSendFunc, allowFrom []string, msgBus *bus.MessageBus) *EmailAdapter {
	return &EmailAdapter{
		BaseAdapter: BaseAdapter{
			ChannelName: bus.ChannelEmail,
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		send:    send,
		subject: make(map[string]string),
	}
}

// Name implements Adapter.
func (e *EmailAdapter) Name() string { return bus.ChannelEmail }

// IsRunning implements Adapter.
func (e *EmailAdapter) IsRunning() bool { return e.Running }

// Start implements Adapter.
func (e *EmailAdapter) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	e.Running = true
	<-ctx.Done()
	e.Running = false
	return nil
}

// Stop implements Adapter.
func (e *EmailAdapter) Stop() error {
	e.Running = false
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// HandleInbound converts a received email into a canonical inbound message.
// The sender address is the user identity.
func (e *EmailAdapter) HandleInbound(from, subject, body string, attrs map[string]any) error {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["subject"] = subject
	e.mu.Lock()
	e.subject[from] = subject
	e.mu.Unlock()
	return e.HandleMessage(from, "", strings.TrimSpace(body), attrs)
}

// Deliver sends the reply as a response email, threading on the last
// inbound subject when one is known.
func (e *EmailAdapter) Deliver(msg bus.OutboundMessage) (bool, error) {
	if e.send == nil {
		return false, &DeliveryError{Channel: e.ChannelName, Err: errors.New("transport not configured")}
	}
	subject := "Re: your support request"
	e.mu.Lock()
	s, ok := e.subject[msg.UserID]
	e.mu.Unlock()
	if ok && s != "" {
		if !strings.HasPrefix(strings.ToLower(s), "re:") {
			s = "Re: " + s
		}
		subject = s
	}
	if err := e.send(context.Background(), msg.UserID, subject, msg.Text); err != nil {
		return false, &DeliveryError{Channel: e.ChannelName, Err: err}
	}
	return true, nil
}
