package bus

import (
	"context"
	"log"
	"sync"
)

// Handler consumes payloads published on a topic.
type Handler func(payload any)

// MessageBus provides message routing between channels and the routing core.
// Inbound messages flow through a buffered queue; outbound delivery uses
// topic-based broadcast with at-most-once semantics per subscriber.
type MessageBus struct {
	Inbound chan InboundMessage

	mu          sync.RWMutex
	subscribers map[string][]Handler
}

// NewMessageBus creates a message bus with a buffered inbound queue.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundMessage, 100),
		subscribers: make(map[string][]Handler),
	}
}

// PublishInbound sends a message from a channel adapter to the router.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.Inbound <- msg
}

// Subscribe registers a handler for a topic. A topic may have any number of
// handlers; a handler registered after a publish never sees that publish.
func (b *MessageBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish delivers payload to every current subscriber of topic. Publishing
// to a topic with zero subscribers is a no-op. A panicking handler is caught
// and logged so it cannot prevent delivery to the remaining handlers or
// propagate to the publisher.
func (b *MessageBus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := make([]Handler, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mu.RUnlock()

	for _, h := range subs {
		b.deliver(topic, h, payload)
	}
}

func (b *MessageBus) deliver(topic string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Bus] ⚠️ Handler panic on topic %s: %v", topic, r)
		}
	}()
	h(payload)
}

// SubscriberCount returns the number of handlers registered for a topic.
func (b *MessageBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return len(b.Inbound)
}

// DispatchInbound runs the inbound dispatch loop, handing each queued message
// to handle on its own goroutine. Blocks until ctx is cancelled. Unrelated
// sessions are never serialized against each other.
func (b *MessageBus) DispatchInbound(ctx context.Context, handle func(context.Context, InboundMessage)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.Inbound:
			go handle(ctx, msg)
		}
	}
}
