package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageBus(t *testing.T) {
	b := NewMessageBus()
	assert.NotNil(t, b)
	assert.Equal(t, 0, b.InboundSize())
	assert.Equal(t, 0, b.SubscriberCount(TopicResponses))
}

func TestMessageBus_PublishConsumeInbound(t *testing.T) {
	b := NewMessageBus()
	msg := InboundMessage{Channel: ChannelWidget, UserID: "u1", Text: "hello"}

	b.PublishInbound(msg)
	assert.Equal(t, 1, b.InboundSize())

	received := <-b.Inbound
	assert.Equal(t, "hello", received.Text)
	assert.Equal(t, ChannelWidget, received.Channel)
}

func TestMessageBus_PublishZeroSubscribersIsNoop(t *testing.T) {
	b := NewMessageBus()

	assert.NotPanics(t, func() {
		b.Publish(TopicResponses, OutboundMessage{Text: "nobody listening"})
	})
}

func TestMessageBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := NewMessageBus()

	var mu sync.Mutex
	var first, second []OutboundMessage

	b.Subscribe(TopicResponses, func(payload any) {
		mu.Lock()
		first = append(first, payload.(OutboundMessage))
		mu.Unlock()
	})
	b.Subscribe(TopicResponses, func(payload any) {
		mu.Lock()
		second = append(second, payload.(OutboundMessage))
		mu.Unlock()
	})

	b.Publish(TopicResponses, OutboundMessage{Text: "reply"})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
	assert.Equal(t, "reply", first[0].Text)
}

func TestMessageBus_PanickingHandlerDoesNotBlockOthers(t *testing.T) {
	b := NewMessageBus()

	var mu sync.Mutex
	var received []string

	b.Subscribe(TopicResponses, func(payload any) {
		panic("handler exploded")
	})
	b.Subscribe(TopicResponses, func(payload any) {
		mu.Lock()
		received = append(received, payload.(OutboundMessage).Text)
		mu.Unlock()
	})

	assert.NotPanics(t, func() {
		b.Publish(TopicResponses, OutboundMessage{Text: "still delivered"})
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"still delivered"}, received)
}

func TestMessageBus_LateSubscriberMissesEarlierPublish(t *testing.T) {
	b := NewMessageBus()

	b.Publish(TopicHandovers, HandoverEvent{UserID: "u1"})

	var mu sync.Mutex
	var count int
	b.Subscribe(TopicHandovers, func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestMessageBus_TopicsAreIndependent(t *testing.T) {
	b := NewMessageBus()

	var mu sync.Mutex
	var responses int
	b.Subscribe(TopicResponses, func(any) {
		mu.Lock()
		responses++
		mu.Unlock()
	})

	b.Publish(TopicHandovers, HandoverEvent{UserID: "u1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, responses)
}

func TestMessageBus_DispatchInbound(t *testing.T) {
	b := NewMessageBus()

	var mu sync.Mutex
	var handled []InboundMessage

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.DispatchInbound(ctx, func(_ context.Context, msg InboundMessage) {
		mu.Lock()
		handled = append(handled, msg)
		mu.Unlock()
	})

	b.PublishInbound(InboundMessage{Channel: ChannelWidget, UserID: "u1", Text: "hi"})

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, handled, 1)
	assert.Equal(t, "hi", handled[0].Text)
}
