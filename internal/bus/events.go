// Package bus provides canonical message types and the broadcast bus that
// decouples channel adapters from the routing core.
package bus

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Well-known broadcast topics.
const (
	TopicResponses = "responses"
	TopicHandovers = "handovers"
)

// Supported channel tags.
const (
	ChannelWidget    = "widget"
	ChannelMessaging = "messaging"
	ChannelEmail     = "email"
)

var validate = validator.New()

// ValidationError reports a malformed canonical message. It is returned
// before any side effect takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: field %q %s", e.Field, e.Reason)
}

// InboundMessage is the canonical inbound message produced by a channel
// adapter from a channel-native event. Immutable once constructed.
type InboundMessage struct {
	Text       string         `json:"text" validate:"required"`
	UserID     string         `json:"user_id" validate:"required"`
	SessionID  string         `json:"session_id,omitempty"`
	Channel    string         `json:"channel" validate:"required,oneof=widget messaging email"`
	ReceivedAt time.Time      `json:"received_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SessionKey returns the effective session identifier. When no explicit
// session is supplied it derives one from (channel, userID) so repeated
// contact from the same identity resumes the same conversation.
func (m *InboundMessage) SessionKey() string {
	if m.SessionID != "" {
		return m.SessionID
	}
	return m.Channel + ":" + m.UserID
}

// Validate rejects messages missing text, user identity, or a known channel.
func (m *InboundMessage) Validate() error {
	err := validate.Struct(m)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		reason := "is required"
		if fe.Tag() == "oneof" {
			reason = "must be one of widget, messaging, email"
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &ValidationError{Field: "message", Reason: err.Error()}
}

// OutboundMessage is the canonical reply delivered back to the originating
// channel.
type OutboundMessage struct {
	Text              string    `json:"text"`
	UserID            string    `json:"user_id"`
	SessionID         string    `json:"session_id"`
	Channel           string    `json:"channel"`
	MessageID         string    `json:"message_id"`
	ProducedAt        time.Time `json:"produced_at"`
	HandoverRequested bool      `json:"handover_requested"`
}

// HandoverEvent signals that a conversation should be escalated to a human
// operator. The decision itself is made by the processing pipeline.
type HandoverEvent struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Channel     string    `json:"channel"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
