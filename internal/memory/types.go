// Package memory implements the layered conversation context: a fast
// expiring cache holding the authoritative in-flight copy of each session,
// backed by a slower durable store written asynchronously.
package memory

import "time"

// ConversationTurn is a single request/reply exchange. Turns are append-only
// within a session's history.
type ConversationTurn struct {
	MessageID    string         `json:"message_id"`
	InboundText  string         `json:"inbound_text"`
	OutboundText string         `json:"outbound_text"`
	Channel      string         `json:"channel"`
	Timestamp    time.Time      `json:"timestamp"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// SessionMemory holds a session's recent conversation window. History is
// bounded: it never exceeds the configured window, oldest turns evicted first.
type SessionMemory struct {
	UserID           string             `json:"user_id"`
	SessionID        string             `json:"session_id"`
	History          []ConversationTurn `json:"history"`
	FirstInteraction time.Time          `json:"first_interaction"`
	LastInteraction  time.Time          `json:"last_interaction"`
}

// NewSessionMemory returns an empty session for the given identity.
func NewSessionMemory(userID, sessionID string) *SessionMemory {
	return &SessionMemory{UserID: userID, SessionID: sessionID}
}

// Append adds a turn and truncates history to the most recent window turns.
func (s *SessionMemory) Append(turn ConversationTurn, window int) {
	s.History = append(s.History, turn)
	if window > 0 && len(s.History) > window {
		s.History = s.History[len(s.History)-window:]
	}
	if s.FirstInteraction.IsZero() {
		s.FirstInteraction = turn.Timestamp
	}
	s.LastInteraction = turn.Timestamp
}

// Clone returns a deep copy so callers can read a snapshot without holding
// any lock over the cached original.
func (s *SessionMemory) Clone() *SessionMemory {
	cp := *s
	cp.History = make([]ConversationTurn, len(s.History))
	copy(cp.History, s.History)
	return &cp
}
