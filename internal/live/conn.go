// Package live tracks active duplex connections for the web chat widget and
// fans outbound messages out to every open connection of a session.
package live

import "time"

// State is a connection's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SendFunc is the opaque send capability of a connection's transport.
type SendFunc func(payload any) error

// AliveFunc reports whether the underlying transport is still open. Used by
// the liveness sweep; nil means the transport cannot be probed.
type AliveFunc func() bool

// Conn is one tracked connection. Multiple connections may share the same
// (userID, sessionID) pair — multi-tab, multi-device.
type Conn struct {
	ID            string
	UserID        string
	SessionID     string
	EstablishedAt time.Time

	state State
	send  SendFunc
	alive AliveFunc
}
