package core

import "time"

// SessionState is a stream client's position in its lifecycle graph.
// Transitions only move forward; Error and Closed are terminal.
type SessionState int

const (
	StateInit SessionState = iota
	StateHandshaking
	StateJoined
	StateStreaming
	StateReconnecting
	StateError
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHandshaking:
		return "handshaking"
	case StateJoined:
		return "joined"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateError || s == StateClosed
}

// Session is a point-in-time snapshot of one meeting's streaming attachment.
// The owning client is the only writer; everyone else sees copies of this.
type Session struct {
	MeetingID         string
	StreamID          string
	Endpoints         []string
	MediaTypes        MediaType
	State             SessionState
	ReconnectAttempts int
	LastHeartbeatAt   time.Time
}
