package core

import "time"

// EventKind tags the variants of the Event union. The values double as the
// downstream relay route names.
type EventKind string

const (
	KindSessionStarted EventKind = "session-started"
	KindSessionStopped EventKind = "session-stopped"
	KindSessionError   EventKind = "session-error"
	KindConnected      EventKind = "session-start"
	KindDisconnected   EventKind = "session-stop"
	KindAudio          EventKind = "audio"
	KindVideo          EventKind = "video"
	KindScreenShare    EventKind = "screen-share"
	KindTranscript     EventKind = "transcript"
	KindChat           EventKind = "chat"
)

// Control reports whether the kind is a lifecycle control request that must
// reach the registry with guaranteed delivery.
func (k EventKind) Control() bool {
	return k == KindSessionStarted || k == KindSessionStopped
}

// Event is the tagged union flowing from the stream clients to the bus and
// the forwarder. Events are immutable after creation.
type Event interface {
	Kind() EventKind
	Meeting() string
}

// SessionStarted is the lifecycle request to attach to a meeting's stream.
// Published by the webhook gateway, consumed by the registry.
type SessionStarted struct {
	MeetingID  string
	StreamID   string
	Endpoints  []string
	MediaTypes MediaType
}

func (e SessionStarted) Kind() EventKind { return KindSessionStarted }
func (e SessionStarted) Meeting() string { return e.MeetingID }

// SessionStopped is the lifecycle request to detach from a meeting's stream.
type SessionStopped struct {
	MeetingID string
}

func (e SessionStopped) Kind() EventKind { return KindSessionStopped }
func (e SessionStopped) Meeting() string { return e.MeetingID }

// SessionError reports a terminal session failure (auth rejection or
// exhausted reconnects).
type SessionError struct {
	MeetingID string
	Reason    string
}

func (e SessionError) Kind() EventKind { return KindSessionError }
func (e SessionError) Meeting() string { return e.MeetingID }

// Connected marks a completed handshake for a meeting's stream.
type Connected struct {
	MeetingID string
	StreamID  string
}

func (e Connected) Kind() EventKind { return KindConnected }
func (e Connected) Meeting() string { return e.MeetingID }

// Disconnected marks a closed attachment, clean or not.
type Disconnected struct {
	MeetingID string
	Reason    string
}

func (e Disconnected) Kind() EventKind { return KindDisconnected }
func (e Disconnected) Meeting() string { return e.MeetingID }

// AudioFrame carries one chunk of raw audio from one participant.
// Synthetic is set on gap-filling silence frames.
type AudioFrame struct {
	MeetingID string
	UserID    string
	UserName  string
	Timestamp time.Time
	Data      []byte
	Synthetic bool
}

func (e AudioFrame) Kind() EventKind { return KindAudio }
func (e AudioFrame) Meeting() string { return e.MeetingID }

type VideoFrame struct {
	MeetingID string
	UserID    string
	UserName  string
	Timestamp time.Time
	Data      []byte
}

func (e VideoFrame) Kind() EventKind { return KindVideo }
func (e VideoFrame) Meeting() string { return e.MeetingID }

type ScreenShareFrame struct {
	MeetingID string
	UserID    string
	UserName  string
	Timestamp time.Time
	Data      []byte
}

func (e ScreenShareFrame) Kind() EventKind { return KindScreenShare }
func (e ScreenShareFrame) Meeting() string { return e.MeetingID }

// TranscriptSegment is one utterance of platform-side speech-to-text.
type TranscriptSegment struct {
	MeetingID string
	UserID    string
	UserName  string
	Timestamp time.Time
	Text      string
}

func (e TranscriptSegment) Kind() EventKind { return KindTranscript }
func (e TranscriptSegment) Meeting() string { return e.MeetingID }

type ChatMessage struct {
	MeetingID string
	UserID    string
	UserName  string
	Timestamp time.Time
	Text      string
}

func (e ChatMessage) Kind() EventKind { return KindChat }
func (e ChatMessage) Meeting() string { return e.MeetingID }
