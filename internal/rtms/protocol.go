package rtms

// Wire protocol: JSON envelopes over websocket. The control socket carries
// the signaling handshake and liveness traffic; the media socket (which may
// be the same connection when the server returns no media_url) carries the
// data handshake, tagged media frames and its own keep-alives.

const (
	msgSignalingHandshakeReq  = "signaling_handshake_req"
	msgSignalingHandshakeResp = "signaling_handshake_resp"
	msgDataHandshakeReq       = "data_handshake_req"
	msgDataHandshakeResp      = "data_handshake_resp"
	msgKeepAliveReq           = "keep_alive_req"
	msgKeepAliveResp          = "keep_alive_resp"
	msgMediaFrame             = "media_frame"
	msgStreamTerminated       = "stream_terminated"
)

// Handshake status codes. Zero is success; statusUnauthorized is fatal,
// every other non-zero code is treated as transient.
const (
	statusOK           = 0
	statusUnauthorized = 401
)

type envelope struct {
	Type        string        `json:"msg_type"`
	ClientID    string        `json:"client_id,omitempty"`
	MeetingUUID string        `json:"meeting_uuid,omitempty"`
	StreamID    string        `json:"rtms_stream_id,omitempty"`
	Timestamp   int64         `json:"timestamp,omitempty"`
	Signature   string        `json:"signature,omitempty"`
	MediaTypes  uint32        `json:"media_types,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	MediaURL    string        `json:"media_url,omitempty"`
	Media       *mediaPayload `json:"media,omitempty"`
}

// mediaPayload is the per-frame content: one participant, one timestamped
// chunk. Data is base64-encoded for binary kinds, Text for transcript/chat.
type mediaPayload struct {
	MediaType uint32 `json:"media_type"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Timestamp int64  `json:"timestamp"`
	Data      []byte `json:"data,omitempty"`
	Text      string `json:"text,omitempty"`
}
