package rtms

import "errors"

var (
	// ErrAuthRejected means the platform refused the handshake signature.
	// Fatal for the session, never retried.
	ErrAuthRejected = errors.New("handshake rejected by server")

	// ErrConnection covers transient transport failures: dial errors, socket
	// drops, repeated malformed frames. Drives the reconnect loop.
	ErrConnection = errors.New("connection failed")

	// ErrHeartbeatTimeout means nothing was heard from the server within the
	// liveness window. Treated like a socket closure.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrProtocol marks a single malformed or unexpected frame.
	ErrProtocol = errors.New("protocol violation")

	// ErrReconnectExhausted means the client gave up after the configured
	// number of reconnect attempts.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// errStreamTerminated signals a platform-initiated stop notice; the
	// session closes cleanly instead of reconnecting.
	errStreamTerminated = errors.New("stream terminated by server")
)
