package rtms

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 5 * time.Second

// inbound is one read-pump delivery: a decoded envelope, or a decode error
// for a frame the client may count against the malformed-frame threshold.
type inbound struct {
	env envelope
	err error
}

// socket wraps one websocket connection with a read pump feeding a channel.
// All writes go through send, which is safe for the client goroutine plus
// the close path.
type socket struct {
	ws     *websocket.Conn
	frames chan inbound
	errs   chan error
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func dialSocket(ctx context.Context, url string, timeout time.Duration) (*socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	s := &socket{
		ws:     ws,
		frames: make(chan inbound, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// readPump delivers every frame in arrival order. A transport error ends the
// pump; a JSON decode error is delivered as an inbound with err set so the
// client decides whether to tolerate it. Closing the socket unblocks the
// pump even when nobody drains frames anymore.
func (s *socket) readPump() {
	defer close(s.frames)
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case s.errs <- err:
			case <-s.done:
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if !s.deliver(inbound{err: err}) {
				return
			}
			continue
		}
		if !s.deliver(inbound{env: env}) {
			return
		}
	}
}

func (s *socket) deliver(in inbound) bool {
	select {
	case s.frames <- in:
		return true
	case <-s.done:
		return false
	}
}

func (s *socket) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return s.ws.WriteJSON(v)
}

// closeGracefully sends a websocket close message before tearing down the
// connection so the server sees a clean leave.
func (s *socket) closeGracefully() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = s.ws.SetWriteDeadline(deadline)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		_ = s.ws.Close()
	})
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}
