package rtms

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestReadPumpExitsOnCloseWithFullBuffer(t *testing.T) {
	flooded := make(chan struct{})
	srv := newStreamServer(t, func(ws *websocket.Conn) {
		// More frames than the socket buffer holds, with nobody draining.
		for i := 0; i < 80; i++ {
			if err := ws.WriteJSON(envelope{Type: msgKeepAliveResp, Timestamp: int64(i)}); err != nil {
				return
			}
		}
		close(flooded)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, err := dialSocket(context.Background(), wsURL(srv), 5*time.Second)
	require.NoError(t, err)

	select {
	case <-flooded:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not flood")
	}
	s.close()

	// The pump must unblock and exit, observable as frames being closed.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-s.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("read pump still parked after close")
		}
	}
}

func TestReadPumpExitsOnCloseGracefullyWithFullBuffer(t *testing.T) {
	srv := newStreamServer(t, func(ws *websocket.Conn) {
		for i := 0; i < 80; i++ {
			if err := ws.WriteJSON(envelope{Type: msgKeepAliveResp, Timestamp: int64(i)}); err != nil {
				return
			}
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	s, err := dialSocket(context.Background(), wsURL(srv), 5*time.Second)
	require.NoError(t, err)
	s.closeGracefully()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-s.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("read pump still parked after graceful close")
		}
	}
}
