package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
)

const forwardQueueSize = 256

// Forwarder relays events to the external consumer over HTTP, best effort.
// Send never blocks: a full queue drops the event, a failed delivery is
// logged and forgotten. Nothing here may stall the media path.
type Forwarder struct {
	baseURL string
	client  *http.Client
	queue   chan core.Event
	dropped atomic.Uint64
}

func NewForwarder(baseURL string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Forwarder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		queue:   make(chan core.Event, forwardQueueSize),
	}
}

// Send enqueues an event for delivery. Fire-and-forget; overflow is counted
// and dropped.
func (f *Forwarder) Send(ev core.Event) {
	if f.baseURL == "" {
		return
	}
	if _, ok := routes[ev.Kind()]; !ok {
		return
	}
	select {
	case f.queue <- ev:
	default:
		n := f.dropped.Add(1)
		log.Warn().Str("module", "app.forwarder").Str("kind", string(ev.Kind())).
			Uint64("dropped", n).Msg("consumer queue full, event dropped")
	}
}

// Dropped reports how many events were discarded on overflow.
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

// Run delivers queued events until ctx ends.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			f.post(ctx, ev)
		}
	}
}

// routes maps forwarded event kinds to consumer paths. Kinds absent here
// (registry-internal lifecycle requests) are not relayed.
var routes = map[core.EventKind]string{
	core.KindConnected:    "/session-start",
	core.KindDisconnected: "/session-stop",
	core.KindSessionError: "/session-error",
	core.KindAudio:        "/audio",
	core.KindVideo:        "/video",
	core.KindScreenShare:  "/screen-share",
	core.KindTranscript:   "/transcript",
	core.KindChat:         "/chat",
}

func (f *Forwarder) post(ctx context.Context, ev core.Event) {
	body, err := json.Marshal(f.payload(ev))
	if err != nil {
		log.Error().Err(err).Str("module", "app.forwarder").Msg("marshal event")
		return
	}
	url := f.baseURL + routes[ev.Kind()]
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("module", "app.forwarder").Msg("build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.forwarder").Str("url", url).Msg("delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Str("module", "app.forwarder").Str("url", url).Int("status", resp.StatusCode).Msg("consumer rejected event")
	}
}

// payload flattens an event into the consumer's JSON shape. Binary data
// rides as base64 (encoding/json's []byte default).
func (f *Forwarder) payload(ev core.Event) map[string]any {
	body := map[string]any{
		"event_id":     uuid.NewString(),
		"meeting_uuid": ev.Meeting(),
		"kind":         string(ev.Kind()),
		"sent_at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	switch e := ev.(type) {
	case core.Connected:
		body["rtms_stream_id"] = e.StreamID
	case core.Disconnected:
		body["reason"] = e.Reason
	case core.SessionError:
		body["reason"] = e.Reason
	case core.AudioFrame:
		body["user_id"] = e.UserID
		body["user_name"] = e.UserName
		body["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
		body["data"] = e.Data
		body["synthetic"] = e.Synthetic
	case core.VideoFrame:
		body["user_id"] = e.UserID
		body["user_name"] = e.UserName
		body["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
		body["data"] = e.Data
	case core.ScreenShareFrame:
		body["user_id"] = e.UserID
		body["user_name"] = e.UserName
		body["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
		body["data"] = e.Data
	case core.TranscriptSegment:
		body["user_id"] = e.UserID
		body["user_name"] = e.UserName
		body["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
		body["text"] = e.Text
	case core.ChatMessage:
		body["user_id"] = e.UserID
		body["user_name"] = e.UserName
		body["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
		body["text"] = e.Text
	}
	return body
}
