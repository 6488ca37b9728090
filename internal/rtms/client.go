// Package rtms implements the streaming protocol client: one Client per
// meeting, owning its control and media connections and running the full
// session state machine.
package rtms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/signature"
)

// malformedFrameLimit is how many undecodable frames in a row escalate a
// protocol error into a reconnect.
const malformedFrameLimit = 3

const (
	defaultBackoffBase       = time.Second
	defaultBackoffCap        = 10 * time.Second
	defaultHeartbeatInterval = 5 * time.Second
	defaultHeartbeatTimeout  = 10 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultFrameInterval     = 20 * time.Millisecond
)

type Config struct {
	MeetingID  string
	StreamID   string
	Endpoints  []string
	MediaTypes core.MediaType

	Sig *signature.Service

	// Sink receives every event the client emits. It must never block;
	// the bus and forwarder both satisfy that.
	Sink func(core.Event)

	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	HandshakeTimeout     time.Duration
	BackoffBase          time.Duration
	BackoffCap           time.Duration

	EnableGapFilling   bool
	AudioFrameInterval time.Duration
}

// Client runs one meeting's streaming attachment. All mutable state is owned
// by the goroutine running Run; Snapshot exposes read-only copies.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu                sync.RWMutex
	state             core.SessionState
	reconnectAttempts int
	lastHeartbeatAt   time.Time

	gap       *gapFiller
	badFrames int
}

func New(cfg Config) (*Client, error) {
	if cfg.MeetingID == "" || cfg.StreamID == "" {
		return nil, errors.New("meeting id and stream id are required")
	}
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("at least one server endpoint is required")
	}
	if cfg.Sig == nil {
		return nil, errors.New("signature service is required")
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.AudioFrameInterval <= 0 {
		cfg.AudioFrameInterval = defaultFrameInterval
	}
	c := &Client{
		cfg:   cfg,
		log:   log.With().Str("module", "rtms").Str("meeting", cfg.MeetingID).Logger(),
		state: core.StateInit,
	}
	if cfg.EnableGapFilling {
		c.gap = newGapFiller(cfg.AudioFrameInterval)
	}
	return c, nil
}

func (c *Client) State() core.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns a copy of the session's current observable state.
func (c *Client) Snapshot() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return core.Session{
		MeetingID:         c.cfg.MeetingID,
		StreamID:          c.cfg.StreamID,
		Endpoints:         c.cfg.Endpoints,
		MediaTypes:        c.cfg.MediaTypes,
		State:             c.state,
		ReconnectAttempts: c.reconnectAttempts,
		LastHeartbeatAt:   c.lastHeartbeatAt,
	}
}

// Run drives the state machine until the session ends. It returns nil on a
// clean close (context canceled or server-initiated stop) and an error on
// terminal failure (auth rejection, exhausted reconnects).
func (c *Client) Run(ctx context.Context) error {
	for {
		ctrl, media, err := c.handshake(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.finishClosed("shutdown")
				return nil
			}
			if errors.Is(err, ErrAuthRejected) {
				return c.finishError(err)
			}
			c.log.Warn().Err(err).Msg("handshake failed")
			if !c.backoff(ctx) {
				if ctx.Err() != nil {
					c.finishClosed("shutdown")
					return nil
				}
				return c.finishError(ErrReconnectExhausted)
			}
			continue
		}

		err = c.stream(ctx, ctrl, media)
		c.flushGap()

		if ctx.Err() != nil {
			c.leave(ctrl, media)
			c.finishClosed("closed by caller")
			return nil
		}
		ctrl.close()
		if media != ctrl {
			media.close()
		}
		if errors.Is(err, errStreamTerminated) {
			c.finishClosed(err.Error())
			return nil
		}

		c.log.Warn().Err(err).Msg("stream interrupted")
		c.emit(core.Disconnected{MeetingID: c.cfg.MeetingID, Reason: err.Error()})
		if !c.backoff(ctx) {
			if ctx.Err() != nil {
				c.finishClosed("shutdown")
				return nil
			}
			return c.finishError(ErrReconnectExhausted)
		}
	}
}

// handshake opens the control connection, authenticates, then brings up the
// media connection and subscription. On success the session is Streaming and
// the reconnect counter is reset.
func (c *Client) handshake(ctx context.Context) (ctrl, media *socket, err error) {
	c.setState(core.StateHandshaking)

	var dialErr error
	for _, ep := range c.cfg.Endpoints {
		ctrl, dialErr = dialSocket(ctx, ep, c.cfg.HandshakeTimeout)
		if dialErr == nil {
			break
		}
		c.log.Debug().Err(dialErr).Str("endpoint", ep).Msg("endpoint unreachable")
	}
	if ctrl == nil {
		return nil, nil, fmt.Errorf("%w: no reachable endpoint: %v", ErrConnection, dialErr)
	}

	ts := time.Now().UnixMilli()
	join := envelope{
		Type:        msgSignalingHandshakeReq,
		ClientID:    c.cfg.Sig.ClientID(),
		MeetingUUID: c.cfg.MeetingID,
		StreamID:    c.cfg.StreamID,
		Timestamp:   ts,
		Signature:   c.cfg.Sig.HandshakeSignature(c.cfg.MeetingID, c.cfg.StreamID, ts),
		MediaTypes:  uint32(c.cfg.MediaTypes),
	}
	if err := ctrl.send(join); err != nil {
		ctrl.close()
		return nil, nil, fmt.Errorf("%w: join request: %v", ErrConnection, err)
	}
	resp, err := c.await(ctx, ctrl, msgSignalingHandshakeResp)
	if err != nil {
		ctrl.close()
		return nil, nil, err
	}
	if resp.StatusCode == statusUnauthorized {
		ctrl.close()
		return nil, nil, fmt.Errorf("%w: %s", ErrAuthRejected, resp.Reason)
	}
	if resp.StatusCode != statusOK {
		ctrl.close()
		return nil, nil, fmt.Errorf("%w: join status %d: %s", ErrConnection, resp.StatusCode, resp.Reason)
	}

	c.setState(core.StateJoined)
	c.emit(core.Connected{MeetingID: c.cfg.MeetingID, StreamID: c.cfg.StreamID})

	media = ctrl
	if resp.MediaURL != "" {
		media, err = dialSocket(ctx, resp.MediaURL, c.cfg.HandshakeTimeout)
		if err != nil {
			ctrl.close()
			return nil, nil, fmt.Errorf("%w: media endpoint: %v", ErrConnection, err)
		}
	}

	dts := time.Now().UnixMilli()
	sub := envelope{
		Type:        msgDataHandshakeReq,
		ClientID:    c.cfg.Sig.ClientID(),
		MeetingUUID: c.cfg.MeetingID,
		StreamID:    c.cfg.StreamID,
		Timestamp:   dts,
		Signature:   c.cfg.Sig.HandshakeSignature(c.cfg.MeetingID, c.cfg.StreamID, dts),
		MediaTypes:  uint32(c.cfg.MediaTypes),
	}
	if err := media.send(sub); err != nil {
		c.closePair(ctrl, media)
		return nil, nil, fmt.Errorf("%w: subscription request: %v", ErrConnection, err)
	}
	dresp, err := c.await(ctx, media, msgDataHandshakeResp)
	if err != nil {
		c.closePair(ctrl, media)
		return nil, nil, err
	}
	if dresp.StatusCode == statusUnauthorized {
		c.closePair(ctrl, media)
		return nil, nil, fmt.Errorf("%w: %s", ErrAuthRejected, dresp.Reason)
	}
	if dresp.StatusCode != statusOK {
		c.closePair(ctrl, media)
		return nil, nil, fmt.Errorf("%w: subscription status %d: %s", ErrConnection, dresp.StatusCode, dresp.Reason)
	}

	c.mu.Lock()
	c.state = core.StateStreaming
	c.reconnectAttempts = 0
	c.lastHeartbeatAt = time.Now()
	c.mu.Unlock()
	c.log.Info().Str("media", c.cfg.MediaTypes.String()).Msg("streaming")
	return ctrl, media, nil
}

// await waits for one frame of the given type, answering keep-alives and
// ignoring everything else in the meantime.
func (c *Client) await(ctx context.Context, s *socket, typ string) (envelope, error) {
	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return envelope{}, ctx.Err()
		case <-timer.C:
			return envelope{}, fmt.Errorf("%w: timed out waiting for %s", ErrConnection, typ)
		case in, ok := <-s.frames:
			if !ok {
				return envelope{}, fmt.Errorf("%w: %v", ErrConnection, <-s.errs)
			}
			if in.err != nil {
				c.log.Warn().Err(in.err).Msg("malformed frame during handshake")
				continue
			}
			if in.env.Type == msgKeepAliveReq {
				_ = s.send(envelope{Type: msgKeepAliveResp, Timestamp: time.Now().UnixMilli()})
				continue
			}
			if in.env.Type == typ {
				return in.env, nil
			}
		}
	}
}

// stream is the steady state: demultiplex inbound frames, probe liveness,
// bail out on the first transport-level problem.
func (c *Client) stream(ctx context.Context, ctrl, media *socket) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	c.badFrames = 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Since(c.heartbeatAt()) > c.cfg.HeartbeatInterval+c.cfg.HeartbeatTimeout {
				return fmt.Errorf("%w: nothing heard for over %s", ErrHeartbeatTimeout, c.cfg.HeartbeatInterval+c.cfg.HeartbeatTimeout)
			}
			probe := envelope{Type: msgKeepAliveReq, Timestamp: time.Now().UnixMilli()}
			if err := media.send(probe); err != nil {
				return fmt.Errorf("%w: heartbeat send: %v", ErrConnection, err)
			}
			if media != ctrl {
				if err := ctrl.send(probe); err != nil {
					return fmt.Errorf("%w: control heartbeat send: %v", ErrConnection, err)
				}
			}
		case in, ok := <-media.frames:
			if !ok {
				return fmt.Errorf("%w: %v", ErrConnection, <-media.errs)
			}
			if err := c.handleFrame(media, in); err != nil {
				return err
			}
		case in, ok := <-ctrl.frames:
			if !ok {
				return fmt.Errorf("%w: %v", ErrConnection, <-ctrl.errs)
			}
			if err := c.handleFrame(ctrl, in); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handleFrame(s *socket, in inbound) error {
	if in.err != nil {
		return c.countBad(fmt.Errorf("%w: undecodable frame: %v", ErrProtocol, in.err))
	}
	c.touchHeartbeat()

	switch in.env.Type {
	case msgKeepAliveResp:
		c.badFrames = 0
	case msgKeepAliveReq:
		c.badFrames = 0
		_ = s.send(envelope{Type: msgKeepAliveResp, Timestamp: time.Now().UnixMilli()})
	case msgMediaFrame:
		if in.env.Media == nil {
			return c.countBad(fmt.Errorf("%w: media frame without payload", ErrProtocol))
		}
		c.badFrames = 0
		c.demux(in.env.Media)
	case msgStreamTerminated:
		return errStreamTerminated
	case msgSignalingHandshakeResp, msgDataHandshakeResp:
		// stale handshake reply after a slow server, harmless
	default:
		return c.countBad(fmt.Errorf("%w: unexpected frame type %q", ErrProtocol, in.env.Type))
	}
	return nil
}

// countBad logs a single protocol violation and drops the frame; a run of
// them escalates into a reconnect.
func (c *Client) countBad(cause error) error {
	c.badFrames++
	c.log.Warn().Err(cause).Int("run", c.badFrames).Msg("dropping bad frame")
	if c.badFrames >= malformedFrameLimit {
		return fmt.Errorf("%w: %d consecutive protocol violations", ErrConnection, c.badFrames)
	}
	return nil
}

// demux routes one media frame to its typed event. Frames for media types
// the session did not subscribe to are dropped silently.
func (c *Client) demux(p *mediaPayload) {
	mt := core.MediaType(p.MediaType)
	if !c.cfg.MediaTypes.Has(mt) {
		return
	}
	ts := time.UnixMilli(p.Timestamp)
	switch mt {
	case core.MediaAudio:
		f := core.AudioFrame{
			MeetingID: c.cfg.MeetingID,
			UserID:    p.UserID,
			UserName:  p.UserName,
			Timestamp: ts,
			Data:      p.Data,
		}
		if c.gap != nil {
			for _, out := range c.gap.push(f) {
				c.emit(out)
			}
			return
		}
		c.emit(f)
	case core.MediaVideo:
		c.emit(core.VideoFrame{MeetingID: c.cfg.MeetingID, UserID: p.UserID, UserName: p.UserName, Timestamp: ts, Data: p.Data})
	case core.MediaScreenShare:
		c.emit(core.ScreenShareFrame{MeetingID: c.cfg.MeetingID, UserID: p.UserID, UserName: p.UserName, Timestamp: ts, Data: p.Data})
	case core.MediaTranscript:
		c.emit(core.TranscriptSegment{MeetingID: c.cfg.MeetingID, UserID: p.UserID, UserName: p.UserName, Timestamp: ts, Text: p.Text})
	case core.MediaChat:
		c.emit(core.ChatMessage{MeetingID: c.cfg.MeetingID, UserID: p.UserID, UserName: p.UserName, Timestamp: ts, Text: p.Text})
	default:
		c.log.Debug().Uint32("media_type", p.MediaType).Msg("frame with unknown media tag dropped")
	}
}

// backoff enters Reconnecting, counts the attempt and sleeps the capped
// exponential delay. Returns false when the budget is spent or the context
// is canceled.
func (c *Client) backoff(ctx context.Context) bool {
	c.mu.Lock()
	c.state = core.StateReconnecting
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	c.mu.Unlock()

	if attempt > c.cfg.MaxReconnectAttempts {
		return false
	}
	delay := backoffDelay(attempt, c.cfg.BackoffBase, c.cfg.BackoffCap)
	c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// backoffDelay computes min(base * 2^(attempt-1), cap) for 1-based attempts.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > 16 {
		return cap
	}
	d := base << shift
	if d > cap || d <= 0 {
		return cap
	}
	return d
}

// leave performs the clean close: a terminate notice on the control
// connection, then close handshakes with a short deadline.
func (c *Client) leave(ctrl, media *socket) {
	_ = ctrl.send(envelope{
		Type:        msgStreamTerminated,
		MeetingUUID: c.cfg.MeetingID,
		StreamID:    c.cfg.StreamID,
		Timestamp:   time.Now().UnixMilli(),
	})
	if media != ctrl {
		media.closeGracefully()
	}
	ctrl.closeGracefully()
}

func (c *Client) flushGap() {
	if c.gap == nil {
		return
	}
	for _, f := range c.gap.flush() {
		c.emit(f)
	}
}

func (c *Client) finishClosed(reason string) {
	c.setState(core.StateClosed)
	c.emit(core.Disconnected{MeetingID: c.cfg.MeetingID, Reason: reason})
	c.log.Info().Str("reason", reason).Msg("session closed")
}

func (c *Client) finishError(err error) error {
	c.setState(core.StateError)
	c.emit(core.SessionError{MeetingID: c.cfg.MeetingID, Reason: err.Error()})
	c.log.Error().Err(err).Msg("session failed")
	return err
}

func (c *Client) closePair(ctrl, media *socket) {
	if media != nil && media != ctrl {
		media.close()
	}
	ctrl.close()
}

func (c *Client) setState(s core.SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) touchHeartbeat() {
	c.mu.Lock()
	c.lastHeartbeatAt = time.Now()
	c.mu.Unlock()
}

func (c *Client) heartbeatAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeatAt
}

func (c *Client) emit(e core.Event) {
	if c.cfg.Sink != nil {
		c.cfg.Sink(e)
	}
}
