package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/rtms"
	"github.com/dkeye/Relay/internal/signature"
)

type activeSession struct {
	client *rtms.Client
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry is the directory of live streaming sessions, at most one per
// meeting. Map mutations are serialized here; each session's internals are
// owned by its own goroutine.
type Registry struct {
	cfg  *config.Config
	sig  *signature.Service
	sink func(core.Event)

	mu       sync.RWMutex
	sessions map[string]*activeSession
}

func NewRegistry(cfg *config.Config, sig *signature.Service, sink func(core.Event)) *Registry {
	return &Registry{
		cfg:      cfg,
		sig:      sig,
		sink:     sink,
		sessions: make(map[string]*activeSession),
	}
}

// Run consumes lifecycle events from the bus until ctx ends. It uses the
// bus's guaranteed control subscription: media backlog on observer channels
// must never cost a start/stop request. Stream clients created here inherit
// ctx, so canceling it begins shutdown for all of them.
func (r *Registry) Run(ctx context.Context, bus *core.Bus) {
	events, unsubscribe := bus.SubscribeControl()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev := ev.(type) {
			case core.SessionStarted:
				r.OnStreamStarted(ctx, ev)
			case core.SessionStopped:
				r.OnStreamStopped(ev.MeetingID)
			}
		}
	}
}

// OnStreamStarted attaches to a meeting's stream. A duplicate start for an
// already-active meeting is a platform anomaly and is ignored with a warning.
func (r *Registry) OnStreamStarted(ctx context.Context, ev core.SessionStarted) {
	r.mu.Lock()
	if _, exists := r.sessions[ev.MeetingID]; exists {
		r.mu.Unlock()
		log.Warn().Str("module", "app.registry").Str("meeting", ev.MeetingID).Msg("duplicate stream start ignored")
		return
	}

	client, err := rtms.New(rtms.Config{
		MeetingID:            ev.MeetingID,
		StreamID:             ev.StreamID,
		Endpoints:            ev.Endpoints,
		MediaTypes:           ev.MediaTypes,
		Sig:                  r.sig,
		Sink:                 r.sink,
		MaxReconnectAttempts: r.cfg.MaxReconnectAttempts,
		HeartbeatInterval:    r.cfg.HeartbeatInterval,
		HeartbeatTimeout:     r.cfg.HeartbeatTimeout,
		HandshakeTimeout:     r.cfg.HandshakeTimeout,
		EnableGapFilling:     r.cfg.EnableGapFill,
	})
	if err != nil {
		r.mu.Unlock()
		log.Error().Err(err).Str("module", "app.registry").Str("meeting", ev.MeetingID).Msg("cannot create stream client")
		return
	}

	sctx, cancel := context.WithCancel(ctx)
	entry := &activeSession{client: client, cancel: cancel, done: make(chan struct{})}
	r.sessions[ev.MeetingID] = entry
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("meeting", ev.MeetingID).Str("stream", ev.StreamID).Msg("session created")

	go func() {
		if err := client.Run(sctx); err != nil {
			log.Error().Err(err).Str("module", "app.registry").Str("meeting", ev.MeetingID).Msg("session ended with error")
		}
		close(entry.done)
		r.remove(ev.MeetingID, entry)
	}()
}

// OnStreamStopped detaches from a meeting's stream; no-op when absent.
func (r *Registry) OnStreamStopped(meetingID string) {
	r.mu.RLock()
	entry, ok := r.sessions[meetingID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	log.Info().Str("module", "app.registry").Str("meeting", meetingID).Msg("stopping session")
	entry.cancel()
}

// Get returns a snapshot of the meeting's session, if one is active.
func (r *Registry) Get(meetingID string) (core.Session, bool) {
	r.mu.RLock()
	entry, ok := r.sessions[meetingID]
	r.mu.RUnlock()
	if !ok {
		return core.Session{}, false
	}
	return entry.client.Snapshot(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll cancels every session and waits for their clean leave until ctx
// expires; stragglers are abandoned (their contexts are already canceled,
// which force-closes the sockets).
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.RLock()
	entries := make(map[string]*activeSession, len(r.sessions))
	for id, e := range r.sessions {
		entries[id] = e
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.cancel()
	}
	for id, e := range entries {
		select {
		case <-e.done:
		case <-ctx.Done():
			log.Warn().Str("module", "app.registry").Str("meeting", id).Msg("session did not close in time, force-terminated")
		}
	}
	log.Info().Str("module", "app.registry").Int("count", len(entries)).Msg("all sessions closed")
}

// remove deletes the entry only if it is still the registered one, so a
// session created after a stop/start race is not clobbered.
func (r *Registry) remove(meetingID string, entry *activeSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[meetingID]; ok && cur == entry {
		delete(r.sessions, meetingID)
		log.Info().Str("module", "app.registry").Str("meeting", meetingID).Msg("session removed")
	}
}
