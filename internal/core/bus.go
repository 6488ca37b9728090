package core

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

type subscriber struct {
	ch      chan Event
	dropped atomic.Uint64
}

// controlSub is a guaranteed-delivery subscription for lifecycle requests.
// Its channel is never closed; done marks the subscriber gone so a blocked
// publish can move on.
type controlSub struct {
	ch   chan Event
	done chan struct{}
}

// Bus fans events out to local observers. Publish never blocks on an
// observer: a slow one loses events instead of stalling the media path.
// Lifecycle control events additionally go to control subscribers with
// guaranteed delivery, since losing a start/stop request leaks a session.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	ctl  map[int]*controlSub
	next int
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscriber),
		ctl:  make(map[int]*controlSub),
	}
}

// Subscribe registers an observer with its own buffered channel and returns
// the channel plus an unsubscribe func. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &subscriber{ch: make(chan Event, buffer)}
	b.subs[id] = sub
	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
}

// SubscribeControl registers a consumer of lifecycle control events
// (SessionStarted/SessionStopped). Delivery is guaranteed while subscribed:
// a full buffer blocks the publisher rather than dropping. The returned
// channel is never closed; unsubscribing releases any blocked publisher.
func (b *Bus) SubscribeControl() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	cs := &controlSub{ch: make(chan Event, 16), done: make(chan struct{})}
	b.ctl[id] = cs
	var once sync.Once
	return cs.ch, func() {
		b.mu.Lock()
		delete(b.ctl, id)
		b.mu.Unlock()
		once.Do(func() { close(cs.done) })
	}
}

// Publish delivers e to every observer whose buffer has room and drops it
// for the rest. Control events are then handed to control subscribers,
// blocking until each takes it or unsubscribes.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			n := sub.dropped.Add(1)
			log.Debug().Str("module", "core.bus").Int("sub", id).
				Str("kind", string(e.Kind())).Uint64("dropped", n).
				Msg("observer buffer full, event dropped")
		}
	}
	var ctl []*controlSub
	if e.Kind().Control() && len(b.ctl) > 0 {
		ctl = make([]*controlSub, 0, len(b.ctl))
		for _, cs := range b.ctl {
			ctl = append(ctl, cs)
		}
	}
	b.mu.RUnlock()

	for _, cs := range ctl {
		select {
		case cs.ch <- e:
		case <-cs.done:
		}
	}
}
