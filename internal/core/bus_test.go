package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(4)
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub1()
	defer unsub2()

	bus.Publish(SessionStarted{MeetingID: "m1", StreamID: "s1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			require.IsType(t, SessionStarted{}, ev)
			assert.Equal(t, "m1", ev.Meeting())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusDropsForSlowObserver(t *testing.T) {
	bus := NewBus()
	slow, unsubSlow := bus.Subscribe(1)
	fast, unsubFast := bus.Subscribe(8)
	defer unsubSlow()
	defer unsubFast()

	// Nobody reads slow; its buffer holds one event and loses the rest.
	for i := 0; i < 5; i++ {
		bus.Publish(ChatMessage{MeetingID: "m1", Text: "hi"})
	}

	assert.Len(t, slow, 1)
	assert.Len(t, fast, 5)
}

func TestControlDeliverySurvivesMediaBacklog(t *testing.T) {
	bus := NewBus()
	// A saturated observer: nobody drains it.
	observer, unsubObs := bus.Subscribe(64)
	defer unsubObs()
	ctl, unsubCtl := bus.SubscribeControl()
	defer unsubCtl()

	for i := 0; i < 64; i++ {
		bus.Publish(AudioFrame{MeetingID: "m1", Data: []byte{1}})
	}
	bus.Publish(SessionStopped{MeetingID: "m1"})

	select {
	case ev := <-ctl:
		stopped, ok := ev.(SessionStopped)
		require.True(t, ok)
		assert.Equal(t, "m1", stopped.MeetingID)
	case <-time.After(time.Second):
		t.Fatal("lifecycle control event lost under media backlog")
	}
	assert.Len(t, observer, 64, "observer kept only what its buffer held")
}

func TestControlSubscriptionIgnoresMediaEvents(t *testing.T) {
	bus := NewBus()
	ctl, unsub := bus.SubscribeControl()
	defer unsub()

	bus.Publish(ChatMessage{MeetingID: "m1", Text: "hi"})
	bus.Publish(Connected{MeetingID: "m1"})
	bus.Publish(SessionStarted{MeetingID: "m1"})

	ev := <-ctl
	_, ok := ev.(SessionStarted)
	assert.True(t, ok, "only lifecycle control events reach the control channel")
	assert.Empty(t, ctl)
}

func TestControlPublishBlocksUntilConsumedOrUnsubscribed(t *testing.T) {
	bus := NewBus()
	ctl, unsub := bus.SubscribeControl()

	// Fill the control buffer.
	for i := 0; i < cap(ctl); i++ {
		bus.Publish(SessionStopped{MeetingID: "fill"})
	}

	published := make(chan struct{})
	go func() {
		bus.Publish(SessionStopped{MeetingID: "blocked"})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish should block on a full control buffer")
	case <-time.After(50 * time.Millisecond):
	}

	<-ctl // make room
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish did not complete after the consumer drained")
	}

	// A blocked publisher must also be released by unsubscribing.
	for len(ctl) > 0 {
		<-ctl
	}
	for i := 0; i < cap(ctl); i++ {
		bus.Publish(SessionStopped{MeetingID: "fill"})
	}
	released := make(chan struct{})
	go func() {
		bus.Publish(SessionStopped{MeetingID: "abandoned"})
		close(released)
	}()
	time.Sleep(20 * time.Millisecond)
	unsub()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe did not release the blocked publisher")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(SessionStopped{MeetingID: "m1"})

	// Double unsubscribe is a no-op.
	unsub()
}
