package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventEpisodeDone, 4)
	defer unsub()

	bus.Publish(EventEpisodeDone, EpisodeDone{Episode: 3, Reward: 1.5})

	select {
	case p := <-ch:
		e, ok := p.(EpisodeDone)
		if !ok {
			t.Fatalf("payload type %T", p)
		}
		if e.Episode != 3 || e.Reward != 1.5 {
			t.Fatalf("payload = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("payload never delivered")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe(EventCheckpointSaved, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// second publish overflows the buffer and must be dropped
		bus.Publish(EventCheckpointSaved, CheckpointSaved{CheckpointID: "a"})
		bus.Publish(EventCheckpointSaved, CheckpointSaved{CheckpointID: "b"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventRunFinished, 1)
	unsub()

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}

	// publishing after unsubscribe must not panic
	bus.Publish(EventRunFinished, RunFinished{RunID: "r"})
}

func TestPublishToEventWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Publish(EventEpisodeDone, EpisodeDone{Episode: 1})
}
