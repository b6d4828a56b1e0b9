// Package events is a lightweight in-process pub/sub used to decouple the
// training loop from progress observers (logging, future UIs).
package events

import "sync"

// Event names the channels on the bus.
type Event string

const (
	EventEpisodeDone     Event = "episode.done"
	EventCheckpointSaved Event = "checkpoint.saved"
	EventRunFinished     Event = "run.finished"
)

// EpisodeDone is published after every finished episode.
type EpisodeDone struct {
	Episode    int
	Reward     float64
	Steps      int
	Cause      string
	Epsilon    float64
	FinalValue float64
}

// CheckpointSaved is published after a checkpoint write succeeds.
type CheckpointSaved struct {
	CheckpointID string
	Step         int
	Episode      int
}

// RunFinished is published once when the run completes or stops.
type RunFinished struct {
	RunID    string
	Status   string
	Episodes int
}

// Bus fans payloads out to subscribers without blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener and returns its channel plus an
// unsubscribe function that also closes the channel.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Publish delivers payload to every subscriber, dropping it for slow ones
// so the training hot path never blocks.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
