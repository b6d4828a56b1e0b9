// Package replay is the bounded experience store the learner samples from.
package replay

import (
	"errors"
	"math/rand"
	"sync"
)

// ErrInsufficientSamples is returned when a sample request exceeds the
// buffer's current size. Recoverable: skip the update and keep stepping.
var ErrInsufficientSamples = errors.New("replay buffer holds fewer transitions than requested")

// Transition is one (s, a, r, s', done) experience tuple. Immutable once
// pushed; the buffer only ever evicts it.
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}

// Buffer is a fixed-capacity FIFO ring of transitions. Push is safe for
// concurrent writers (parallel actors); Sample is meant for the single
// learner goroutine.
type Buffer struct {
	mu    sync.Mutex
	items []Transition
	head  int // index of the oldest item
	size  int
}

// New creates a buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("replay: capacity must be positive")
	}
	return &Buffer{items: make([]Transition, capacity)}
}

// Cap is the fixed capacity.
func (b *Buffer) Cap() int { return len(b.items) }

// Len is the current number of stored transitions.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Push inserts a transition in O(1), evicting the oldest when full.
func (b *Buffer) Push(t Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = t
		b.size++
		return
	}
	// full: overwrite the oldest slot
	b.items[b.head] = t
	b.head = (b.head + 1) % len(b.items)
}

// Sample returns n transitions drawn uniformly at random from the current
// contents, without replacement within this call. rng must be the
// learner's seeded generator.
func (b *Buffer) Sample(n int, rng *rand.Rand) ([]Transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.size {
		return nil, ErrInsufficientSamples
	}

	// partial Fisher-Yates over logical indices 0..size-1
	idx := make([]int, b.size)
	for i := range idx {
		idx[i] = i
	}
	out := make([]Transition, n)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(b.size-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = b.items[(b.head+idx[i])%len(b.items)]
	}
	return out, nil
}
