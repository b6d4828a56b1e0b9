package replay

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
)

func tr(reward float64) Transition {
	return Transition{State: []float64{reward}, Reward: reward}
}

func TestPushEvictsOldestFIFO(t *testing.T) {
	b := New(5)
	for i := 1; i <= 6; i++ {
		b.Push(tr(float64(i)))
	}
	if b.Len() != 5 {
		t.Fatalf("Len = %d, want 5", b.Len())
	}

	// sampling everything must return exactly rewards 2..6
	got, err := b.Sample(5, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	seen := map[float64]bool{}
	for _, x := range got {
		seen[x.Reward] = true
	}
	for want := 2.0; want <= 6; want++ {
		if !seen[want] {
			t.Fatalf("reward %v evicted too early; got %v", want, seen)
		}
	}
	if seen[1] {
		t.Fatal("oldest transition survived eviction")
	}
}

func TestSampleInsufficient(t *testing.T) {
	b := New(10)
	b.Push(tr(1))
	b.Push(tr(2))

	if _, err := b.Sample(3, rand.New(rand.NewSource(1))); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
	if _, err := b.Sample(2, rand.New(rand.NewSource(1))); err != nil {
		t.Fatalf("Sample at exactly Len: %v", err)
	}
}

func TestSampleNoDuplicatesWithinBatch(t *testing.T) {
	b := New(100)
	for i := 0; i < 100; i++ {
		b.Push(tr(float64(i)))
	}

	got, err := b.Sample(100, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	seen := map[float64]bool{}
	for _, x := range got {
		if seen[x.Reward] {
			t.Fatalf("duplicate transition %v within one batch", x.Reward)
		}
		seen[x.Reward] = true
	}
}

func TestConcurrentPushKeepsCapacity(t *testing.T) {
	b := New(64)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				b.Push(tr(float64(w*1000 + i)))
			}
		}(w)
	}
	wg.Wait()

	if b.Len() != 64 {
		t.Fatalf("Len = %d after concurrent pushes, want capacity 64", b.Len())
	}
}

func TestNewPanicsOnNonPositiveCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for capacity 0")
		}
	}()
	New(0)
}
