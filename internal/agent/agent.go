// Package agent holds the value estimator pair (online + target) and the
// Q-learning update that trains it.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"rl-core/internal/replay"
)

// ErrNumericalInstability marks a NaN or Inf inside a learning update.
// Fatal for the run: silent propagation would corrupt all later learning.
var ErrNumericalInstability = errors.New("non-finite value in learning update")

// Agent pairs an online estimator with a periodically-synchronized
// target snapshot. The target copy is always a point-in-time snapshot of
// a past online state; only SyncTarget refreshes it, and only the
// orchestrator calls SyncTarget.
type Agent struct {
	mu      sync.Mutex
	online  Estimator
	target  Estimator
	actions int
	gamma   float64
	lr      float64
	rng     *rand.Rand
}

// New wraps an estimator; the target starts as a clone of it.
func New(est Estimator, actions int, gamma, lr float64, rng *rand.Rand) *Agent {
	return &Agent{
		online:  est,
		target:  est.Clone(),
		actions: actions,
		gamma:   gamma,
		lr:      lr,
		rng:     rng,
	}
}

// SelectAction is epsilon-greedy: explore uniformly with probability
// epsilon, otherwise exploit the online estimator (lowest index wins ties).
func (a *Agent) SelectAction(obs []float64, epsilon float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if epsilon > 0 && a.rng.Float64() < epsilon {
		return a.rng.Intn(a.actions)
	}
	return GreedyAction(a.online, obs)
}

// Greedy is exploitation-only action selection (used by backtests).
func (a *Agent) Greedy(obs []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return GreedyAction(a.online, obs)
}

// Update runs one gradient step per transition in the batch against the
// TD target r + gamma * max_a' targetQ(s')(a') * (1 - done). Terminal
// transitions contribute no next-state value. Returns the mean squared
// TD error.
func (a *Agent) Update(batch []replay.Transition) (float64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0.0
	for _, tr := range batch {
		target := tr.Reward
		if !tr.Done {
			q := a.target.Predict(tr.NextState)
			best := q[0]
			for _, v := range q[1:] {
				if v > best {
					best = v
				}
			}
			target += a.gamma * best
		}
		if math.IsNaN(target) || math.IsInf(target, 0) {
			return 0, fmt.Errorf("%w: target", ErrNumericalInstability)
		}
		total += a.online.Learn(tr.State, tr.Action, target, a.lr)
	}

	loss := total / float64(len(batch))
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, fmt.Errorf("%w: loss", ErrNumericalInstability)
	}
	return loss, nil
}

// SyncTarget copies the online parameters into the target snapshot.
// Called by the training loop on its cadence, never internally.
func (a *Agent) SyncTarget() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.target = a.online.Clone()
}

// ExportParams serializes the online estimator for checkpointing.
func (a *Agent) ExportParams() (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.online.Params()
}

// RestoreParams loads checkpointed parameters into both copies, so a
// resumed run starts from a consistent online/target pair.
func (a *Agent) RestoreParams(raw json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.online.SetParams(raw); err != nil {
		return err
	}
	a.target = a.online.Clone()
	return nil
}
