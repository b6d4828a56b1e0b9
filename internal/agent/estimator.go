package agent

import "encoding/json"

// Estimator approximates action values for observations. Anything
// satisfying this interface can back the agent; the network family is a
// pluggable detail.
type Estimator interface {
	// Predict returns one value per action.
	Predict(obs []float64) []float64
	// Learn takes a single gradient step moving the predicted value of
	// (obs, action) toward target at learning rate lr, and returns the
	// squared prediction error before the step.
	Learn(obs []float64, action int, target, lr float64) float64
	// Clone returns an independent deep copy (used for target snapshots).
	Clone() Estimator
	// Params serializes the parameters for checkpointing.
	Params() (json.RawMessage, error)
	// SetParams restores previously serialized parameters.
	SetParams(json.RawMessage) error
}

// GreedyAction is the argmax over est's predictions with ties broken
// toward the lowest action index, for reproducibility.
func GreedyAction(est Estimator, obs []float64) int {
	q := est.Predict(obs)
	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return best
}
