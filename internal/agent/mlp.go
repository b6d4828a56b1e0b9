package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// mlpParamsVersion tags the serialized parameter layout.
const mlpParamsVersion = 1

// MLP is a one-hidden-layer ReLU network over flat float64 slices.
// Hidden size 0 degrades to a plain linear model.
type MLP struct {
	in, hidden, out int
	w1, b1          []float64 // hidden x in (or out x in when linear)
	w2, b2          []float64 // out x hidden (empty when linear)
}

// NewMLP builds a network with He-style initialization drawn from rng so
// identical seeds give identical starting weights.
func NewMLP(in, hidden, out int, rng *rand.Rand) *MLP {
	m := &MLP{in: in, hidden: hidden, out: out}
	if hidden == 0 {
		m.w1 = initWeights(out*in, in, rng)
		m.b1 = make([]float64, out)
		return m
	}
	m.w1 = initWeights(hidden*in, in, rng)
	m.b1 = make([]float64, hidden)
	m.w2 = initWeights(out*hidden, hidden, rng)
	m.b2 = make([]float64, out)
	return m
}

func initWeights(n, fanIn int, rng *rand.Rand) []float64 {
	scale := math.Sqrt(2 / float64(fanIn))
	w := make([]float64, n)
	for i := range w {
		w[i] = rng.NormFloat64() * scale
	}
	return w
}

// Predict returns the action values for obs.
func (m *MLP) Predict(obs []float64) []float64 {
	if m.hidden == 0 {
		return m.linear(obs)
	}
	h, _ := m.forward(obs)
	q := make([]float64, m.out)
	for k := 0; k < m.out; k++ {
		sum := m.b2[k]
		for j := 0; j < m.hidden; j++ {
			sum += m.w2[k*m.hidden+j] * h[j]
		}
		q[k] = sum
	}
	return q
}

func (m *MLP) linear(obs []float64) []float64 {
	q := make([]float64, m.out)
	for k := 0; k < m.out; k++ {
		sum := m.b1[k]
		for i := 0; i < m.in; i++ {
			sum += m.w1[k*m.in+i] * obs[i]
		}
		q[k] = sum
	}
	return q
}

// forward returns hidden activations and pre-activation values.
func (m *MLP) forward(obs []float64) (h, z []float64) {
	h = make([]float64, m.hidden)
	z = make([]float64, m.hidden)
	for j := 0; j < m.hidden; j++ {
		sum := m.b1[j]
		for i := 0; i < m.in; i++ {
			sum += m.w1[j*m.in+i] * obs[i]
		}
		z[j] = sum
		if sum > 0 {
			h[j] = sum
		}
	}
	return h, z
}

// Learn runs one SGD step on 0.5*(q[action]-target)^2 and returns the
// squared error before the step.
func (m *MLP) Learn(obs []float64, action int, target, lr float64) float64 {
	if m.hidden == 0 {
		q := m.linear(obs)
		grad := q[action] - target
		m.b1[action] -= lr * grad
		for i := 0; i < m.in; i++ {
			m.w1[action*m.in+i] -= lr * grad * obs[i]
		}
		return grad * grad
	}

	h, z := m.forward(obs)
	sum := m.b2[action]
	for j := 0; j < m.hidden; j++ {
		sum += m.w2[action*m.hidden+j] * h[j]
	}
	grad := sum - target

	// hidden gradients use the pre-update output weights
	dh := make([]float64, m.hidden)
	for j := 0; j < m.hidden; j++ {
		if z[j] > 0 {
			dh[j] = grad * m.w2[action*m.hidden+j]
		}
	}

	m.b2[action] -= lr * grad
	for j := 0; j < m.hidden; j++ {
		m.w2[action*m.hidden+j] -= lr * grad * h[j]
	}
	for j := 0; j < m.hidden; j++ {
		if dh[j] == 0 {
			continue
		}
		m.b1[j] -= lr * dh[j]
		for i := 0; i < m.in; i++ {
			m.w1[j*m.in+i] -= lr * dh[j] * obs[i]
		}
	}

	return grad * grad
}

// MLPFromParams rebuilds a network from serialized parameters, e.g. when
// loading a checkpoint without knowing the original dimensions.
func MLPFromParams(raw json.RawMessage) (*MLP, error) {
	m := &MLP{}
	if err := m.SetParams(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// InputSize is the expected observation length.
func (m *MLP) InputSize() int { return m.in }

// Clone returns an independent deep copy.
func (m *MLP) Clone() Estimator {
	c := &MLP{in: m.in, hidden: m.hidden, out: m.out}
	c.w1 = append([]float64(nil), m.w1...)
	c.b1 = append([]float64(nil), m.b1...)
	c.w2 = append([]float64(nil), m.w2...)
	c.b2 = append([]float64(nil), m.b2...)
	return c
}

// CopyFrom overwrites this network's parameters with src's. Shapes must
// match; used for target synchronization without reallocating.
func (m *MLP) CopyFrom(src *MLP) {
	copy(m.w1, src.w1)
	copy(m.b1, src.b1)
	copy(m.w2, src.w2)
	copy(m.b2, src.b2)
}

type mlpParams struct {
	Version int       `json:"version"`
	In      int       `json:"in"`
	Hidden  int       `json:"hidden"`
	Out     int       `json:"out"`
	W1      []float64 `json:"w1"`
	B1      []float64 `json:"b1"`
	W2      []float64 `json:"w2,omitempty"`
	B2      []float64 `json:"b2,omitempty"`
}

// Params serializes the network for checkpointing.
func (m *MLP) Params() (json.RawMessage, error) {
	return json.Marshal(mlpParams{
		Version: mlpParamsVersion,
		In:      m.in, Hidden: m.hidden, Out: m.out,
		W1: m.w1, B1: m.b1, W2: m.w2, B2: m.b2,
	})
}

// SetParams restores a serialized network, replacing all parameters.
func (m *MLP) SetParams(raw json.RawMessage) error {
	var p mlpParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode estimator params: %w", err)
	}
	if p.Version != mlpParamsVersion {
		return fmt.Errorf("unsupported estimator params version %d", p.Version)
	}
	if p.Hidden == 0 {
		if len(p.W1) != p.Out*p.In || len(p.B1) != p.Out {
			return fmt.Errorf("estimator params shape mismatch")
		}
	} else {
		if len(p.W1) != p.Hidden*p.In || len(p.B1) != p.Hidden ||
			len(p.W2) != p.Out*p.Hidden || len(p.B2) != p.Out {
			return fmt.Errorf("estimator params shape mismatch")
		}
	}
	m.in, m.hidden, m.out = p.In, p.Hidden, p.Out
	m.w1, m.b1, m.w2, m.b2 = p.W1, p.B1, p.W2, p.B2
	return nil
}
