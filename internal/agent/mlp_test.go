package agent

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
)

func randObs(rng *rand.Rand, n int) []float64 {
	obs := make([]float64, n)
	for i := range obs {
		obs[i] = rng.NormFloat64()
	}
	return obs
}

func TestMLPParamsRoundTrip(t *testing.T) {
	for _, hidden := range []int{0, 8} {
		t.Run(map[bool]string{true: "linear", false: "hidden"}[hidden == 0], func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			m := NewMLP(5, hidden, 3, rng)

			raw, err := m.Params()
			if err != nil {
				t.Fatalf("Params: %v", err)
			}
			restored, err := MLPFromParams(raw)
			if err != nil {
				t.Fatalf("MLPFromParams: %v", err)
			}
			if restored.InputSize() != 5 {
				t.Fatalf("InputSize = %d, want 5", restored.InputSize())
			}

			obs := randObs(rng, 5)
			a, b := m.Predict(obs), restored.Predict(obs)
			for i := range a {
				if a[i] != b[i] {
					t.Fatalf("prediction %d differs after round trip: %v vs %v", i, a[i], b[i])
				}
			}
		})
	}
}

func TestMLPSetParamsRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"wrong version", `{"version":99,"in":2,"hidden":0,"out":2,"w1":[1,2,3,4],"b1":[0,0]}`},
		{"w1 shape mismatch", `{"version":1,"in":2,"hidden":0,"out":2,"w1":[1,2,3],"b1":[0,0]}`},
		{"hidden shape mismatch", `{"version":1,"in":2,"hidden":3,"out":2,"w1":[1,2,3,4,5,6],"b1":[0,0,0],"w2":[1],"b2":[0,0]}`},
		{"not json", `{{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MLPFromParams(json.RawMessage(tt.raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMLPCloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	m := NewMLP(4, 6, 3, rng)
	c := m.Clone()

	obs := randObs(rng, 4)
	before := c.Predict(obs)

	for i := 0; i < 50; i++ {
		m.Learn(obs, 1, 10, 0.1)
	}

	after := c.Predict(obs)
	for i := range before {
		if before[i] != after[i] {
			t.Fatal("clone predictions changed when the original learned")
		}
	}
}

func TestMLPLinearLearnConverges(t *testing.T) {
	m := NewMLP(4, 0, 3, rand.New(rand.NewSource(21)))
	obs := []float64{1, 0, 0, 0}

	for i := 0; i < 500; i++ {
		m.Learn(obs, 0, 1, 0.05)
	}

	if got := m.Predict(obs)[0]; math.Abs(got-1) > 1e-3 {
		t.Fatalf("prediction = %v after training toward 1", got)
	}
}

func TestMLPHiddenLearnReducesError(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	m := NewMLP(4, 8, 3, rng)
	obs := []float64{0.5, -0.3, 0.8, 0.1}

	first := m.Learn(obs, 2, 1, 0.01)
	var last float64
	for i := 0; i < 200; i++ {
		last = m.Learn(obs, 2, 1, 0.01)
	}

	if last >= first {
		t.Fatalf("squared error did not decrease: first %v, last %v", first, last)
	}
}
