package agent

import "math"

// Schedule decays exploration geometrically from Max toward the Min
// floor as total environment steps accumulate. Pure function of the step
// count, so resumed runs land on the same epsilon.
type Schedule struct {
	Max   float64
	Min   float64
	Decay float64 // per-step multiplier in (0, 1]
}

// Epsilon for the given global step count. Monotonically non-increasing
// and never below Min.
func (s Schedule) Epsilon(step int) float64 {
	eps := s.Max * math.Pow(s.Decay, float64(step))
	if eps < s.Min {
		return s.Min
	}
	return eps
}
