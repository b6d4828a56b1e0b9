package execution

import (
	"math"
	"testing"
)

func TestFillFeesMatchHandComputation(t *testing.T) {
	// Buying 1 unit at quote 100 with fixed fee 1 and rate 0.1% costs 1.10.
	m := Model{FeeFixed: 1, FeeRate: 0.001, SlippageCoeff: 0}

	price, cost := m.Fill(Buy, 1, 100, 1e6)
	if price != 100 {
		t.Fatalf("price = %v, want 100", price)
	}
	if math.Abs(cost-1.10) > 1e-12 {
		t.Fatalf("cost = %v, want 1.10", cost)
	}
}

func TestFillDegenerateInputs(t *testing.T) {
	m := Model{FeeFixed: 1, FeeRate: 0.01, SlippageCoeff: 0.5}

	tests := []struct {
		name        string
		qty, volume float64
	}{
		{"zero qty", 0, 1000},
		{"zero volume", 5, 0},
		{"both zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, cost := m.Fill(Buy, tt.qty, 100, tt.volume)
			if price != 100 || cost != 0 {
				t.Fatalf("got (%v, %v), want (100, 0)", price, cost)
			}
		})
	}
}

func TestFillSlippageAdverseAndConvex(t *testing.T) {
	m := Model{SlippageCoeff: 0.5}
	quote, volume := 100.0, 100.0

	buySmall, _ := m.Fill(Buy, 10, quote, volume)
	buyLarge, _ := m.Fill(Buy, 20, quote, volume)
	sellSmall, _ := m.Fill(Sell, 10, quote, volume)

	// 0.5 * (10/100)^2 = 0.005 -> 100.5; 0.5 * (20/100)^2 = 0.02 -> 102
	if math.Abs(buySmall-100.5) > 1e-12 {
		t.Fatalf("buy small = %v, want 100.5", buySmall)
	}
	if math.Abs(buyLarge-102) > 1e-12 {
		t.Fatalf("buy large = %v, want 102", buyLarge)
	}
	if math.Abs(sellSmall-99.5) > 1e-12 {
		t.Fatalf("sell small = %v, want 99.5", sellSmall)
	}

	// adverse in both directions, monotone in size
	if buySmall <= quote || sellSmall >= quote {
		t.Fatal("slippage must be adverse to the trader")
	}
	if buyLarge-quote <= buySmall-quote {
		t.Fatal("impact must grow with order size")
	}

	// convexity: doubling size more than doubles the impact
	if (buyLarge - quote) <= 2*(buySmall-quote) {
		t.Fatal("impact must be convex in order size")
	}
}
