// Package execution prices simulated fills: transaction costs plus an
// adverse market-impact slippage term.
package execution

// Side of a simulated fill.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "UNKNOWN"
}

// Model computes executed prices and costs. It is a pure function of its
// inputs; the zero value trades friction-free.
type Model struct {
	FeeFixed      float64 // flat fee per executed order
	FeeRate       float64 // proportional fee on notional
	SlippageCoeff float64 // impact coefficient, tunable per market
}

// Fill returns the executed price and total transaction cost for an order
// of qty at the quoted price, given the bar's traded volume.
//
// Slippage is quadratic in order size relative to bar volume
// (coeff * (qty/volume)^2): convex, zero at zero size, and always adverse
// to the trader. Degenerate inputs (zero qty or volume) fill at the quote
// with zero cost.
func (m Model) Fill(side Side, qty, quote, volume float64) (price, cost float64) {
	if qty <= 0 || volume <= 0 {
		return quote, 0
	}

	ratio := qty / volume
	slip := m.SlippageCoeff * ratio * ratio
	switch side {
	case Buy:
		price = quote * (1 + slip)
	case Sell:
		price = quote * (1 - slip)
	default:
		price = quote
	}

	cost = m.FeeFixed + m.FeeRate*qty*price
	return price, cost
}
