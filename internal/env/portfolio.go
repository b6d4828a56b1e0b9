package env

// Portfolio is the mutable per-episode account state. It is owned by
// exactly one Simulator instance and rebuilt on every Reset.
type Portfolio struct {
	Cash       float64
	Position   float64 // signed quantity; negative only when margin is enabled
	EntryPrice float64 // volume-weighted entry of the open position
}

// Value marks the portfolio to market at the given price.
func (p Portfolio) Value(price float64) float64 {
	return p.Cash + p.Position*price
}

// UnrealizedPnL at the given price; zero when flat.
func (p Portfolio) UnrealizedPnL(price float64) float64 {
	if p.Position == 0 {
		return 0
	}
	return p.Position * (price - p.EntryPrice)
}

// applyFill adjusts position and entry price for a signed fill quantity
// (positive buys, negative sells) at the executed price. Cash movement is
// the caller's responsibility.
func (p *Portfolio) applyFill(signedQty, price float64) {
	if signedQty == 0 {
		return
	}
	newPos := p.Position + signedQty

	switch {
	case p.Position == 0 || sameSign(p.Position, signedQty):
		// opening or adding: volume-weighted entry
		total := abs(p.Position)*p.EntryPrice + abs(signedQty)*price
		p.EntryPrice = total / abs(newPos)
	case newPos == 0:
		p.EntryPrice = 0
	case !sameSign(p.Position, newPos):
		// crossed through flat; residual opens at the fill price
		p.EntryPrice = price
	}
	// reducing without crossing keeps the entry price

	p.Position = newPos
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
