// Package market turns the validated bar series into fixed-size
// observation vectors for the simulator.
package market

import (
	"errors"
	"math"

	"rl-core/internal/data"
	"rl-core/internal/indicators"
)

// ErrInsufficientHistory is returned when a window is requested before
// enough trailing bars exist. Callers are expected to never do this.
var ErrInsufficientHistory = errors.New("insufficient history for observation window")

const (
	featuresPerBar = 3 // log return, bar range, relative volume
	tailFeatures   = 2 // close/SMA ratio, RSI
	rsiPeriod      = 14
)

// Provider builds observation windows over an immutable bar slice.
// It owns no mutable state: Window(t) is a pure function of (bars, t, size).
type Provider struct {
	bars []data.Bar
	size int // trailing bars per window (K)
}

// NewProvider wraps bars with a window size of K bars.
func NewProvider(bars []data.Bar, size int) *Provider {
	return &Provider{bars: bars, size: size}
}

// Len is the number of bars available.
func (p *Provider) Len() int { return len(p.bars) }

// WindowSize is K.
func (p *Provider) WindowSize() int { return p.size }

// FeatureSize is the constant length of the vectors Window returns.
func (p *Provider) FeatureSize() int { return p.size*featuresPerBar + tailFeatures }

// MinIndex is the smallest t for which Window(t) succeeds.
func (p *Provider) MinIndex() int { return p.size }

// Quote is the close price of bar t, used as the step quote.
func (p *Provider) Quote(t int) float64 { return p.bars[t].Close }

// Volume is the traded volume of bar t.
func (p *Provider) Volume(t int) float64 { return p.bars[t].Volume }

// Window returns the market feature vector for the K bars ending at t.
// Per bar: log return vs previous close, (high-low)/close range, volume
// relative to the window mean. Tail: close/SMA(K)-1 and RSI/100 over the
// window closes.
func (p *Provider) Window(t int) ([]float64, error) {
	if t < p.size {
		return nil, ErrInsufficientHistory
	}
	if t >= len(p.bars) {
		return nil, ErrInsufficientHistory
	}

	start := t - p.size + 1

	meanVol := 0.0
	for i := start; i <= t; i++ {
		meanVol += p.bars[i].Volume
	}
	meanVol /= float64(p.size)

	out := make([]float64, 0, p.FeatureSize())
	closes := make([]float64, 0, p.size)
	for i := start; i <= t; i++ {
		b := p.bars[i]
		prev := p.bars[i-1].Close

		out = append(out, math.Log(b.Close/prev))
		out = append(out, (b.High-b.Low)/b.Close)
		if meanVol > 0 {
			out = append(out, b.Volume/meanVol)
		} else {
			out = append(out, 0)
		}
		closes = append(closes, b.Close)
	}

	sma := indicators.SMA(closes, p.size)
	if sma > 0 {
		out = append(out, p.bars[t].Close/sma-1)
	} else {
		out = append(out, 0)
	}
	period := rsiPeriod
	if period > p.size-1 {
		period = p.size - 1
	}
	out = append(out, indicators.RSI(closes, period)/100)

	return out, nil
}
