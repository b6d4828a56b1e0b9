// Package backtest replays a trained policy, exploration disabled, over a
// held-out data segment and reports reward and trade statistics.
package backtest

import (
	"fmt"
	"math"

	"rl-core/internal/env"
)

// Policy is the exploitation-only surface a backtest needs.
type Policy interface {
	Greedy(obs []float64) int
}

// Trade is one executed fill observed during the replay.
type Trade struct {
	Step  int
	Side  string
	Qty   float64
	Price float64
	Cost  float64
	PnL   float64 // realized PnL for sells, 0 for buys
}

// Result aggregates the evaluation.
type Result struct {
	TotalReward float64
	Steps       int
	Trades      []Trade
	WinRate     float64 // winning sells / total sells
	MaxDrawdown float64 // fraction of peak equity given back
	SharpeRatio float64 // per-step mean/stddev of rewards, annualized-free
	FinalValue  float64
	Cause       env.TerminalCause
}

// Run plays a single greedy episode on sim. The simulator should be
// configured with a sequential start over the held-out segment.
func Run(sim *env.Simulator, policy Policy) (Result, error) {
	var res Result

	obs, err := sim.Reset()
	if err != nil {
		return res, fmt.Errorf("reset backtest: %w", err)
	}

	var rewards []float64
	peak := 0.0
	entry := 0.0
	wins, sells := 0, 0

	for {
		action := policy.Greedy(obs)

		step, err := sim.Step(env.Action(action))
		if err != nil {
			return res, fmt.Errorf("backtest step: %w", err)
		}

		res.TotalReward += step.Reward
		res.Steps++
		rewards = append(rewards, step.Reward)

		if step.Info.ExecQty > 0 {
			t := Trade{
				Step:  step.Info.Step,
				Qty:   step.Info.ExecQty,
				Price: step.Info.ExecPrice,
				Cost:  step.Info.Cost,
			}
			switch env.Action(action) {
			case env.Buy:
				t.Side = "BUY"
				entry = sim.Portfolio().EntryPrice
			case env.Sell:
				t.Side = "SELL"
				t.PnL = (t.Price-entry)*t.Qty - t.Cost
				sells++
				if t.PnL > 0 {
					wins++
				}
			}
			res.Trades = append(res.Trades, t)
		}

		if step.Info.Value > peak {
			peak = step.Info.Value
		}
		if peak > 0 {
			dd := (peak - step.Info.Value) / peak
			if dd > res.MaxDrawdown {
				res.MaxDrawdown = dd
			}
		}

		obs = step.Obs
		if step.Done {
			res.FinalValue = step.Info.Value
			res.Cause = step.Info.Cause
			break
		}
	}

	if sells > 0 {
		res.WinRate = float64(wins) / float64(sells)
	}
	res.SharpeRatio = sharpe(rewards)

	return res, nil
}

// sharpe is the per-step mean reward over its standard deviation. Zero
// when variance vanishes.
func sharpe(rewards []float64) float64 {
	if len(rewards) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rewards {
		mean += r
	}
	mean /= float64(len(rewards))

	variance := 0.0
	for _, r := range rewards {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rewards) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}
