package db

import "time"

// Run is one training run.
type Run struct {
	ID         string
	Seed       int64
	Config     string // JSON snapshot of the effective configuration
	Status     string // RUNNING, COMPLETED, FAILED, STOPPED
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Episode is the per-episode summary kept after episode state is discarded.
type Episode struct {
	RunID         string
	Episode       int
	Reward        float64
	Steps         int
	TerminalCause string
	Epsilon       float64
	FinalValue    float64
	CreatedAt     time.Time
}

// Checkpoint is a versioned bundle of estimator parameters plus the
// training counters needed to resume.
type Checkpoint struct {
	ID        string
	RunID     string
	Version   int
	Step      int
	Episode   int
	Epsilon   float64
	Params    string // JSON estimator parameters
	Config    string // JSON config snapshot
	CreatedAt time.Time
}

// Backtest is an evaluation report for a checkpointed policy.
type Backtest struct {
	ID           string
	CheckpointID string
	TotalReward  float64
	Steps        int
	Trades       int
	WinRate      float64
	MaxDrawdown  float64
	SharpeRatio  float64
	FinalValue   float64
	CreatedAt    time.Time
}

// BacktestTrade is a single fill recorded during a backtest.
type BacktestTrade struct {
	ID         string
	BacktestID string
	Step       int
	Side       string
	Qty        float64
	Price      float64
	Cost       float64
	PnL        float64
}
