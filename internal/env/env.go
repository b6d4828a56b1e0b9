// Package env implements the market simulator the agent trains against:
// an episodic state machine over historical bars with realistic execution
// frictions and mark-to-market rewards.
package env

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"rl-core/internal/execution"
	"rl-core/internal/market"
)

var (
	// ErrInvalidAction marks an action outside the configured action
	// space. Recoverable: the caller decides to abort or substitute.
	ErrInvalidAction = errors.New("invalid action")
	// ErrEpisodeTerminated marks a Step call on a terminal episode.
	ErrEpisodeTerminated = errors.New("episode already terminated")
	// ErrNotReady marks a Step call before the first Reset.
	ErrNotReady = errors.New("environment not reset")
)

// Action is the discrete action space.
type Action int

const (
	Hold Action = iota
	Buy
	Sell

	// NumActions is the size of the action space.
	NumActions = 3
)

// Valid reports action-space membership.
func (a Action) Valid() bool { return a >= Hold && a <= Sell }

func (a Action) String() string {
	switch a {
	case Hold:
		return "HOLD"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// TerminalCause explains why an episode ended.
type TerminalCause string

const (
	CauseNone      TerminalCause = ""
	CauseMaxSteps  TerminalCause = "MAX_STEPS"
	CauseBankrupt  TerminalCause = "BANKRUPT"
	CauseSeriesEnd TerminalCause = "SERIES_END"
	CauseAborted   TerminalCause = "ABORTED"
)

// Config holds the episode parameters.
type Config struct {
	MaxSteps            int
	InitialCash         float64
	BankruptcyThreshold float64
	OrderSize           float64
	RiskPenalty         float64 // per-step penalty coefficient on exposure
	RandomStart         bool
	Margin              bool // allow negative cash / short positions
}

// StepInfo carries diagnostics alongside the reward.
type StepInfo struct {
	Step      int
	Quote     float64
	ExecPrice float64
	ExecQty   float64
	Cost      float64
	Value     float64
	Cause     TerminalCause
}

// StepResult is the (observation, reward, done, info) tuple.
type StepResult struct {
	Obs    []float64
	Reward float64
	Done   bool
	Info   StepInfo
}

type lifecycle int

const (
	uninitialized lifecycle = iota
	ready
	stepping
	terminal
)

// AccountFeatures is the number of account-state features appended to
// every market window: cash, exposure and unrealized PnL scaled by
// initial cash, plus time remaining.
const AccountFeatures = 4

type Simulator struct {
	provider *market.Provider
	exec     execution.Model
	cfg      Config
	rng      *rand.Rand

	phase     lifecycle
	t         int // index of the bar the agent last observed
	steps     int
	portfolio Portfolio
	lastValue float64
	cause     TerminalCause
}

// New builds a simulator. rng drives random episode starts and must be
// the run-level seeded generator (or a derivative) for reproducibility.
func New(provider *market.Provider, exec execution.Model, cfg Config, rng *rand.Rand) *Simulator {
	return &Simulator{provider: provider, exec: exec, cfg: cfg, rng: rng}
}

// ObservationSize is the constant observation length for this configuration.
func (s *Simulator) ObservationSize() int {
	return s.provider.FeatureSize() + AccountFeatures
}

// Portfolio returns a copy of the current account state.
func (s *Simulator) Portfolio() Portfolio { return s.portfolio }

// Cause reports why the current episode terminated, if it has.
func (s *Simulator) Cause() TerminalCause { return s.cause }

// Steps is the number of steps taken in the current episode.
func (s *Simulator) Steps() int { return s.steps }

// Reset starts a new episode and returns the initial observation.
func (s *Simulator) Reset() ([]float64, error) {
	min := s.provider.MinIndex()
	last := s.provider.Len() - 1
	if last <= min {
		return nil, fmt.Errorf("series too short: %d bars for window %d", s.provider.Len(), s.provider.WindowSize())
	}

	start := min
	if s.cfg.RandomStart {
		// leave room for a full episode when the series allows it
		maxStart := last - s.cfg.MaxSteps
		if maxStart < min {
			maxStart = min
		}
		start = min + s.rng.Intn(maxStart-min+1)
	}

	s.t = start
	s.steps = 0
	s.portfolio = Portfolio{Cash: s.cfg.InitialCash}
	s.lastValue = s.cfg.InitialCash
	s.cause = CauseNone
	s.phase = ready

	return s.observation()
}

// Step applies the action, advances one bar and returns the transition.
// Invalid actions leave the state untouched and surface ErrInvalidAction;
// calls after termination surface ErrEpisodeTerminated.
func (s *Simulator) Step(a Action) (StepResult, error) {
	switch s.phase {
	case uninitialized:
		return StepResult{}, ErrNotReady
	case terminal:
		return StepResult{}, ErrEpisodeTerminated
	}
	if !a.Valid() {
		return StepResult{}, fmt.Errorf("%w: %d", ErrInvalidAction, int(a))
	}

	quote := s.provider.Quote(s.t)
	volume := s.provider.Volume(s.t)

	execPrice, execQty, cost := s.trade(a, quote, volume)

	// advance one bar and mark to its close
	s.t++
	s.steps++
	s.phase = stepping

	mark := s.provider.Quote(s.t)
	value := s.portfolio.Value(mark)

	penalty := 0.0
	if s.cfg.RiskPenalty > 0 {
		penalty = s.cfg.RiskPenalty * abs(s.portfolio.Position*mark) / s.cfg.InitialCash
	}
	reward := value - s.lastValue - penalty
	s.lastValue = value

	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return StepResult{}, fmt.Errorf("non-finite reward at step %d", s.steps)
	}

	done := false
	switch {
	case value <= s.cfg.BankruptcyThreshold:
		done, s.cause = true, CauseBankrupt
	case s.steps >= s.cfg.MaxSteps:
		done, s.cause = true, CauseMaxSteps
	case s.t >= s.provider.Len()-1:
		done, s.cause = true, CauseSeriesEnd
	}
	if done {
		s.phase = terminal
	}

	obs, err := s.observation()
	if err != nil {
		return StepResult{}, err
	}

	return StepResult{
		Obs:    obs,
		Reward: reward,
		Done:   done,
		Info: StepInfo{
			Step:      s.steps,
			Quote:     quote,
			ExecPrice: execPrice,
			ExecQty:   execQty,
			Cost:      cost,
			Value:     value,
			Cause:     s.cause,
		},
	}, nil
}

// Abort marks the current episode terminal without advancing. Used when
// the caller's invalid-action policy is to abandon the episode.
func (s *Simulator) Abort() {
	if s.phase == ready || s.phase == stepping {
		s.phase = terminal
		s.cause = CauseAborted
	}
}

// trade executes the action against the portfolio and returns the fill.
// A sell with nothing to sell (and no margin) degrades to a free hold.
func (s *Simulator) trade(a Action, quote, volume float64) (price, qty, cost float64) {
	switch a {
	case Buy:
		qty = s.cfg.OrderSize
		price, cost = s.exec.Fill(execution.Buy, qty, quote, volume)
		if !s.cfg.Margin {
			if need := qty*price + cost; need > s.portfolio.Cash {
				// scale the order down to what cash covers
				qty = (s.portfolio.Cash - s.exec.FeeFixed) / (price * (1 + s.exec.FeeRate))
				if qty <= 0 {
					return quote, 0, 0
				}
				price, cost = s.exec.Fill(execution.Buy, qty, quote, volume)
				if qty*price+cost > s.portfolio.Cash {
					return quote, 0, 0
				}
			}
		}
		s.portfolio.Cash -= qty*price + cost
		s.portfolio.applyFill(qty, price)

	case Sell:
		qty = s.cfg.OrderSize
		if !s.cfg.Margin && qty > s.portfolio.Position {
			qty = s.portfolio.Position
		}
		if qty <= 0 {
			return quote, 0, 0
		}
		price, cost = s.exec.Fill(execution.Sell, qty, quote, volume)
		s.portfolio.Cash += qty*price - cost
		s.portfolio.applyFill(-qty, price)

	default: // Hold
		return quote, 0, 0
	}
	return price, qty, cost
}

// observation is the market window at t plus scaled account state.
func (s *Simulator) observation() ([]float64, error) {
	win, err := s.provider.Window(s.t)
	if err != nil {
		return nil, err
	}

	mark := s.provider.Quote(s.t)
	remaining := 1 - float64(s.steps)/float64(s.cfg.MaxSteps)

	obs := make([]float64, 0, len(win)+AccountFeatures)
	obs = append(obs, win...)
	obs = append(obs,
		s.portfolio.Cash/s.cfg.InitialCash,
		s.portfolio.Position*mark/s.cfg.InitialCash,
		s.portfolio.UnrealizedPnL(mark)/s.cfg.InitialCash,
		remaining,
	)
	return obs, nil
}
