package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rl-core/internal/agent"
	"rl-core/internal/backtest"
	"rl-core/internal/data"
	"rl-core/internal/env"
	"rl-core/internal/events"
	"rl-core/internal/execution"
	"rl-core/internal/market"
	"rl-core/internal/replay"
	"rl-core/internal/trainer"
	"rl-core/pkg/config"
	"rl-core/pkg/db"
	"rl-core/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(os.Args[2:])
	case "backtest":
		err = runBacktest(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  rl-core train    -data bars.csv [-config config.yaml] [-resume latest|<checkpoint-id>]
  rl-core backtest -data bars.csv [-config config.yaml] [-checkpoint latest|<checkpoint-id>]`)
}

// setup loads config + logger + database, shared by both subcommands.
func setup(configPath, dataPath string) (*config.Config, zerolog.Logger, *db.Database, []data.Bar, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, nil, err
	}
	if dataPath != "" {
		cfg.Data.Path = dataPath
	}
	if cfg.Data.Path == "" {
		return nil, zerolog.Logger{}, nil, nil, errors.New("no data path: pass -data or set data.path")
	}

	log, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, zerolog.Logger{}, nil, nil, err
	}

	bars, err := data.LoadCSV(cfg.Data.Path)
	if err != nil {
		return nil, zerolog.Logger{}, nil, nil, err
	}

	database, err := db.New(cfg.DB.Path)
	if err != nil {
		return nil, zerolog.Logger{}, nil, nil, err
	}
	if err := db.ApplyMigrations(database); err != nil {
		database.Close()
		return nil, zerolog.Logger{}, nil, nil, err
	}

	return cfg, log, database, bars, nil
}

func envConfig(cfg *config.Config, sequential bool) env.Config {
	c := env.Config{
		MaxSteps:            cfg.Env.EpisodeMaxSteps,
		InitialCash:         cfg.Env.InitialCash,
		BankruptcyThreshold: cfg.Env.BankruptcyThreshold,
		OrderSize:           cfg.Env.OrderSize,
		RiskPenalty:         cfg.Env.RiskPenalty,
		RandomStart:         cfg.Env.RandomStart,
		Margin:              cfg.Env.Margin,
	}
	if sequential {
		c.RandomStart = false
	}
	return c
}

func execModel(cfg *config.Config) execution.Model {
	return execution.Model{
		FeeFixed:      cfg.Execution.FeeFixed,
		FeeRate:       cfg.Execution.FeeRate,
		SlippageCoeff: cfg.Execution.SlippageCoeff,
	}
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config path")
	dataPath := fs.String("data", "", "bar series CSV path")
	resume := fs.String("resume", "", "checkpoint to resume from: 'latest' or an ID")
	fs.Parse(args)

	cfg, log, database, bars, err := setup(*configPath, *dataPath)
	if err != nil {
		return err
	}
	defer database.Close()
	q := database.Queries()

	trainBars, _ := data.Split(bars, cfg.Data.HoldoutFraction)
	provider := market.NewProvider(trainBars, cfg.Env.WindowSize)

	rng := rand.New(rand.NewSource(cfg.Run.Seed))

	envs := make([]trainer.Environment, cfg.Run.ActorCount)
	for i := range envs {
		actorRNG := rand.New(rand.NewSource(cfg.Run.Seed + int64(i) + 1))
		envs[i] = env.New(provider, execModel(cfg), envConfig(cfg, false), actorRNG)
	}

	obsSize := provider.FeatureSize() + env.AccountFeatures
	est := agent.NewMLP(obsSize, cfg.Agent.HiddenSize, env.NumActions, rng)
	ag := agent.New(est, env.NumActions, cfg.Agent.DiscountFactor, cfg.Agent.LearningRate, rng)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := trainer.Config{
		RunID:              uuid.NewString(),
		Seed:               cfg.Run.Seed,
		TotalEpisodes:      cfg.Run.TotalEpisodes,
		CheckpointInterval: cfg.Run.CheckpointInterval,
		BatchSize:          cfg.Replay.BatchSize,
		WarmupSteps:        cfg.Replay.WarmupSteps,
		TargetSyncInterval: cfg.Agent.TargetSyncInterval,
		AbortOnInvalid:     cfg.Env.AbortOnInvalid,
		ActorCount:         cfg.Run.ActorCount,
		Schedule: agent.Schedule{
			Max:   cfg.Agent.ExplorationMax,
			Min:   cfg.Agent.ExplorationMin,
			Decay: cfg.Agent.ExplorationDecay,
		},
	}

	if *resume != "" {
		cp, err := loadCheckpoint(ctx, q, *resume)
		if err != nil {
			return err
		}
		if err := ag.RestoreParams(json.RawMessage(cp.Params)); err != nil {
			return fmt.Errorf("restore checkpoint %s: %w", cp.ID, err)
		}
		tcfg.ResumeEpisode = cp.Episode
		tcfg.ResumeStep = int64(cp.Step)
		log.Info().Str("checkpoint", cp.ID).Int("episode", cp.Episode).Int("step", cp.Step).
			Msg("resuming from checkpoint")
	}

	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("snapshot config: %w", err)
	}
	tcfg.ConfigJSON = string(snapshot)

	bus := events.NewBus()
	go watchProgress(bus, log)

	buffer := replay.New(cfg.Replay.Capacity)
	tr, err := trainer.New(tcfg, envs, ag, buffer, q, bus, log, rng)
	if err != nil {
		return err
	}

	log.Info().Str("run", tcfg.RunID).Int("episodes", cfg.Run.TotalEpisodes).
		Int("bars", len(trainBars)).Int("obs_size", obsSize).
		Int("actors", cfg.Run.ActorCount).Msg("training started")

	if err := tr.Run(ctx); err != nil {
		return err
	}
	log.Info().Str("run", tcfg.RunID).Int64("steps", tr.Steps()).Msg("training finished")
	return nil
}

// watchProgress logs trainer events; it runs until the process exits.
func watchProgress(bus *events.Bus, log zerolog.Logger) {
	episodes, _ := bus.Subscribe(events.EventEpisodeDone, 64)
	checkpoints, _ := bus.Subscribe(events.EventCheckpointSaved, 8)
	for {
		select {
		case p := <-episodes:
			e, ok := p.(events.EpisodeDone)
			if !ok {
				continue
			}
			log.Info().Int("episode", e.Episode).Float64("reward", e.Reward).
				Int("steps", e.Steps).Str("cause", e.Cause).
				Float64("epsilon", e.Epsilon).Float64("value", e.FinalValue).
				Msg("episode done")
		case p := <-checkpoints:
			c, ok := p.(events.CheckpointSaved)
			if !ok {
				continue
			}
			log.Info().Str("checkpoint", c.CheckpointID).Int("step", c.Step).
				Int("episode", c.Episode).Msg("checkpoint saved")
		}
	}
}

func runBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config path")
	dataPath := fs.String("data", "", "bar series CSV path")
	checkpoint := fs.String("checkpoint", "latest", "checkpoint to evaluate: 'latest' or an ID")
	fs.Parse(args)

	cfg, log, database, bars, err := setup(*configPath, *dataPath)
	if err != nil {
		return err
	}
	defer database.Close()
	q := database.Queries()

	_, testBars := data.Split(bars, cfg.Data.HoldoutFraction)
	if len(testBars) <= cfg.Env.WindowSize+1 {
		return fmt.Errorf("held-out segment too short: %d bars for window %d", len(testBars), cfg.Env.WindowSize)
	}

	ctx := context.Background()
	cp, err := loadCheckpoint(ctx, q, *checkpoint)
	if err != nil {
		return err
	}

	est, err := agent.MLPFromParams(json.RawMessage(cp.Params))
	if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", cp.ID, err)
	}

	provider := market.NewProvider(testBars, cfg.Env.WindowSize)
	obsSize := provider.FeatureSize() + env.AccountFeatures
	if est.InputSize() != obsSize {
		return fmt.Errorf("checkpoint expects %d observation features, data yields %d", est.InputSize(), obsSize)
	}

	rng := rand.New(rand.NewSource(cfg.Run.Seed))
	ag := agent.New(est, env.NumActions, cfg.Agent.DiscountFactor, cfg.Agent.LearningRate, rng)

	ecfg := envConfig(cfg, true)
	ecfg.MaxSteps = len(testBars) // run the whole held-out tail
	sim := env.New(provider, execModel(cfg), ecfg, rng)

	res, err := backtest.Run(sim, ag)
	if err != nil {
		return err
	}

	report := db.Backtest{
		ID:           uuid.NewString(),
		CheckpointID: cp.ID,
		TotalReward:  res.TotalReward,
		Steps:        res.Steps,
		Trades:       len(res.Trades),
		WinRate:      res.WinRate,
		MaxDrawdown:  res.MaxDrawdown,
		SharpeRatio:  res.SharpeRatio,
		FinalValue:   res.FinalValue,
	}
	trades := make([]db.BacktestTrade, 0, len(res.Trades))
	for _, t := range res.Trades {
		trades = append(trades, db.BacktestTrade{
			ID:         uuid.NewString(),
			BacktestID: report.ID,
			Step:       t.Step,
			Side:       t.Side,
			Qty:        t.Qty,
			Price:      t.Price,
			Cost:       t.Cost,
			PnL:        t.PnL,
		})
	}
	if err := q.SaveBacktest(ctx, report, trades); err != nil {
		return fmt.Errorf("save backtest report: %w", err)
	}

	log.Info().Str("backtest", report.ID).Str("checkpoint", cp.ID).
		Float64("total_reward", res.TotalReward).Int("steps", res.Steps).
		Int("trades", len(res.Trades)).Float64("win_rate", res.WinRate).
		Float64("max_drawdown", res.MaxDrawdown).Float64("sharpe", res.SharpeRatio).
		Float64("final_value", res.FinalValue).Str("cause", string(res.Cause)).
		Msg("backtest complete")
	return nil
}

func loadCheckpoint(ctx context.Context, q *db.Queries, ref string) (db.Checkpoint, error) {
	if ref == "latest" {
		cp, err := q.LatestCheckpoint(ctx, "")
		if errors.Is(err, db.ErrNotFound) {
			return db.Checkpoint{}, errors.New("no checkpoints found; train first")
		}
		return cp, err
	}
	cp, err := q.GetCheckpoint(ctx, ref)
	if errors.Is(err, db.ErrNotFound) {
		return db.Checkpoint{}, fmt.Errorf("checkpoint %q not found", ref)
	}
	return cp, err
}
