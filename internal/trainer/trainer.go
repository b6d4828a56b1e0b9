// Package trainer orchestrates training: it drives episodes against the
// simulator, feeds the replay buffer, schedules learning updates and
// target syncs, and persists checkpoints and episode metrics.
package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rl-core/internal/agent"
	"rl-core/internal/env"
	"rl-core/internal/events"
	"rl-core/internal/replay"
	"rl-core/pkg/db"
)

// Policy is what the trainer needs from an agent. Anything exposing
// these four operations can substitute for the default Q-learning agent.
type Policy interface {
	SelectAction(obs []float64, epsilon float64) int
	Update(batch []replay.Transition) (float64, error)
	SyncTarget()
	ExportParams() (json.RawMessage, error)
}

// Environment is the simulator surface the trainer drives.
type Environment interface {
	Reset() ([]float64, error)
	Step(a env.Action) (env.StepResult, error)
	Abort()
}

// Config holds the orchestration knobs.
type Config struct {
	RunID              string
	Seed               int64
	TotalEpisodes      int
	CheckpointInterval int // episodes between checkpoints
	BatchSize          int
	WarmupSteps        int
	TargetSyncInterval int // environment steps between target syncs
	AbortOnInvalid     bool
	ActorCount         int
	Schedule           agent.Schedule
	ConfigJSON         string // effective config snapshot for run/checkpoint rows

	// Resume offsets restored from a checkpoint; zero for fresh runs.
	ResumeEpisode int
	ResumeStep    int64
}

// checkpointVersion tags the persisted bundle layout.
const checkpointVersion = 1

// Trainer ties environment, policy, buffer and persistence together.
type Trainer struct {
	cfg     Config
	envs    []Environment // one per actor; envs[0] drives sequential runs
	policy  Policy
	buffer  *replay.Buffer
	queries *db.Queries
	bus     *events.Bus
	log     zerolog.Logger
	rng     *rand.Rand // learner-side sampling

	step int64 // global environment steps (atomic in parallel mode)
}

// New builds a trainer. envs must hold cfg.ActorCount environments, each
// exclusively owned by one actor. rng is the learner's seeded generator.
func New(cfg Config, envs []Environment, policy Policy, buffer *replay.Buffer,
	queries *db.Queries, bus *events.Bus, log zerolog.Logger, rng *rand.Rand) (*Trainer, error) {
	if cfg.ActorCount < 1 {
		cfg.ActorCount = 1
	}
	if len(envs) != cfg.ActorCount {
		return nil, fmt.Errorf("trainer: %d environments for %d actors", len(envs), cfg.ActorCount)
	}
	return &Trainer{
		cfg:     cfg,
		envs:    envs,
		policy:  policy,
		buffer:  buffer,
		queries: queries,
		bus:     bus,
		log:     log,
		rng:     rng,
		step:    cfg.ResumeStep,
	}, nil
}

// Steps is the global environment step count so far.
func (t *Trainer) Steps() int64 { return t.step }

// episodeStats summarizes one finished (or interrupted) episode.
type episodeStats struct {
	reward     float64
	steps      int
	cause      env.TerminalCause
	finalValue float64
	stopped    bool // interrupted by the stop signal, not terminal
}

// Run trains until TotalEpisodes complete or ctx is cancelled. A clean
// stop finishes the in-progress checkpoint before returning.
func (t *Trainer) Run(ctx context.Context) error {
	if err := t.queries.CreateRun(ctx, db.Run{
		ID:     t.cfg.RunID,
		Seed:   t.cfg.Seed,
		Config: t.cfg.ConfigJSON,
	}); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	var runErr error
	var episodes int
	if t.cfg.ActorCount > 1 {
		episodes, runErr = t.runParallel(ctx)
	} else {
		episodes, runErr = t.runSequential(ctx)
	}

	status := "COMPLETED"
	switch {
	case runErr != nil:
		status = "FAILED"
	case ctx.Err() != nil:
		status = "STOPPED"
	}

	if runErr == nil {
		// final checkpoint on completion or clean stop
		t.checkpoint(ctx, episodes)
	}

	finCtx := context.WithoutCancel(ctx)
	if err := t.queries.FinishRun(finCtx, t.cfg.RunID, status); err != nil {
		t.log.Warn().Err(err).Msg("failed to finalize run row")
	}
	t.bus.Publish(events.EventRunFinished, events.RunFinished{
		RunID:    t.cfg.RunID,
		Status:   status,
		Episodes: episodes,
	})
	return runErr
}

func (t *Trainer) runSequential(ctx context.Context) (int, error) {
	episode := t.cfg.ResumeEpisode
	for episode < t.cfg.TotalEpisodes {
		if ctx.Err() != nil {
			return episode, nil
		}

		var learnErr error
		stats, err := t.runEpisode(ctx, t.envs[0], func(step int64) {
			if learnErr != nil {
				return
			}
			if err := t.learn(); err != nil {
				learnErr = err
				return
			}
			if step%int64(t.cfg.TargetSyncInterval) == 0 {
				t.policy.SyncTarget()
			}
		})
		if err != nil {
			return episode, err
		}
		if learnErr != nil {
			return episode, learnErr
		}
		if stats.stopped {
			return episode, nil
		}

		episode++
		t.recordEpisode(ctx, episode, stats)

		if episode%t.cfg.CheckpointInterval == 0 {
			t.checkpoint(ctx, episode)
		}
	}
	return episode, nil
}

// runEpisode plays one episode on e, pushing every transition and calling
// after with the new global step count. Interruption between steps is
// reported via stats.stopped, never as an error.
func (t *Trainer) runEpisode(ctx context.Context, e Environment, after func(step int64)) (episodeStats, error) {
	var stats episodeStats

	obs, err := e.Reset()
	if err != nil {
		return stats, fmt.Errorf("reset episode: %w", err)
	}

	for {
		if ctx.Err() != nil {
			stats.stopped = true
			return stats, nil
		}

		eps := t.cfg.Schedule.Epsilon(int(t.loadStep()))
		action := t.policy.SelectAction(obs, eps)

		res, err := e.Step(env.Action(action))
		if errors.Is(err, env.ErrInvalidAction) {
			if t.cfg.AbortOnInvalid {
				e.Abort()
				stats.cause = env.CauseAborted
				return stats, nil
			}
			// substitute a no-op and keep the episode alive
			action = int(env.Hold)
			res, err = e.Step(env.Hold)
		}
		if err != nil {
			return stats, fmt.Errorf("environment step: %w", err)
		}

		t.buffer.Push(replay.Transition{
			State:     obs,
			Action:    action,
			Reward:    res.Reward,
			NextState: res.Obs,
			Done:      res.Done,
		})
		step := t.addStep()
		after(step)

		stats.reward += res.Reward
		stats.steps++
		obs = res.Obs

		if res.Done {
			stats.cause = res.Info.Cause
			stats.finalValue = res.Info.Value
			return stats, nil
		}
	}
}

// learn samples a batch and updates the policy once warmup is met.
// An under-filled buffer is skipped, not an error.
func (t *Trainer) learn() error {
	if t.buffer.Len() < t.cfg.WarmupSteps {
		return nil
	}
	batch, err := t.buffer.Sample(t.cfg.BatchSize, t.rng)
	if errors.Is(err, replay.ErrInsufficientSamples) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := t.policy.Update(batch); err != nil {
		return fmt.Errorf("learning update: %w", err)
	}
	return nil
}

// recordEpisode persists the summary and notifies observers.
func (t *Trainer) recordEpisode(ctx context.Context, episode int, stats episodeStats) {
	eps := t.cfg.Schedule.Epsilon(int(t.loadStep()))
	rec := db.Episode{
		RunID:         t.cfg.RunID,
		Episode:       episode,
		Reward:        stats.reward,
		Steps:         stats.steps,
		TerminalCause: string(stats.cause),
		Epsilon:       eps,
		FinalValue:    stats.finalValue,
	}
	if err := t.queries.InsertEpisode(context.WithoutCancel(ctx), rec); err != nil {
		t.log.Warn().Err(err).Int("episode", episode).Msg("failed to record episode")
	}
	t.bus.Publish(events.EventEpisodeDone, events.EpisodeDone{
		Episode:    episode,
		Reward:     stats.reward,
		Steps:      stats.steps,
		Cause:      string(stats.cause),
		Epsilon:    eps,
		FinalValue: stats.finalValue,
	})
}

// checkpoint persists the estimator parameters plus training counters.
// Failures are retried once, then logged; training never aborts on a
// checkpoint error.
func (t *Trainer) checkpoint(ctx context.Context, episode int) {
	params, err := t.policy.ExportParams()
	if err != nil {
		t.log.Warn().Err(err).Msg("failed to export estimator params")
		return
	}

	cp := db.Checkpoint{
		ID:      uuid.NewString(),
		RunID:   t.cfg.RunID,
		Version: checkpointVersion,
		Step:    int(t.loadStep()),
		Episode: episode,
		Epsilon: t.cfg.Schedule.Epsilon(int(t.loadStep())),
		Params:  string(params),
		Config:  t.cfg.ConfigJSON,
	}

	// detach from cancellation so an in-progress write always completes
	saveCtx := context.WithoutCancel(ctx)
	err = t.queries.SaveCheckpoint(saveCtx, cp)
	if err != nil {
		err = t.queries.SaveCheckpoint(saveCtx, cp)
	}
	if err != nil {
		t.log.Warn().Err(err).Int("episode", episode).Msg("checkpoint write failed twice, continuing without it")
		return
	}

	t.bus.Publish(events.EventCheckpointSaved, events.CheckpointSaved{
		CheckpointID: cp.ID,
		Step:         cp.Step,
		Episode:      episode,
	})
}
