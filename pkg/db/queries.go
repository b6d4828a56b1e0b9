package db

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

// Queries bundles the typed statements used by the trainer and backtester.
type Queries struct {
	db *sql.DB
}

// CreateRun inserts a new training run in RUNNING state.
func (q *Queries) CreateRun(ctx context.Context, r Run) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO runs (id, seed, config, status) VALUES (?, ?, ?, 'RUNNING')`,
		r.ID, r.Seed, r.Config)
	return err
}

// FinishRun marks a run terminal with the given status.
func (q *Queries) FinishRun(ctx context.Context, runID, status string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, runID)
	return err
}

// GetRun fetches a run by ID.
func (q *Queries) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	var finished sql.NullTime
	err := q.db.QueryRowContext(ctx,
		`SELECT id, seed, config, status, started_at, finished_at FROM runs WHERE id = ?`,
		runID).Scan(&r.ID, &r.Seed, &r.Config, &r.Status, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

// InsertEpisode records a finished episode summary.
func (q *Queries) InsertEpisode(ctx context.Context, e Episode) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO episodes (run_id, episode, reward, steps, terminal_cause, epsilon, final_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Episode, e.Reward, e.Steps, e.TerminalCause, e.Epsilon, e.FinalValue)
	return err
}

// ListEpisodes returns episode summaries for a run in episode order.
func (q *Queries) ListEpisodes(ctx context.Context, runID string) ([]Episode, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT run_id, episode, reward, steps, terminal_cause, epsilon, final_value, created_at
		 FROM episodes WHERE run_id = ? ORDER BY episode`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.RunID, &e.Episode, &e.Reward, &e.Steps,
			&e.TerminalCause, &e.Epsilon, &e.FinalValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveCheckpoint persists a checkpoint bundle.
func (q *Queries) SaveCheckpoint(ctx context.Context, c Checkpoint) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, run_id, version, step, episode, epsilon, params, config)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.RunID, c.Version, c.Step, c.Episode, c.Epsilon, c.Params, c.Config)
	return err
}

// GetCheckpoint fetches a checkpoint by ID.
func (q *Queries) GetCheckpoint(ctx context.Context, id string) (Checkpoint, error) {
	return q.scanCheckpoint(q.db.QueryRowContext(ctx,
		`SELECT id, run_id, version, step, episode, epsilon, params, config, created_at
		 FROM checkpoints WHERE id = ?`, id))
}

// LatestCheckpoint fetches the highest-step checkpoint. With runID empty
// it searches across all runs.
func (q *Queries) LatestCheckpoint(ctx context.Context, runID string) (Checkpoint, error) {
	query := `SELECT id, run_id, version, step, episode, epsilon, params, config, created_at
		 FROM checkpoints`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY step DESC, created_at DESC LIMIT 1`
	return q.scanCheckpoint(q.db.QueryRowContext(ctx, query, args...))
}

func (q *Queries) scanCheckpoint(row *sql.Row) (Checkpoint, error) {
	var c Checkpoint
	err := row.Scan(&c.ID, &c.RunID, &c.Version, &c.Step, &c.Episode,
		&c.Epsilon, &c.Params, &c.Config, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, err
	}
	return c, nil
}

// SaveBacktest persists an evaluation report and its trades atomically.
func (q *Queries) SaveBacktest(ctx context.Context, b Backtest, trades []BacktestTrade) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO backtests (id, checkpoint_id, total_reward, steps, trades, win_rate, max_drawdown, sharpe_ratio, final_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CheckpointID, b.TotalReward, b.Steps, b.Trades,
		b.WinRate, b.MaxDrawdown, b.SharpeRatio, b.FinalValue); err != nil {
		return err
	}
	for _, t := range trades {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backtest_trades (id, backtest_id, step, side, qty, price, cost, pnl)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.BacktestID, t.Step, t.Side, t.Qty, t.Price, t.Cost, t.PnL); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetBacktest fetches an evaluation report by ID.
func (q *Queries) GetBacktest(ctx context.Context, id string) (Backtest, error) {
	var b Backtest
	err := q.db.QueryRowContext(ctx,
		`SELECT id, checkpoint_id, total_reward, steps, trades, win_rate, max_drawdown, sharpe_ratio, final_value, created_at
		 FROM backtests WHERE id = ?`, id).
		Scan(&b.ID, &b.CheckpointID, &b.TotalReward, &b.Steps, &b.Trades,
			&b.WinRate, &b.MaxDrawdown, &b.SharpeRatio, &b.FinalValue, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Backtest{}, ErrNotFound
	}
	if err != nil {
		return Backtest{}, err
	}
	return b, nil
}
