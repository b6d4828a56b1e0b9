package db

import (
	"context"
	"errors"
	"testing"
)

func testQueries(t *testing.T) *Queries {
	t.Helper()
	d, err := New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d.Queries()
}

func TestRunLifecycle(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	if err := q.CreateRun(ctx, Run{ID: "run-1", Seed: 42, Config: `{"a":1}`}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	r, err := q.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != "RUNNING" || r.Seed != 42 || r.FinishedAt != nil {
		t.Fatalf("fresh run = %+v", r)
	}

	if err := q.FinishRun(ctx, "run-1", "COMPLETED"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, err = q.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != "COMPLETED" || r.FinishedAt == nil {
		t.Fatalf("finished run = %+v", r)
	}

	if _, err := q.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEpisodes(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	if err := q.CreateRun(ctx, Run{ID: "run-1", Seed: 1, Config: "{}"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for i := 1; i <= 3; i++ {
		e := Episode{
			RunID:         "run-1",
			Episode:       i,
			Reward:        float64(i) * 1.5,
			Steps:         i * 10,
			TerminalCause: "MAX_STEPS",
			Epsilon:       0.5,
			FinalValue:    1000,
		}
		if err := q.InsertEpisode(ctx, e); err != nil {
			t.Fatalf("InsertEpisode %d: %v", i, err)
		}
	}

	got, err := q.ListEpisodes(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d episodes, want 3", len(got))
	}
	for i, e := range got {
		if e.Episode != i+1 {
			t.Fatalf("episodes out of order: %+v", got)
		}
	}
	if got[1].Reward != 3.0 || got[1].TerminalCause != "MAX_STEPS" {
		t.Fatalf("episode 2 = %+v", got[1])
	}

	// duplicate (run, episode) must violate the primary key
	if err := q.InsertEpisode(ctx, Episode{RunID: "run-1", Episode: 1, TerminalCause: "x"}); err == nil {
		t.Fatal("duplicate episode row accepted")
	}
}

func TestCheckpoints(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	save := func(id, runID string, step int) {
		t.Helper()
		err := q.SaveCheckpoint(ctx, Checkpoint{
			ID: id, RunID: runID, Version: 1, Step: step, Episode: step / 10,
			Epsilon: 0.3, Params: `{"w":[1,2]}`, Config: "{}",
		})
		if err != nil {
			t.Fatalf("SaveCheckpoint %s: %v", id, err)
		}
	}
	save("cp-1", "run-a", 100)
	save("cp-2", "run-a", 200)
	save("cp-3", "run-b", 150)

	cp, err := q.GetCheckpoint(ctx, "cp-1")
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp.Step != 100 || cp.Params != `{"w":[1,2]}` {
		t.Fatalf("checkpoint = %+v", cp)
	}

	latest, err := q.LatestCheckpoint(ctx, "run-a")
	if err != nil {
		t.Fatalf("LatestCheckpoint(run-a): %v", err)
	}
	if latest.ID != "cp-2" {
		t.Fatalf("latest for run-a = %s, want cp-2", latest.ID)
	}

	latest, err = q.LatestCheckpoint(ctx, "")
	if err != nil {
		t.Fatalf("LatestCheckpoint(all): %v", err)
	}
	if latest.ID != "cp-2" {
		t.Fatalf("latest overall = %s, want cp-2", latest.ID)
	}

	if _, err := q.GetCheckpoint(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := q.LatestCheckpoint(ctx, "run-z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty run, got %v", err)
	}
}

func TestBacktestRoundTrip(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	b := Backtest{
		ID: "bt-1", CheckpointID: "cp-1",
		TotalReward: 12.5, Steps: 40, Trades: 2,
		WinRate: 1, MaxDrawdown: 0.05, SharpeRatio: 0.8, FinalValue: 1012.5,
	}
	trades := []BacktestTrade{
		{ID: "t-1", BacktestID: "bt-1", Step: 3, Side: "BUY", Qty: 1, Price: 100, Cost: 0.1},
		{ID: "t-2", BacktestID: "bt-1", Step: 9, Side: "SELL", Qty: 1, Price: 112, Cost: 0.1, PnL: 11.8},
	}
	if err := q.SaveBacktest(ctx, b, trades); err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}

	got, err := q.GetBacktest(ctx, "bt-1")
	if err != nil {
		t.Fatalf("GetBacktest: %v", err)
	}
	if got.TotalReward != 12.5 || got.Trades != 2 || got.WinRate != 1 {
		t.Fatalf("backtest = %+v", got)
	}

	if _, err := q.GetBacktest(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveBacktestIsAtomic(t *testing.T) {
	q := testQueries(t)
	ctx := context.Background()

	b := Backtest{ID: "bt-1", CheckpointID: "cp-1"}
	// duplicate trade IDs make the second insert fail mid-transaction
	trades := []BacktestTrade{
		{ID: "t-1", BacktestID: "bt-1", Side: "BUY"},
		{ID: "t-1", BacktestID: "bt-1", Side: "SELL"},
	}
	if err := q.SaveBacktest(ctx, b, trades); err == nil {
		t.Fatal("expected constraint violation")
	}

	if _, err := q.GetBacktest(ctx, "bt-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("report row leaked from a rolled-back transaction: %v", err)
	}
}
