package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Run.TotalEpisodes != 200 {
		t.Fatalf("total_episodes default = %d", c.Run.TotalEpisodes)
	}
	if c.Env.WindowSize != 32 || c.Env.InitialCash != 10000 {
		t.Fatalf("env defaults = %+v", c.Env)
	}
	if c.Agent.DiscountFactor != 0.99 || c.Agent.TargetSyncInterval != 500 {
		t.Fatalf("agent defaults = %+v", c.Agent)
	}
	if !c.Env.RandomStart {
		t.Fatal("random_start must default to true")
	}
	if c.Log.Level != "info" {
		t.Fatalf("log level default = %q", c.Log.Level)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
run:
  total_episodes: 13
env:
  window_size: 8
  random_start: false
agent:
  discount_factor: 0.9
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Run.TotalEpisodes != 13 || c.Env.WindowSize != 8 || c.Agent.DiscountFactor != 0.9 {
		t.Fatalf("overrides not applied: %+v", c)
	}
	// explicit false must survive the defaults pass
	if c.Env.RandomStart {
		t.Fatal("random_start: false was overwritten by its default")
	}
	// untouched fields keep defaults
	if c.Replay.Capacity != 10000 {
		t.Fatalf("replay capacity = %d", c.Replay.Capacity)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RLT_TOTAL_EPISODES", "7")
	t.Setenv("RLT_SEED", "99")
	t.Setenv("RLT_DB_PATH", "/tmp/override.db")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Run.TotalEpisodes != 7 || c.Run.Seed != 99 || c.DB.Path != "/tmp/override.db" {
		t.Fatalf("env overrides not applied: %+v", c.Run)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"discount factor above 1", "agent:\n  discount_factor: 1.5\n"},
		{"zero episodes", "run:\n  total_episodes: 0\n"},
		{"negative fee", "execution:\n  transaction_fee_rate: -0.1\n"},
		{"batch exceeds capacity", "replay:\n  replay_capacity: 10\n  batch_size: 20\n  warmup_steps: 20\n"},
		{"warmup below batch", "replay:\n  batch_size: 64\n  warmup_steps: 10\n"},
		{"exploration min above max", "agent:\n  exploration_max: 0.1\n  exploration_min: 0.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
