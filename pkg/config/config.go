package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config is the full training configuration surface.
type Config struct {
	Run struct {
		Seed               int64 `yaml:"seed" default:"1"`
		TotalEpisodes      int   `yaml:"total_episodes" default:"200" validate:"gt=0"`
		CheckpointInterval int   `yaml:"checkpoint_interval" default:"25" validate:"gt=0"`
		ActorCount         int   `yaml:"actor_count" default:"1" validate:"gte=1"`
	} `yaml:"run"`

	Data struct {
		Path            string  `yaml:"path"`
		HoldoutFraction float64 `yaml:"holdout_fraction" default:"0.2" validate:"gte=0,lt=1"`
	} `yaml:"data"`

	Env struct {
		EpisodeMaxSteps     int     `yaml:"episode_max_steps" default:"256" validate:"gt=0"`
		WindowSize          int     `yaml:"window_size" default:"32" validate:"gt=1"`
		InitialCash         float64 `yaml:"initial_cash" default:"10000" validate:"gt=0"`
		BankruptcyThreshold float64 `yaml:"bankruptcy_threshold" default:"0"`
		OrderSize           float64 `yaml:"order_size" default:"1" validate:"gt=0"`
		RiskPenalty         float64 `yaml:"risk_penalty" default:"0" validate:"gte=0"`
		RandomStart         bool    `yaml:"random_start" default:"true"`
		Margin              bool    `yaml:"margin" default:"false"`
		AbortOnInvalid      bool    `yaml:"abort_on_invalid" default:"false"`
	} `yaml:"env"`

	Execution struct {
		FeeFixed      float64 `yaml:"transaction_fee_fixed" default:"0" validate:"gte=0"`
		FeeRate       float64 `yaml:"transaction_fee_rate" default:"0.001" validate:"gte=0"`
		SlippageCoeff float64 `yaml:"slippage_coefficient" default:"0.1" validate:"gte=0"`
	} `yaml:"execution"`

	Agent struct {
		DiscountFactor     float64 `yaml:"discount_factor" default:"0.99" validate:"gt=0,lte=1"`
		LearningRate       float64 `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
		HiddenSize         int     `yaml:"hidden_size" default:"32" validate:"gte=0"`
		ExplorationMax     float64 `yaml:"exploration_max" default:"1.0" validate:"gte=0,lte=1"`
		ExplorationMin     float64 `yaml:"exploration_min" default:"0.05" validate:"gte=0,lte=1"`
		ExplorationDecay   float64 `yaml:"exploration_decay" default:"0.999" validate:"gt=0,lte=1"`
		TargetSyncInterval int     `yaml:"target_sync_interval" default:"500" validate:"gt=0"`
	} `yaml:"agent"`

	Replay struct {
		Capacity    int `yaml:"replay_capacity" default:"10000" validate:"gt=0"`
		BatchSize   int `yaml:"batch_size" default:"64" validate:"gt=0"`
		WarmupSteps int `yaml:"warmup_steps" default:"500" validate:"gte=0"`
	} `yaml:"replay"`

	DB struct {
		Path string `yaml:"path" default:"data/training.db"`
	} `yaml:"db"`

	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stderr"`
	} `yaml:"log"`
}

// Load reads the YAML config at path, fills defaults, applies env
// overrides and validates the result. An empty path yields a config of
// pure defaults (plus env overrides).
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional .env

	var c Config
	// defaults first, so explicit zero values in the file survive
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&c)

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// applyEnv overrides select fields from RLT_* environment variables.
func applyEnv(c *Config) {
	if v := os.Getenv("RLT_DB_PATH"); v != "" {
		c.DB.Path = v
	}
	if v := os.Getenv("RLT_DATA_PATH"); v != "" {
		c.Data.Path = v
	}
	if v := os.Getenv("RLT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RLT_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Run.Seed = n
		}
	}
	if v := os.Getenv("RLT_TOTAL_EPISODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Run.TotalEpisodes = n
		}
	}
}

// Validate covers the cross-field rules struct tags cannot express.
func (c *Config) Validate() error {
	if c.Agent.ExplorationMin > c.Agent.ExplorationMax {
		return fmt.Errorf("exploration_min %v exceeds exploration_max %v",
			c.Agent.ExplorationMin, c.Agent.ExplorationMax)
	}
	if c.Replay.BatchSize > c.Replay.Capacity {
		return fmt.Errorf("batch_size %d exceeds replay_capacity %d",
			c.Replay.BatchSize, c.Replay.Capacity)
	}
	if c.Replay.WarmupSteps < c.Replay.BatchSize {
		return fmt.Errorf("warmup_steps %d below batch_size %d",
			c.Replay.WarmupSteps, c.Replay.BatchSize)
	}
	return nil
}
