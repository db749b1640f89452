package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	ForfeitNone          = "none"
	ForfeitAwardOpponent = "award_opponent"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		TTL      string `yaml:"ttl" env:"REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	Battle struct {
		QuestionCount     int    `yaml:"question_count" env:"BATTLE_QUESTION_COUNT"`
		QuestionTimeLimit string `yaml:"question_time_limit" env:"BATTLE_QUESTION_TIME_LIMIT"`
		SessionTimeout    string `yaml:"session_timeout" env:"BATTLE_SESSION_TIMEOUT"`
		DisconnectGrace   string `yaml:"disconnect_grace" env:"BATTLE_DISCONNECT_GRACE"`
		LateGrace         string `yaml:"late_grace" env:"BATTLE_LATE_GRACE"`
		MaxCommitRetries  int    `yaml:"max_commit_retries" env:"BATTLE_MAX_COMMIT_RETRIES"`
		ForfeitPolicy     string `yaml:"forfeit_policy" env:"BATTLE_FORFEIT_POLICY"`
		SweepInterval     string `yaml:"sweep_interval" env:"BATTLE_SWEEP_INTERVAL"`
	} `yaml:"battle"`
	Invitation struct {
		TTL string `yaml:"ttl" env:"INVITATION_TTL"`
	} `yaml:"invitation"`
	Questions struct {
		CacheTTL        string `yaml:"cache_ttl" env:"QUESTIONS_CACHE_TTL"`
		ProviderRetries int    `yaml:"provider_retries" env:"QUESTIONS_PROVIDER_RETRIES"`
		Difficulty      string `yaml:"difficulty" env:"QUESTIONS_DIFFICULTY"`
	} `yaml:"questions"`
	Consistency struct {
		Timezone           string           `yaml:"timezone" env:"CONSISTENCY_TIMEZONE"`
		XP                 map[string]int64 `yaml:"xp"`
		LevelThresholds    []int64          `yaml:"level_thresholds"`
		TutoringMinMinutes int              `yaml:"tutoring_min_minutes" env:"CONSISTENCY_TUTORING_MIN_MINUTES"`
	} `yaml:"consistency"`
}

// Default returns the configuration used when no file or variable overrides a field.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Redis.TTL = "24h"
	cfg.Battle.QuestionCount = 5
	cfg.Battle.QuestionTimeLimit = "20s"
	cfg.Battle.SessionTimeout = "5m"
	cfg.Battle.DisconnectGrace = "30s"
	cfg.Battle.LateGrace = "2s"
	cfg.Battle.MaxCommitRetries = 5
	cfg.Battle.ForfeitPolicy = ForfeitNone
	cfg.Battle.SweepInterval = "5s"
	cfg.Invitation.TTL = "10m"
	cfg.Questions.CacheTTL = "10m"
	cfg.Questions.ProviderRetries = 3
	cfg.Questions.Difficulty = "medium"
	cfg.Consistency.Timezone = "UTC"
	cfg.Consistency.XP = map[string]int64{
		"battle_win":          50,
		"battle_loss":         15,
		"battle_draw":         25,
		"quiz_completed":      20,
		"quiz_correct_answer": 2,
		"tutoring_session":    30,
		"flashcard_review":    5,
	}
	cfg.Consistency.LevelThresholds = []int64{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000}
	cfg.Consistency.TutoringMinMinutes = 10
	return cfg
}

// Load reads YAML config from path on top of Default, then applies environment overrides.
// A missing file is tolerated so the service can run from environment variables alone.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("loaded environment variables from .env file")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logrus.Warnf("config file %s not found, using defaults", path)
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the battle and ledger rules cannot honor.
func (c Config) Validate() error {
	if c.Battle.QuestionCount <= 0 {
		return fmt.Errorf("battle.question_count must be positive, got %d", c.Battle.QuestionCount)
	}
	if c.Battle.MaxCommitRetries < 0 {
		return fmt.Errorf("battle.max_commit_retries must not be negative")
	}
	switch c.Battle.ForfeitPolicy {
	case ForfeitNone, ForfeitAwardOpponent:
	default:
		return fmt.Errorf("battle.forfeit_policy %q is not one of %s, %s", c.Battle.ForfeitPolicy, ForfeitNone, ForfeitAwardOpponent)
	}
	for _, raw := range []string{c.Battle.QuestionTimeLimit, c.Battle.SessionTimeout, c.Battle.DisconnectGrace, c.Invitation.TTL} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("duration %q must be positive", raw)
		}
	}
	if len(c.Consistency.LevelThresholds) == 0 {
		return errors.New("consistency.level_thresholds must not be empty")
	}
	for i := 1; i < len(c.Consistency.LevelThresholds); i++ {
		if c.Consistency.LevelThresholds[i] < c.Consistency.LevelThresholds[i-1] {
			return fmt.Errorf("consistency.level_thresholds must be non-decreasing at index %d", i)
		}
	}
	for kind, xp := range c.Consistency.XP {
		if xp < 0 {
			return fmt.Errorf("consistency.xp[%s] must not be negative", kind)
		}
	}
	if _, err := time.LoadLocation(c.Consistency.Timezone); err != nil {
		return fmt.Errorf("consistency.timezone: %w", err)
	}
	return nil
}

// Location resolves the calendar timezone used for streak days.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Consistency.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
