package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"event-trivia-service/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Scoring     domain.ScoringOverrides `yaml:"scoring"`
	Leaderboard struct {
		RecentCapacity int `yaml:"recent_capacity"`
	} `yaml:"leaderboard"`
	Outbox struct {
		Backend    string `yaml:"backend"` // memory or redis
		Workers    int    `yaml:"workers"`
		Buffer     int    `yaml:"buffer"`
		MaxRetries int    `yaml:"max_retries"`
		Stream     string `yaml:"stream"`
		Group      string `yaml:"group"`
	} `yaml:"outbox"`
	Completion struct {
		Timeout string `yaml:"timeout"`
		Sink    string `yaml:"sink"` // log or amqp
	} `yaml:"completion"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Branches []string `yaml:"branches"`
}

// DefaultScoring is used for games whose catalog entry leaves scoring fields empty.
func DefaultScoring() domain.ScoringConfig {
	return domain.ScoringConfig{
		Mode:               domain.ModeTimeAndStreak,
		BasePoints:         100,
		TimeBonusMax:       50,
		DefaultTimeLimitMs: 30000,
		StreakTable:        []float64{1.0, 1.0, 1.2, 1.5, 2.0},
	}
}

// Load reads YAML config from path, after loading an optional .env file.
// Environment variables override the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	cfg.applyDefaults()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"PORT":         &cfg.Server.Port,
		"REDIS_ADDR":   &cfg.Redis.Addr,
		"POSTGRES_URL": &cfg.Postgres.URL,
		"LOG_LEVEL":    &cfg.Log.Level,
		"LOG_FORMAT":   &cfg.Log.Format,
		"AMQP_URL":     &cfg.AMQP.URL,
	}
	for key, dst := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Leaderboard.RecentCapacity <= 0 {
		c.Leaderboard.RecentCapacity = 20
	}
	if c.Outbox.Backend == "" {
		c.Outbox.Backend = "memory"
	}
	if c.Outbox.Workers <= 0 {
		c.Outbox.Workers = 4
	}
	if c.Outbox.Buffer <= 0 {
		c.Outbox.Buffer = 1024
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.Outbox.Stream == "" {
		c.Outbox.Stream = "trivia:outbox"
	}
	if c.Outbox.Group == "" {
		c.Outbox.Group = "projector"
	}
	if c.Completion.Sink == "" {
		c.Completion.Sink = "log"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "trivia.events"
	}
}

// ScoringDefaults resolves the configured scoring section over DefaultScoring.
func (c Config) ScoringDefaults() domain.ScoringConfig {
	return c.Scoring.Resolve(DefaultScoring())
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
