package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/scheduler"
	"gopkg.in/yaml.v3"
)

// Config holds all rapport configuration.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Database  DatabaseConfig      `yaml:"database"`
	Redis     RedisConfig         `yaml:"redis"`
	Log       LogConfig           `yaml:"log"`
	Scorer    engine.ScorerConfig `yaml:"scorer"`
	Scheduler SchedulerConfig     `yaml:"scheduler"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty resolves to store.DefaultDBPath()
}

// RedisConfig enables the shared cooldown index when URL is set.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type LogConfig struct {
	Level    string `yaml:"level"`  // debug, info, warn, error
	Format   string `yaml:"format"` // json, console
	Output   string `yaml:"output"` // stdout, stderr, file
	FilePath string `yaml:"file_path"`
}

type SchedulerConfig struct {
	EvaluationIntervalMS int   `yaml:"evaluation_interval_ms"`
	BatchSize            int   `yaml:"batch_size"`
	EnableLogging        *bool `yaml:"enable_logging"`
	CooldownHours        int   `yaml:"cooldown_hours"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	enabled := true
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Redis: RedisConfig{
			Prefix: "rapport:cooldown",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Scorer: engine.DefaultScorerConfig(),
		Scheduler: SchedulerConfig{
			EvaluationIntervalMS: 3600000,
			BatchSize:            100,
			EnableLogging:        &enabled,
			CooldownHours:        24,
		},
	}
}

// DefaultPath returns ~/.rapport/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".rapport", "config.yaml"), nil
}

// Load reads the YAML file at path and merges it over the defaults. A
// missing file yields the defaults.
func Load(path string) (Config, error) {
	file, err := loadFileRaw(path)
	if err != nil {
		return Config{}, err
	}
	return Merge(Default(), file), nil
}

// loadFileRaw returns the zero Config when the file does not exist.
func loadFileRaw(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Merge combines base and overlay. Overlay scalars win when non-zero; a
// non-nil overlay EnableLogging wins.
func Merge(base, overlay Config) Config {
	out := base

	out.Server.Bind = pick(overlay.Server.Bind, base.Server.Bind)
	out.Server.Port = pick(overlay.Server.Port, base.Server.Port)
	out.Database.Path = pick(overlay.Database.Path, base.Database.Path)
	out.Redis.URL = pick(overlay.Redis.URL, base.Redis.URL)
	out.Redis.Prefix = pick(overlay.Redis.Prefix, base.Redis.Prefix)

	out.Log.Level = pick(overlay.Log.Level, base.Log.Level)
	out.Log.Format = pick(overlay.Log.Format, base.Log.Format)
	out.Log.Output = pick(overlay.Log.Output, base.Log.Output)
	out.Log.FilePath = pick(overlay.Log.FilePath, base.Log.FilePath)

	out.Scorer.RecencyWeight = pick(overlay.Scorer.RecencyWeight, base.Scorer.RecencyWeight)
	out.Scorer.FrequencyWeight = pick(overlay.Scorer.FrequencyWeight, base.Scorer.FrequencyWeight)
	out.Scorer.EngagementWeight = pick(overlay.Scorer.EngagementWeight, base.Scorer.EngagementWeight)
	out.Scorer.HalfLife = pick(overlay.Scorer.HalfLife, base.Scorer.HalfLife)
	out.Scorer.FrequencyWindow = pick(overlay.Scorer.FrequencyWindow, base.Scorer.FrequencyWindow)

	out.Scheduler.EvaluationIntervalMS = pick(overlay.Scheduler.EvaluationIntervalMS, base.Scheduler.EvaluationIntervalMS)
	out.Scheduler.BatchSize = pick(overlay.Scheduler.BatchSize, base.Scheduler.BatchSize)
	out.Scheduler.CooldownHours = pick(overlay.Scheduler.CooldownHours, base.Scheduler.CooldownHours)
	if overlay.Scheduler.EnableLogging != nil {
		v := *overlay.Scheduler.EnableLogging
		out.Scheduler.EnableLogging = &v
	}

	return out
}

func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// LoadEnv loads a .env file if present. Variables already set in the
// environment are not overridden.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides c from RAPPORT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("RAPPORT_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RAPPORT_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("RAPPORT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RAPPORT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RAPPORT_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// SchedulerSettings converts the file form into scheduler settings.
func (c *Config) SchedulerSettings() scheduler.Config {
	enabled := c.Scheduler.EnableLogging == nil || *c.Scheduler.EnableLogging
	return scheduler.Config{
		EvaluationInterval: time.Duration(c.Scheduler.EvaluationIntervalMS) * time.Millisecond,
		BatchSize:          c.Scheduler.BatchSize,
		EnableLogging:      enabled,
		Cooldown:           time.Duration(c.Scheduler.CooldownHours) * time.Hour,
	}
}
