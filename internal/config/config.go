// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Keys mirror koanf tags; nested sections are separated by "." in YAML and
//   by "__" in environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text, json or pretty.
	LogFormat string `koanf:"log_format"`
	// LogFile additionally writes rotated logs to this path when set.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EvaluationQueueSize bounds the in-memory achievement evaluation queue.
	EvaluationQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of achievement evaluation workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxPageSize caps ?limit on list endpoints.
	MaxPageSize int `koanf:"max_page_size"`
	// DefaultPageSize is used when ?limit is absent.
	DefaultPageSize int `koanf:"default_page_size"`

	// MaxApplyRetries bounds optimistic concurrency retries per event.
	MaxApplyRetries int `koanf:"max_apply_retries"`

	// StatsCacheTTL controls how long /leaderboard/stats is cached; <= 0 disables.
	StatsCacheTTL time.Duration `koanf:"stats_cache_ttl"`
	// StatsCacheBytes sizes the stats cache.
	StatsCacheBytes int `koanf:"stats_cache_bytes"`

	Reset        ResetConfig        `koanf:"reset"`
	Scoring      ScoringConfig      `koanf:"scoring"`
	Achievements AchievementsConfig `koanf:"achievements"`
	Store        StoreConfig        `koanf:"store"`
	Redis        RedisConfig        `koanf:"redis"`
}

// ResetConfig controls the time-based window reset trigger.
type ResetConfig struct {
	ScheduleEnabled bool          `koanf:"schedule_enabled"`
	CheckInterval   time.Duration `koanf:"check_interval"`
}

// ScoringConfig holds the points policy constants.
type ScoringConfig struct {
	BasePoints        int64 `koanf:"base_points"`
	AccuracyDivisor   int64 `koanf:"accuracy_divisor"`
	DurationStepMin   int64 `koanf:"duration_step_min"`
	DurationBonusCap  int64 `koanf:"duration_bonus_cap"`
	BonusOnIncomplete bool  `koanf:"bonus_on_incomplete"`
}

// AchievementsConfig holds rule thresholds.
type AchievementsConfig struct {
	WeekStreakDays      int     `koanf:"week_streak_days"`
	MonthStreakDays     int     `koanf:"month_streak_days"`
	TopRank             int     `koanf:"top_rank"`
	CenturyWorkouts     int     `koanf:"century_workouts"`
	SharpshooterAvg     float64 `koanf:"sharpshooter_avg"`
	SharpshooterSamples int     `koanf:"sharpshooter_samples"`
	PointsMilestone     int64   `koanf:"points_milestone"`
}

// StoreConfig selects the leaderboard storage engine.
type StoreConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver string `koanf:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `koanf:"dsn"`
	// MaxConns bounds the postgres pool.
	MaxConns int32 `koanf:"max_conns"`
	// AutoMigrate runs migrations on startup.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// RedisConfig configures the profile/progress subscriber.
type RedisConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Addr            string `koanf:"addr"`
	Password        string `koanf:"password"`
	DB              int    `koanf:"db"`
	ProfileChannel  string `koanf:"profile_channel"`
	ProgressChannel string `koanf:"progress_channel"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		EvaluationQueueSize: 10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		MaxPageSize:         100,
		DefaultPageSize:     20,
		MaxApplyRetries:     5,
		StatsCacheTTL:       5 * time.Second,
		StatsCacheBytes:     1 << 20,
		Reset: ResetConfig{
			ScheduleEnabled: true,
			CheckInterval:   time.Minute,
		},
		Scoring: ScoringConfig{
			BasePoints:        10,
			AccuracyDivisor:   10,
			DurationStepMin:   10,
			DurationBonusCap:  5,
			BonusOnIncomplete: true,
		},
		Achievements: AchievementsConfig{
			WeekStreakDays:      7,
			MonthStreakDays:     30,
			TopRank:             10,
			CenturyWorkouts:     100,
			SharpshooterAvg:     90,
			SharpshooterSamples: 10,
			PointsMilestone:     1000,
		},
		Store: StoreConfig{
			Driver:      DriverMemory,
			MaxConns:    10,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			ProfileChannel:  "courtside.profiles",
			ProgressChannel: "courtside.progress",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxPageSize < 1:
		return fmt.Errorf("%w: max_page_size must be positive", ErrInvalidConfig)
	case c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize:
		return fmt.Errorf("%w: default_page_size must be within 1..%d", ErrInvalidConfig, c.MaxPageSize)
	case c.MaxApplyRetries < 1:
		return fmt.Errorf("%w: max_apply_retries must be positive", ErrInvalidConfig)
	case c.Reset.ScheduleEnabled && c.Reset.CheckInterval <= 0:
		return fmt.Errorf("%w: reset.check_interval must be positive when the schedule is enabled", ErrInvalidConfig)
	case c.Scoring.AccuracyDivisor <= 0 || c.Scoring.DurationStepMin <= 0:
		return fmt.Errorf("%w: scoring divisors must be positive", ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %q", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("%w: redis.addr must not be empty when redis is enabled", ErrInvalidConfig)
	}
	return nil
}
