package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/courtside/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"COURTSIDE_CONFIG",
	"COURTSIDE_ADDR",
	"COURTSIDE_MAX_PAGE_SIZE",
	"COURTSIDE_DEFAULT_PAGE_SIZE",
	"COURTSIDE_WORKER_COUNT",
	"COURTSIDE_STATS_CACHE_TTL",
	"COURTSIDE_STORE__DRIVER",
	"COURTSIDE_STORE__DSN",
	"COURTSIDE_REDIS__ENABLED",
	"COURTSIDE_REDIS__ADDR",
	"COURTSIDE_RESET__SCHEDULE_ENABLED",
	"COURTSIDE_SCORING__BASE_POINTS",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func noEnvFile() config.LoadOption {
	return config.WithEnvFile(filepath.Join(os.TempDir(), "courtside-missing.env"))
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, noEnvFile())

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MaxPageSize, convey.ShouldEqual, 100)
				convey.So(cfg.MaxApplyRetries, convey.ShouldEqual, 5)
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.Scoring.BasePoints, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("COURTSIDE_ADDR", ":8080")
			_ = os.Setenv("COURTSIDE_WORKER_COUNT", "3")
			_ = os.Setenv("COURTSIDE_STATS_CACHE_TTL", "30s")
			_ = os.Setenv("COURTSIDE_STORE__DRIVER", "sqlite")
			_ = os.Setenv("COURTSIDE_STORE__DSN", "/tmp/courtside.db")
			_ = os.Setenv("COURTSIDE_RESET__SCHEDULE_ENABLED", "false")
			_ = os.Setenv("COURTSIDE_SCORING__BASE_POINTS", "12")

			cfg, err := config.Load(ctx, noEnvFile())

			convey.Convey("Then flat and nested keys override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.StatsCacheTTL, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.Store.DSN, convey.ShouldEqual, "/tmp/courtside.db")
				convey.So(cfg.Reset.ScheduleEnabled, convey.ShouldBeFalse)
				convey.So(cfg.Scoring.BasePoints, convey.ShouldEqual, 12)
				convey.So(cfg.Scoring.DurationBonusCap, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeTempFile(t, "courtside.yaml", `
addr: ":9090"
max_page_size: 50
default_page_size: 10
reset:
  check_interval: 15s
achievements:
  top_rank: 3
redis:
  enabled: true
  addr: "redis:6379"
`)
			_ = os.Setenv("COURTSIDE_CONFIG", path)

			cfg, err := config.Load(ctx, noEnvFile())

			convey.Convey("Then values come from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MaxPageSize, convey.ShouldEqual, 50)
				convey.So(cfg.Reset.CheckInterval, convey.ShouldEqual, 15*time.Second)
				convey.So(cfg.Achievements.TopRank, convey.ShouldEqual, 3)
				convey.So(cfg.Achievements.WeekStreakDays, convey.ShouldEqual, 7)
				convey.So(cfg.Redis.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Redis.Addr, convey.ShouldEqual, "redis:6379")
			})

			convey.Convey("And env vars win over the file", func() {
				_ = os.Setenv("COURTSIDE_ADDR", ":7070")
				cfg, err := config.Load(ctx, noEnvFile())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.MaxPageSize, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When the file is passed explicitly", func() {
			path := writeTempFile(t, "explicit.yaml", "addr: \":6060\"\n")
			cfg, err := config.Load(ctx, config.WithFile(path), noEnvFile())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
		})

		convey.Convey("When a dotenv file is present", func() {
			path := writeTempFile(t, "test.env", "COURTSIDE_MAX_PAGE_SIZE=40\n")
			defer func() { _ = os.Unsetenv("COURTSIDE_MAX_PAGE_SIZE") }()
			cfg, err := config.Load(ctx, config.WithEnvFile(path))
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.MaxPageSize, convey.ShouldEqual, 40)
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("COURTSIDE_CONFIG", "/non/existent/file.yaml")
			_, err := config.Load(ctx, noEnvFile())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When validation fails", func() {
			_ = os.Setenv("COURTSIDE_STORE__DRIVER", "postgres")
			_, err := config.Load(ctx, noEnvFile())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "store.dsn")
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
