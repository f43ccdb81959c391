package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/okian/courtside/internal/adapters/http/api"
	"github.com/okian/courtside/internal/adapters/http/swagger"
	"github.com/okian/courtside/internal/adapters/mq/subscriber"
	"github.com/okian/courtside/internal/adapters/repository"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/internal/domain/achievement"
	"github.com/okian/courtside/internal/domain/scoring"
	"github.com/okian/courtside/internal/scheduler"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, reset scheduler and optional Redis subscriber",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func storeSettings(cfg *config.Config) repository.Settings {
	return repository.Settings{
		Driver:      cfg.Store.Driver,
		DSN:         cfg.Store.DSN,
		MaxConns:    cfg.Store.MaxConns,
		AutoMigrate: cfg.Store.AutoMigrate,
	}
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config, l logger.Logger) []service.Option {
	calc := scoring.NewCalculator(
		scoring.WithBasePoints(cfg.Scoring.BasePoints),
		scoring.WithAccuracyDivisor(cfg.Scoring.AccuracyDivisor),
		scoring.WithDurationBonus(cfg.Scoring.DurationStepMin, cfg.Scoring.DurationBonusCap),
		scoring.WithBonusOnIncomplete(cfg.Scoring.BonusOnIncomplete),
	)
	th := cfg.Achievements
	eval := achievement.NewEvaluator(achievement.WithThresholds(achievement.Thresholds{
		WeekStreakDays:      th.WeekStreakDays,
		MonthStreakDays:     th.MonthStreakDays,
		TopRank:             th.TopRank,
		CenturyWorkouts:     int64(th.CenturyWorkouts),
		SharpshooterAvg:     th.SharpshooterAvg,
		SharpshooterSamples: int64(th.SharpshooterSamples),
		PointsMilestone:     th.PointsMilestone,
	}))
	return []service.Option{
		service.WithLogger(l),
		service.WithCalculator(calc),
		service.WithEvaluator(eval),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EvaluationQueueSize),
		service.WithMaxRetries(cfg.MaxApplyRetries),
		service.WithPageSizes(cfg.DefaultPageSize, cfg.MaxPageSize),
		service.WithStatsCache(cfg.StatsCacheTTL, cfg.StatsCacheBytes),
	}
}

// newRouter registers the business API and the docs on one router.
func newRouter(svc api.Dependencies) *mux.Router {
	router := mux.NewRouter()
	api.NewServer(svc).Register(router)
	swagger.Register(router)
	return router
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	log := logger.Get()

	// Our own system metrics replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := repository.Open(ctx, storeSettings(cfg), repository.WithMetricsUpdateInterval(serviceMetricsInterval))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	svc := service.New(store, serviceOptions(cfg, log.Named("service"))...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	if cfg.Reset.ScheduleEnabled {
		sched := scheduler.New(svc, scheduler.WithInterval(cfg.Reset.CheckInterval), scheduler.WithLogger(log.Named("scheduler")))
		sched.Start(ctx)
		defer sched.Stop()
	}

	if cfg.Redis.Enabled {
		sub, client, err := startSubscriber(ctx, cfg.Redis, svc, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := sub.Stop(); err != nil {
				log.Warn(ctx, "subscriber stop failed", logger.Error(err))
			}
			_ = client.Close()
		}()
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func newRedisClient(rc config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
}

func startSubscriber(ctx context.Context, rc config.RedisConfig, h subscriber.Handler, log logger.Logger) (*subscriber.Subscriber, *redis.Client, error) {
	client := newRedisClient(rc)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", rc.Addr, err)
	}
	sub := subscriber.New(
		subscriber.NewRedisSource(client, rc.ProfileChannel, rc.ProgressChannel),
		h,
		subscriber.WithChannels(rc.ProfileChannel, rc.ProgressChannel),
		subscriber.WithLogger(log.Named("subscriber")),
	)
	if err := sub.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return sub, client, nil
}

// startSystemMetricsUpdater updates runtime metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater mirrors service status into gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	st := svc.Status(ctx)
	if n, ok := st["queueLength"].(int); ok {
		metrics.UpdateQueueSize(n)
	}
	if n, ok := st["totalPlayers"].(int); ok {
		metrics.UpdateTotalPlayers(n)
	}
}
