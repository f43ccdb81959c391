package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/okian/courtside/internal/adapters/mq/subscriber"
	"github.com/okian/courtside/internal/adapters/repository"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/loadgen"
	"github.com/okian/courtside/pkg/logger"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured SQL store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := migrate(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}
			cmd.Printf("applied %d migrations (%s)\n", n, a.cfg.Store.Driver)
			return nil
		},
	}
}

func migrate(ctx context.Context, sc config.StoreConfig) (int, error) {
	var (
		db      *sql.DB
		dialect repository.Dialect
		closeFn = func() {}
		err     error
	)
	switch sc.Driver {
	case config.DriverSQLite:
		dialect = repository.DialectSQLite
		db, err = repository.OpenSQLite(sc.DSN)
	case config.DriverPostgres:
		dialect = repository.DialectPostgres
		var pool *pgxpool.Pool
		if db, pool, err = repository.OpenPostgres(ctx, sc.DSN, sc.MaxConns); err == nil {
			closeFn = pool.Close
		}
	default:
		return 0, fmt.Errorf("migrate needs a SQL store, got driver %q", sc.Driver)
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = db.Close()
		closeFn()
	}()
	return repository.Migrate(ctx, db, dialect)
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "reset weekly|monthly",
		Short:     "Zero the weekly or monthly points of every entry",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.WindowWeekly), string(model.WindowMonthly)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := model.ParseWindow(args[0])
			if err != nil || !w.Resettable() {
				return fmt.Errorf("unknown window %q: want weekly or monthly", args[0])
			}
			if a.cfg.Store.Driver == config.DriverMemory {
				logger.Get().Warn(ctx, "resetting an in-memory store has no lasting effect")
			}
			res, err := a.reset(ctx, w)
			if err != nil {
				return err
			}
			cmd.Printf("%s reset applied=%t at %s\n", res.Window, res.Applied, res.At.Format(time.RFC3339))
			return nil
		},
	}
}

func (a *app) reset(ctx context.Context, w model.Window) (service.ResetResult, error) {
	store, err := repository.Open(ctx, storeSettings(a.cfg))
	if err != nil {
		return service.ResetResult{}, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()
	svc := service.New(store, serviceOptions(a.cfg, logger.Get().Named("service"))...)
	return svc.ResetWindow(ctx, w)
}

func (a *app) simulateCmd() *cobra.Command {
	lc := loadgen.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running server with fake players and events, then verify the standings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client := loadgen.NewClient(lc.BaseURL, lc.Timeout)

			var sink loadgen.Sink = client
			if lc.Transport == loadgen.TransportRedis {
				rc := newRedisClient(a.cfg.Redis)
				defer func() { _ = rc.Close() }()
				sink = loadgen.NewRedisSink(subscriber.NewPublisher(rc), a.cfg.Redis.ProfileChannel, a.cfg.Redis.ProgressChannel)
			}

			rep, err := loadgen.NewRunner(lc, sink, client).Run(ctx)
			for _, m := range rep.Mismatches {
				cmd.PrintErrln("mismatch:", m)
			}
			cmd.Printf("players=%d events=%d sent=%d applied=%d duplicate=%d ignored=%d failed=%d board=%d checked=%d in %s\n",
				rep.PlayersCreated, rep.EventsGenerated, rep.EventsSent, rep.EventsApplied, rep.EventsDuplicate,
				rep.EventsIgnored, rep.EventsFailed, rep.LeaderboardSize, rep.PlayersCrossCheck, rep.Duration)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&lc.BaseURL, "url", lc.BaseURL, "base URL of the server")
	f.StringVar(&lc.Transport, "transport", lc.Transport, "write transport: http or redis")
	f.IntVar(&lc.Players, "players", lc.Players, "number of players")
	f.IntVar(&lc.Teams, "teams", lc.Teams, "number of teams")
	f.IntVar(&lc.Events, "events", lc.Events, "number of unique events")
	f.Float64Var(&lc.DuplicateRate, "duplicates", lc.DuplicateRate, "share of events resubmitted")
	f.IntVar(&lc.Workers, "workers", lc.Workers, "concurrent senders")
	f.DurationVar(&lc.Timeout, "timeout", lc.Timeout, "per-request timeout")
	f.DurationVar(&lc.Settle, "settle", lc.Settle, "wait before verifying")
	f.IntVar(&lc.Sample, "sample", lc.Sample, "players cross-checked through my-rank")
	f.IntVar(&lc.PageSize, "page-size", lc.PageSize, "page size used to list the board")
	f.Int64Var(&lc.Seed, "seed", lc.Seed, "faker seed, 0 for random")
	f.StringVar(&lc.OutputFile, "output", lc.OutputFile, "write generated events to this JSON file")
	return cmd
}
