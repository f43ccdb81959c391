package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/pkg/logger"
)

// Log rotation defaults for --log-file / log_file.
const (
	logMaxSizeMB  = 100
	logMaxBackups = 5
	logMaxAgeDays = 28
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "courtside",
		Short: "Leaderboard and points aggregation service",
		Long: `courtside aggregates basketball training progress into points and
serves global, team and skill leaderboards with weekly and monthly windows.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bootstrap(cmd.Context())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logger.Sync()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $COURTSIDE_CONFIG)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.resetCmd(),
		a.simulateCmd(),
	)
	return root
}

// bootstrap loads configuration and initializes logging.
func (a *app) bootstrap(ctx context.Context) error {
	opts := []config.LoadOption{config.WithEnvFile(a.envFile)}
	if a.configPath != "" {
		opts = append(opts, config.WithFile(a.configPath))
	}
	cfg, err := config.Load(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logOpts := []logger.Option{logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)}
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logger.WithFile(cfg.LogFile, logMaxSizeMB, logMaxBackups, logMaxAgeDays))
	}
	if err := logger.Init(logOpts...); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	return nil
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "courtside: %v\n", err)
		stop()
		os.Exit(1)
	}
}
