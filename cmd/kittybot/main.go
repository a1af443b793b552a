package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jensholdgaard/penalty-kitty/internal/clock"
	"github.com/jensholdgaard/penalty-kitty/internal/config"
	"github.com/jensholdgaard/penalty-kitty/internal/kitty"
	"github.com/jensholdgaard/penalty-kitty/internal/reconcile"
	"github.com/jensholdgaard/penalty-kitty/internal/spond"
	"github.com/jensholdgaard/penalty-kitty/internal/store"
	"github.com/jensholdgaard/penalty-kitty/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/penalty-kitty/internal/store/postgres"
	_ "github.com/jensholdgaard/penalty-kitty/internal/store/sqlite"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "kittybot",
		Short:        "Penalty kitty bot for team sports",
		Long:         "kittybot keeps the team's penalty ledger and fines members who leave scheduled events unanswered.",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newSyncCmd(&configPath))
	rootCmd.AddCommand(newGroupsCmd(&configPath))
	return rootCmd
}

// app holds everything the subcommands share.
type app struct {
	cfg    *config.Config
	tp     *telemetry.Provider
	logger *slog.Logger
	clock  clock.Clock
	repos  *store.Repositories
	spond  *spond.Client
	engine *reconcile.Engine
	kitty  *kitty.Manager
}

// setup loads configuration and opens every dependency. The caller must
// call close.
func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewLocalProvider(cfg.Telemetry.ServiceName)
	}

	a := &app{cfg: cfg, tp: tp, logger: tp.Logger, clock: clock.Real{}}

	a.repos, err = store.Open(ctx, cfg.Database, a.clock)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	a.logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	a.spond = spond.New(cfg.Spond, a.logger, tp.TracerProvider)

	a.engine, err = reconcile.NewEngine(a.spond,
		a.repos.Players, a.repos.Penalties, a.repos.Events,
		a.logger, tp.TracerProvider, tp.MeterProvider, a.clock, cfg.Kitty.Lookback)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating sync engine: %w", err)
	}

	a.kitty = kitty.NewManager(a.repos, a.logger, tp.TracerProvider)
	return a, nil
}

func (a *app) close() {
	if a.repos != nil {
		if err := a.repos.Closer.Close(); err != nil {
			a.logger.Error("closing store", slog.Any("error", err))
		}
	}
	if err := a.tp.Shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", slog.Any("error", err))
	}
}
