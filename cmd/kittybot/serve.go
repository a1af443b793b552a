package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jensholdgaard/penalty-kitty/internal/bot"
	"github.com/jensholdgaard/penalty-kitty/internal/bot/commands"
	"github.com/jensholdgaard/penalty-kitty/internal/health"
	"github.com/jensholdgaard/penalty-kitty/internal/leader"
	"github.com/jensholdgaard/penalty-kitty/internal/reconcile"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot and the periodic sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(parent context.Context, configPath string) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, logger := a.cfg, a.logger

	healthHandler := health.NewHandler(a.clock,
		health.Checker{
			Name:  "database",
			Check: a.repos.Ping,
		},
	)

	// Runs on all replicas.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           healthHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	handlers := commands.NewHandlers(a.kitty, a.engine, a.spond, commands.Settings{
		Admins:         cfg.Discord.AdminIDs,
		GroupID:        cfg.Spond.GroupID,
		NoReplyPenalty: cfg.Kitty.NoReplyPenalty,
		Currency:       cfg.Kitty.Currency,
	}, logger, a.tp.TracerProvider)

	scheduler := reconcile.NewScheduler(a.engine, cfg.Spond.GroupID, cfg.Kitty.NoReplyPenalty, cfg.Kitty.SyncInterval, logger)
	scheduler.OnRun(func(res *reconcile.Result, err error) {
		n := 0
		if res != nil {
			n = res.NewPenalties
		}
		healthHandler.RecordSync(n, err)
	})

	// runBot is the work only the leader does. It blocks until ctx is done.
	runBot := func(ctx context.Context) error {
		discordBot, err := bot.New(cfg.Discord, handlers, logger)
		if err != nil {
			return fmt.Errorf("creating bot: %w", err)
		}
		if err := discordBot.Start(ctx); err != nil {
			return fmt.Errorf("starting bot: %w", err)
		}

		schedDone := make(chan struct{})
		go func() {
			defer close(schedDone)
			scheduler.Run(ctx)
		}()

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "kittybot is running", slog.String("version", version))

		<-ctx.Done()

		healthHandler.SetReady(false)
		<-schedDone
		if err := discordBot.Stop(); err != nil {
			logger.Error("bot shutdown error", slog.Any("error", err))
		}
		return nil
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, func(ctx context.Context) {
			if err := runBot(ctx); err != nil {
				logger.ErrorContext(ctx, "bot failed", slog.Any("error", err))
				cancel()
			}
		}, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else if err := runBot(ctx); err != nil {
		return err
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
