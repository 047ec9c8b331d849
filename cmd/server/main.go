package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtrntr/poolshare/internal/api"
	"github.com/xtrntr/poolshare/internal/auth"
	"github.com/xtrntr/poolshare/internal/config"
	"github.com/xtrntr/poolshare/internal/db"
	"github.com/xtrntr/poolshare/internal/exchange"
	"github.com/xtrntr/poolshare/internal/logging"
	"github.com/xtrntr/poolshare/internal/metrics"

	"go.uber.org/zap"
)

// Main entry point: loads config, restores the engine and serves HTTP
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	engine := exchange.New(
		exchange.WithLogger(logger.Named("engine")),
		exchange.WithObserver(m),
	)

	var (
		users   auth.UserStore = auth.NewMemoryUserStore()
		journal exchange.Journal
	)
	if cfg.Database.URL != "" {
		database, err := db.NewDB(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return err
		}
		snap, err := database.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		if err := engine.Restore(snap); err != nil {
			return fmt.Errorf("failed to restore engine: %w", err)
		}
		users, journal = database, database
	} else {
		logger.Warn("no database configured, state is kept in memory only")
	}

	matcher := exchange.NewLocked(engine, journal, logger.Named("journal"))
	authService := auth.NewAuthService(users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hub := api.NewHub(matcher, logger.Named("feed"), cfg.CORS.AllowedOrigins)
	handler := api.NewHandler(matcher, authService, hub, logger.Named("api"), cfg.Engine.RecentTradesLimit)
	handler.FeedToken = cfg.Feed.TriggerToken
	if handler.FeedToken == "" {
		logger.Warn("feed.trigger_token not set, stop orders cannot be triggered")
	}

	// Start periodic order book broadcast
	go hub.Run(ctx, cfg.Feed.BroadcastInterval)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Routes(cfg.CORS.AllowedOrigins, m.Handler()),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
