package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/xtrntr/poolshare/internal/auth"
	"github.com/xtrntr/poolshare/internal/config"
	"github.com/xtrntr/poolshare/internal/db"
	"github.com/xtrntr/poolshare/internal/exchange"
	"github.com/xtrntr/poolshare/internal/logging"
	"github.com/xtrntr/poolshare/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const seedPool = "demo-pool"

type seedOrder struct {
	trader string
	side   models.Side
	amount string
	price  string
	ago    time.Duration
}

// Crossing pairs spread over the last three days, then a resting book
var seedOrders = []seedOrder{
	{"trader1", models.SideBuy, "0.10", "30000", 72 * time.Hour},
	{"trader2", models.SideSell, "0.10", "30000", 72 * time.Hour},
	{"trader1", models.SideBuy, "0.20", "31000", 20 * time.Hour},
	{"trader2", models.SideSell, "0.20", "31000", 20 * time.Hour},
	{"trader1", models.SideBuy, "0.15", "32000", time.Hour},
	{"trader2", models.SideSell, "0.15", "32000", time.Hour},
	{"trader1", models.SideBuy, "0.50", "31500", 0},
	{"trader2", models.SideSell, "0.40", "32500", 0},
}

// Seed the database with demo traders and trades
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

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required for seeding")
	}
	if err := seed(context.Background(), cfg, logger); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
}

func seed(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	// First check if we already have trades
	snap, err := database.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if len(snap.Trades) > 0 {
		logger.Info("database already seeded", zap.Int("trades", len(snap.Trades)))
		return nil
	}

	authService := auth.NewAuthService(database, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	traders := map[string]string{}
	for _, name := range []string{"trader1", "trader2"} {
		user, err := authService.Register(ctx, name, "password123")
		if errors.Is(err, models.ErrUserExists) {
			user, err = database.GetUserByUsername(ctx, name)
		}
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		traders[name] = user.ID
	}

	// Trades take their timestamps from the clock, so move it with each order.
	now := time.Now()
	clock := now
	engine := exchange.New(
		exchange.WithLogger(logger.Named("engine")),
		exchange.WithClock(func() time.Time { return clock }),
	)
	if err := engine.Restore(snap); err != nil {
		return fmt.Errorf("failed to restore engine: %w", err)
	}
	matcher := exchange.NewLocked(engine, database, logger.Named("journal"))

	trades := 0
	for _, so := range seedOrders {
		clock = now.Add(-so.ago)
		_, placed, err := matcher.AddOrder(ctx, models.Order{
			PoolID: seedPool,
			UserID: traders[so.trader],
			Side:   so.side,
			Type:   models.TypeLimit,
			Amount: decimal.RequireFromString(so.amount),
			Price:  decimal.NewNullDecimal(decimal.RequireFromString(so.price)),
		})
		if err != nil {
			return fmt.Errorf("failed to place order: %w", err)
		}
		trades += len(placed)
	}

	logger.Info("seeded the database", zap.String("pool_id", seedPool), zap.Int("trades", trades))
	return nil
}
