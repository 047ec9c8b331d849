package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/xtrntr/poolshare/internal/exchange"
	"github.com/xtrntr/poolshare/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/001_init.sql
var initSchema string

const uniqueViolation = "23505"

// DB wraps a PostgreSQL connection pool. It stores users and journals the
// engine's orders and trades so that state survives restarts.
type DB struct {
	Pool *pgxpool.Pool
}

var _ exchange.Journal = (*DB)(nil)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate applies the schema. It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, initSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3) RETURNING created_at",
		user.ID, user.Username, user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

const upsertOrder = `
INSERT INTO orders (id, seq, pool_id, user_id, side, order_type, amount, price, stop_price,
                    filled_amount, average_price, status, triggered, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric,
        $10::numeric, $11::numeric, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
    filled_amount = EXCLUDED.filled_amount,
    average_price = EXCLUDED.average_price,
    status        = EXCLUDED.status,
    triggered     = EXCLUDED.triggered,
    updated_at    = NOW()`

// SaveOrders upserts the current state of orders in one transaction
func (db *DB) SaveOrders(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range orders {
		_, err := tx.Exec(ctx, upsertOrder,
			o.ID, int64(o.Seq), o.PoolID, o.UserID, string(o.Side), string(o.Type),
			o.Amount.String(), nullString(o.Price), nullString(o.StopPrice),
			o.FilledAmount.String(), nullString(o.AveragePrice), string(o.Status), o.Triggered, o.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to save order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveTrades inserts trades. Trades are immutable, so known ids are skipped.
func (db *DB) SaveTrades(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO trades (id, pool_id, buy_order_id, sell_order_id, buy_user_id, sell_user_id, amount, price, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, t.PoolID, t.BuyOrderID, t.SellOrderID, t.BuyUserID, t.SellUserID,
			t.Amount.String(), t.Price.String(), t.Timestamp)
	}
	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save trades: %w", err)
	}
	return nil
}

// LoadSnapshot reads every journaled order and trade for exchange.Engine.Restore
func (db *DB) LoadSnapshot(ctx context.Context) (exchange.Snapshot, error) {
	snap := exchange.Snapshot{}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, seq, pool_id, user_id, side, order_type, amount::text, price::text, stop_price::text,
		       filled_amount::text, average_price::text, status, triggered, created_at
		FROM orders
		ORDER BY seq ASC`)
	if err != nil {
		return snap, fmt.Errorf("failed to load orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o                              models.Order
			seq                            int64
			side, kind, status             string
			amount, filled                 string
			price, stopPrice, averagePrice *string
		)
		if err := rows.Scan(&o.ID, &seq, &o.PoolID, &o.UserID, &side, &kind, &amount, &price, &stopPrice,
			&filled, &averagePrice, &status, &o.Triggered, &o.Timestamp); err != nil {
			return snap, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Seq = uint64(seq)
		o.Side = models.Side(side)
		o.Type = models.OrderType(kind)
		o.Status = models.Status(status)
		if o.Amount, err = decimal.NewFromString(amount); err != nil {
			return snap, fmt.Errorf("order %s amount: %w", o.ID, err)
		}
		if o.FilledAmount, err = decimal.NewFromString(filled); err != nil {
			return snap, fmt.Errorf("order %s filled amount: %w", o.ID, err)
		}
		if o.Price, err = parseNull(price); err != nil {
			return snap, fmt.Errorf("order %s price: %w", o.ID, err)
		}
		if o.StopPrice, err = parseNull(stopPrice); err != nil {
			return snap, fmt.Errorf("order %s stop price: %w", o.ID, err)
		}
		if o.AveragePrice, err = parseNull(averagePrice); err != nil {
			return snap, fmt.Errorf("order %s average price: %w", o.ID, err)
		}
		snap.Orders = append(snap.Orders, o)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	tradeRows, err := db.Pool.Query(ctx, `
		SELECT id, pool_id, buy_order_id, sell_order_id, buy_user_id, sell_user_id, amount::text, price::text, executed_at
		FROM trades
		ORDER BY executed_at ASC`)
	if err != nil {
		return snap, fmt.Errorf("failed to load trades: %w", err)
	}
	defer tradeRows.Close()

	for tradeRows.Next() {
		var (
			t             models.Trade
			amount, price string
		)
		if err := tradeRows.Scan(&t.ID, &t.PoolID, &t.BuyOrderID, &t.SellOrderID, &t.BuyUserID, &t.SellUserID,
			&amount, &price, &t.Timestamp); err != nil {
			return snap, fmt.Errorf("failed to scan trade: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return snap, fmt.Errorf("trade %s amount: %w", t.ID, err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return snap, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		snap.Trades = append(snap.Trades, t)
	}
	return snap, tradeRows.Err()
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNull(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
