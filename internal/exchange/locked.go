package exchange

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/poolshare/internal/models"
	"go.uber.org/zap"
)

// Matcher is the engine surface shared by concurrent callers
type Matcher interface {
	AddOrder(ctx context.Context, o models.Order) (models.Order, []models.Trade, error)
	CancelOrder(ctx context.Context, orderID, userID string) (models.Order, error)
	TriggerStops(ctx context.Context, poolID string, reference decimal.Decimal) ([]models.Trade, error)

	GetOrder(orderID string) (models.Order, bool)
	GetOrderBook(poolID string) (models.BookSnapshot, bool)
	GetUserOrders(userID string) []models.Order
	GetRecentTrades(poolID string, limit int) []models.Trade
	GetPriceStats(poolID string) models.PriceStats
	Pools() []string
}

// Journal receives every order and trade touched by a successful mutation
type Journal interface {
	SaveOrders(ctx context.Context, orders []models.Order) error
	SaveTrades(ctx context.Context, trades []models.Trade) error
}

// Locked serializes all access to an Engine with a single lock. Journal
// writes happen under the same lock so they land in engine order.
type Locked struct {
	mu      sync.RWMutex
	engine  *Engine
	journal Journal
	logger  *zap.Logger
}

var _ Matcher = (*Locked)(nil)

// NewLocked wraps e. journal may be nil.
func NewLocked(e *Engine, journal Journal, logger *zap.Logger) *Locked {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locked{engine: e, journal: journal, logger: logger}
}

func (l *Locked) AddOrder(ctx context.Context, o models.Order) (models.Order, []models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	placed, trades, err := l.engine.Place(o)
	if err != nil {
		return models.Order{}, nil, err
	}
	ids := []string{placed.ID}
	for _, t := range trades {
		ids = append(ids, t.BuyOrderID, t.SellOrderID)
	}
	l.persist(ctx, ids, trades)
	return placed, trades, nil
}

func (l *Locked) CancelOrder(ctx context.Context, orderID, userID string) (models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.engine.CancelOrder(orderID, userID); err != nil {
		return models.Order{}, err
	}
	l.persist(ctx, []string{orderID}, nil)
	o, _ := l.engine.GetOrder(orderID)
	return o, nil
}

func (l *Locked) TriggerStops(ctx context.Context, poolID string, reference decimal.Decimal) ([]models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := map[string]bool{}
	if book, ok := l.engine.repo.Book(poolID); ok {
		for _, o := range book.Stops() {
			before[o.ID] = true
		}
	}
	trades, err := l.engine.TriggerStops(poolID, reference)
	if err != nil {
		return nil, err
	}

	var ids []string
	for id := range before {
		if o, ok := l.engine.repo.Order(id); ok && o.Triggered {
			ids = append(ids, id)
		}
	}
	for _, t := range trades {
		ids = append(ids, t.BuyOrderID, t.SellOrderID)
	}
	l.persist(ctx, ids, trades)
	return trades, nil
}

// persist writes the current state of the given orders and the new trades.
// The engine stays the source of truth, so failures are logged, not returned.
func (l *Locked) persist(ctx context.Context, orderIDs []string, trades []models.Trade) {
	if l.journal == nil {
		return
	}
	seen := make(map[string]bool, len(orderIDs))
	orders := make([]models.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if o, ok := l.engine.GetOrder(id); ok {
			orders = append(orders, o)
		}
	}
	if err := l.journal.SaveOrders(ctx, orders); err != nil {
		l.logger.Error("failed to journal orders", zap.Int("orders", len(orders)), zap.Error(err))
	}
	if len(trades) == 0 {
		return
	}
	if err := l.journal.SaveTrades(ctx, trades); err != nil {
		l.logger.Error("failed to journal trades", zap.Int("trades", len(trades)), zap.Error(err))
	}
}

func (l *Locked) GetOrder(orderID string) (models.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine.GetOrder(orderID)
}

func (l *Locked) GetOrderBook(poolID string) (models.BookSnapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine.GetOrderBook(poolID)
}

func (l *Locked) GetUserOrders(userID string) []models.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine.GetUserOrders(userID)
}

func (l *Locked) GetRecentTrades(poolID string, limit int) []models.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine.GetRecentTrades(poolID, limit)
}

func (l *Locked) GetPriceStats(poolID string) models.PriceStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine.GetPriceStats(poolID)
}

func (l *Locked) Pools() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.engine.Pools()
}
