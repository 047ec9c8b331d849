package exchange

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/poolshare/internal/models"
	"go.uber.org/zap"
)

// Snapshot is the full engine state: every order ever admitted and every trade
type Snapshot struct {
	Orders []models.Order
	Trades []models.Trade
}

// Snapshot copies the engine state, orders in admission order and trades in
// execution order per pool.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Orders: copyOrders(e.repo.Orders()),
		Trades: []models.Trade{},
	}
	for _, b := range e.repo.Books() {
		snap.Trades = append(snap.Trades, b.trades...)
	}
	return snap
}

// Restore rebuilds books, the order index and price history from a snapshot.
// It only runs on an engine that has not admitted any order yet. Restored
// books are taken as already matched, so a snapshot whose live orders could
// still trade is rejected, as is any order whose status or filled amount
// disagrees with its trades. A rejected snapshot leaves the engine empty.
func (e *Engine) Restore(snap Snapshot) error {
	if len(e.repo.Orders()) > 0 {
		return newError(ErrState, "restore requires an empty engine")
	}

	filled := filledFromTrades(snap.Trades)
	orders := append([]models.Order(nil), snap.Orders...)
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Seq < orders[j].Seq
	})

	books := map[string]*OrderBook{}
	bookFor := func(poolID string) *OrderBook {
		b, ok := books[poolID]
		if !ok {
			b = NewOrderBook(poolID)
			books[poolID] = b
		}
		return b
	}

	seen := make(map[string]bool, len(orders))
	seq := e.seq
	for i := range orders {
		o := &orders[i]
		if o.ID == "" || o.PoolID == "" {
			return newError(ErrValidation, "snapshot order %d has no id or pool", i)
		}
		if seen[o.ID] {
			return newError(ErrValidation, "snapshot holds order %s twice", o.ID)
		}
		seen[o.ID] = true
		if !filled[o.ID].Equal(o.FilledAmount) {
			return newError(ErrValidation, "order %s filled amount %s does not match its trades", o.ID, o.FilledAmount)
		}
		if !statusAgrees(o) {
			return newError(ErrValidation, "order %s is %s with %s of %s filled", o.ID, o.Status, o.FilledAmount, o.Amount)
		}
		if o.Seq == 0 {
			o.Seq = seq + 1
		}
		if o.Seq > seq {
			seq = o.Seq
		}
		book := bookFor(o.PoolID)
		if o.Status.Live() {
			book.insert(o)
		}
	}

	trades := append([]models.Trade(nil), snap.Trades...)
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
	for _, t := range trades {
		bookFor(t.PoolID).record(t)
	}

	for _, book := range books {
		if buy, sell, crossed := e.findPair(book); crossed {
			return newError(ErrValidation, "pool %s is crossed: %s can match %s", book.PoolID, buy.ID, sell.ID)
		}
	}

	e.seq = seq
	for i := range orders {
		e.repo.SaveOrder(&orders[i])
	}
	for _, book := range books {
		e.repo.SaveBook(book)
	}

	e.logger.Info("engine state restored",
		zap.Int("orders", len(orders)),
		zap.Int("trades", len(trades)),
		zap.Int("pools", len(books)))
	return nil
}

// statusAgrees reports whether o's status is reachable with its filled amount
func statusAgrees(o *models.Order) bool {
	switch o.Status {
	case models.StatusPending:
		return o.FilledAmount.IsZero()
	case models.StatusPartial:
		return o.FilledAmount.IsPositive() && o.FilledAmount.LessThan(o.Amount)
	case models.StatusFilled:
		return o.FilledAmount.Equal(o.Amount)
	case models.StatusCancelled:
		return !o.FilledAmount.IsNegative() && o.FilledAmount.LessThan(o.Amount)
	default:
		return false
	}
}

// filledFromTrades sums, per order id, the traded amount recorded in trades
func filledFromTrades(trades []models.Trade) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, t := range trades {
		sums[t.BuyOrderID] = sums[t.BuyOrderID].Add(t.Amount)
		sums[t.SellOrderID] = sums[t.SellOrderID].Add(t.Amount)
	}
	return sums
}
