package exchange

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/poolshare/internal/models"
	"pgregory.net/rapid"
)

var users = []string{"u1", "u2", "u3"}

func drawOrder(t *rapid.T) models.Order {
	side := rapid.SampledFrom([]models.Side{models.SideBuy, models.SideSell}).Draw(t, "side")
	kind := rapid.SampledFrom([]models.OrderType{
		models.TypeLimit, models.TypeLimit, models.TypeLimit, models.TypeMarket, models.TypeStop,
	}).Draw(t, "type")
	o := models.Order{
		PoolID: rapid.SampledFrom([]string{"pool-a", "pool-b"}).Draw(t, "pool"),
		UserID: rapid.SampledFrom(users).Draw(t, "user"),
		Side:   side,
		Type:   kind,
		Amount: decimal.NewFromInt(rapid.Int64Range(1, 20).Draw(t, "amount")),
	}
	price := decimal.NewFromInt(rapid.Int64Range(1, 10).Draw(t, "price"))
	switch kind {
	case models.TypeLimit:
		o.Price = decimal.NewNullDecimal(price)
	case models.TypeStop:
		o.StopPrice = decimal.NewNullDecimal(price)
		if rapid.Bool().Draw(t, "stopLimit") {
			o.Price = decimal.NewNullDecimal(price)
		}
	}
	return o
}

// checkInvariants verifies every observable invariant of the engine state
func checkInvariants(t *rapid.T, e *Engine) {
	var trades []models.Trade
	for _, b := range e.repo.Books() {
		trades = append(trades, b.trades...)
		checkBook(t, e, b)
	}

	filled := filledFromTrades(trades)
	for _, o := range e.repo.Orders() {
		if !filled[o.ID].Equal(o.FilledAmount) {
			t.Fatalf("order %s: trades sum %s, filled %s", o.ID, filled[o.ID], o.FilledAmount)
		}
		if o.FilledAmount.IsNegative() || o.FilledAmount.GreaterThan(o.Amount) {
			t.Fatalf("order %s: filled %s outside [0, %s]", o.ID, o.FilledAmount, o.Amount)
		}
		full := o.FilledAmount.Equal(o.Amount)
		if full != (o.Status == models.StatusFilled) {
			t.Fatalf("order %s: status %s with filled %s of %s", o.ID, o.Status, o.FilledAmount, o.Amount)
		}
		if o.Status == models.StatusPartial && !o.FilledAmount.IsPositive() {
			t.Fatalf("order %s: partial without fills", o.ID)
		}
		if o.Status == models.StatusPending && !o.FilledAmount.IsZero() {
			t.Fatalf("order %s: pending with fills", o.ID)
		}
	}
}

func checkBook(t *rapid.T, e *Engine, b *OrderBook) {
	check := func(orders []*models.Order, less func(a, b *models.Order) bool) {
		for i, o := range orders {
			if !o.Status.Live() {
				t.Fatalf("pool %s: %s order %s rests in the book", b.PoolID, o.Status, o.ID)
			}
			if i > 0 && !less(orders[i-1], o) {
				t.Fatalf("pool %s: orders %s and %s out of priority", b.PoolID, orders[i-1].ID, o.ID)
			}
		}
	}
	check(b.Buys(), buyLess)
	check(b.Sells(), sellLess)

	// limit prices: bids descending, asks ascending
	var prev *models.Order
	for _, o := range b.Buys() {
		if isMarket(o) {
			continue
		}
		if prev != nil && prev.Price.Decimal.LessThan(o.Price.Decimal) {
			t.Fatalf("pool %s: bids not descending", b.PoolID)
		}
		prev = o
	}
	prev = nil
	for _, o := range b.Sells() {
		if isMarket(o) {
			continue
		}
		if prev != nil && prev.Price.Decimal.GreaterThan(o.Price.Decimal) {
			t.Fatalf("pool %s: asks not ascending", b.PoolID)
		}
		prev = o
	}

	_, hasRef := e.referencePrice(b)
	for _, buy := range b.Buys() {
		for _, sell := range b.Sells() {
			if canMatch(buy, sell, hasRef) {
				t.Fatalf("pool %s: crossed book, %s can match %s", b.PoolID, buy.ID, sell.ID)
			}
		}
	}
}

func TestProperty_EngineInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, clock := newTestEngine()
		var admitted []string

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0, 1:
				if len(admitted) == 0 {
					continue
				}
				id := rapid.SampledFrom(admitted).Draw(t, "cancel")
				o, _ := e.GetOrder(id)
				err := e.CancelOrder(id, o.UserID)
				if o.Status.Live() && err != nil {
					t.Fatalf("cancel of live order %s failed: %v", id, err)
				}
				if !o.Status.Live() && !errors.Is(err, ErrState) {
					t.Fatalf("cancel of %s order %s: %v", o.Status, id, err)
				}
			case 2:
				ref := decimal.NewFromInt(rapid.Int64Range(1, 10).Draw(t, "reference"))
				poolID := rapid.SampledFrom([]string{"pool-a", "pool-b"}).Draw(t, "triggerPool")
				if _, err := e.TriggerStops(poolID, ref); err != nil && !errors.Is(err, ErrNotFound) {
					t.Fatalf("trigger: %v", err)
				}
			default:
				placed, _, err := e.Place(drawOrder(t))
				if err != nil {
					t.Fatalf("place: %v", err)
				}
				admitted = append(admitted, placed.ID)
			}
			clock.Advance(rapid.SampledFrom([]time.Duration{0, time.Millisecond, time.Second}).Draw(t, "tick"))
			checkInvariants(t, e)
		}
	})
}

func TestProperty_CancelIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, _ := newTestEngine()
		o := drawOrder(t)
		o.Type = models.TypeLimit
		o.Price = decimal.NewNullDecimal(decimal.NewFromInt(rapid.Int64Range(1, 10).Draw(t, "price")))
		placed, _, err := e.Place(o)
		if err != nil {
			t.Fatalf("place: %v", err)
		}
		if err := e.CancelOrder(placed.ID, placed.UserID); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		if err := e.CancelOrder(placed.ID, placed.UserID); !errors.Is(err, ErrState) {
			t.Fatalf("second cancel: expected state error, got %v", err)
		}
		checkInvariants(t, e)
	})
}

func TestProperty_LimitPriceIsSellPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, _ := newTestEngine()
		buyPrice := rapid.Int64Range(1, 100).Draw(t, "buyPrice")
		sellPrice := rapid.Int64Range(1, buyPrice).Draw(t, "sellPrice")
		buy := limitOrder("alice", models.SideBuy, "3", fmt.Sprint(buyPrice))
		sell := limitOrder("bob", models.SideSell, "3", fmt.Sprint(sellPrice))

		first, second := buy, sell
		if rapid.Bool().Draw(t, "sellFirst") {
			first, second = sell, buy
		}
		if _, err := e.AddOrder(first); err != nil {
			t.Fatalf("first: %v", err)
		}
		trades, err := e.AddOrder(second)
		if err != nil {
			t.Fatalf("second: %v", err)
		}
		if len(trades) != 1 {
			t.Fatalf("expected one trade, got %d", len(trades))
		}
		if !trades[0].Price.Equal(decimal.NewFromInt(sellPrice)) {
			t.Fatalf("trade price %s, sell price %d", trades[0].Price, sellPrice)
		}
	})
}
