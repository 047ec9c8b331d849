package exchange

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
	"github.com/xtrntr/poolshare/internal/models"
)

// OrderBook holds the live orders, trade log and price history of one pool
type OrderBook struct {
	PoolID string

	buys  *btree.BTreeG[*models.Order]
	sells *btree.BTreeG[*models.Order]
	stops []*models.Order // parked stop orders in admission order

	lastPrice    decimal.NullDecimal
	priceHistory []models.PricePoint
	trades       []models.Trade // oldest first
}

// NewOrderBook creates an empty book for a pool
func NewOrderBook(poolID string) *OrderBook {
	opts := btree.Options{NoLocks: true}
	return &OrderBook{
		PoolID: poolID,
		buys:   btree.NewBTreeGOptions(buyLess, opts),
		sells:  btree.NewBTreeGOptions(sellLess, opts),
	}
}

// buyLess sorts bids: market orders first, then highest price, then earliest
func buyLess(a, b *models.Order) bool {
	am, bm := isMarket(a), isMarket(b)
	if am != bm {
		return am
	}
	if !am {
		if c := a.Price.Decimal.Cmp(b.Price.Decimal); c != 0 {
			return c > 0
		}
	}
	return earlier(a, b)
}

// sellLess sorts asks: market orders first, then lowest price, then earliest
func sellLess(a, b *models.Order) bool {
	am, bm := isMarket(a), isMarket(b)
	if am != bm {
		return am
	}
	if !am {
		if c := a.Price.Decimal.Cmp(b.Price.Decimal); c != 0 {
			return c < 0
		}
	}
	return earlier(a, b)
}

func earlier(a, b *models.Order) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Seq < b.Seq
}

func (b *OrderBook) side(s models.Side) *btree.BTreeG[*models.Order] {
	if s == models.SideBuy {
		return b.buys
	}
	return b.sells
}

// insert places a live order on its side, or parks it when it is an untriggered stop
func (b *OrderBook) insert(o *models.Order) {
	if parked(o) {
		b.stops = append(b.stops, o)
		return
	}
	b.side(o.Side).Set(o)
}

// remove takes o off the book. It reports whether o was present.
func (b *OrderBook) remove(o *models.Order) bool {
	if parked(o) {
		for i, s := range b.stops {
			if s == o {
				b.stops = append(b.stops[:i], b.stops[i+1:]...)
				return true
			}
		}
		return false
	}
	_, ok := b.side(o.Side).Delete(o)
	return ok
}

// record appends a trade to the log and moves the last price
func (b *OrderBook) record(t models.Trade) {
	b.trades = append(b.trades, t)
	b.lastPrice = decimal.NewNullDecimal(t.Price)
	b.priceHistory = append(b.priceHistory, models.PricePoint{Price: t.Price, Timestamp: t.Timestamp})
}

// Buys returns the live buy orders in priority order
func (b *OrderBook) Buys() []*models.Order {
	return b.buys.Items()
}

// Sells returns the live sell orders in priority order
func (b *OrderBook) Sells() []*models.Order {
	return b.sells.Items()
}

// Stops returns the parked stop orders in admission order
func (b *OrderBook) Stops() []*models.Order {
	return append([]*models.Order(nil), b.stops...)
}

// LastPrice returns the price of the most recent trade
func (b *OrderBook) LastPrice() decimal.NullDecimal {
	return b.lastPrice
}

// Snapshot copies the book for callers outside the engine
func (b *OrderBook) Snapshot() models.BookSnapshot {
	return models.BookSnapshot{
		PoolID:       b.PoolID,
		BuyOrders:    copyOrders(b.buys.Items()),
		SellOrders:   copyOrders(b.sells.Items()),
		StopOrders:   copyOrders(b.stops),
		LastPrice:    b.lastPrice,
		PriceHistory: append([]models.PricePoint{}, b.priceHistory...),
	}
}

func copyOrders(src []*models.Order) []models.Order {
	out := make([]models.Order, 0, len(src))
	for _, o := range src {
		out = append(out, *o)
	}
	return out
}
