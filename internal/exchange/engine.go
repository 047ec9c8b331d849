package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/poolshare/internal/models"
	"go.uber.org/zap"
)

// Engine admits, matches and cancels orders for every pool it owns.
// It is not safe for concurrent use; wrap it in a Locked to share it.
type Engine struct {
	repo      Repository
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
	newID     func() string
	reference func(poolID string) (decimal.Decimal, bool)
	seq       uint64
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the time source used for timestamps and the 24h window
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an event observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithRepository replaces the in-memory repository
func WithRepository(r Repository) Option {
	return func(e *Engine) { e.repo = r }
}

// WithIDGenerator sets the generator for order and trade ids
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithReferencePrice injects the price two market orders trade at.
// When the source has no positive price for a pool the pool's last price
// is used.
func WithReferencePrice(src func(poolID string) (decimal.Decimal, bool)) Option {
	return func(e *Engine) { e.reference = src }
}

// New creates an engine with no books
func New(opts ...Option) *Engine {
	e := &Engine{
		repo:     NewMemoryRepository(),
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddOrder admits an order and runs matching for its pool
func (e *Engine) AddOrder(o models.Order) ([]models.Trade, error) {
	_, trades, err := e.Place(o)
	return trades, err
}

// Place admits an order, runs matching for its pool and returns the order as
// it stands after matching together with the trades produced. The order is
// stamped from the engine clock; a caller supplied timestamp is ignored.
func (e *Engine) Place(o models.Order) (models.Order, []models.Trade, error) {
	if err := validateOrder(&o); err != nil {
		e.reject(err)
		return models.Order{}, nil, err
	}
	if o.ID == "" {
		o.ID = e.newID()
	}
	if _, exists := e.repo.Order(o.ID); exists {
		err := newError(ErrValidation, "order %s already exists", o.ID)
		e.reject(err)
		return models.Order{}, nil, err
	}
	o.Timestamp = e.now()
	e.seq++
	o.Seq = e.seq
	o.Status = models.StatusPending
	o.FilledAmount = decimal.Zero
	o.AveragePrice = decimal.NullDecimal{}
	o.Triggered = false

	order := &o
	book := e.bookFor(o.PoolID)
	e.repo.SaveOrder(order)
	book.insert(order)

	e.logger.Debug("order admitted",
		zap.String("order_id", o.ID),
		zap.String("pool_id", o.PoolID),
		zap.String("side", string(o.Side)),
		zap.String("type", string(o.Type)),
		zap.Stringer("amount", o.Amount))
	e.observer.OrderAdmitted(*order)

	trades := e.match(book)
	return *order, trades, nil
}

func (e *Engine) bookFor(poolID string) *OrderBook {
	book, ok := e.repo.Book(poolID)
	if !ok {
		book = NewOrderBook(poolID)
		e.repo.SaveBook(book)
	}
	return book
}

func (e *Engine) reject(err error) {
	e.logger.Info("order rejected", zap.Error(err))
	e.observer.OrderRejected(err)
}

func (e *Engine) referencePrice(book *OrderBook) (decimal.Decimal, bool) {
	if e.reference != nil {
		// a non-positive quote counts as no quote
		if p, ok := e.reference(book.PoolID); ok && p.IsPositive() {
			return p, true
		}
	}
	return book.lastPrice.Decimal, book.lastPrice.Valid
}

// match pairs the best compatible orders until no pair can trade
func (e *Engine) match(book *OrderBook) []models.Trade {
	trades := []models.Trade{}
	for {
		buy, sell, ok := e.findPair(book)
		if !ok {
			return trades
		}
		trades = append(trades, e.execute(book, buy, sell))
	}
}

// findPair scans bids in priority order and, for each, asks in priority
// order for the first one it can match.
func (e *Engine) findPair(book *OrderBook) (buy, sell *models.Order, found bool) {
	_, hasRef := e.referencePrice(book)
	book.buys.Scan(func(b *models.Order) bool {
		book.sells.Scan(func(s *models.Order) bool {
			if canMatch(b, s, hasRef) {
				buy, sell, found = b, s, true
				return false
			}
			// asks behind a higher limit price cannot match this bid either
			return isMarket(b) || isMarket(s)
		})
		return !found
	})
	return buy, sell, found
}

func (e *Engine) execute(book *OrderBook, buy, sell *models.Order) models.Trade {
	ref, _ := e.referencePrice(book)
	amount := decimal.Min(buy.Remaining(), sell.Remaining())
	price := tradePrice(buy, sell, ref)

	fill(buy, amount, price)
	fill(sell, amount, price)
	if buy.Status == models.StatusFilled {
		book.remove(buy)
	}
	if sell.Status == models.StatusFilled {
		book.remove(sell)
	}

	trade := models.Trade{
		ID:          e.newID(),
		PoolID:      book.PoolID,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyUserID:   buy.UserID,
		SellUserID:  sell.UserID,
		Amount:      amount,
		Price:       price,
		Timestamp:   e.now(),
	}
	book.record(trade)

	e.logger.Debug("trade executed",
		zap.String("trade_id", trade.ID),
		zap.String("pool_id", trade.PoolID),
		zap.String("buy_order_id", trade.BuyOrderID),
		zap.String("sell_order_id", trade.SellOrderID),
		zap.Stringer("amount", amount),
		zap.Stringer("price", price))
	e.observer.TradeExecuted(trade)
	return trade
}

// CancelOrder withdraws a live order on behalf of its owner
func (e *Engine) CancelOrder(orderID, userID string) error {
	if orderID == "" {
		return newError(ErrValidation, "order id is required")
	}
	o, ok := e.repo.Order(orderID)
	if !ok {
		return newError(ErrNotFound, "order %s not found", orderID)
	}
	if o.UserID != userID {
		return newError(ErrAuthorization, "order %s is not owned by user %s", orderID, userID)
	}
	if !o.Status.Live() {
		return newError(ErrState, "order %s is %s", orderID, o.Status)
	}

	if book, ok := e.repo.Book(o.PoolID); ok {
		book.remove(o)
	}
	o.Status = models.StatusCancelled

	e.logger.Debug("order cancelled", zap.String("order_id", o.ID), zap.String("pool_id", o.PoolID))
	e.observer.OrderCancelled(*o)
	return nil
}

// TriggerStops activates the pool's parked stop orders whose trigger is
// crossed by reference, then runs matching. A buy stop triggers when
// reference >= stop price, a sell stop when reference <= stop price.
func (e *Engine) TriggerStops(poolID string, reference decimal.Decimal) ([]models.Trade, error) {
	if !reference.IsPositive() {
		return nil, newError(ErrValidation, "reference price must be positive")
	}
	book, ok := e.repo.Book(poolID)
	if !ok {
		return nil, newError(ErrNotFound, "pool %s not found", poolID)
	}

	for _, o := range book.Stops() {
		crossed := (o.Side == models.SideBuy && reference.GreaterThanOrEqual(o.StopPrice.Decimal)) ||
			(o.Side == models.SideSell && reference.LessThanOrEqual(o.StopPrice.Decimal))
		if !crossed {
			continue
		}
		book.remove(o)
		o.Triggered = true
		book.insert(o)
		e.logger.Debug("stop order triggered",
			zap.String("order_id", o.ID),
			zap.Stringer("stop_price", o.StopPrice.Decimal),
			zap.Stringer("reference", reference))
	}

	return e.match(book), nil
}

// GetOrder returns a copy of an order by id
func (e *Engine) GetOrder(orderID string) (models.Order, bool) {
	o, ok := e.repo.Order(orderID)
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// GetOrderBook returns a copy of a pool's book
func (e *Engine) GetOrderBook(poolID string) (models.BookSnapshot, bool) {
	book, ok := e.repo.Book(poolID)
	if !ok {
		return models.BookSnapshot{}, false
	}
	return book.Snapshot(), true
}

// GetUserOrders returns every order a user ever submitted, live or not
func (e *Engine) GetUserOrders(userID string) []models.Order {
	return copyOrders(e.repo.UserOrders(userID))
}

// GetRecentTrades returns up to limit trades of a pool, newest first.
// A non-positive limit returns the whole log.
func (e *Engine) GetRecentTrades(poolID string, limit int) []models.Trade {
	book, ok := e.repo.Book(poolID)
	if !ok {
		return []models.Trade{}
	}
	n := len(book.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Trade, 0, n)
	for i := len(book.trades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, book.trades[i])
	}
	return out
}

// GetPriceStats derives a pool's 24h statistics
func (e *Engine) GetPriceStats(poolID string) models.PriceStats {
	book, ok := e.repo.Book(poolID)
	if !ok {
		return models.PriceStats{}
	}
	return priceStats(book, e.now())
}

// Pools returns the ids of every pool with a book
func (e *Engine) Pools() []string {
	books := e.repo.Books()
	ids := make([]string, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.PoolID)
	}
	return ids
}
