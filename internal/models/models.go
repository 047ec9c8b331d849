package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the execution style of an order
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
	TypeStop   OrderType = "STOP"
)

// Status is the lifecycle state of an order
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
)

// Live reports whether an order in this status may still rest in a book
func (s Status) Live() bool {
	return s == StatusPending || s == StatusPartial
}

// User represents a registered trader
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Order represents a buy or sell intent for pool shares
type Order struct {
	ID           string              `json:"id"`
	PoolID       string              `json:"pool_id"`
	UserID       string              `json:"user_id"`
	Side         Side                `json:"side"`
	Type         OrderType           `json:"order_type"`
	Amount       decimal.Decimal     `json:"amount"`
	Price        decimal.NullDecimal `json:"price"`
	StopPrice    decimal.NullDecimal `json:"stop_price"`
	Timestamp    time.Time           `json:"timestamp"` // Used for time priority
	Status       Status              `json:"status"`
	FilledAmount decimal.Decimal     `json:"filled_amount"`
	AveragePrice decimal.NullDecimal `json:"average_price"`
	Triggered    bool                `json:"triggered,omitempty"` // STOP orders only
	Seq          uint64              `json:"-"`
}

// Remaining returns the quantity not yet matched
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.FilledAmount)
}

// Trade represents an executed match between a buy and a sell order
type Trade struct {
	ID          string          `json:"id"`
	PoolID      string          `json:"pool_id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyUserID   string          `json:"buy_user_id"`
	SellUserID  string          `json:"sell_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PricePoint is one entry of a pool's price history
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceStats holds the rolling 24h statistics of a pool.
// Every field is nil when there is not enough history to derive it.
type PriceStats struct {
	LastPrice      *decimal.Decimal `json:"last_price,omitempty"`
	PriceChange24h *decimal.Decimal `json:"price_change_24h,omitempty"` // percent
	High24h        *decimal.Decimal `json:"high_24h,omitempty"`
	Low24h         *decimal.Decimal `json:"low_24h,omitempty"`
	Volume24h      *decimal.Decimal `json:"volume_24h,omitempty"`
}

// BookSnapshot is a read-only copy of a pool's order book
type BookSnapshot struct {
	PoolID       string              `json:"pool_id"`
	BuyOrders    []Order             `json:"buy_orders"`
	SellOrders   []Order             `json:"sell_orders"`
	StopOrders   []Order             `json:"stop_orders"`
	LastPrice    decimal.NullDecimal `json:"last_price"`
	PriceHistory []PricePoint        `json:"price_history"`
}
