package exchange

import (
	"github.com/shopspring/decimal"
	"github.com/xtrntr/poolshare/internal/models"
)

// validateOrder checks the admission contract of a new order
func validateOrder(o *models.Order) error {
	if o.PoolID == "" {
		return newError(ErrValidation, "pool id is required")
	}
	if o.UserID == "" {
		return newError(ErrValidation, "user id is required")
	}
	if o.Side != models.SideBuy && o.Side != models.SideSell {
		return newError(ErrValidation, "side must be BUY or SELL, got %q", o.Side)
	}
	if !o.Amount.IsPositive() {
		return newError(ErrValidation, "amount must be positive")
	}

	switch o.Type {
	case models.TypeLimit:
		if !o.Price.Valid {
			return newError(ErrValidation, "limit orders require a price")
		}
	case models.TypeMarket:
		if o.Price.Valid {
			return newError(ErrValidation, "market orders must not carry a price")
		}
	case models.TypeStop:
		if !o.StopPrice.Valid {
			return newError(ErrValidation, "stop orders require a stop price")
		}
		if !o.StopPrice.Decimal.IsPositive() {
			return newError(ErrValidation, "stop price must be positive")
		}
	default:
		return newError(ErrValidation, "order type must be MARKET, LIMIT or STOP, got %q", o.Type)
	}

	if o.Price.Valid && !o.Price.Decimal.IsPositive() {
		return newError(ErrValidation, "price must be positive")
	}
	return nil
}

// isMarket reports whether o matches at any price. A triggered stop without
// a limit price behaves as a market order.
func isMarket(o *models.Order) bool {
	switch o.Type {
	case models.TypeMarket:
		return true
	case models.TypeStop:
		return o.Triggered && !o.Price.Valid
	}
	return false
}

// parked reports whether o is a stop order still waiting for its trigger
func parked(o *models.Order) bool {
	return o.Type == models.TypeStop && !o.Triggered
}

// canMatch reports whether buy and sell may trade. Two market orders need a
// reference price to trade at.
func canMatch(buy, sell *models.Order, hasReference bool) bool {
	if parked(buy) || parked(sell) {
		return false
	}
	bm, sm := isMarket(buy), isMarket(sell)
	switch {
	case bm && sm:
		return hasReference
	case bm || sm:
		return true
	default:
		return buy.Price.Decimal.GreaterThanOrEqual(sell.Price.Decimal)
	}
}

// tradePrice resolves the execution price of a matched pair. Limit against
// limit trades at the sell order's price.
func tradePrice(buy, sell *models.Order, reference decimal.Decimal) decimal.Decimal {
	bm, sm := isMarket(buy), isMarket(sell)
	switch {
	case bm && sm:
		return reference
	case sm:
		return buy.Price.Decimal
	default:
		return sell.Price.Decimal
	}
}

// fill records a match of amount at price against o
func fill(o *models.Order, amount, price decimal.Decimal) {
	filled := o.FilledAmount.Add(amount)
	notional := price.Mul(amount)
	if o.AveragePrice.Valid {
		notional = notional.Add(o.AveragePrice.Decimal.Mul(o.FilledAmount))
	}
	o.AveragePrice = decimal.NewNullDecimal(notional.Div(filled))
	o.FilledAmount = filled

	switch {
	case filled.Equal(o.Amount):
		o.Status = models.StatusFilled
	case filled.IsPositive():
		o.Status = models.StatusPartial
	}
}
