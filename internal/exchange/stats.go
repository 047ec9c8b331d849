package exchange

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/poolshare/internal/models"
)

// StatsWindow is the span covered by the rolling price statistics
const StatsWindow = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// priceStats derives the rolling statistics of a book as of now.
// Fields stay nil when the history cannot support them.
func priceStats(book *OrderBook, now time.Time) models.PriceStats {
	var stats models.PriceStats
	if !book.lastPrice.Valid {
		return stats
	}
	last := book.lastPrice.Decimal
	stats.LastPrice = &last

	since := now.Add(-StatsWindow)
	var (
		earliest  *decimal.Decimal
		high, low decimal.Decimal
		volume    decimal.Decimal
		seen      bool
	)
	for i := range book.priceHistory {
		p := book.priceHistory[i]
		if p.Timestamp.Before(since) || p.Timestamp.After(now) {
			continue
		}
		if earliest == nil {
			earliest = &p.Price
		}
		if !seen || p.Price.GreaterThan(high) {
			high = p.Price
		}
		if !seen || p.Price.LessThan(low) {
			low = p.Price
		}
		seen = true
	}
	for _, t := range book.trades {
		if t.Timestamp.Before(since) || t.Timestamp.After(now) {
			continue
		}
		volume = volume.Add(t.Amount)
	}

	if !seen {
		return stats
	}
	stats.High24h = &high
	stats.Low24h = &low
	stats.Volume24h = &volume
	if earliest.IsPositive() {
		change := last.Sub(*earliest).Div(*earliest).Mul(hundred).Round(4)
		stats.PriceChange24h = &change
	}
	return stats
}
