package exchange

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/xtrntr/poolshare/internal/models"
)

const pool = "pool-1"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable engine clock
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(opts ...Option) (*Engine, *testClock) {
	clock := &testClock{now: t0}
	n := 0
	base := []Option{
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	}
	return New(append(base, opts...)...), clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func limitOrder(user string, side models.Side, amount, price string) models.Order {
	return models.Order{
		PoolID: pool,
		UserID: user,
		Side:   side,
		Type:   models.TypeLimit,
		Amount: dec(amount),
		Price:  decimal.NewNullDecimal(dec(price)),
	}
}

func marketOrder(user string, side models.Side, amount string) models.Order {
	return models.Order{
		PoolID: pool,
		UserID: user,
		Side:   side,
		Type:   models.TypeMarket,
		Amount: dec(amount),
	}
}

func stopOrder(user string, side models.Side, amount, stop string) models.Order {
	return models.Order{
		PoolID:    pool,
		UserID:    user,
		Side:      side,
		Type:      models.TypeStop,
		Amount:    dec(amount),
		StopPrice: decimal.NewNullDecimal(dec(stop)),
	}
}

func assertDecimal(t testing.TB, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

func ids(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
