package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/poolshare/internal/models"
)

func cross(t *testing.T, e *Engine, amount, price string) {
	t.Helper()
	_, err := e.AddOrder(limitOrder("seller", models.SideSell, amount, price))
	require.NoError(t, err)
	trades, err := e.AddOrder(limitOrder("buyer", models.SideBuy, amount, price))
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

func TestPriceStats_NoHistory(t *testing.T) {
	e, _ := newTestEngine()
	assert.Equal(t, models.PriceStats{}, e.GetPriceStats(pool))

	_, err := e.AddOrder(limitOrder("alice", models.SideBuy, "1", "5"))
	require.NoError(t, err)
	assert.Equal(t, models.PriceStats{}, e.GetPriceStats(pool))
}

func TestPriceStats_AfterFullMatch(t *testing.T) {
	e, _ := newTestEngine()
	_, err := e.AddOrder(limitOrder("alice", models.SideBuy, "10", "5.0"))
	require.NoError(t, err)
	_, err = e.AddOrder(limitOrder("bob", models.SideSell, "10", "4.0"))
	require.NoError(t, err)

	stats := e.GetPriceStats(pool)
	require.NotNil(t, stats.LastPrice)
	assertDecimal(t, "4.0", *stats.LastPrice)
	require.NotNil(t, stats.Volume24h)
	assert.True(t, stats.Volume24h.GreaterThanOrEqual(dec("10")))
	require.NotNil(t, stats.PriceChange24h)
	assertDecimal(t, "0", *stats.PriceChange24h)
	assertDecimal(t, "4", *stats.High24h)
	assertDecimal(t, "4", *stats.Low24h)
}

func TestPriceStats_RollingWindow(t *testing.T) {
	e, clock := newTestEngine()

	cross(t, e, "10", "4")
	clock.Advance(25 * time.Hour)
	cross(t, e, "2", "6")
	clock.Advance(time.Hour)
	cross(t, e, "1", "3")

	stats := e.GetPriceStats(pool)
	assertDecimal(t, "3", *stats.LastPrice)
	assertDecimal(t, "6", *stats.High24h)
	assertDecimal(t, "3", *stats.Low24h)
	assertDecimal(t, "3", *stats.Volume24h)
	assertDecimal(t, "-50", *stats.PriceChange24h)
}

func TestPriceStats_StaleHistory(t *testing.T) {
	e, clock := newTestEngine()

	cross(t, e, "1", "8")
	clock.Advance(48 * time.Hour)

	stats := e.GetPriceStats(pool)
	require.NotNil(t, stats.LastPrice)
	assertDecimal(t, "8", *stats.LastPrice)
	assert.Nil(t, stats.PriceChange24h)
	assert.Nil(t, stats.High24h)
	assert.Nil(t, stats.Low24h)
	assert.Nil(t, stats.Volume24h)
}
