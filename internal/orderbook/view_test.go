package orderbook_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/orderbook"
)

func seedBidLevels(t *testing.T, ob *orderbook.OrderBook) {
	t.Helper()
	prices := []int64{130, 120, 110}
	for i, price := range prices {
		require.NoError(t, ob.AddEntry(int64(i+1), 0, time.Now(), btcUSD, entry(model.New, model.Bid, price, 10)))
	}
}

func TestViewLevelFilterStopsAtBound(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	seedBidLevels(t, ob)

	f, err := orderbook.Parse("Level LE 2")
	require.NoError(t, err)

	var seen []int64
	walk := orderbook.NewView(ob, btcUSD, true, []*orderbook.Filter{f})
	walk(func(level int, g *orderbook.QuoteGroup) bool {
		seen = append(seen, g.Price)
		return true
	})

	assert.Equal(t, []int64{130, 120}, seen)
}

func TestViewPriceFilterNarrowsGroups(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	seedBidLevels(t, ob)

	f, err := orderbook.Parse("Price GE 120")
	require.NoError(t, err)

	var seen []int64
	walk := orderbook.NewView(ob, btcUSD, true, []*orderbook.Filter{f})
	walk(func(level int, g *orderbook.QuoteGroup) bool {
		seen = append(seen, g.Price)
		return true
	})

	assert.Equal(t, []int64{130, 120}, seen)
}

func TestViewAggregateVolumeAccumulatesUntilThreshold(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 130, 10)))
	require.NoError(t, ob.AddEntry(2, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 120, 10)))
	require.NoError(t, ob.AddEntry(3, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 110, 10)))

	f, err := orderbook.Parse("AggregateVolume GE 20")
	require.NoError(t, err)

	var volumes []int64
	walk := orderbook.NewView(ob, btcUSD, true, []*orderbook.Filter{f})
	walk(func(level int, g *orderbook.QuoteGroup) bool {
		volumes = append(volumes, g.Aggregate(false).TotalVolume)
		return true
	})

	require.Len(t, volumes, 1)
	assert.Equal(t, int64(20), volumes[0])
}
