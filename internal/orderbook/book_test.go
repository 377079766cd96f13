package orderbook_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/orderbook"
	"github.com/sawpanic/mdgateway/internal/result"
)

var btcUSD = model.NewCurrencyPair(model.BTC, model.USD)

func entry(updateType model.UpdateType, entryType model.QuoteType, price, volume int64) model.Entry {
	return model.Entry{
		UpdateType:      updateType,
		EntryType:       entryType,
		Price:           price,
		Volume:          volume,
		AdptReceiveTime: time.Now(),
	}
}

func TestAddEntrySortsBidsDescending(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 120, 50)))
	require.NoError(t, ob.AddEntry(2, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 130, 50)))
	require.NoError(t, ob.AddEntry(3, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 120, 100)))

	groups := ob.GetLevels(btcUSD, true, 0)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(130), groups[0].Price)
	assert.Equal(t, int64(120), groups[1].Price)

	level2 := groups[1].Quotes()
	require.Len(t, level2, 2)
	assert.Equal(t, int64(100), level2[0].Volume, "equal price ties break by greater volume first")
}

func TestAddEntrySortsAsksAscending(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Offer, 131, 10)))
	require.NoError(t, ob.AddEntry(2, 0, time.Now(), btcUSD, entry(model.New, model.Offer, 129, 10)))

	groups := ob.GetLevels(btcUSD, false, 0)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(129), groups[0].Price)
	assert.Equal(t, int64(131), groups[1].Price)
}

func TestAddEntryUpdateReplacesByRefKey(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 120, 50)))

	require.NoError(t, ob.AddEntry(2, 1, time.Now(), btcUSD, entry(model.Update, model.Bid, 125, 60)))

	groups := ob.GetLevels(btcUSD, true, 0)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(125), groups[0].Price)
}

func TestAddEntryUpdateMissingRefKeyIsStateConflict(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	err := ob.AddEntry(1, 99, time.Now(), btcUSD, entry(model.Update, model.Bid, 120, 50))
	require.Error(t, err)
	assert.True(t, result.Is(err, result.KindStateConflict))
}

func TestAddEntryDeleteRemovesQuote(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 120, 50)))
	require.NoError(t, ob.AddEntry(2, 1, time.Now(), btcUSD, entry(model.Delete, model.Bid, 0, 0)))

	_, ok := ob.GetBestQuote(btcUSD, true, nil)
	assert.False(t, ok)
}

func TestGetBestQuoteSkipsZeroPrice(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 0, 0)))
	require.NoError(t, ob.AddEntry(2, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 120, 50)))

	best, ok := ob.GetBestQuote(btcUSD, true, nil)
	require.True(t, ok)
	assert.Equal(t, int64(120), best.Price)
}

func TestMidPrice(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 100, 50)))
	require.NoError(t, ob.AddEntry(2, 0, time.Now(), btcUSD, entry(model.New, model.Offer, 200, 50)))

	mid, ok := ob.MidPrice(btcUSD)
	require.True(t, ok)
	assert.Equal(t, int64(150), mid)
}

func TestMidPriceEmptySide(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	_, ok := ob.MidPrice(btcUSD)
	assert.False(t, ok)
}

func TestGetLevelsLimit(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	for i, price := range []int64{100, 110, 120, 130} {
		require.NoError(t, ob.AddEntry(int64(i+1), 0, time.Now(), btcUSD, entry(model.New, model.Bid, price, 10)))
	}
	groups := ob.GetLevels(btcUSD, true, 2)
	assert.Len(t, groups, 2)
	assert.Equal(t, int64(130), groups[0].Price)
	assert.Equal(t, int64(120), groups[1].Price)
}

func TestClearInvalidatesEverything(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 100, 50)))
	ob.Clear()

	_, ok := ob.GetBestQuote(btcUSD, true, nil)
	assert.False(t, ok)
	assert.Nil(t, ob.LastQuote())
}

func TestCleanupEvictsStaleQuotes(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	stale := entry(model.New, model.Bid, 100, 50)
	stale.AdptReceiveTime = time.Now().Add(-time.Hour)
	require.NoError(t, ob.AddEntry(1, 0, time.Now().Add(-time.Hour), btcUSD, stale))
	require.NoError(t, ob.AddEntry(2, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 110, 50)))

	removed := ob.Cleanup(btcUSD, true, time.Minute)
	assert.Equal(t, 1, removed)

	groups := ob.GetLevels(btcUSD, true, 0)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(110), groups[0].Price)
}

func TestDueForCleanupRespectsInterval(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	assert.True(t, ob.DueForCleanup(btcUSD, true, time.Hour))
	assert.False(t, ob.DueForCleanup(btcUSD, true, time.Hour), "second call within interval is not due")
}

func TestInstrumentsListsTrackedPairs(t *testing.T) {
	ob := orderbook.New(zerolog.Nop())
	require.NoError(t, ob.AddEntry(1, 0, time.Now(), btcUSD, entry(model.New, model.Bid, 100, 50)))
	assert.Contains(t, ob.Instruments(), btcUSD)
}
