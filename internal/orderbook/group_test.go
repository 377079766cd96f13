package orderbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/mdgateway/internal/model"
)

func TestQuoteGroupAggregate(t *testing.T) {
	g := newQuoteGroup(65000)
	g.add(newQuoteFromEntry(1, 0, time.Now(), model.Entry{Price: 65000, Volume: 10, MinQty: 1}))
	g.add(newQuoteFromEntry(2, 0, time.Now(), model.Entry{Price: 65000, Volume: 30, MinQty: 2}))

	av := g.Aggregate(false)
	assert.Equal(t, int64(65000), av.MinPrice)
	assert.Equal(t, int64(65000), av.MaxPrice)
	assert.Equal(t, int64(40), av.TotalVolume)
	assert.Equal(t, int64(30), av.MaxVolume)
	assert.Equal(t, int64(1), av.MinQty)
	assert.Len(t, g.Quotes(), 2)
}

func TestQuoteGroupAggregateUnusedOnly(t *testing.T) {
	g := newQuoteGroup(65000)
	q1 := newQuoteFromEntry(1, 0, time.Now(), model.Entry{Price: 65000, Volume: 10})
	q2 := newQuoteFromEntry(2, 0, time.Now(), model.Entry{Price: 65000, Volume: 30})
	g.add(q1)
	g.add(q2)
	q1.SetUsed()

	av := g.Aggregate(true)
	assert.Equal(t, int64(30), av.TotalVolume, "used quote excluded from unused-only aggregate")

	all := g.Aggregate(false)
	assert.Equal(t, int64(40), all.TotalVolume)
}

func TestQuoteGroupCacheInvalidatedOnAdd(t *testing.T) {
	g := newQuoteGroup(1)
	g.add(newQuoteFromEntry(1, 0, time.Now(), model.Entry{Price: 1, Volume: 5}))
	first := g.Aggregate(false)
	assert.Equal(t, int64(5), first.TotalVolume)

	g.add(newQuoteFromEntry(2, 0, time.Now(), model.Entry{Price: 1, Volume: 5}))
	second := g.Aggregate(false)
	assert.Equal(t, int64(10), second.TotalVolume, "stale cache must not survive a new insert")
}
