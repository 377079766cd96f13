package orderbook

import (
	"sync"
	"sync/atomic"
)

// AggregateValues summarizes one QuoteGroup, lazily computed and
// cached until the next mutation invalidates it.
type AggregateValues struct {
	MinPrice    int64
	MaxPrice    int64
	AvgPrice    int64
	MaxVolume   int64
	TotalVolume int64
	MinQty      int64
}

// QuoteGroup is all quotes at one price level on one side of one
// instrument: a lock-protected vector plus two atomically-swappable
// aggregate caches (all quotes, and unused-only).
type QuoteGroup struct {
	Price int64

	mu        sync.Mutex
	quotes    []*Quote
	allAgg    atomic.Pointer[AggregateValues]
	unusedAgg atomic.Pointer[AggregateValues]
}

func newQuoteGroup(price int64) *QuoteGroup {
	return &QuoteGroup{Price: price}
}

func (g *QuoteGroup) add(q *Quote) {
	g.mu.Lock()
	g.quotes = append(g.quotes, q)
	g.allAgg.Store(nil)
	g.unusedAgg.Store(nil)
	g.mu.Unlock()
}

// Quotes returns a snapshot copy of the group's members.
func (g *QuoteGroup) Quotes() []*Quote {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Quote, len(g.quotes))
	copy(out, g.quotes)
	return out
}

// Aggregate returns the cached AggregateValues, computing and storing
// it under the group lock on a cache miss.
func (g *QuoteGroup) Aggregate(unusedOnly bool) AggregateValues {
	cell := &g.allAgg
	if unusedOnly {
		cell = &g.unusedAgg
	}
	if cached := cell.Load(); cached != nil {
		return *cached
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if cached := cell.Load(); cached != nil {
		return *cached
	}
	av := computeAggregate(g.quotes, unusedOnly)
	cell.Store(&av)
	return av
}

func computeAggregate(quotes []*Quote, unusedOnly bool) AggregateValues {
	var av AggregateValues
	count := int64(0)
	var sumPrice int64

	for _, q := range quotes {
		if unusedOnly && q.Used() {
			continue
		}
		if count == 0 {
			av.MinPrice, av.MaxPrice = q.Price, q.Price
			av.MinQty = q.MinQty
		}
		if q.Price < av.MinPrice {
			av.MinPrice = q.Price
		}
		if q.Price > av.MaxPrice {
			av.MaxPrice = q.Price
		}
		if q.Volume > av.MaxVolume {
			av.MaxVolume = q.Volume
		}
		if q.MinQty < av.MinQty {
			av.MinQty = q.MinQty
		}
		av.TotalVolume += q.Volume
		sumPrice += q.Price
		count++
	}

	if count > 0 {
		av.AvgPrice = sumPrice / count
	}
	return av
}
