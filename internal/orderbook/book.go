package orderbook

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/result"
)

type sideBook struct {
	mu     sync.RWMutex
	quotes []*Quote
}

type instrumentBook struct {
	bid sideBook
	ask sideBook
}

type cleanupKey struct {
	cp    model.CurrencyPair
	isBid bool
}

// OrderBook is the per-instrument, per-side price-sorted engine. The
// outer map has its own lock; each side of each instrument has its
// own, so readers/writers of distinct (instrument, side) pairs never
// contend with each other.
type OrderBook struct {
	mu          sync.RWMutex
	books       map[model.CurrencyPair]*instrumentBook
	lastCleanMu sync.Mutex
	lastCleanup map[cleanupKey]time.Time
	lastQuote   atomic.Pointer[Quote]
	log         zerolog.Logger
}

func New(logger zerolog.Logger) *OrderBook {
	return &OrderBook{
		books:       make(map[model.CurrencyPair]*instrumentBook),
		lastCleanup: make(map[cleanupKey]time.Time),
		log:         logger.With().Str("component", "orderbook").Logger(),
	}
}

func (ob *OrderBook) getOrCreate(cp model.CurrencyPair) *instrumentBook {
	ob.mu.RLock()
	ib, ok := ob.books[cp]
	ob.mu.RUnlock()
	if ok {
		return ib
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	if ib, ok := ob.books[cp]; ok {
		return ib
	}
	ib = &instrumentBook{}
	ob.books[cp] = ib
	return ib
}

func sideOf(ib *instrumentBook, isBid bool) *sideBook {
	if isBid {
		return &ib.bid
	}
	return &ib.ask
}

// AddEntry applies one reconciled entry to the book. For Update/Delete
// it removes the quote keyed by refKey (invalidating it first); for
// anything but Delete it inserts a new quote in sorted position. An
// unmatched refKey is a non-fatal StateConflict: the update is dropped
// and the error returned for the caller to log.
func (ob *OrderBook) AddEntry(key, refKey int64, recvTime time.Time, cp model.CurrencyPair, entry model.Entry) error {
	ib := ob.getOrCreate(cp)
	isBid := entry.EntryType == model.Bid
	side := sideOf(ib, isBid)

	side.mu.Lock()
	defer side.mu.Unlock()

	if entry.UpdateType == model.Update || entry.UpdateType == model.Delete {
		idx := indexOfKey(side.quotes, refKey)
		if idx < 0 {
			return result.New(result.KindStateConflict,
				fmt.Sprintf("%s: %s refKey %d has no matching quote", cp, entry.UpdateType, refKey))
		}
		side.quotes[idx].SetInvalid(recvTime.UnixNano())
		side.quotes = append(side.quotes[:idx], side.quotes[idx+1:]...)
	}

	if entry.UpdateType != model.Delete {
		q := newQuoteFromEntry(key, refKey, recvTime, entry)
		pos := insertionIndex(side.quotes, q, isBid)
		side.quotes = append(side.quotes, nil)
		copy(side.quotes[pos+1:], side.quotes[pos:])
		side.quotes[pos] = q
		ob.lastQuote.Store(q)
	}
	return nil
}

func indexOfKey(quotes []*Quote, key int64) int {
	for i, q := range quotes {
		if q.Key == key {
			return i
		}
	}
	return -1
}

// insertionIndex finds where q belongs: price descending on the bid
// side, ascending on the ask side, ties broken by greater volume
// first regardless of side.
func insertionIndex(quotes []*Quote, q *Quote, isBid bool) int {
	return sort.Search(len(quotes), func(i int) bool {
		a := quotes[i]
		if a.Price != q.Price {
			if isBid {
				return a.Price < q.Price
			}
			return a.Price > q.Price
		}
		return a.Volume < q.Volume
	})
}

// GetBestQuote returns the first quote for which accept (if non-nil)
// returns true, skipping zero-price quotes. Callers hold only a
// reader lock on the relevant side.
func (ob *OrderBook) GetBestQuote(cp model.CurrencyPair, isBid bool, accept func(*Quote) bool) (*Quote, bool) {
	ib := ob.getOrCreate(cp)
	side := sideOf(ib, isBid)
	side.mu.RLock()
	defer side.mu.RUnlock()

	for _, q := range side.quotes {
		if q.Price == 0 {
			continue
		}
		if accept != nil && !accept(q) {
			continue
		}
		return q, true
	}
	return nil, false
}

// MidPrice is the arithmetic mean of best bid and best ask cpips, or
// (0, false) when either side is empty.
func (ob *OrderBook) MidPrice(cp model.CurrencyPair) (int64, bool) {
	bid, okBid := ob.GetBestQuote(cp, true, nil)
	ask, okAsk := ob.GetBestQuote(cp, false, nil)
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// IterateQuoteGroups walks the side grouping consecutive equal-price
// quotes, invoking action(level, group) for each non-empty group (a
// group where quotePred rejects every member is skipped without
// advancing the level counter). Iteration stops when action returns
// false.
func (ob *OrderBook) IterateQuoteGroups(cp model.CurrencyPair, isBid bool, quotePred func(*Quote) bool, action func(level int, group *QuoteGroup) bool) {
	ib := ob.getOrCreate(cp)
	side := sideOf(ib, isBid)

	side.mu.RLock()
	snapshot := make([]*Quote, len(side.quotes))
	copy(snapshot, side.quotes)
	side.mu.RUnlock()

	level := 0
	i := 0
	for i < len(snapshot) {
		price := snapshot[i].Price
		group := newQuoteGroup(price)
		accepted := false
		j := i
		for j < len(snapshot) && snapshot[j].Price == price {
			if quotePred == nil || quotePred(snapshot[j]) {
				group.add(snapshot[j])
				accepted = true
			}
			j++
		}
		i = j
		if !accepted {
			continue
		}
		level++
		if !action(level, group) {
			return
		}
	}
}

// GetLevels collects up to n groups (unlimited when n == 0).
func (ob *OrderBook) GetLevels(cp model.CurrencyPair, isBid bool, n int) []*QuoteGroup {
	var groups []*QuoteGroup
	ob.IterateQuoteGroups(cp, isBid, nil, func(level int, g *QuoteGroup) bool {
		groups = append(groups, g)
		return n <= 0 || level < n
	})
	return groups
}

// Clear invalidates every quote, then resets the instrument map (which
// also drops the per-side locks) and lastQuote. The cleanup watermarks
// in lastCleanup are kept.
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	now := time.Now().UnixNano()
	for _, ib := range ob.books {
		for _, side := range [...]*sideBook{&ib.bid, &ib.ask} {
			side.mu.Lock()
			for _, q := range side.quotes {
				q.SetInvalid(now)
			}
			side.quotes = nil
			side.mu.Unlock()
		}
	}
	ob.books = make(map[model.CurrencyPair]*instrumentBook)
	ob.lastQuote.Store(nil)
}

// Cleanup evicts quotes older than maxAge on one side, returning the
// count removed.
func (ob *OrderBook) Cleanup(cp model.CurrencyPair, isBid bool, maxAge time.Duration) int {
	ib := ob.getOrCreate(cp)
	side := sideOf(ib, isBid)
	now := time.Now()

	side.mu.Lock()
	defer side.mu.Unlock()

	kept := side.quotes[:0]
	removed := 0
	for _, q := range side.quotes {
		if now.Sub(q.SendingTime) > maxAge {
			q.SetInvalid(now.UnixNano())
			removed++
			continue
		}
		kept = append(kept, q)
	}
	side.quotes = kept
	return removed
}

// DueForCleanup reports whether interval has elapsed since the last
// cleanup of (cp, side), and if so records now as the new watermark.
// This is the external cadence hook the spec leaves to the caller
// (default 10s), keyed by lastCleanupMap as in the source design.
func (ob *OrderBook) DueForCleanup(cp model.CurrencyPair, isBid bool, interval time.Duration) bool {
	ob.lastCleanMu.Lock()
	defer ob.lastCleanMu.Unlock()

	key := cleanupKey{cp, isBid}
	if last, ok := ob.lastCleanup[key]; ok && time.Since(last) < interval {
		return false
	}
	ob.lastCleanup[key] = time.Now()
	return true
}

// Instruments lists every CurrencyPair with book state, for cleanup
// scheduling.
func (ob *OrderBook) Instruments() []model.CurrencyPair {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	out := make([]model.CurrencyPair, 0, len(ob.books))
	for cp := range ob.books {
		out = append(out, cp)
	}
	return out
}

// LastQuote returns the most recently inserted quote across the whole
// book, or nil if none.
func (ob *OrderBook) LastQuote() *Quote {
	return ob.lastQuote.Load()
}
