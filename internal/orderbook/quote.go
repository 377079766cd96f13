// Package orderbook implements the concurrent, per-instrument,
// per-side price-sorted order book: insert/update/delete semantics,
// best-price and level-aggregation reads, stale-quote eviction, and a
// composable filter/view layer over it.
package orderbook

import (
	"sync/atomic"
	"time"

	"github.com/sawpanic/mdgateway/internal/model"
)

// Quote is an immutable book entry plus two atomic cells: used (a
// caller-facing "already matched" flag, opaque to this package) and
// the successor pair that implements "set invalid, losers observe".
type Quote struct {
	AdptReceiveTime time.Time
	ReceiptTime     time.Time
	SortTime        time.Time
	QuoteID         string
	SeqNum          uint64
	Price           int64
	Volume          int64
	MinQty          int64
	Key             int64
	RefKey          int64
	SendingTime     time.Time
	QuoteType       model.QuoteType
	PositionNo      int
	SettlDate       time.Time
	Originator      string

	used     atomic.Bool
	succSent atomic.Int64
	succRecv atomic.Int64
}

func newQuoteFromEntry(key, refKey int64, recvTime time.Time, e model.Entry) *Quote {
	return &Quote{
		AdptReceiveTime: e.AdptReceiveTime,
		ReceiptTime:     recvTime,
		SortTime:        recvTime,
		QuoteID:         e.QuoteID,
		Price:           e.Price,
		Volume:          e.Volume,
		MinQty:          e.MinQty,
		Key:             key,
		RefKey:          refKey,
		SendingTime:     recvTime,
		QuoteType:       e.EntryType,
		PositionNo:      e.PositionNo,
	}
}

// Valid reports whether no successor has won the CAS yet.
func (q *Quote) Valid() bool { return q.succSent.Load() == 0 }

// SetInvalid is a CAS from successor-sent == 0 to tsSent (nanoseconds);
// the winner alone records the receive timestamp. tsSent == 0 is
// promoted to the current time so a zero successor timestamp can never
// be mistaken for "still valid" (used when there is no successor
// quote at all, e.g. Clear()).
func (q *Quote) SetInvalid(tsSent int64) bool {
	if tsSent == 0 {
		tsSent = time.Now().UnixNano()
	}
	if q.succSent.CompareAndSwap(0, tsSent) {
		q.succRecv.Store(time.Now().UnixNano())
		return true
	}
	return false
}

func (q *Quote) SuccessorSent() int64 { return q.succSent.Load() }
func (q *Quote) SuccessorReceived() int64 { return q.succRecv.Load() }

// SetUsed atomically flips used false->true, reporting whether this
// call made the transition.
func (q *Quote) SetUsed() bool { return q.used.CompareAndSwap(false, true) }

func (q *Quote) Used() bool { return q.used.Load() }
