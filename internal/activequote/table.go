// Package activequote implements the per-venue ActiveQuoteTable: the
// refId-keyed reconciliation map that deduplicates venue resends,
// rewrites ambiguous update/delete types, and suppresses key rotation
// for hash-identical republishes.
package activequote

import (
	"sync"
	"sync/atomic"

	"github.com/sawpanic/mdgateway/internal/model"
)

// QuoteInfo is the per-venue record kept for one refId.
type QuoteInfo struct {
	Key         int64
	CP          model.CurrencyPair
	EntryType   model.QuoteType
	HashValue   uint64
	OriKey      int64
	SequenceTag uint64
}

// Table is refId -> QuoteInfo, guarded by a single reader-writer lock
// per the shared-resource policy (one ActiveQuoteMap lock per
// connection).
type Table struct {
	mu      sync.RWMutex
	entries map[string]*QuoteInfo
	keySeq  atomic.Int64
}

func New() *Table {
	return &Table{entries: make(map[string]*QuoteInfo)}
}

// NextKey hands out the monotonic int64 the publish pipeline assigns
// to every entry before reconciliation.
func (t *Table) NextKey() int64 {
	return t.keySeq.Add(1)
}

// Find looks up refId under a reader lock.
func (t *Table) Find(refID string) (QuoteInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	qi, ok := t.entries[refID]
	if !ok {
		return QuoteInfo{}, false
	}
	return *qi, true
}

// Replace inserts or replaces the entry for refID under a writer lock.
// newID is the entry's own id (may differ from refID on a pure
// insert-under-new-identity). forceKey disables skip-key suppression
// even when the hash matches.
//
// Returns the prior record (zero value, ok=false if this is a first
// insert) and whether key rotation was suppressed.
func (t *Table) Replace(refID, newID string, newKey int64, cp model.CurrencyPair, entryType model.QuoteType, hashValue uint64, sequenceTag uint64, forceKey bool) (prior QuoteInfo, priorExisted bool, skipKey bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[refID]
	next := &QuoteInfo{
		Key:         newKey,
		CP:          cp,
		EntryType:   entryType,
		HashValue:   hashValue,
		SequenceTag: sequenceTag,
		OriKey:      newKey,
	}

	if ok {
		prior = *existing
		priorExisted = true
		if !forceKey && existing.HashValue == hashValue && refID == newID {
			skipKey = true
			next.OriKey = existing.OriKey
		}
	}

	t.entries[refID] = next
	return prior, priorExisted, skipKey
}

// Remove deletes refID's entry, returning the removed record if present.
func (t *Table) Remove(refID string) (QuoteInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	qi, ok := t.entries[refID]
	if !ok {
		return QuoteInfo{}, false
	}
	delete(t.entries, refID)
	return *qi, true
}

// RemoveOldQuoteInfos sweeps entries with Key < limitKey, invoking
// onRemove for each, and returns the count removed.
func (t *Table) RemoveOldQuoteInfos(limitKey int64, onRemove func(refID string, qi QuoteInfo)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for refID, qi := range t.entries {
		if qi.Key < limitKey {
			delete(t.entries, refID)
			removed++
			if onRemove != nil {
				onRemove(refID, *qi)
			}
		}
	}
	return removed
}

// Len reports the number of live entries, for diagnostics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
