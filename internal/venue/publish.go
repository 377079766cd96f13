package venue

import (
	"time"

	"github.com/sawpanic/mdgateway/internal/activequote"
	"github.com/sawpanic/mdgateway/internal/hashutil"
	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/result"
)

// PublishQuotes runs every decoded entry of one NormalizedMDData through
// ActiveQuoteTable reconciliation and into the order book, in the order
// spec §4.3 lays out: skip entries with no resolvable instrument/side,
// reconcile refId against prior state, reclassify New<->Update as the
// table dictates, then apply to the book.
func (c *Connection) PublishQuotes(data model.NormalizedMDData) {
	for _, entry := range data.Entries {
		c.publishEntry(entry)
	}
}

func (c *Connection) publishEntry(entry model.Entry) {
	if entry.EntryType == model.Invalid || !entry.Instrument.Valid() {
		prior, existed := c.table.Find(entry.RefID)
		if !existed {
			c.log.Debug().Str("ref_id", entry.RefID).Msg("unresolvable entry dropped")
			return
		}
		entry.EntryType = prior.EntryType
		entry.Instrument = prior.CP
	}

	key := c.table.NextKey()

	if entry.UpdateType == model.Delete {
		prior, existed := c.table.Remove(entry.RefID)
		if !existed {
			return
		}
		if err := c.book.AddEntry(key, prior.Key, entry.AdptReceiveTime, entry.Instrument, entry); err != nil {
			c.log.Warn().Err(err).Str("ref_id", entry.RefID).Msg("delete against missing quote")
		}
		return
	}

	hashValue := hashutil.QuoteHash(entry.Price, entry.Volume, entry.MinQty, entry.QuoteID)
	prior, existed, skipKey := c.table.Replace(entry.RefID, entry.ID, key, entry.Instrument, entry.EntryType, hashValue, entry.SequenceTag, false)

	var refKey int64
	switch {
	case existed && entry.UpdateType == model.New:
		// Venue resent a New for a refId we already track: reclassify
		// as Update against the prior key so the book replaces rather
		// than duplicates it.
		entry.UpdateType = model.Update
		refKey = prior.Key
	case !existed && entry.UpdateType == model.Update:
		// No prior state to update against: the venue's own key must
		// have rotated out from under us, treat it as a fresh insert.
		entry.UpdateType = model.New
	case existed:
		refKey = prior.Key
	}

	if skipKey {
		// skipKey only suppresses the ActiveQuoteTable's own identity-key
		// rotation (see Replace); publish_quote below still runs
		// unconditionally so the book's SendingTime/successor chain
		// advances on a hash-identical resend, same as any other
		// republish.
		c.log.Debug().Str("ref_id", entry.RefID).Msg("identity key rotation suppressed")
	}

	if err := c.book.AddEntry(key, refKey, entry.AdptReceiveTime, entry.Instrument, entry); err != nil {
		c.log.Warn().Err(err).Str("ref_id", entry.RefID).Msg("add_entry rejected")
	}
}

// reapOlderThan sweeps the ActiveQuoteTable for refIds whose key
// predates limitKey, across every instrument, dropping their book-side
// quote too. No venue handler calls it: applying a snapshot publishes
// the levels it lists and leaves levels it does not list in the table
// and the book.
func (c *Connection) reapOlderThan(limitKey int64) int {
	return c.table.RemoveOldQuoteInfos(limitKey, func(refID string, qi activequote.QuoteInfo) {
		now := time.Now()
		if err := c.book.AddEntry(c.table.NextKey(), qi.Key, now, qi.CP, model.Entry{
			RefID:      refID,
			UpdateType: model.Delete,
			EntryType:  qi.EntryType,
			Instrument: qi.CP,
		}); err != nil && !result.Is(err, result.KindStateConflict) {
			c.log.Warn().Err(err).Str("ref_id", refID).Msg("reap delete failed")
		}
	})
}
