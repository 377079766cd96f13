package venue

import (
	"fmt"
	"time"

	"github.com/sawpanic/mdgateway/internal/model"
)

// LevelString is one decoded (price, size) pair in the venue's own
// textual form, carried verbatim into the entry id per spec §4.2 ("the
// price string from the venue is preserved verbatim to avoid
// reformatting collisions").
type LevelString struct {
	Price string
	Size  string
}

// BuildLevelEntries is the shared shape of every venue's ParseQuote: a
// list of (price, size) strings for one side of one instrument becomes
// a run of Entry values, each zero-volume level classified Delete and
// everything else New, id/refId formatted "<cp>_<B|A><price-string>",
// positionNo the level's index within this side of the message.
func BuildLevelEntries(cp model.CurrencyPair, levels []LevelString, isBid bool, seqTag uint64, recvTime time.Time) []model.Entry {
	side := model.Offer
	sideLetter := "A"
	if isBid {
		side = model.Bid
		sideLetter = "B"
	}

	entries := make([]model.Entry, 0, len(levels))
	for i, lvl := range levels {
		price := cp.PriceToCpips(parseFloat(lvl.Price))
		volume := model.VolumeToHundredths(parseFloat(lvl.Size))

		updateType := model.New
		if volume == 0 {
			updateType = model.Delete
		}

		id := fmt.Sprintf("%s_%s%s", cp, sideLetter, lvl.Price)
		entries = append(entries, model.Entry{
			ID:              id,
			RefID:           id,
			QuoteID:         id,
			UpdateType:      updateType,
			PositionNo:      i,
			EntryType:       side,
			Instrument:      cp,
			Price:           price,
			Volume:          volume,
			AdptReceiveTime: recvTime,
			SequenceTag:     seqTag,
		})
	}
	return entries
}

// MarkEndOfMessage flags the last entry of a decoded message, as
// required by NormalizedMDData's endOfMessage contract.
func MarkEndOfMessage(entries []model.Entry) {
	if len(entries) > 0 {
		entries[len(entries)-1].EndOfMessage = true
	}
}
