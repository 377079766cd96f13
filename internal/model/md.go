package model

import "time"

// UpdateType classifies a normalized entry's effect on the book.
type UpdateType int

const (
	Snapshot UpdateType = iota
	New
	Update
	Delete
)

func (u UpdateType) String() string {
	switch u {
	case Snapshot:
		return "Snapshot"
	case New:
		return "New"
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Entry is one line of a decoded venue message: one side, one price
// level, one instrument.
type Entry struct {
	ID              string
	RefID           string
	QuoteID         string
	UpdateType      UpdateType
	PositionNo      int
	EntryType       QuoteType
	Instrument      CurrencyPair
	Price           int64
	Volume          int64
	MinQty          int64
	AdptReceiveTime time.Time
	SequenceTag     uint64
	EndOfMessage    bool
}

// NormalizedMDData is the single internal representation every venue
// decoder converts its wire message into: one message, N entries.
type NormalizedMDData struct {
	MDReqID string
	Entries []Entry
}
