package venue

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/mdgateway/internal/hashutil"
	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/processor"
	"github.com/sawpanic/mdgateway/internal/result"
	"github.com/sawpanic/mdgateway/internal/sign"
)

type coinbaseSnapshot struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
}

type coinbaseL2Update struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Changes   [][]string `json:"changes"`
}

// CoinbaseVenue implements Venue for the level2 channel, public or
// authenticated, grounded in normalizers.go's Coinbase wire shapes.
type CoinbaseVenue struct {
	host       string
	apiKey     string
	secretB64  string
	passphrase string
	log        zerolog.Logger
}

func NewCoinbaseVenue(host, apiKey, secretB64, passphrase string, logger zerolog.Logger) *CoinbaseVenue {
	return &CoinbaseVenue{
		host:       host,
		apiKey:     apiKey,
		secretB64:  secretB64,
		passphrase: passphrase,
		log:        logger.With().Str("venue", "coinbase").Logger(),
	}
}

func (v *CoinbaseVenue) Name() string     { return "Coinbase" }
func (v *CoinbaseVenue) Endpoint() string { return "wss://" + v.host }

// SubscribeBeforeSnapshot is false: Coinbase's snapshot arrives
// in-band over the already-subscribed socket (spec §4.2 default order).
func (v *CoinbaseVenue) SubscribeBeforeSnapshot() bool { return false }

func (v *CoinbaseVenue) TranslateSymbolToExchangeSpecific(cp model.CurrencyPair) string {
	return strings.ToUpper(hyphenSymbol(cp))
}

func (v *CoinbaseVenue) TranslateSymbol(exchangeSymbol string) (model.CurrencyPair, error) {
	cp, ok := fromHyphenSymbol(exchangeSymbol)
	if !ok {
		return model.CurrencyPair{}, result.New(result.KindInvalidArgument, "unknown coinbase product_id "+exchangeSymbol)
	}
	return cp, nil
}

func (v *CoinbaseVenue) DetectType(doc processor.Doc) string {
	t, _ := doc["type"].(string)
	if t == "" {
		return "unknown"
	}
	return t
}

func (v *CoinbaseVenue) SequenceTagFor(doc processor.Doc) *uint64 {
	pid, _ := doc["product_id"].(string)
	if pid == "" {
		return nil
	}
	tag := hashutil.SequenceTag(pid)
	return &tag
}

func (v *CoinbaseVenue) RegisterHandlers(c *Connection) {
	_ = c.RegisterHandler("snapshot", func(doc processor.Doc) {
		var snap coinbaseSnapshot
		if err := decodeDoc(doc, &snap); err != nil {
			c.log.Warn().Err(err).Msg("coinbase snapshot decode failed")
			return
		}
		v.handleSnapshot(c, snap)
	})
	_ = c.RegisterHandler("l2update", func(doc processor.Doc) {
		var upd coinbaseL2Update
		if err := decodeDoc(doc, &upd); err != nil {
			c.log.Warn().Err(err).Msg("coinbase l2update decode failed")
			return
		}
		v.handleL2Update(c, upd)
	})
	_ = c.RegisterHandler("heartbeat", func(doc processor.Doc) {})
	_ = c.RegisterHandler("subscriptions", func(doc processor.Doc) {
		c.log.Debug().Interface("doc", doc).Msg("coinbase subscription ack")
	})
	_ = c.RegisterHandler("unknown", func(doc processor.Doc) {
		c.log.Debug().Interface("doc", doc).Msg("coinbase frame of unrecognized type")
	})
}

func (v *CoinbaseVenue) Subscribe(c *Connection, instruments []model.CurrencyPair) error {
	return v.sendControl(c, "subscribe", instruments)
}

func (v *CoinbaseVenue) Unsubscribe(c *Connection, instruments []model.CurrencyPair) error {
	return v.sendControl(c, "unsubscribe", instruments)
}

func (v *CoinbaseVenue) sendControl(c *Connection, msgType string, instruments []model.CurrencyPair) error {
	ids := make([]string, 0, len(instruments))
	for _, cp := range instruments {
		ids = append(ids, v.TranslateSymbolToExchangeSpecific(cp))
	}

	frame := map[string]interface{}{
		"type":        msgType,
		"product_ids": ids,
		"channels":    []string{"level2"},
	}

	if v.apiKey != "" {
		timestamp := nowUnixString()
		sig, err := sign.CoinbaseWS(v.secretB64, timestamp)
		if err != nil {
			return result.Wrap(result.KindInvalidArgument, "sign coinbase subscribe", err)
		}
		frame["signature"] = sig
		frame["key"] = v.apiKey
		frame["passphrase"] = v.passphrase
		frame["timestamp"] = timestamp
	}

	return c.SendJSON(frame)
}

// Snapshot is a no-op: Coinbase's snapshot message arrives passively
// once the socket is subscribed, handled by RegisterHandlers above.
func (v *CoinbaseVenue) Snapshot(ctx context.Context, c *Connection, instruments []model.CurrencyPair) error {
	return nil
}

func (v *CoinbaseVenue) handleSnapshot(c *Connection, snap coinbaseSnapshot) {
	cp, err := v.TranslateSymbol(snap.ProductID)
	if err != nil {
		c.log.Warn().Str("product_id", snap.ProductID).Msg("coinbase snapshot unknown product")
		return
	}
	now := time.Now()
	seqTag := hashutil.SequenceTag(snap.ProductID)
	entries := BuildLevelEntries(cp, toLevelStrings(snap.Bids), true, seqTag, now)
	entries = append(entries, BuildLevelEntries(cp, toLevelStrings(snap.Asks), false, seqTag, now)...)
	MarkEndOfMessage(entries)
	c.PublishQuotes(model.NormalizedMDData{Entries: entries})
}

func (v *CoinbaseVenue) handleL2Update(c *Connection, upd coinbaseL2Update) {
	cp, err := v.TranslateSymbol(upd.ProductID)
	if err != nil {
		c.log.Warn().Str("product_id", upd.ProductID).Msg("coinbase l2update unknown product")
		return
	}

	now := time.Now()
	seqTag := hashutil.SequenceTag(upd.ProductID)

	var bidLevels, askLevels []LevelString
	for _, change := range upd.Changes {
		if len(change) != 3 {
			continue
		}
		side, price, size := change[0], change[1], change[2]
		lvl := LevelString{Price: price, Size: size}
		if side == "buy" {
			bidLevels = append(bidLevels, lvl)
		} else if side == "sell" {
			askLevels = append(askLevels, lvl)
		}
	}

	entries := BuildLevelEntries(cp, bidLevels, true, seqTag, now)
	entries = append(entries, BuildLevelEntries(cp, askLevels, false, seqTag, now)...)
	MarkEndOfMessage(entries)
	c.PublishQuotes(model.NormalizedMDData{Entries: entries})
}

// nowUnixString is the Unix-seconds timestamp Coinbase's authenticated
// channels sign over (spec §6).
func nowUnixString() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}
