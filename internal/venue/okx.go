package venue

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/mdgateway/internal/hashutil"
	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/processor"
	"github.com/sawpanic/mdgateway/internal/result"
	"github.com/sawpanic/mdgateway/internal/sign"
)

type okxData struct {
	InstID string     `json:"instId"`
	Bids   [][]string `json:"bids"`
	Asks   [][]string `json:"asks"`
}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxMessage struct {
	Action string    `json:"action"`
	Event  string    `json:"event"`
	Arg    okxArg    `json:"arg"`
	Data   []okxData `json:"data"`
	Msg    string    `json:"msg"`
}

// OKXVenue implements Venue for the "books" channel, grounded in
// normalizers.go's OKX wire shapes and the OK-ACCESS-* REST header
// contract from spec §6.
type OKXVenue struct {
	host       string
	apiKey     string
	secret     string
	passphrase string
	log        zerolog.Logger
}

func NewOKXVenue(host, apiKey, secret, passphrase string, logger zerolog.Logger) *OKXVenue {
	return &OKXVenue{
		host:       host,
		apiKey:     apiKey,
		secret:     secret,
		passphrase: passphrase,
		log:        logger.With().Str("venue", "okx").Logger(),
	}
}

func (v *OKXVenue) Name() string     { return "OKX" }
func (v *OKXVenue) Endpoint() string { return "wss://" + v.host + "/ws/v5/public" }

// SubscribeBeforeSnapshot is false: OKX's snapshot arrives in-band,
// classified by the books channel's "action" field (spec §4.2).
func (v *OKXVenue) SubscribeBeforeSnapshot() bool { return false }

func (v *OKXVenue) TranslateSymbolToExchangeSpecific(cp model.CurrencyPair) string {
	return strings.ToUpper(hyphenSymbol(cp))
}

func (v *OKXVenue) TranslateSymbol(exchangeSymbol string) (model.CurrencyPair, error) {
	cp, ok := fromHyphenSymbol(exchangeSymbol)
	if !ok {
		return model.CurrencyPair{}, result.New(result.KindInvalidArgument, "unknown okx instId "+exchangeSymbol)
	}
	return cp, nil
}

func (v *OKXVenue) DetectType(doc processor.Doc) string {
	if action, ok := doc["action"].(string); ok && action != "" {
		return "data:" + action
	}
	if event, ok := doc["event"].(string); ok && event != "" {
		return "event:" + event
	}
	return "unknown"
}

func (v *OKXVenue) SequenceTagFor(doc processor.Doc) *uint64 {
	arg, ok := doc["arg"].(map[string]interface{})
	if !ok {
		return nil
	}
	instID, _ := arg["instId"].(string)
	if instID == "" {
		return nil
	}
	tag := hashutil.SequenceTag(instID)
	return &tag
}

func (v *OKXVenue) RegisterHandlers(c *Connection) {
	_ = c.RegisterHandler("data:snapshot", func(doc processor.Doc) {
		v.handleData(c, doc, true)
	})
	_ = c.RegisterHandler("data:update", func(doc processor.Doc) {
		v.handleData(c, doc, false)
	})
	_ = c.RegisterHandler("event:subscribe", func(doc processor.Doc) {
		c.log.Debug().Interface("doc", doc).Msg("okx subscribe ack")
	})
	_ = c.RegisterHandler("event:unsubscribe", func(doc processor.Doc) {
		c.log.Debug().Interface("doc", doc).Msg("okx unsubscribe ack")
	})
	_ = c.RegisterHandler("event:error", func(doc processor.Doc) {
		var msg okxMessage
		if err := decodeDoc(doc, &msg); err == nil {
			c.log.Warn().Str("msg", msg.Msg).Msg("okx error event")
		}
	})
	_ = c.RegisterHandler("unknown", func(doc processor.Doc) {
		c.log.Debug().Interface("doc", doc).Msg("okx frame of unrecognized type")
	})
}

func (v *OKXVenue) handleData(c *Connection, doc processor.Doc, isSnapshot bool) {
	var msg okxMessage
	if err := decodeDoc(doc, &msg); err != nil {
		c.log.Warn().Err(err).Msg("okx data decode failed")
		return
	}
	for _, d := range msg.Data {
		v.applyBookData(c, d, isSnapshot)
	}
}

func (v *OKXVenue) applyBookData(c *Connection, d okxData, isSnapshot bool) {
	cp, err := v.TranslateSymbol(d.InstID)
	if err != nil {
		c.log.Warn().Str("inst_id", d.InstID).Msg("okx data unknown instId")
		return
	}

	now := time.Now()
	seqTag := hashutil.SequenceTag(d.InstID)
	entries := BuildLevelEntries(cp, toOKXLevels(d.Bids), true, seqTag, now)
	entries = append(entries, BuildLevelEntries(cp, toOKXLevels(d.Asks), false, seqTag, now)...)
	MarkEndOfMessage(entries)
	c.PublishQuotes(model.NormalizedMDData{Entries: entries})
}

// toOKXLevels drops OKX's third/fourth tuple elements (number of
// orders / deprecated field), keeping only price and size.
func toOKXLevels(raw [][]string) []LevelString {
	out := make([]LevelString, 0, len(raw))
	for _, triple := range raw {
		if len(triple) < 2 {
			continue
		}
		out = append(out, LevelString{Price: triple[0], Size: triple[1]})
	}
	return out
}

func (v *OKXVenue) Subscribe(c *Connection, instruments []model.CurrencyPair) error {
	return v.sendControl(c, "subscribe", instruments)
}

func (v *OKXVenue) Unsubscribe(c *Connection, instruments []model.CurrencyPair) error {
	return v.sendControl(c, "unsubscribe", instruments)
}

func (v *OKXVenue) sendControl(c *Connection, op string, instruments []model.CurrencyPair) error {
	args := make([]okxArg, 0, len(instruments))
	for _, cp := range instruments {
		args = append(args, okxArg{Channel: "books", InstID: v.TranslateSymbolToExchangeSpecific(cp)})
	}
	return c.SendJSON(map[string]interface{}{
		"op":   op,
		"args": args,
	})
}

// Snapshot is a no-op: OKX's snapshot arrives in-band as the first
// books message with action=="snapshot".
func (v *OKXVenue) Snapshot(ctx context.Context, c *Connection, instruments []model.CurrencyPair) error {
	return nil
}

// SignedRESTHeaders builds the OK-ACCESS-* header set for an
// authenticated REST call (spec §6), e.g. for account/position
// endpoints outside the public books-channel market-data path.
func (v *OKXVenue) SignedRESTHeaders(method, path, body string) map[string]string {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	sig := sign.OKX(v.secret, timestamp, method, path, body)
	return map[string]string{
		"OK-ACCESS-KEY":        v.apiKey,
		"OK-ACCESS-SIGN":       sig,
		"OK-ACCESS-TIMESTAMP":  timestamp,
		"OK-ACCESS-PASSPHRASE": v.passphrase,
	}
}
