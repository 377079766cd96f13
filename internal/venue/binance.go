package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/mdgateway/internal/hashutil"
	"github.com/sawpanic/mdgateway/internal/httpclient"
	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/processor"
	"github.com/sawpanic/mdgateway/internal/result"
)


// binanceDepthUpdate is the incremental diff envelope (spec §6).
type binanceDepthUpdate struct {
	Event  string     `json:"e"`
	Symbol string     `json:"s"`
	U      uint64     `json:"U"`
	Final  uint64     `json:"u"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

// binanceTopN is the depth5/10/20 partial-book stream (no "e" field).
type binanceTopN struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type binanceError struct {
	Error *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// bookState tracks one instrument's bootstrap/sequencing state, per
// spec §4.2's "buffer until snapshot, then drain in U/u window" rule.
type bookState struct {
	mu           sync.Mutex
	bootstrapped bool
	lastUpdateID uint64
	buffered     []binanceDepthUpdate
}

// BinanceVenue implements Venue for Binance's combined-diff depth
// streams, grounded in exchanges/binance/book.go's dial loop and REST
// snapshot fetch, and in the BullionBear sequex orderbook.go's U/u
// window check.
type BinanceVenue struct {
	host        string
	depthLevel  string
	restClient  *httpclient.Client
	log         zerolog.Logger
	nextID      int

	mu     sync.Mutex
	states map[model.CurrencyPair]*bookState
}

func NewBinanceVenue(host, depthLevel string, restClient *httpclient.Client, logger zerolog.Logger) *BinanceVenue {
	return &BinanceVenue{
		host:       host,
		depthLevel: depthLevel,
		restClient: restClient,
		log:        logger.With().Str("venue", "binance").Logger(),
		states:     make(map[model.CurrencyPair]*bookState),
		nextID:     1,
	}
}

func (v *BinanceVenue) Name() string     { return "Binance" }
func (v *BinanceVenue) Endpoint() string { return "wss://" + v.host + "/ws" }

// SubscribeBeforeSnapshot is true: Binance subscribes first so
// incremental deltas buffer ahead of the REST snapshot (spec §4.2).
func (v *BinanceVenue) SubscribeBeforeSnapshot() bool { return true }

func (v *BinanceVenue) TranslateSymbolToExchangeSpecific(cp model.CurrencyPair) string {
	return strings.ToLower(concatSymbol(cp))
}

func (v *BinanceVenue) TranslateSymbol(exchangeSymbol string) (model.CurrencyPair, error) {
	cp, ok := fromConcatSymbol(exchangeSymbol)
	if !ok {
		return model.CurrencyPair{}, result.New(result.KindInvalidArgument, "unknown binance symbol "+exchangeSymbol)
	}
	return cp, nil
}

func (v *BinanceVenue) DetectType(doc processor.Doc) string {
	if _, ok := doc["e"]; ok {
		return fmt.Sprintf("%v", doc["e"])
	}
	if _, ok := doc["lastUpdateId"]; ok {
		return "topN"
	}
	if _, ok := doc["result"]; ok {
		return "result"
	}
	if _, ok := doc["error"]; ok {
		return "error"
	}
	return "unknown"
}

func (v *BinanceVenue) SequenceTagFor(doc processor.Doc) *uint64 {
	sym, _ := doc["s"].(string)
	if sym == "" {
		return nil
	}
	tag := hashutil.SequenceTag(sym)
	return &tag
}

func (v *BinanceVenue) RegisterHandlers(c *Connection) {
	_ = c.RegisterHandler("depthUpdate", func(doc processor.Doc) {
		var upd binanceDepthUpdate
		if err := decodeDoc(doc, &upd); err != nil {
			c.log.Warn().Err(err).Msg("binance depthUpdate decode failed")
			return
		}
		v.handleDepthUpdate(c, upd)
	})
	_ = c.RegisterHandler("topN", func(doc processor.Doc) {
		var top binanceTopN
		if err := decodeDoc(doc, &top); err != nil {
			return
		}
		v.handleTopN(c, top)
	})
	_ = c.RegisterHandler("result", func(doc processor.Doc) {
		c.log.Debug().Interface("result", doc).Msg("binance control ack")
	})
	_ = c.RegisterHandler("error", func(doc processor.Doc) {
		var e binanceError
		if err := decodeDoc(doc, &e); err == nil && e.Error != nil {
			c.log.Warn().Int("code", e.Error.Code).Str("msg", e.Error.Msg).Msg("binance error frame")
		}
	})
	_ = c.RegisterHandler("unknown", func(doc processor.Doc) {
		c.log.Debug().Interface("doc", doc).Msg("binance frame of unrecognized type")
	})
}

func (v *BinanceVenue) Subscribe(c *Connection, instruments []model.CurrencyPair) error {
	return v.sendControl(c, "SUBSCRIBE", instruments)
}

func (v *BinanceVenue) Unsubscribe(c *Connection, instruments []model.CurrencyPair) error {
	return v.sendControl(c, "UNSUBSCRIBE", instruments)
}

func (v *BinanceVenue) sendControl(c *Connection, method string, instruments []model.CurrencyPair) error {
	params := make([]string, 0, len(instruments))
	for _, cp := range instruments {
		stream := v.TranslateSymbolToExchangeSpecific(cp) + "@depth"
		if v.depthLevel != "" {
			stream += v.depthLevel
		}
		stream += "@100ms"
		params = append(params, stream)
	}
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.mu.Unlock()

	return c.SendJSON(map[string]interface{}{
		"method": method,
		"params": params,
		"id":     id,
	})
}

// Snapshot fetches the REST depth bootstrap for every instrument and
// replays any deltas that buffered while waiting for it.
func (v *BinanceVenue) Snapshot(ctx context.Context, c *Connection, instruments []model.CurrencyPair) error {
	for _, cp := range instruments {
		if err := v.snapshotOne(ctx, c, cp); err != nil {
			return err
		}
	}
	return nil
}

func (v *BinanceVenue) stateFor(cp model.CurrencyPair) *bookState {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.states[cp]
	if !ok {
		st = &bookState{}
		v.states[cp] = st
	}
	return st
}

func (v *BinanceVenue) snapshotOne(ctx context.Context, c *Connection, cp model.CurrencyPair) error {
	symbol := strings.ToUpper(concatSymbol(cp))
	url := fmt.Sprintf("https://%s/api/v3/depth?symbol=%s&limit=5000", v.host, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result.Wrap(result.KindInvalidArgument, "build snapshot request", err)
	}

	resp, err := v.restClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result.Wrap(result.KindTransportError, "read snapshot body", err)
	}

	var snap binanceTopN
	if err := json.Unmarshal(body, &snap); err != nil {
		return result.Wrap(result.KindParseError, "parse depth snapshot", err)
	}

	st := v.stateFor(cp)
	st.mu.Lock()
	defer st.mu.Unlock()

	v.applySnapshotEntries(c, cp, snap)
	st.lastUpdateID = snap.LastUpdateID
	st.bootstrapped = true

	for _, upd := range st.buffered {
		if upd.Final <= st.lastUpdateID {
			continue // stale, predates snapshot
		}
		v.applyDeltaLocked(c, cp, upd, st)
	}
	st.buffered = nil
	return nil
}

func (v *BinanceVenue) applySnapshotEntries(c *Connection, cp model.CurrencyPair, snap binanceTopN) {
	now := time.Now()
	seqTag := hashutil.SequenceTag(concatSymbol(cp))
	bids := toLevelStrings(snap.Bids)
	asks := toLevelStrings(snap.Asks)
	entries := BuildLevelEntries(cp, bids, true, seqTag, now)
	entries = append(entries, BuildLevelEntries(cp, asks, false, seqTag, now)...)
	MarkEndOfMessage(entries)
	c.PublishQuotes(model.NormalizedMDData{Entries: entries})
}

func (v *BinanceVenue) handleDepthUpdate(c *Connection, upd binanceDepthUpdate) {
	cp, err := v.TranslateSymbol(upd.Symbol)
	if err != nil {
		c.log.Warn().Str("symbol", upd.Symbol).Msg("binance depthUpdate unknown symbol")
		return
	}

	st := v.stateFor(cp)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.bootstrapped {
		st.buffered = append(st.buffered, upd)
		return
	}
	v.applyDeltaLocked(c, cp, upd, st)
}

// applyDeltaLocked enforces the stricter ongoing acceptance window
// U <= lastUpdateId+1 <= u for every delta (Open Question resolution
// documented in SPEC_FULL.md), not just the first post-bootstrap one.
func (v *BinanceVenue) applyDeltaLocked(c *Connection, cp model.CurrencyPair, upd binanceDepthUpdate, st *bookState) {
	if !(upd.U <= st.lastUpdateID+1 && st.lastUpdateID+1 <= upd.Final) {
		c.log.Warn().
			Str("instrument", cp.String()).
			Uint64("U", upd.U).Uint64("u", upd.Final).
			Uint64("last_update_id", st.lastUpdateID).
			Msg("binance delta sequence gap, skipped")
		return
	}

	now := time.Now()
	seqTag := hashutil.SequenceTag(concatSymbol(cp))
	entries := BuildLevelEntries(cp, toLevelStrings(upd.Bids), true, seqTag, now)
	entries = append(entries, BuildLevelEntries(cp, toLevelStrings(upd.Asks), false, seqTag, now)...)
	MarkEndOfMessage(entries)
	c.PublishQuotes(model.NormalizedMDData{Entries: entries})

	st.lastUpdateID = upd.Final + 1
}

func (v *BinanceVenue) handleTopN(c *Connection, top binanceTopN) {
	for cp, st := range v.snapshotCandidates() {
		st.mu.Lock()
		if top.LastUpdateID < st.lastUpdateID {
			st.mu.Unlock()
			continue
		}
		st.lastUpdateID = top.LastUpdateID
		st.mu.Unlock()

		now := time.Now()
		seqTag := hashutil.SequenceTag(concatSymbol(cp))
		entries := BuildLevelEntries(cp, toLevelStrings(top.Bids), true, seqTag, now)
		entries = append(entries, BuildLevelEntries(cp, toLevelStrings(top.Asks), false, seqTag, now)...)
		MarkEndOfMessage(entries)
		c.PublishQuotes(model.NormalizedMDData{Entries: entries})
	}
}

// snapshotCandidates returns a copy of the tracked instrument set; a
// topN stream carries no symbol field, so in practice a connection
// subscribing to more than one topN stream needs one Connection per
// instrument (documented limitation, see DESIGN.md).
func (v *BinanceVenue) snapshotCandidates() map[model.CurrencyPair]*bookState {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[model.CurrencyPair]*bookState, len(v.states))
	for k, s := range v.states {
		out[k] = s
	}
	return out
}

func toLevelStrings(raw [][]string) []LevelString {
	out := make([]LevelString, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		out = append(out, LevelString{Price: pair[0], Size: pair[1]})
	}
	return out
}
