package venue

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/mdgateway/internal/activequote"
	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/orderbook"
	"github.com/sawpanic/mdgateway/internal/processor"
	"github.com/sawpanic/mdgateway/internal/result"
)

// State is a Connection's position in spec §4.2's state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateSubscribed:
		return "Subscribed"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Disconnected"
	}
}

const (
	maxFrameBytes             = 2 << 20 // 2 MB per spec §6
	maxConsecutiveExceptions  = 100     // spec §4.2 listener teardown threshold
	defaultQueueSize          = 100000  // spec §5 MAX_QUEUESIZE default
)

// Venue is the per-exchange capability set ConnectionBase delegates
// to: frame classification, handler registration, symbol translation,
// and the three control operations. Per spec §9's design notes, this
// is the sum type over {Binance, Coinbase, OKX} x {MD, ORD} collapsed
// to the capability set the base connection needs.
type Venue interface {
	Name() string
	Endpoint() string
	// SubscribeBeforeSnapshot reverses the default Snapshot-then-
	// Subscribe bootstrap order; only Binance needs true (it subscribes
	// first to buffer incremental deltas ahead of its REST snapshot).
	SubscribeBeforeSnapshot() bool
	DetectType(doc processor.Doc) string
	// SequenceTagFor derives the processor's serialization tag from one
	// raw frame, typically a hash of the instrument symbol so that
	// messages for the same instrument never run concurrently while
	// different instruments do.
	SequenceTagFor(doc processor.Doc) *uint64
	RegisterHandlers(c *Connection)
	Subscribe(c *Connection, instruments []model.CurrencyPair) error
	Unsubscribe(c *Connection, instruments []model.CurrencyPair) error
	Snapshot(ctx context.Context, c *Connection, instruments []model.CurrencyPair) error
	TranslateSymbolToExchangeSpecific(cp model.CurrencyPair) string
	TranslateSymbol(exchangeSymbol string) (model.CurrencyPair, error)
}

// Connection is the shared base every venue variant wraps: the
// listener loop, the ActiveQuoteTable-mediated publish pipeline into
// the OrderBook, and the connection state machine.
type Connection struct {
	venue    Venue
	dialer   Dialer
	book     *orderbook.OrderBook
	table    *activequote.Table
	proc     *processor.Processor
	log      zerolog.Logger
	nWorkers int
	queueMax int

	mu          sync.RWMutex
	state       State
	conn        Conn
	instruments []model.CurrencyPair

	lastMessageTime atomic.Int64
	exceptions      atomic.Int32

	wg sync.WaitGroup
}

// Option configures a Connection at construction.
type Option func(*Connection)

func WithWorkers(n int) Option { return func(c *Connection) { c.nWorkers = n } }

func WithQueueSize(n int) Option { return func(c *Connection) { c.queueMax = n } }

func New(v Venue, dialer Dialer, book *orderbook.OrderBook, logger zerolog.Logger, opts ...Option) *Connection {
	c := &Connection{
		venue:    v,
		dialer:   dialer,
		book:     book,
		table:    activequote.New(),
		log:      logger.With().Str("venue", v.Name()).Logger(),
		nWorkers: 1,
		queueMax: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.proc = processor.New(c.queueMax, c.log)
	return c
}

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) Book() *orderbook.OrderBook { return c.book }

func (c *Connection) Table() *activequote.Table { return c.table }

// RegisterHandler exposes the underlying processor's handler
// registration to a Venue's RegisterHandlers implementation.
func (c *Connection) RegisterHandler(msgType string, h processor.Handler) error {
	return c.proc.RegisterHandler(msgType, h)
}

// Send writes a text frame (a subscribe/unsubscribe control message)
// over the open socket.
func (c *Connection) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return result.New(result.KindNotInitialized, "connection not established")
	}
	return conn.WriteMessage(TextMessage, data)
}

// SendJSON marshals v and sends it as a text frame.
func (c *Connection) SendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return result.Wrap(result.KindInvalidArgument, "marshal control frame", err)
	}
	return c.Send(b)
}

// Connect dials the venue's endpoint, starts the message processor and
// listener, then bootstraps per the venue's subscribe/snapshot
// ordering (spec §4.2).
func (c *Connection) Connect(ctx context.Context, instruments []model.CurrencyPair) error {
	c.setState(StateConnecting)

	conn, err := c.dialer.Dial(c.venue.Endpoint(), nil)
	if err != nil {
		c.setState(StateDisconnected)
		return result.Wrap(result.KindTransportError, "dial "+c.venue.Endpoint()+" failed", err)
	}
	conn.SetReadLimit(maxFrameBytes)
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteMessage(PongMessage, []byte(appData))
	})

	c.mu.Lock()
	c.conn = conn
	c.instruments = instruments
	c.mu.Unlock()
	c.setState(StateConnected)

	c.venue.RegisterHandlers(c)
	c.proc.RegisterTypeDetector(c.venue.DetectType)
	c.proc.Start(c.venue.Name(), c.nWorkers, false, nil)

	c.wg.Add(1)
	go c.listen()

	if c.venue.SubscribeBeforeSnapshot() {
		if err := c.venue.Subscribe(c, instruments); err != nil {
			return err
		}
		if err := c.venue.Snapshot(ctx, c, instruments); err != nil {
			return err
		}
	} else {
		if err := c.venue.Snapshot(ctx, c, instruments); err != nil {
			return err
		}
		if err := c.venue.Subscribe(c, instruments); err != nil {
			return err
		}
	}

	c.setState(StateSubscribed)
	return nil
}

// Subscribe/Unsubscribe delegate to the venue after the connection is
// already established, for adjusting the instrument set at runtime.
func (c *Connection) Subscribe(instruments []model.CurrencyPair) error {
	return c.venue.Subscribe(c, instruments)
}

func (c *Connection) Unsubscribe(instruments []model.CurrencyPair) error {
	return c.venue.Unsubscribe(c, instruments)
}

// Disconnect closes the socket (unblocking the listener), joins it,
// and stops the message processor.
func (c *Connection) Disconnect() error {
	c.setState(StateDisconnecting)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.proc.Stop(false, false)
	c.setState(StateDisconnected)
	return nil
}

// listen is the single listener thread: read a frame, parse it as
// JSON, classify and enqueue it via the processor. Control frames
// (ping/pong/close) never reach here — the transport's ReadMessage
// dispatches them internally before returning a data frame.
func (c *Connection) listen() {
	defer c.wg.Done()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var doc processor.Doc
		if err := json.Unmarshal(data, &doc); err != nil {
			c.log.Warn().Err(err).Msg("frame parse failure, dropping")
			c.bumpException()
			continue
		}

		seqTag := c.venue.SequenceTagFor(doc)
		if err := c.proc.ProcessMessage(doc, seqTag); err != nil {
			c.log.Warn().Err(err).Msg("process_message failed")
			c.bumpException()
			continue
		}

		c.lastMessageTime.Store(time.Now().UnixNano())
		c.exceptions.Store(0)
	}
}

func (c *Connection) bumpException() {
	if c.exceptions.Add(1) >= maxConsecutiveExceptions {
		c.log.Error().Msg("exception threshold exceeded, tearing down connection")
		go c.Disconnect()
	}
}

// Health summarizes a Connection's liveness for external polling (spec
// §5: "the only watchdog is the connection's inactivity-tracker").
type Health struct {
	Venue          string
	State          State
	LastMessageAge time.Duration
	ExceptionCount int32
}

func (c *Connection) Health() Health {
	last := c.lastMessageTime.Load()
	var age time.Duration
	if last > 0 {
		age = time.Since(time.Unix(0, last))
	}
	return Health{
		Venue:          c.venue.Name(),
		State:          c.State(),
		LastMessageAge: age,
		ExceptionCount: c.exceptions.Load(),
	}
}

// Healthy reports whether the connection is subscribed, below the
// exception threshold, and has either never received a message (still
// bootstrapping) or received one within staleAfter.
func (c *Connection) Healthy(staleAfter time.Duration) bool {
	h := c.Health()
	if h.State != StateSubscribed || h.ExceptionCount >= maxConsecutiveExceptions {
		return false
	}
	return h.LastMessageAge == 0 || h.LastMessageAge < staleAfter
}
