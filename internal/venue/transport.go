// Package venue implements the per-exchange WebSocket connections: the
// shared connection state machine, listener loop, and publish pipeline
// (ConnectionBase per spec §9's design notes), plus the Binance,
// Coinbase, and OKX venue variants that supply frame decoding, symbol
// translation, and subscribe/unsubscribe/snapshot control.
package venue

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Gorilla's own opcode constants, duplicated here so the Conn
// interface below stays transport-agnostic (callers needing to send a
// control frame reply don't need to import gorilla/websocket
// themselves).
const (
	TextMessage = 1
	PongMessage = 10
)

// Conn is the subset of *websocket.Conn the connection loop needs,
// pulled out as an interface so tests can substitute a fake transport
// without opening a real socket. *websocket.Conn satisfies it as-is.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetPingHandler(h func(appData string) error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Dialer opens a Conn to a venue's WebSocket endpoint.
type Dialer interface {
	Dial(url string, header http.Header) (Conn, error)
}

// GorillaDialer is the production Dialer, following
// exchanges/binance/book.go's websocket.DefaultDialer.Dial loop.
type GorillaDialer struct{}

func (GorillaDialer) Dial(url string, header http.Header) (Conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, err
	}
	return c, nil
}
