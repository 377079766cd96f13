package venue_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sawpanic/mdgateway/internal/venue"
)

// fakeConn is an in-memory Conn: writes are captured, and reads return
// queued frames (preloaded or pushed later), blocking while the queue is
// empty until Close, after which they return an error.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	sent   [][]byte
	closed bool
}

func newFakeConn(frames ...string) *fakeConn {
	fc := &fakeConn{}
	for _, f := range frames {
		fc.frames = append(fc.frames, []byte(f))
	}
	return fc
}

func (fc *fakeConn) push(frame string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.frames = append(fc.frames, []byte(frame))
}

func (fc *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		fc.mu.Lock()
		if fc.closed {
			fc.mu.Unlock()
			return 0, nil, errors.New("connection closed")
		}
		if len(fc.frames) > 0 {
			f := fc.frames[0]
			fc.frames = fc.frames[1:]
			fc.mu.Unlock()
			return 1, f, nil
		}
		fc.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (fc *fakeConn) WriteMessage(messageType int, data []byte) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.sent = append(fc.sent, data)
	return nil
}

func (fc *fakeConn) SetPingHandler(h func(appData string) error) {}
func (fc *fakeConn) SetReadDeadline(t time.Time) error            { return nil }
func (fc *fakeConn) SetReadLimit(limit int64)                     {}
func (fc *fakeConn) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.closed = true
	return nil
}

func (fc *fakeConn) sentFrames() []map[string]interface{} {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(fc.sent))
	for _, raw := range fc.sent {
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

type fakeDialer struct {
	conn *fakeConn
}

func (fd *fakeDialer) Dial(url string, header http.Header) (venue.Conn, error) {
	return fd.conn, nil
}
