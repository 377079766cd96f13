package venue

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/mdgateway/internal/model"
	"github.com/sawpanic/mdgateway/internal/result"
)

// Manager owns one Connection per configured venue and reports
// aggregate health, following client.Manager's
// GetHealthySummary()/GetUnhealthyProviders() shape over per-provider
// wrappers.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	staleAfter  time.Duration
}

func NewManager(staleAfter time.Duration) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		staleAfter:  staleAfter,
	}
}

func (m *Manager) Add(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.venue.Name()] = c
}

func (m *Manager) Get(name string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[name]
	return c, ok
}

// ConnectAll dials every registered connection concurrently, returning
// the first error encountered (others still run to completion).
func (m *Manager) ConnectAll(ctx context.Context, instruments []model.CurrencyPair) error {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make([]error, len(conns))
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c *Connection) {
			defer wg.Done()
			errs[i] = c.Connect(ctx, instruments)
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) DisconnectAll() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.Disconnect()
		}(c)
	}
	wg.Wait()
}

// HealthSummary reports per-venue Health for every registered connection.
func (m *Manager) HealthSummary() map[string]Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Health, len(m.connections))
	for name, c := range m.connections {
		out[name] = c.Health()
	}
	return out
}

// UnhealthyVenues lists the names of connections that are not currently
// Healthy per m.staleAfter.
func (m *Manager) UnhealthyVenues() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name, c := range m.connections {
		if !c.Healthy(m.staleAfter) {
			out = append(out, name)
		}
	}
	return out
}

// BestQuote proxies to the owning venue's book, erroring if no
// connection is registered under venueName.
func (m *Manager) BestQuote(venueName string, cp model.CurrencyPair, isBid bool) (price, volume int64, err error) {
	c, ok := m.Get(venueName)
	if !ok {
		return 0, 0, result.New(result.KindInvalidArgument, "unknown venue "+venueName)
	}
	q, found := c.Book().GetBestQuote(cp, isBid, nil)
	if !found {
		return 0, 0, result.New(result.KindStateConflict, "no quotes for "+cp.String())
	}
	return q.Price, q.Volume, nil
}
