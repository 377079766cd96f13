// Package httpclient wraps the Binance REST snapshot client with the
// rate-limit + circuit-breaker middleware the teacher applies to every
// outbound provider call (internal/net/client/wrap.go's Wrapper), with
// the cache and budget stages dropped since this spec has no caching or
// per-provider budget concept.
package httpclient

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/mdgateway/internal/result"
)

// Limiter is a per-host token bucket, mirroring
// internal/net/ratelimit/limiter.go's Limiter trimmed to this
// package's single caller (the Binance depth-snapshot fetch).
type Limiter struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiter builds a rate limiter allowing rps requests/sec per host,
// with burst capacity for short spikes.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{rps: rps, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = lim
	return lim
}

// Breaker wraps one gobreaker.CircuitBreaker per provider, settings
// modeled directly on infra/breakers/breakers.go: trip after 3
// consecutive failures, or a >5% failure rate once at least 20
// requests have been observed in the rolling interval.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(name string) *Breaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Client is an http.RoundTripper middleware stack: rate limit, then
// circuit breaker, then the underlying transport. A non-2xx response
// or transport failure is surfaced as a TransportError.
type Client struct {
	Transport http.RoundTripper
	Limiter   *Limiter
	Breaker   *Breaker
	UserAgent string

	log zerolog.Logger
}

// New builds a Client for one provider/host pair.
func New(rps float64, burst int, breakerName string, logger zerolog.Logger) *Client {
	return &Client{
		Transport: http.DefaultTransport,
		Limiter:   NewLimiter(rps, burst),
		Breaker:   NewBreaker(breakerName),
		UserAgent: "mdgateway/1.0",
		log:       logger.With().Str("component", "httpclient").Str("breaker", breakerName).Logger(),
	}
}

// Do executes req through the rate limiter and circuit breaker,
// returning a *result.Error of KindTransportError on any failure
// (network, non-2xx status, or an open breaker).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	lim := c.Limiter.forHost(req.URL.Host)
	if err := lim.Wait(req.Context()); err != nil {
		return nil, result.Wrap(result.KindTransportError, "rate limiter wait failed", err)
	}

	out, err := c.Breaker.cb.Execute(func() (interface{}, error) {
		resp, err := c.Transport.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL)
		}
		return resp, nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("url", req.URL.String()).Msg("request failed")
		return nil, result.Wrap(result.KindTransportError, "request to "+req.URL.Host+" failed", err)
	}
	return out.(*http.Response), nil
}
