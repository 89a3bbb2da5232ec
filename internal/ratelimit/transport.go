// Package ratelimit wraps an http.RoundTripper with per-host pacing and
// X-RateLimit header backoff.
//
// The wrapper sits between every outbox GET and the transport. It is
// shared by all concurrently running account crawls: hosts are throttled
// independently, so one instance exhausting its budget never starves
// crawls against other instances.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/astrikos/fedibooks/internal/metrics"
)

const (
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

// Config holds rate limiter configuration.
type Config struct {
	// PerHostRPS is the polite request rate per remote host. Zero or
	// negative means unlimited.
	PerHostRPS float64
	Burst      int
}

// Transport is an http.RoundTripper that paces requests per host and
// honors server-provided rate-limit reset times.
type Transport struct {
	base http.RoundTripper

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	resumeAt map[string]time.Time

	rps   rate.Limit
	burst int
	now   func() time.Time
}

// New wraps base with rate limiting. A nil base uses
// http.DefaultTransport.
func New(base http.RoundTripper, cfg Config) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	r := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Transport{
		base:     base,
		limiters: make(map[string]*rate.Limiter),
		resumeAt: make(map[string]time.Time),
		rps:      r,
		burst:    burst,
		now:      time.Now,
	}
}

// RoundTrip waits out any pending rate-limit window for the request's
// host, then performs the request and records the next window from the
// response headers.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()

	if err := t.waitForWindow(req.Context(), host); err != nil {
		return nil, err
	}
	if err := t.hostLimiter(host).Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.observeHeaders(host, resp)
	return resp, nil
}

// waitForWindow blocks until the server-provided reset time for host has
// passed, or the context is done.
func (t *Transport) waitForWindow(ctx context.Context, host string) error {
	t.mu.Lock()
	resume := t.resumeAt[host]
	t.mu.Unlock()

	delay := resume.Sub(t.now())
	if delay <= 0 {
		return nil
	}

	metrics.ObserveRateLimitDelay(host, delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) hostLimiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.limiters[host] = l
	}
	return l
}

// observeHeaders records the reset time when the remaining budget is
// exhausted (zero or one request left).
func (t *Transport) observeHeaders(host string, resp *http.Response) {
	remaining, err := strconv.Atoi(resp.Header.Get(headerRemaining))
	if err != nil || remaining > 1 {
		return
	}
	reset, err := time.Parse(time.RFC3339, resp.Header.Get(headerReset))
	if err != nil {
		return
	}
	t.mu.Lock()
	if reset.After(t.resumeAt[host]) {
		t.resumeAt[host] = reset
	}
	t.mu.Unlock()
}
