package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"konadl/pkg/config"
)

// Limiter defines the interface for request pacing
type Limiter interface {
	// Wait blocks until a request to rawURL is allowed or ctx ends
	Wait(ctx context.Context, rawURL string) error
}

// HostLimiter paces requests with one token bucket per host, so API listings
// and file downloads served from different hosts do not starve each other.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	// OnDelay is called when Wait actually had to block
	OnDelay func(host string, d time.Duration)
}

// NewHostLimiter creates a limiter from its config section. A non-positive
// rate disables pacing.
func NewHostLimiter(cfg config.RateLimitConfig) *HostLimiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *HostLimiter) forHost(rawURL string) (string, *rate.Limiter) {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = lim
	}
	return host, lim
}

// Wait blocks until a token for the URL's host is available
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	host, lim := l.forHost(rawURL)

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond && l.OnDelay != nil {
		l.OnDelay(host, d)
	}
	return nil
}
