// Package ratelimit throttles fetches per domain with token buckets so
// crawl cycles stay polite even when the frontier ranks many URLs from
// one site.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/entigraph/entigraph/internal/metrics"
)

// Config sets the default bucket shape applied to every domain.
type Config struct {
	// RPS is the sustained request rate per domain. Zero or negative
	// disables throttling.
	RPS float64
	// Burst is the bucket size (default 1).
	Burst int
}

// Limiter hands out fetch tokens keyed by domain.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the URL's domain or the
// context finishes.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if err := l.domainLimiter(rawURL).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) domainLimiter(rawURL string) *rate.Limiter {
	domain := metrics.SanitizeSite(rawURL)
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[domain] = limiter
	}
	return limiter
}
