// Package ratelimit implements the per-host request gate that keeps the
// crawler from overwhelming target hosts.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ReeceHarding/new-scraper-sub001/internal/telemetry"
)

// Limiter manages per-host minimum request intervals. Hosts without an
// explicit override use the default delay; robots.txt crawl-delays are
// installed via SetHostDelay.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultDelay time.Duration
	logger       *zap.Logger
}

// New creates a Limiter with the given default per-host delay.
func New(defaultDelay time.Duration, logger *zap.Logger) *Limiter {
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: defaultDelay,
		logger:       logger,
	}
}

func limiterFor(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// SetHostDelay installs a host-specific minimum interval, typically sourced
// from a robots.txt crawl-delay. A zero or negative delay removes throttling
// for the host.
func (l *Limiter) SetHostDelay(host string, delay time.Duration) {
	if host == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[host] = limiterFor(delay)
}

// Wait blocks until at least the host's delay has elapsed since the last
// granted request. Context cancellation is returned to the caller; any other
// limiter failure is logged and fails open so a limiter malfunction can never
// deadlock the pipeline.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if host == "" {
		return nil
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = limiterFor(l.defaultDelay)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	err := limiter.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		l.logger.Warn("rate limiter malfunction; failing open",
			zap.String("host", host), zap.Error(err))
		return nil
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateLimitDelay(host, waited)
	}
	return nil
}
