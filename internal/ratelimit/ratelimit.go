// Package ratelimit throttles tool calls with per-tool token buckets.
// Tokens are refilled lazily on each Allow call; there is no background goroutine.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/shellguard/internal/tools"
)

// ErrRateLimited is returned when a bucket is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures the limiter.
type Config struct {
	RequestsPerMinute int      // Tokens added per minute. 0 = unlimited.
	BurstSize         int      // Bucket capacity. 0 = RequestsPerMinute.
	Tools             []string // Tools subject to the limit. Empty = every tool.
}

// Limiter keeps an independent bucket per key, so one busy tool cannot
// starve another.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewLimiter creates a limiter. With RequestsPerMinute 0, Allow always succeeds.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.RequestsPerMinute) / 60.0,
		burst:   float64(max(burst, 1)),
		now:     time.Now,
	}
}

// Allow consumes one token from key's bucket.
func (l *Limiter) Allow(key string) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[key] = b
	}

	b.tokens = min(l.burst, b.tokens+now.Sub(b.lastFill).Seconds()*l.rate)
	b.lastFill = now

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// Caller dispatches a tool call by name.
type Caller interface {
	Call(ctx context.Context, name string, params map[string]any) *tools.Result
}

// LimitedCaller refuses calls to limited tools once their bucket is empty.
// A refused call becomes a failed Result; the tool never runs.
type LimitedCaller struct {
	inner   Caller
	limiter *Limiter
	only    map[string]bool
	logger  *slog.Logger
}

// NewCaller wraps inner with cfg's limits.
func NewCaller(inner Caller, cfg Config, logger *slog.Logger) *LimitedCaller {
	c := &LimitedCaller{inner: inner, limiter: NewLimiter(cfg), logger: logger}
	if len(cfg.Tools) > 0 {
		c.only = make(map[string]bool, len(cfg.Tools))
		for _, t := range cfg.Tools {
			c.only[t] = true
		}
	}
	return c
}

func (c *LimitedCaller) Call(ctx context.Context, name string, params map[string]any) *tools.Result {
	if c.only == nil || c.only[name] {
		if err := c.limiter.Allow(name); err != nil {
			c.logger.WarnContext(ctx, "tool call rate limited", slog.String("tool", name))
			return tools.ErrorResult(fmt.Errorf("%s: %w, retry later", name, err))
		}
	}
	return c.inner.Call(ctx, name, params)
}
