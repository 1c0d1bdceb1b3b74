package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/shellguard/internal/tools"
)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for range 1000 {
		if err := l.Allow("executeCommand"); err != nil {
			t.Fatalf("unlimited limiter refused: %v", err)
		}
	}
}

func TestLimiter_BurstAndRefill(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := range 3 {
		if err := l.Allow("a"); err != nil {
			t.Fatalf("call %d refused: %v", i, err)
		}
	}
	if err := l.Allow("a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("4th call err = %v, want ErrRateLimited", err)
	}
	// Keys are independent.
	if err := l.Allow("b"); err != nil {
		t.Errorf("other key refused: %v", err)
	}

	// One token per second at 60/min.
	now = now.Add(time.Second)
	if err := l.Allow("a"); err != nil {
		t.Errorf("after refill: %v", err)
	}
	if err := l.Allow("a"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("refill overshot: %v", err)
	}

	// Refill is capped at the burst size.
	now = now.Add(time.Hour)
	for range 3 {
		_ = l.Allow("a")
	}
	if err := l.Allow("a"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("bucket exceeded burst: %v", err)
	}
}

type countCaller struct{ n int }

func (c *countCaller) Call(context.Context, string, map[string]any) *tools.Result {
	c.n++
	return tools.OK("ran", nil)
}

func TestLimitedCaller(t *testing.T) {
	inner := &countCaller{}
	c := NewCaller(inner, Config{RequestsPerMinute: 1, Tools: []string{"executeCommand"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if res := c.Call(ctx, "executeCommand", nil); !res.Success {
		t.Fatalf("first call = %+v", res)
	}
	res := c.Call(ctx, "executeCommand", nil)
	if res.Success || !strings.Contains(res.Message, "rate limit exceeded") {
		t.Errorf("second call = %+v", res)
	}
	// Tools outside the list are never limited.
	for range 5 {
		if res := c.Call(ctx, "readFile", nil); !res.Success {
			t.Fatalf("readFile limited: %+v", res)
		}
	}
	if inner.n != 6 {
		t.Errorf("inner calls = %d, want 6", inner.n)
	}
}
