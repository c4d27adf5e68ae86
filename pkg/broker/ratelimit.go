package broker

import (
	"context"
	"log"
	"sync"
	"time"
)

// RateLimiter is a sliding-window admission gate for trade API calls.
// The brokerage enforces a hard ceiling on calls per trailing window;
// Throttle blocks until admitting one more call cannot breach it.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	buffer time.Duration
	calls  []time.Time

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
	onWait  func(d time.Duration)
}

// OnWait registers a hook observing every throttle sleep.
func (rl *RateLimiter) OnWait(fn func(d time.Duration)) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.onWait = fn
}

// NewRateLimiter builds a limiter admitting at most max calls per window.
// buffer is added to every computed wait to absorb clock skew against
// the brokerage's own bookkeeping.
func NewRateLimiter(max int, window, buffer time.Duration) *RateLimiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = 30 * time.Second
	}
	return &RateLimiter{
		window:  window,
		max:     max,
		buffer:  buffer,
		nowFn:   time.Now,
		sleepFn: sleepCtx,
	}
}

// Throttle blocks until one more trade call is admissible, then records
// it. Callers serialize through the same window bookkeeping: no two
// goroutines can both observe spare capacity and proceed.
func (rl *RateLimiter) Throttle(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for {
		now := rl.nowFn()
		rl.purge(now)
		if len(rl.calls) < rl.max {
			rl.calls = append(rl.calls, now)
			return nil
		}

		wait := rl.window - now.Sub(rl.calls[0]) + rl.buffer
		if wait < 0 {
			wait = rl.buffer
		}
		log.Printf("ratelimit: window full (%d/%d), waiting %v", len(rl.calls), rl.max, wait)
		if rl.onWait != nil {
			rl.onWait(wait)
		}
		if err := rl.sleepFn(ctx, wait); err != nil {
			return err
		}
	}
}

// Used returns the number of calls recorded in the current window.
func (rl *RateLimiter) Used() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.purge(rl.nowFn())
	return len(rl.calls)
}

func (rl *RateLimiter) purge(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.calls) && !rl.calls[i].After(cutoff) {
		i++
	}
	rl.calls = rl.calls[i:]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
