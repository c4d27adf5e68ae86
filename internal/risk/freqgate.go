package risk

import (
	"sync"
	"time"

	"warrant-trader/internal/signal"
)

// FrequencyGate throttles buy attempts per direction. The timestamp is
// marked at gate-pass time rather than at fill time, so a burst of
// near-simultaneous verified signals cannot all slip through before
// the first one lands.
type FrequencyGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[signal.Direction]time.Time

	nowFn func() time.Time
}

// NewFrequencyGate builds a gate with the given minimum interval
// between buy attempts on the same direction.
func NewFrequencyGate(interval time.Duration) *FrequencyGate {
	return &FrequencyGate{
		interval: interval,
		last:     make(map[signal.Direction]time.Time),
		nowFn:    time.Now,
	}
}

// TryPass admits one buy attempt for the direction, marking the
// timestamp optimistically on success. Returns false plus the time
// still to wait when inside the interval.
func (g *FrequencyGate) TryPass(dir signal.Direction) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.interval <= 0 {
		return true, 0
	}
	now := g.nowFn()
	if last, ok := g.last[dir]; ok {
		if elapsed := now.Sub(last); elapsed < g.interval {
			return false, g.interval - elapsed
		}
	}
	g.last[dir] = now
	return true, 0
}

// Reset clears the gate for all directions.
func (g *FrequencyGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = make(map[signal.Direction]time.Time)
}
