package indicators

import (
	"math"
	"sync"
	"time"
)

// Snapshot is one timestamped set of indicator readings for a symbol.
// Immutable once pushed.
type Snapshot struct {
	TimestampMs int64              `json:"timestamp_ms"`
	Values      map[string]float64 `json:"values"`
}

// Cache keeps a bounded, time-ordered sequence of snapshots per symbol.
// Retention must cover the longest verification delay plus sampling
// tolerance, otherwise the verifier cannot find its T0 sample.
type Cache struct {
	mu        sync.RWMutex
	retention time.Duration
	snaps     map[string][]Snapshot

	nowFn func() time.Time
}

// NewCache builds an indicator cache with the given retention window.
func NewCache(retention time.Duration) *Cache {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Cache{
		retention: retention,
		snaps:     make(map[string][]Snapshot),
		nowFn:     time.Now,
	}
}

// Push appends a snapshot in timestamp order and evicts entries older
// than the retention window. Out-of-order pushes are inserted at their
// sorted position so QueryNear never sees an unordered sequence.
func (c *Cache) Push(symbol string, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	arr := c.snaps[symbol]
	if n := len(arr); n > 0 && snap.TimestampMs < arr[n-1].TimestampMs {
		i := n
		for i > 0 && arr[i-1].TimestampMs > snap.TimestampMs {
			i--
		}
		arr = append(arr, Snapshot{})
		copy(arr[i+1:], arr[i:])
		arr[i] = snap
	} else {
		arr = append(arr, snap)
	}

	cutoff := c.nowFn().Add(-c.retention).UnixMilli()
	drop := 0
	for drop < len(arr) && arr[drop].TimestampMs < cutoff {
		drop++
	}
	c.snaps[symbol] = arr[drop:]
}

// QueryNear returns the snapshot whose timestamp is closest to
// targetMs within toleranceMs, or ok=false when none qualifies.
func (c *Cache) QueryNear(symbol string, targetMs, toleranceMs int64) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best Snapshot
	bestDiff := int64(math.MaxInt64)
	for _, s := range c.snaps[symbol] {
		diff := s.TimestampMs - targetMs
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = s
		}
		if s.TimestampMs > targetMs+toleranceMs {
			break
		}
	}
	if bestDiff > toleranceMs {
		return Snapshot{}, false
	}
	return best, true
}

// Len returns the number of retained snapshots for a symbol.
func (c *Cache) Len(symbol string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snaps[symbol])
}

// Clear drops all snapshots for a symbol.
func (c *Cache) Clear(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, symbol)
}
