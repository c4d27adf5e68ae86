package broker

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PendingOrderCache memoizes GetPendingOrders results for a short TTL,
// keyed by the requested symbol set. Any mutating trade call must
// invalidate it so the monitor never chases a stale order.
type PendingOrderCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]orderCacheEntry

	nowFn func() time.Time
}

type orderCacheEntry struct {
	orders    []PendingOrder
	fetchedAt time.Time
}

// NewPendingOrderCache builds a cache with the given TTL.
func NewPendingOrderCache(ttl time.Duration) *PendingOrderCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &PendingOrderCache{
		ttl:     ttl,
		entries: make(map[string]orderCacheEntry),
		nowFn:   time.Now,
	}
}

func cacheKey(symbols []string) string {
	if len(symbols) == 0 {
		return "*"
	}
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Get returns the cached result for the symbol set if still fresh.
func (c *PendingOrderCache) Get(symbols []string) ([]PendingOrder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(symbols)]
	if !ok || c.nowFn().Sub(e.fetchedAt) > c.ttl {
		return nil, false
	}
	out := make([]PendingOrder, len(e.orders))
	copy(out, e.orders)
	return out, true
}

// Put stores a fetch result for the symbol set.
func (c *PendingOrderCache) Put(symbols []string, orders []PendingOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]PendingOrder, len(orders))
	copy(stored, orders)
	c.entries[cacheKey(symbols)] = orderCacheEntry{orders: stored, fetchedAt: c.nowFn()}
}

// Invalidate drops every cached entry. Called after submit, replace
// and cancel.
func (c *PendingOrderCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]orderCacheEntry)
}
