// Package cache provides a sharded last-trade price cache for the
// monitored index and the traded warrants.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// QuoteCache stores the latest quote per symbol behind per-shard locks
// so the polling writer never contends with pipeline readers.
type QuoteCache struct {
	shards [numShards]*quoteShard
}

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]quoteEntry
}

type quoteEntry struct {
	price     float64
	updatedAt time.Time
}

// NewQuoteCache creates an empty cache.
func NewQuoteCache() *QuoteCache {
	c := &QuoteCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &quoteShard{items: make(map[string]quoteEntry)}
	}
	return c
}

func (c *QuoteCache) getShard(key string) *quoteShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the latest price for a symbol.
func (c *QuoteCache) Set(symbol string, price float64) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	shard.items[symbol] = quoteEntry{price: price, updatedAt: time.Now()}
	shard.mu.Unlock()
}

// Get retrieves the latest price for a symbol.
func (c *QuoteCache) Get(symbol string) (float64, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	return entry.price, ok
}

// GetFresh retrieves the price only when it is younger than maxAge.
// Risk gates use this so a dead feed reads as "no price" rather than
// yesterday's number.
func (c *QuoteCache) GetFresh(symbol string, maxAge time.Duration) (float64, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	if !ok || time.Since(entry.updatedAt) > maxAge {
		return 0, false
	}
	return entry.price, true
}

// Snapshot returns all cached quotes.
func (c *QuoteCache) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for sym, entry := range shard.items {
			out[sym] = entry.price
		}
		shard.mu.RUnlock()
	}
	return out
}
