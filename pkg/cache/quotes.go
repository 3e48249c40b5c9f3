package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const numShards = 16

// Quote is the last closed-candle price seen for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Close     float64   `json:"close"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuoteCache holds the latest close per symbol, sharded by symbol hash.
type QuoteCache struct {
	shards [numShards]*quoteShard
	now    func() time.Time
}

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]Quote
}

func NewQuoteCache() *QuoteCache {
	c := &QuoteCache{now: time.Now}
	for i := range c.shards {
		c.shards[i] = &quoteShard{items: make(map[string]Quote)}
	}
	return c
}

func (c *QuoteCache) shard(symbol string) *quoteShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the close for a symbol.
func (c *QuoteCache) Set(symbol string, price float64) {
	s := c.shard(symbol)
	s.mu.Lock()
	s.items[symbol] = Quote{Symbol: symbol, Close: price, UpdatedAt: c.now()}
	s.mu.Unlock()
}

// Get returns the cached quote for a symbol.
func (c *QuoteCache) Get(symbol string) (Quote, bool) {
	s := c.shard(symbol)
	s.mu.RLock()
	q, ok := s.items[symbol]
	s.mu.RUnlock()
	return q, ok
}

// Retain drops every symbol not in keep and returns how many were removed.
func (c *QuoteCache) Retain(keep []string) int {
	valid := make(map[string]bool, len(keep))
	for _, s := range keep {
		valid[s] = true
	}

	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for sym := range s.items {
			if !valid[sym] {
				delete(s.items, sym)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// All returns every quote sorted by symbol.
func (c *QuoteCache) All() []Quote {
	var res []Quote
	for _, s := range c.shards {
		s.mu.RLock()
		for _, q := range s.items {
			res = append(res, q)
		}
		s.mu.RUnlock()
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

// Len returns total items across all shards.
func (c *QuoteCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}
