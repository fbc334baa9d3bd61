package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/services/filter"
)

// decisionCache is an LRU-backed implementation of filter.DecisionCache.
// It tracks basic metrics: hits, misses, and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, domain.BlockDecision]
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// newLRU is a seam for tests.
var newLRU = func(size int, onEvict func(string, domain.BlockDecision)) (*lru.Cache[string, domain.BlockDecision], error) {
	return lru.NewWithEvict(size, onEvict)
}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses.
func New(size int) (filter.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	dc := &decisionCache{capacity: size}
	// NewWithEvict observes evictions, including Purge-induced ones.
	cache, err := newLRU(size, func(_ string, _ domain.BlockDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

// Get looks up a decision by host. When found, increments hits; otherwise increments misses.
func (c *decisionCache) Get(host string) (domain.BlockDecision, bool) {
	if val, ok := c.lru.Get(host); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.BlockDecision{}, false
}

// Put stores a decision by host.
func (c *decisionCache) Put(host string, d domain.BlockDecision) {
	c.lru.Add(host, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() filter.CacheStats {
	return filter.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (d *disabledCache) Get(string) (domain.BlockDecision, bool) {
	return domain.BlockDecision{}, false
}

func (d *disabledCache) Put(string, domain.BlockDecision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() filter.CacheStats { return filter.CacheStats{} }

var _ filter.DecisionCache = (*decisionCache)(nil)
var _ filter.DecisionCache = (*disabledCache)(nil)
