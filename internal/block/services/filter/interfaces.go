package filter

import "github.com/haukened/rr-block/internal/block/domain"

// BloomFilter is the minimal interface the filter needs from a Bloom filter.
// A false MightContain is definitive; true only means "check the snapshot".
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a BloomFilter sized for capacity keys at fpRate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    `json:"capacity"`  // configured capacity (0 for disabled cache)
	Size      int    `json:"size"`      // current number of entries
	Hits      uint64 `json:"hits"`      // total cache hits since construction
	Misses    uint64 `json:"misses"`    // total cache misses since construction
	Evictions uint64 `json:"evictions"` // total evictions since construction
}

// DecisionCache caches decisions by canonical hostname.
// It is purged whenever a new rule snapshot is published.
type DecisionCache interface {
	Get(host string) (domain.BlockDecision, bool)
	Put(host string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() CacheStats
}
