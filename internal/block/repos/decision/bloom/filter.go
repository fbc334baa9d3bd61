package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// bloomFilter wraps a bits-and-blooms filter. Snapshots are built once and
// then only read, but Add stays safe against concurrent readers.
type bloomFilter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *bloomFilter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *bloomFilter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}
