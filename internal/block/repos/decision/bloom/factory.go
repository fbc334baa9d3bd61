package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-block/internal/block/services/filter"
)

// factory implements filter.BloomFactory.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() filter.BloomFactory { return factory{} }

// New constructs a BloomFilter sized for the given capacity and false-positive rate.
func (factory) New(capacity uint64, fpRate float64) filter.BloomFilter {
	m, k := size(capacity, fpRate)
	return &bloomFilter{bf: bitsbloom.New(uint(m), uint(k))}
}
