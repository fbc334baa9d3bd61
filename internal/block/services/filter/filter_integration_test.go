package filter_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/decision/bloom"
	"github.com/haukened/rr-block/internal/block/repos/decision/lru"
	"github.com/haukened/rr-block/internal/block/services/filter"
)

func TestFilter_WithLRUAndBloom(t *testing.T) {
	cache, err := lru.New(128)
	require.NoError(t, err)
	f := filter.New(filter.Options{
		Cache:  cache,
		Bloom:  bloom.NewFactory(),
		FPRate: 0.01,
		Logger: log.NewNoopLogger(),
	})

	rules := make([]domain.BlockRule, 0, 100)
	for i := 0; i < 100; i++ {
		rules = append(rules, domain.BlockRule{
			ID:        fmt.Sprintf("r%03d", i),
			URL:       fmt.Sprintf("https://h%03d.example", i),
			IsBlocked: i%2 == 0,
		})
	}
	f.Refresh(rules)

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		u := fmt.Sprintf("https://h%03d.example/path", i)
		assert.Equal(t, i%2 == 0, f.ShouldBlock(ctx, u), u)
	}
	// second pass is cache-served for bloom positives
	for i := 0; i < 100; i += 2 {
		assert.True(t, f.ShouldBlock(ctx, fmt.Sprintf("https://h%03d.example", i)))
	}
	st := f.Stats()
	assert.Equal(t, 50, st.BlockedHosts)
	assert.GreaterOrEqual(t, st.Cache.Hits, uint64(50))
	assert.Equal(t, 128, st.Cache.Capacity)
}
