package memory

import (
	"sync"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/repos/rulestore"
)

// memStore is a process-local rulestore.KVStore. State is lost on exit.
type memStore struct {
	mu      sync.RWMutex
	clk     clock.Clock
	data    map[string][]byte
	version uint64
	updated int64
	closed  bool
}

// New returns an empty in-memory KVStore. A nil clk uses the wall clock.
func New(clk clock.Clock) rulestore.KVStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &memStore{clk: clk, data: make(map[string][]byte)}
}

func (m *memStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, rulestore.ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *memStore) Put(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	now := m.clk.Now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return rulestore.ErrClosed
	}
	m.data[key] = cp
	m.version++
	m.updated = now
	return nil
}

func (m *memStore) Stats() rulestore.StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return rulestore.StoreStats{
		Keys:        uint64(len(m.data)),
		Version:     m.version,
		UpdatedUnix: m.updated,
	}
}

func (m *memStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ rulestore.KVStore = (*memStore)(nil)
