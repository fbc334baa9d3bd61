package filter

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// snapshot is an immutable view of the blocking rules.
type snapshot struct {
	version uint64
	hosts   map[string]string // canonical host -> id of the first blocking rule
	bloom   BloomFilter       // nil when no factory is configured
	rules   int               // rules seen, blocking or not
}

// Options configures a Filter. Cache and Bloom are optional.
type Options struct {
	Cache  DecisionCache
	Bloom  BloomFactory
	FPRate float64
	Logger log.Logger
}

// Filter decides whether outgoing requests are cancelled.
//
// Decisions are made against the most recently published snapshot. Until the
// first Refresh, Decide waits instead of answering from an empty rule set.
type Filter struct {
	mu        sync.Mutex // serializes Refresh
	snap      atomic.Pointer[snapshot]
	ready     chan struct{}
	readyOnce sync.Once

	cache   DecisionCache
	factory BloomFactory
	fpRate  float64
	logger  log.Logger
}

// FilterStats is a point-in-time view of the filter.
type FilterStats struct {
	Ready        bool       `json:"ready"`
	Version      uint64     `json:"version"`
	Rules        int        `json:"rules"`
	BlockedHosts int        `json:"blockedHosts"`
	Cache        CacheStats `json:"cache"`
}

// New constructs a Filter that is not ready until Refresh is called.
func New(opts Options) *Filter {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Filter{
		ready:   make(chan struct{}),
		cache:   opts.Cache,
		factory: opts.Bloom,
		fpRate:  opts.FPRate,
		logger:  logger,
	}
}

// Refresh publishes a new snapshot built from rules and marks the filter ready.
// Only rules with IsBlocked set and a parsable URL take part in matching.
func (f *Filter) Refresh(rules []domain.BlockRule) {
	hosts := make(map[string]string, len(rules))
	for _, r := range rules {
		if !r.IsBlocked {
			continue
		}
		h := r.Hostname()
		if h == "" {
			f.logger.Debug(map[string]any{"id": r.ID, "url": r.URL}, "filter_skip_unparsable_rule")
			continue
		}
		if _, ok := hosts[h]; !ok {
			hosts[h] = r.ID
		}
	}

	var bf BloomFilter
	if f.factory != nil {
		bf = f.factory.New(uint64(len(hosts)), f.fpRate)
		for h := range hosts {
			bf.Add([]byte(h))
		}
	}

	f.mu.Lock()
	var version uint64 = 1
	if prev := f.snap.Load(); prev != nil {
		version = prev.version + 1
	}
	f.snap.Store(&snapshot{version: version, hosts: hosts, bloom: bf, rules: len(rules)})
	if f.cache != nil {
		f.cache.Purge()
	}
	f.mu.Unlock()

	f.readyOnce.Do(func() { close(f.ready) })
	f.logger.Debug(map[string]any{"version": version, "rules": len(rules), "blocked_hosts": len(hosts)}, "filter_snapshot_published")
}

// Ready is closed once the first snapshot has been published.
func (f *Filter) Ready() <-chan struct{} { return f.ready }

// Decide evaluates requestURL against the current snapshot.
//
// Policy: fail open. A URL without a scheme or hostname is allowed at once.
// Otherwise Decide waits for the first snapshot; if ctx ends first it returns
// an allow decision together with ctx.Err(), and the caller must not treat
// that as permission to dispatch.
func (f *Filter) Decide(ctx context.Context, requestURL string) (domain.BlockDecision, error) {
	host, err := domain.RequestHost(requestURL)
	if err != nil {
		f.logger.Debug(map[string]any{"url": requestURL, "error": err.Error()}, "filter_allow_unparsable_url")
		return domain.EmptyDecision(), nil
	}
	s, err := f.await(ctx)
	if err != nil {
		return domain.AllowDecision(host), err
	}
	return f.decideHost(s, host), nil
}

// ShouldBlock reports whether requestURL must be cancelled. Any error,
// including ctx ending before rules are available, reports false.
func (f *Filter) ShouldBlock(ctx context.Context, requestURL string) bool {
	d, err := f.Decide(ctx, requestURL)
	if err != nil {
		return false
	}
	return d.Blocked
}

// Stats returns a point-in-time view of the snapshot and cache.
func (f *Filter) Stats() FilterStats {
	st := FilterStats{}
	if s := f.snap.Load(); s != nil {
		st.Ready = true
		st.Version = s.version
		st.Rules = s.rules
		st.BlockedHosts = len(s.hosts)
	}
	if f.cache != nil {
		st.Cache = f.cache.Stats()
	}
	return st
}

func (f *Filter) await(ctx context.Context) (*snapshot, error) {
	if s := f.snap.Load(); s != nil {
		return s, nil
	}
	select {
	case <-f.ready:
		return f.snap.Load(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// decideHost applies bloom -> cache -> snapshot lookup.
func (f *Filter) decideHost(s *snapshot, host string) domain.BlockDecision {
	// definitive negative, no cache traffic
	if s.bloom != nil && !s.bloom.MightContain([]byte(host)) {
		return domain.AllowDecision(host)
	}
	// keys carry the snapshot version so entries computed against an older
	// snapshot are never served after a Refresh
	key := strconv.FormatUint(s.version, 10) + "|" + host
	if f.cache != nil {
		if d, ok := f.cache.Get(key); ok {
			return d
		}
	}
	d := domain.AllowDecision(host)
	if id, ok := s.hosts[host]; ok {
		d = domain.BlockDecision{Blocked: true, Host: host, MatchedRule: id}
	}
	if f.cache != nil {
		f.cache.Put(key, d)
	}
	return d
}
