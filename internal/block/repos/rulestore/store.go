package rulestore

import (
	"encoding/json"
	"fmt"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// DefaultKey is the entry name the rule list is stored under.
const DefaultKey = "blockedSites"

// Store persists the ordered rule list as a single JSON entry in a KVStore.
type Store struct {
	kv     KVStore
	key    string
	logger log.Logger
}

// New returns a Store writing to key in kv. An empty key selects DefaultKey.
func New(kv KVStore, key string, logger log.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Store{kv: kv, key: key, logger: logger}
}

// Key returns the entry name the rules are stored under.
func (s *Store) Key() string { return s.key }

// Load returns the persisted rules in stored order.
// Policy: fail open. A missing entry, a read error or undecodable data all
// yield an empty list; errors are logged, never returned.
// Records with an empty or repeated id are dropped, first occurrence wins.
func (s *Store) Load() []domain.BlockRule {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		s.logger.Warn(map[string]any{"key": s.key, "error": err.Error()}, "rule_store_read_failed")
		return []domain.BlockRule{}
	}
	if !ok || len(raw) == 0 {
		s.logger.Debug(map[string]any{"key": s.key}, "rule_store_empty")
		return []domain.BlockRule{}
	}

	var decoded []domain.BlockRule
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.logger.Warn(map[string]any{"key": s.key, "error": err.Error(), "size": len(raw)}, "rule_store_decode_failed")
		return []domain.BlockRule{}
	}

	seen := make(map[string]struct{}, len(decoded))
	out := make([]domain.BlockRule, 0, len(decoded))
	for i, r := range decoded {
		if r.ID == "" {
			s.logger.Warn(map[string]any{"index": i, "url": r.URL}, "rule_store_skip_missing_id")
			continue
		}
		if _, dup := seen[r.ID]; dup {
			s.logger.Warn(map[string]any{"index": i, "id": r.ID}, "rule_store_skip_duplicate_id")
			continue
		}
		if err := r.Validate(); err != nil {
			// kept for display; it can never match a request
			s.logger.Warn(map[string]any{"id": r.ID, "error": err.Error()}, "rule_store_invalid_url")
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	s.logger.Debug(map[string]any{"key": s.key, "count": len(out)}, "rule_store_loaded")
	return out
}

// Save serializes the full list and overwrites the stored entry.
func (s *Store) Save(rules []domain.BlockRule) error {
	if rules == nil {
		rules = []domain.BlockRule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := s.kv.Put(s.key, raw); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	s.logger.Debug(map[string]any{"key": s.key, "count": len(rules)}, "rule_store_saved")
	return nil
}

// Stats returns the underlying store metadata.
func (s *Store) Stats() StoreStats { return s.kv.Stats() }

// Close releases the underlying store.
func (s *Store) Close() error { return s.kv.Close() }
