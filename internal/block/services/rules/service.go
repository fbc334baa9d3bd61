package rules

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/parsers"
)

// maxIDAttempts bounds regeneration when an id generator repeats itself.
const maxIDAttempts = 8

// Options configures a Service.
type Options struct {
	Store     Repository
	Listeners []Listener
	NewID     IDGenerator // defaults to random UUIDs
	Logger    log.Logger
}

// ImportResult reports the outcome of a bulk import.
type ImportResult struct {
	Added   int                `json:"added"`
	Skipped int                `json:"skipped"`
	Rules   []domain.BlockRule `json:"rules"`
}

// Service owns the ordered rule list. It is the single writer of the
// Repository; every successful write is published to the listeners.
type Service struct {
	mu        sync.Mutex
	store     Repository
	rules     []domain.BlockRule
	loaded    bool
	listeners []Listener
	newID     IDGenerator
	logger    log.Logger
}

// NewService constructs a Service. Rules are read on the first Load or mutation.
func NewService(opts Options) *Service {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Service{
		store:     opts.Store,
		listeners: append([]Listener(nil), opts.Listeners...),
		newID:     newID,
		logger:    logger,
	}
}

// Load reads the persisted list, replaces the in-memory copy and publishes it.
// A missing or unreadable entry yields an empty list.
func (s *Service) Load() []domain.BlockRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = s.store.Load()
	s.loaded = true
	s.publishLocked()
	s.logger.Info(map[string]any{"count": len(s.rules)}, "Rules loaded")
	return cloneRules(s.rules)
}

// Save persists rules as the complete list. Ids must be present and unique.
func (s *Service) Save(rules []domain.BlockRule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("save rules: rule with url %q has no id", r.URL)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("save rules: duplicate id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	return s.commitLocked(cloneRules(rules))
}

// List returns the current rules in insertion order.
func (s *Service) List() []domain.BlockRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()
	return cloneRules(s.rules)
}

// Get returns the rule with id, or domain.ErrNotFound.
func (s *Service) Get(id string) (domain.BlockRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()
	if i := s.indexLocked(id); i >= 0 {
		return s.rules[i], nil
	}
	return domain.BlockRule{}, fmt.Errorf("get %q: %w", id, domain.ErrNotFound)
}

// Add validates rawURL and appends a blocking rule.
// Invalid input returns a *domain.ValidationError and leaves the list unchanged.
func (s *Service) Add(rawURL string) (domain.BlockRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	if _, err := domain.NormalizeRuleURL(rawURL); err != nil {
		s.logger.Debug(map[string]any{"input": rawURL, "error": err.Error()}, "rule_add_rejected")
		return domain.BlockRule{}, err
	}
	id, err := s.freshIDLocked(nil)
	if err != nil {
		return domain.BlockRule{}, err
	}
	rule, err := domain.NewBlockRule(id, rawURL)
	if err != nil {
		return domain.BlockRule{}, err
	}

	next := append(cloneRules(s.rules), rule)
	if err := s.commitLocked(next); err != nil {
		return domain.BlockRule{}, err
	}
	s.logger.Info(map[string]any{"id": rule.ID, "url": rule.URL}, "Rule added")
	return rule, nil
}

// Toggle flips IsBlocked on the rule with id and returns the updated rule.
// An unknown id returns domain.ErrNotFound and changes nothing.
func (s *Service) Toggle(id string) (domain.BlockRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	i := s.indexLocked(id)
	if i < 0 {
		s.logger.Debug(map[string]any{"id": id}, "rule_toggle_not_found")
		return domain.BlockRule{}, fmt.Errorf("toggle %q: %w", id, domain.ErrNotFound)
	}
	next := cloneRules(s.rules)
	next[i] = next[i].Toggled()
	if err := s.commitLocked(next); err != nil {
		return domain.BlockRule{}, err
	}
	s.logger.Info(map[string]any{"id": id, "blocked": next[i].IsBlocked}, "Rule toggled")
	return next[i], nil
}

// Remove deletes the rule with id.
// An unknown id returns domain.ErrNotFound and changes nothing.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	i := s.indexLocked(id)
	if i < 0 {
		s.logger.Debug(map[string]any{"id": id}, "rule_remove_not_found")
		return fmt.Errorf("remove %q: %w", id, domain.ErrNotFound)
	}
	next := make([]domain.BlockRule, 0, len(s.rules)-1)
	next = append(next, s.rules[:i]...)
	next = append(next, s.rules[i+1:]...)
	if err := s.commitLocked(next); err != nil {
		return err
	}
	s.logger.Info(map[string]any{"id": id}, "Rule removed")
	return nil
}

// Import parses a host list and appends a blocking rule for every hostname
// not already covered by an existing rule. The batch is saved once.
func (s *Service) Import(r io.Reader, format parsers.Format, source string) (ImportResult, error) {
	hosts, err := parsers.Parse(format, r, source, s.logger)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse %s list %q: %w", format, source, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	known := make(map[string]struct{}, len(s.rules))
	for _, r := range s.rules {
		if h := r.Hostname(); h != "" {
			known[h] = struct{}{}
		}
	}

	res := ImportResult{Rules: []domain.BlockRule{}}
	next := cloneRules(s.rules)
	taken := make(map[string]struct{})
	for _, h := range hosts {
		if _, ok := known[h]; ok {
			res.Skipped++
			continue
		}
		id, err := s.freshIDLocked(taken)
		if err != nil {
			return ImportResult{}, err
		}
		rule, err := domain.NewBlockRule(id, h)
		if err != nil {
			res.Skipped++
			continue
		}
		taken[id] = struct{}{}
		known[h] = struct{}{}
		next = append(next, rule)
		res.Rules = append(res.Rules, rule)
		res.Added++
	}

	if res.Added > 0 {
		if err := s.commitLocked(next); err != nil {
			return ImportResult{}, err
		}
	}
	s.logger.Info(map[string]any{"source": source, "format": string(format), "added": res.Added, "skipped": res.Skipped}, "Rules imported")
	return res, nil
}

// commitLocked persists next and, only on success, makes it current.
func (s *Service) commitLocked(next []domain.BlockRule) error {
	if err := s.store.Save(next); err != nil {
		s.logger.Error(map[string]any{"error": err.Error(), "count": len(next)}, "Failed to save rules")
		return fmt.Errorf("save rules: %w", err)
	}
	s.rules = next
	s.publishLocked()
	return nil
}

func (s *Service) publishLocked() {
	for _, l := range s.listeners {
		l.Refresh(cloneRules(s.rules))
	}
}

func (s *Service) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.rules = s.store.Load()
	s.loaded = true
	s.publishLocked()
}

func (s *Service) indexLocked(id string) int {
	for i, r := range s.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// freshIDLocked returns an id not used by the current rules nor in taken.
func (s *Service) freshIDLocked(taken map[string]struct{}) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.newID()
		if id == "" || s.indexLocked(id) >= 0 {
			continue
		}
		if _, ok := taken[id]; ok {
			continue
		}
		return id, nil
	}
	return "", fmt.Errorf("could not allocate a unique rule id after %d attempts", maxIDAttempts)
}

func cloneRules(in []domain.BlockRule) []domain.BlockRule {
	out := make([]domain.BlockRule, len(in))
	copy(out, in)
	return out
}
