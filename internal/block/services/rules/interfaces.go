package rules

import "github.com/haukened/rr-block/internal/block/domain"

// Repository persists the full ordered rule list.
// Load fails open and never returns an error; Save overwrites prior state.
type Repository interface {
	Load() []domain.BlockRule
	Save(rules []domain.BlockRule) error
}

// Listener receives every rule list the service has persisted, in write order.
// The request filter is the main listener.
type Listener interface {
	Refresh(rules []domain.BlockRule)
}

// IDGenerator returns a fresh opaque rule id.
type IDGenerator func() string
