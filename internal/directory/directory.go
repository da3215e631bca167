// Package directory resolves party IDs to display names. The marketplace's
// partner/customer CRUD lives outside this subsystem; only the lookup is
// consumed here, for persisted call records and admin search.
package directory

import (
	"context"
	"sync"

	"github.com/pannenhilfe24/callcore/internal/types"
)

// Directory resolves a party to its display name.
type Directory interface {
	DisplayName(ctx context.Context, party types.Party) (string, error)
}

// Static is an in-memory Directory for development and tests.
type Static struct {
	mu    sync.RWMutex
	names map[string]string // party ID -> name
}

// NewStatic creates a Static directory from an initial name map.
func NewStatic(names map[string]string) *Static {
	copied := make(map[string]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return &Static{names: copied}
}

// Set adds or replaces a party's display name.
func (s *Static) Set(partyID, name string) {
	s.mu.Lock()
	s.names[partyID] = name
	s.mu.Unlock()
}

// DisplayName returns the stored name, or the party ID when unknown.
func (s *Static) DisplayName(_ context.Context, party types.Party) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name, ok := s.names[party.ID]; ok {
		return name, nil
	}
	return party.ID, nil
}
