// Package memory implements the store interfaces in process memory. It backs
// the engine when postgres is disabled.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// StateStore keeps the engine snapshot in memory.
type StateStore struct {
	mu       sync.Mutex
	listings map[domain.AssetID]domain.Listing
	escrow   map[domain.Address]domain.Amount
	paused   bool
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{
		listings: make(map[domain.AssetID]domain.Listing),
		escrow:   make(map[domain.Address]domain.Amount),
	}
}

// Load returns a copy of the stored snapshot.
func (s *StateStore) Load(_ context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := domain.Snapshot{
		Listings: make(map[domain.AssetID]domain.Listing, len(s.listings)),
		Escrow:   make(map[domain.Address]domain.Amount, len(s.escrow)),
		Paused:   s.paused,
	}
	for id, l := range s.listings {
		snap.Listings[id] = l
	}
	for addr, amt := range s.escrow {
		snap.Escrow[addr] = amt
	}
	return snap, nil
}

// Apply writes c.
func (s *StateStore) Apply(_ context.Context, c domain.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range c.Listings {
		if l == nil {
			delete(s.listings, id)
			continue
		}
		s.listings[id] = l
	}
	for addr, amt := range c.Escrow {
		if amt <= 0 {
			delete(s.escrow, addr)
			continue
		}
		s.escrow[addr] = amt
	}
	if c.Paused != nil {
		s.paused = *c.Paused
	}
	return nil
}
