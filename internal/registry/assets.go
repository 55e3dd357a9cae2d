// Package registry provides in-memory asset and currency collaborators for
// the trading engine. They back development mode and hermetic tests.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Assets is an in-memory asset registry. It is safe for concurrent use.
type Assets struct {
	mu        sync.RWMutex
	owners    map[domain.AssetID]domain.Address
	approvals map[domain.Address]map[domain.Address]bool
}

// NewAssets creates an empty registry.
func NewAssets() *Assets {
	return &Assets{
		owners:    make(map[domain.AssetID]domain.Address),
		approvals: make(map[domain.Address]map[domain.Address]bool),
	}
}

// Mint records a new asset held by owner. Minting an existing id fails.
func (a *Assets) Mint(id domain.AssetID, owner domain.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.owners[id]; ok {
		return fmt.Errorf("registry: mint %d: already minted", id)
	}
	a.owners[id] = owner
	return nil
}

// SetApprovalForAll grants or revokes operator's right to move owner's assets.
func (a *Assets) SetApprovalForAll(owner, operator domain.Address, approved bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ops := a.approvals[owner]
	if ops == nil {
		ops = make(map[domain.Address]bool)
		a.approvals[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
}

// OwnerOf returns the current holder of id.
func (a *Assets) OwnerOf(_ context.Context, id domain.AssetID) (domain.Address, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	owner, ok := a.owners[id]
	if !ok {
		return domain.ZeroAddress, fmt.Errorf("registry: owner of %d: %w", id, domain.ErrNotFound)
	}
	return owner, nil
}

// IsApprovedForOperator reports whether operator may move owner's assets.
func (a *Assets) IsApprovedForOperator(_ context.Context, owner, operator domain.Address) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.approvals[owner][operator], nil
}

// TransferCustody moves id from from to to.
func (a *Assets) TransferCustody(_ context.Context, id domain.AssetID, from, to domain.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	owner, ok := a.owners[id]
	if !ok {
		return fmt.Errorf("registry: transfer %d: %w", id, domain.ErrNotFound)
	}
	if owner != from {
		return fmt.Errorf("registry: transfer %d from %s: %w", id, from.Hex(), domain.ErrNotHolder)
	}
	a.owners[id] = to
	return nil
}

// Holdings returns a copy of every asset's holder.
func (a *Assets) Holdings() map[domain.AssetID]domain.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[domain.AssetID]domain.Address, len(a.owners))
	for id, owner := range a.owners {
		out[id] = owner
	}
	return out
}
