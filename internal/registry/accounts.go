package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Accounts is an in-memory currency rail. Collected funds sit in a single
// engine float until paid out. It is safe for concurrent use.
type Accounts struct {
	mu       sync.Mutex
	balances map[domain.Address]domain.Amount
	float    domain.Amount
}

// NewAccounts creates a rail with no balances.
func NewAccounts() *Accounts {
	return &Accounts{balances: make(map[domain.Address]domain.Amount)}
}

// Deposit adds amount to addr's spendable balance.
func (a *Accounts) Deposit(addr domain.Address, amount domain.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[addr] += amount
}

// Balance returns addr's spendable balance.
func (a *Accounts) Balance(addr domain.Address) domain.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[addr]
}

// Float returns the funds currently held by the engine.
func (a *Accounts) Float() domain.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.float
}

// Total returns every party balance plus the float.
func (a *Accounts) Total() domain.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := a.float
	for _, b := range a.balances {
		total += b
	}
	return total
}

// Collect moves amount from from into the float.
func (a *Accounts) Collect(_ context.Context, from domain.Address, amount domain.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("registry: collect %d: non-positive amount", amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balances[from] < amount {
		return fmt.Errorf("registry: collect %d from %s: %w", amount, from.Hex(), domain.ErrInsufficientFunds)
	}
	a.balances[from] -= amount
	a.float += amount
	return nil
}

// Pay moves amount from the float to to.
func (a *Accounts) Pay(_ context.Context, to domain.Address, amount domain.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("registry: pay %d: non-positive amount", amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.float < amount {
		return fmt.Errorf("registry: pay %d to %s: float %d: %w", amount, to.Hex(), a.float, domain.ErrInsufficientFunds)
	}
	a.float -= amount
	a.balances[to] += amount
	return nil
}
