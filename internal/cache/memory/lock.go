package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

type lease struct {
	token   uint64
	expires time.Time
}

// LockManager is an in-process domain.LockManager with expiring leases.
type LockManager struct {
	mu     sync.Mutex
	leases map[string]lease
	next   uint64
	now    func() time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{leases: make(map[string]lease), now: time.Now}
}

// Acquire takes key for ttl or fails with domain.ErrLockHeld.
func (m *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if l, ok := m.leases[key]; ok && now.Before(l.expires) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	m.next++
	token := m.next
	m.leases[key] = lease{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if l, ok := m.leases[key]; ok && l.token == token {
				delete(m.leases, key)
			}
		})
	}, nil
}
