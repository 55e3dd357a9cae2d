package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// SettlementStore keeps settlement history in memory, newest last.
type SettlementStore struct {
	mu    sync.RWMutex
	items []domain.Settlement
}

// NewSettlementStore creates an empty SettlementStore.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{}
}

// Record appends s.
func (s *SettlementStore) Record(_ context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, st)
	return nil
}

// List returns settlements newest first.
func (s *SettlementStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Settlement
	for i := len(s.items) - 1; i >= 0; i-- {
		st := s.items[i]
		if opts.Since != nil && st.SettledAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !st.SettledAt.Before(*opts.Until) {
			continue
		}
		out = append(out, st)
	}
	return paginate(out, opts), nil
}

// ListBefore returns up to limit settlements older than before, oldest first.
func (s *SettlementStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Settlement
	for _, st := range s.items {
		if st.SettledAt.Before(before) {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SettledAt.Equal(out[j].SettledAt) {
			return out[i].SettledAt.Before(out[j].SettledAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteIDs drops the settlements with the given ids.
func (s *SettlementStore) DeleteIDs(_ context.Context, ids []string) (int64, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	var n int64
	for _, st := range s.items {
		if _, ok := drop[st.ID]; ok {
			n++
			continue
		}
		kept = append(kept, st)
	}
	s.items = kept
	return n, nil
}

// AuditStore keeps the audit log in memory.
type AuditStore struct {
	mu     sync.RWMutex
	nextID int64
	items  []domain.AuditEntry
	now    func() time.Time
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{now: time.Now}
}

// Log appends an entry.
func (a *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.items = append(a.items, domain.AuditEntry{
		ID:        a.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: a.now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (a *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []domain.AuditEntry
	for i := len(a.items) - 1; i >= 0; i-- {
		e := a.items[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return paginate(out, opts), nil
}

// ListBefore returns up to limit entries older than before, oldest first.
func (a *AuditStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range a.items {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// DeleteIDs drops the entries with the given ids.
func (a *AuditStore) DeleteIDs(_ context.Context, ids []int64) (int64, error) {
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.items[:0]
	var n int64
	for _, e := range a.items {
		if _, ok := drop[e.ID]; ok {
			n++
			continue
		}
		kept = append(kept, e)
	}
	a.items = kept
	return n, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
