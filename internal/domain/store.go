package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Snapshot is the full durable engine state.
type Snapshot struct {
	Listings map[AssetID]Listing
	Escrow   map[Address]Amount
	Paused   bool
}

// Change is the write set of one engine operation. A nil Listing clears
// the asset's listing; a zero balance removes the escrow entry.
type Change struct {
	Listings map[AssetID]Listing
	Escrow   map[Address]Amount
	Paused   *bool
}

// Empty reports whether c writes nothing.
func (c Change) Empty() bool {
	return len(c.Listings) == 0 && len(c.Escrow) == 0 && c.Paused == nil
}

// StateStore persists engine state. Apply is atomic per call.
type StateStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Apply(ctx context.Context, c Change) error
}

// SettlementStore persists settlement history.
type SettlementStore interface {
	Record(ctx context.Context, s Settlement) error
	List(ctx context.Context, opts ListOpts) ([]Settlement, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Settlement, error)
	DeleteIDs(ctx context.Context, ids []string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]AuditEntry, error)
	DeleteIDs(ctx context.Context, ids []int64) (int64, error)
}
