package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Record inserts s. Recording the same settlement id twice is a no-op.
func (s *SettlementStore) Record(ctx context.Context, st domain.Settlement) error {
	var buyer *string
	if st.Buyer != domain.ZeroAddress {
		b := st.Buyer.Hex()
		buyer = &b
	}
	const query = `
		INSERT INTO settlements (id, asset_id, kind, seller, buyer, amount, refund, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		st.ID, int64(st.AssetID), string(st.Kind), st.Seller.Hex(), buyer,
		int64(st.Amount), int64(st.Refund), st.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record settlement %s: %w", st.ID, err)
	}
	return nil
}

// List returns settlements newest first with pagination and optional time filtering.
func (s *SettlementStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT id, asset_id, kind, seller, buyer, amount, refund, settled_at FROM settlements WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND settled_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND settled_at < $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY settled_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	return scanSettlementRows(rows)
}

// ListBefore returns up to limit settlements older than before, oldest first.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Settlement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, asset_id, kind, seller, buyer, amount, refund, settled_at
		FROM settlements WHERE settled_at < $1
		ORDER BY settled_at ASC, id ASC LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", before.Format(time.RFC3339), err)
	}
	return scanSettlementRows(rows)
}

// DeleteIDs removes the settlements with the given ids.
func (s *SettlementStore) DeleteIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM settlements WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settlements: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSettlementRows(rows pgx.Rows) ([]domain.Settlement, error) {
	defer rows.Close()
	var out []domain.Settlement
	for rows.Next() {
		var (
			st             domain.Settlement
			assetID        int64
			kind, seller   string
			buyer          *string
			amount, refund int64
		)
		if err := rows.Scan(&st.ID, &assetID, &kind, &seller, &buyer, &amount, &refund, &st.SettledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		st.AssetID = domain.AssetID(assetID)
		st.Kind = domain.SettlementKind(kind)
		st.Seller = common.HexToAddress(seller)
		if buyer != nil {
			st.Buyer = common.HexToAddress(*buyer)
		}
		st.Amount, st.Refund = domain.Amount(amount), domain.Amount(refund)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: settlement rows: %w", err)
	}
	return out, nil
}
