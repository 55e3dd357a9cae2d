package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// AssetRegistry implements domain.AssetRegistry on the assets and
// operator_approvals tables.
type AssetRegistry struct {
	pool *pgxpool.Pool
}

// NewAssetRegistry creates a new AssetRegistry backed by the given connection pool.
func NewAssetRegistry(pool *pgxpool.Pool) *AssetRegistry {
	return &AssetRegistry{pool: pool}
}

// Mint records a new asset held by owner.
func (r *AssetRegistry) Mint(ctx context.Context, id domain.AssetID, owner domain.Address) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO assets (asset_id, owner) VALUES ($1, $2) ON CONFLICT (asset_id) DO NOTHING`,
		int64(id), owner.Hex())
	if err != nil {
		return fmt.Errorf("postgres: mint asset %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mint asset %d: already minted", id)
	}
	return nil
}

// SetApprovalForAll grants or revokes operator's right to move owner's assets.
func (r *AssetRegistry) SetApprovalForAll(ctx context.Context, owner, operator domain.Address, approved bool) error {
	var err error
	if approved {
		_, err = r.pool.Exec(ctx,
			`INSERT INTO operator_approvals (owner, operator) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			owner.Hex(), operator.Hex())
	} else {
		_, err = r.pool.Exec(ctx,
			`DELETE FROM operator_approvals WHERE owner = $1 AND operator = $2`,
			owner.Hex(), operator.Hex())
	}
	if err != nil {
		return fmt.Errorf("postgres: set approval %s -> %s: %w", owner.Hex(), operator.Hex(), err)
	}
	return nil
}

// OwnerOf returns the current holder of id.
func (r *AssetRegistry) OwnerOf(ctx context.Context, id domain.AssetID) (domain.Address, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT owner FROM assets WHERE asset_id = $1`, int64(id)).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ZeroAddress, fmt.Errorf("postgres: owner of %d: %w", id, domain.ErrNotFound)
		}
		return domain.ZeroAddress, fmt.Errorf("postgres: owner of %d: %w", id, err)
	}
	return common.HexToAddress(owner), nil
}

// IsApprovedForOperator reports whether operator may move owner's assets.
func (r *AssetRegistry) IsApprovedForOperator(ctx context.Context, owner, operator domain.Address) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM operator_approvals WHERE owner = $1 AND operator = $2)`,
		owner.Hex(), operator.Hex()).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: approval %s -> %s: %w", owner.Hex(), operator.Hex(), err)
	}
	return ok, nil
}

// TransferCustody moves id from from to to. The conditional update makes
// the holder check and the move a single statement.
func (r *AssetRegistry) TransferCustody(ctx context.Context, id domain.AssetID, from, to domain.Address) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assets SET owner = $3, updated_at = NOW() WHERE asset_id = $1 AND owner = $2`,
		int64(id), from.Hex(), to.Hex())
	if err != nil {
		return fmt.Errorf("postgres: transfer %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.OwnerOf(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("postgres: transfer %d from %s: %w", id, from.Hex(), domain.ErrNotHolder)
	}
	return nil
}
