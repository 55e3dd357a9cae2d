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

// StateStore implements domain.StateStore on the listings, escrow_balances
// and engine_state tables.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Load reads the full engine snapshot.
func (s *StateStore) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		Listings: make(map[domain.AssetID]domain.Listing),
		Escrow:   make(map[domain.Address]domain.Amount),
	}

	rows, err := s.pool.Query(ctx, `
		SELECT asset_id, kind, seller, price, asking_price, highest_bid, highest_bidder, end_time
		FROM listings`)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: load listings: %w", err)
	}
	for rows.Next() {
		id, l, err := scanListing(rows)
		if err != nil {
			rows.Close()
			return domain.Snapshot{}, err
		}
		snap.Listings[id] = l
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: load listings rows: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT address, amount FROM escrow_balances`)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: load escrow: %w", err)
	}
	for rows.Next() {
		var addr string
		var amount int64
		if err := rows.Scan(&addr, &amount); err != nil {
			rows.Close()
			return domain.Snapshot{}, fmt.Errorf("postgres: scan escrow: %w", err)
		}
		snap.Escrow[common.HexToAddress(addr)] = domain.Amount(amount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: load escrow rows: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT paused FROM engine_state WHERE id = 1`).Scan(&snap.Paused)
	if err != nil && err != pgx.ErrNoRows {
		return domain.Snapshot{}, fmt.Errorf("postgres: load engine state: %w", err)
	}
	return snap, nil
}

// Apply writes c in a single transaction.
func (s *StateStore) Apply(ctx context.Context, c domain.Change) error {
	if c.Empty() {
		return nil
	}

	batch := &pgx.Batch{}
	for id, l := range c.Listings {
		queueListing(batch, id, l)
	}
	for addr, amount := range c.Escrow {
		if amount <= 0 {
			batch.Queue(`DELETE FROM escrow_balances WHERE address = $1`, addr.Hex())
			continue
		}
		batch.Queue(`
			INSERT INTO escrow_balances (address, amount, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`,
			addr.Hex(), int64(amount))
	}
	if c.Paused != nil {
		batch.Queue(`
			INSERT INTO engine_state (id, paused, updated_at) VALUES (1, $1, NOW())
			ON CONFLICT (id) DO UPDATE SET paused = EXCLUDED.paused, updated_at = NOW()`,
			*c.Paused)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: apply state item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: apply state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit state: %w", err)
	}
	return nil
}

func queueListing(batch *pgx.Batch, id domain.AssetID, l domain.Listing) {
	const upsert = `
		INSERT INTO listings (
			asset_id, kind, seller, price, asking_price, highest_bid, highest_bidder, end_time, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (asset_id) DO UPDATE SET
			kind           = EXCLUDED.kind,
			seller         = EXCLUDED.seller,
			price          = EXCLUDED.price,
			asking_price   = EXCLUDED.asking_price,
			highest_bid    = EXCLUDED.highest_bid,
			highest_bidder = EXCLUDED.highest_bidder,
			end_time       = EXCLUDED.end_time,
			updated_at     = NOW()`

	switch l := l.(type) {
	case domain.FixedListing:
		batch.Queue(upsert, int64(id), domain.ListingFixed.String(), l.Seller.Hex(),
			int64(l.Price), int64(0), int64(0), nil, nil)
	case domain.AuctionListing:
		var bidder *string
		if l.Auction.HasBid() {
			h := l.Auction.HighestBidder.Hex()
			bidder = &h
		}
		batch.Queue(upsert, int64(id), domain.ListingAuction.String(), l.Seller.Hex(),
			int64(0), int64(l.Auction.AskingPrice), int64(l.Auction.HighestBid), bidder, l.Auction.EndTime)
	default:
		batch.Queue(`DELETE FROM listings WHERE asset_id = $1`, int64(id))
	}
}

func scanListing(row pgx.Row) (domain.AssetID, domain.Listing, error) {
	var (
		id                        int64
		kind, seller              string
		price, asking, highestBid int64
		bidder                    *string
		endTime                   *time.Time
	)
	if err := row.Scan(&id, &kind, &seller, &price, &asking, &highestBid, &bidder, &endTime); err != nil {
		return 0, nil, fmt.Errorf("postgres: scan listing: %w", err)
	}

	switch kind {
	case domain.ListingFixed.String():
		return domain.AssetID(id), domain.FixedListing{
			Seller: common.HexToAddress(seller),
			Price:  domain.Amount(price),
		}, nil
	case domain.ListingAuction.String():
		a := domain.Auction{AskingPrice: domain.Amount(asking), HighestBid: domain.Amount(highestBid)}
		if bidder != nil {
			a.HighestBidder = common.HexToAddress(*bidder)
		}
		if endTime != nil {
			a.EndTime = endTime.UTC()
		}
		return domain.AssetID(id), domain.AuctionListing{Seller: common.HexToAddress(seller), Auction: a}, nil
	default:
		return 0, nil, fmt.Errorf("postgres: listing %d has unknown kind %q", id, kind)
	}
}
