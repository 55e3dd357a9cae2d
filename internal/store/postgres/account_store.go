package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// AccountStore implements domain.PaymentRail on the accounts table. Funds
// held by the engine live in the row of the engine's own address.
type AccountStore struct {
	pool   *pgxpool.Pool
	engine domain.Address
}

// NewAccountStore creates a new AccountStore. engine is the custody address.
func NewAccountStore(pool *pgxpool.Pool, engine domain.Address) *AccountStore {
	return &AccountStore{pool: pool, engine: engine}
}

// Deposit credits amount to addr.
func (s *AccountStore) Deposit(ctx context.Context, addr domain.Address, amount domain.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: deposit %d: non-positive amount", amount)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
		addr.Hex(), int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", addr.Hex(), err)
	}
	return nil
}

// Balance returns addr's balance, zero when it has no account.
func (s *AccountStore) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	var bal int64
	err := s.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE address = $1`, addr.Hex()).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance of %s: %w", addr.Hex(), err)
	}
	return domain.Amount(bal), nil
}

// Collect moves amount from from into the engine account.
func (s *AccountStore) Collect(ctx context.Context, from domain.Address, amount domain.Amount) error {
	return s.move(ctx, from, s.engine, amount)
}

// Pay moves amount from the engine account to to.
func (s *AccountStore) Pay(ctx context.Context, to domain.Address, amount domain.Amount) error {
	return s.move(ctx, s.engine, to, amount)
}

func (s *AccountStore) move(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: move %d: non-positive amount", amount)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2, updated_at = NOW() WHERE address = $1 AND balance >= $2`,
		from.Hex(), int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: debit %d from %s: %w", amount, from.Hex(), domain.ErrInsufficientFunds)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`,
		to.Hex(), int64(amount)); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to.Hex(), err)
	}
	return tx.Commit(ctx)
}
