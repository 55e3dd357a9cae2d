package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

const settlerLockKey = "auction-settler"

// AuctionFinalizer is the slice of the engine the settler drives.
type AuctionFinalizer interface {
	Paused() bool
	EndedAuctions() []domain.AssetID
	FinalizeAuction(ctx context.Context, caller domain.Address, id domain.AssetID) (domain.Settlement, error)
}

// Settler finalizes ended auctions in the background using the operator
// identity. When a LockManager is set only the lock holder sweeps.
type Settler struct {
	engine   AuctionFinalizer
	operator domain.Address
	locks    domain.LockManager
	trigger  <-chan struct{}
	interval time.Duration
	logger   *slog.Logger
}

// NewSettler creates a Settler sweeping every interval (default 30s).
func NewSettler(engine AuctionFinalizer, operator domain.Address, interval time.Duration, logger *slog.Logger) *Settler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Settler{
		engine:   engine,
		operator: operator,
		interval: interval,
		logger:   logger.With(slog.String("component", "settler")),
	}
}

// SetTrigger makes Run sweep whenever ch receives, in addition to the
// ticker.
func (s *Settler) SetTrigger(ch <-chan struct{}) {
	s.trigger = ch
}

// SetLockManager makes sweeps exclusive across instances.
func (s *Settler) SetLockManager(l domain.LockManager) {
	s.locks = l
}

// Run sweeps on every tick, and on every trigger receive, until ctx is
// cancelled.
func (s *Settler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "settler started",
		slog.Duration("interval", s.interval),
		slog.String("operator", s.operator.Hex()),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
			s.logger.InfoContext(ctx, "settler sweep triggered")
		}
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "settler sweep failed", slog.String("error", err.Error()))
		}
	}
}

// Sweep finalizes every auction whose end time has passed and returns how
// many were settled. Auctions settled concurrently by their seller are
// skipped silently.
func (s *Settler) Sweep(ctx context.Context) (int, error) {
	if s.engine.Paused() {
		return 0, nil
	}
	ended := s.engine.EndedAuctions()
	if len(ended) == 0 {
		return 0, nil
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, settlerLockKey, s.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "settler lock held elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer unlock()
	}

	settled := 0
	for _, id := range ended {
		st, err := s.engine.FinalizeAuction(ctx, s.operator, id)
		switch {
		case err == nil:
			settled++
			s.logger.InfoContext(ctx, "auction finalized",
				slog.Uint64("asset_id", uint64(id)),
				slog.String("winner", st.Buyer.Hex()),
				slog.Int64("amount", int64(st.Amount)),
			)
		case errors.Is(err, domain.ErrInactiveListing), errors.Is(err, domain.ErrNotAnAuction):
		case errors.Is(err, domain.ErrPaused):
			return settled, nil
		default:
			s.logger.WarnContext(ctx, "finalize failed",
				slog.Uint64("asset_id", uint64(id)),
				slog.String("error", err.Error()),
			)
		}
	}
	return settled, nil
}
