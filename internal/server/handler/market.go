// Package handler implements the REST endpoints of the market API.
package handler

import (
	"context"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Market is the engine surface the handlers drive.
type Market interface {
	Paused() bool
	IsOperator(addr domain.Address) bool
	GetListing(id domain.AssetID) domain.ListingView
	GetAuction(id domain.AssetID) domain.AuctionView
	GetPendingBalance(addr domain.Address) domain.Amount
	ActiveListings() []domain.ListingView

	ListCard(ctx context.Context, caller domain.Address, id domain.AssetID, price domain.Amount) (domain.ListingView, error)
	CancelListing(ctx context.Context, caller domain.Address, id domain.AssetID) error
	BuyCard(ctx context.Context, caller domain.Address, id domain.AssetID, paid domain.Amount) (domain.Settlement, error)
	StartAuction(ctx context.Context, caller domain.Address, id domain.AssetID, startingBid domain.Amount, duration time.Duration) (domain.AuctionView, error)
	PlaceBid(ctx context.Context, caller domain.Address, id domain.AssetID, amount domain.Amount) (domain.AuctionView, error)
	FinalizeAuction(ctx context.Context, caller domain.Address, id domain.AssetID) (domain.Settlement, error)
	WithdrawFunds(ctx context.Context, caller domain.Address) (domain.Amount, error)
	Pause(ctx context.Context, caller domain.Address) error
	Unpause(ctx context.Context, caller domain.Address) error
}
