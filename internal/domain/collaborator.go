package domain

import "context"

// AssetRegistry is the token ledger that owns the authoritative record of
// who holds each asset.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, id AssetID) (Address, error)
	IsApprovedForOperator(ctx context.Context, owner, operator Address) (bool, error)
	// TransferCustody fails with ErrNotHolder when from does not hold id.
	TransferCustody(ctx context.Context, id AssetID, from, to Address) error
}

// PaymentRail moves currency between parties and the engine float.
type PaymentRail interface {
	// Collect takes amount from a party into the engine.
	Collect(ctx context.Context, from Address, amount Amount) error
	// Pay sends amount from the engine to a party.
	Pay(ctx context.Context, to Address, amount Amount) error
}
