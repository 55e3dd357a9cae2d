package domain

import "errors"

// Engine precondition failures.
var (
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrNotOwner            = errors.New("caller does not own the asset")
	ErrNotApproved         = errors.New("engine is not an approved operator for the owner")
	ErrAlreadyListed       = errors.New("asset is already listed")
	ErrInactiveListing     = errors.New("listing is not active")
	ErrInsufficientPayment = errors.New("payment below listing price")
	ErrLowBid              = errors.New("bid below minimum")
	ErrAuctionHasEnded     = errors.New("auction has ended")
	ErrAuctionNotEnded     = errors.New("auction has not ended")
	ErrAuctionDurationZero = errors.New("auction duration must be positive")
	ErrDurationTooLong     = errors.New("auction duration exceeds maximum")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")
	ErrNotAnAuction        = errors.New("listing is not an auction")
	ErrPaused              = errors.New("engine is paused")
	ErrAuctionHasBids      = errors.New("auction already has bids")
)

// Collaborator and infrastructure failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrNotHolder         = errors.New("custody is not held by sender")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockHeld          = errors.New("lock already held")
	ErrRateLimited       = errors.New("rate limited")
	ErrBadSignature      = errors.New("bad request signature")
)
