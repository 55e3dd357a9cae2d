package market

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Auction rule defaults.
const (
	DefaultMinIncrementPct    = 5
	DefaultMaxAuctionDuration = 30 * 24 * time.Hour
)

// MinNextBid is the smallest bid accepted against a. Without a bidder it is
// the asking price; otherwise highestBid*(100+pct)/100 rounded down.
func MinNextBid(a domain.Auction, pct int64) domain.Amount {
	if !a.HasBid() {
		return a.AskingPrice
	}
	hb := int64(a.HighestBid)
	factor := 100 + pct
	if hb > math.MaxInt64/factor {
		// hb*factor/100 == (hb/100)*factor + (hb%100)*factor/100
		q, rem := hb/100, (hb%100)*factor/100
		if q > (math.MaxInt64-rem)/factor {
			return domain.Amount(math.MaxInt64)
		}
		return domain.Amount(q*factor + rem)
	}
	return domain.Amount(hb * factor / 100)
}

func checkStart(id domain.AssetID, startingBid domain.Amount, duration, maxDuration time.Duration) error {
	if startingBid <= 0 {
		return fmt.Errorf("market: start auction %d: %w", id, domain.ErrInvalidPrice)
	}
	if duration <= 0 {
		return fmt.Errorf("market: start auction %d: %w", id, domain.ErrAuctionDurationZero)
	}
	if duration > maxDuration {
		return fmt.Errorf("market: start auction %d: %s > %s: %w", id, duration, maxDuration, domain.ErrDurationTooLong)
	}
	return nil
}

func activeAuction(op string, id domain.AssetID, l domain.Listing) (domain.AuctionListing, error) {
	al, ok := l.(domain.AuctionListing)
	if !ok {
		return domain.AuctionListing{}, fmt.Errorf("market: %s %d: %w", op, id, domain.ErrNotAnAuction)
	}
	return al, nil
}

func checkBid(id domain.AssetID, a domain.Auction, amount domain.Amount, now time.Time, pct int64) error {
	if a.Ended(now) {
		return fmt.Errorf("market: bid %d: %w", id, domain.ErrAuctionHasEnded)
	}
	if floor := MinNextBid(a, pct); amount < floor || amount <= 0 {
		return fmt.Errorf("market: bid %d: %d < minimum %d: %w", id, amount, floor, domain.ErrLowBid)
	}
	return nil
}
