package market

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// ListingStore maps asset ids to their single listing state. Absent ids are
// not listed. Not safe for concurrent use.
type ListingStore struct {
	items map[domain.AssetID]domain.Listing
}

func newListingStore(initial map[domain.AssetID]domain.Listing) *ListingStore {
	s := &ListingStore{items: make(map[domain.AssetID]domain.Listing, len(initial))}
	for id, l := range initial {
		if l != nil {
			s.items[id] = l
		}
	}
	return s
}

// Get returns the listing for id, or nil when it is not listed.
func (s *ListingStore) Get(id domain.AssetID) domain.Listing {
	return s.items[id]
}

func (s *ListingStore) set(id domain.AssetID, l domain.Listing) {
	if l == nil {
		delete(s.items, id)
		return
	}
	s.items[id] = l
}

// Active returns views of every active listing ordered by asset id.
func (s *ListingStore) Active() []domain.ListingView {
	out := make([]domain.ListingView, 0, len(s.items))
	for id, l := range s.items {
		out = append(out, domain.ViewListing(id, l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// checkList validates a new fixed-price listing against the current state.
func (s *ListingStore) checkList(id domain.AssetID, price domain.Amount) error {
	if price <= 0 {
		return fmt.Errorf("market: list %d: %w", id, domain.ErrInvalidPrice)
	}
	if s.items[id] != nil {
		return fmt.Errorf("market: list %d: %w", id, domain.ErrAlreadyListed)
	}
	return nil
}

// checkCancel returns the listing caller may cancel.
func (s *ListingStore) checkCancel(id domain.AssetID, caller domain.Address) (domain.Listing, error) {
	l := s.items[id]
	if l == nil {
		return nil, fmt.Errorf("market: cancel %d: %w", id, domain.ErrInactiveListing)
	}
	if l.SellerAddress() != caller {
		return nil, fmt.Errorf("market: cancel %d: %w", id, domain.ErrUnauthorized)
	}
	if al, ok := l.(domain.AuctionListing); ok && al.Auction.HasBid() {
		return nil, fmt.Errorf("market: cancel %d: %w", id, domain.ErrAuctionHasBids)
	}
	return l, nil
}

// checkBuy returns the fixed listing a payment of paid may buy.
func (s *ListingStore) checkBuy(id domain.AssetID, paid domain.Amount) (domain.FixedListing, error) {
	fl, ok := s.items[id].(domain.FixedListing)
	if !ok {
		return domain.FixedListing{}, fmt.Errorf("market: buy %d: %w", id, domain.ErrInactiveListing)
	}
	if paid < fl.Price {
		return domain.FixedListing{}, fmt.Errorf("market: buy %d: paid %d < price %d: %w",
			id, paid, fl.Price, domain.ErrInsufficientPayment)
	}
	return fl, nil
}
