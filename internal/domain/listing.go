package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a party. The zero address means "absent".
type Address = common.Address

// ZeroAddress is the absent party.
var ZeroAddress Address

// AssetID is the token id of a card in the asset registry.
type AssetID uint64

// Amount is an integer number of currency minor units.
type Amount int64

// ListingKind names the variant of a Listing.
type ListingKind uint8

const (
	ListingNone ListingKind = iota
	ListingFixed
	ListingAuction
)

func (k ListingKind) String() string {
	switch k {
	case ListingFixed:
		return "fixed"
	case ListingAuction:
		return "auction"
	default:
		return "none"
	}
}

// Listing is the sale state of one asset. A nil Listing is "not listed".
// The only implementations are FixedListing and AuctionListing.
type Listing interface {
	Kind() ListingKind
	SellerAddress() Address
}

// FixedListing offers an asset at a fixed price.
type FixedListing struct {
	Seller Address
	Price  Amount
}

func (FixedListing) Kind() ListingKind        { return ListingFixed }
func (l FixedListing) SellerAddress() Address { return l.Seller }

// AuctionListing offers an asset by English auction.
type AuctionListing struct {
	Seller  Address
	Auction Auction
}

func (AuctionListing) Kind() ListingKind        { return ListingAuction }
func (l AuctionListing) SellerAddress() Address { return l.Seller }

// KindOf returns the kind of l, treating nil as ListingNone.
func KindOf(l Listing) ListingKind {
	if l == nil {
		return ListingNone
	}
	return l.Kind()
}

// Auction is the bidding state of an active auction listing.
// HighestBid is zero exactly when HighestBidder is the zero address.
type Auction struct {
	AskingPrice   Amount
	HighestBid    Amount
	HighestBidder Address
	EndTime       time.Time
}

// HasBid reports whether anyone has bid.
func (a Auction) HasBid() bool { return a.HighestBidder != ZeroAddress }

// Ended reports whether the auction is over at now. The end instant itself
// counts as ended.
func (a Auction) Ended(now time.Time) bool { return !now.Before(a.EndTime) }

// ListingView is the public projection of a Listing. An inactive view has
// every other field zero.
type ListingView struct {
	AssetID   AssetID `json:"asset_id"`
	Seller    Address `json:"seller"`
	Price     Amount  `json:"price"`
	IsAuction bool    `json:"is_auction"`
	IsActive  bool    `json:"is_active"`
}

// ViewListing projects l. Auction listings report a zero price.
func ViewListing(id AssetID, l Listing) ListingView {
	v := ListingView{AssetID: id}
	switch l := l.(type) {
	case FixedListing:
		v.Seller, v.Price, v.IsActive = l.Seller, l.Price, true
	case AuctionListing:
		v.Seller, v.IsAuction, v.IsActive = l.Seller, true, true
	}
	return v
}

// AuctionView is the public projection of an auction. It is zero when no
// auction is active for the asset.
type AuctionView struct {
	AssetID       AssetID   `json:"asset_id"`
	Seller        Address   `json:"seller"`
	AskingPrice   Amount    `json:"asking_price"`
	HighestBid    Amount    `json:"highest_bid"`
	HighestBidder Address   `json:"highest_bidder"`
	EndTime       time.Time `json:"end_time"`
}

// ViewAuction projects l when it is an auction listing.
func ViewAuction(id AssetID, l Listing) AuctionView {
	al, ok := l.(AuctionListing)
	if !ok {
		return AuctionView{AssetID: id}
	}
	return AuctionView{
		AssetID:       id,
		Seller:        al.Seller,
		AskingPrice:   al.Auction.AskingPrice,
		HighestBid:    al.Auction.HighestBid,
		HighestBidder: al.Auction.HighestBidder,
		EndTime:       al.Auction.EndTime,
	}
}
