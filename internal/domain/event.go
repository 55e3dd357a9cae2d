package domain

import (
	"context"
	"time"
)

// EventType names an engine event. It doubles as the pub/sub channel suffix.
type EventType string

const (
	EventCardListed       EventType = "card_listed"
	EventListingCancelled EventType = "listing_cancelled"
	EventCardSold         EventType = "card_sold"
	EventAuctionStarted   EventType = "auction_started"
	EventBidPlaced        EventType = "bid_placed"
	EventAuctionSettled   EventType = "auction_settled"
	EventFundsCredited    EventType = "funds_credited"
	EventFundsWithdrawn   EventType = "funds_withdrawn"
	EventEnginePaused     EventType = "engine_paused"
	EventEngineUnpaused   EventType = "engine_unpaused"
)

// EventTypes lists every event type the engine emits.
var EventTypes = []EventType{
	EventCardListed, EventListingCancelled, EventCardSold, EventAuctionStarted, EventBidPlaced,
	EventAuctionSettled, EventFundsCredited, EventFundsWithdrawn, EventEnginePaused, EventEngineUnpaused,
}

// EventChannelPrefix prefixes every pub/sub channel carrying engine events.
const EventChannelPrefix = "market:"

// EventStream is the durable stream every engine event is appended to.
const EventStream = "market:events"

// Event records one committed engine state change.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	AssetID      AssetID     `json:"asset_id"`
	Actor        Address     `json:"actor"`
	Counterparty Address     `json:"counterparty"`
	Amount       Amount      `json:"amount"`
	Settlement   *Settlement `json:"settlement,omitempty"`
	At           time.Time   `json:"at"`
}

// Channel returns the pub/sub channel for the event.
func (e Event) Channel() string { return EventChannelPrefix + string(e.Type) }

// EventSink receives committed engine events. Publishing is best-effort;
// the engine logs failures and carries on.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// SettlementKind distinguishes fixed-price sales from auction results.
type SettlementKind string

const (
	SettlementSale    SettlementKind = "sale"
	SettlementAuction SettlementKind = "auction"
)

// Settlement is the final outcome of a listing. For an auction that
// closed without bids Buyer is the zero address and Amount is zero.
type Settlement struct {
	ID        string         `json:"id"`
	AssetID   AssetID        `json:"asset_id"`
	Kind      SettlementKind `json:"kind"`
	Seller    Address        `json:"seller"`
	Buyer     Address        `json:"buyer"`
	Amount    Amount         `json:"amount"`
	Refund    Amount         `json:"refund"`
	SettledAt time.Time      `json:"settled_at"`
}
