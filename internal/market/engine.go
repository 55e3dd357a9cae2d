package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Config holds the engine's fixed parameters.
type Config struct {
	// Address is the identity the engine holds listed assets under. Sellers
	// must approve it as their operator in the asset registry.
	Address            domain.Address
	Operators          []domain.Address
	MaxAuctionDuration time.Duration
	MinIncrementPct    int64
}

// Engine is the trading engine. Every mutating operation runs to completion
// under a single lock: preconditions are checked first, then collaborator
// side effects are applied with compensations recorded, then the new state
// is persisted. Any failure unwinds the compensations so callers never see a
// partial mutation.
type Engine struct {
	mu     sync.RWMutex
	paused atomic.Bool

	listings *ListingStore
	ledger   *Ledger

	self        domain.Address
	operators   map[domain.Address]struct{}
	maxDuration time.Duration
	minIncPct   int64

	assets   domain.AssetRegistry
	payments domain.PaymentRail
	state    domain.StateStore
	events   domain.EventSink

	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates an Engine with empty state. Call Restore to load state
// from a configured StateStore.
func NewEngine(cfg Config, assets domain.AssetRegistry, payments domain.PaymentRail, logger *slog.Logger) *Engine {
	if cfg.MaxAuctionDuration <= 0 {
		cfg.MaxAuctionDuration = DefaultMaxAuctionDuration
	}
	if cfg.MinIncrementPct <= 0 {
		cfg.MinIncrementPct = DefaultMinIncrementPct
	}
	ops := make(map[domain.Address]struct{}, len(cfg.Operators))
	for _, op := range cfg.Operators {
		ops[op] = struct{}{}
	}
	return &Engine{
		listings:    newListingStore(nil),
		ledger:      newLedger(nil),
		self:        cfg.Address,
		operators:   ops,
		maxDuration: cfg.MaxAuctionDuration,
		minIncPct:   cfg.MinIncrementPct,
		assets:      assets,
		payments:    payments,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "engine")),
	}
}

// WithClock replaces the time source. The clock is read on every call.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// SetStateStore enables durable state. Every committed operation is written
// through s before it becomes visible.
func (e *Engine) SetStateStore(s domain.StateStore) {
	e.state = s
}

// SetEventSink enables event publication.
func (e *Engine) SetEventSink(s domain.EventSink) {
	e.events = s
}

// Restore replaces the in-memory state with the state store's snapshot.
func (e *Engine) Restore(ctx context.Context) error {
	if e.state == nil {
		return nil
	}
	snap, err := e.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("market: restore: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listings = newListingStore(snap.Listings)
	e.ledger = newLedger(snap.Escrow)
	e.paused.Store(snap.Paused)
	e.logger.InfoContext(ctx, "engine state restored",
		slog.Int("listings", len(e.listings.items)),
		slog.Int("escrow_accounts", len(e.ledger.pending)),
		slog.Bool("paused", snap.Paused),
	)
	return nil
}

// Address returns the engine's custody identity.
func (e *Engine) Address() domain.Address { return e.self }

// IsOperator reports whether addr is a configured privileged operator.
func (e *Engine) IsOperator(addr domain.Address) bool {
	_, ok := e.operators[addr]
	return ok
}

// Paused reports whether mutating operations are currently rejected.
func (e *Engine) Paused() bool { return e.paused.Load() }

// GetListing returns the listing view for id.
func (e *Engine) GetListing(id domain.AssetID) domain.ListingView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.ViewListing(id, e.listings.Get(id))
}

// GetAuction returns the auction view for id. It is zero unless an auction
// is active.
func (e *Engine) GetAuction(id domain.AssetID) domain.AuctionView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.ViewAuction(id, e.listings.Get(id))
}

// GetPendingBalance returns the withdrawable escrow balance of addr.
func (e *Engine) GetPendingBalance(addr domain.Address) domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Balance(addr)
}

// TotalPending returns the sum of all escrow balances.
func (e *Engine) TotalPending() domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Total()
}

// ActiveListings returns every active listing ordered by asset id.
func (e *Engine) ActiveListings() []domain.ListingView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listings.Active()
}

// EndedAuctions returns the ids of active auctions whose end time has passed
// and that are awaiting finalization.
func (e *Engine) EndedAuctions() []domain.AssetID {
	now := e.now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	var ids []domain.AssetID
	for id, l := range e.listings.items {
		if al, ok := l.(domain.AuctionListing); ok && al.Auction.Ended(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ListCard offers id at a fixed price and takes custody of it.
func (e *Engine) ListCard(ctx context.Context, caller domain.Address, id domain.AssetID, price domain.Amount) (domain.ListingView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("list", id); err != nil {
		return domain.ListingView{}, err
	}
	if err := e.listings.checkList(id, price); err != nil {
		return domain.ListingView{}, err
	}
	if err := e.checkSeller(ctx, "list", id, caller); err != nil {
		return domain.ListingView{}, err
	}

	l := domain.FixedListing{Seller: caller, Price: price}
	var undo undoStack
	if err := e.moveCustody(ctx, &undo, id, caller, e.self); err != nil {
		return domain.ListingView{}, fmt.Errorf("market: list %d: %w", id, err)
	}
	if err := e.commit(ctx, &undo, domain.Change{Listings: map[domain.AssetID]domain.Listing{id: l}}); err != nil {
		undo.run(ctx, e.logger)
		return domain.ListingView{}, fmt.Errorf("market: list %d: %w", id, err)
	}

	e.emit(ctx, domain.Event{Type: domain.EventCardListed, AssetID: id, Actor: caller, Amount: price})
	return domain.ViewListing(id, l), nil
}

// CancelListing withdraws the caller's listing and returns custody. An
// auction can only be cancelled before the first bid.
func (e *Engine) CancelListing(ctx context.Context, caller domain.Address, id domain.AssetID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("cancel", id); err != nil {
		return err
	}
	l, err := e.listings.checkCancel(id, caller)
	if err != nil {
		return err
	}

	var undo undoStack
	if err := e.commit(ctx, &undo, domain.Change{Listings: map[domain.AssetID]domain.Listing{id: nil}}); err != nil {
		return fmt.Errorf("market: cancel %d: %w", id, err)
	}
	if err := e.moveCustody(ctx, &undo, id, e.self, l.SellerAddress()); err != nil {
		undo.run(ctx, e.logger)
		return fmt.Errorf("market: cancel %d: %w", id, err)
	}

	e.emit(ctx, domain.Event{Type: domain.EventListingCancelled, AssetID: id, Actor: caller})
	return nil
}

// BuyCard buys a fixed-price listing. The buyer pays paid, receives the
// asset and is refunded anything above the price.
func (e *Engine) BuyCard(ctx context.Context, caller domain.Address, id domain.AssetID, paid domain.Amount) (domain.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("buy", id); err != nil {
		return domain.Settlement{}, err
	}
	fl, err := e.listings.checkBuy(id, paid)
	if err != nil {
		return domain.Settlement{}, err
	}

	var undo undoStack
	if err := e.collect(ctx, &undo, caller, paid); err != nil {
		return domain.Settlement{}, fmt.Errorf("market: buy %d: %w", id, err)
	}
	if err := e.commit(ctx, &undo, domain.Change{Listings: map[domain.AssetID]domain.Listing{id: nil}}); err != nil {
		undo.run(ctx, e.logger)
		return domain.Settlement{}, fmt.Errorf("market: buy %d: %w", id, err)
	}
	if err := e.moveCustody(ctx, &undo, id, e.self, caller); err != nil {
		undo.run(ctx, e.logger)
		return domain.Settlement{}, fmt.Errorf("market: buy %d: %w", id, err)
	}

	refund := paid - fl.Price
	e.payOut(ctx, id, fl.Seller, fl.Price)
	e.payOut(ctx, id, caller, refund)

	s := domain.Settlement{
		ID:        uuid.New().String(),
		AssetID:   id,
		Kind:      domain.SettlementSale,
		Seller:    fl.Seller,
		Buyer:     caller,
		Amount:    fl.Price,
		Refund:    refund,
		SettledAt: e.now().UTC(),
	}
	e.emit(ctx, domain.Event{
		Type: domain.EventCardSold, AssetID: id, Actor: caller, Counterparty: fl.Seller,
		Amount: fl.Price, Settlement: &s,
	})
	return s, nil
}

// StartAuction opens an English auction for id lasting duration. A fixed
// listing of the same seller is converted in place.
func (e *Engine) StartAuction(ctx context.Context, caller domain.Address, id domain.AssetID, startingBid domain.Amount, duration time.Duration) (domain.AuctionView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("start auction", id); err != nil {
		return domain.AuctionView{}, err
	}
	if err := checkStart(id, startingBid, duration, e.maxDuration); err != nil {
		return domain.AuctionView{}, err
	}

	converting := false
	switch cur := e.listings.Get(id).(type) {
	case nil:
	case domain.FixedListing:
		if cur.Seller != caller {
			return domain.AuctionView{}, fmt.Errorf("market: start auction %d: %w", id, domain.ErrAlreadyListed)
		}
		converting = true
	default:
		return domain.AuctionView{}, fmt.Errorf("market: start auction %d: %w", id, domain.ErrAlreadyListed)
	}
	if !converting {
		if err := e.checkSeller(ctx, "start auction", id, caller); err != nil {
			return domain.AuctionView{}, err
		}
	}

	al := domain.AuctionListing{
		Seller: caller,
		Auction: domain.Auction{
			AskingPrice: startingBid,
			EndTime:     e.now().Add(duration),
		},
	}
	var undo undoStack
	if !converting {
		if err := e.moveCustody(ctx, &undo, id, caller, e.self); err != nil {
			return domain.AuctionView{}, fmt.Errorf("market: start auction %d: %w", id, err)
		}
	}
	if err := e.commit(ctx, &undo, domain.Change{Listings: map[domain.AssetID]domain.Listing{id: al}}); err != nil {
		undo.run(ctx, e.logger)
		return domain.AuctionView{}, fmt.Errorf("market: start auction %d: %w", id, err)
	}

	e.emit(ctx, domain.Event{Type: domain.EventAuctionStarted, AssetID: id, Actor: caller, Amount: startingBid})
	return domain.ViewAuction(id, al), nil
}

// PlaceBid bids amount on the auction for id. The displaced leader's bid is
// credited to their escrow balance for later withdrawal.
func (e *Engine) PlaceBid(ctx context.Context, caller domain.Address, id domain.AssetID, amount domain.Amount) (domain.AuctionView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("bid", id); err != nil {
		return domain.AuctionView{}, err
	}
	al, err := activeAuction("bid", id, e.listings.Get(id))
	if err != nil {
		return domain.AuctionView{}, err
	}
	if err := checkBid(id, al.Auction, amount, e.now(), e.minIncPct); err != nil {
		return domain.AuctionView{}, err
	}

	prev := al.Auction
	next := al
	next.Auction.HighestBid = amount
	next.Auction.HighestBidder = caller
	change := domain.Change{Listings: map[domain.AssetID]domain.Listing{id: next}}
	if prev.HasBid() {
		change.Escrow = map[domain.Address]domain.Amount{
			prev.HighestBidder: e.ledger.afterCredit(prev.HighestBidder, prev.HighestBid),
		}
	}

	var undo undoStack
	if err := e.collect(ctx, &undo, caller, amount); err != nil {
		return domain.AuctionView{}, fmt.Errorf("market: bid %d: %w", id, err)
	}
	if err := e.commit(ctx, &undo, change); err != nil {
		undo.run(ctx, e.logger)
		return domain.AuctionView{}, fmt.Errorf("market: bid %d: %w", id, err)
	}

	e.emit(ctx, domain.Event{
		Type: domain.EventBidPlaced, AssetID: id, Actor: caller,
		Counterparty: prev.HighestBidder, Amount: amount,
	})
	if prev.HasBid() {
		e.emit(ctx, domain.Event{
			Type: domain.EventFundsCredited, AssetID: id,
			Actor: prev.HighestBidder, Amount: prev.HighestBid,
		})
	}
	return domain.ViewAuction(id, next), nil
}

// FinalizeAuction settles an ended auction. The winner receives the asset
// and the seller the winning bid; without bids the asset returns to the
// seller. Only the seller or an operator may finalize.
func (e *Engine) FinalizeAuction(ctx context.Context, caller domain.Address, id domain.AssetID) (domain.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkRunning("finalize", id); err != nil {
		return domain.Settlement{}, err
	}
	al, err := activeAuction("finalize", id, e.listings.Get(id))
	if err != nil {
		return domain.Settlement{}, err
	}
	now := e.now()
	if !al.Auction.Ended(now) {
		return domain.Settlement{}, fmt.Errorf("market: finalize %d: %w", id, domain.ErrAuctionNotEnded)
	}
	if caller != al.Seller && !e.IsOperator(caller) {
		return domain.Settlement{}, fmt.Errorf("market: finalize %d: %w", id, domain.ErrUnauthorized)
	}

	recipient := al.Seller
	if al.Auction.HasBid() {
		recipient = al.Auction.HighestBidder
	}

	var undo undoStack
	if err := e.commit(ctx, &undo, domain.Change{Listings: map[domain.AssetID]domain.Listing{id: nil}}); err != nil {
		return domain.Settlement{}, fmt.Errorf("market: finalize %d: %w", id, err)
	}
	if err := e.moveCustody(ctx, &undo, id, e.self, recipient); err != nil {
		undo.run(ctx, e.logger)
		return domain.Settlement{}, fmt.Errorf("market: finalize %d: %w", id, err)
	}
	e.payOut(ctx, id, al.Seller, al.Auction.HighestBid)

	s := domain.Settlement{
		ID:        uuid.New().String(),
		AssetID:   id,
		Kind:      domain.SettlementAuction,
		Seller:    al.Seller,
		Buyer:     al.Auction.HighestBidder,
		Amount:    al.Auction.HighestBid,
		SettledAt: now.UTC(),
	}
	e.emit(ctx, domain.Event{
		Type: domain.EventAuctionSettled, AssetID: id, Actor: caller,
		Counterparty: al.Auction.HighestBidder, Amount: al.Auction.HighestBid, Settlement: &s,
	})
	return s, nil
}

// WithdrawFunds pays out the caller's whole escrow balance. The balance is
// zeroed before the payment; a failed payment restores it. Withdrawal stays
// available while the engine is paused.
func (e *Engine) WithdrawFunds(ctx context.Context, caller domain.Address) (domain.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	amount, err := e.ledger.withdrawable(caller)
	if err != nil {
		return 0, err
	}

	var undo undoStack
	if err := e.commit(ctx, &undo, domain.Change{Escrow: map[domain.Address]domain.Amount{caller: 0}}); err != nil {
		return 0, fmt.Errorf("market: withdraw %s: %w", caller.Hex(), err)
	}
	if err := e.payments.Pay(ctx, caller, amount); err != nil {
		undo.run(ctx, e.logger)
		return 0, fmt.Errorf("market: withdraw %s: pay: %w", caller.Hex(), err)
	}

	e.emit(ctx, domain.Event{Type: domain.EventFundsWithdrawn, Actor: caller, Amount: amount})
	return amount, nil
}

// Pause rejects all mutating operations except withdrawals until Unpause.
func (e *Engine) Pause(ctx context.Context, caller domain.Address) error {
	return e.setPaused(ctx, caller, true)
}

// Unpause lifts a pause.
func (e *Engine) Unpause(ctx context.Context, caller domain.Address) error {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller domain.Address, paused bool) error {
	op := "unpause"
	evType := domain.EventEngineUnpaused
	if paused {
		op, evType = "pause", domain.EventEnginePaused
	}
	if !e.IsOperator(caller) {
		return fmt.Errorf("market: %s: %w", op, domain.ErrUnauthorized)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused.Load() == paused {
		return nil
	}
	if err := e.commit(ctx, nil, domain.Change{Paused: &paused}); err != nil {
		return fmt.Errorf("market: %s: %w", op, err)
	}
	e.logger.InfoContext(ctx, "engine pause state changed",
		slog.Bool("paused", paused),
		slog.String("operator", caller.Hex()),
	)
	e.emit(ctx, domain.Event{Type: evType, Actor: caller})
	return nil
}

func (e *Engine) checkRunning(op string, id domain.AssetID) error {
	if e.paused.Load() {
		return fmt.Errorf("market: %s %d: %w", op, id, domain.ErrPaused)
	}
	return nil
}

// checkSeller verifies caller holds id and has approved the engine.
func (e *Engine) checkSeller(ctx context.Context, op string, id domain.AssetID, caller domain.Address) error {
	owner, err := e.assets.OwnerOf(ctx, id)
	if err != nil {
		return fmt.Errorf("market: %s %d: owner lookup: %w", op, id, err)
	}
	if owner != caller {
		return fmt.Errorf("market: %s %d: %w", op, id, domain.ErrNotOwner)
	}
	approved, err := e.assets.IsApprovedForOperator(ctx, caller, e.self)
	if err != nil {
		return fmt.Errorf("market: %s %d: approval lookup: %w", op, id, err)
	}
	if !approved {
		return fmt.Errorf("market: %s %d: %w", op, id, domain.ErrNotApproved)
	}
	return nil
}

func (e *Engine) moveCustody(ctx context.Context, undo *undoStack, id domain.AssetID, from, to domain.Address) error {
	if err := e.assets.TransferCustody(ctx, id, from, to); err != nil {
		return fmt.Errorf("transfer custody: %w", err)
	}
	undo.push("return custody", func(ctx context.Context) error {
		return e.assets.TransferCustody(ctx, id, to, from)
	})
	return nil
}

func (e *Engine) collect(ctx context.Context, undo *undoStack, from domain.Address, amount domain.Amount) error {
	if amount <= 0 {
		return nil
	}
	if err := e.payments.Collect(ctx, from, amount); err != nil {
		return fmt.Errorf("collect payment: %w", err)
	}
	undo.push("refund payment", func(ctx context.Context) error {
		return e.payments.Pay(ctx, from, amount)
	})
	return nil
}

// payOut pushes amount to a party whose entitlement is already committed.
// A push that fails is credited to the party's escrow balance so the
// operation still completes.
func (e *Engine) payOut(ctx context.Context, id domain.AssetID, to domain.Address, amount domain.Amount) {
	if amount <= 0 {
		return
	}
	err := e.payments.Pay(ctx, to, amount)
	if err == nil {
		return
	}
	e.logger.WarnContext(ctx, "payout failed, crediting escrow",
		slog.String("to", to.Hex()),
		slog.Int64("amount", int64(amount)),
		slog.String("error", err.Error()),
	)
	bal := e.ledger.afterCredit(to, amount)
	if err := e.commit(ctx, nil, domain.Change{Escrow: map[domain.Address]domain.Amount{to: bal}}); err != nil {
		e.ledger.set(to, bal)
		e.logger.ErrorContext(ctx, "persist escrow credit failed",
			slog.String("to", to.Hex()),
			slog.Int64("balance", int64(bal)),
			slog.String("error", err.Error()),
		)
	}
	e.emit(ctx, domain.Event{Type: domain.EventFundsCredited, AssetID: id, Actor: to, Amount: amount})
}

// commit writes c through the state store and applies it in memory. When
// undo is non-nil the inverse change is pushed onto it.
func (e *Engine) commit(ctx context.Context, undo *undoStack, c domain.Change) error {
	inv := e.inverse(c)
	if e.state != nil {
		if err := e.state.Apply(ctx, c); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}
	}
	e.apply(c)
	if undo != nil {
		undo.push("restore state", func(ctx context.Context) error {
			e.apply(inv)
			if e.state == nil {
				return nil
			}
			return e.state.Apply(ctx, inv)
		})
	}
	return nil
}

func (e *Engine) apply(c domain.Change) {
	for id, l := range c.Listings {
		e.listings.set(id, l)
	}
	for addr, amt := range c.Escrow {
		e.ledger.set(addr, amt)
	}
	if c.Paused != nil {
		e.paused.Store(*c.Paused)
	}
}

func (e *Engine) inverse(c domain.Change) domain.Change {
	var inv domain.Change
	if len(c.Listings) > 0 {
		inv.Listings = make(map[domain.AssetID]domain.Listing, len(c.Listings))
		for id := range c.Listings {
			inv.Listings[id] = e.listings.Get(id)
		}
	}
	if len(c.Escrow) > 0 {
		inv.Escrow = make(map[domain.Address]domain.Amount, len(c.Escrow))
		for addr := range c.Escrow {
			inv.Escrow[addr] = e.ledger.Balance(addr)
		}
	}
	if c.Paused != nil {
		p := e.paused.Load()
		inv.Paused = &p
	}
	return inv
}

func (e *Engine) emit(ctx context.Context, ev domain.Event) {
	ev.ID = uuid.New().String()
	ev.At = e.now().UTC()
	e.logger.DebugContext(ctx, "market event",
		slog.String("type", string(ev.Type)),
		slog.Uint64("asset_id", uint64(ev.AssetID)),
		slog.String("actor", ev.Actor.Hex()),
		slog.Int64("amount", int64(ev.Amount)),
	)
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}
