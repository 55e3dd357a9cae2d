package market

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/registry"
	"github.com/alanyoungcy/cardmarket/internal/store/memory"
)

var parties = []domain.Address{
	common.HexToAddress("0x0000000000000000000000000000000000000101"),
	common.HexToAddress("0x0000000000000000000000000000000000000102"),
	common.HexToAddress("0x0000000000000000000000000000000000000103"),
	common.HexToAddress("0x0000000000000000000000000000000000000104"),
}

const propertyAssets = 3

// TestProperty_EngineInvariants drives random operation sequences and checks
// custody, conservation of funds and escrow invariants after every step.
func TestProperty_EngineInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		assets := registry.NewAssets()
		accounts := registry.NewAccounts()

		for _, p := range parties {
			accounts.Deposit(p, 5_000)
			assets.SetApprovalForAll(p, engineAddr, true)
		}
		for id := domain.AssetID(1); id <= propertyAssets; id++ {
			holder := rapid.SampledFrom(parties).Draw(t, "holder")
			if err := assets.Mint(id, holder); err != nil {
				t.Fatalf("mint: %v", err)
			}
		}
		supply := accounts.Total()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		eng := NewEngine(Config{Address: engineAddr, Operators: []domain.Address{operator}},
			assets, accounts, logger).WithClock(clock.Now)
		eng.SetStateStore(memory.NewStateStore())

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			caller := rapid.SampledFrom(parties).Draw(t, "caller")
			id := domain.AssetID(rapid.IntRange(1, propertyAssets).Draw(t, "asset"))
			amount := domain.Amount(rapid.Int64Range(0, 1_500).Draw(t, "amount"))

			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				_, _ = eng.ListCard(ctx, caller, id, amount)
			case 1:
				_ = eng.CancelListing(ctx, caller, id)
			case 2:
				_, _ = eng.BuyCard(ctx, caller, id, amount)
			case 3:
				d := time.Duration(rapid.IntRange(0, 7200).Draw(t, "duration")) * time.Second
				_, _ = eng.StartAuction(ctx, caller, id, amount, d)
			case 4, 5:
				_, _ = eng.PlaceBid(ctx, caller, id, amount)
			case 6:
				if rapid.Bool().Draw(t, "byOperator") {
					caller = operator
				}
				_, _ = eng.FinalizeAuction(ctx, caller, id)
			case 7:
				_, _ = eng.WithdrawFunds(ctx, caller)
			case 8:
				clock.Advance(time.Duration(rapid.IntRange(1, 3600).Draw(t, "advance")) * time.Second)
			case 9:
				if rapid.Bool().Draw(t, "pause") {
					_ = eng.Pause(ctx, operator)
				} else {
					_ = eng.Unpause(ctx, operator)
				}
			}

			checkInvariants(t, eng, assets, accounts, supply)
		}
	})
}

func checkInvariants(t *rapid.T, eng *Engine, assets *registry.Assets, accounts *registry.Accounts, supply domain.Amount) {
	if got := accounts.Total(); got != supply {
		t.Fatalf("currency not conserved: %d != %d", got, supply)
	}

	holdings := assets.Holdings()
	var heldBids domain.Amount
	for id := domain.AssetID(1); id <= propertyAssets; id++ {
		listing := eng.GetListing(id)
		auction := eng.GetAuction(id)
		inCustody := holdings[id] == engineAddr

		if listing.IsActive != inCustody {
			t.Fatalf("asset %d: active=%v but engine custody=%v", id, listing.IsActive, inCustody)
		}
		if !listing.IsActive && listing != (domain.ListingView{AssetID: id}) {
			t.Fatalf("asset %d: inactive listing not cleared: %+v", id, listing)
		}
		if !listing.IsAuction && auction != (domain.AuctionView{AssetID: id}) {
			t.Fatalf("asset %d: auction state without auction listing: %+v", id, auction)
		}
		if (auction.HighestBid == 0) != (auction.HighestBidder == domain.ZeroAddress) {
			t.Fatalf("asset %d: bid %d inconsistent with bidder %s", id, auction.HighestBid, auction.HighestBidder.Hex())
		}
		heldBids += auction.HighestBid
	}

	for _, p := range parties {
		if eng.GetPendingBalance(p) < 0 {
			t.Fatalf("negative escrow for %s", p.Hex())
		}
	}
	if float := accounts.Float(); float != eng.TotalPending()+heldBids {
		t.Fatalf("engine float %d != escrow %d + held bids %d", float, eng.TotalPending(), heldBids)
	}
}
