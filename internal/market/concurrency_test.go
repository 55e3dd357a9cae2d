package market

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

func TestConcurrentBidsAndWithdrawals(t *testing.T) {
	const (
		bidders = 20
		rounds  = 50
		deposit = domain.Amount(1_000_000)
	)
	f := newFixture(t)

	addrs := make([]domain.Address, bidders)
	for i := range addrs {
		addrs[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		f.accounts.Deposit(addrs[i], deposit)
	}
	total := f.accounts.Total()

	_, err := f.engine.StartAuction(f.ctx, seller, card, 100, time.Hour)
	require.NoError(t, err)

	tolerated := func(err error) bool {
		return err == nil ||
			errors.Is(err, domain.ErrLowBid) ||
			errors.Is(err, domain.ErrInsufficientFunds) ||
			errors.Is(err, domain.ErrNothingToWithdraw)
	}

	var wg sync.WaitGroup
	for _, who := range addrs {
		wg.Add(1)
		go func(who domain.Address) {
			defer wg.Done()
			var lastSeen domain.Amount
			for r := 0; r < rounds; r++ {
				cur := f.engine.GetAuction(card)
				assert.GreaterOrEqual(t, cur.HighestBid, lastSeen, "highest bid went backwards")
				lastSeen = cur.HighestBid

				next := MinNextBid(domain.Auction{
					AskingPrice:   cur.AskingPrice,
					HighestBid:    cur.HighestBid,
					HighestBidder: cur.HighestBidder,
				}, DefaultMinIncrementPct)
				_, err := f.engine.PlaceBid(f.ctx, who, card, next)
				assert.True(t, tolerated(err), "bid: %v", err)

				if r%3 == 0 {
					_, err = f.engine.WithdrawFunds(f.ctx, who)
					assert.True(t, tolerated(err), "withdraw: %v", err)
				}
				_ = f.engine.GetPendingBalance(who)
				_ = f.engine.ActiveListings()
			}
		}(who)
	}
	wg.Wait()

	f.clock.Advance(2 * time.Hour)
	st, err := f.engine.FinalizeAuction(f.ctx, seller, card)
	require.NoError(t, err)
	require.Contains(t, addrs, st.Buyer)
	assert.Equal(t, st.Buyer, f.owner(t, card))

	for _, who := range addrs {
		_, err := f.engine.WithdrawFunds(f.ctx, who)
		require.True(t, tolerated(err), "withdraw: %v", err)
	}

	assert.Zero(t, f.engine.TotalPending())
	assert.Zero(t, f.accounts.Float())
	assert.Equal(t, total, f.accounts.Total())
	assert.Equal(t, st.Amount, f.accounts.Balance(seller))
	assert.Equal(t, deposit-st.Amount, f.accounts.Balance(st.Buyer))
}
