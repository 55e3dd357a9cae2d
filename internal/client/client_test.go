package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/cardmarket/internal/cache/memory"
	"github.com/alanyoungcy/cardmarket/internal/crypto"
	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/market"
	"github.com/alanyoungcy/cardmarket/internal/registry"
	"github.com/alanyoungcy/cardmarket/internal/server"
	"github.com/alanyoungcy/cardmarket/internal/service"
	storemem "github.com/alanyoungcy/cardmarket/internal/store/memory"
)

var engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")

type testEnv struct {
	url      string
	accounts *registry.Accounts
	seller   *crypto.Signer
	buyer    *crypto.Signer
	rival    *crypto.Signer
	operator *crypto.Signer

	mu  sync.Mutex
	now time.Time
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) client(s *crypto.Signer) *Client {
	return New(e.url+"/", s)
}

func newSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return crypto.NewSigner(pk)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		accounts: registry.NewAccounts(),
		seller:   newSigner(t),
		buyer:    newSigner(t),
		rival:    newSigner(t),
		operator: newSigner(t),
		now:      time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC),
	}
	assets := registry.NewAssets()
	for id := domain.AssetID(1); id <= 3; id++ {
		require.NoError(t, assets.Mint(id, env.seller.Address()))
	}
	assets.SetApprovalForAll(env.seller.Address(), engineAddr, true)
	env.accounts.Deposit(env.buyer.Address(), 1_000)
	env.accounts.Deposit(env.rival.Address(), 1_000)

	settlements := storemem.NewSettlementStore()
	engine := market.NewEngine(market.Config{
		Address:   engineAddr,
		Operators: []domain.Address{env.operator.Address()},
	}, assets, env.accounts, logger).WithClock(env.clock)
	engine.SetEventSink(service.NewEventPublisher(nil, nil, settlements, logger))

	srv := server.NewServer(server.Config{}, server.Deps{
		Market:      engine,
		Settlements: settlements,
		Verifier:    crypto.NewVerifier(time.Minute),
		Limiter:     cachemem.NewRateLimiter(),
	}, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	env.url = ts.URL
	return env
}

func TestClientFixedPriceSale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.client(env.seller)
	buyer := env.client(env.buyer)

	view, err := seller.ListCard(ctx, 1, 100)
	require.NoError(t, err)
	assert.True(t, view.IsActive)
	assert.Equal(t, domain.Amount(100), view.Price)

	listings, err := env.client(nil).Listings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, domain.AssetID(1), listings[0].AssetID)

	st, err := buyer.BuyCard(ctx, 1, 120)
	require.NoError(t, err)
	assert.Equal(t, env.buyer.Address(), st.Buyer)
	assert.Equal(t, domain.Amount(100), st.Amount)

	got, err := env.client(nil).Listing(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	history, err := env.client(nil).Settlements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.AssetID(1), history[0].AssetID)
}

func TestClientAuctionFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	auction, err := env.client(env.seller).StartAuction(ctx, 3, 50, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(50), auction.AskingPrice)

	_, err = env.client(env.rival).PlaceBid(ctx, 3, 60)
	require.NoError(t, err)

	_, err = env.client(env.buyer).PlaceBid(ctx, 3, 61)
	require.ErrorIs(t, err, domain.ErrLowBid)

	view, err := env.client(env.buyer).PlaceBid(ctx, 3, 70)
	require.NoError(t, err)
	assert.Equal(t, env.buyer.Address(), view.HighestBidder)

	pending, err := env.client(nil).PendingBalance(ctx, env.rival.Address())
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(60), pending)

	_, err = env.client(env.seller).FinalizeAuction(ctx, 3)
	require.ErrorIs(t, err, domain.ErrAuctionNotEnded)

	env.advance(2 * time.Hour)
	st, err := env.client(env.operator).FinalizeAuction(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, env.buyer.Address(), st.Buyer)
	assert.Equal(t, domain.Amount(70), st.Amount)

	withdrawn, err := env.client(env.rival).Withdraw(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(60), withdrawn)
	assert.Equal(t, domain.Amount(1_000), env.accounts.Balance(env.rival.Address()))
}

func TestClientMapsErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client(env.buyer).ListCard(ctx, 2, 10)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = env.client(env.seller).ListCard(ctx, 2, 0)
	require.ErrorIs(t, err, domain.ErrInvalidPrice)

	err = env.client(env.buyer).Pause(ctx)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, env.client(env.operator).Pause(ctx))
	_, err = env.client(env.seller).ListCard(ctx, 2, 10)
	require.ErrorIs(t, err, domain.ErrPaused)
	require.NoError(t, env.client(env.operator).Unpause(ctx))

	_, err = env.client(env.rival).Withdraw(ctx)
	require.ErrorIs(t, err, domain.ErrNothingToWithdraw)
}

func TestClientRequiresSignerForWrites(t *testing.T) {
	env := newTestEnv(t)
	err := env.client(nil).Pause(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signing key")
}

func TestCheckHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"ok", http.StatusOK, `{}`, nil},
		{"sentinel by message", http.StatusConflict, `{"error":"market: list 4: asset is already listed"}`, domain.ErrAlreadyListed},
		{"bad signature fallback", http.StatusUnauthorized, `{"error":"signed request required"}`, domain.ErrBadSignature},
		{"not found fallback", http.StatusNotFound, `404 page not found`, domain.ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, `{"error":"rate limit exceeded"}`, domain.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkHTTPStatus(tt.status, []byte(tt.body))
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := checkHTTPStatus(http.StatusBadGateway, []byte("upstream down"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}
