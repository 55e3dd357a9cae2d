package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/config"
	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/registry"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000e0001")
	opAddr     = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	aliceAddr  = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bobAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Market.EngineAddress = engineAddr.Hex()
	cfg.Market.Operators = []string{opAddr.Hex()}
	cfg.Server.Port = 0
	cfg.Dev = config.DevConfig{
		Cards:         []config.DevCard{{ID: 1, Owner: aliceAddr.Hex()}, {ID: 2, Owner: aliceAddr.Hex()}},
		Deposits:      map[string]int64{bobAddr.Hex(): 500},
		ApproveEngine: true,
	}
	return &cfg
}

func TestWireMemoryBackends(t *testing.T) {
	ctx := context.Background()
	cfg := devConfig()

	deps, cleanup, err := Wire(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.StateStore)
	assert.NotNil(t, deps.Settlements)
	assert.NotNil(t, deps.AuditStore)
	assert.NotNil(t, deps.SignalBus)
	assert.NotNil(t, deps.LockManager)
	assert.NotNil(t, deps.RateLimiter)
	assert.NotNil(t, deps.sweepLimiter)
	assert.Nil(t, deps.Archiver, "server mode does not archive")

	owner, err := deps.Assets.OwnerOf(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, aliceAddr, owner)

	approved, err := deps.Assets.IsApprovedForOperator(ctx, aliceAddr, engineAddr)
	require.NoError(t, err)
	assert.True(t, approved)

	accounts, ok := deps.Payments.(*registry.Accounts)
	require.True(t, ok)
	assert.Equal(t, domain.Amount(500), accounts.Balance(bobAddr))
}

func TestSeedDevRejectsDuplicateCard(t *testing.T) {
	cfg := devConfig()
	cfg.Dev.Cards = append(cfg.Dev.Cards, config.DevCard{ID: 1, Owner: bobAddr.Hex()})

	_, _, err := seedDev(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed card 1")
}

func TestSeedDevWithoutApproval(t *testing.T) {
	cfg := devConfig()
	cfg.Dev.ApproveEngine = false

	assets, _, err := seedDev(cfg)
	require.NoError(t, err)
	approved, err := assets.IsApprovedForOperator(context.Background(), aliceAddr, engineAddr)
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestArchiveModeRequiresArchiver(t *testing.T) {
	a := New(devConfig(), testLogger())
	err := a.ArchiveMode(context.Background(), &Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archiver not configured")
}

func TestServerModeStopsOnCancel(t *testing.T) {
	cfg := devConfig()
	a := New(cfg, testLogger())
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("server mode did not stop after cancellation")
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := devConfig()
	cfg.Mode = "backtest"
	a := New(cfg, testLogger())
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}
