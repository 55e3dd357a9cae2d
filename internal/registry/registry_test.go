package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestAssetsTransferRequiresHolder(t *testing.T) {
	ctx := context.Background()
	a := NewAssets()
	require.NoError(t, a.Mint(7, alice))
	require.Error(t, a.Mint(7, bob))

	err := a.TransferCustody(ctx, 7, bob, alice)
	assert.ErrorIs(t, err, domain.ErrNotHolder)

	require.NoError(t, a.TransferCustody(ctx, 7, alice, bob))
	owner, err := a.OwnerOf(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	_, err = a.OwnerOf(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssetsApproval(t *testing.T) {
	ctx := context.Background()
	a := NewAssets()
	ok, err := a.IsApprovedForOperator(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	a.SetApprovalForAll(alice, bob, true)
	ok, _ = a.IsApprovedForOperator(ctx, alice, bob)
	assert.True(t, ok)

	a.SetApprovalForAll(alice, bob, false)
	ok, _ = a.IsApprovedForOperator(ctx, alice, bob)
	assert.False(t, ok)
}

func TestAccountsCollectAndPay(t *testing.T) {
	ctx := context.Background()
	acc := NewAccounts()
	acc.Deposit(alice, 100)

	err := acc.Collect(ctx, alice, 150)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, acc.Collect(ctx, alice, 60))
	assert.Equal(t, domain.Amount(40), acc.Balance(alice))
	assert.Equal(t, domain.Amount(60), acc.Float())

	require.NoError(t, acc.Pay(ctx, bob, 60))
	assert.Equal(t, domain.Amount(60), acc.Balance(bob))
	assert.Equal(t, domain.Amount(0), acc.Float())
	assert.ErrorIs(t, acc.Pay(ctx, bob, 1), domain.ErrInsufficientFunds)
	assert.Equal(t, domain.Amount(100), acc.Total())
}
