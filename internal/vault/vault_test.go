package vault

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestledger/internal/access"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/integration"
	"honestledger/internal/model"
	"honestledger/internal/registry"
	"honestledger/internal/token"
	"honestledger/internal/yieldsource"
)

var (
	governor  = common.HexToAddress("0x9000")
	manager   = common.HexToAddress("0x8000")
	vaultAcc  = common.HexToAddress("0x7000")
	custody   = common.HexToAddress("0x6000")
	recipient = common.HexToAddress("0x5000")
	pegged    = common.HexToAddress("0x4000")

	assetA = common.HexToAddress("0xa1")
	assetB = common.HexToAddress("0xb2")
	assetC = common.HexToAddress("0xc3")
	assetD = common.HexToAddress("0xd4")
)

type fixture struct {
	vault  *Vault
	reg    *registry.Registry
	yield  *integration.Integration
	source *yieldsource.Simulated
	book   *token.Book
}

func units(v int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

// newFixture registers A..D (C uses 6 decimals) and gives the vault idle
// reserves worth idle each.
func newFixture(t *testing.T, idle int64) fixture {
	t.Helper()
	ctx := context.Background()
	p := access.NewStatic()
	p.Grant(access.RoleGovernor, governor)
	p.Grant(access.RoleAssetManager, manager)
	p.Grant(access.RoleVault, vaultAcc)

	reg := registry.New(p, nil)
	book := token.NewBook()
	for _, a := range []model.ReserveAsset{
		{ID: assetA, Decimals: 18, Integration: common.HexToAddress("0xe1")},
		{ID: assetB, Decimals: 18, Integration: common.HexToAddress("0xe2")},
		{ID: assetC, Decimals: 6, Integration: common.HexToAddress("0xe3")},
		{ID: assetD, Decimals: 18, Integration: common.HexToAddress("0xe4")},
	} {
		require.NoError(t, reg.AddAsset(ctx, governor, a))
		require.NoError(t, book.Mint(ctx, a.ID, vaultAcc, units(idle, a.Decimals)))
	}

	src := yieldsource.NewSimulated(book, custody)
	in := integration.New(reg, src, book, p, custody, nil)
	v := New(reg, in, book, p, vaultAcc, pegged, nil)
	reg.SetHoldingsReader(v)
	reg.SetPositionReader(in)
	return fixture{vault: v, reg: reg, yield: in, source: src, book: book}
}

func TestDistributeProportionallyEqualReserves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25)

	legs, err := f.vault.DistributeProportionally(ctx, manager, recipient, units(100, 18))
	require.NoError(t, err)
	require.Len(t, legs, 4)

	sum := new(big.Int)
	for _, leg := range legs {
		sum.Add(sum, leg.Value)
		assert.Equal(t, units(25, 18).String(), leg.Value.String())
	}
	assert.Equal(t, units(100, 18).String(), sum.String())
	assert.Equal(t, units(25, 6).String(), f.book.BalanceOf(ctx, assetC, recipient).String())
	assert.Equal(t, units(25, 18).String(), f.book.BalanceOf(ctx, assetA, recipient).String())

	total, err := f.vault.TotalValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", total.String())
}

func TestDistributeProportionallyLegsSumExactly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	require.NoError(t, f.reg.Deactivate(ctx, governor, assetD))

	requested := new(big.Int).Add(units(10, 18), big.NewInt(1))
	legs, err := f.vault.DistributeProportionally(ctx, manager, recipient, requested)
	require.NoError(t, err)
	require.Len(t, legs, 3)

	sum := new(big.Int)
	for _, leg := range legs {
		sum.Add(sum, leg.Value)
	}
	assert.Equal(t, requested.String(), sum.String())
	assert.Equal(t, "0", f.book.BalanceOf(ctx, assetD, recipient).String())
}

func TestDistributeNeverDrawsInvestedReserves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	_, err := f.vault.Deposit(ctx, manager, units(200, 18))
	require.NoError(t, err)
	assert.Equal(t, units(50, 18).String(), f.vault.Idle(ctx, assetA).String())

	held, err := f.vault.Holdings(ctx, assetA)
	require.NoError(t, err)
	assert.Equal(t, units(100, 18).String(), held.String())

	_, err = f.vault.DistributeManually(ctx, manager, recipient, []common.Address{assetA}, []*big.Int{units(80, 18)})
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientVaultBalance)

	_, err = f.vault.DistributeProportionally(ctx, manager, recipient, units(201, 18))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientVaultBalance)

	legs, err := f.vault.DistributeProportionally(ctx, manager, recipient, units(200, 18))
	require.NoError(t, err)
	require.Len(t, legs, 4)
	assert.Equal(t, "0", f.vault.Idle(ctx, assetA).String())

	invested, err := f.vault.InvestedValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, units(200, 18).String(), invested.String())
}

func TestDepositSkipsFullyInvestedAssets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	require.NoError(t, f.book.Mint(ctx, assetA, vaultAcc, units(100, 18)))
	_, err := f.vault.Deposit(ctx, manager, units(100, 18))
	require.NoError(t, err)
	assert.Equal(t, "0", f.vault.Idle(ctx, assetA).String())

	require.NoError(t, f.book.Mint(ctx, assetC, vaultAcc, units(100, 6)))
	legs, err := f.vault.Deposit(ctx, manager, units(100, 18))
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, assetC, legs[0].Asset)
	assert.Equal(t, units(100, 6).String(), legs[0].Amount.String())

	invested, err := f.vault.InvestedValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, units(200, 18).String(), invested.String())
}

func TestDistributeManuallyDoesNotSubstitute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	_, err := f.vault.DistributeManually(ctx, manager, recipient,
		[]common.Address{assetA, assetB}, []*big.Int{units(5, 18), units(11, 18)})
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientVaultBalance)
	assert.Equal(t, "0", f.book.BalanceOf(ctx, assetA, recipient).String())

	_, err = f.vault.DistributeManually(ctx, manager, recipient, []common.Address{assetA}, nil)
	assert.ErrorIs(t, err, ledgererrors.ErrInvalidArgument)

	_, err = f.vault.DistributeManually(ctx, manager, recipient,
		[]common.Address{common.HexToAddress("0xfe")}, []*big.Int{big.NewInt(1)})
	assert.ErrorIs(t, err, ledgererrors.ErrUnknownAsset)
}

func TestDepositInvestsProportionally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	legs, err := f.vault.Deposit(ctx, manager, units(100, 18))
	require.NoError(t, err)
	require.Len(t, legs, 4)
	assert.Equal(t, units(25, 6).String(), legs[2].Amount.String())

	invested, err := f.vault.InvestedValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, units(100, 18).String(), invested.String())

	total, err := f.vault.TotalValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, units(400, 18).String(), total.String())

	_, err = f.vault.Deposit(ctx, manager, units(1000, 18))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientVaultBalance)

	_, err = f.vault.Deposit(ctx, recipient, units(1, 18))
	assert.ErrorIs(t, err, ledgererrors.ErrUnauthorized)
}

func TestWithdrawCollectsAndMintsPegged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	_, err := f.vault.Deposit(ctx, manager, units(100, 18))
	require.NoError(t, err)

	legs, err := f.vault.Withdraw(ctx, manager, recipient, units(40, 18))
	require.NoError(t, err)
	require.Len(t, legs, 4)
	assert.Equal(t, units(40, 18).String(), f.book.BalanceOf(ctx, pegged, recipient).String())

	invested, err := f.vault.InvestedValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, units(60, 18).String(), invested.String())
	assert.Equal(t, units(85, 18).String(), f.vault.Idle(ctx, assetA).String())

	_, err = f.vault.Withdraw(ctx, manager, recipient, units(61, 18))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientVaultBalance)
}

func TestRegistryRemoveSeesInvestedBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	require.NoError(t, f.book.Mint(ctx, assetA, vaultAcc, units(10, 18)))
	_, err := f.yield.Invest(ctx, vaultAcc, assetA, units(10, 18))
	require.NoError(t, err)

	err = f.reg.Remove(ctx, governor, assetA)
	assert.ErrorIs(t, err, ledgererrors.ErrAssetNotEmpty)

	require.NoError(t, f.reg.Remove(ctx, governor, assetB))
}
