package integration

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestledger/internal/access"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/model"
	"honestledger/internal/registry"
	"honestledger/internal/token"
	"honestledger/internal/yieldsource"
)

var (
	governor = common.HexToAddress("0x9000")
	vaultAcc = common.HexToAddress("0x7000")
	custody  = common.HexToAddress("0x6000")
	usdc     = common.HexToAddress("0xa6")
	dai      = common.HexToAddress("0xd1")
	bare     = common.HexToAddress("0xb0")
	yusdc    = common.HexToAddress("0xe6")
	ydai     = common.HexToAddress("0xe1")
)

type fixture struct {
	in     *Integration
	book   *token.Book
	source *yieldsource.Simulated
}

func units(v int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	p := access.NewStatic()
	p.Grant(access.RoleGovernor, governor)
	p.Grant(access.RoleVault, vaultAcc)

	reg := registry.New(p, nil)
	require.NoError(t, reg.AddAsset(ctx, governor, model.ReserveAsset{ID: usdc, Decimals: 6, Integration: yusdc}))
	require.NoError(t, reg.AddAsset(ctx, governor, model.ReserveAsset{ID: dai, Decimals: 18, Integration: ydai}))
	require.NoError(t, reg.AddAsset(ctx, governor, model.ReserveAsset{ID: bare, Decimals: 18}))

	book := token.NewBook()
	require.NoError(t, book.Mint(ctx, usdc, vaultAcc, units(1000, 6)))
	require.NoError(t, book.Mint(ctx, dai, vaultAcc, units(1000, 18)))

	src := yieldsource.NewSimulated(book, custody)
	return fixture{in: New(reg, src, book, p, custody, nil), book: book, source: src}
}

func TestInvestIssuesNormalizedShares(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	shares, err := f.in.Invest(ctx, vaultAcc, usdc, units(100, 6))
	require.NoError(t, err)
	assert.Equal(t, units(100, 18).String(), shares.String())
	assert.Equal(t, units(900, 6).String(), f.book.BalanceOf(ctx, usdc, vaultAcc).String())

	value, err := f.in.ValueOf(ctx, usdc)
	require.NoError(t, err)
	assert.Equal(t, units(100, 18).String(), value.String())

	bal, err := f.in.BalanceOf(ctx, usdc)
	require.NoError(t, err)
	assert.Equal(t, units(100, 6).String(), bal.String())
}

func TestInvestErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.in.Invest(ctx, vaultAcc, bare, big.NewInt(1))
	assert.ErrorIs(t, err, ledgererrors.ErrUnknownAsset)

	_, err = f.in.Invest(ctx, vaultAcc, common.HexToAddress("0xff"), big.NewInt(1))
	assert.ErrorIs(t, err, ledgererrors.ErrUnknownAsset)

	_, err = f.in.Invest(ctx, vaultAcc, usdc, units(5000, 6))
	assert.ErrorIs(t, err, ledgererrors.ErrTransferFailed)
	assert.Equal(t, "0", f.in.Position(usdc).Shares.String())

	_, err = f.in.Invest(ctx, vaultAcc, usdc, new(big.Int))
	assert.ErrorIs(t, err, ledgererrors.ErrZeroAmount)

	_, err = f.in.Invest(ctx, governor, usdc, big.NewInt(1))
	assert.ErrorIs(t, err, ledgererrors.ErrUnauthorized)
}

func TestCollectAfterYieldConservesValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	shares, err := f.in.Invest(ctx, vaultAcc, dai, units(100, 18))
	require.NoError(t, err)
	require.NoError(t, f.source.Accrue(ctx, dai, units(10, 18)))

	price, err := f.in.PriceOf(ctx, dai)
	require.NoError(t, err)
	assert.Equal(t, "1100000000000000000", price.String())

	_, err = f.in.Collect(ctx, vaultAcc, dai, new(big.Int).Add(shares, big.NewInt(1)))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientShares)

	out, err := f.in.Collect(ctx, vaultAcc, dai, shares)
	require.NoError(t, err)
	assert.True(t, out.Cmp(units(110, 18)) <= 0)
	assert.Equal(t, units(110, 18).String(), out.String())
	assert.Equal(t, "0", f.in.Position(dai).Shares.String())
}

func TestCollectAmountBurnsMinOfRequiredAndHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.in.Invest(ctx, vaultAcc, dai, units(100, 18))
	require.NoError(t, err)
	require.NoError(t, f.source.Accrue(ctx, dai, units(10, 18)))

	out, burned, err := f.in.CollectAmount(ctx, vaultAcc, dai, units(55, 18))
	require.NoError(t, err)
	assert.True(t, out.Cmp(units(55, 18)) >= 0)
	assert.Equal(t, units(50, 18).String(), burned.String())

	// Asking for more than the position is worth burns everything that is left.
	out, burned, err = f.in.CollectAmount(ctx, vaultAcc, dai, units(500, 18))
	require.NoError(t, err)
	assert.Equal(t, units(50, 18).String(), burned.String())
	assert.Equal(t, units(55, 18).String(), out.String())

	_, _, err = f.in.CollectAmount(ctx, vaultAcc, dai, big.NewInt(1))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientShares)
}

func TestExportImportRestoresPositions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.in.Invest(ctx, vaultAcc, usdc, units(10, 6))
	require.NoError(t, err)

	saved := f.in.Export()
	_, err = f.in.Invest(ctx, vaultAcc, usdc, units(10, 6))
	require.NoError(t, err)

	f.in.Import(saved)
	assert.Equal(t, units(10, 18).String(), f.in.Position(usdc).Shares.String())
}
