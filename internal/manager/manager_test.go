package manager

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestledger/internal/access"
	"honestledger/internal/bonus"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fee"
	"honestledger/internal/integration"
	"honestledger/internal/model"
	"honestledger/internal/registry"
	"honestledger/internal/savings"
	"honestledger/internal/token"
	"honestledger/internal/vault"
	"honestledger/internal/yieldsource"
)

var (
	governor   = common.HexToAddress("0x9000")
	managerAcc = common.HexToAddress("0x8000")
	vaultAcc   = common.HexToAddress("0x7000")
	custody    = common.HexToAddress("0x6000")
	pegged     = common.HexToAddress("0x4000")
	savingsAcc = common.HexToAddress("0x3000")
	feeAcc     = common.HexToAddress("0x2000")
	alice      = common.HexToAddress("0x0a")

	usdt = common.HexToAddress("0xa1")
	dai  = common.HexToAddress("0xa2")
	usdc = common.HexToAddress("0xa3")
	tusd = common.HexToAddress("0xa4")
)

type prices map[common.Address]*big.Int

func (p prices) Price(_ context.Context, asset common.Address) (*big.Int, error) {
	if v, ok := p[asset]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

type fixture struct {
	mgr   *Manager
	book  *token.Book
	reg   *registry.Registry
	fees  *fee.Ledger
	bonus *bonus.Pool
}

func units(v int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	p := access.NewStatic()
	p.Grant(access.RoleGovernor, governor)
	p.Grant(access.RoleAssetManager, managerAcc, savingsAcc)
	p.Grant(access.RoleVault, vaultAcc)
	p.Grant(access.RoleSavings, savingsAcc)

	book := token.NewBook()
	reg := registry.New(p, nil)
	for i, a := range []model.ReserveAsset{
		{ID: usdt, Decimals: 6},
		{ID: dai, Decimals: 18},
		{ID: usdc, Decimals: 6},
		{ID: tusd, Decimals: 18},
	} {
		a.Integration = common.BigToAddress(big.NewInt(int64(0xe0 + i)))
		require.NoError(t, reg.AddAsset(ctx, governor, a))
		require.NoError(t, book.Mint(ctx, a.ID, alice, units(1000, a.Decimals)))
	}

	src := yieldsource.NewSimulated(book, custody)
	in := integration.New(reg, src, book, p, custody, nil)
	v := vault.New(reg, in, book, p, vaultAcc, pegged, nil)
	reg.SetHoldingsReader(v)
	fees := fee.New(p, book, feeAcc, pegged, nil)
	bonuses := bonus.New(reg, p, book, pegged, nil)
	pool := savings.New(v, fees, bonuses, book, savingsAcc, pegged, nil)

	mgr := New(Config{
		Assets:  reg,
		Vault:   v,
		Fees:    fees,
		Bonuses: bonuses,
		Savings: pool,
		Prices:  prices{dai: big.NewInt(960_000_000_000_000_000), usdt: big.NewInt(1_014_000_000_000_000_000)},
		Tokens:  book,
		Account: managerAcc,
		Pegged:  pegged,
	})
	return fixture{mgr: mgr, book: book, reg: reg, fees: fees, bonus: bonuses}
}

func (f fixture) mintBasket(t *testing.T) {
	t.Helper()
	_, err := f.mgr.Mint(context.Background(), alice,
		[]common.Address{usdt, dai, usdc, tusd},
		[]*big.Int{units(100, 6), units(100, 18), units(100, 6), units(100, 18)})
	require.NoError(t, err)
}

func TestMintIsOneToOneWithBonus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mintBasket(t)

	assert.Equal(t, units(400, 18).String(), f.book.BalanceOf(ctx, pegged, alice).String())
	assert.Equal(t, units(100, 6).String(), f.book.BalanceOf(ctx, usdt, vaultAcc).String())

	b, _ := f.bonus.BonusOf(alice)
	assert.Equal(t, units(4, 18).String(), b.String())
}

func TestMintRejectsInactiveAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.reg.Deactivate(ctx, governor, usdc))

	_, err := f.mgr.Mint(ctx, alice, []common.Address{usdc}, []*big.Int{units(1, 6)})
	assert.ErrorIs(t, err, ledgererrors.ErrInvalidArgument)

	_, err = f.mgr.Mint(ctx, alice, []common.Address{dai}, []*big.Int{units(5000, 18)})
	assert.ErrorIs(t, err, ledgererrors.ErrTransferFailed)
}

func TestSwapChargesFeeInInputAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mintBasket(t)

	out, charged, err := f.mgr.Swap(ctx, alice, usdt, dai, units(10, 6))
	require.NoError(t, err)
	assert.Equal(t, units(10, 18).String(), out.String())
	assert.Equal(t, "100000", charged.String())

	assert.Equal(t, "889900000", f.book.BalanceOf(ctx, usdt, alice).String())
	assert.Equal(t, units(910, 18).String(), f.book.BalanceOf(ctx, dai, alice).String())
	assert.Equal(t, "110100000", f.book.BalanceOf(ctx, usdt, vaultAcc).String())

	feeValue := new(big.Int).Div(units(1, 18), big.NewInt(10))
	assert.Equal(t, feeValue.String(), f.fees.TotalFee().String())
	assert.Equal(t, feeValue.String(), f.book.BalanceOf(ctx, pegged, feeAcc).String())

	_, _, err = f.mgr.Swap(ctx, alice, usdt, dai, units(200, 6))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientVaultBalance)

	_, _, err = f.mgr.Swap(ctx, alice, dai, dai, units(1, 18))
	assert.ErrorIs(t, err, ledgererrors.ErrInvalidArgument)
}

func TestRedeemProportionallyWithholdsFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mintBasket(t)

	legs, charged, err := f.mgr.RedeemProportionally(ctx, alice, units(100, 18))
	require.NoError(t, err)
	assert.Equal(t, units(1, 18).String(), charged.String())

	sum := new(big.Int)
	for _, leg := range legs {
		sum.Add(sum, leg.Value)
	}
	assert.Equal(t, units(99, 18).String(), sum.String())
	assert.Equal(t, units(300, 18).String(), f.book.BalanceOf(ctx, pegged, alice).String())
	assert.Equal(t, "924750000", f.book.BalanceOf(ctx, usdc, alice).String())
	assert.Equal(t, units(8, 17).String(), f.fees.Claimable().String())
	assert.Equal(t, units(2, 17).String(), f.fees.Reserved().String())
}

func TestRedeemManuallyBurnsValuePlusFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mintBasket(t)

	legs, charged, err := f.mgr.RedeemManually(ctx, alice, []common.Address{usdc}, []*big.Int{units(50, 6)})
	require.NoError(t, err)
	// Manual amounts are native units; the burn is their 18-decimal value.
	require.Len(t, legs, 1)
	assert.Equal(t, units(50, 6).String(), legs[0].Amount.String())
	assert.Equal(t, units(50, 18).String(), legs[0].Value.String())
	assert.Equal(t, new(big.Int).Div(units(1, 18), big.NewInt(2)).String(), charged.String())
	assert.Equal(t, "349500000000000000000", f.book.BalanceOf(ctx, pegged, alice).String())

	_, _, err = f.mgr.RedeemManually(ctx, alice, []common.Address{usdc}, []*big.Int{units(51, 6)})
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientVaultBalance)
}

func TestSavingsPassThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mintBasket(t)

	shares, err := f.mgr.Deposit(ctx, alice, units(100, 18))
	require.NoError(t, err)
	assert.Equal(t, units(100, 18).String(), shares.String())

	paid, err := f.mgr.Withdraw(ctx, alice, shares)
	require.NoError(t, err)
	assert.Equal(t, units(100, 18).String(), paid.String())
	// The full exit settles the 4 bonus earned on the DAI mint.
	assert.Equal(t, units(404, 18).String(), f.book.BalanceOf(ctx, pegged, alice).String())
}
