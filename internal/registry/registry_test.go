package registry

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
)

var (
	governor = common.HexToAddress("0x9000")
	assetA   = common.HexToAddress("0xa1")
	assetB   = common.HexToAddress("0xb2")
	assetC   = common.HexToAddress("0xc3")
)

type fakeHoldings map[common.Address]*big.Int

func (f fakeHoldings) Holdings(_ context.Context, asset common.Address) (*big.Int, error) {
	if v, ok := f[asset]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

type fakePositions map[common.Address]*big.Int

func (f fakePositions) Position(id common.Address) model.YieldPosition {
	shares, ok := f[id]
	if !ok {
		shares = new(big.Int)
	}
	return model.YieldPosition{Asset: id, Shares: shares}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	p := access.NewStatic()
	p.Grant(access.RoleGovernor, governor)
	return New(p, nil)
}

func TestAddAndListKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	for _, id := range []common.Address{assetB, assetA, assetC} {
		require.NoError(t, r.AddAsset(ctx, governor, model.ReserveAsset{ID: id, Decimals: 18}))
	}

	require.NoError(t, r.Deactivate(ctx, governor, assetA))
	require.NoError(t, r.Deactivate(ctx, governor, assetA))

	all := r.ListAssets()
	require.Len(t, all, 3)
	assert.Equal(t, assetB, all[0].ID)
	assert.False(t, all[1].Active)
	assert.Equal(t, []common.Address{assetB, assetC}, r.ListActive())

	require.NoError(t, r.Activate(ctx, governor, assetA))
	assert.Equal(t, []common.Address{assetB, assetA, assetC}, r.ListActive())
}

func TestAddAssetErrors(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	require.NoError(t, r.AddAsset(ctx, governor, model.ReserveAsset{ID: assetA}))

	err := r.AddAsset(ctx, governor, model.ReserveAsset{ID: assetA})
	assert.ErrorIs(t, err, ledgererrors.ErrDuplicateAsset)

	err = r.AddAsset(ctx, governor, model.ReserveAsset{})
	assert.ErrorIs(t, err, ledgererrors.ErrInvalidArgument)

	err = r.AddAsset(ctx, assetB, model.ReserveAsset{ID: assetB})
	assert.ErrorIs(t, err, ledgererrors.ErrUnauthorized)

	err = r.Activate(ctx, governor, assetC)
	assert.ErrorIs(t, err, ledgererrors.ErrUnknownAsset)
}

func TestRemoveRequiresEmptyAsset(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	held := fakeHoldings{assetA: big.NewInt(1)}
	r.SetHoldingsReader(held)
	require.NoError(t, r.AddAsset(ctx, governor, model.ReserveAsset{ID: assetA}))
	require.NoError(t, r.AddAsset(ctx, governor, model.ReserveAsset{ID: assetB}))

	err := r.Remove(ctx, governor, assetA)
	assert.ErrorIs(t, err, ledgererrors.ErrAssetNotEmpty)

	held[assetA] = new(big.Int)
	require.NoError(t, r.Remove(ctx, governor, assetA))
	assert.Equal(t, []common.Address{assetB}, r.ListActive())

	_, err = r.Asset(assetA)
	assert.ErrorIs(t, err, ledgererrors.ErrUnknownAsset)

	b, err := r.Asset(assetB)
	require.NoError(t, err)
	assert.Equal(t, assetB, b.ID)
}

func TestSetIntegrationFrozenWhileInvested(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	source := common.HexToAddress("0xe1")
	require.NoError(t, r.AddAsset(ctx, governor, model.ReserveAsset{ID: assetA, Decimals: 6, Integration: source}))
	require.NoError(t, r.AddAsset(ctx, governor, model.ReserveAsset{ID: assetB, Decimals: 18, Integration: source}))

	positions := fakePositions{assetA: big.NewInt(500)}
	r.SetPositionReader(positions)

	err := r.SetIntegration(ctx, governor, assetA, common.Address{})
	assert.ErrorIs(t, err, ledgererrors.ErrAssetNotEmpty)
	err = r.SetIntegration(ctx, governor, assetA, common.HexToAddress("0xe2"))
	assert.ErrorIs(t, err, ledgererrors.ErrAssetNotEmpty)

	a, err := r.Asset(assetA)
	require.NoError(t, err)
	assert.Equal(t, source, a.Integration)

	// Re-setting the current mapping is a no-op even while invested.
	require.NoError(t, r.SetIntegration(ctx, governor, assetA, source))

	require.NoError(t, r.SetIntegration(ctx, governor, assetB, common.HexToAddress("0xe2")))
	positions[assetA] = new(big.Int)
	require.NoError(t, r.SetIntegration(ctx, governor, assetA, common.Address{}))
	a, err = r.Asset(assetA)
	require.NoError(t, err)
	assert.False(t, a.HasIntegration())
}
