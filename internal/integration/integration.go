// Package integration keeps per-asset share accounting against yield sources.
//
// Positions are stored as 18-decimal shares. Every call into the source and
// the token provider happens before the position is updated, so a failing
// external step never leaves shares committed.
package integration

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"honestledger/internal/access"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
	"honestledger/internal/token"
)

// Source is an external interest-bearing position. Amounts and shares are
// native units of the asset; prices are 18-decimal.
type Source interface {
	PricePerShare(ctx context.Context, asset common.Address) (*big.Int, error)
	Deposit(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, asset common.Address, shares *big.Int) (*big.Int, error)
}

// AssetLookup resolves registered assets.
type AssetLookup interface {
	Asset(id common.Address) (model.ReserveAsset, error)
}

// Integration invests vault reserves into a Source.
type Integration struct {
	assets  AssetLookup
	source  Source
	tokens  token.Provider
	access  access.Provider
	account common.Address
	logger  *zap.Logger

	positions map[common.Address]*model.YieldPosition
}

// New builds an integration whose token custody is account.
func New(assets AssetLookup, source Source, tokens token.Provider, p access.Provider, account common.Address, logger *zap.Logger) *Integration {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Integration{
		assets:    assets,
		source:    source,
		tokens:    tokens,
		access:    p,
		account:   account,
		logger:    logger,
		positions: make(map[common.Address]*model.YieldPosition),
	}
}

// Account is the custody address holding invested tokens.
func (in *Integration) Account() common.Address {
	return in.account
}

func (in *Integration) mapped(id common.Address) (model.ReserveAsset, error) {
	asset, err := in.assets.Asset(id)
	if err != nil {
		return model.ReserveAsset{}, err
	}
	if !asset.HasIntegration() {
		return model.ReserveAsset{}, ledgererrors.New(ledgererrors.CodeUnknownAsset, "asset %s: no integration mapped", id.Hex())
	}
	return asset, nil
}

func (in *Integration) position(asset model.ReserveAsset) *model.YieldPosition {
	pos, ok := in.positions[asset.ID]
	if !ok {
		pos = &model.YieldPosition{Asset: asset.ID, Source: asset.Integration, Shares: new(big.Int)}
		in.positions[asset.ID] = pos
	}
	return pos
}

// PriceOf returns the source price per share for asset.
func (in *Integration) PriceOf(ctx context.Context, id common.Address) (*big.Int, error) {
	if _, err := in.mapped(id); err != nil {
		return nil, err
	}
	price, err := in.source.PricePerShare(ctx, id)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodePriceUnavailable, err, "price of %s", id.Hex())
	}
	if fixed.IsZero(price) {
		return nil, ledgererrors.New(ledgererrors.CodePriceUnavailable, "price of %s: zero", id.Hex())
	}
	return price, nil
}

// Invest moves amount native units from caller into the source.
func (in *Integration) Invest(ctx context.Context, caller, id common.Address, amount *big.Int) (*big.Int, error) {
	if err := access.Require(ctx, in.access, access.RoleVault, caller); err != nil {
		return nil, err
	}
	if fixed.IsZero(amount) {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "invest %s: zero amount", id.Hex())
	}
	asset, err := in.mapped(id)
	if err != nil {
		return nil, err
	}
	price, err := in.PriceOf(ctx, id)
	if err != nil {
		return nil, err
	}
	if fixed.MulDiv(amount, fixed.One, price).Sign() == 0 {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "invest %s: %s buys no shares", id.Hex(), amount)
	}

	if err := in.tokens.TransferFrom(ctx, id, caller, in.account, amount); err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "invest %s", id.Hex())
	}
	minted, err := in.source.Deposit(ctx, id, amount)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "invest %s: source deposit", id.Hex())
	}

	shares := fixed.Normalize(minted, asset.Decimals)
	pos := in.position(asset)
	pos.Shares.Add(pos.Shares, shares)
	in.logger.Debug("invested",
		zap.String("asset", id.Hex()),
		zap.String("amount", amount.String()),
		zap.String("shares", shares.String()),
	)
	return shares, nil
}

// Collect burns 18-decimal shares and pays the proceeds to caller.
func (in *Integration) Collect(ctx context.Context, caller, id common.Address, shares *big.Int) (*big.Int, error) {
	if err := access.Require(ctx, in.access, access.RoleVault, caller); err != nil {
		return nil, err
	}
	if fixed.IsZero(shares) {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "collect %s: zero shares", id.Hex())
	}
	asset, err := in.mapped(id)
	if err != nil {
		return nil, err
	}
	pos := in.position(asset)
	if shares.Cmp(pos.Shares) > 0 {
		return nil, ledgererrors.New(ledgererrors.CodeInsufficientShares, "collect %s: %s shares above held %s", id.Hex(), shares, pos.Shares)
	}
	native := fixed.Denormalize(shares, asset.Decimals)
	if native.Sign() == 0 {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "collect %s: shares below one native unit", id.Hex())
	}
	return in.burn(ctx, caller, asset, pos, native)
}

// CollectAmount withdraws at least amount native units, burning
// min(required shares, held shares). The returned value may exceed amount by
// rounding; it is short only when the position cannot cover amount.
func (in *Integration) CollectAmount(ctx context.Context, caller, id common.Address, amount *big.Int) (*big.Int, *big.Int, error) {
	if err := access.Require(ctx, in.access, access.RoleVault, caller); err != nil {
		return nil, nil, err
	}
	if fixed.IsZero(amount) {
		return nil, nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "collect %s: zero amount", id.Hex())
	}
	asset, err := in.mapped(id)
	if err != nil {
		return nil, nil, err
	}
	price, err := in.PriceOf(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	pos := in.position(asset)
	held := fixed.Denormalize(pos.Shares, asset.Decimals)
	native := fixed.Min(fixed.MulDivUp(amount, fixed.One, price), held)
	if native.Sign() == 0 {
		return nil, nil, ledgererrors.New(ledgererrors.CodeInsufficientShares, "collect %s: no shares held", id.Hex())
	}
	out, err := in.burn(ctx, caller, asset, pos, native)
	if err != nil {
		return nil, nil, err
	}
	return out, fixed.Normalize(native, asset.Decimals), nil
}

func (in *Integration) burn(ctx context.Context, caller common.Address, asset model.ReserveAsset, pos *model.YieldPosition, native *big.Int) (*big.Int, error) {
	out, err := in.source.Withdraw(ctx, asset.ID, native)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "collect %s: source withdraw", asset.ID.Hex())
	}
	if out.Sign() > 0 {
		if err := in.tokens.TransferFrom(ctx, asset.ID, in.account, caller, out); err != nil {
			return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "collect %s", asset.ID.Hex())
		}
	}
	burned := fixed.Normalize(native, asset.Decimals)
	pos.Shares.Sub(pos.Shares, burned)
	in.logger.Debug("collected",
		zap.String("asset", asset.ID.Hex()),
		zap.String("amount", out.String()),
		zap.String("shares", burned.String()),
	)
	return out, nil
}

// BalanceOf returns the current value of the asset position in native units.
func (in *Integration) BalanceOf(ctx context.Context, id common.Address) (*big.Int, error) {
	asset, err := in.assets.Asset(id)
	if err != nil {
		return nil, err
	}
	pos, ok := in.positions[id]
	if !ok || pos.Shares.Sign() == 0 {
		return new(big.Int), nil
	}
	price, err := in.PriceOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return fixed.MulDiv(fixed.Denormalize(pos.Shares, asset.Decimals), price, fixed.One), nil
}

// ValueOf returns the position value in 18-decimal units.
func (in *Integration) ValueOf(ctx context.Context, id common.Address) (*big.Int, error) {
	asset, err := in.assets.Asset(id)
	if err != nil {
		return nil, err
	}
	bal, err := in.BalanceOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return fixed.Normalize(bal, asset.Decimals), nil
}

// TotalValue sums every position in 18-decimal units.
func (in *Integration) TotalValue(ctx context.Context) (*big.Int, error) {
	total := new(big.Int)
	for _, pos := range in.Export() {
		if pos.Shares.Sign() == 0 {
			continue
		}
		v, err := in.ValueOf(ctx, pos.Asset)
		if err != nil {
			return nil, err
		}
		total.Add(total, v)
	}
	return total, nil
}

// Position returns a copy of the position for asset.
func (in *Integration) Position(id common.Address) model.YieldPosition {
	pos, ok := in.positions[id]
	if !ok {
		return model.YieldPosition{Asset: id, Shares: new(big.Int)}
	}
	return model.YieldPosition{Asset: pos.Asset, Source: pos.Source, Shares: fixed.Clone(pos.Shares)}
}

// Export copies every position in address order.
func (in *Integration) Export() []model.YieldPosition {
	out := make([]model.YieldPosition, 0, len(in.positions))
	for id := range in.positions {
		out = append(out, in.Position(id))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Asset.Bytes(), out[j].Asset.Bytes()) < 0
	})
	return out
}

// Import replaces every position.
func (in *Integration) Import(positions []model.YieldPosition) {
	in.positions = make(map[common.Address]*model.YieldPosition, len(positions))
	for _, p := range positions {
		in.positions[p.Asset] = &model.YieldPosition{Asset: p.Asset, Source: p.Source, Shares: fixed.Clone(p.Shares)}
	}
}
