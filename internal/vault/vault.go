// Package vault holds basket reserves and pays them out across assets.
//
// Reserves of each asset are split between idle tokens held by the vault
// account and value invested through the yield integration. Idle reserves
// back the circulating pegged token and are the only source of redemptions
// and swaps. Invested reserves back savings shares and only leave through
// Withdraw. Values are compared in 18-decimal units; legs are paid in native
// units.
package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"honestledger/internal/access"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
	"honestledger/internal/token"
)

// Assets is the registry view the vault needs.
type Assets interface {
	Asset(id common.Address) (model.ReserveAsset, error)
	ListAssets() []model.ReserveAsset
	ListActive() []common.Address
}

// Investor is the yield integration view the vault needs.
type Investor interface {
	Invest(ctx context.Context, caller, asset common.Address, amount *big.Int) (*big.Int, error)
	CollectAmount(ctx context.Context, caller, asset common.Address, amount *big.Int) (*big.Int, *big.Int, error)
	BalanceOf(ctx context.Context, asset common.Address) (*big.Int, error)
	TotalValue(ctx context.Context) (*big.Int, error)
}

// Leg is one asset's part of a multi-asset movement. Value is 18-decimal and
// legs of one call sum exactly to the requested value; Amount is the native
// quantity actually moved.
type Leg struct {
	Asset  common.Address
	Amount *big.Int
	Value  *big.Int
}

// AssetBalance is the reserve position of one asset.
type AssetBalance struct {
	Asset    common.Address
	Active   bool
	Decimals uint8
	Idle     *big.Int
	Invested *big.Int
	Value    *big.Int
}

// Vault moves basket reserves on behalf of the asset manager.
type Vault struct {
	assets  Assets
	yield   Investor
	tokens  token.Provider
	access  access.Provider
	account common.Address
	pegged  common.Address
	logger  *zap.Logger
}

// New builds a vault holding reserves at account. Withdrawals mint the
// pegged token.
func New(assets Assets, yield Investor, tokens token.Provider, p access.Provider, account, pegged common.Address, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{
		assets:  assets,
		yield:   yield,
		tokens:  tokens,
		access:  p,
		account: account,
		pegged:  pegged,
		logger:  logger,
	}
}

// Account is the address holding idle reserves.
func (v *Vault) Account() common.Address {
	return v.account
}

// Idle returns the native balance held directly by the vault.
func (v *Vault) Idle(ctx context.Context, asset common.Address) *big.Int {
	return v.tokens.BalanceOf(ctx, asset, v.account)
}

// Holdings returns idle plus invested native units for asset.
func (v *Vault) Holdings(ctx context.Context, asset common.Address) (*big.Int, error) {
	invested, err := v.yield.BalanceOf(ctx, asset)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(v.Idle(ctx, asset), invested), nil
}

func (v *Vault) idleValue(ctx context.Context, id common.Address) (*big.Int, error) {
	asset, err := v.assets.Asset(id)
	if err != nil {
		return nil, err
	}
	return fixed.Normalize(v.Idle(ctx, id), asset.Decimals), nil
}

// Balances reports every registered asset in registry order.
func (v *Vault) Balances(ctx context.Context) ([]AssetBalance, error) {
	list := v.assets.ListAssets()
	out := make([]AssetBalance, 0, len(list))
	for _, a := range list {
		invested, err := v.yield.BalanceOf(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		idle := v.Idle(ctx, a.ID)
		out = append(out, AssetBalance{
			Asset:    a.ID,
			Active:   a.Active,
			Decimals: a.Decimals,
			Idle:     idle,
			Invested: invested,
			Value:    fixed.Normalize(new(big.Int).Add(idle, invested), a.Decimals),
		})
	}
	return out, nil
}

// TotalValue sums idle and invested reserves of every registered asset.
func (v *Vault) TotalValue(ctx context.Context) (*big.Int, error) {
	balances, err := v.Balances(ctx)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, b := range balances {
		total.Add(total, b.Value)
	}
	return total, nil
}

// InvestedValue is the 18-decimal value of every yield position.
func (v *Vault) InvestedValue(ctx context.Context) (*big.Int, error) {
	return v.yield.TotalValue(ctx)
}

// Deposit invests amount of idle reserve value across active assets that
// have a yield integration, weighted by each asset's idle value.
func (v *Vault) Deposit(ctx context.Context, caller common.Address, amount *big.Int) ([]Leg, error) {
	if err := access.Require(ctx, v.access, access.RoleAssetManager, caller); err != nil {
		return nil, err
	}
	if fixed.IsZero(amount) {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "vault deposit: zero amount")
	}

	var (
		ids     []common.Address
		weights []*big.Int
		sum     = new(big.Int)
	)
	for _, id := range v.assets.ListActive() {
		asset, err := v.assets.Asset(id)
		if err != nil {
			return nil, err
		}
		if !asset.HasIntegration() {
			continue
		}
		value, err := v.idleValue(ctx, id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		weights = append(weights, value)
		sum.Add(sum, value)
	}
	if sum.Cmp(amount) < 0 {
		return nil, ledgererrors.New(ledgererrors.CodeInsufficientVaultBalance,
			"vault deposit: requested %s above investable reserves %s", amount, sum)
	}
	legs, err := v.plan(ids, weights, amount)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeInsufficientVaultBalance, err, "vault deposit")
	}

	for i := range legs {
		asset, _ := v.assets.Asset(legs[i].Asset)
		// Rounding up to native units can overshoot idle by one unit on the
		// residual leg.
		legs[i].Amount = fixed.Min(fixed.DenormalizeUp(legs[i].Value, asset.Decimals), v.Idle(ctx, asset.ID))
		if legs[i].Amount.Sign() == 0 {
			continue
		}
		if _, err := v.yield.Invest(ctx, v.account, asset.ID, legs[i].Amount); err != nil {
			return nil, fmtLeg("vault deposit", asset.ID, err)
		}
	}
	v.logger.Info("vault deposit", zap.String("amount", amount.String()), zap.Int("legs", len(legs)))
	return legs, nil
}

// DistributeProportionally pays totalValue to recipient across active assets
// in proportion to each asset's idle value.
func (v *Vault) DistributeProportionally(ctx context.Context, caller, recipient common.Address, totalValue *big.Int) ([]Leg, error) {
	if err := access.Require(ctx, v.access, access.RoleAssetManager, caller); err != nil {
		return nil, err
	}
	if fixed.IsZero(totalValue) {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "distribute: zero value")
	}

	ids := v.assets.ListActive()
	weights := make([]*big.Int, len(ids))
	sum := new(big.Int)
	for i, id := range ids {
		value, err := v.idleValue(ctx, id)
		if err != nil {
			return nil, err
		}
		weights[i] = value
		sum.Add(sum, value)
	}
	if sum.Cmp(totalValue) < 0 {
		return nil, ledgererrors.New(ledgererrors.CodeInsufficientVaultBalance,
			"distribute: requested %s above idle reserve value %s", totalValue, sum)
	}
	legs, err := v.plan(ids, weights, totalValue)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeInsufficientVaultBalance, err, "distribute")
	}

	for i := range legs {
		asset, _ := v.assets.Asset(legs[i].Asset)
		legs[i].Amount = fixed.Denormalize(legs[i].Value, asset.Decimals)
		if err := v.pay(ctx, asset.ID, recipient, legs[i].Amount); err != nil {
			return nil, err
		}
	}
	v.logger.Info("distributed proportionally",
		zap.String("recipient", recipient.Hex()),
		zap.String("value", totalValue.String()),
	)
	return legs, nil
}

// DistributeManually pays exact native amounts per asset from idle reserves.
// It never substitutes one asset for another.
func (v *Vault) DistributeManually(ctx context.Context, caller, recipient common.Address, assets []common.Address, amounts []*big.Int) ([]Leg, error) {
	if err := access.Require(ctx, v.access, access.RoleAssetManager, caller); err != nil {
		return nil, err
	}
	if len(assets) == 0 || len(assets) != len(amounts) {
		return nil, ledgererrors.New(ledgererrors.CodeInvalidArgument,
			"distribute manually: %d assets for %d amounts", len(assets), len(amounts))
	}

	legs := make([]Leg, 0, len(assets))
	requested := make(map[common.Address]*big.Int, len(assets))
	for i, id := range assets {
		asset, err := v.assets.Asset(id)
		if err != nil {
			return nil, err
		}
		amount := fixed.Clone(amounts[i])
		if amount.Sign() < 0 {
			return nil, ledgererrors.New(ledgererrors.CodeInvalidArgument, "distribute manually %s: negative amount", id.Hex())
		}
		sum, ok := requested[id]
		if !ok {
			sum = new(big.Int)
			requested[id] = sum
		}
		sum.Add(sum, amount)
		if idle := v.Idle(ctx, id); idle.Cmp(sum) < 0 {
			return nil, ledgererrors.New(ledgererrors.CodeInsufficientVaultBalance,
				"distribute manually %s: idle %s below %s", id.Hex(), idle, sum)
		}
		legs = append(legs, Leg{Asset: id, Amount: amount, Value: fixed.Normalize(amount, asset.Decimals)})
	}

	for _, leg := range legs {
		if err := v.pay(ctx, leg.Asset, recipient, leg.Amount); err != nil {
			return nil, err
		}
	}
	v.logger.Info("distributed manually", zap.String("recipient", recipient.Hex()), zap.Int("legs", len(legs)))
	return legs, nil
}

// Withdraw collects amount of invested value back to idle, weighted by each
// asset's invested value, and mints amount of the pegged token to recipient.
func (v *Vault) Withdraw(ctx context.Context, caller, recipient common.Address, amount *big.Int) ([]Leg, error) {
	if err := access.Require(ctx, v.access, access.RoleAssetManager, caller); err != nil {
		return nil, err
	}
	if fixed.IsZero(amount) {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "vault withdraw: zero amount")
	}

	list := v.assets.ListAssets()
	ids := make([]common.Address, 0, len(list))
	weights := make([]*big.Int, 0, len(list))
	sum := new(big.Int)
	for _, a := range list {
		invested, err := v.yield.BalanceOf(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		value := fixed.Normalize(invested, a.Decimals)
		ids = append(ids, a.ID)
		weights = append(weights, value)
		sum.Add(sum, value)
	}
	if sum.Cmp(amount) < 0 {
		return nil, ledgererrors.New(ledgererrors.CodeInsufficientVaultBalance,
			"vault withdraw: requested %s above invested value %s", amount, sum)
	}
	legs, err := v.plan(ids, weights, amount)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeInsufficientVaultBalance, err, "vault withdraw")
	}

	for i := range legs {
		asset, _ := v.assets.Asset(legs[i].Asset)
		native := fixed.DenormalizeUp(legs[i].Value, asset.Decimals)
		legs[i].Amount = new(big.Int)
		if native.Sign() == 0 {
			continue
		}
		out, _, err := v.yield.CollectAmount(ctx, v.account, asset.ID, native)
		if err != nil {
			return nil, fmtLeg("vault withdraw", asset.ID, err)
		}
		legs[i].Amount = out
	}
	if err := v.tokens.Mint(ctx, v.pegged, recipient, amount); err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "vault withdraw: mint")
	}
	v.logger.Info("vault withdraw", zap.String("recipient", recipient.Hex()), zap.String("amount", amount.String()))
	return legs, nil
}

// plan splits value across ids, dropping zero-weight assets.
func (v *Vault) plan(ids []common.Address, weights []*big.Int, value *big.Int) ([]Leg, error) {
	parts, err := Split(value, weights)
	if err != nil {
		return nil, err
	}
	legs := make([]Leg, 0, len(ids))
	for i, id := range ids {
		if weights[i] == nil || weights[i].Sign() <= 0 {
			continue
		}
		legs = append(legs, Leg{Asset: id, Value: parts[i]})
	}
	return legs, nil
}

// pay sends amount native units of asset to recipient from idle reserves.
// Invested reserves belong to savings and are never drawn here.
func (v *Vault) pay(ctx context.Context, asset, recipient common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if idle := v.Idle(ctx, asset); idle.Cmp(amount) < 0 {
		return ledgererrors.New(ledgererrors.CodeInsufficientVaultBalance,
			"pay %s: idle %s below %s", asset.Hex(), idle, amount)
	}
	if err := v.tokens.TransferFrom(ctx, asset, v.account, recipient, amount); err != nil {
		return ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "pay %s", asset.Hex())
	}
	return nil
}

func fmtLeg(op string, asset common.Address, err error) error {
	code := ledgererrors.CodeOf(err)
	if code == ledgererrors.CodeUnknown {
		code = ledgererrors.CodeTransferFailed
	}
	return ledgererrors.Wrap(code, err, "%s %s", op, asset.Hex())
}
