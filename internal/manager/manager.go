// Package manager is the user-facing entry point for minting, swapping and
// redeeming the pegged token against the basket.
package manager

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"honestledger/internal/bonus"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fee"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
	"honestledger/internal/savings"
	"honestledger/internal/token"
	"honestledger/internal/vault"
)

// Assets is the registry view used for validation.
type Assets interface {
	Asset(id common.Address) (model.ReserveAsset, error)
}

// PriceSource returns 18-decimal asset prices; zero means no price.
type PriceSource interface {
	Price(ctx context.Context, asset common.Address) (*big.Int, error)
}

// Manager moves value between users, the vault and the fee ledger. It acts
// as account, which must hold the asset manager role.
type Manager struct {
	assets  Assets
	vault   *vault.Vault
	fees    *fee.Ledger
	bonuses *bonus.Pool
	savings *savings.Savings
	prices  PriceSource
	tokens  token.Provider
	account common.Address
	pegged  common.Address
	logger  *zap.Logger
}

// Config groups the collaborators of a Manager.
type Config struct {
	Assets  Assets
	Vault   *vault.Vault
	Fees    *fee.Ledger
	Bonuses *bonus.Pool
	Savings *savings.Savings
	Prices  PriceSource
	Tokens  token.Provider
	Account common.Address
	Pegged  common.Address
	Logger  *zap.Logger
}

// New builds a Manager. A nil price source disables mint bonuses.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		assets:  cfg.Assets,
		vault:   cfg.Vault,
		fees:    cfg.Fees,
		bonuses: cfg.Bonuses,
		savings: cfg.Savings,
		prices:  cfg.Prices,
		tokens:  cfg.Tokens,
		account: cfg.Account,
		pegged:  cfg.Pegged,
		logger:  logger,
	}
}

func (m *Manager) activeAsset(id common.Address) (model.ReserveAsset, error) {
	asset, err := m.assets.Asset(id)
	if err != nil {
		return model.ReserveAsset{}, err
	}
	if !asset.Active {
		return model.ReserveAsset{}, ledgererrors.New(ledgererrors.CodeInvalidArgument, "asset %s is inactive", id.Hex())
	}
	return asset, nil
}

// Mint takes basket assets from account into the vault and mints the pegged
// token 1:1 in 18-decimal units. Under-peg assets earn a bonus.
func (m *Manager) Mint(ctx context.Context, account common.Address, assets []common.Address, amounts []*big.Int) (*big.Int, error) {
	if len(assets) == 0 || len(assets) != len(amounts) {
		return nil, ledgererrors.New(ledgererrors.CodeInvalidArgument, "mint: %d assets for %d amounts", len(assets), len(amounts))
	}
	minted := new(big.Int)
	prices := make([]*big.Int, len(assets))
	for i, id := range assets {
		asset, err := m.activeAsset(id)
		if err != nil {
			return nil, err
		}
		if fixed.IsZero(amounts[i]) || amounts[i].Sign() < 0 {
			return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "mint %s: zero amount", id.Hex())
		}
		if err := m.tokens.TransferFrom(ctx, id, account, m.vault.Account(), amounts[i]); err != nil {
			return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "mint %s", id.Hex())
		}
		minted.Add(minted, fixed.Normalize(amounts[i], asset.Decimals))

		prices[i] = new(big.Int)
		if m.prices != nil {
			p, err := m.prices.Price(ctx, id)
			if err != nil {
				return nil, ledgererrors.Wrap(ledgererrors.CodePriceUnavailable, err, "mint %s", id.Hex())
			}
			prices[i] = p
		}
	}

	if err := m.tokens.Mint(ctx, m.pegged, account, minted); err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "mint pegged")
	}

	reward, err := m.bonuses.CalculateBonuses(assets, amounts, prices)
	if err != nil {
		return nil, err
	}
	if reward.Sign() > 0 {
		sharePrice, err := m.savings.SharePrice(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.bonuses.AddBonus(ctx, m.account, account, reward, sharePrice); err != nil {
			return nil, err
		}
	}
	m.logger.Info("minted",
		zap.String("account", account.Hex()),
		zap.String("amount", minted.String()),
		zap.String("bonus", reward.String()),
	)
	return minted, nil
}

// Swap exchanges amount of from for the same 18-decimal value of to. The
// swap fee is charged on top in the input asset.
func (m *Manager) Swap(ctx context.Context, account, from, to common.Address, amount *big.Int) (out, charged *big.Int, err error) {
	if from == to {
		return nil, nil, ledgererrors.New(ledgererrors.CodeInvalidArgument, "swap: same asset %s", from.Hex())
	}
	if fixed.IsZero(amount) || amount.Sign() < 0 {
		return nil, nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "swap: zero amount")
	}
	in, err := m.activeAsset(from)
	if err != nil {
		return nil, nil, err
	}
	target, err := m.assets.Asset(to)
	if err != nil {
		return nil, nil, err
	}

	value := fixed.Normalize(amount, in.Decimals)
	out = fixed.Denormalize(value, target.Decimals)
	if out.Sign() == 0 {
		return nil, nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "swap: %s %s is below one unit of %s", amount, from.Hex(), to.Hex())
	}
	charged = m.fees.SwapFee(amount)

	pull := new(big.Int).Add(amount, charged)
	if err := m.tokens.TransferFrom(ctx, from, account, m.vault.Account(), pull); err != nil {
		return nil, nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "swap %s", from.Hex())
	}
	if _, err := m.vault.DistributeManually(ctx, m.account, account, []common.Address{to}, []*big.Int{out}); err != nil {
		return nil, nil, err
	}
	if err := m.collectFee(ctx, fixed.Normalize(charged, in.Decimals)); err != nil {
		return nil, nil, err
	}
	m.logger.Info("swapped",
		zap.String("account", account.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee", charged.String()),
	)
	return out, charged, nil
}

// RedeemProportionally burns amount of the pegged token and pays the amount
// net of the redeem fee across the basket.
func (m *Manager) RedeemProportionally(ctx context.Context, account common.Address, amount *big.Int) ([]vault.Leg, *big.Int, error) {
	if fixed.IsZero(amount) || amount.Sign() < 0 {
		return nil, nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "redeem: zero amount")
	}
	charged := m.fees.RedeemFee(amount)
	payout := new(big.Int).Sub(amount, charged)
	if payout.Sign() <= 0 {
		return nil, nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "redeem: %s does not cover the fee", amount)
	}
	if err := m.tokens.Burn(ctx, m.pegged, account, amount); err != nil {
		return nil, nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "redeem")
	}
	legs, err := m.vault.DistributeProportionally(ctx, m.account, account, payout)
	if err != nil {
		return nil, nil, err
	}
	if err := m.collectFee(ctx, charged); err != nil {
		return nil, nil, err
	}
	m.logger.Info("redeemed",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee", charged.String()),
	)
	return legs, charged, nil
}

// RedeemManually pays the exact native amounts requested and burns their
// 18-decimal value plus the redeem fee.
func (m *Manager) RedeemManually(ctx context.Context, account common.Address, assets []common.Address, amounts []*big.Int) ([]vault.Leg, *big.Int, error) {
	if len(assets) == 0 || len(assets) != len(amounts) {
		return nil, nil, ledgererrors.New(ledgererrors.CodeInvalidArgument, "redeem: %d assets for %d amounts", len(assets), len(amounts))
	}
	value := new(big.Int)
	for i, id := range assets {
		asset, err := m.assets.Asset(id)
		if err != nil {
			return nil, nil, err
		}
		value.Add(value, fixed.Normalize(amounts[i], asset.Decimals))
	}
	if value.Sign() == 0 {
		return nil, nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "redeem: zero amount")
	}
	charged := m.fees.RedeemFee(value)
	if err := m.tokens.Burn(ctx, m.pegged, account, new(big.Int).Add(value, charged)); err != nil {
		return nil, nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "redeem")
	}
	legs, err := m.vault.DistributeManually(ctx, m.account, account, assets, amounts)
	if err != nil {
		return nil, nil, err
	}
	if err := m.collectFee(ctx, charged); err != nil {
		return nil, nil, err
	}
	return legs, charged, nil
}

// Deposit moves pegged tokens into savings.
func (m *Manager) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	return m.savings.Deposit(ctx, account, amount)
}

// Withdraw redeems savings shares for pegged tokens.
func (m *Manager) Withdraw(ctx context.Context, account common.Address, shares *big.Int) (*big.Int, error) {
	return m.savings.Withdraw(ctx, account, shares)
}

// collectFee mints the pegged fee against reserves already in the vault and
// books it as revenue.
func (m *Manager) collectFee(ctx context.Context, value *big.Int) error {
	if fixed.IsZero(value) {
		return nil
	}
	if err := m.tokens.Mint(ctx, m.pegged, m.fees.Account(), value); err != nil {
		return ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "collect fee")
	}
	return m.fees.RecordFee(ctx, m.account, value)
}
