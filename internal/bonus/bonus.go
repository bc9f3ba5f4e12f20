// Package bonus credits depositors of under-peg assets.
package bonus

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

// AssetLookup resolves native decimals of basket assets.
type AssetLookup interface {
	Asset(id common.Address) (model.ReserveAsset, error)
}

type entry struct {
	bonus *big.Int
	share *big.Int
}

// Pool tracks bonus balances and their inverse-price weighted shares.
type Pool struct {
	assets AssetLookup
	access access.Provider
	tokens token.Provider
	pegged common.Address
	logger *zap.Logger

	total    *big.Int
	accounts map[common.Address]*entry
}

// New returns an empty pool. Rewards are paid by minting the pegged token.
func New(assets AssetLookup, p access.Provider, tokens token.Provider, pegged common.Address, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		assets:   assets,
		access:   p,
		tokens:   tokens,
		pegged:   pegged,
		logger:   logger,
		total:    new(big.Int),
		accounts: make(map[common.Address]*entry),
	}
}

// CalculateBonus returns quantity*(1-price) in 18-decimal pegged units. It is
// zero at or above peg and when price is zero.
func (p *Pool) CalculateBonus(asset common.Address, quantity, price *big.Int) (*big.Int, error) {
	a, err := p.assets.Asset(asset)
	if err != nil {
		return nil, err
	}
	if fixed.IsZero(price) || price.Cmp(fixed.One) >= 0 || fixed.IsZero(quantity) {
		return new(big.Int), nil
	}
	discount := new(big.Int).Sub(fixed.One, price)
	return fixed.MulDiv(fixed.Normalize(quantity, a.Decimals), discount, fixed.One), nil
}

// CalculateBonuses sums CalculateBonus over parallel slices.
func (p *Pool) CalculateBonuses(assets []common.Address, quantities, prices []*big.Int) (*big.Int, error) {
	if len(assets) != len(quantities) || len(assets) != len(prices) {
		return nil, ledgererrors.New(ledgererrors.CodeInvalidArgument,
			"calculate bonuses: %d assets, %d quantities, %d prices", len(assets), len(quantities), len(prices))
	}
	sum := new(big.Int)
	for i, asset := range assets {
		b, err := p.CalculateBonus(asset, quantities[i], prices[i])
		if err != nil {
			return nil, err
		}
		sum.Add(sum, b)
	}
	return sum, nil
}

// CalculateBonusesAtPrice prices every quantity at one shared price.
func (p *Pool) CalculateBonusesAtPrice(assets []common.Address, quantities []*big.Int, price *big.Int) (*big.Int, error) {
	prices := make([]*big.Int, len(assets))
	for i := range prices {
		prices[i] = price
	}
	return p.CalculateBonuses(assets, quantities, prices)
}

// AddBonus credits amount to account and amount/price to its share. A zero
// price carries no signal and leaves the account untouched.
func (p *Pool) AddBonus(ctx context.Context, caller, account common.Address, amount, price *big.Int) error {
	if err := access.Require(ctx, p.access, access.RoleAssetManager, caller); err != nil {
		return err
	}
	if fixed.IsZero(price) || fixed.IsZero(amount) {
		return nil
	}
	e, ok := p.accounts[account]
	if !ok {
		e = &entry{bonus: new(big.Int), share: new(big.Int)}
		p.accounts[account] = e
	}
	e.bonus.Add(e.bonus, amount)
	e.share.Add(e.share, fixed.MulDiv(amount, fixed.One, price))
	p.total.Add(p.total, amount)
	p.logger.Debug("bonus added",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
		zap.String("price", price.String()),
	)
	return nil
}

// Reward pays min(bonus, share*price) to account and closes its position.
func (p *Pool) Reward(ctx context.Context, caller, account common.Address, price *big.Int) (*big.Int, error) {
	if err := access.Require(ctx, p.access, access.RoleSavings, caller); err != nil {
		return nil, err
	}
	e, ok := p.accounts[account]
	if !ok || e.bonus.Sign() == 0 || fixed.IsZero(price) {
		return new(big.Int), nil
	}
	paid := fixed.Min(e.bonus, fixed.MulDiv(e.share, price, fixed.One))
	if paid.Sign() > 0 {
		if err := p.tokens.Mint(ctx, p.pegged, account, paid); err != nil {
			return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "reward %s", account.Hex())
		}
	}
	p.total.Sub(p.total, e.bonus)
	delete(p.accounts, account)
	p.logger.Info("bonus rewarded", zap.String("account", account.Hex()), zap.String("paid", paid.String()))
	return paid, nil
}

// BonusOf returns the bonus and share balances of account.
func (p *Pool) BonusOf(account common.Address) (bonus, share *big.Int) {
	e, ok := p.accounts[account]
	if !ok {
		return new(big.Int), new(big.Int)
	}
	return fixed.Clone(e.bonus), fixed.Clone(e.share)
}

// Total is the outstanding bonus across accounts.
func (p *Pool) Total() *big.Int {
	return fixed.Clone(p.total)
}

// Export copies the pool in account order.
func (p *Pool) Export() model.BonusPool {
	out := model.BonusPool{Total: fixed.Clone(p.total), Accounts: make([]model.BonusAccount, 0, len(p.accounts))}
	for account, e := range p.accounts {
		out.Accounts = append(out.Accounts, model.BonusAccount{
			Account: account,
			Bonus:   fixed.Clone(e.bonus),
			Share:   fixed.Clone(e.share),
		})
	}
	sort.Slice(out.Accounts, func(i, j int) bool {
		return bytes.Compare(out.Accounts[i].Account.Bytes(), out.Accounts[j].Account.Bytes()) < 0
	})
	return out
}

// Import replaces the pool.
func (p *Pool) Import(s model.BonusPool) {
	p.total = fixed.Clone(s.Total)
	p.accounts = make(map[common.Address]*entry, len(s.Accounts))
	for _, a := range s.Accounts {
		p.accounts[a.Account] = &entry{bonus: fixed.Clone(a.Bonus), share: fixed.Clone(a.Share)}
	}
}
