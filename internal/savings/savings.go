// Package savings runs the share-price savings pool on top of the vault.
//
// Pool value is the vault's invested reserves plus claimable fee rewards.
// Shares are issued and redeemed against that value, rounding down so the
// pool never pays out more than it holds.
package savings

import (
	"bytes"
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
	"honestledger/internal/token"
	"honestledger/internal/vault"
)

// Vault is the reserve side of the pool.
type Vault interface {
	Deposit(ctx context.Context, caller common.Address, amount *big.Int) ([]vault.Leg, error)
	Withdraw(ctx context.Context, caller, recipient common.Address, amount *big.Int) ([]vault.Leg, error)
	InvestedValue(ctx context.Context) (*big.Int, error)
}

// Fees is the fee ledger view the pool needs.
type Fees interface {
	Claimable() *big.Int
	DistributeClaimableRewards(ctx context.Context, caller, recipient common.Address, amount *big.Int) error
}

// Bonuses settles an account's bonus when it leaves the pool.
type Bonuses interface {
	Reward(ctx context.Context, caller, account common.Address, price *big.Int) (*big.Int, error)
}

// Option customises a Savings pool.
type Option func(*Savings)

// WithClock replaces time.Now for history points.
func WithClock(now func() time.Time) Option {
	return func(s *Savings) {
		s.now = now
	}
}

// Savings is the share-price pool.
type Savings struct {
	vault   Vault
	fees    Fees
	bonuses Bonuses
	tokens  token.Provider
	account common.Address
	pegged  common.Address
	logger  *zap.Logger
	now     func() time.Time

	totalShares    *big.Int
	totalDeposited *big.Int
	shares         map[common.Address]*big.Int
	history        []model.ValuePoint
}

// New builds an empty pool acting as account towards the vault and fee ledger.
func New(v Vault, fees Fees, bonuses Bonuses, tokens token.Provider, account, pegged common.Address, logger *zap.Logger, opts ...Option) *Savings {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Savings{
		vault:          v,
		fees:           fees,
		bonuses:        bonuses,
		tokens:         tokens,
		account:        account,
		pegged:         pegged,
		logger:         logger,
		now:            time.Now,
		totalShares:    new(big.Int),
		totalDeposited: new(big.Int),
		shares:         make(map[common.Address]*big.Int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TotalValue is invested vault value plus claimable fee rewards.
func (s *Savings) TotalValue(ctx context.Context) (*big.Int, error) {
	invested, err := s.vault.InvestedValue(ctx)
	if err != nil {
		return nil, err
	}
	return invested.Add(invested, s.fees.Claimable()), nil
}

// SharePrice is totalValue*1e18/totalShares, or 1e18 for an empty pool.
func (s *Savings) SharePrice(ctx context.Context) (*big.Int, error) {
	if s.totalShares.Sign() == 0 {
		return fixed.Clone(fixed.One), nil
	}
	value, err := s.TotalValue(ctx)
	if err != nil {
		return nil, err
	}
	return fixed.MulDiv(value, fixed.One, s.totalShares), nil
}

// Deposit burns amount pegged tokens from account, invests the matching
// reserves and credits shares.
func (s *Savings) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	if fixed.IsZero(amount) {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "savings deposit: zero amount")
	}
	value, err := s.TotalValue(ctx)
	if err != nil {
		return nil, err
	}

	issued := fixed.Clone(amount)
	if s.totalShares.Sign() > 0 {
		if value.Sign() == 0 {
			return nil, ledgererrors.New(ledgererrors.CodeInsufficientVaultBalance, "savings deposit: pool has shares but no value")
		}
		issued = fixed.MulDiv(amount, s.totalShares, value)
	}
	if issued.Sign() == 0 {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "savings deposit: %s buys no shares", amount)
	}

	if err := s.tokens.Burn(ctx, s.pegged, account, amount); err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "savings deposit")
	}
	if _, err := s.vault.Deposit(ctx, s.account, amount); err != nil {
		return nil, err
	}

	s.credit(account, issued)
	s.totalShares.Add(s.totalShares, issued)
	s.totalDeposited.Add(s.totalDeposited, amount)
	s.record(new(big.Int).Add(value, amount))
	s.logger.Info("savings deposit",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
		zap.String("shares", issued.String()),
	)
	return issued, nil
}

// Withdraw burns shares and pays their value to account in pegged tokens. An
// account leaving the pool entirely also has its bonus settled.
func (s *Savings) Withdraw(ctx context.Context, account common.Address, shares *big.Int) (*big.Int, error) {
	if fixed.IsZero(shares) {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "savings withdraw: zero shares")
	}
	held := s.SharesOf(account)
	if held.Cmp(shares) < 0 {
		return nil, ledgererrors.New(ledgererrors.CodeInsufficientShares, "savings withdraw: %s above held %s", shares, held)
	}
	value, err := s.TotalValue(ctx)
	if err != nil {
		return nil, err
	}
	price := fixed.MulDiv(value, fixed.One, s.totalShares)
	amount := fixed.MulDiv(shares, value, s.totalShares)
	if amount.Sign() == 0 {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "savings withdraw: %s shares are worth nothing", shares)
	}

	fromFees := fixed.MulDiv(amount, s.fees.Claimable(), value)
	fromVault := new(big.Int).Sub(amount, fromFees)
	if fromFees.Sign() > 0 {
		if err := s.fees.DistributeClaimableRewards(ctx, s.account, account, fromFees); err != nil {
			return nil, err
		}
	}
	if fromVault.Sign() > 0 {
		if _, err := s.vault.Withdraw(ctx, s.account, account, fromVault); err != nil {
			return nil, err
		}
	}

	principal := fixed.MulDiv(s.totalDeposited, shares, s.totalShares)
	s.totalDeposited.Sub(s.totalDeposited, principal)
	s.totalShares.Sub(s.totalShares, shares)
	remaining := new(big.Int).Sub(held, shares)
	if remaining.Sign() == 0 {
		delete(s.shares, account)
		if _, err := s.bonuses.Reward(ctx, s.account, account, price); err != nil {
			return nil, err
		}
	} else {
		s.shares[account] = remaining
	}
	s.record(new(big.Int).Sub(value, amount))
	s.logger.Info("savings withdraw",
		zap.String("account", account.Hex()),
		zap.String("shares", shares.String()),
		zap.String("amount", amount.String()),
	)
	return amount, nil
}

// APY is the annualised yield since the oldest retained history point, as an
// 18-decimal fraction. It is informational only.
func (s *Savings) APY(ctx context.Context) (*big.Int, error) {
	if len(s.history) == 0 {
		return new(big.Int), nil
	}
	value, err := s.TotalValue(ctx)
	if err != nil {
		return nil, err
	}
	return computeAPY(s.history[0], value, s.totalDeposited, s.now()), nil
}

// SharesOf returns the share balance of account.
func (s *Savings) SharesOf(account common.Address) *big.Int {
	return fixed.Clone(s.shares[account])
}

// SavingsOf returns the current pegged value of account's shares.
func (s *Savings) SavingsOf(ctx context.Context, account common.Address) (*big.Int, error) {
	if s.totalShares.Sign() == 0 {
		return new(big.Int), nil
	}
	value, err := s.TotalValue(ctx)
	if err != nil {
		return nil, err
	}
	return fixed.MulDiv(s.SharesOf(account), value, s.totalShares), nil
}

func (s *Savings) TotalShares() *big.Int    { return fixed.Clone(s.totalShares) }
func (s *Savings) TotalDeposited() *big.Int { return fixed.Clone(s.totalDeposited) }

func (s *Savings) credit(account common.Address, shares *big.Int) {
	bal, ok := s.shares[account]
	if !ok {
		bal = new(big.Int)
		s.shares[account] = bal
	}
	bal.Add(bal, shares)
}

func (s *Savings) record(value *big.Int) {
	s.history = appendPoint(s.history, model.ValuePoint{
		At:             s.now().UTC(),
		TotalValue:     value,
		TotalDeposited: fixed.Clone(s.totalDeposited),
	})
}

// Export copies the pool in account order.
func (s *Savings) Export() model.SavingsState {
	out := model.SavingsState{
		TotalShares:    fixed.Clone(s.totalShares),
		TotalDeposited: fixed.Clone(s.totalDeposited),
		Accounts:       make([]model.SavingsAccount, 0, len(s.shares)),
		History:        make([]model.ValuePoint, len(s.history)),
	}
	for account, shares := range s.shares {
		out.Accounts = append(out.Accounts, model.SavingsAccount{Account: account, Shares: fixed.Clone(shares)})
	}
	sort.Slice(out.Accounts, func(i, j int) bool {
		return bytes.Compare(out.Accounts[i].Account.Bytes(), out.Accounts[j].Account.Bytes()) < 0
	})
	for i, p := range s.history {
		out.History[i] = model.ValuePoint{At: p.At, TotalValue: fixed.Clone(p.TotalValue), TotalDeposited: fixed.Clone(p.TotalDeposited)}
	}
	return out
}

// Import replaces the pool.
func (s *Savings) Import(state model.SavingsState) {
	s.totalShares = fixed.Clone(state.TotalShares)
	s.totalDeposited = fixed.Clone(state.TotalDeposited)
	s.shares = make(map[common.Address]*big.Int, len(state.Accounts))
	for _, a := range state.Accounts {
		s.shares[a.Account] = fixed.Clone(a.Shares)
	}
	s.history = make([]model.ValuePoint, len(state.History))
	for i, p := range state.History {
		s.history[i] = model.ValuePoint{At: p.At, TotalValue: fixed.Clone(p.TotalValue), TotalDeposited: fixed.Clone(p.TotalDeposited)}
	}
}
