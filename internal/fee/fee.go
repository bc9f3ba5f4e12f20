// Package fee tracks swap and redeem fee revenue.
package fee

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

var (
	// DefaultClaimableRatio sends 80% of every fee to claimable rewards.
	DefaultClaimableRatio = new(big.Int).Div(new(big.Int).Mul(fixed.One, big.NewInt(8)), big.NewInt(10))
	// DefaultRate is a 1% fee.
	DefaultRate = new(big.Int).Div(fixed.One, big.NewInt(100))
)

// Ledger holds fee revenue as pegged tokens at its account and splits it into
// claimable and reserved balances when it lands.
type Ledger struct {
	access  access.Provider
	tokens  token.Provider
	account common.Address
	pegged  common.Address
	logger  *zap.Logger

	totalFee       *big.Int
	claimable      *big.Int
	reserved       *big.Int
	claimableRatio *big.Int
	swapRate       *big.Int
	redeemRate     *big.Int
}

// New returns an empty ledger with default ratio and rates.
func New(p access.Provider, tokens token.Provider, account, pegged common.Address, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		access:         p,
		tokens:         tokens,
		account:        account,
		pegged:         pegged,
		logger:         logger,
		totalFee:       new(big.Int),
		claimable:      new(big.Int),
		reserved:       new(big.Int),
		claimableRatio: fixed.Clone(DefaultClaimableRatio),
		swapRate:       fixed.Clone(DefaultRate),
		redeemRate:     fixed.Clone(DefaultRate),
	}
}

// Account is the address holding fee revenue.
func (l *Ledger) Account() common.Address {
	return l.account
}

// RecordFee books amount of pegged fee revenue already sent to the fee account.
func (l *Ledger) RecordFee(ctx context.Context, caller common.Address, amount *big.Int) error {
	if err := access.Require(ctx, l.access, access.RoleAssetManager, caller); err != nil {
		return err
	}
	if fixed.IsZero(amount) {
		return ledgererrors.New(ledgererrors.CodeZeroAmount, "record fee: zero amount")
	}
	claimable := fixed.MulDiv(amount, l.claimableRatio, fixed.One)
	reserved := new(big.Int).Sub(amount, claimable)

	l.totalFee.Add(l.totalFee, amount)
	l.claimable.Add(l.claimable, claimable)
	l.reserved.Add(l.reserved, reserved)
	l.logger.Debug("fee recorded",
		zap.String("amount", amount.String()),
		zap.String("claimable", claimable.String()),
		zap.String("reserved", reserved.String()),
	)
	return nil
}

// DistributeClaimableRewards pays amount of claimable revenue to recipient.
func (l *Ledger) DistributeClaimableRewards(ctx context.Context, caller, recipient common.Address, amount *big.Int) error {
	if err := access.Require(ctx, l.access, access.RoleSavings, caller); err != nil {
		return err
	}
	if fixed.IsZero(amount) {
		return ledgererrors.New(ledgererrors.CodeZeroAmount, "distribute claimable: zero amount")
	}
	if amount.Cmp(l.claimable) > 0 {
		return ledgererrors.New(ledgererrors.CodeInsufficientClaimable,
			"distribute claimable: %s above %s", amount, l.claimable)
	}
	if err := l.tokens.TransferFrom(ctx, l.pegged, l.account, recipient, amount); err != nil {
		return ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "distribute claimable")
	}
	l.claimable.Sub(l.claimable, amount)
	return nil
}

// DistributeReservedRewards pays the whole reserved balance to recipient.
func (l *Ledger) DistributeReservedRewards(ctx context.Context, caller, recipient common.Address) (*big.Int, error) {
	if err := access.Require(ctx, l.access, access.RoleGovernor, caller); err != nil {
		return nil, err
	}
	paid := fixed.Clone(l.reserved)
	if paid.Sign() == 0 {
		return paid, nil
	}
	if err := l.tokens.TransferFrom(ctx, l.pegged, l.account, recipient, paid); err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.CodeTransferFailed, err, "distribute reserved")
	}
	l.reserved.SetInt64(0)
	l.logger.Info("reserved rewards distributed", zap.String("recipient", recipient.Hex()), zap.String("amount", paid.String()))
	return paid, nil
}

// SetFeeRates replaces the swap and redeem rates. Rates are fractions of one.
func (l *Ledger) SetFeeRates(ctx context.Context, caller common.Address, swap, redeem *big.Int) error {
	if err := access.Require(ctx, l.access, access.RoleGovernor, caller); err != nil {
		return err
	}
	for _, r := range []*big.Int{swap, redeem} {
		if r == nil || r.Sign() < 0 || r.Cmp(fixed.One) >= 0 {
			return ledgererrors.New(ledgererrors.CodeInvalidArgument, "set fee rates: rate %v out of range", r)
		}
	}
	l.swapRate = fixed.Clone(swap)
	l.redeemRate = fixed.Clone(redeem)
	return nil
}

// SetClaimableRatio changes the split applied to future fees.
func (l *Ledger) SetClaimableRatio(ctx context.Context, caller common.Address, ratio *big.Int) error {
	if err := access.Require(ctx, l.access, access.RoleGovernor, caller); err != nil {
		return err
	}
	if ratio == nil || ratio.Sign() < 0 || ratio.Cmp(fixed.One) > 0 {
		return ledgererrors.New(ledgererrors.CodeInvalidArgument, "set claimable ratio: %v out of range", ratio)
	}
	l.claimableRatio = fixed.Clone(ratio)
	return nil
}

// Rates returns the swap and redeem rates.
func (l *Ledger) Rates() (swap, redeem *big.Int) {
	return fixed.Clone(l.swapRate), fixed.Clone(l.redeemRate)
}

// SwapFee is the fee charged on top of a swap of amount, rounded up.
func (l *Ledger) SwapFee(amount *big.Int) *big.Int {
	return fixed.MulDivUp(amount, l.swapRate, fixed.One)
}

// RedeemFee is the fee withheld from a redemption of amount, rounded up.
func (l *Ledger) RedeemFee(amount *big.Int) *big.Int {
	return fixed.MulDivUp(amount, l.redeemRate, fixed.One)
}

func (l *Ledger) TotalFee() *big.Int  { return fixed.Clone(l.totalFee) }
func (l *Ledger) Claimable() *big.Int { return fixed.Clone(l.claimable) }
func (l *Ledger) Reserved() *big.Int  { return fixed.Clone(l.reserved) }

// Export copies the ledger.
func (l *Ledger) Export() model.FeeLedger {
	return model.FeeLedger{
		TotalFee:       fixed.Clone(l.totalFee),
		Claimable:      fixed.Clone(l.claimable),
		Reserved:       fixed.Clone(l.reserved),
		ClaimableRatio: fixed.Clone(l.claimableRatio),
		SwapFeeRate:    fixed.Clone(l.swapRate),
		RedeemFeeRate:  fixed.Clone(l.redeemRate),
	}
}

// Import replaces the ledger. Missing ratio or rates fall back to defaults.
func (l *Ledger) Import(s model.FeeLedger) {
	l.totalFee = fixed.Clone(s.TotalFee)
	l.claimable = fixed.Clone(s.Claimable)
	l.reserved = fixed.Clone(s.Reserved)
	l.claimableRatio = orDefault(s.ClaimableRatio, DefaultClaimableRatio)
	l.swapRate = orDefault(s.SwapFeeRate, DefaultRate)
	l.redeemRate = orDefault(s.RedeemFeeRate, DefaultRate)
}

func orDefault(v, def *big.Int) *big.Int {
	if v == nil {
		return fixed.Clone(def)
	}
	return fixed.Clone(v)
}
