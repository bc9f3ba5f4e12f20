package engine

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"honestledger/internal/access"
	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
	"honestledger/internal/vault"
)

// Status is a read-only summary of the ledger.
type Status struct {
	Version        uint64
	Assets         []vault.AssetBalance
	ReserveValue   *big.Int
	InvestedValue  *big.Int
	SavingsValue   *big.Int
	SharePrice     *big.Int
	APY            *big.Int
	TotalShares    *big.Int
	TotalDeposited *big.Int
	TotalFee       *big.Int
	Claimable      *big.Int
	Reserved       *big.Int
	SwapFeeRate    *big.Int
	RedeemFeeRate  *big.Int
	BonusTotal     *big.Int
	PeggedSupply   *big.Int
}

// Status collects balances and totals under the lock.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.View(ctx, func(ctx context.Context, l *Ledger) error {
		var err error
		st.Version = e.version
		if st.Assets, err = l.Vault.Balances(ctx); err != nil {
			return err
		}
		if st.ReserveValue, err = l.Vault.TotalValue(ctx); err != nil {
			return err
		}
		if st.InvestedValue, err = l.Vault.InvestedValue(ctx); err != nil {
			return err
		}
		if st.SavingsValue, err = l.Savings.TotalValue(ctx); err != nil {
			return err
		}
		if st.SharePrice, err = l.Savings.SharePrice(ctx); err != nil {
			return err
		}
		if st.APY, err = l.Savings.APY(ctx); err != nil {
			return err
		}
		st.TotalShares = l.Savings.TotalShares()
		st.TotalDeposited = l.Savings.TotalDeposited()
		st.TotalFee = l.Fees.TotalFee()
		st.Claimable = l.Fees.Claimable()
		st.Reserved = l.Fees.Reserved()
		st.SwapFeeRate, st.RedeemFeeRate = l.Fees.Rates()
		st.BonusTotal = l.Bonus.Total()
		st.PeggedSupply = peggedSupply(l.Tokens.Export(), e.acc.Pegged)
		return nil
	})
	return st, err
}

func peggedSupply(balances []model.TokenBalance, pegged common.Address) *big.Int {
	total := new(big.Int)
	for _, b := range balances {
		if b.Token == pegged {
			total.Add(total, b.Amount)
		}
	}
	return total
}

// BalanceOf returns an account's balance of token.
func (e *Engine) BalanceOf(ctx context.Context, tok, account common.Address) *big.Int {
	var out *big.Int
	_ = e.View(ctx, func(ctx context.Context, l *Ledger) error {
		out = l.Tokens.BalanceOf(ctx, tok, account)
		return nil
	})
	return out
}

// SavingsOf returns an account's shares and their pegged value.
func (e *Engine) SavingsOf(ctx context.Context, account common.Address) (shares, value *big.Int, err error) {
	err = e.View(ctx, func(ctx context.Context, l *Ledger) error {
		shares = l.Savings.SharesOf(account)
		value, err = l.Savings.SavingsOf(ctx, account)
		return err
	})
	return shares, value, err
}

// AddAsset registers a basket asset.
func (e *Engine) AddAsset(ctx context.Context, caller common.Address, asset model.ReserveAsset) error {
	args := map[string]string{
		"asset":       asset.ID.Hex(),
		"decimals":    strconv.Itoa(int(asset.Decimals)),
		"integration": asset.Integration.Hex(),
	}
	return e.Do(ctx, "registry.add", caller, args, func(ctx context.Context, l *Ledger) (Result, error) {
		return nil, l.Registry.AddAsset(ctx, caller, asset)
	})
}

// SetAssetActive activates or deactivates an asset.
func (e *Engine) SetAssetActive(ctx context.Context, caller, id common.Address, active bool) error {
	op := "registry.deactivate"
	if active {
		op = "registry.activate"
	}
	return e.Do(ctx, op, caller, map[string]string{"asset": id.Hex()}, func(ctx context.Context, l *Ledger) (Result, error) {
		if active {
			return nil, l.Registry.Activate(ctx, caller, id)
		}
		return nil, l.Registry.Deactivate(ctx, caller, id)
	})
}

// SetIntegration maps an asset to a yield source.
func (e *Engine) SetIntegration(ctx context.Context, caller, id, integration common.Address) error {
	args := map[string]string{"asset": id.Hex(), "integration": integration.Hex()}
	return e.Do(ctx, "registry.set_integration", caller, args, func(ctx context.Context, l *Ledger) (Result, error) {
		return nil, l.Registry.SetIntegration(ctx, caller, id, integration)
	})
}

// RemoveAsset unregisters an asset the vault no longer holds.
func (e *Engine) RemoveAsset(ctx context.Context, caller, id common.Address) error {
	return e.Do(ctx, "registry.remove", caller, map[string]string{"asset": id.Hex()}, func(ctx context.Context, l *Ledger) (Result, error) {
		return nil, l.Registry.Remove(ctx, caller, id)
	})
}

// Faucet credits test balances of a basket asset. Governor only.
func (e *Engine) Faucet(ctx context.Context, caller, tok, account common.Address, amount *big.Int) error {
	args := map[string]string{"token": tok.Hex(), "account": account.Hex(), "amount": amount.String()}
	return e.Do(ctx, "token.faucet", caller, args, func(ctx context.Context, l *Ledger) (Result, error) {
		if err := e.requireGovernor(ctx, caller); err != nil {
			return nil, err
		}
		if tok == e.acc.Pegged {
			return nil, ledgererrors.New(ledgererrors.CodeInvalidArgument, "faucet: pegged token is minted against reserves only")
		}
		if fixed.IsZero(amount) || amount.Sign() < 0 {
			return nil, ledgererrors.ErrZeroAmount
		}
		return nil, l.Tokens.Mint(ctx, tok, account, amount)
	})
}

// Accrue credits yield to an asset's simulated source. Governor only.
func (e *Engine) Accrue(ctx context.Context, caller, asset common.Address, amount *big.Int) error {
	args := map[string]string{"asset": asset.Hex(), "amount": amount.String()}
	return e.Do(ctx, "source.accrue", caller, args, func(ctx context.Context, l *Ledger) (Result, error) {
		if err := e.requireGovernor(ctx, caller); err != nil {
			return nil, err
		}
		return nil, l.Source.Accrue(ctx, asset, amount)
	})
}

func (e *Engine) requireGovernor(ctx context.Context, caller common.Address) error {
	return access.Require(ctx, e.access, access.RoleGovernor, caller)
}

// Mint converts basket assets into the pegged token.
func (e *Engine) Mint(ctx context.Context, account common.Address, assets []common.Address, amounts []*big.Int) (*big.Int, error) {
	var minted *big.Int
	args := map[string]string{"assets": joinAddresses(assets), "amounts": joinAmounts(amounts)}
	err := e.Do(ctx, "manager.mint", account, args, func(ctx context.Context, l *Ledger) (Result, error) {
		var err error
		minted, err = l.Manager.Mint(ctx, account, assets, amounts)
		if err != nil {
			return nil, err
		}
		return Result{"minted": minted.String()}, nil
	})
	return minted, err
}

// Swap exchanges one basket asset for another.
func (e *Engine) Swap(ctx context.Context, account, from, to common.Address, amount *big.Int) (out, charged *big.Int, err error) {
	args := map[string]string{"from": from.Hex(), "to": to.Hex(), "amount": amount.String()}
	err = e.Do(ctx, "manager.swap", account, args, func(ctx context.Context, l *Ledger) (Result, error) {
		var err error
		out, charged, err = l.Manager.Swap(ctx, account, from, to, amount)
		if err != nil {
			return nil, err
		}
		return Result{"out": out.String(), "fee": charged.String()}, nil
	})
	return out, charged, err
}

// RedeemProportionally burns pegged tokens for a slice of the basket.
func (e *Engine) RedeemProportionally(ctx context.Context, account common.Address, amount *big.Int) (legs []vault.Leg, charged *big.Int, err error) {
	err = e.Do(ctx, "manager.redeem", account, map[string]string{"amount": amount.String()}, func(ctx context.Context, l *Ledger) (Result, error) {
		var err error
		legs, charged, err = l.Manager.RedeemProportionally(ctx, account, amount)
		if err != nil {
			return nil, err
		}
		return legResult(legs, charged), nil
	})
	return legs, charged, err
}

// RedeemManually burns pegged tokens for exact asset amounts.
func (e *Engine) RedeemManually(ctx context.Context, account common.Address, assets []common.Address, amounts []*big.Int) (legs []vault.Leg, charged *big.Int, err error) {
	args := map[string]string{"assets": joinAddresses(assets), "amounts": joinAmounts(amounts)}
	err = e.Do(ctx, "manager.redeem_manual", account, args, func(ctx context.Context, l *Ledger) (Result, error) {
		var err error
		legs, charged, err = l.Manager.RedeemManually(ctx, account, assets, amounts)
		if err != nil {
			return nil, err
		}
		return legResult(legs, charged), nil
	})
	return legs, charged, err
}

// Deposit moves pegged tokens into savings.
func (e *Engine) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := e.Do(ctx, "savings.deposit", account, map[string]string{"amount": amount.String()}, func(ctx context.Context, l *Ledger) (Result, error) {
		var err error
		shares, err = l.Manager.Deposit(ctx, account, amount)
		if err != nil {
			return nil, err
		}
		return Result{"shares": shares.String()}, nil
	})
	return shares, err
}

// Withdraw redeems savings shares.
func (e *Engine) Withdraw(ctx context.Context, account common.Address, shares *big.Int) (*big.Int, error) {
	var paid *big.Int
	err := e.Do(ctx, "savings.withdraw", account, map[string]string{"shares": shares.String()}, func(ctx context.Context, l *Ledger) (Result, error) {
		var err error
		paid, err = l.Manager.Withdraw(ctx, account, shares)
		if err != nil {
			return nil, err
		}
		return Result{"amount": paid.String()}, nil
	})
	return paid, err
}

// SetFeeRates replaces the swap and redeem fee rates.
func (e *Engine) SetFeeRates(ctx context.Context, caller common.Address, swap, redeem *big.Int) error {
	args := map[string]string{"swap": swap.String(), "redeem": redeem.String()}
	return e.Do(ctx, "fee.set_rates", caller, args, func(ctx context.Context, l *Ledger) (Result, error) {
		return nil, l.Fees.SetFeeRates(ctx, caller, swap, redeem)
	})
}

// SetClaimableRatio replaces the share of new fees routed to savings.
func (e *Engine) SetClaimableRatio(ctx context.Context, caller common.Address, ratio *big.Int) error {
	return e.Do(ctx, "fee.set_ratio", caller, map[string]string{"ratio": ratio.String()}, func(ctx context.Context, l *Ledger) (Result, error) {
		return nil, l.Fees.SetClaimableRatio(ctx, caller, ratio)
	})
}

// ClaimReserved pays out the reserved fee balance.
func (e *Engine) ClaimReserved(ctx context.Context, caller, recipient common.Address) (*big.Int, error) {
	var paid *big.Int
	err := e.Do(ctx, "fee.claim_reserved", caller, map[string]string{"recipient": recipient.Hex()}, func(ctx context.Context, l *Ledger) (Result, error) {
		var err error
		paid, err = l.Fees.DistributeReservedRewards(ctx, caller, recipient)
		if err != nil {
			return nil, err
		}
		return Result{"amount": paid.String()}, nil
	})
	return paid, err
}

func legResult(legs []vault.Leg, charged *big.Int) Result {
	assets := make([]common.Address, len(legs))
	amounts := make([]*big.Int, len(legs))
	for i, leg := range legs {
		assets[i] = leg.Asset
		amounts[i] = leg.Amount
	}
	return Result{"assets": joinAddresses(assets), "amounts": joinAmounts(amounts), "fee": charged.String()}
}

func joinAddresses(in []common.Address) string {
	parts := make([]string, len(in))
	for i, a := range in {
		parts[i] = a.Hex()
	}
	return strings.Join(parts, ",")
}

func joinAmounts(in []*big.Int) string {
	parts := make([]string, len(in))
	for i, a := range in {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}
