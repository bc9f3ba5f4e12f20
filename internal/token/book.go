// Package token provides the asset transfer provider used by the ledger.
package token

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
)

// Provider moves fungible balances. Amounts are native token units.
type Provider interface {
	TransferFrom(ctx context.Context, token, owner, recipient common.Address, amount *big.Int) error
	Mint(ctx context.Context, token, recipient common.Address, amount *big.Int) error
	Burn(ctx context.Context, token, owner common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, token, account common.Address) *big.Int
}

// Book is an in-process balance sheet keyed by token and account.
type Book struct {
	balances map[common.Address]map[common.Address]*big.Int
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (b *Book) account(token, account common.Address) *big.Int {
	accounts, ok := b.balances[token]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		b.balances[token] = accounts
	}
	bal, ok := accounts[account]
	if !ok {
		bal = new(big.Int)
		accounts[account] = bal
	}
	return bal
}

func (b *Book) BalanceOf(_ context.Context, token, account common.Address) *big.Int {
	if accounts, ok := b.balances[token]; ok {
		return fixed.Clone(accounts[account])
	}
	return new(big.Int)
}

func (b *Book) TransferFrom(_ context.Context, token, owner, recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledgererrors.New(ledgererrors.CodeTransferFailed, "transfer %s: invalid amount", token.Hex())
	}
	from := b.account(token, owner)
	if from.Cmp(amount) < 0 {
		return ledgererrors.New(ledgererrors.CodeTransferFailed, "transfer %s: balance %s below %s", token.Hex(), from, amount)
	}
	from.Sub(from, amount)
	to := b.account(token, recipient)
	to.Add(to, amount)
	return nil
}

func (b *Book) Mint(_ context.Context, token, recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledgererrors.New(ledgererrors.CodeTransferFailed, "mint %s: invalid amount", token.Hex())
	}
	to := b.account(token, recipient)
	to.Add(to, amount)
	return nil
}

func (b *Book) Burn(_ context.Context, token, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ledgererrors.New(ledgererrors.CodeTransferFailed, "burn %s: invalid amount", token.Hex())
	}
	from := b.account(token, owner)
	if from.Cmp(amount) < 0 {
		return ledgererrors.New(ledgererrors.CodeTransferFailed, "burn %s: balance %s below %s", token.Hex(), from, amount)
	}
	from.Sub(from, amount)
	return nil
}

// Export returns every non-zero balance in a deterministic order.
func (b *Book) Export() []model.TokenBalance {
	out := make([]model.TokenBalance, 0)
	for token, accounts := range b.balances {
		for account, amount := range accounts {
			if amount.Sign() == 0 {
				continue
			}
			out = append(out, model.TokenBalance{Token: token, Account: account, Amount: fixed.Clone(amount)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Token.Bytes(), out[j].Token.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Account.Bytes(), out[j].Account.Bytes()) < 0
	})
	return out
}

// Import replaces the book contents.
func (b *Book) Import(entries []model.TokenBalance) {
	b.balances = make(map[common.Address]map[common.Address]*big.Int)
	for _, e := range entries {
		bal := b.account(e.Token, e.Account)
		bal.Set(fixed.Clone(e.Amount))
	}
}
