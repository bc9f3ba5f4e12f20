// Package yieldsource holds yield sources the integration can invest into.
package yieldsource

import (
	"bytes"
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "honestledger/internal/errors"
	"honestledger/internal/fixed"
	"honestledger/internal/model"
	"honestledger/internal/token"
)

type pool struct {
	underlying *big.Int
	shares     *big.Int
}

// Simulated is a rebasing vault kept in process. Every asset has its own
// underlying balance and share supply, both in native units. Tokens backing
// the underlying sit with the custody account in the token provider.
type Simulated struct {
	tokens  token.Provider
	custody common.Address
	pools   map[common.Address]*pool
}

// NewSimulated returns an empty source whose tokens are held by custody.
func NewSimulated(tokens token.Provider, custody common.Address) *Simulated {
	return &Simulated{
		tokens:  tokens,
		custody: custody,
		pools:   make(map[common.Address]*pool),
	}
}

func (s *Simulated) pool(asset common.Address) *pool {
	p, ok := s.pools[asset]
	if !ok {
		p = &pool{underlying: new(big.Int), shares: new(big.Int)}
		s.pools[asset] = p
	}
	return p
}

// PricePerShare is underlying*1e18/shares, or 1e18 while no shares exist.
func (s *Simulated) PricePerShare(_ context.Context, asset common.Address) (*big.Int, error) {
	p, ok := s.pools[asset]
	if !ok || p.shares.Sign() == 0 {
		return fixed.Clone(fixed.One), nil
	}
	return fixed.MulDiv(p.underlying, fixed.One, p.shares), nil
}

// Deposit adds amount to the pool and returns the shares it minted.
func (s *Simulated) Deposit(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	price, err := s.PricePerShare(ctx, asset)
	if err != nil {
		return nil, err
	}
	minted := fixed.MulDiv(amount, fixed.One, price)
	if minted.Sign() == 0 {
		return nil, ledgererrors.New(ledgererrors.CodeZeroAmount, "source deposit %s: amount %s mints no shares", asset.Hex(), amount)
	}
	p := s.pool(asset)
	p.underlying.Add(p.underlying, amount)
	p.shares.Add(p.shares, minted)
	return minted, nil
}

// Withdraw burns shares and returns the underlying they were worth, rounded down.
func (s *Simulated) Withdraw(ctx context.Context, asset common.Address, shares *big.Int) (*big.Int, error) {
	p := s.pool(asset)
	if shares.Cmp(p.shares) > 0 {
		return nil, ledgererrors.New(ledgererrors.CodeInsufficientShares, "source withdraw %s: %s shares above supply %s", asset.Hex(), shares, p.shares)
	}
	price, err := s.PricePerShare(ctx, asset)
	if err != nil {
		return nil, err
	}
	amount := fixed.MulDiv(shares, price, fixed.One)
	// The last shares out take whatever dust the price rounding left behind.
	if shares.Cmp(p.shares) == 0 || amount.Cmp(p.underlying) > 0 {
		amount = fixed.Clone(p.underlying)
	}
	p.shares.Sub(p.shares, shares)
	p.underlying.Sub(p.underlying, amount)
	return amount, nil
}

// Accrue credits yield to the pool, minting the backing tokens to custody.
func (s *Simulated) Accrue(ctx context.Context, asset common.Address, amount *big.Int) error {
	if fixed.IsZero(amount) {
		return ledgererrors.ErrZeroAmount
	}
	p := s.pool(asset)
	if p.shares.Sign() == 0 {
		return ledgererrors.New(ledgererrors.CodeInvalidArgument, "accrue %s: no shares outstanding", asset.Hex())
	}
	if err := s.tokens.Mint(ctx, asset, s.custody, amount); err != nil {
		return err
	}
	p.underlying.Add(p.underlying, amount)
	return nil
}

// Underlying returns the pool balance for asset in native units.
func (s *Simulated) Underlying(asset common.Address) *big.Int {
	if p, ok := s.pools[asset]; ok {
		return fixed.Clone(p.underlying)
	}
	return new(big.Int)
}

// Export copies the pool state in address order.
func (s *Simulated) Export() []model.SourceAsset {
	out := make([]model.SourceAsset, 0, len(s.pools))
	for asset, p := range s.pools {
		out = append(out, model.SourceAsset{
			Asset:      asset,
			Underlying: fixed.Clone(p.underlying),
			Shares:     fixed.Clone(p.shares),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Asset.Bytes(), out[j].Asset.Bytes()) < 0
	})
	return out
}

// Import replaces the pool state.
func (s *Simulated) Import(entries []model.SourceAsset) {
	s.pools = make(map[common.Address]*pool, len(entries))
	for _, e := range entries {
		s.pools[e.Asset] = &pool{underlying: fixed.Clone(e.Underlying), shares: fixed.Clone(e.Shares)}
	}
}
