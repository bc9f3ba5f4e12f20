// Package oracle provides 18-decimal asset prices. A zero price means the
// price is unavailable.
package oracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"honestledger/internal/fixed"
)

// Oracle returns the price of one whole unit of asset in pegged units.
type Oracle interface {
	Price(ctx context.Context, asset common.Address) (*big.Int, error)
}

// Static serves prices set by hand or from configuration.
type Static struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

// NewStatic returns a Static oracle seeded with prices.
func NewStatic(prices map[common.Address]*big.Int) *Static {
	s := &Static{prices: make(map[common.Address]*big.Int, len(prices))}
	for asset, p := range prices {
		s.prices[asset] = fixed.Clone(p)
	}
	return s
}

// Set replaces the price of asset.
func (s *Static) Set(asset common.Address, price *big.Int) {
	s.mu.Lock()
	s.prices[asset] = fixed.Clone(price)
	s.mu.Unlock()
}

func (s *Static) Price(_ context.Context, asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fixed.Clone(s.prices[asset]), nil
}

// Fallback asks each oracle in turn and returns the first non-zero price.
type Fallback []Oracle

func (f Fallback) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	var lastErr error
	for _, o := range f {
		p, err := o.Price(ctx, asset)
		if err != nil {
			lastErr = err
			continue
		}
		if p.Sign() > 0 {
			return p, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return new(big.Int), nil
}
