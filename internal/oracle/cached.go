package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/ethereum/go-ethereum/common"

	"honestledger/internal/fixed"
)

// Cached keeps recent prices of another oracle for ttl.
type Cached struct {
	next  Oracle
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCached wraps next with a TTL cache.
func NewCached(next Oracle, ttl time.Duration) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create price cache: %w", err)
	}
	return &Cached{next: next, cache: cache, ttl: ttl}, nil
}

func (c *Cached) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	key := asset.Hex()
	if v, ok := c.cache.Get(key); ok {
		if p, ok := v.(*big.Int); ok {
			return fixed.Clone(p), nil
		}
	}
	p, err := c.next.Price(ctx, asset)
	if err != nil {
		return nil, err
	}
	// Unavailable prices are not cached so the next call asks again.
	if p.Sign() > 0 {
		c.cache.SetWithTTL(key, fixed.Clone(p), 1, c.ttl)
		c.cache.Wait()
	}
	return p, nil
}

// Invalidate drops the cached price of asset.
func (c *Cached) Invalidate(asset common.Address) {
	c.cache.Del(asset.Hex())
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
