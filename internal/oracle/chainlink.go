package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"honestledger/internal/chain"
	"honestledger/internal/fixed"
)

// Chainlink reads AggregatorV3 price feeds over eth_call.
type Chainlink struct {
	caller     chain.Caller
	feeds      map[common.Address]common.Address
	maxAge     time.Duration
	maxRetries int
	baseDelay  time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// ChainlinkConfig configures a Chainlink oracle.
type ChainlinkConfig struct {
	Feeds      map[common.Address]common.Address
	MaxAge     time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// NewChainlink builds a feed reader. Assets without a feed price at zero.
func NewChainlink(caller chain.Caller, cfg ChainlinkConfig, logger *zap.Logger) *Chainlink {
	if logger == nil {
		logger = zap.NewNop()
	}
	feeds := make(map[common.Address]common.Address, len(cfg.Feeds))
	for asset, feed := range cfg.Feeds {
		feeds[asset] = feed
	}
	return &Chainlink{
		caller:     caller,
		feeds:      feeds,
		maxAge:     cfg.MaxAge,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		now:        time.Now,
		logger:     logger,
	}
}

// Price returns the latest feed answer scaled to 18 decimals. Non-positive
// and stale answers price at zero.
func (c *Chainlink) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	feed, ok := c.feeds[asset]
	if !ok {
		return new(big.Int), nil
	}
	parsed, err := chain.AggregatorV3ABI()
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}

	var (
		answer    *big.Int
		updatedAt *big.Int
		decimals  uint8
	)
	err = chain.WithRetry(ctx, c.maxRetries, c.baseDelay, func(ctx context.Context) error {
		values, err := chain.Call(ctx, c.caller, feed, parsed, "decimals", nil)
		if err != nil {
			return err
		}
		if decimals, err = chain.AsUint8(values[0]); err != nil {
			return err
		}
		values, err = chain.Call(ctx, c.caller, feed, parsed, "latestRoundData", nil)
		if err != nil {
			return err
		}
		if len(values) < 4 {
			return fmt.Errorf("latestRoundData: %d outputs", len(values))
		}
		if answer, err = chain.AsBigInt(values[1]); err != nil {
			return err
		}
		updatedAt, err = chain.AsBigInt(values[3])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", feed.Hex(), err)
	}

	if answer.Sign() <= 0 {
		c.logger.Warn("non-positive feed answer", zap.String("asset", asset.Hex()), zap.String("answer", answer.String()))
		return new(big.Int), nil
	}
	if c.maxAge > 0 && updatedAt.IsInt64() {
		age := c.now().Sub(time.Unix(updatedAt.Int64(), 0))
		if age > c.maxAge {
			c.logger.Warn("stale feed answer", zap.String("asset", asset.Hex()), zap.Duration("age", age))
			return new(big.Int), nil
		}
	}
	return fixed.Normalize(answer, decimals), nil
}
