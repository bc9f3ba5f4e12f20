package vault

import (
	"errors"
	"math/big"

	"honestledger/internal/fixed"
)

// Split divides total across weights, each part rounded down, and assigns the
// leftover to the last non-zero weight so the parts always sum to total.
func Split(total *big.Int, weights []*big.Int) ([]*big.Int, error) {
	if total == nil || total.Sign() < 0 {
		return nil, errors.New("total must not be negative")
	}
	sum := new(big.Int)
	last := -1
	for i, w := range weights {
		if w == nil || w.Sign() <= 0 {
			continue
		}
		sum.Add(sum, w)
		last = i
	}
	if last < 0 {
		return nil, errors.New("no positive weight")
	}

	parts := make([]*big.Int, len(weights))
	allocated := new(big.Int)
	for i, w := range weights {
		if i == last || w == nil || w.Sign() <= 0 {
			parts[i] = new(big.Int)
			continue
		}
		parts[i] = fixed.MulDiv(total, w, sum)
		allocated.Add(allocated, parts[i])
	}
	parts[last] = new(big.Int).Sub(total, allocated)

	check := new(big.Int)
	for _, p := range parts {
		check.Add(check, p)
	}
	if check.Cmp(total) != 0 {
		return nil, errors.New("split does not add up to total")
	}
	return parts, nil
}
