package savings

import (
	"math/big"
	"time"

	"honestledger/internal/fixed"
	"honestledger/internal/model"
)

const historyLimit = 64

var yearSeconds = big.NewRat(int64(365*24*time.Hour/time.Second), 1)

// yieldRate is (value-deposited)/deposited, or nil when nothing is deposited.
func yieldRate(value, deposited *big.Int) *big.Rat {
	if fixed.IsZero(deposited) {
		return nil
	}
	growth := new(big.Int).Sub(fixed.Clone(value), deposited)
	return new(big.Rat).SetFrac(growth, deposited)
}

// computeAPY annualises the change in yield rate between the oldest point and
// now. The result is an 18-decimal fraction.
func computeAPY(first model.ValuePoint, value, deposited *big.Int, now time.Time) *big.Int {
	window := now.Sub(first.At)
	if window < time.Second {
		return new(big.Int)
	}
	current := yieldRate(value, deposited)
	if current == nil {
		return new(big.Int)
	}
	start := yieldRate(first.TotalValue, first.TotalDeposited)
	if start == nil {
		start = new(big.Rat)
	}

	apy := new(big.Rat).Sub(current, start)
	apy.Mul(apy, yearSeconds)
	apy.Quo(apy, big.NewRat(int64(window/time.Second), 1))
	apy.Mul(apy, new(big.Rat).SetInt(fixed.One))
	return new(big.Int).Quo(apy.Num(), apy.Denom())
}

func appendPoint(history []model.ValuePoint, p model.ValuePoint) []model.ValuePoint {
	history = append(history, p)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	return history
}
