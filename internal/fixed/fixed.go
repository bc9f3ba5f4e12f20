// Package fixed holds the 18-decimal fixed-point arithmetic used across the
// ledger. Every division rounds down unless the function name says otherwise,
// so rounding always favours the pool.
package fixed

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the precision of the pegged asset and of every normalised value.
const Decimals = 18

var (
	// One is 1.0 in 18-decimal fixed point.
	One = mustBigInt("1000000000000000000")

	ten = big.NewInt(10)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Zero returns a fresh zero value.
func Zero() *big.Int {
	return new(big.Int)
}

// Clone copies v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if Clone(a).Cmp(Clone(b)) <= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// MulDiv computes x*y/d rounded down. A zero divisor yields zero.
func MulDiv(x, y, d *big.Int) *big.Int {
	if IsZero(x) || IsZero(y) || IsZero(d) {
		return new(big.Int)
	}
	product := new(big.Int).Mul(x, y)
	return product.Quo(product, d)
}

// MulDivUp computes x*y/d rounded up. A zero divisor yields zero.
func MulDivUp(x, y, d *big.Int) *big.Int {
	if IsZero(x) || IsZero(y) || IsZero(d) {
		return new(big.Int)
	}
	product := new(big.Int).Mul(x, y)
	quo, rem := new(big.Int).QuoRem(product, d, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// Mul multiplies two 18-decimal values.
func Mul(x, y *big.Int) *big.Int {
	return MulDiv(x, y, One)
}

// Div divides two 18-decimal values.
func Div(x, y *big.Int) *big.Int {
	return MulDiv(x, One, y)
}

func scaleFactor(decimals uint8) *big.Int {
	if decimals >= Decimals {
		return new(big.Int).Exp(ten, big.NewInt(int64(decimals-Decimals)), nil)
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(Decimals-decimals)), nil)
}

// Normalize converts a native amount with the given decimals into 18-decimal
// units. Assets with more than 18 decimals lose precision, rounded down.
func Normalize(amount *big.Int, decimals uint8) *big.Int {
	if IsZero(amount) {
		return new(big.Int)
	}
	factor := scaleFactor(decimals)
	if decimals > Decimals {
		return new(big.Int).Quo(amount, factor)
	}
	return new(big.Int).Mul(amount, factor)
}

// Denormalize converts an 18-decimal value into native units, rounded down.
func Denormalize(value *big.Int, decimals uint8) *big.Int {
	if IsZero(value) {
		return new(big.Int)
	}
	factor := scaleFactor(decimals)
	if decimals > Decimals {
		return new(big.Int).Mul(value, factor)
	}
	return new(big.Int).Quo(value, factor)
}

// DenormalizeUp converts an 18-decimal value into native units, rounded up.
func DenormalizeUp(value *big.Int, decimals uint8) *big.Int {
	if IsZero(value) {
		return new(big.Int)
	}
	if decimals >= Decimals {
		return Denormalize(value, decimals)
	}
	return MulDivUp(value, big.NewInt(1), scaleFactor(decimals))
}

// ParseUnits converts a human-readable amount ("12.5") into native units.
func ParseUnits(input string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", input, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("parse amount %q: negative", input)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("parse amount %q: more than %d decimals", input, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits renders a native amount with the given decimals.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}
