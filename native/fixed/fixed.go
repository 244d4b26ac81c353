// Package fixed implements the 18-decimal fixed-point conventions shared by
// the engines. Amounts and ratios are both scaled by Wad, so 0.076 is stored
// as 76e15 and one whole token as 1e18.
package fixed

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	nativecommon "campusfi/native/common"
)

// Decimals is the number of fractional digits carried by all amounts.
const Decimals = 18

var (
	// Wad is 1.0 in fixed-point representation.
	Wad         = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	halfWad     = new(big.Int).Rsh(Wad, 1)
	basisPoints = big.NewInt(10_000)
	// bpsToWad converts one basis point into wad units (1e14).
	bpsToWad = new(big.Int).Quo(Wad, basisPoints)
)

// One returns a fresh copy of Wad.
func One() *big.Int { return new(big.Int).Set(Wad) }

// Zero returns a fresh zero value.
func Zero() *big.Int { return new(big.Int) }

// Clone returns a copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Units scales a whole-number amount into wad units.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Wad)
}

// FromBps converts basis points into a wad ratio.
func FromBps(bps uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(bps), bpsToWad)
}

// ParseWad parses a non-negative decimal string such as "0.08" or "150" into
// wad units. Inputs with more than 18 fractional digits are rejected rather
// than rounded.
func ParseWad(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty decimal", nativecommon.ErrInvalidConfiguration)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", nativecommon.ErrInvalidConfiguration, trimmed, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", nativecommon.ErrInvalidConfiguration, trimmed)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q exceeds %d decimals", nativecommon.ErrInvalidConfiguration, trimmed, Decimals)
	}
	return scaled.BigInt(), nil
}

// MustParseWad is ParseWad for package-level constants.
func MustParseWad(raw string) *big.Int {
	v, err := ParseWad(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatWad renders a wad value as a plain decimal string with trailing zeros
// trimmed, e.g. 76e15 -> "0.076".
func FormatWad(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).String()
}

// MulWad returns a*b/Wad rounded down.
func MulWad(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, Wad)
}

// MulWadHalfUp returns a*b/Wad rounded half up.
func MulWadHalfUp(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfWad)
	return product.Quo(product, Wad)
}

// DivWad returns a*Wad/b rounded down. Division by zero yields zero.
func DivWad(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return new(big.Int)
	}
	numerator := new(big.Int).Mul(a, Wad)
	return numerator.Quo(numerator, b)
}

// MulDiv returns a*b/c rounded down. Division by zero yields zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return new(big.Int)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, c)
}

// MulDivUp returns a*b/c rounded up. Division by zero yields zero.
func MulDivUp(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return new(big.Int)
	}
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, c, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// NonNegative reports whether v is present and not negative.
func NonNegative(v *big.Int) bool {
	return v != nil && v.Sign() >= 0
}
