package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	nativecommon "campusfi/native/common"
)

// FeeDenominator is the basis-point denominator applied to swap fees.
const FeeDenominator = 10_000

var (
	feeDenominator = uint256.NewInt(FeeDenominator)
	one            = uint256.NewInt(1)
)

func overflow(op string) error {
	return fmt.Errorf("amm: %w: %s", nativecommon.ErrArithmeticOverflow, op)
}

func mul(x, y *uint256.Int, op string) (*uint256.Int, error) {
	z, over := new(uint256.Int).MulOverflow(x, y)
	if over {
		return nil, overflow(op)
	}
	return z, nil
}

func add(x, y *uint256.Int, op string) (*uint256.Int, error) {
	z, over := new(uint256.Int).AddOverflow(x, y)
	if over {
		return nil, overflow(op)
	}
	return z, nil
}

func sub(x, y *uint256.Int, op string) (*uint256.Int, error) {
	z, under := new(uint256.Int).SubOverflow(x, y)
	if under {
		return nil, overflow(op)
	}
	return z, nil
}

// mulDiv computes x*y/d with a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int, op string) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("amm: %w: %s divides by zero", nativecommon.ErrInsufficientLiquidity, op)
	}
	z, over := new(uint256.Int).MulDivOverflow(x, y, d)
	if over {
		return nil, overflow(op)
	}
	return z, nil
}

func feeMultiplier(feeBps uint64) (*uint256.Int, error) {
	if feeBps >= FeeDenominator {
		return nil, fmt.Errorf("amm: %w: fee %d bps must be below %d", nativecommon.ErrInvalidConfiguration, feeBps, FeeDenominator)
	}
	return uint256.NewInt(FeeDenominator - feeBps), nil
}

func minInt(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

func present(values ...*uint256.Int) error {
	for _, v := range values {
		if v == nil {
			return fmt.Errorf("amm: %w: amount missing", nativecommon.ErrInvalidConfiguration)
		}
	}
	return nil
}
