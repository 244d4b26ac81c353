package lending

import (
	"math/big"

	"campusfi/native/fixed"
)

// DefaultCollateralFactor is the share of collateral that may be borrowed
// against.
var DefaultCollateralFactor = fixed.MustParseWad("0.5")

// MaxBorrowable returns collateralAmount * collateralFactor. A nil factor uses
// DefaultCollateralFactor.
func MaxBorrowable(collateralAmount, collateralFactor *big.Int) *big.Int {
	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return new(big.Int)
	}
	if collateralFactor == nil {
		collateralFactor = DefaultCollateralFactor
	}
	return fixed.MulWad(collateralAmount, collateralFactor)
}
