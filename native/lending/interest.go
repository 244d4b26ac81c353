package lending

import (
	"fmt"
	"math/big"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// RateModel encapsulates the kinked curve that shapes how rates react to pool
// utilisation. All fields are wad ratios.
type RateModel struct {
	// BaseRate is the borrow APY applied when utilisation is zero.
	BaseRate *big.Int
	// SlopeLow is the borrow APY increase per unit of utilisation up to the
	// kink point.
	SlopeLow *big.Int
	// SlopeHigh governs the steeper increase applied beyond the kink.
	SlopeHigh *big.Int
	// Kink is the utilisation ratio where the slope changes.
	Kink *big.Int
	// ReserveSpread is the share of borrow interest kept by the protocol.
	ReserveSpread *big.Int
}

// Clone returns a deep copy of the model.
func (m RateModel) Clone() RateModel {
	return RateModel{
		BaseRate:      fixed.Clone(m.BaseRate),
		SlopeLow:      fixed.Clone(m.SlopeLow),
		SlopeHigh:     fixed.Clone(m.SlopeHigh),
		Kink:          fixed.Clone(m.Kink),
		ReserveSpread: fixed.Clone(m.ReserveSpread),
	}
}

// Validate checks the curve shape.
func (m RateModel) Validate() error {
	for name, v := range map[string]*big.Int{
		"base rate":      m.BaseRate,
		"slope low":      m.SlopeLow,
		"slope high":     m.SlopeHigh,
		"kink":           m.Kink,
		"reserve spread": m.ReserveSpread,
	} {
		if !fixed.NonNegative(v) {
			return fmt.Errorf("%w: %s must be a non-negative ratio", nativecommon.ErrInvalidConfiguration, name)
		}
	}
	if !inUnitInterval(m.Kink, false) {
		return fmt.Errorf("%w: kink must be within (0, 1]", nativecommon.ErrInvalidConfiguration)
	}
	if m.SlopeHigh.Cmp(m.SlopeLow) <= 0 {
		return fmt.Errorf("%w: slope high must exceed slope low", nativecommon.ErrInvalidConfiguration)
	}
	if !inUnitInterval(m.ReserveSpread, true) {
		return fmt.Errorf("%w: reserve spread must be within [0, 1]", nativecommon.ErrInvalidConfiguration)
	}
	return nil
}

// Utilization computes U = totalBorrowed / totalSupplied as a wad ratio. When
// no liquidity exists the utilisation is defined as zero.
func Utilization(pool Pool) *big.Int {
	if pool.TotalBorrowed == nil || pool.TotalBorrowed.Sign() == 0 {
		return new(big.Int)
	}
	if pool.TotalSupplied == nil || pool.TotalSupplied.Sign() == 0 {
		return new(big.Int)
	}
	if pool.TotalBorrowed.Cmp(pool.TotalSupplied) >= 0 {
		return fixed.One()
	}
	return fixed.DivWad(pool.TotalBorrowed, pool.TotalSupplied)
}

// BorrowAPY derives the borrow rate for a utilisation ratio.
func (m RateModel) BorrowAPY(utilization *big.Int) *big.Int {
	rate := fixed.Clone(m.BaseRate)
	if utilization == nil || utilization.Sign() <= 0 {
		return rate
	}
	if utilization.Cmp(m.Kink) <= 0 {
		// Linear region before the kink.
		return rate.Add(rate, fixed.MulWad(utilization, m.SlopeLow))
	}
	rate.Add(rate, fixed.MulWad(m.Kink, m.SlopeLow))
	excess := new(big.Int).Sub(utilization, m.Kink)
	return rate.Add(rate, fixed.MulWad(excess, m.SlopeHigh))
}

// SupplyAPY scales the borrow-side yield by utilisation and removes the
// protocol spread: borrowAPY * utilization * (1 - reserveSpread).
func SupplyAPY(utilization, borrowAPY, reserveSpread *big.Int) *big.Int {
	if utilization == nil || borrowAPY == nil || utilization.Sign() <= 0 || borrowAPY.Sign() <= 0 {
		return new(big.Int)
	}
	keep := new(big.Int).Sub(fixed.Wad, fixed.Clone(reserveSpread))
	if keep.Sign() < 0 {
		keep.SetInt64(0)
	}
	return fixed.MulWad(fixed.MulWad(borrowAPY, utilization), keep)
}

// RateQuote bundles the dashboard view of a pool.
type RateQuote struct {
	Utilization *big.Int
	BorrowAPY   *big.Int
	SupplyAPY   *big.Int
}

// Quote returns utilisation and both APYs for the pool snapshot.
func (m RateModel) Quote(pool Pool) RateQuote {
	u := Utilization(pool)
	borrow := m.BorrowAPY(u)
	return RateQuote{
		Utilization: u,
		BorrowAPY:   borrow,
		SupplyAPY:   SupplyAPY(u, borrow, m.ReserveSpread),
	}
}
