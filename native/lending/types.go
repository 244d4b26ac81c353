package lending

import (
	"math/big"
	"time"

	"campusfi/native/fixed"
)

// Pool captures the aggregate accounting of a lending pool. Amounts are
// 18-decimal integers.
type Pool struct {
	// TotalSupplied is the liquidity deposited by lenders, including interest
	// credited to them.
	TotalSupplied *big.Int
	// TotalBorrowed is the outstanding principal across all positions.
	TotalBorrowed *big.Int
	// Reserves accumulates the protocol's share of repaid interest.
	Reserves *big.Int
}

// NewPool returns an empty pool.
func NewPool() Pool {
	return Pool{TotalSupplied: new(big.Int), TotalBorrowed: new(big.Int), Reserves: new(big.Int)}
}

// Clone returns a deep copy of the pool.
func (p Pool) Clone() Pool {
	return Pool{
		TotalSupplied: fixed.Clone(p.TotalSupplied),
		TotalBorrowed: fixed.Clone(p.TotalBorrowed),
		Reserves:      fixed.Clone(p.Reserves),
	}
}

// Available returns the liquidity not currently lent out.
func (p Pool) Available() *big.Int {
	return new(big.Int).Sub(fixed.Clone(p.TotalSupplied), fixed.Clone(p.TotalBorrowed))
}

// Position is a collateralised borrow. BorrowedAmount never exceeds
// CollateralAmount * collateral factor.
type Position struct {
	CollateralAmount *big.Int
	BorrowedAmount   *big.Int
	APYAtOrigination *big.Int
	OpenedAt         time.Time
	// LastAccrual is the instant interest has been accrued up to.
	LastAccrual     time.Time
	AccruedInterest *big.Int
}

// Clone returns a deep copy of the position.
func (p Position) Clone() Position {
	return Position{
		CollateralAmount: fixed.Clone(p.CollateralAmount),
		BorrowedAmount:   fixed.Clone(p.BorrowedAmount),
		APYAtOrigination: fixed.Clone(p.APYAtOrigination),
		OpenedAt:         p.OpenedAt,
		LastAccrual:      p.LastAccrual,
		AccruedInterest:  fixed.Clone(p.AccruedInterest),
	}
}

// TotalOwed returns principal plus accrued interest.
func (p Position) TotalOwed() *big.Int {
	return new(big.Int).Add(fixed.Clone(p.BorrowedAmount), fixed.Clone(p.AccruedInterest))
}

// RepayResult describes the effect of a repayment. Position is nil once the
// debt has been fully repaid and the position destroyed.
type RepayResult struct {
	Position      *Position
	InterestPaid  *big.Int
	PrincipalPaid *big.Int
	Refund        *big.Int
	Closed        bool
}
