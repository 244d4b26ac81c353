package lending

import (
	"fmt"
	"math/big"
	"time"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// Engine applies the rate model and risk limits to pool and position
// snapshots. It holds no mutable state; every operation returns new snapshots
// and leaves its inputs untouched.
type Engine struct {
	params Params
}

// NewEngine validates params and returns an engine.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.Model = params.Model.Clone()
	params.CollateralFactor = fixed.Clone(params.CollateralFactor)
	params.MaxUtilization = fixed.Clone(params.MaxUtilization)
	return &Engine{params: params}, nil
}

// NewEngineFromConfig parses cfg and returns an engine.
func NewEngineFromConfig(cfg Config) (*Engine, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	return NewEngine(params)
}

// Model returns a copy of the configured rate model.
func (e *Engine) Model() RateModel { return e.params.Model.Clone() }

// CollateralFactor returns the configured collateral factor.
func (e *Engine) CollateralFactor() *big.Int { return fixed.Clone(e.params.CollateralFactor) }

// MaxUtilization returns the configured utilisation ceiling.
func (e *Engine) MaxUtilization() *big.Int { return fixed.Clone(e.params.MaxUtilization) }

// Quote returns utilisation and APYs for the pool.
func (e *Engine) Quote(pool Pool) RateQuote { return e.params.Model.Quote(pool) }

// MaxBorrowable applies the configured collateral factor.
func (e *Engine) MaxBorrowable(collateralAmount *big.Int) *big.Int {
	return MaxBorrowable(collateralAmount, e.params.CollateralFactor)
}

// Supply credits lender liquidity to the pool.
func (e *Engine) Supply(pool Pool, amount *big.Int) (Pool, error) {
	if err := validatePool(pool); err != nil {
		return Pool{}, err
	}
	if err := positive(amount, "supply amount"); err != nil {
		return Pool{}, err
	}
	next := pool.Clone()
	next.TotalSupplied.Add(next.TotalSupplied, amount)
	return next, nil
}

// Withdraw removes lender liquidity. Liquidity currently lent out cannot be
// withdrawn.
func (e *Engine) Withdraw(pool Pool, amount *big.Int) (Pool, error) {
	if err := validatePool(pool); err != nil {
		return Pool{}, err
	}
	if err := positive(amount, "withdraw amount"); err != nil {
		return Pool{}, err
	}
	if pool.Available().Cmp(amount) < 0 {
		return Pool{}, fmt.Errorf("lending: %w: withdraw %s exceeds available %s", nativecommon.ErrInsufficientLiquidity, fixed.FormatWad(amount), fixed.FormatWad(pool.Available()))
	}
	next := pool.Clone()
	next.TotalSupplied.Sub(next.TotalSupplied, amount)
	return next, nil
}

// OpenPosition borrows requestedBorrow against collateralAmount. The borrow is
// rejected when it exceeds the collateral allowance or would push utilisation
// above the configured ceiling. The position records the borrow APY implied by
// the post-borrow utilisation.
func (e *Engine) OpenPosition(collateralAmount, requestedBorrow *big.Int, pool Pool, now time.Time) (Position, Pool, error) {
	if err := validatePool(pool); err != nil {
		return Position{}, Pool{}, err
	}
	if err := positive(collateralAmount, "collateral amount"); err != nil {
		return Position{}, Pool{}, err
	}
	if err := positive(requestedBorrow, "borrow amount"); err != nil {
		return Position{}, Pool{}, err
	}
	limit := e.MaxBorrowable(collateralAmount)
	if requestedBorrow.Cmp(limit) > 0 {
		return Position{}, Pool{}, fmt.Errorf("lending: %w: requested %s exceeds max borrowable %s", nativecommon.ErrInsufficientCollateral, fixed.FormatWad(requestedBorrow), fixed.FormatWad(limit))
	}
	next := pool.Clone()
	next.TotalBorrowed.Add(next.TotalBorrowed, requestedBorrow)
	if next.TotalSupplied.Sign() == 0 {
		return Position{}, Pool{}, fmt.Errorf("lending: %w: pool has no supplied liquidity", nativecommon.ErrExceedsMaxUtilization)
	}
	utilization := Utilization(next)
	// Compare exactly: borrowed/supplied > max  <=>  borrowed*wad > max*supplied.
	lhs := new(big.Int).Mul(next.TotalBorrowed, wad)
	rhs := new(big.Int).Mul(e.params.MaxUtilization, next.TotalSupplied)
	if lhs.Cmp(rhs) > 0 {
		return Position{}, Pool{}, fmt.Errorf("lending: %w: utilization %s above ceiling %s", nativecommon.ErrExceedsMaxUtilization, fixed.FormatWad(utilization), fixed.FormatWad(e.params.MaxUtilization))
	}
	position := Position{
		CollateralAmount: new(big.Int).Set(collateralAmount),
		BorrowedAmount:   new(big.Int).Set(requestedBorrow),
		APYAtOrigination: e.params.Model.BorrowAPY(utilization),
		OpenedAt:         now,
		LastAccrual:      now,
		AccruedInterest:  new(big.Int),
	}
	if err := e.checkCollateral(position); err != nil {
		return Position{}, Pool{}, err
	}
	return position, next, nil
}

// AccrueInterest accrues elapsed time of interest at apy onto the position.
// Linear accrual charges principal only; compound accrual compounds principal
// plus accrued interest once per configured period.
func (e *Engine) AccrueInterest(position Position, elapsed time.Duration, apy *big.Int) (Position, error) {
	if elapsed < 0 {
		return Position{}, fmt.Errorf("lending: %w: negative elapsed time", nativecommon.ErrInvalidConfiguration)
	}
	if !fixed.NonNegative(apy) {
		return Position{}, fmt.Errorf("lending: %w: apy must be non-negative", nativecommon.ErrInvalidConfiguration)
	}
	if err := validatePosition(position); err != nil {
		return Position{}, err
	}
	next := position.Clone()
	var interest *big.Int
	switch e.params.Accrual {
	case AccrualCompound:
		interest = compoundInterest(next.TotalOwed(), apy, elapsed, e.params.CompoundPeriod)
	default:
		interest = linearInterest(next.BorrowedAmount, apy, elapsed)
	}
	next.AccruedInterest.Add(next.AccruedInterest, interest)
	if !next.LastAccrual.IsZero() {
		next.LastAccrual = next.LastAccrual.Add(elapsed)
	}
	return next, nil
}

// AccrueTo accrues interest at the position's origination APY up to now.
func (e *Engine) AccrueTo(position Position, now time.Time) (Position, error) {
	last := position.LastAccrual
	if last.IsZero() {
		last = position.OpenedAt
	}
	if now.Before(last) {
		return Position{}, fmt.Errorf("lending: %w: accrual time precedes last accrual", nativecommon.ErrInvalidConfiguration)
	}
	next, err := e.AccrueInterest(position, now.Sub(last), position.APYAtOrigination)
	if err != nil {
		return Position{}, err
	}
	next.LastAccrual = now
	return next, nil
}

// Repay applies amount to accrued interest first and principal second. Paying
// at least the total owed destroys the position and refunds the excess. The
// returned pool releases repaid principal and credits repaid interest to
// suppliers net of the reserve spread.
func (e *Engine) Repay(position Position, amount *big.Int, pool Pool) (RepayResult, Pool, error) {
	if err := validatePool(pool); err != nil {
		return RepayResult{}, Pool{}, err
	}
	if err := validatePosition(position); err != nil {
		return RepayResult{}, Pool{}, err
	}
	if err := positive(amount, "repay amount"); err != nil {
		return RepayResult{}, Pool{}, err
	}
	next := position.Clone()
	result := RepayResult{Refund: new(big.Int)}
	owed := next.TotalOwed()
	if amount.Cmp(owed) >= 0 {
		result.InterestPaid = fixed.Clone(next.AccruedInterest)
		result.PrincipalPaid = fixed.Clone(next.BorrowedAmount)
		result.Refund = new(big.Int).Sub(amount, owed)
		result.Closed = true
	} else {
		result.InterestPaid = fixed.Min(amount, next.AccruedInterest)
		result.PrincipalPaid = new(big.Int).Sub(amount, result.InterestPaid)
		next.AccruedInterest.Sub(next.AccruedInterest, result.InterestPaid)
		next.BorrowedAmount.Sub(next.BorrowedAmount, result.PrincipalPaid)
		if err := e.checkCollateral(next); err != nil {
			return RepayResult{}, Pool{}, err
		}
		result.Position = &next
	}

	updated := pool.Clone()
	if updated.TotalBorrowed.Cmp(result.PrincipalPaid) < 0 {
		return RepayResult{}, Pool{}, fmt.Errorf("lending: %w: pool borrowed %s below repaid principal %s", nativecommon.ErrInvalidConfiguration, fixed.FormatWad(updated.TotalBorrowed), fixed.FormatWad(result.PrincipalPaid))
	}
	updated.TotalBorrowed.Sub(updated.TotalBorrowed, result.PrincipalPaid)
	reserveShare := fixed.MulWad(result.InterestPaid, e.params.Model.ReserveSpread)
	updated.Reserves.Add(updated.Reserves, reserveShare)
	updated.TotalSupplied.Add(updated.TotalSupplied, new(big.Int).Sub(result.InterestPaid, reserveShare))
	return result, updated, nil
}

// HealthRatio reports maxBorrowable / totalOwed as a wad ratio. Positions with
// nothing owed report ok=false.
func (e *Engine) HealthRatio(position Position) (*big.Int, bool) {
	owed := position.TotalOwed()
	if owed.Sign() == 0 {
		return nil, false
	}
	return fixed.DivWad(e.MaxBorrowable(position.CollateralAmount), owed), true
}

func (e *Engine) checkCollateral(position Position) error {
	limit := e.MaxBorrowable(position.CollateralAmount)
	if position.BorrowedAmount.Cmp(limit) > 0 {
		return fmt.Errorf("lending: %w: borrowed %s exceeds max borrowable %s", nativecommon.ErrInsufficientCollateral, fixed.FormatWad(position.BorrowedAmount), fixed.FormatWad(limit))
	}
	return nil
}

func validatePool(pool Pool) error {
	if !fixed.NonNegative(pool.TotalSupplied) || !fixed.NonNegative(pool.TotalBorrowed) {
		return fmt.Errorf("lending: %w: pool amounts must be non-negative", nativecommon.ErrInvalidConfiguration)
	}
	if pool.Reserves != nil && pool.Reserves.Sign() < 0 {
		return fmt.Errorf("lending: %w: pool reserves must be non-negative", nativecommon.ErrInvalidConfiguration)
	}
	if pool.TotalBorrowed.Cmp(pool.TotalSupplied) > 0 {
		return fmt.Errorf("lending: %w: borrowed exceeds supplied", nativecommon.ErrInvalidConfiguration)
	}
	return nil
}

func validatePosition(position Position) error {
	if !fixed.NonNegative(position.CollateralAmount) || !fixed.NonNegative(position.BorrowedAmount) {
		return fmt.Errorf("lending: %w: position amounts must be non-negative", nativecommon.ErrInvalidConfiguration)
	}
	if position.AccruedInterest != nil && position.AccruedInterest.Sign() < 0 {
		return fmt.Errorf("lending: %w: accrued interest must be non-negative", nativecommon.ErrInvalidConfiguration)
	}
	return nil
}

func positive(v *big.Int, name string) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("lending: %w: %s must be positive", nativecommon.ErrInvalidConfiguration, name)
	}
	return nil
}
