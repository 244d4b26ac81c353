package tranche

import (
	"fmt"
	"math/big"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

var bpsDenominator = big.NewInt(10_000)

// BuildTranches splits the pool's total value into senior, mezzanine and
// equity allocations. Equity receives the rounding remainder so allocations
// always sum to the pool value.
func BuildTranches(pool ReceivablesPool, splits Splits) (Stack, error) {
	if err := splits.Validate(); err != nil {
		return Stack{}, err
	}
	if err := pool.Validate(); err != nil {
		return Stack{}, err
	}
	total := pool.TotalValue()
	stack := Stack{SeriesID: pool.WithSeriesID().SeriesID}
	remaining := new(big.Int).Set(total)
	for _, class := range Classes {
		var allocation *big.Int
		if class == Equity {
			allocation = new(big.Int).Set(remaining)
		} else {
			allocation = fixed.MulDiv(total, new(big.Int).SetUint64(splits.bps(class)), bpsDenominator)
			remaining.Sub(remaining, allocation)
		}
		stack.Tranches[class] = Tranche{
			Class:           class,
			TotalAllocation: allocation,
			AmountSold:      new(big.Int),
			AmountRepaid:    new(big.Int),
		}
	}
	return stack, nil
}

// Sell records a sale of amount from class. Mezzanine can only be sold once
// senior is fully sold, and equity once mezzanine is fully sold.
func Sell(stack Stack, class Class, amount *big.Int) (Stack, error) {
	if !class.Valid() {
		return Stack{}, fmt.Errorf("tranche: %w: unknown class %d", nativecommon.ErrInvalidConfiguration, uint8(class))
	}
	if amount == nil || amount.Sign() <= 0 {
		return Stack{}, fmt.Errorf("tranche: %w: sale amount must be positive", nativecommon.ErrInvalidConfiguration)
	}
	if err := stack.Validate(); err != nil {
		return Stack{}, err
	}
	for prior := Senior; prior < class; prior++ {
		if !stack.Tranches[prior].FullySold() {
			return Stack{}, fmt.Errorf("tranche: %w: %s requires %s fully sold", nativecommon.ErrInvalidTrancheOrder, class, prior)
		}
	}
	target := stack.Tranches[class]
	if unsold := target.Unsold(); amount.Cmp(unsold) > 0 {
		return Stack{}, fmt.Errorf("tranche: %w: sale %s exceeds unsold %s allocation %s", nativecommon.ErrInvalidConfiguration, fixed.FormatWad(amount), class, fixed.FormatWad(unsold))
	}
	next := stack.Clone()
	next.Tranches[class].AmountSold.Add(next.Tranches[class].AmountSold, amount)
	return next, nil
}

// Allocation reports how a collection was applied. Excess is the part that no
// sold tranche could absorb.
type Allocation struct {
	Senior    *big.Int `json:"senior"`
	Mezzanine *big.Int `json:"mezzanine"`
	Equity    *big.Int `json:"equity"`
	Excess    *big.Int `json:"excess"`
}

// For returns the amount allocated to class.
func (a Allocation) For(class Class) *big.Int {
	switch class {
	case Senior:
		return fixed.Clone(a.Senior)
	case Mezzanine:
		return fixed.Clone(a.Mezzanine)
	case Equity:
		return fixed.Clone(a.Equity)
	default:
		return new(big.Int)
	}
}

// AllocateRepayment applies collections down the waterfall. Each tranche
// absorbs up to its outstanding sold principal before anything flows to the
// next; unsold allocation never receives cash.
func AllocateRepayment(collections *big.Int, stack Stack) (Allocation, Stack, error) {
	if !fixed.NonNegative(collections) {
		return Allocation{}, Stack{}, fmt.Errorf("tranche: %w: collections must be non-negative", nativecommon.ErrInvalidConfiguration)
	}
	if err := stack.Validate(); err != nil {
		return Allocation{}, Stack{}, err
	}
	next := stack.Clone()
	remaining := new(big.Int).Set(collections)
	var paid [3]*big.Int
	for _, class := range Classes {
		t := &next.Tranches[class]
		share := fixed.Min(remaining, t.Outstanding())
		t.AmountRepaid.Add(t.AmountRepaid, share)
		remaining.Sub(remaining, share)
		paid[class] = share
	}
	allocation := Allocation{
		Senior:    paid[Senior],
		Mezzanine: paid[Mezzanine],
		Equity:    paid[Equity],
		Excess:    remaining,
	}
	return allocation, next, nil
}
