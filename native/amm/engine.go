package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// QuoteSwap returns the output amount for an exact input swap, matching the
// venue's getAmountOut:
//
//	amountInWithFee = amountIn * (10000 - feeBps)
//	amountOut       = amountInWithFee * reserveOut / (reserveIn*10000 + amountInWithFee)
//
// which is reserveOut - reserveIn*reserveOut/(reserveIn + amountInAfterFee)
// with the output rounded down, so the pool never pays out more than the
// constant product allows.
func QuoteSwap(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if err := present(amountIn, reserveIn, reserveOut); err != nil {
		return nil, err
	}
	multiplier, err := feeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("amm: %w: empty reserves", nativecommon.ErrInsufficientLiquidity)
	}
	amountInWithFee, err := mul(amountIn, multiplier, "amount in with fee")
	if err != nil {
		return nil, err
	}
	numerator, err := mul(amountInWithFee, reserveOut, "swap numerator")
	if err != nil {
		return nil, err
	}
	scaledReserve, err := mul(reserveIn, feeDenominator, "scaled reserve in")
	if err != nil {
		return nil, err
	}
	denominator, err := add(scaledReserve, amountInWithFee, "swap denominator")
	if err != nil {
		return nil, err
	}
	amountOut := new(uint256.Int).Div(numerator, denominator)
	if amountOut.IsZero() {
		return nil, fmt.Errorf("amm: %w", nativecommon.ErrInsufficientOutput)
	}
	return amountOut, nil
}

// QuoteAmountIn returns the input required to receive exactly amountOut,
// matching the venue's getAmountIn. The result is rounded up by one unit.
func QuoteAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if err := present(amountOut, reserveIn, reserveOut); err != nil {
		return nil, err
	}
	multiplier, err := feeMultiplier(feeBps)
	if err != nil {
		return nil, err
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("amm: %w: empty reserves", nativecommon.ErrInsufficientLiquidity)
	}
	if amountOut.IsZero() {
		return nil, fmt.Errorf("amm: %w", nativecommon.ErrInsufficientOutput)
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("amm: %w: %s requested from reserve %s", nativecommon.ErrExcessiveOutputAmount, amountOut.Dec(), reserveOut.Dec())
	}
	scaledIn, err := mul(reserveIn, amountOut, "amount in numerator")
	if err != nil {
		return nil, err
	}
	numerator, err := mul(scaledIn, feeDenominator, "amount in numerator")
	if err != nil {
		return nil, err
	}
	remaining := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator, err := mul(remaining, multiplier, "amount in denominator")
	if err != nil {
		return nil, err
	}
	amountIn := new(uint256.Int).Div(numerator, denominator)
	return add(amountIn, one, "amount in rounding")
}

// AddLiquidity sizes a deposit against the pool. The first deposit fixes the
// ratio and mints sqrt(amountA*amountB). Later deposits are capped to the
// current ratio; the unused excess of the non-binding asset is reported as a
// refund and LP shares are minted proportionally to the binding asset.
func AddLiquidity(amountADesired, amountBDesired *uint256.Int, pool ReservePool) (LiquidityResult, error) {
	if err := present(amountADesired, amountBDesired); err != nil {
		return LiquidityResult{}, err
	}
	pool = pool.Clone()
	result := LiquidityResult{RefundA: new(uint256.Int), RefundB: new(uint256.Int)}

	if pool.TotalLPSupply.IsZero() {
		if !pool.ReserveA.IsZero() || !pool.ReserveB.IsZero() {
			return LiquidityResult{}, fmt.Errorf("amm: %w: reserves without lp supply", nativecommon.ErrInvalidConfiguration)
		}
		product, err := mul(amountADesired, amountBDesired, "initial liquidity")
		if err != nil {
			return LiquidityResult{}, err
		}
		result.AmountA = new(uint256.Int).Set(amountADesired)
		result.AmountB = new(uint256.Int).Set(amountBDesired)
		result.LPMinted = new(uint256.Int).Sqrt(product)
	} else {
		if pool.ReserveA.IsZero() || pool.ReserveB.IsZero() {
			return LiquidityResult{}, fmt.Errorf("amm: %w: empty reserves", nativecommon.ErrInsufficientLiquidity)
		}
		amountBOptimal, err := mulDiv(amountADesired, pool.ReserveB, pool.ReserveA, "optimal amount b")
		if err != nil {
			return LiquidityResult{}, err
		}
		if !amountBOptimal.Gt(amountBDesired) {
			result.AmountA = new(uint256.Int).Set(amountADesired)
			result.AmountB = amountBOptimal
		} else {
			amountAOptimal, err := mulDiv(amountBDesired, pool.ReserveA, pool.ReserveB, "optimal amount a")
			if err != nil {
				return LiquidityResult{}, err
			}
			result.AmountA = amountAOptimal
			result.AmountB = new(uint256.Int).Set(amountBDesired)
		}
		fromA, err := mulDiv(result.AmountA, pool.TotalLPSupply, pool.ReserveA, "lp from a")
		if err != nil {
			return LiquidityResult{}, err
		}
		fromB, err := mulDiv(result.AmountB, pool.TotalLPSupply, pool.ReserveB, "lp from b")
		if err != nil {
			return LiquidityResult{}, err
		}
		result.LPMinted = minInt(fromA, fromB)
	}
	if result.LPMinted.IsZero() {
		return LiquidityResult{}, fmt.Errorf("amm: %w: deposit mints no lp shares", nativecommon.ErrInsufficientLiquidity)
	}
	result.RefundA = new(uint256.Int).Sub(amountADesired, result.AmountA)
	result.RefundB = new(uint256.Int).Sub(amountBDesired, result.AmountB)

	next, err := pool.ApplyAdd(result.AmountA, result.AmountB, result.LPMinted)
	if err != nil {
		return LiquidityResult{}, err
	}
	result.Pool = next
	return result, nil
}

// RemoveLiquidity burns lpBurned shares and returns the strictly proportional
// slice of both reserves.
func RemoveLiquidity(lpBurned *uint256.Int, pool ReservePool) (RemoveResult, error) {
	if err := present(lpBurned); err != nil {
		return RemoveResult{}, err
	}
	pool = pool.Clone()
	if pool.TotalLPSupply.IsZero() {
		return RemoveResult{}, fmt.Errorf("amm: %w: pool has no lp supply", nativecommon.ErrInsufficientLiquidity)
	}
	if lpBurned.Gt(pool.TotalLPSupply) {
		return RemoveResult{}, fmt.Errorf("amm: %w: burn %s exceeds supply %s", nativecommon.ErrInsufficientLiquidity, lpBurned.Dec(), pool.TotalLPSupply.Dec())
	}
	amountA, err := mulDiv(pool.ReserveA, lpBurned, pool.TotalLPSupply, "remove amount a")
	if err != nil {
		return RemoveResult{}, err
	}
	amountB, err := mulDiv(pool.ReserveB, lpBurned, pool.TotalLPSupply, "remove amount b")
	if err != nil {
		return RemoveResult{}, err
	}
	if amountA.IsZero() || amountB.IsZero() {
		return RemoveResult{}, fmt.Errorf("amm: %w: burn too small", nativecommon.ErrInsufficientOutput)
	}
	next, err := pool.ApplyRemove(lpBurned, amountA, amountB)
	if err != nil {
		return RemoveResult{}, err
	}
	return RemoveResult{AmountA: amountA, AmountB: amountB, LPBurned: new(uint256.Int).Set(lpBurned), Pool: next}, nil
}

// Swap quotes an exact-input swap against the pool and returns the resulting
// snapshot. aForB selects the direction (A in, B out).
func Swap(pool ReservePool, aForB bool, amountIn *uint256.Int, feeBps uint64) (SwapResult, error) {
	pool = pool.Clone()
	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	if !aForB {
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}
	amountOut, err := QuoteSwap(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return SwapResult{}, err
	}
	next, err := pool.ApplySwap(aForB, amountIn, amountOut)
	if err != nil {
		return SwapResult{}, err
	}
	return SwapResult{AmountIn: new(uint256.Int).Set(amountIn), AmountOut: amountOut, Pool: next}, nil
}

// VerifySwap applies the venue's swap(amount0Out, amount1Out, to, data) checks
// to a set of observed transfers: outputs must stay below reserves and the
// fee-adjusted balances must preserve the constant product. It returns the
// post-swap snapshot.
func VerifySwap(pool ReservePool, amountAIn, amountBIn, amountAOut, amountBOut *uint256.Int, feeBps uint64) (ReservePool, error) {
	if err := present(amountAIn, amountBIn, amountAOut, amountBOut); err != nil {
		return ReservePool{}, err
	}
	if _, err := feeMultiplier(feeBps); err != nil {
		return ReservePool{}, err
	}
	pool = pool.Clone()
	if amountAOut.IsZero() && amountBOut.IsZero() {
		return ReservePool{}, fmt.Errorf("amm: %w", nativecommon.ErrInsufficientOutput)
	}
	if !amountAOut.Lt(pool.ReserveA) || !amountBOut.Lt(pool.ReserveB) {
		return ReservePool{}, fmt.Errorf("amm: %w: output meets or exceeds reserves", nativecommon.ErrInsufficientLiquidity)
	}
	balanceA, err := add(pool.ReserveA, amountAIn, "balance a")
	if err != nil {
		return ReservePool{}, err
	}
	balanceA.Sub(balanceA, amountAOut)
	balanceB, err := add(pool.ReserveB, amountBIn, "balance b")
	if err != nil {
		return ReservePool{}, err
	}
	balanceB.Sub(balanceB, amountBOut)

	fee := uint256.NewInt(feeBps)
	adjustedA, err := adjustedBalance(balanceA, amountAIn, fee)
	if err != nil {
		return ReservePool{}, err
	}
	adjustedB, err := adjustedBalance(balanceB, amountBIn, fee)
	if err != nil {
		return ReservePool{}, err
	}
	after, afterOver := new(uint256.Int).MulOverflow(adjustedA, adjustedB)
	k, err := mul(pool.ReserveA, pool.ReserveB, "k")
	if err != nil {
		return ReservePool{}, err
	}
	scale := new(uint256.Int).Mul(feeDenominator, feeDenominator)
	before, err := mul(k, scale, "scaled k")
	if err != nil {
		return ReservePool{}, err
	}
	if afterOver {
		return ReservePool{}, overflow("adjusted product")
	}
	if after.Lt(before) {
		return ReservePool{}, fmt.Errorf("amm: %w: constant product violated", nativecommon.ErrExcessiveOutputAmount)
	}
	pool.ReserveA = balanceA
	pool.ReserveB = balanceB
	return pool, nil
}

func adjustedBalance(balance, amountIn, fee *uint256.Int) (*uint256.Int, error) {
	scaled, err := mul(balance, feeDenominator, "adjusted balance")
	if err != nil {
		return nil, err
	}
	charged, err := mul(amountIn, fee, "fee charged")
	if err != nil {
		return nil, err
	}
	return sub(scaled, charged, "adjusted balance")
}

// SpotPrice returns reserveB per unit of reserveA as a wad ratio.
func SpotPrice(pool ReservePool) (*uint256.Int, error) {
	pool = pool.Clone()
	if pool.ReserveA.IsZero() || pool.ReserveB.IsZero() {
		return nil, fmt.Errorf("amm: %w: empty reserves", nativecommon.ErrInsufficientLiquidity)
	}
	wad, _ := uint256.FromBig(fixed.Wad)
	return mulDiv(pool.ReserveB, wad, pool.ReserveA, "spot price")
}

// ApplySwap returns the snapshot after amountIn entered and amountOut left.
func (p ReservePool) ApplySwap(aForB bool, amountIn, amountOut *uint256.Int) (ReservePool, error) {
	next := p.Clone()
	in, out := &next.ReserveA, &next.ReserveB
	if !aForB {
		in, out = &next.ReserveB, &next.ReserveA
	}
	credited, err := add(*in, amountIn, "apply swap input")
	if err != nil {
		return ReservePool{}, err
	}
	if !amountOut.Lt(*out) {
		return ReservePool{}, fmt.Errorf("amm: %w: output drains reserve", nativecommon.ErrInsufficientLiquidity)
	}
	*in = credited
	*out = new(uint256.Int).Sub(*out, amountOut)
	return next, nil
}

// ApplyAdd returns the snapshot after a deposit.
func (p ReservePool) ApplyAdd(amountA, amountB, lpMinted *uint256.Int) (ReservePool, error) {
	next := p.Clone()
	var err error
	if next.ReserveA, err = add(next.ReserveA, amountA, "apply add a"); err != nil {
		return ReservePool{}, err
	}
	if next.ReserveB, err = add(next.ReserveB, amountB, "apply add b"); err != nil {
		return ReservePool{}, err
	}
	if next.TotalLPSupply, err = add(next.TotalLPSupply, lpMinted, "apply add lp"); err != nil {
		return ReservePool{}, err
	}
	return next, nil
}

// ApplyRemove returns the snapshot after a withdrawal.
func (p ReservePool) ApplyRemove(lpBurned, amountA, amountB *uint256.Int) (ReservePool, error) {
	next := p.Clone()
	var err error
	if next.ReserveA, err = sub(next.ReserveA, amountA, "apply remove a"); err != nil {
		return ReservePool{}, err
	}
	if next.ReserveB, err = sub(next.ReserveB, amountB, "apply remove b"); err != nil {
		return ReservePool{}, err
	}
	if next.TotalLPSupply, err = sub(next.TotalLPSupply, lpBurned, "apply remove lp"); err != nil {
		return ReservePool{}, err
	}
	return next, nil
}
