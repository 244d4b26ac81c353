package lending

import (
	"math/big"
	"time"

	"campusfi/native/fixed"
)

var (
	wad     = fixed.Wad
	halfWad = new(big.Int).Rsh(fixed.Wad, 1)
	// secondsPerYear uses a 365 day year.
	secondsPerYear = big.NewInt(365 * 24 * 60 * 60)
)

// Year is the accrual year length.
const Year = 365 * 24 * time.Hour

// linearInterest returns principal * apy * elapsed / year rounded half up.
func linearInterest(principal, apy *big.Int, elapsed time.Duration) *big.Int {
	if principal == nil || principal.Sign() == 0 || apy == nil || apy.Sign() == 0 || elapsed <= 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(principal, apy)
	numerator.Mul(numerator, big.NewInt(int64(elapsed/time.Second)))
	denominator := new(big.Int).Mul(wad, secondsPerYear)
	numerator.Add(numerator, halfUp(denominator))
	return numerator.Quo(numerator, denominator)
}

// periodRate converts an annual rate into the wad rate for one period.
func periodRate(apy *big.Int, period time.Duration) *big.Int {
	if apy == nil || apy.Sign() == 0 || period <= 0 {
		return big.NewInt(0)
	}
	rate := new(big.Int).Mul(apy, big.NewInt(int64(period/time.Second)))
	rate.Add(rate, halfUp(secondsPerYear))
	return rate.Quo(rate, secondsPerYear)
}

// wadPow raises a wad base to an integer power by repeated squaring.
func wadPow(base *big.Int, exp uint64) *big.Int {
	result := new(big.Int).Set(wad)
	b := new(big.Int).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result = wadMul(result, b)
		}
		exp >>= 1
		if exp > 0 {
			b = wadMul(b, b)
		}
	}
	return result
}

func wadMul(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfWad)
	return product.Quo(product, wad)
}

// compoundInterest compounds base once per full period and accrues the
// remaining partial period linearly. It returns only the interest portion.
func compoundInterest(base, apy *big.Int, elapsed, period time.Duration) *big.Int {
	if base == nil || base.Sign() == 0 || apy == nil || apy.Sign() == 0 || elapsed <= 0 || period <= 0 {
		return big.NewInt(0)
	}
	periods := uint64(elapsed / period)
	remainder := elapsed % period
	factor := wadPow(new(big.Int).Add(wad, periodRate(apy, period)), periods)
	grown := wadMul(base, factor)
	grown.Add(grown, linearInterest(grown, apy, remainder))
	return grown.Sub(grown, base)
}

func halfUp(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return big.NewInt(0)
	}
	half := new(big.Int).Add(x, big.NewInt(1))
	half.Rsh(half, 1)
	return half
}
