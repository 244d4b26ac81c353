package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := NewEngineFromConfig(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func pool(supplied, borrowed int64) Pool {
	return Pool{TotalSupplied: fixed.Units(supplied), TotalBorrowed: fixed.Units(borrowed), Reserves: new(big.Int)}
}

func wadString(v *big.Int) string { return fixed.FormatWad(v) }

func TestQuoteAtSeventyPercentUtilization(t *testing.T) {
	engine := newTestEngine(t, nil)
	quote := engine.Quote(pool(10_000, 7_000))
	if got := wadString(quote.Utilization); got != "0.7" {
		t.Fatalf("utilization: got %s want 0.7", got)
	}
	if got := wadString(quote.BorrowAPY); got != "0.076" {
		t.Fatalf("borrow apy: got %s want 0.076", got)
	}
	if got := wadString(quote.SupplyAPY); got != "0.04788" {
		t.Fatalf("supply apy: got %s want 0.04788", got)
	}
}

func TestBorrowAPYAboveKink(t *testing.T) {
	engine := newTestEngine(t, nil)
	quote := engine.Quote(pool(10_000, 9_000))
	if got := wadString(quote.BorrowAPY); got != "0.144" {
		t.Fatalf("borrow apy above kink: got %s want 0.144", got)
	}
	atKink := engine.Quote(pool(10_000, 8_000))
	if got := wadString(atKink.BorrowAPY); got != "0.084" {
		t.Fatalf("borrow apy at kink: got %s want 0.084", got)
	}
}

func TestUtilizationCappedAtOne(t *testing.T) {
	if got := wadString(Utilization(pool(100, 250))); got != "1" {
		t.Fatalf("over-borrowed utilization: got %s want 1", got)
	}
	if got := wadString(Utilization(pool(100, 100))); got != "1" {
		t.Fatalf("fully borrowed utilization: got %s want 1", got)
	}
}

func TestUtilizationZeroWithoutLiquidity(t *testing.T) {
	if u := Utilization(pool(0, 0)); u.Sign() != 0 {
		t.Fatalf("expected zero utilization, got %s", u)
	}
	engine := newTestEngine(t, nil)
	quote := engine.Quote(pool(0, 0))
	if got := wadString(quote.BorrowAPY); got != "0.02" {
		t.Fatalf("base rate: got %s", got)
	}
	if quote.SupplyAPY.Sign() != 0 {
		t.Fatalf("supply apy should be zero, got %s", quote.SupplyAPY)
	}
}

func TestBorrowAPYMonotonicInUtilization(t *testing.T) {
	engine := newTestEngine(t, nil)
	prev := big.NewInt(-1)
	prevUtil := big.NewInt(-1)
	for borrowed := int64(0); borrowed <= 1_000; borrowed += 5 {
		util := Utilization(pool(1_000, borrowed))
		if util.Cmp(prevUtil) < 0 {
			t.Fatalf("utilization decreased at borrowed=%d: %s < %s", borrowed, util, prevUtil)
		}
		if util.Cmp(fixed.Wad) > 0 {
			t.Fatalf("utilization %s above one at borrowed=%d", util, borrowed)
		}
		prevUtil = util
		quote := engine.Quote(pool(1_000, borrowed))
		if quote.BorrowAPY.Cmp(prev) < 0 {
			t.Fatalf("borrow apy decreased at borrowed=%d: %s < %s", borrowed, quote.BorrowAPY, prev)
		}
		if quote.SupplyAPY.Cmp(quote.BorrowAPY) > 0 {
			t.Fatalf("supply apy %s exceeds borrow apy %s", quote.SupplyAPY, quote.BorrowAPY)
		}
		prev = quote.BorrowAPY
	}
}

func TestMaxBorrowableAndCollateralCheck(t *testing.T) {
	engine := newTestEngine(t, nil)
	if got := wadString(engine.MaxBorrowable(fixed.Units(300))); got != "150" {
		t.Fatalf("max borrowable: got %s want 150", got)
	}
	_, _, err := engine.OpenPosition(fixed.Units(300), fixed.Units(200), pool(10_000, 7_000), time.Unix(0, 0))
	if !errors.Is(err, nativecommon.ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}
}

func TestOpenPositionUpdatesPool(t *testing.T) {
	engine := newTestEngine(t, nil)
	start := pool(10_000, 7_000)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	position, next, err := engine.OpenPosition(fixed.Units(300), fixed.Units(150), start, now)
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	if got := wadString(next.TotalBorrowed); got != "7150" {
		t.Fatalf("pool borrowed: got %s want 7150", got)
	}
	if got := wadString(start.TotalBorrowed); got != "7000" {
		t.Fatalf("input pool mutated: %s", got)
	}
	if got := wadString(position.APYAtOrigination); got != "0.0772" {
		t.Fatalf("origination apy: got %s want 0.0772", got)
	}
	if !position.OpenedAt.Equal(now) || !position.LastAccrual.Equal(now) {
		t.Fatalf("unexpected timestamps: %v %v", position.OpenedAt, position.LastAccrual)
	}
	if position.AccruedInterest.Sign() != 0 {
		t.Fatalf("fresh position should carry no interest")
	}
}

func TestOpenPositionUtilizationCeiling(t *testing.T) {
	engine := newTestEngine(t, nil)
	if _, _, err := engine.OpenPosition(fixed.Units(200), fixed.Units(100), pool(1_000, 900), time.Time{}); !errors.Is(err, nativecommon.ErrExceedsMaxUtilization) {
		t.Fatalf("expected exceeds max utilization, got %v", err)
	}
	if _, _, err := engine.OpenPosition(fixed.Units(200), fixed.Units(100), pool(1_000, 850), time.Time{}); err != nil {
		t.Fatalf("borrow landing exactly on the ceiling should pass: %v", err)
	}
	if _, _, err := engine.OpenPosition(fixed.Units(200), fixed.Units(1), pool(0, 0), time.Time{}); !errors.Is(err, nativecommon.ErrExceedsMaxUtilization) {
		t.Fatalf("expected exceeds max utilization on empty pool, got %v", err)
	}
}

func TestOpenPositionRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(t, nil)
	cases := map[string]struct {
		collateral *big.Int
		borrow     *big.Int
		pool       Pool
	}{
		"zero collateral":   {big.NewInt(0), fixed.Units(1), pool(100, 0)},
		"zero borrow":       {fixed.Units(10), big.NewInt(0), pool(100, 0)},
		"negative borrow":   {fixed.Units(10), big.NewInt(-1), pool(100, 0)},
		"borrowed>supplied": {fixed.Units(10), fixed.Units(1), pool(100, 200)},
		"nil pool fields":   {fixed.Units(10), fixed.Units(1), Pool{}},
	}
	for name, tc := range cases {
		if _, _, err := engine.OpenPosition(tc.collateral, tc.borrow, tc.pool, time.Time{}); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
			t.Fatalf("%s: expected invalid configuration, got %v", name, err)
		}
	}
}

func TestAccrueInterestLinear(t *testing.T) {
	engine := newTestEngine(t, nil)
	position := Position{
		CollateralAmount: fixed.Units(2_000),
		BorrowedAmount:   fixed.Units(1_000),
		AccruedInterest:  new(big.Int),
	}
	apy := fixed.MustParseWad("0.1")
	accrued, err := engine.AccrueInterest(position, Year, apy)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if got := wadString(accrued.AccruedInterest); got != "100" {
		t.Fatalf("linear interest: got %s want 100", got)
	}
	// Linear accrual does not charge interest on interest.
	again, err := engine.AccrueInterest(accrued, Year, apy)
	if err != nil {
		t.Fatalf("accrue again: %v", err)
	}
	if got := wadString(again.AccruedInterest); got != "200" {
		t.Fatalf("second year: got %s want 200", got)
	}
	if position.AccruedInterest.Sign() != 0 {
		t.Fatalf("input position mutated")
	}
	if _, err := engine.AccrueInterest(position, -time.Second, apy); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for negative elapsed, got %v", err)
	}
	zero, err := engine.AccrueInterest(position, 0, apy)
	if err != nil || zero.AccruedInterest.Sign() != 0 {
		t.Fatalf("zero elapsed should accrue nothing: %v %v", zero.AccruedInterest, err)
	}
}

func TestAccrueInterestCompound(t *testing.T) {
	linear := newTestEngine(t, nil)
	compound := newTestEngine(t, func(cfg *Config) { cfg.Accrual = AccrualCompound })
	position := Position{
		CollateralAmount: fixed.Units(2_000),
		BorrowedAmount:   fixed.Units(1_000),
		AccruedInterest:  new(big.Int),
	}
	apy := fixed.MustParseWad("0.1")
	simple, err := linear.AccrueInterest(position, Year, apy)
	if err != nil {
		t.Fatalf("linear accrue: %v", err)
	}
	compounded, err := compound.AccrueInterest(position, Year, apy)
	if err != nil {
		t.Fatalf("compound accrue: %v", err)
	}
	if compounded.AccruedInterest.Cmp(simple.AccruedInterest) <= 0 {
		t.Fatalf("compound interest %s should exceed linear %s", compounded.AccruedInterest, simple.AccruedInterest)
	}
	// Daily compounding at 10% APR is roughly 10.5156%.
	if compounded.AccruedInterest.Cmp(fixed.MustParseWad("105.1")) < 0 || compounded.AccruedInterest.Cmp(fixed.MustParseWad("105.2")) > 0 {
		t.Fatalf("compound interest out of range: %s", wadString(compounded.AccruedInterest))
	}
	short, err := compound.AccrueInterest(position, 12*time.Hour, apy)
	if err != nil {
		t.Fatalf("partial period: %v", err)
	}
	shortLinear, _ := linear.AccrueInterest(position, 12*time.Hour, apy)
	if short.AccruedInterest.Cmp(shortLinear.AccruedInterest) != 0 {
		t.Fatalf("partial period should accrue linearly: %s vs %s", short.AccruedInterest, shortLinear.AccruedInterest)
	}
}

func TestAccrueToUsesOriginationAPY(t *testing.T) {
	engine := newTestEngine(t, nil)
	opened := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	position := Position{
		CollateralAmount: fixed.Units(2_000),
		BorrowedAmount:   fixed.Units(1_000),
		APYAtOrigination: fixed.MustParseWad("0.05"),
		OpenedAt:         opened,
		LastAccrual:      opened,
		AccruedInterest:  new(big.Int),
	}
	later := opened.Add(Year)
	accrued, err := engine.AccrueTo(position, later)
	if err != nil {
		t.Fatalf("accrue to: %v", err)
	}
	if got := wadString(accrued.AccruedInterest); got != "50" {
		t.Fatalf("interest: got %s want 50", got)
	}
	if !accrued.LastAccrual.Equal(later) {
		t.Fatalf("last accrual not advanced: %v", accrued.LastAccrual)
	}
	if _, err := engine.AccrueTo(accrued, opened); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected error when accruing backwards, got %v", err)
	}
}

func repayFixture(t *testing.T, engine *Engine) (Position, Pool) {
	t.Helper()
	position := Position{
		CollateralAmount: fixed.Units(400),
		BorrowedAmount:   fixed.Units(100),
		APYAtOrigination: fixed.MustParseWad("0.1"),
		AccruedInterest:  new(big.Int),
	}
	accrued, err := engine.AccrueInterest(position, Year, position.APYAtOrigination)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	return accrued, pool(1_000, 100)
}

func TestRepayPartialPaysInterestFirst(t *testing.T) {
	engine := newTestEngine(t, nil)
	position, start := repayFixture(t, engine)
	result, next, err := engine.Repay(position, fixed.Units(30), start)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if result.Closed || result.Position == nil {
		t.Fatalf("partial repay should keep the position open")
	}
	if got := wadString(result.InterestPaid); got != "10" {
		t.Fatalf("interest paid: got %s want 10", got)
	}
	if got := wadString(result.PrincipalPaid); got != "20" {
		t.Fatalf("principal paid: got %s want 20", got)
	}
	if result.Refund.Sign() != 0 {
		t.Fatalf("unexpected refund %s", result.Refund)
	}
	if got := wadString(result.Position.BorrowedAmount); got != "80" {
		t.Fatalf("remaining principal: got %s want 80", got)
	}
	if result.Position.AccruedInterest.Sign() != 0 {
		t.Fatalf("interest should be cleared")
	}
	if got := wadString(next.TotalBorrowed); got != "80" {
		t.Fatalf("pool borrowed: got %s want 80", got)
	}
	if got := wadString(next.Reserves); got != "1" {
		t.Fatalf("reserves: got %s want 1", got)
	}
	if got := wadString(next.TotalSupplied); got != "1009" {
		t.Fatalf("supplied: got %s want 1009", got)
	}
	if limit := engine.MaxBorrowable(result.Position.CollateralAmount); result.Position.BorrowedAmount.Cmp(limit) > 0 {
		t.Fatalf("collateral invariant violated after repay")
	}
}

func TestRepayInterestOnly(t *testing.T) {
	engine := newTestEngine(t, nil)
	position, start := repayFixture(t, engine)
	result, next, err := engine.Repay(position, fixed.Units(4), start)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if result.PrincipalPaid.Sign() != 0 {
		t.Fatalf("principal should be untouched, paid %s", result.PrincipalPaid)
	}
	if got := wadString(result.Position.AccruedInterest); got != "6" {
		t.Fatalf("remaining interest: got %s want 6", got)
	}
	if got := wadString(next.TotalBorrowed); got != "100" {
		t.Fatalf("pool borrowed changed: %s", got)
	}
}

func TestRepayFullClosesAndRefunds(t *testing.T) {
	engine := newTestEngine(t, nil)
	position, start := repayFixture(t, engine)
	result, next, err := engine.Repay(position, fixed.Units(200), start)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !result.Closed || result.Position != nil {
		t.Fatalf("full repay should close the position")
	}
	if got := wadString(result.Refund); got != "90" {
		t.Fatalf("refund: got %s want 90", got)
	}
	if got := wadString(result.PrincipalPaid); got != "100" {
		t.Fatalf("principal paid: got %s want 100", got)
	}
	if next.TotalBorrowed.Sign() != 0 {
		t.Fatalf("pool borrowed should be zero, got %s", next.TotalBorrowed)
	}
	exact, _, err := engine.Repay(position, fixed.Units(110), start)
	if err != nil || !exact.Closed || exact.Refund.Sign() != 0 {
		t.Fatalf("exact repay: closed=%v refund=%v err=%v", exact.Closed, exact.Refund, err)
	}
}

func TestRepayRejectsMismatchedPool(t *testing.T) {
	engine := newTestEngine(t, nil)
	position, _ := repayFixture(t, engine)
	if _, _, err := engine.Repay(position, fixed.Units(200), pool(1_000, 50)); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
	if _, _, err := engine.Repay(position, big.NewInt(0), pool(1_000, 100)); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for zero repay, got %v", err)
	}
}

func TestSupplyAndWithdraw(t *testing.T) {
	engine := newTestEngine(t, nil)
	next, err := engine.Supply(NewPool(), fixed.Units(500))
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	_, next, err = engine.OpenPosition(fixed.Units(400), fixed.Units(200), next, time.Time{})
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := engine.Withdraw(next, fixed.Units(301)); !errors.Is(err, nativecommon.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	after, err := engine.Withdraw(next, fixed.Units(300))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := wadString(after.TotalSupplied); got != "200" {
		t.Fatalf("supplied: got %s want 200", got)
	}
}

func TestHealthRatio(t *testing.T) {
	engine := newTestEngine(t, nil)
	position := Position{CollateralAmount: fixed.Units(300), BorrowedAmount: fixed.Units(100), AccruedInterest: fixed.Units(20)}
	ratio, ok := engine.HealthRatio(position)
	if !ok {
		t.Fatalf("expected health ratio")
	}
	if got := wadString(ratio); got != "1.25" {
		t.Fatalf("health ratio: got %s want 1.25", got)
	}
	if _, ok := engine.HealthRatio(Position{CollateralAmount: fixed.Units(1)}); ok {
		t.Fatalf("debt-free position should report no ratio")
	}
}
