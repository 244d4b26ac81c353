package tranche

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

func poolOf(values ...int64) ReceivablesPool {
	pool := ReceivablesPool{
		Name:         "spring-tuition",
		IssueDate:    time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		MaturityDate: time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC),
		Collected:    new(big.Int),
	}
	for i, v := range values {
		pool.Obligors = append(pool.Obligors, Obligor{
			Address:         common.BigToAddress(big.NewInt(int64(i + 1))),
			PrincipalOwed:   fixed.Units(v),
			ReputationScore: 700,
		})
	}
	return pool
}

func mustBuild(t *testing.T, pool ReceivablesPool) Stack {
	t.Helper()
	stack, err := BuildTranches(pool, DefaultSplits())
	if err != nil {
		t.Fatalf("build tranches: %v", err)
	}
	return stack
}

func mustSell(t *testing.T, stack Stack, class Class, amount *big.Int) Stack {
	t.Helper()
	next, err := Sell(stack, class, amount)
	if err != nil {
		t.Fatalf("sell %s %s: %v", class, amount, err)
	}
	return next
}

func TestBuildTranchesSplitsPoolValue(t *testing.T) {
	stack := mustBuild(t, poolOf(600_000, 400_000))
	want := map[Class]string{Senior: "700000", Mezzanine: "200000", Equity: "100000"}
	for class, amount := range want {
		if got := fixed.FormatWad(stack.Tranche(class).TotalAllocation); got != amount {
			t.Fatalf("%s allocation: got %s want %s", class, got, amount)
		}
	}
	if stack.SeriesID != SeriesID("spring-tuition", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("series id not derived from issue metadata")
	}
}

func TestBuildTranchesEquityAbsorbsDust(t *testing.T) {
	pool := poolOf()
	pool.Obligors = []Obligor{{PrincipalOwed: big.NewInt(999)}}
	stack := mustBuild(t, pool)
	if got := stack.Tranches[Senior].TotalAllocation.Int64(); got != 699 {
		t.Fatalf("senior: got %d want 699", got)
	}
	if got := stack.Tranches[Mezzanine].TotalAllocation.Int64(); got != 199 {
		t.Fatalf("mezzanine: got %d want 199", got)
	}
	if got := stack.Tranches[Equity].TotalAllocation.Int64(); got != 101 {
		t.Fatalf("equity: got %d want 101", got)
	}
	if stack.TotalAllocation().Int64() != 999 {
		t.Fatalf("allocations must sum to pool value")
	}
}

func TestBuildTranchesRejectsBadSplits(t *testing.T) {
	_, err := BuildTranches(poolOf(100), Splits{SeniorBps: 7_000, MezzanineBps: 2_000, EquityBps: 500})
	if !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
	bad := poolOf(100)
	bad.Obligors[0].PrincipalOwed = big.NewInt(-5)
	if _, err := BuildTranches(bad, DefaultSplits()); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for negative principal, got %v", err)
	}
}

func TestSellRequiresSeniorFirst(t *testing.T) {
	stack := mustBuild(t, poolOf(1_000_000))
	if _, err := Sell(stack, Mezzanine, fixed.Units(100_000)); !errors.Is(err, nativecommon.ErrInvalidTrancheOrder) {
		t.Fatalf("expected invalid tranche order, got %v", err)
	}
	stack = mustSell(t, stack, Senior, fixed.Units(700_000))
	stack = mustSell(t, stack, Mezzanine, fixed.Units(100_000))
	if got := fixed.FormatWad(stack.Tranches[Mezzanine].AmountSold); got != "100000" {
		t.Fatalf("mezzanine sold: got %s", got)
	}
	if _, err := Sell(stack, Equity, fixed.Units(1)); !errors.Is(err, nativecommon.ErrInvalidTrancheOrder) {
		t.Fatalf("equity before mezzanine complete: got %v", err)
	}
	stack = mustSell(t, stack, Mezzanine, fixed.Units(100_000))
	stack = mustSell(t, stack, Equity, fixed.Units(100_000))
	if err := stack.Validate(); err != nil {
		t.Fatalf("fully sold stack invalid: %v", err)
	}
}

func TestSellRejectsOversellAndLeavesInputUntouched(t *testing.T) {
	stack := mustBuild(t, poolOf(1_000))
	if _, err := Sell(stack, Senior, fixed.Units(701)); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
	if _, err := Sell(stack, Senior, big.NewInt(0)); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for zero sale, got %v", err)
	}
	next := mustSell(t, stack, Senior, fixed.Units(10))
	if stack.Tranches[Senior].AmountSold.Sign() != 0 {
		t.Fatalf("input stack mutated")
	}
	if next.Tranches[Senior].AmountSold.Cmp(fixed.Units(10)) != 0 {
		t.Fatalf("sale not recorded")
	}
}

func TestAllocateRepaymentWaterfall(t *testing.T) {
	stack := mustBuild(t, poolOf(1_000_000))
	stack = mustSell(t, stack, Senior, fixed.Units(700_000))
	stack = mustSell(t, stack, Mezzanine, fixed.Units(200_000))

	allocation, next, err := AllocateRepayment(fixed.Units(800_000), stack)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := fixed.FormatWad(allocation.Senior); got != "700000" {
		t.Fatalf("senior repaid: got %s", got)
	}
	if got := fixed.FormatWad(allocation.Mezzanine); got != "100000" {
		t.Fatalf("mezzanine repaid: got %s", got)
	}
	if allocation.Equity.Sign() != 0 || allocation.Excess.Sign() != 0 {
		t.Fatalf("equity and excess should be untouched: %s %s", allocation.Equity, allocation.Excess)
	}
	if !next.Tranches[Senior].FullyRepaid() {
		t.Fatalf("senior should be fully repaid")
	}
	if got := fixed.FormatWad(next.Tranches[Mezzanine].Outstanding()); got != "100000" {
		t.Fatalf("mezzanine outstanding: got %s", got)
	}
	if next.Tranches[Equity].AmountRepaid.Sign() != 0 {
		t.Fatalf("equity repaid before mezzanine")
	}
}

func TestAllocateRepaymentReportsExcess(t *testing.T) {
	stack := mustBuild(t, poolOf(1_000))
	stack = mustSell(t, stack, Senior, fixed.Units(300))

	allocation, next, err := AllocateRepayment(fixed.Units(500), stack)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := fixed.FormatWad(allocation.Senior); got != "300" {
		t.Fatalf("senior: got %s", got)
	}
	if got := fixed.FormatWad(allocation.Excess); got != "200" {
		t.Fatalf("excess: got %s", got)
	}
	if next.Tranches[Mezzanine].AmountRepaid.Sign() != 0 {
		t.Fatalf("unsold mezzanine received cash")
	}
	if _, _, err := AllocateRepayment(big.NewInt(-1), stack); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration for negative collections, got %v", err)
	}
}

func TestRandomSellSequencesPreserveSubordination(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		pool := poolOf()
		pool.Obligors = []Obligor{{PrincipalOwed: big.NewInt(1_000)}}
		stack := mustBuild(t, pool)
		for step := 0; step < 40; step++ {
			class := Classes[rng.Intn(len(Classes))]
			amount := big.NewInt(int64(rng.Intn(300) + 1))
			seniorsSold := true
			for prior := Senior; prior < class; prior++ {
				seniorsSold = seniorsSold && stack.Tranches[prior].FullySold()
			}
			next, err := Sell(stack, class, amount)
			if err != nil {
				if !seniorsSold && !errors.Is(err, nativecommon.ErrInvalidTrancheOrder) {
					t.Fatalf("run %d step %d: out of order sale returned %v", run, step, err)
				}
				if seniorsSold && !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
					t.Fatalf("run %d step %d: unexpected error %v", run, step, err)
				}
				continue
			}
			if !seniorsSold {
				t.Fatalf("run %d step %d: %s sold before senior tranches complete", run, step, class)
			}
			if err := next.Validate(); err != nil {
				t.Fatalf("run %d step %d: invariant broken: %v", run, step, err)
			}
			stack = next
		}
	}
}

func TestRandomCollectionsRespectPriority(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 100; run++ {
		pool := poolOf()
		pool.Obligors = []Obligor{{PrincipalOwed: big.NewInt(10_000)}}
		stack := mustBuild(t, pool)
		stack = mustSell(t, stack, Senior, big.NewInt(7_000))
		stack = mustSell(t, stack, Mezzanine, big.NewInt(int64(rng.Intn(2_000)+1)))
		for step := 0; step < 20; step++ {
			collections := big.NewInt(int64(rng.Intn(1_500)))
			before := stack.Clone()
			allocation, next, err := AllocateRepayment(collections, stack)
			if err != nil {
				t.Fatalf("allocate: %v", err)
			}
			sum := new(big.Int).Add(allocation.Senior, allocation.Mezzanine)
			sum.Add(sum, allocation.Equity).Add(sum, allocation.Excess)
			if sum.Cmp(collections) != 0 {
				t.Fatalf("allocation %v does not sum to %s", allocation, collections)
			}
			if allocation.Mezzanine.Sign() > 0 && before.Tranches[Senior].Outstanding().Cmp(allocation.Senior) != 0 {
				t.Fatalf("mezzanine paid before senior outstanding exhausted")
			}
			if err := next.Validate(); err != nil {
				t.Fatalf("run %d step %d: %v", run, step, err)
			}
			stack = next
		}
	}
}

func TestStackValidateDetectsOrderViolations(t *testing.T) {
	stack := mustBuild(t, poolOf(1_000))
	stack.Tranches[Mezzanine].AmountSold = fixed.Units(1)
	if err := stack.Validate(); !errors.Is(err, nativecommon.ErrInvalidTrancheOrder) {
		t.Fatalf("expected invalid tranche order, got %v", err)
	}
}

func TestClassTextRoundTrip(t *testing.T) {
	for _, class := range Classes {
		text, err := class.MarshalText()
		if err != nil {
			t.Fatalf("marshal %d: %v", class, err)
		}
		var parsed Class
		if err := parsed.UnmarshalText(text); err != nil || parsed != class {
			t.Fatalf("round trip %s: got %s err %v", class, parsed, err)
		}
	}
	if _, err := ParseClass("junior"); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}
