package fixed

import (
	"errors"
	"math/big"
	"testing"

	nativecommon "campusfi/native/common"
)

func TestParseWadExact(t *testing.T) {
	cases := map[string]string{
		"0.076": "76000000000000000",
		"1":     "1000000000000000000",
		" 150 ": "150000000000000000000",
		"0.5":   "500000000000000000",
	}
	for raw, want := range cases {
		got, err := ParseWad(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got.String() != want {
			t.Fatalf("parse %q: got %s want %s", raw, got, want)
		}
	}
}

func TestParseWadRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "-1", "abc", "0.0000000000000000001"} {
		if _, err := ParseWad(raw); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
			t.Fatalf("expected ErrInvalidConfiguration for %q, got %v", raw, err)
		}
	}
}

func TestFormatWadTrimsZeros(t *testing.T) {
	if got := FormatWad(MustParseWad("0.0910")); got != "0.091" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatWad(Units(150)); got != "150" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatWad(nil); got != "0" {
		t.Fatalf("unexpected nil format: %s", got)
	}
}

func TestMulDivRounding(t *testing.T) {
	if got := MulDivUp(big.NewInt(10), big.NewInt(1), big.NewInt(3)); got.Int64() != 4 {
		t.Fatalf("expected ceiling 4, got %s", got)
	}
	if got := MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3)); got.Int64() != 3 {
		t.Fatalf("expected floor 3, got %s", got)
	}
	if got := MulWad(MustParseWad("0.7"), MustParseWad("0.08")); FormatWad(got) != "0.056" {
		t.Fatalf("unexpected product: %s", FormatWad(got))
	}
	if got := FromBps(30); FormatWad(got) != "0.003" {
		t.Fatalf("unexpected bps conversion: %s", FormatWad(got))
	}
}
