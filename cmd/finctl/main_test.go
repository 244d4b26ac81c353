package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestQuoteSwapPrintsExactInputQuote(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{quoteSwapCommand, "--amount-in", "100", "--reserve-in", "1000", "--reserve-out", "1000"}, &out)
	if err != nil {
		t.Fatalf("quote-swap: %v", err)
	}
	if !strings.Contains(out.String(), "90.661089388014913158") {
		t.Fatalf("expected quoted output in table, got:\n%s", out.String())
	}
}

func TestQuoteSwapRequiresOneAmount(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{quoteSwapCommand, "--amount-in", "1", "--amount-out", "1", "--reserve-in", "10", "--reserve-out", "10"}, &out)
	if err == nil {
		t.Fatalf("expected error when both amounts are set")
	}
}

func TestRatesPrintsCurve(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{ratesCommand, "--utilization", "0.7,0.9"}, &out); err != nil {
		t.Fatalf("rates: %v", err)
	}
	for _, want := range []string{"0.076", "0.144", "0.04788"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %s in rate table, got:\n%s", want, out.String())
		}
	}
	if err := run([]string{ratesCommand, "--utilization", "1.5"}, &out); err == nil {
		t.Fatalf("expected utilization above 1 to be rejected")
	}
}

func TestClassifyScores(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{classifyCommand, "350", "820"}, &out); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(out.String(), "High Risk") || !strings.Contains(out.String(), "Low Risk") {
		t.Fatalf("unexpected classify output:\n%s", out.String())
	}
	if err := run([]string{classifyCommand}, &out); err == nil {
		t.Fatalf("expected error without scores")
	}
}

func TestTranchesFromFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	data := `
receivables:
  - name: spring-tuition
    issue_date: "2026-01-15"
    maturity_date: "2026-12-15"
    obligors:
      - address: "0x00000000000000000000000000000000000000a1"
        principal: "1000000"
        score: 780
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write fixtures: %v", err)
	}
	var out bytes.Buffer
	if err := run([]string{tranchesCommand, "--fixtures", path}, &out); err != nil {
		t.Fatalf("tranches: %v", err)
	}
	for _, want := range []string{"spring-tuition", "700000", "200000", "100000"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %s in tranche table, got:\n%s", want, out.String())
		}
	}
	if err := run([]string{tranchesCommand, "--fixtures", path, "--senior-bps", "9000"}, &out); err == nil {
		t.Fatalf("expected invalid splits to be rejected")
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run([]string{"bogus"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}
