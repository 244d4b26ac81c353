package risk

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

func TestDefaultTableClassifiesBoundaries(t *testing.T) {
	table := DefaultTable()
	cases := []struct {
		score float64
		label string
	}{
		{0, "High Risk"},
		{399.99, "High Risk"},
		{400, "Elevated"},
		{599, "Elevated"},
		{600, "Moderate"},
		{750, "Low Risk"},
		{10_000, "Low Risk"},
		{math.Inf(1), "Low Risk"},
	}
	for _, tc := range cases {
		if got := table.Classify(tc.score); got.Label != tc.label {
			t.Fatalf("score %v: got %q want %q", tc.score, got.Label, tc.label)
		}
	}
}

func TestClassifyFallsBackToLowestBand(t *testing.T) {
	table := DefaultTable()
	for _, score := range []float64{-1, math.NaN(), math.Inf(-1)} {
		if got := table.Classify(score); got.Label != table.Lowest().Label {
			t.Fatalf("score %v: expected lowest band, got %q", score, got.Label)
		}
	}
	var nilTable *Table
	if got := nilTable.Classify(800); got.Label != "Low Risk" {
		t.Fatalf("nil table should classify with defaults, got %q", got.Label)
	}
}

func TestClassifyReturnsCopies(t *testing.T) {
	table := DefaultTable()
	band := table.Classify(100)
	band.AssumedDefaultRate.SetInt64(0)
	if table.Classify(100).AssumedDefaultRate.Sign() == 0 {
		t.Fatalf("classification leaked the table's internal rate")
	}
}

func TestNewTableRejectsGapsAndClosedTail(t *testing.T) {
	rate := fixed.MustParseWad("0.1")
	gap := []Band{
		{MinScore: 0, MaxScore: 100, Label: "a", AssumedDefaultRate: rate},
		{MinScore: 150, MaxScore: math.Inf(1), Label: "b", AssumedDefaultRate: rate},
	}
	if _, err := NewTable(gap); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected gap to be rejected, got %v", err)
	}
	closed := []Band{{MinScore: 0, MaxScore: 100, Label: "a", AssumedDefaultRate: rate}}
	if _, err := NewTable(closed); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected closed tail to be rejected, got %v", err)
	}
	if _, err := NewTable(nil); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected empty table to be rejected, got %v", err)
	}
	dup := []Band{
		{MinScore: 0, MaxScore: 500, Label: "Watch", AssumedDefaultRate: fixed.MustParseWad("0.30")},
		{MinScore: 500, MaxScore: math.Inf(1), Label: "Watch", AssumedDefaultRate: fixed.MustParseWad("0.01")},
	}
	if _, err := NewTable(dup); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected duplicate labels to be rejected, got %v", err)
	}
	tooHigh := []Band{{MinScore: 0, MaxScore: math.Inf(1), Label: "a", AssumedDefaultRate: fixed.Units(2)}}
	if _, err := NewTable(tooHigh); !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected default rate above 1 to be rejected, got %v", err)
	}
}

func TestLoadTableFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bands.toml")
	contents := `
[[band]]
label = "Watch"
min_score = 0
max_score = 500
default_rate = "0.12"

[[band]]
label = "Prime"
min_score = 500
default_rate = "0.01"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}
	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	bands := table.Bands()
	if len(bands) != 2 || !bands[1].OpenEnded() {
		t.Fatalf("unexpected bands: %+v", bands)
	}
	if got := table.Classify(499).Label; got != "Watch" {
		t.Fatalf("unexpected label: %s", got)
	}
	if got := fixed.FormatWad(table.Classify(900).AssumedDefaultRate); got != "0.01" {
		t.Fatalf("unexpected default rate: %s", got)
	}
}

func TestParseTableRejectsUnknownKeys(t *testing.T) {
	_, err := ParseTable(`
[[band]]
label = "Only"
min_score = 0
default_rate = "0.1"
colour = "red"
`)
	if !errors.Is(err, nativecommon.ErrInvalidConfiguration) {
		t.Fatalf("expected unknown key rejection, got %v", err)
	}
}

func TestBandMarshalJSONOpenEnded(t *testing.T) {
	bands := DefaultTable().Bands()
	raw, err := json.Marshal(bands[len(bands)-1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(raw), `{"label":"Low Risk","minScore":750,"maxScore":null,"assumedDefaultRate":"0.02"}`; got != want {
		t.Fatalf("unexpected json: %s", got)
	}
}
