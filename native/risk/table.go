package risk

import (
	"fmt"
	"math"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// Classifier resolves a reputation score to a risk band. Implementations must
// always return a band.
type Classifier interface {
	Classify(score float64) Band
}

// Table is an immutable, validated band table ordered ascending by MinScore.
type Table struct {
	bands []Band
}

var _ Classifier = (*Table)(nil)

// NewTable validates the supplied bands and returns a table owning copies of
// them. Bands must be contiguous, non-overlapping, ascending and terminate in an
// open-ended band.
func NewTable(bands []Band) (*Table, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: risk table requires at least one band", nativecommon.ErrInvalidConfiguration)
	}
	owned := make([]Band, len(bands))
	labels := make(map[string]struct{}, len(bands))
	for i, band := range bands {
		if err := band.validate(); err != nil {
			return nil, err
		}
		if _, dup := labels[band.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate risk band label %q", nativecommon.ErrInvalidConfiguration, band.Label)
		}
		labels[band.Label] = struct{}{}
		if i > 0 && owned[i-1].MaxScore != band.MinScore {
			return nil, fmt.Errorf("%w: risk band %q must start at %g", nativecommon.ErrInvalidConfiguration, band.Label, owned[i-1].MaxScore)
		}
		owned[i] = band.Clone()
	}
	if !owned[len(owned)-1].OpenEnded() {
		return nil, fmt.Errorf("%w: last risk band must be open ended", nativecommon.ErrInvalidConfiguration)
	}
	return &Table{bands: owned}, nil
}

// DefaultTable returns the campus reputation bands used when no table is
// configured.
func DefaultTable() *Table {
	return defaultTable
}

var defaultTable = mustTable([]Band{
	{MinScore: 0, MaxScore: 400, Label: "High Risk", AssumedDefaultRate: fixed.MustParseWad("0.20")},
	{MinScore: 400, MaxScore: 600, Label: "Elevated", AssumedDefaultRate: fixed.MustParseWad("0.10")},
	{MinScore: 600, MaxScore: 750, Label: "Moderate", AssumedDefaultRate: fixed.MustParseWad("0.05")},
	{MinScore: 750, MaxScore: math.Inf(1), Label: "Low Risk", AssumedDefaultRate: fixed.MustParseWad("0.02")},
})

func mustTable(bands []Band) *Table {
	table, err := NewTable(bands)
	if err != nil {
		panic(err)
	}
	return table
}

// Classify returns the band containing score. Negative, NaN or otherwise
// unclassifiable scores resolve to the lowest band.
func (t *Table) Classify(score float64) Band {
	if t == nil || len(t.bands) == 0 {
		return defaultTable.Classify(score)
	}
	if math.IsNaN(score) || score < 0 {
		return t.bands[0].Clone()
	}
	if math.IsInf(score, 1) {
		return t.bands[len(t.bands)-1].Clone()
	}
	for _, band := range t.bands {
		if band.Contains(score) {
			return band.Clone()
		}
	}
	return t.bands[0].Clone()
}

// Lowest returns the band covering the lowest scores.
func (t *Table) Lowest() Band {
	if t == nil || len(t.bands) == 0 {
		return defaultTable.Lowest()
	}
	return t.bands[0].Clone()
}

// Bands returns copies of the table's bands in ascending order.
func (t *Table) Bands() []Band {
	if t == nil {
		return defaultTable.Bands()
	}
	out := make([]Band, len(t.bands))
	for i, band := range t.bands {
		out[i] = band.Clone()
	}
	return out
}
