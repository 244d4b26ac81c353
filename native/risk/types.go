package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// Band maps a half-open reputation score range [MinScore, MaxScore) to a
// qualitative label and an assumed annual default rate. The last band of a
// table is open ended and carries MaxScore = +Inf.
type Band struct {
	MinScore float64
	MaxScore float64
	Label    string
	// AssumedDefaultRate is a wad ratio, e.g. 5e16 for 5%.
	AssumedDefaultRate *big.Int
}

// Contains reports whether score falls inside the band.
func (b Band) Contains(score float64) bool {
	return score >= b.MinScore && score < b.MaxScore
}

// OpenEnded reports whether the band has no upper bound.
func (b Band) OpenEnded() bool {
	return math.IsInf(b.MaxScore, 1)
}

// Clone returns a deep copy of the band.
func (b Band) Clone() Band {
	b.AssumedDefaultRate = fixed.Clone(b.AssumedDefaultRate)
	return b
}

// String renders the band range for logs and CLI output.
func (b Band) String() string {
	if b.OpenEnded() {
		return fmt.Sprintf("%s [%g, +inf)", b.Label, b.MinScore)
	}
	return fmt.Sprintf("%s [%g, %g)", b.Label, b.MinScore, b.MaxScore)
}

type bandJSON struct {
	Label              string   `json:"label"`
	MinScore           float64  `json:"minScore"`
	MaxScore           *float64 `json:"maxScore"`
	AssumedDefaultRate string   `json:"assumedDefaultRate"`
}

// MarshalJSON encodes an open upper bound as null and the default rate as a
// decimal string.
func (b Band) MarshalJSON() ([]byte, error) {
	out := bandJSON{Label: b.Label, MinScore: b.MinScore, AssumedDefaultRate: fixed.FormatWad(b.AssumedDefaultRate)}
	if !b.OpenEnded() {
		upper := b.MaxScore
		out.MaxScore = &upper
	}
	return json.Marshal(out)
}

func (b Band) validate() error {
	if strings.TrimSpace(b.Label) == "" {
		return fmt.Errorf("%w: risk band label required", nativecommon.ErrInvalidConfiguration)
	}
	if math.IsNaN(b.MinScore) || math.IsNaN(b.MaxScore) || math.IsInf(b.MinScore, 0) {
		return fmt.Errorf("%w: risk band %q has an invalid range", nativecommon.ErrInvalidConfiguration, b.Label)
	}
	if b.MinScore < 0 {
		return fmt.Errorf("%w: risk band %q starts below zero", nativecommon.ErrInvalidConfiguration, b.Label)
	}
	if b.MaxScore <= b.MinScore {
		return fmt.Errorf("%w: risk band %q max must exceed min", nativecommon.ErrInvalidConfiguration, b.Label)
	}
	rate := b.AssumedDefaultRate
	if rate == nil || rate.Sign() < 0 || rate.Cmp(fixed.Wad) > 0 {
		return fmt.Errorf("%w: risk band %q default rate must be within [0, 1]", nativecommon.ErrInvalidConfiguration, b.Label)
	}
	return nil
}
