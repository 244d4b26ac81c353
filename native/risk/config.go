package risk

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// BandConfig is the TOML representation of a band. MaxScore is omitted on the
// final, open-ended band.
type BandConfig struct {
	Label       string   `toml:"label"`
	MinScore    float64  `toml:"min_score"`
	MaxScore    *float64 `toml:"max_score"`
	DefaultRate string   `toml:"default_rate"`
}

// TableConfig is the TOML document holding a band table:
//
//	[[band]]
//	label = "High Risk"
//	min_score = 0
//	max_score = 400
//	default_rate = "0.20"
type TableConfig struct {
	Bands []BandConfig `toml:"band"`
}

// LoadTable reads and validates a band table from a TOML file.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: risk table path required", nativecommon.ErrInvalidConfiguration)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk table: %w", err)
	}
	return ParseTable(string(data))
}

// ParseTable decodes a TOML band table.
func ParseTable(data string) (*Table, error) {
	var cfg TableConfig
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: decode risk table: %v", nativecommon.ErrInvalidConfiguration, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown risk table key %q", nativecommon.ErrInvalidConfiguration, undecoded[0].String())
	}
	return cfg.Table()
}

// Table converts the configuration into a validated Table.
func (c TableConfig) Table() (*Table, error) {
	bands := make([]Band, 0, len(c.Bands))
	for _, bc := range c.Bands {
		rate, err := fixed.ParseWad(bc.DefaultRate)
		if err != nil {
			return nil, fmt.Errorf("risk band %q default_rate: %w", bc.Label, err)
		}
		upper := math.Inf(1)
		if bc.MaxScore != nil {
			upper = *bc.MaxScore
		}
		bands = append(bands, Band{
			MinScore:           bc.MinScore,
			MaxScore:           upper,
			Label:              strings.TrimSpace(bc.Label),
			AssumedDefaultRate: rate,
		})
	}
	return NewTable(bands)
}
