package lending

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// Accrual modes accepted by Config.Accrual.
const (
	AccrualLinear   = "linear"
	AccrualCompound = "compound"
)

// Config captures the rate table and risk limits for a lending pool. Ratios
// are decimal strings so they parse exactly, e.g. "0.08" for 8%.
type Config struct {
	BaseRate         string `toml:"base_rate"`
	SlopeLow         string `toml:"slope_low"`
	SlopeHigh        string `toml:"slope_high"`
	Kink             string `toml:"kink"`
	ReserveSpread    string `toml:"reserve_spread"`
	CollateralFactor string `toml:"collateral_factor"`
	MaxUtilization   string `toml:"max_utilization"`
	Accrual          string `toml:"accrual"`
	CompoundPeriod   string `toml:"compound_period"`
}

// DefaultConfig returns the campus pool defaults.
func DefaultConfig() Config {
	return Config{
		BaseRate:         "0.02",
		SlopeLow:         "0.08",
		SlopeHigh:        "0.60",
		Kink:             "0.80",
		ReserveSpread:    "0.10",
		CollateralFactor: "0.5",
		MaxUtilization:   "0.95",
		Accrual:          AccrualLinear,
		CompoundPeriod:   "24h",
	}
}

// LoadConfig reads a TOML rate table. Keys absent from the file keep their
// DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("%w: lending config path required", nativecommon.ErrInvalidConfiguration)
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode lending config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown lending config key %q", nativecommon.ErrInvalidConfiguration, undecoded[0].String())
	}
	return cfg, nil
}

// Params is the validated, runtime form of Config.
type Params struct {
	Model            RateModel
	CollateralFactor *big.Int
	MaxUtilization   *big.Int
	Accrual          string
	CompoundPeriod   time.Duration
}

// Params parses and validates the configuration.
func (c Config) Params() (Params, error) {
	var (
		params Params
		err    error
	)
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"base_rate", c.BaseRate, &params.Model.BaseRate},
		{"slope_low", c.SlopeLow, &params.Model.SlopeLow},
		{"slope_high", c.SlopeHigh, &params.Model.SlopeHigh},
		{"kink", c.Kink, &params.Model.Kink},
		{"reserve_spread", c.ReserveSpread, &params.Model.ReserveSpread},
		{"collateral_factor", c.CollateralFactor, &params.CollateralFactor},
		{"max_utilization", c.MaxUtilization, &params.MaxUtilization},
	}
	for _, f := range fields {
		if *f.dst, err = fixed.ParseWad(f.raw); err != nil {
			return Params{}, fmt.Errorf("lending %s: %w", f.name, err)
		}
	}
	params.Accrual = strings.ToLower(strings.TrimSpace(c.Accrual))
	if params.Accrual == "" {
		params.Accrual = AccrualLinear
	}
	if params.Accrual == AccrualCompound {
		period := strings.TrimSpace(c.CompoundPeriod)
		if period == "" {
			period = "24h"
		}
		if params.CompoundPeriod, err = time.ParseDuration(period); err != nil {
			return Params{}, fmt.Errorf("%w: lending compound_period: %v", nativecommon.ErrInvalidConfiguration, err)
		}
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// Validate enforces the rate curve and risk limit constraints.
func (p Params) Validate() error {
	if err := p.Model.Validate(); err != nil {
		return err
	}
	if !inUnitInterval(p.CollateralFactor, false) {
		return fmt.Errorf("%w: collateral factor must be within (0, 1]", nativecommon.ErrInvalidConfiguration)
	}
	if !inUnitInterval(p.MaxUtilization, false) {
		return fmt.Errorf("%w: max utilization must be within (0, 1]", nativecommon.ErrInvalidConfiguration)
	}
	switch p.Accrual {
	case AccrualLinear:
	case AccrualCompound:
		if p.CompoundPeriod <= 0 {
			return fmt.Errorf("%w: compound period must be positive", nativecommon.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown accrual mode %q", nativecommon.ErrInvalidConfiguration, p.Accrual)
	}
	return nil
}

func inUnitInterval(v *big.Int, allowZero bool) bool {
	if v == nil || v.Sign() < 0 || v.Cmp(fixed.Wad) > 0 {
		return false
	}
	return allowZero || v.Sign() > 0
}
