package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	nativecommon "campusfi/native/common"
	"campusfi/native/amm"
	"campusfi/native/tranche"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for financed.
type Config struct {
	ListenAddress   string               `yaml:"listen"`
	DatabasePath    string               `yaml:"database"`
	FixturesPath    string               `yaml:"fixtures"`
	PausedModules   []string             `yaml:"paused_modules"`
	ShutdownTimeout Duration             `yaml:"shutdown_timeout"`
	Log             LogConfig            `yaml:"log"`
	AMM             AMMConfig            `yaml:"amm"`
	Lending         LendingConfig        `yaml:"lending"`
	Risk            RiskConfig           `yaml:"risk"`
	Tranche         TrancheConfig        `yaml:"tranche"`
	Auth            AuthConfig           `yaml:"auth"`
	RateLimits      map[string]RateLimit `yaml:"rate_limits"`
	// TrustedProxies lists peers whose X-Real-IP and X-Forwarded-For headers
	// identify the client for rate limiting. CIDR prefixes or addresses.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// LogConfig controls level and optional rotated file output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AMMConfig sets the venue fee applied to every pool.
type AMMConfig struct {
	FeeBps uint64 `yaml:"fee_bps"`
}

// LendingConfig points at the TOML rate table. An empty path uses the built in
// defaults.
type LendingConfig struct {
	RatesPath string `yaml:"rates"`
}

// RiskConfig points at the TOML band table. An empty path uses the default
// campus bands.
type RiskConfig struct {
	BandsPath string `yaml:"bands"`
}

// TrancheConfig sets the issuance split.
type TrancheConfig struct {
	Splits tranche.Splits `yaml:"splits"`
}

// AuthConfig lists the bearer credentials accepted on mutating routes. Static
// tokens and HMAC signed JWTs may be combined.
type AuthConfig struct {
	Tokens    []string `yaml:"tokens"`
	JWTSecret string   `yaml:"jwt_secret"`
	JWTIssuer string   `yaml:"jwt_issuer"`
	// AllowAnonymous disables authentication entirely. Development only.
	AllowAnonymous bool `yaml:"allow_anonymous"`
}

// RateLimit is a per-client token bucket.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Load reads configuration from the supplied path. An empty file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	cfg.DatabasePath = strings.TrimSpace(cfg.DatabasePath)
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/financed.sqlite"
	}
	cfg.FixturesPath = strings.TrimSpace(cfg.FixturesPath)
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 5 * time.Second
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB <= 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups <= 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays <= 0 {
			cfg.Log.MaxAgeDays = 28
		}
	}
	if cfg.AMM.FeeBps == 0 {
		cfg.AMM.FeeBps = 30
	}
	if cfg.Tranche.Splits == (tranche.Splits{}) {
		cfg.Tranche.Splits = tranche.DefaultSplits()
	}
	cfg.Lending.RatesPath = strings.TrimSpace(cfg.Lending.RatesPath)
	cfg.Risk.BandsPath = strings.TrimSpace(cfg.Risk.BandsPath)

	paused := cfg.PausedModules[:0]
	for _, module := range cfg.PausedModules {
		if module = strings.ToLower(strings.TrimSpace(module)); module != "" {
			paused = append(paused, module)
		}
	}
	cfg.PausedModules = paused

	tokens := cfg.Auth.Tokens[:0]
	for _, token := range cfg.Auth.Tokens {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	cfg.Auth.Tokens = tokens
	cfg.Auth.JWTSecret = strings.TrimSpace(cfg.Auth.JWTSecret)
	cfg.Auth.JWTIssuer = strings.TrimSpace(cfg.Auth.JWTIssuer)

	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimit{
			"mutate": {RequestsPerMinute: 120, Burst: 20},
			"quote":  {RequestsPerMinute: 600, Burst: 60},
		}
	}
}

func (cfg Config) validate() error {
	if cfg.AMM.FeeBps >= amm.FeeDenominator {
		return fmt.Errorf("%w: amm.fee_bps must be below %d", nativecommon.ErrInvalidConfiguration, amm.FeeDenominator)
	}
	if err := cfg.Tranche.Splits.Validate(); err != nil {
		return err
	}
	for _, module := range cfg.PausedModules {
		switch module {
		case nativecommon.ModuleAMM, nativecommon.ModuleLending, nativecommon.ModuleTranche:
		default:
			return fmt.Errorf("%w: unknown paused module %q", nativecommon.ErrInvalidConfiguration, module)
		}
	}
	if len(cfg.Auth.Tokens) == 0 && cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowAnonymous {
		return fmt.Errorf("%w: auth.tokens or auth.jwt_secret required unless auth.allow_anonymous is set", nativecommon.ErrInvalidConfiguration)
	}
	for name, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("%w: rate limit %q must be positive", nativecommon.ErrInvalidConfiguration, name)
		}
	}
	for _, entry := range cfg.TrustedProxies {
		if err := validProxy(entry); err != nil {
			return err
		}
	}
	return nil
}

func validProxy(entry string) error {
	entry = strings.TrimSpace(entry)
	var err error
	if strings.Contains(entry, "/") {
		_, err = netip.ParsePrefix(entry)
	} else {
		_, err = netip.ParseAddr(entry)
	}
	if err != nil {
		return fmt.Errorf("%w: trusted_proxies entry %q: %v", nativecommon.ErrInvalidConfiguration, entry, err)
	}
	return nil
}
