/*
Package config loads valuation settings.

LOAD ORDER (later wins):
 1. Defaults (the contractual constants of the distributor and fintech
    packages, engine fallbacks)
 2. .env in the working directory, if present
 3. YAML file: the path argument, else $VALUATION_CONFIG
 4. Environment overrides: VALUATION_LOG_LEVEL, VALUATION_RISK_SPREAD,
    VALUATION_RATE_CONVENTION, VALUATION_CHECKPOINT, VALUATION_REFERENCE_DB

YAML EXAMPLE:

	log_level: info
	checkpoint: true
	reference_db: var/reference.db
	distributor:
	  penalty_rate: 0.02
	  monthly_interest_rate: 0.01
	  cutover: "2021-05-01"
	  index_before_cutover: igpm
	  index_from_cutover: ipca
	fintech:
	  remuneration_rate: 0.0465
	  markers: [fintech, ccb]
	recovery:
	  fallback_rate: 0
	  fallback_months: 12
	discount:
	  risk_spread: 0.025
	  convention: "252"
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/receivables-engine/distributor"
	"github.com/warp/receivables-engine/engine"
	"github.com/warp/receivables-engine/fintech"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Environment variables read by Load.
const (
	EnvConfigPath     = "VALUATION_CONFIG"
	EnvLogLevel       = "VALUATION_LOG_LEVEL"
	EnvRiskSpread     = "VALUATION_RISK_SPREAD"
	EnvRateConvention = "VALUATION_RATE_CONVENTION"
	EnvCheckpoint     = "VALUATION_CHECKPOINT"
	EnvReferenceDB    = "VALUATION_REFERENCE_DB"
)

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Checkpoint  bool              `yaml:"checkpoint"`
	ReferenceDB string            `yaml:"reference_db"`
	Distributor DistributorConfig `yaml:"distributor"`
	Fintech     FintechConfig     `yaml:"fintech"`
	Recovery    RecoveryConfig    `yaml:"recovery"`
	Discount    DiscountConfig    `yaml:"discount"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type DistributorConfig struct {
	PenaltyRate         float64 `yaml:"penalty_rate"`
	MonthlyInterestRate float64 `yaml:"monthly_interest_rate"`
	Cutover             string  `yaml:"cutover"` // 2006-01-02; empty disables the switch
	IndexBeforeCutover  string  `yaml:"index_before_cutover"`
	IndexFromCutover    string  `yaml:"index_from_cutover"`
}

type FintechConfig struct {
	PenaltyRate         float64  `yaml:"penalty_rate"`
	MonthlyInterestRate float64  `yaml:"monthly_interest_rate"`
	RemunerationRate    float64  `yaml:"remuneration_rate"`
	Index               string   `yaml:"index"`
	Markers             []string `yaml:"markers"`
}

type RecoveryConfig struct {
	FallbackRate   float64 `yaml:"fallback_rate"`
	FallbackMonths int     `yaml:"fallback_months"`
}

type DiscountConfig struct {
	RiskSpread float64 `yaml:"risk_spread"`
	Convention string  `yaml:"convention"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node-exporter textfile path, empty disables
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		LogLevel:   "info",
		Checkpoint: true,
		Distributor: DistributorConfig{
			PenaltyRate:         distributor.DefaultPenaltyRate,
			MonthlyInterestRate: distributor.DefaultMonthlyInterestRate,
			Cutover:             distributor.DefaultCutover.Format("2006-01-02"),
			IndexBeforeCutover:  string(engine.IndexIGPM),
			IndexFromCutover:    string(engine.IndexIPCA),
		},
		Fintech: FintechConfig{
			PenaltyRate:         fintech.DefaultPenaltyRate,
			MonthlyInterestRate: fintech.DefaultMonthlyInterestRate,
			RemunerationRate:    fintech.DefaultRemunerationRate,
			Index:               string(engine.IndexIPCA),
			Markers:             append([]string(nil), fintech.DefaultMarkers...),
		},
		Recovery: RecoveryConfig{
			FallbackRate:   engine.DefaultFallbackRecoveryRate,
			FallbackMonths: engine.DefaultFallbackMonths,
		},
		Discount: DiscountConfig{
			RiskSpread: engine.DefaultRiskSpread,
			Convention: string(engine.Convention252),
		},
	}
}

// Load builds a Config from defaults, .env, the YAML file at path (or
// $VALUATION_CONFIG when path is empty) and environment overrides.
func Load(path string) (Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML over cfg. Keys absent from data keep their value.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvReferenceDB); v != "" {
		cfg.ReferenceDB = v
	}
	if v := os.Getenv(EnvRateConvention); v != "" {
		cfg.Discount.Convention = v
	}
	if v := os.Getenv(EnvRiskSpread); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvRiskSpread, v)
		}
		cfg.Discount.RiskSpread = f
	}
	if v := os.Getenv(EnvCheckpoint); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvCheckpoint, v)
		}
		cfg.Checkpoint = b
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate reports every problem at once.
func (c Config) Validate() error {
	var problems []string
	negative := func(name string, v float64) {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative (%g)", name, v))
		}
	}
	negative("distributor.penalty_rate", c.Distributor.PenaltyRate)
	negative("distributor.monthly_interest_rate", c.Distributor.MonthlyInterestRate)
	negative("fintech.penalty_rate", c.Fintech.PenaltyRate)
	negative("fintech.monthly_interest_rate", c.Fintech.MonthlyInterestRate)
	negative("fintech.remuneration_rate", c.Fintech.RemunerationRate)
	negative("discount.risk_spread", c.Discount.RiskSpread)

	if c.Recovery.FallbackRate < 0 || c.Recovery.FallbackRate > 1 {
		problems = append(problems, fmt.Sprintf("recovery.fallback_rate must be within [0,1] (%g)", c.Recovery.FallbackRate))
	}
	if c.Recovery.FallbackMonths < 0 {
		problems = append(problems, fmt.Sprintf("recovery.fallback_months must not be negative (%d)", c.Recovery.FallbackMonths))
	}
	if !engine.RateConvention(c.Discount.Convention).Valid() {
		problems = append(problems, fmt.Sprintf("discount.convention must be 252 or 360 (%q)", c.Discount.Convention))
	}
	for _, k := range []struct{ name, value string }{
		{"distributor.index_before_cutover", c.Distributor.IndexBeforeCutover},
		{"distributor.index_from_cutover", c.Distributor.IndexFromCutover},
		{"fintech.index", c.Fintech.Index},
	} {
		if _, err := engine.ParseIndexKind(k.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", k.name, err))
		}
	}
	if _, err := c.Distributor.CutoverDate(); err != nil {
		problems = append(problems, fmt.Sprintf("distributor.cutover: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// CutoverDate parses Cutover. An empty value yields the zero time, meaning
// every invoice uses IndexBeforeCutover.
func (d DistributorConfig) CutoverDate() (time.Time, error) {
	if strings.TrimSpace(d.Cutover) == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", strings.TrimSpace(d.Cutover))
}
