/*
Package factory turns declarative configuration into engine objects.

PURPOSE:
  Converts config.Config and JSON policy definitions into distributor or
  fintech correctors, and wires them into an engine.Pipeline with the
  configured recovery fallbacks, discounting convention, checkpoint cache,
  logger and observer. Policies can change without code changes: rates,
  cutover and index choices all live in configuration.

VARIANT DETECTION:
  DetectVariant is the one place a portfolio's variant is decided. Callers
  resolve it once at ingestion and pass it to the pipeline explicitly.

JSON SCHEMA:
  {
    "id": "distributor-2019",
    "name": "Distributor invoices, 2019 contracts",
    "variant": "generic",
    "penalty_rate": 0.02,
    "monthly_interest_rate": 0.01,
    "cutover": "2021-05-01",
    "index_before_cutover": "igpm",
    "index_from_cutover": "ipca"
  }

  Fintech policies use "variant": "fintech", "remuneration_rate" and
  "index" instead of the cutover fields. Absent rates take the variant's
  defaults.

USAGE:
  f := factory.New(cfg)
  variant := f.DetectVariant(portfolioID)
  pipeline, err := f.Pipeline(variant)

SEE ALSO:
  - config/: where the settings come from
  - distributor/, fintech/: the correctors built here
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warp/receivables-engine/config"
	"github.com/warp/receivables-engine/distributor"
	"github.com/warp/receivables-engine/engine"
	"github.com/warp/receivables-engine/fintech"
)

var (
	// ErrUnknownVariant is returned for a variant other than generic or fintech.
	ErrUnknownVariant = errors.New("factory: unknown variant")

	// ErrInvalidPolicy is returned when a policy definition cannot be built.
	ErrInvalidPolicy = errors.New("factory: invalid policy")
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a correction policy.
type PolicyJSON struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Variant             string   `json:"variant"`
	PenaltyRate         *float64 `json:"penalty_rate,omitempty"`
	MonthlyInterestRate *float64 `json:"monthly_interest_rate,omitempty"`

	// generic
	Cutover            *string `json:"cutover,omitempty"` // "" disables the switch
	IndexBeforeCutover string  `json:"index_before_cutover,omitempty"`
	IndexFromCutover   string  `json:"index_from_cutover,omitempty"`

	// fintech
	RemunerationRate *float64 `json:"remuneration_rate,omitempty"`
	Index            string   `json:"index,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

type Factory struct {
	Config   config.Config
	Logger   *slog.Logger
	Observer engine.Observer

	checkpoint *engine.Checkpoint
}

// New creates a factory. Pipelines built by one factory share its checkpoint
// cache when checkpointing is enabled.
func New(cfg config.Config) *Factory {
	f := &Factory{Config: cfg}
	if cfg.Checkpoint {
		f.checkpoint = engine.NewCheckpoint()
	}
	return f
}

// Checkpoint returns the shared cache, nil when checkpointing is disabled.
func (f *Factory) Checkpoint() *engine.Checkpoint { return f.checkpoint }

// DetectVariant classifies a portfolio by its identifier.
func (f *Factory) DetectVariant(portfolioID string) engine.Variant {
	return DetectVariant(portfolioID, f.Config.Fintech.Markers)
}

// DetectVariant returns VariantFintech when the identifier carries one of the
// markers, VariantGeneric otherwise.
func DetectVariant(portfolioID string, markers []string) engine.Variant {
	if fintech.Matches(portfolioID, markers) {
		return engine.VariantFintech
	}
	return engine.VariantGeneric
}

// ParseVariant accepts "generic" and "fintech" case-insensitively.
func ParseVariant(s string) (engine.Variant, error) {
	v := engine.Variant(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
	return v, nil
}

// DistributorPolicy builds the generic policy from configuration.
func (f *Factory) DistributorPolicy() (distributor.Policy, error) {
	c := f.Config.Distributor
	p := distributor.StandardPolicy()
	p.Rates = engine.AccrualRates{PenaltyRate: c.PenaltyRate, MonthlyInterestRate: c.MonthlyInterestRate}

	cutover, err := c.CutoverDate()
	if err != nil {
		return p, fmt.Errorf("%w: cutover: %v", ErrInvalidPolicy, err)
	}
	p.Cutover = cutover
	if p.IndexBeforeCutover, err = engine.ParseIndexKind(c.IndexBeforeCutover); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if p.IndexFromCutover, err = engine.ParseIndexKind(c.IndexFromCutover); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return p, nil
}

// FintechPolicy builds the fintech policy from configuration.
func (f *Factory) FintechPolicy() (fintech.Policy, error) {
	c := f.Config.Fintech
	p := fintech.StandardPolicy()
	p.Rates = engine.AccrualRates{PenaltyRate: c.PenaltyRate, MonthlyInterestRate: c.MonthlyInterestRate}
	p.RemunerationRate = c.RemunerationRate

	var err error
	if p.Index, err = engine.ParseIndexKind(c.Index); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return p, nil
}

// Corrector builds the configured corrector for a variant.
func (f *Factory) Corrector(v engine.Variant) (engine.Corrector, error) {
	switch v {
	case engine.VariantGeneric:
		p, err := f.DistributorPolicy()
		if err != nil {
			return nil, err
		}
		return distributor.NewCorrector(p), nil
	case engine.VariantFintech:
		p, err := f.FintechPolicy()
		if err != nil {
			return nil, err
		}
		return fintech.NewCorrector(p), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
}

// Pipeline builds a fully wired pipeline for a variant.
func (f *Factory) Pipeline(v engine.Variant) (*engine.Pipeline, error) {
	c, err := f.Corrector(v)
	if err != nil {
		return nil, err
	}
	return f.PipelineFor(c), nil
}

// PipelineFor wires an already built corrector, e.g. one from ParsePolicy.
func (f *Factory) PipelineFor(c engine.Corrector) *engine.Pipeline {
	p := engine.NewPipeline(c)
	p.Resolver = engine.RecoveryResolver{
		FallbackRate:   f.Config.Recovery.FallbackRate,
		FallbackMonths: f.Config.Recovery.FallbackMonths,
	}
	p.Discounter = engine.Discounter{
		RiskSpread: f.Config.Discount.RiskSpread,
		Convention: engine.RateConvention(f.Config.Discount.Convention),
	}
	p.Checkpoint = f.checkpoint
	p.Logger = f.Logger
	p.Observer = f.Observer
	return p
}

// IndexKinds lists the index series a corrector reads, so callers load only
// those. Unknown correctors read both kinds.
func IndexKinds(c engine.Corrector) []engine.IndexKind {
	switch c := c.(type) {
	case *distributor.Corrector:
		return c.Policy.Kinds()
	case *fintech.Corrector:
		return []engine.IndexKind{c.Policy.Index}
	}
	return []engine.IndexKind{engine.IndexIGPM, engine.IndexIPCA}
}

// =============================================================================
// JSON POLICIES
// =============================================================================

// ParsePolicy parses a JSON policy definition into a corrector.
func (f *Factory) ParsePolicy(jsonStr string) (engine.Corrector, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to a corrector. Fields left out fall back to
// the factory's configuration.
func (f *Factory) FromJSON(pj PolicyJSON) (engine.Corrector, error) {
	v, err := ParseVariant(pj.Variant)
	if err != nil {
		return nil, err
	}

	switch v {
	case engine.VariantGeneric:
		p, err := f.DistributorPolicy()
		if err != nil {
			return nil, err
		}
		applyIdentity(&p.ID, &p.Name, pj)
		if err := applyRates(&p.Rates, pj); err != nil {
			return nil, err
		}
		if pj.Cutover != nil {
			if p.Cutover, err = parseDate(*pj.Cutover); err != nil {
				return nil, fmt.Errorf("%w: cutover: %v", ErrInvalidPolicy, err)
			}
		}
		if pj.IndexBeforeCutover != "" {
			if p.IndexBeforeCutover, err = engine.ParseIndexKind(pj.IndexBeforeCutover); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
			}
		}
		if pj.IndexFromCutover != "" {
			if p.IndexFromCutover, err = engine.ParseIndexKind(pj.IndexFromCutover); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
			}
		}
		return distributor.NewCorrector(p), nil

	default:
		p, err := f.FintechPolicy()
		if err != nil {
			return nil, err
		}
		applyIdentity(&p.ID, &p.Name, pj)
		if err := applyRates(&p.Rates, pj); err != nil {
			return nil, err
		}
		if pj.RemunerationRate != nil {
			if *pj.RemunerationRate < 0 {
				return nil, fmt.Errorf("%w: negative remuneration rate", ErrInvalidPolicy)
			}
			p.RemunerationRate = *pj.RemunerationRate
		}
		if pj.Index != "" {
			if p.Index, err = engine.ParseIndexKind(pj.Index); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
			}
		}
		return fintech.NewCorrector(p), nil
	}
}

func applyIdentity(id, name *string, pj PolicyJSON) {
	if pj.ID != "" {
		*id = pj.ID
	}
	if pj.Name != "" {
		*name = pj.Name
	}
}

func applyRates(r *engine.AccrualRates, pj PolicyJSON) error {
	if pj.PenaltyRate != nil {
		if *pj.PenaltyRate < 0 {
			return fmt.Errorf("%w: negative penalty rate", ErrInvalidPolicy)
		}
		r.PenaltyRate = *pj.PenaltyRate
	}
	if pj.MonthlyInterestRate != nil {
		if *pj.MonthlyInterestRate < 0 {
			return fmt.Errorf("%w: negative monthly interest rate", ErrInvalidPolicy)
		}
		r.MonthlyInterestRate = *pj.MonthlyInterestRate
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", strings.TrimSpace(s))
}
