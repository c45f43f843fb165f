/*
pipeline.go - Stage orchestration

PURPOSE:
  The Pipeline is the only component that knows stage ordering:

    1. aging      ClassifyAll
    2. correction Corrector.Correct            (value at base date)
    3. recovery   RecoveryResolver.Resolve     (rate, months, receipt date)
    4. receipt    Corrector.ProjectToReceipt   (value at receipt date)
    5. discount   Discounter.Discount          (fair value)

  Every stage is a pure batch transform keyed in the checkpoint cache by
  the fingerprint of its inputs and parameters. There is no ambient state:
  everything a run needs arrives in Input, everything it produces leaves in
  Result.

FAILURE POLICY:
  Missing reference data aborts the run with a MissingReferenceDataError.
  Degenerate discount factors abort it with a DegenerateDiscountError, but
  the fully computed Result is returned alongside so callers can see which
  records failed. Everything else is counted in Diagnostics.

EXAMPLE:
  p := engine.NewPipeline(distributor.NewCorrector(distributor.StandardPolicy()))
  result, err := p.Run(engine.Input{
      PortfolioID: "FIDC Energia",
      Variant:     engine.VariantGeneric,
      Records:     records,
      Indexes:     engine.NewIndexSet(igpm, ipca),
      Recovery:    recovery,
      Terms:       terms,
  })
*/
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Stage names, also used as checkpoint key prefixes and metric labels.
const (
	StageAging      = "aging"
	StageCorrection = "correction"
	StageRecovery   = "recovery"
	StageReceipt    = "receipt"
	StageDiscount   = "discount"
)

// Observer receives stage and run events, typically a metrics recorder.
type Observer interface {
	StageCompleted(stage string, rows int, cached bool, elapsed time.Duration)
	RunCompleted(d Diagnostics, err error)
}

// Input is everything a run consumes.
type Input struct {
	PortfolioID string
	Variant     Variant
	Records     Records
	Indexes     IndexSet
	Recovery    *RecoveryTable
	Terms       *TermStructure
}

// Result is the corrected table and what happened while producing it.
type Result struct {
	Records     Records
	Diagnostics Diagnostics
}

type Pipeline struct {
	Corrector  Corrector
	Resolver   RecoveryResolver
	Discounter Discounter
	Checkpoint *Checkpoint
	Logger     *slog.Logger
	Observer   Observer
	NewRunID   func() string
}

// NewPipeline wires a corrector with default recovery fallbacks, default
// discounting and a fresh checkpoint cache.
func NewPipeline(corrector Corrector) *Pipeline {
	return &Pipeline{
		Corrector:  corrector,
		Resolver:   NewRecoveryResolver(),
		Discounter: NewDiscounter(),
		Checkpoint: NewCheckpoint(),
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) runID() string {
	if p.NewRunID != nil {
		return p.NewRunID()
	}
	return uuid.NewString()
}

// =============================================================================
// STAGE OUTPUTS - What the checkpoint stores per stage
// =============================================================================

type agingOutput struct {
	Records Records
	Report  AgingReport
}

type correctionOutput struct {
	Records Records
	Report  CorrectionReport
}

type recoveryOutput struct {
	Records Records
	Report  RecoveryReport
}

type discountOutput struct {
	Records    Records
	Report     DiscountReport
	Degenerate *DegenerateDiscountError
}

// =============================================================================
// RUN
// =============================================================================

type runState struct {
	diag Diagnostics
	log  *slog.Logger
}

// Run executes every stage in order.
func (p *Pipeline) Run(in Input) (*Result, error) {
	if p.Corrector == nil {
		return nil, errors.New("engine: pipeline has no corrector")
	}
	variant := p.Corrector.Variant()
	if in.Variant != "" && in.Variant != variant {
		return nil, fmt.Errorf("%w: portfolio %q is %s, corrector is %s", ErrVariantMismatch, in.PortfolioID, in.Variant, variant)
	}

	start := time.Now()
	run := &runState{diag: newDiagnostics(p.runID(), in, variant)}
	run.log = p.logger().With("run_id", run.diag.RunID, "portfolio", in.PortfolioID, "variant", string(variant))
	run.log.Info("valuation run started", "rows", len(in.Records))

	// Stage outputs are shared with the checkpoint; callers get their own copy.
	records, err := p.run(run, in)
	run.diag.Duration = time.Since(start)
	if records != nil {
		records = records.Clone()
		run.diag.Totals = totalsOf(records)
	}
	if p.Observer != nil {
		p.Observer.RunCompleted(run.diag, err)
	}

	for _, w := range run.diag.Warnings() {
		run.log.Warn(w)
	}
	if err != nil {
		run.log.Error("valuation run failed", "error", err)
		if records == nil {
			return nil, err
		}
		return &Result{Records: records, Diagnostics: run.diag}, err
	}
	run.log.Info("valuation run completed",
		"rows", run.diag.Rows,
		"match_ratio", run.diag.MatchRatio,
		"fair_value", run.diag.Totals.FairValue.StringFixed(2),
		"cached_stages", len(run.diag.CachedStages),
		"duration", run.diag.Duration)
	return &Result{Records: records, Diagnostics: run.diag}, nil
}

func (p *Pipeline) run(run *runState, in Input) (Records, error) {
	indexes := in.Indexes
	if indexes == nil {
		indexes = IndexSet{}
	}

	// 1. Aging
	fp := NewFingerprinter().Table("records", in.Records).Sum()
	aged, err := runStage(p, run, StageAging, fp, func() (agingOutput, error) {
		out, report := ClassifyAll(in.Records)
		return agingOutput{Records: out, Report: report}, nil
	}, func(o agingOutput) int { return len(o.Records) })
	if err != nil {
		return nil, err
	}
	run.diag.InvalidDates = aged.Report.InvalidDates

	// 2. Correction at base date
	fp = indexFingerprint(NewFingerprinter().Table("records", aged.Records), indexes).
		Params(p.Corrector.Params()).Sum()
	corrected, err := runStage(p, run, StageCorrection, fp, func() (correctionOutput, error) {
		out, report, err := p.Corrector.Correct(aged.Records, indexes)
		return correctionOutput{Records: out, Report: report}, err
	}, func(o correctionOutput) int { return len(o.Records) })
	if err != nil {
		return nil, err
	}
	run.diag.BaseIndexPaths.Merge(corrected.Report.Paths)
	run.diag.Overdue = corrected.Report.Overdue

	// 3. Recovery
	fp = NewFingerprinter().Table("records", corrected.Records).Table("recovery", in.Recovery).
		Params(map[string]any{
			"fallback_rate":   p.Resolver.FallbackRate,
			"fallback_months": p.Resolver.FallbackMonths,
		}).Sum()
	recovered, err := runStage(p, run, StageRecovery, fp, func() (recoveryOutput, error) {
		out, report, err := p.Resolver.Resolve(corrected.Records, in.Recovery)
		return recoveryOutput{Records: out, Report: report}, err
	}, func(o recoveryOutput) int { return len(o.Records) })
	if err != nil {
		return nil, err
	}
	run.diag.RecoveryMatched = recovered.Report.Matched
	run.diag.RecoveryUnmatched = recovered.Report.Unmatched
	run.diag.MatchRatio = recovered.Report.MatchRatio()
	run.diag.UnmatchedKeys = append([]string(nil), recovered.Report.UnmatchedKeys...)

	// 4. Correction at receipt date
	fp = indexFingerprint(NewFingerprinter().Table("records", recovered.Records), indexes).
		Params(p.Corrector.Params()).Sum()
	projected, err := runStage(p, run, StageReceipt, fp, func() (correctionOutput, error) {
		out, report, err := p.Corrector.ProjectToReceipt(recovered.Records, indexes)
		if err != nil {
			return correctionOutput{}, err
		}
		return correctionOutput{Records: ApplyRecoveryAtReceipt(out), Report: report}, nil
	}, func(o correctionOutput) int { return len(o.Records) })
	if err != nil {
		return nil, err
	}
	run.diag.ReceiptIndexPaths.Merge(projected.Report.Paths)

	// 5. Discount
	fp = NewFingerprinter().Table("records", projected.Records).Table("terms", in.Terms).
		Params(map[string]any{
			"risk_spread": p.Discounter.RiskSpread,
			"convention":  string(p.Discounter.Convention),
		}).Sum()
	discounted, err := runStage(p, run, StageDiscount, fp, func() (discountOutput, error) {
		out, report, err := p.Discounter.Discount(projected.Records, in.Terms)
		var degenerate *DegenerateDiscountError
		if errors.As(err, &degenerate) {
			return discountOutput{Records: out, Report: report, Degenerate: degenerate}, nil
		}
		return discountOutput{Records: out, Report: report}, err
	}, func(o discountOutput) int { return len(o.Records) })
	if err != nil {
		return nil, err
	}
	run.diag.NearestTerm = discounted.Report.Nearest
	run.diag.Degenerate = discounted.Report.Degenerate
	if discounted.Degenerate != nil {
		rows := append([]DegenerateDiscount(nil), discounted.Degenerate.Rows...)
		return discounted.Records, &DegenerateDiscountError{Rows: rows}
	}
	return discounted.Records, nil
}

// runStage runs one stage through the checkpoint cache and reports it.
func runStage[T any](p *Pipeline, run *runState, stage string, fp Fingerprint, compute func() (T, error), rows func(T) int) (T, error) {
	start := time.Now()
	out, cached, err := RunOrFetch(p.Checkpoint, stage, fp, compute)
	elapsed := time.Since(start)
	if err != nil {
		return out, fmt.Errorf("stage %s: %w", stage, err)
	}

	if cached {
		run.diag.CacheHits++
		run.diag.CachedStages = append(run.diag.CachedStages, stage)
	} else {
		run.diag.CacheMisses++
	}
	n := rows(out)
	run.log.Debug("stage completed", "stage", stage, "rows", n, "cached", cached,
		"fingerprint", string(fp), "duration", elapsed)
	if p.Observer != nil {
		p.Observer.StageCompleted(stage, n, cached, elapsed)
	}
	return out, nil
}

func indexFingerprint(f *Fingerprinter, set IndexSet) *Fingerprinter {
	kinds := make([]string, 0, len(set))
	for k := range set {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		f.Table("index:"+k, set[IndexKind(k)])
	}
	return f
}
