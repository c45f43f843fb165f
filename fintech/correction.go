package fintech

import (
	"time"

	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// CORRECTOR - engine.Corrector for consumer-credit notes
// =============================================================================

type Corrector struct {
	Policy Policy
}

func NewCorrector(p Policy) *Corrector {
	if p.Index == "" {
		p.Index = engine.IndexIPCA
	}
	return &Corrector{Policy: p}
}

var _ engine.Corrector = (*Corrector)(nil)

func (c *Corrector) Variant() engine.Variant { return engine.VariantFintech }

func (c *Corrector) Params() map[string]any {
	return map[string]any{
		"variant":           string(engine.VariantFintech),
		"policy":            c.Policy.ID,
		"penalty_rate":      c.Policy.Rates.PenaltyRate,
		"monthly_rate":      c.Policy.Rates.MonthlyInterestRate,
		"remuneration_rate": c.Policy.RemunerationRate,
		"index":             string(c.Policy.Index),
	}
}

func (c *Corrector) kindOf(engine.Record) engine.IndexKind { return c.Policy.Index }

// Correct values every note at its base date.
func (c *Corrector) Correct(records engine.Records, indexes engine.IndexSet) (engine.Records, engine.CorrectionReport, error) {
	report := engine.NewCorrectionReport()

	dueValues, err := engine.IndexColumn(records, indexes, engine.StageCorrection, c.kindOf,
		func(r engine.Record) time.Time { return r.DueDate })
	if err != nil {
		return nil, report, err
	}
	baseValues, err := engine.IndexColumn(records, indexes, engine.StageCorrection, c.kindOf,
		func(r engine.Record) time.Time { return r.BaseDate })
	if err != nil {
		return nil, report, err
	}
	report.Paths.Add(dueValues...)
	report.Paths.Add(baseValues...)

	out := records.Clone()
	for i := range out {
		r := &out[i]
		r.Variant = engine.VariantFintech
		r.IndexKind = c.Policy.Index
		r.NetValue = engine.NonNegative(r.Principal)
		r.DueIndex, r.DueIndexPath = dueValues[i].Value, dueValues[i].Path
		r.BaseIndex, r.BaseIndexPath = baseValues[i].Value, baseValues[i].Path

		factor := 1.0
		if r.IsOverdue() {
			factor = engine.CorrectionFactor(r.BaseIndex, r.DueIndex)
			report.Overdue++
		}
		acc := engine.Accrue(r.NetValue, r.DaysOverdue, factor, c.Policy.Rates)
		r.CorrectionFactor = acc.Factor
		r.MonetaryCorrection = acc.Correction
		r.Penalty = acc.Penalty
		r.MoratoryInterest = acc.Moratory
		r.RemunerationInterest = RemunerationInterest(r.NetValue, r.DaysOverdue, c.Policy.RemunerationRate)
		r.CorrectedAtBase = acc.Total
	}
	return out, report, nil
}

// ProjectToReceipt carries the base-date valuation forward unchanged.
func (c *Corrector) ProjectToReceipt(records engine.Records, _ engine.IndexSet) (engine.Records, engine.CorrectionReport, error) {
	out := records.Clone()
	for i := range out {
		r := &out[i]
		r.ReceiptIndex, r.ReceiptIndexPath = r.BaseIndex, r.BaseIndexPath
		r.DaysOverdueAtReceipt = r.DaysOverdue
		r.ReceiptCorrectionFactor = r.CorrectionFactor
		r.ReceiptCorrection = r.MonetaryCorrection
		r.ReceiptPenalty = r.Penalty
		r.ReceiptMoratoryInterest = r.MoratoryInterest
		r.CorrectedAtReceipt = r.CorrectedAtBase
	}
	return out, engine.NewCorrectionReport(), nil
}
