package distributor

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// CORRECTOR - engine.Corrector for distributor invoices
// =============================================================================

type Corrector struct {
	Policy Policy
}

func NewCorrector(p Policy) *Corrector {
	return &Corrector{Policy: p}
}

var _ engine.Corrector = (*Corrector)(nil)

func (c *Corrector) Variant() engine.Variant { return engine.VariantGeneric }

func (c *Corrector) Params() map[string]any {
	return map[string]any{
		"variant":      string(engine.VariantGeneric),
		"policy":       c.Policy.ID,
		"penalty_rate": c.Policy.Rates.PenaltyRate,
		"monthly_rate": c.Policy.Rates.MonthlyInterestRate,
		"cutover":      c.Policy.Cutover.Format("2006-01-02"),
		"index_before": string(c.Policy.IndexBeforeCutover),
		"index_from":   string(c.Policy.IndexFromCutover),
	}
}

func (c *Corrector) kindOf(r engine.Record) engine.IndexKind { return c.Policy.IndexFor(r.DueDate) }

// Correct values every invoice at its base date. Index values are looked up
// for every record for audit; accruals apply only to overdue ones.
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
		r.Variant = engine.VariantGeneric
		r.IndexKind = c.kindOf(*r)
		r.NetValue = NetValue(*r)
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
		r.RemunerationInterest = decimal.Zero
		r.CorrectedAtBase = acc.Total
	}
	return out, report, nil
}

// ProjectToReceipt repeats the base-date accruals up to the estimated receipt
// date. Days overdue are recounted from the due date, so an invoice not yet
// due at the base date can be overdue by the time it is collected.
func (c *Corrector) ProjectToReceipt(records engine.Records, indexes engine.IndexSet) (engine.Records, engine.CorrectionReport, error) {
	report := engine.NewCorrectionReport()

	receiptValues, err := engine.IndexColumn(records, indexes, engine.StageReceipt, c.kindOf,
		func(r engine.Record) time.Time { return r.ReceiptDate })
	if err != nil {
		return nil, report, err
	}
	report.Paths.Add(receiptValues...)

	out := records.Clone()
	for i := range out {
		r := &out[i]
		r.ReceiptIndex, r.ReceiptIndexPath = receiptValues[i].Value, receiptValues[i].Path
		r.DaysOverdueAtReceipt = engine.OverdueDays(r.DueDate, r.ReceiptDate)

		factor := 1.0
		if r.DaysOverdueAtReceipt > 0 {
			factor = engine.CorrectionFactor(r.ReceiptIndex, r.DueIndex)
			report.Overdue++
		}
		acc := engine.Accrue(r.NetValue, r.DaysOverdueAtReceipt, factor, c.Policy.Rates)
		r.ReceiptCorrectionFactor = acc.Factor
		r.ReceiptCorrection = acc.Correction
		r.ReceiptPenalty = acc.Penalty
		r.ReceiptMoratoryInterest = acc.Moratory
		r.CorrectedAtReceipt = acc.Total
	}
	return out, report, nil
}
