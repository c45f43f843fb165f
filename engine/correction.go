/*
correction.go - Corrector interface and shared accrual arithmetic

PURPOSE:
  The engine does not know how a portfolio is monetarily corrected. Domain
  packages implement Corrector:

    distributor/  utility invoices, net of deductions, index chosen by a
                  cutover date, projected to the estimated receipt date
    fintech/      consumer-credit notes, principal only, fixed price index,
                  remuneration interest already embedded in the principal

  Both variants share the same accrual shape, implemented here so the two
  cannot drift apart.

ACCRUAL SHAPE (overdue records only):
  factor      = max(1, index_at(to) / index_at(due))
  correction  = net * (factor - 1)
  penalty     = net * penalty_rate
  moratory    = net * monthly_rate * days_overdue / 30   (linear)
  corrected   = net + penalty + moratory + correction

  Records that are not overdue keep factor 1 and zero accruals.
*/
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CORRECTOR - Implemented by variant packages
// =============================================================================

type Corrector interface {
	// Variant identifies the engine, recorded on every record for audit.
	Variant() Variant

	// Correct values every record at its base date. The input is not modified.
	Correct(records Records, indexes IndexSet) (Records, CorrectionReport, error)

	// ProjectToReceipt values every record at its ReceiptDate, which the
	// recovery stage has already filled. The input is not modified.
	ProjectToReceipt(records Records, indexes IndexSet) (Records, CorrectionReport, error)

	// Params returns every scalar that affects results, for fingerprinting.
	Params() map[string]any
}

// CorrectionReport counts how index values were obtained during a pass.
type CorrectionReport struct {
	Paths   PathCounts
	Overdue int
}

func NewCorrectionReport() CorrectionReport {
	return CorrectionReport{Paths: make(PathCounts)}
}

// =============================================================================
// ACCRUAL ARITHMETIC
// =============================================================================

var (
	one    = decimal.NewFromInt(1)
	thirty = decimal.NewFromInt(30)
)

// AccrualRates are the fixed rates of a variant.
type AccrualRates struct {
	PenaltyRate         float64 // one-off fraction of net value
	MonthlyInterestRate float64 // linear, per 30 days overdue
}

// Accrual is the result of correcting one balance to one date.
type Accrual struct {
	Factor     float64
	Correction decimal.Decimal
	Penalty    decimal.Decimal
	Moratory   decimal.Decimal
	Total      decimal.Decimal
}

// CorrectionFactor is the index ratio floored at 1: a balance never gets
// cheaper through indexation. A zero base index yields the neutral factor.
func CorrectionFactor(indexAt, indexAtDue float64) float64 {
	if indexAtDue == 0 {
		return 1.0
	}
	f := indexAt / indexAtDue
	if f < 1.0 || f != f {
		return 1.0
	}
	return f
}

// Accrue applies correction, penalty and linear moratory interest to net.
// Nothing accrues when daysOverdue is zero.
func Accrue(net decimal.Decimal, daysOverdue int, factor float64, rates AccrualRates) Accrual {
	if daysOverdue <= 0 {
		return Accrual{
			Factor:     1.0,
			Correction: decimal.Zero,
			Penalty:    decimal.Zero,
			Moratory:   decimal.Zero,
			Total:      net,
		}
	}
	if factor < 1.0 {
		factor = 1.0
	}
	correction := net.Mul(decimal.NewFromFloat(factor).Sub(one))
	penalty := net.Mul(decimal.NewFromFloat(rates.PenaltyRate))
	moratory := net.Mul(decimal.NewFromFloat(rates.MonthlyInterestRate)).
		Mul(decimal.NewFromInt(int64(daysOverdue))).
		Div(thirty)
	return Accrual{
		Factor:     factor,
		Correction: correction,
		Penalty:    penalty,
		Moratory:   moratory,
		Total:      net.Add(penalty).Add(moratory).Add(correction),
	}
}

// NonNegative floors d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// OverdueDays counts days from due to at, floored at zero. Missing dates count as zero.
func OverdueDays(dueDate, at time.Time) int {
	if dueDate.IsZero() || at.IsZero() {
		return 0
	}
	if d := DaysBetween(dueDate, at); d > 0 {
		return d
	}
	return 0
}

// IndexColumn resolves one index value per record. Records are grouped by the
// kind they read so each series is swept once over its whole batch of dates.
func IndexColumn(records Records, indexes IndexSet, stage string,
	kindOf func(Record) IndexKind, dateOf func(Record) time.Time) ([]IndexValue, error) {
	groups := make(map[IndexKind][]int)
	for i, r := range records {
		k := kindOf(r)
		groups[k] = append(groups[k], i)
	}

	kinds := make([]IndexKind, 0, len(groups))
	for k := range groups {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	out := make([]IndexValue, len(records))
	for _, kind := range kinds {
		rows := groups[kind]
		series, err := indexes.Require(kind, stage)
		if err != nil {
			return nil, err
		}
		dates := make([]time.Time, len(rows))
		for j, i := range rows {
			dates[j] = dateOf(records[i])
		}
		for j, v := range series.ValuesAt(dates) {
			out[rows[j]] = v
		}
	}
	return out, nil
}
