/*
Package engine provides the core receivables valuation engine.

PURPOSE:
  This package contains the variant-agnostic types and algorithms used to
  value a portfolio of receivables held by a FIDC. The same engine values
  utility-distributor invoices and consumer-credit notes; only the
  monetary-correction step differs, and that step is supplied by a domain
  package through the Corrector interface.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: one receivable line item, augmented in place by every stage
  - Records: the batch a stage transforms (stages never mutate their input)
  - Variant: which correction engine produced a record
  - IndexKind / IndexPath: which price index was read, and how

STAGES (see pipeline.go):
  aging -> correction -> recovery -> receipt -> discount

DESIGN PRINCIPLES:
  1. Precision: money uses decimal.Decimal, index values and rates float64
  2. Batch semantics: every stage takes the whole table and returns a new one
  3. Auditability: each derived value records the code path that produced it
  4. Determinism: identical inputs produce identical outputs

SEE ALSO:
  - aging.go: days overdue and aging buckets
  - index.go, interpolate.go: index series lookups
  - correction.go: Corrector interface and shared accrual arithmetic
  - recovery.go, discount.go: recovery rates and term-structure discounting
  - checkpoint.go: fingerprint-keyed stage cache
*/
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VARIANT - Which correction engine values a portfolio
// =============================================================================

// Variant selects the correction engine for a whole portfolio. It is resolved
// once, when the portfolio is ingested, and never re-derived per record.
type Variant string

const (
	VariantGeneric Variant = "generic" // utility distributor invoices
	VariantFintech Variant = "fintech" // unsecured consumer-credit notes
)

func (v Variant) Valid() bool { return v == VariantGeneric || v == VariantFintech }

// =============================================================================
// INDEX KIND AND PATH
// =============================================================================

// IndexKind identifies a monthly price index series.
type IndexKind string

const (
	IndexIGPM IndexKind = "igpm" // general-purpose price index
	IndexIPCA IndexKind = "ipca" // consumer price index, used by the fintech variant
)

// ParseIndexKind accepts the kind names case-insensitively, with or without
// the hyphen of the published name ("IGP-M").
func ParseIndexKind(s string) (IndexKind, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "") {
	case "igpm":
		return IndexIGPM, nil
	case "ipca":
		return IndexIPCA, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIndexKind, s)
}

// IndexPath records how an index value was obtained.
type IndexPath string

const (
	PathInterpolated IndexPath = "interpolated" // exact month, blended with the previous point
	PathFallback     IndexPath = "fallback"     // month missing, latest earlier point used
	PathExtrapolated IndexPath = "extrapolated" // beyond the last known month
	PathClamped      IndexPath = "clamped"      // before the first known month
	PathNeutral      IndexPath = "neutral"      // empty series or missing date
)

// =============================================================================
// RECORD - One receivable line item
// =============================================================================

// Record is a receivable line item. Ingestion fills the input fields; each
// pipeline stage fills its own block of derived fields.
type Record struct {
	Row          int // position in the ingested table
	Entity       string
	ContractType string
	Client       string
	DueDate      time.Time
	BaseDate     time.Time
	Principal    decimal.Decimal

	// Deductions, distributor variant only
	Ceded      decimal.Decimal
	ThirdParty decimal.Decimal
	CIP        decimal.Decimal

	// Aging
	DaysOverdue int
	Bucket      AgingBucket
	InvalidDate bool

	// Correction at base date
	Variant              Variant
	IndexKind            IndexKind
	NetValue             decimal.Decimal
	DueIndex             float64
	DueIndexPath         IndexPath
	BaseIndex            float64
	BaseIndexPath        IndexPath
	CorrectionFactor     float64
	MonetaryCorrection   decimal.Decimal
	Penalty              decimal.Decimal
	MoratoryInterest     decimal.Decimal
	RemunerationInterest decimal.Decimal // reported, never added to the balance
	CorrectedAtBase      decimal.Decimal

	// Recovery
	CoarseBucket     CoarseBucket
	RecoveryRate     float64
	MonthsToReceipt  int
	RecoveryMatched  bool
	RecoverableValue decimal.Decimal
	ReceiptDate      time.Time

	// Correction at receipt date
	ReceiptIndex            float64
	ReceiptIndexPath        IndexPath
	DaysOverdueAtReceipt    int
	ReceiptCorrectionFactor float64
	ReceiptCorrection       decimal.Decimal
	ReceiptPenalty          decimal.Decimal
	ReceiptMoratoryInterest decimal.Decimal
	CorrectedAtReceipt      decimal.Decimal
	RecoverableAtReceipt    decimal.Decimal

	// Discounting
	TermMonths         int // term-structure key actually used
	TermExact          bool
	BaseRate           float64
	DiscountRate       float64
	DiscountFactor     float64
	FairValue          decimal.Decimal
	DegenerateDiscount bool
}

// Deductions returns the sum of ceded, third-party and CIP amounts.
func (r Record) Deductions() decimal.Decimal {
	return r.Ceded.Add(r.ThirdParty).Add(r.CIP)
}

// IsOverdue reports whether the record was overdue at its base date.
func (r Record) IsOverdue() bool { return r.DaysOverdue > 0 }

// Records is the table a stage transforms.
type Records []Record

// Clone returns a copy that a stage may modify freely. Records hold only
// values, so a shallow copy of the slice is a deep copy of the data.
func (rs Records) Clone() Records {
	out := make(Records, len(rs))
	copy(out, rs)
	return out
}

// Total sums a decimal field across the table.
func (rs Records) Total(field func(Record) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rs {
		total = total.Add(field(r))
	}
	return total
}
