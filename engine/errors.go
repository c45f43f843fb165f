/*
errors.go - Error types for the valuation engine

PURPOSE:
  All error types in one place. Only two conditions stop a batch:
  missing reference data and degenerate discount arithmetic. Everything
  else (unparseable dates, unmatched recovery keys, missing term-structure
  months) is recovered locally and counted in Diagnostics.

ERROR CATEGORIES:
  1. Reference data - a required dataset is absent or empty (fatal)
  2. Arithmetic     - a discount factor is zero or negative (fatal, per record)
  3. Input shape    - malformed series, unknown variant, bad config

USAGE:
  if errors.Is(err, engine.ErrMissingReferenceData) {
      var missing *engine.MissingReferenceDataError
      errors.As(err, &missing)
      log.Printf("load %s first", missing.Dataset)
  }
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingReferenceData is returned when an index series, the recovery
	// table or the term structure is absent or empty.
	ErrMissingReferenceData = errors.New("engine: missing reference data")

	// ErrDegenerateDiscountFactor is returned when a discount factor is zero,
	// negative or not a number.
	ErrDegenerateDiscountFactor = errors.New("engine: degenerate discount factor")

	// ErrInvalidSeries is returned when an index series has duplicate periods.
	ErrInvalidSeries = errors.New("engine: invalid index series")

	// ErrInvalidTermStructure is returned when a term structure has duplicate
	// or non-positive months.
	ErrInvalidTermStructure = errors.New("engine: invalid term structure")

	// ErrVariantMismatch is returned when a portfolio is run through a
	// corrector built for the other variant.
	ErrVariantMismatch = errors.New("engine: variant mismatch")

	ErrUnknownIndexKind = errors.New("engine: unknown index kind")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Reference dataset names used in MissingReferenceDataError.
const (
	DatasetRecoveryTable = "recovery_table"
	DatasetTermStructure = "term_structure"
)

// DatasetIndexSeries names the dataset for an index kind.
func DatasetIndexSeries(kind IndexKind) string { return "index_series:" + string(kind) }

// MissingReferenceDataError names the dataset a stage could not find.
type MissingReferenceDataError struct {
	Dataset string
	Stage   string
}

func (e *MissingReferenceDataError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("missing reference data: %s", e.Dataset)
	}
	return fmt.Sprintf("missing reference data: %s (stage %s)", e.Dataset, e.Stage)
}

func (e *MissingReferenceDataError) Unwrap() error { return ErrMissingReferenceData }

// DegenerateDiscount describes one record whose fair value could not be computed.
type DegenerateDiscount struct {
	Row             int
	MonthsToReceipt int
	TotalRate       float64
	Factor          float64
}

// DegenerateDiscountError lists every record with a degenerate discount factor.
type DegenerateDiscountError struct {
	Rows []DegenerateDiscount
}

func (e *DegenerateDiscountError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for i, r := range e.Rows {
		if i == 5 {
			parts = append(parts, fmt.Sprintf("... %d more", len(e.Rows)-5))
			break
		}
		parts = append(parts, fmt.Sprintf("row %d (months %d, rate %g, factor %g)",
			r.Row, r.MonthsToReceipt, r.TotalRate, r.Factor))
	}
	return fmt.Sprintf("degenerate discount factor on %d record(s): %s",
		len(e.Rows), strings.Join(parts, "; "))
}

func (e *DegenerateDiscountError) Unwrap() error { return ErrDegenerateDiscountFactor }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsMissingReferenceData reports whether err names an absent dataset.
func IsMissingReferenceData(err error) bool {
	return errors.Is(err, ErrMissingReferenceData)
}

// IsDegenerate reports whether err comes from discount arithmetic.
func IsDegenerate(err error) bool {
	return errors.Is(err, ErrDegenerateDiscountFactor)
}
