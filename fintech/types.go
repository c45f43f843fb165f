/*
Package fintech implements the correction engine for unsecured
consumer-credit notes originated by fintech lenders.

PURPOSE:
  Same overall shape as the distributor engine, with three fixed
  differences that follow from the product:

  1. Net value is the principal. Notes carry no deductions.
  2. Remuneration interest, a fixed monthly compound rate, is already
     embedded in the principal for the period between due date and base
     date. It is computed and reported for transparency but never added to
     the balance.
  3. Monetary correction always reads the fintech price index (IPCA),
     whatever the due date.

  The notes are not projected to a receipt date: their value at receipt is
  their corrected value at the base date.

VARIANT DETECTION:
  Whether a portfolio is fintech is decided once, when it is ingested, by
  looking for known markers in the portfolio identifier (see Matches). The
  engine never re-derives it.

SEE ALSO:
  - policies.go: preset policy and markers
  - correction.go: the engine.Corrector implementation
  - distributor/: the utility-invoice variant
*/
package fintech

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// POLICY
// =============================================================================

type Policy struct {
	ID   string
	Name string

	Rates engine.AccrualRates

	// RemunerationRate is the monthly compound rate embedded in the principal.
	RemunerationRate float64

	Index engine.IndexKind
}

// RemunerationInterest is the interest embedded in net for daysOverdue days,
// compounded monthly on a 30-day month. Zero when the note is not overdue.
func RemunerationInterest(net decimal.Decimal, daysOverdue int, monthlyRate float64) decimal.Decimal {
	if daysOverdue <= 0 || monthlyRate == 0 {
		return decimal.Zero
	}
	growth := math.Pow(1+monthlyRate, float64(daysOverdue)/30) - 1
	if math.IsNaN(growth) || math.IsInf(growth, 0) {
		return decimal.Zero
	}
	return net.Mul(decimal.NewFromFloat(growth))
}

// Matches reports whether a portfolio identifier carries one of the markers,
// compared case-insensitively.
func Matches(portfolioID string, markers []string) bool {
	id := strings.ToLower(portfolioID)
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" && strings.Contains(id, m) {
			return true
		}
	}
	return false
}
