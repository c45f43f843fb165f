/*
Package distributor implements the generic correction engine used for
utility-distributor receivables.

PURPOSE:
  Electricity and gas distributors sell overdue invoices to the fund. The
  balance of an invoice is its principal net of amounts already ceded,
  owed to third parties or held under CIP (public lighting contribution),
  and it is corrected by one of two price indices depending on when the
  invoice fell due.

KEY DIFFERENCES FROM FINTECH:
  1. Net value = principal - ceded - third party - CIP, never negative
  2. Index chosen per record by a cutover date on the due date
  3. A second pass projects the balance to the estimated receipt date

INDEX SELECTION:
  due date <  Cutover  -> IndexBeforeCutover (IGP-M by default)
  due date >= Cutover  -> IndexFromCutover   (IPCA by default)

  The choice of indices is configuration, not code: see factory/.

SEE ALSO:
  - policies.go: preset policies
  - correction.go: the engine.Corrector implementation
  - fintech/: the consumer-credit variant
*/
package distributor

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy holds the fixed rates and index selection of a distributor portfolio.
type Policy struct {
	ID   string
	Name string

	Rates engine.AccrualRates

	Cutover            time.Time
	IndexBeforeCutover engine.IndexKind
	IndexFromCutover   engine.IndexKind
}

// IndexFor returns the index kind that corrects an invoice due on dueDate.
func (p Policy) IndexFor(dueDate time.Time) engine.IndexKind {
	if p.Cutover.IsZero() || dueDate.Before(p.Cutover) {
		return p.IndexBeforeCutover
	}
	return p.IndexFromCutover
}

// Kinds returns the distinct index kinds the policy may read.
func (p Policy) Kinds() []engine.IndexKind {
	if p.IndexBeforeCutover == p.IndexFromCutover {
		return []engine.IndexKind{p.IndexBeforeCutover}
	}
	return []engine.IndexKind{p.IndexBeforeCutover, p.IndexFromCutover}
}

// NetValue is principal minus deductions, floored at zero.
func NetValue(r engine.Record) decimal.Decimal {
	return engine.NonNegative(r.Principal.Sub(r.Deductions()))
}
