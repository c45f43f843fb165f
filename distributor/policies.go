package distributor

import (
	"time"

	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// PRESET POLICIES
// =============================================================================

// Contractual defaults for distributor invoices.
const (
	DefaultPenaltyRate         = 0.02 // 2% one-off late fee
	DefaultMonthlyInterestRate = 0.01 // 1% a month, linear
)

// DefaultCutover is the first due date corrected by IPCA instead of IGP-M.
var DefaultCutover = engine.Date(2021, time.May, 1)

// StandardPolicy returns the policy most distributor portfolios use.
func StandardPolicy() Policy {
	return Policy{
		ID:   "distributor-standard",
		Name: "Distributor invoices (IGP-M then IPCA)",
		Rates: engine.AccrualRates{
			PenaltyRate:         DefaultPenaltyRate,
			MonthlyInterestRate: DefaultMonthlyInterestRate,
		},
		Cutover:            DefaultCutover,
		IndexBeforeCutover: engine.IndexIGPM,
		IndexFromCutover:   engine.IndexIPCA,
	}
}

// SingleIndexPolicy corrects every invoice by one index regardless of due date.
func SingleIndexPolicy(id string, kind engine.IndexKind) Policy {
	p := StandardPolicy()
	p.ID = id
	p.Name = "Distributor invoices (" + string(kind) + ")"
	p.Cutover = time.Time{}
	p.IndexBeforeCutover = kind
	p.IndexFromCutover = kind
	return p
}
