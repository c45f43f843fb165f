package fintech

import "github.com/warp/receivables-engine/engine"

// Contractual defaults for consumer-credit notes.
const (
	DefaultPenaltyRate         = 0.02
	DefaultMonthlyInterestRate = 0.01
	DefaultRemunerationRate    = 0.0465 // 4.65% a month, compound
)

// DefaultMarkers identify fintech portfolios by name.
var DefaultMarkers = []string{"fintech", "ccb", "consumer-credit"}

// StandardPolicy returns the policy for consumer-credit notes.
func StandardPolicy() Policy {
	return Policy{
		ID:   "fintech-standard",
		Name: "Consumer-credit notes (IPCA)",
		Rates: engine.AccrualRates{
			PenaltyRate:         DefaultPenaltyRate,
			MonthlyInterestRate: DefaultMonthlyInterestRate,
		},
		RemunerationRate: DefaultRemunerationRate,
		Index:            engine.IndexIPCA,
	}
}
