package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIAGNOSTICS - Attached to every pipeline result
// =============================================================================

// Totals are portfolio sums of the main monetary columns.
type Totals struct {
	Principal            decimal.Decimal
	NetValue             decimal.Decimal
	CorrectedAtBase      decimal.Decimal
	RecoverableValue     decimal.Decimal
	CorrectedAtReceipt   decimal.Decimal
	RecoverableAtReceipt decimal.Decimal
	FairValue            decimal.Decimal
}

func totalsOf(rs Records) Totals {
	return Totals{
		Principal:            rs.Total(func(r Record) decimal.Decimal { return r.Principal }),
		NetValue:             rs.Total(func(r Record) decimal.Decimal { return r.NetValue }),
		CorrectedAtBase:      rs.Total(func(r Record) decimal.Decimal { return r.CorrectedAtBase }),
		RecoverableValue:     rs.Total(func(r Record) decimal.Decimal { return r.RecoverableValue }),
		CorrectedAtReceipt:   rs.Total(func(r Record) decimal.Decimal { return r.CorrectedAtReceipt }),
		RecoverableAtReceipt: rs.Total(func(r Record) decimal.Decimal { return r.RecoverableAtReceipt }),
		FairValue:            rs.Total(func(r Record) decimal.Decimal { return r.FairValue }),
	}
}

// Diagnostics counts every recoverable condition met during a run.
type Diagnostics struct {
	RunID       string
	PortfolioID string
	Variant     Variant
	Rows        int

	InvalidDates int
	Overdue      int

	BaseIndexPaths    PathCounts // due-date and base-date lookups
	ReceiptIndexPaths PathCounts // receipt-date lookups

	RecoveryMatched   int
	RecoveryUnmatched int
	MatchRatio        float64
	UnmatchedKeys     []string

	NearestTerm int
	Degenerate  int

	CachedStages []string
	CacheHits    int
	CacheMisses  int

	Totals   Totals
	Duration time.Duration
}

func newDiagnostics(runID string, in Input, variant Variant) Diagnostics {
	return Diagnostics{
		RunID:             runID,
		PortfolioID:       in.PortfolioID,
		Variant:           variant,
		Rows:              len(in.Records),
		BaseIndexPaths:    make(PathCounts),
		ReceiptIndexPaths: make(PathCounts),
		MatchRatio:        1.0,
	}
}

// Extrapolated counts index values projected beyond the known series.
func (d Diagnostics) Extrapolated() int {
	return d.BaseIndexPaths[PathExtrapolated] + d.ReceiptIndexPaths[PathExtrapolated]
}

// Fallbacks counts index values read from an earlier month or clamped to the
// first one.
func (d Diagnostics) Fallbacks() int {
	return d.BaseIndexPaths[PathFallback] + d.BaseIndexPaths[PathClamped] +
		d.ReceiptIndexPaths[PathFallback] + d.ReceiptIndexPaths[PathClamped]
}

// Warnings renders the non-zero recoverable conditions.
func (d Diagnostics) Warnings() []string {
	var out []string
	if d.InvalidDates > 0 {
		out = append(out, fmt.Sprintf("%d record(s) with missing or invalid dates aged as not yet due", d.InvalidDates))
	}
	if n := d.Fallbacks(); n > 0 {
		out = append(out, fmt.Sprintf("%d index value(s) read from an earlier or first available month", n))
	}
	if n := d.Extrapolated(); n > 0 {
		out = append(out, fmt.Sprintf("%d index value(s) extrapolated beyond the last known month", n))
	}
	if d.RecoveryUnmatched > 0 {
		out = append(out, fmt.Sprintf("%d record(s) without a recovery-rate entry used the fallback rate", d.RecoveryUnmatched))
	}
	if d.NearestTerm > 0 {
		out = append(out, fmt.Sprintf("%d record(s) discounted with the nearest term-structure month", d.NearestTerm))
	}
	if d.Degenerate > 0 {
		out = append(out, fmt.Sprintf("%d record(s) with a degenerate discount factor", d.Degenerate))
	}
	return out
}
