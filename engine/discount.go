/*
discount.go - Term-structure discounting to fair value

PURPOSE:
  Brings the recoverable value at the estimated receipt date back to the
  base date with a risk-adjusted rate read from an interest-rate term
  structure keyed by months ahead.

ARITHMETIC:
  total_rate = (1 + base_rate) * (1 + risk_spread) - 1
  factor     = (1 + total_rate) ^ (months_to_receipt / 12)
  fair_value = max(0, recoverable_at_receipt / factor)

  A factor below 1 (negative rates) is accepted. A factor that is zero,
  negative or not a number is degenerate: the record is flagged, its fair
  value left at zero, and the stage returns a DegenerateDiscountError.

LOOKUP:
  Exact month first; otherwise the nearest month by absolute distance,
  ties broken toward the larger month. Each distinct month is resolved
  once per batch.
*/
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TERM STRUCTURE
// =============================================================================

// RateConvention picks which annualized rate of a term point is used.
type RateConvention string

const (
	Convention252 RateConvention = "252" // business days
	Convention360 RateConvention = "360" // calendar days
)

func (c RateConvention) Valid() bool { return c == Convention252 || c == Convention360 }

// TermPoint holds annualized rates as fractions (0.105 is 10.5% a year).
type TermPoint struct {
	Months  int
	Rate252 float64
	Rate360 *float64
}

// Rate returns the rate for the convention, falling back to the 252 rate
// when the 360 rate was not published.
func (p TermPoint) Rate(c RateConvention) float64 {
	if c == Convention360 && p.Rate360 != nil {
		return *p.Rate360
	}
	return p.Rate252
}

type TermStructure struct {
	points []TermPoint
}

// NewTermStructure sorts points by month and rejects duplicate or
// non-positive months.
func NewTermStructure(points []TermPoint) (*TermStructure, error) {
	sorted := make([]TermPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Months < sorted[j].Months })
	for i, p := range sorted {
		if p.Months <= 0 {
			return nil, fmt.Errorf("%w: month %d", ErrInvalidTermStructure, p.Months)
		}
		if i > 0 && sorted[i-1].Months == p.Months {
			return nil, fmt.Errorf("%w: duplicate month %d", ErrInvalidTermStructure, p.Months)
		}
	}
	return &TermStructure{points: sorted}, nil
}

// MustTermStructure is NewTermStructure for fixtures.
func MustTermStructure(points ...TermPoint) *TermStructure {
	ts, err := NewTermStructure(points)
	if err != nil {
		panic(err)
	}
	return ts
}

func (ts *TermStructure) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.points)
}

func (ts *TermStructure) Points() []TermPoint {
	out := make([]TermPoint, ts.Len())
	if ts != nil {
		copy(out, ts.points)
	}
	return out
}

// Nearest returns the point for months, or the nearest one by absolute
// distance with ties going to the larger month. exact reports a direct hit.
func (ts *TermStructure) Nearest(months int) (point TermPoint, exact bool) {
	if ts.Len() == 0 {
		return TermPoint{}, false
	}
	i := sort.Search(len(ts.points), func(i int) bool { return ts.points[i].Months >= months })
	switch {
	case i < len(ts.points) && ts.points[i].Months == months:
		return ts.points[i], true
	case i == 0:
		return ts.points[0], false
	case i == len(ts.points):
		return ts.points[i-1], false
	}
	below, above := ts.points[i-1], ts.points[i]
	if months-below.Months < above.Months-months {
		return below, false
	}
	return above, false
}

// =============================================================================
// DISCOUNTER
// =============================================================================

// DefaultRiskSpread is the annual spread over the term-structure rate.
const DefaultRiskSpread = 0.025

type Discounter struct {
	RiskSpread float64
	Convention RateConvention
}

func NewDiscounter() Discounter {
	return Discounter{RiskSpread: DefaultRiskSpread, Convention: Convention252}
}

// TotalRate composes the base rate with the risk spread.
func TotalRate(baseRate, riskSpread float64) float64 {
	return (1+baseRate)*(1+riskSpread) - 1
}

// DiscountFactor compounds the annual rate over months/12 years.
func DiscountFactor(totalRate float64, months int) float64 {
	return math.Pow(1+totalRate, float64(months)/12)
}

func degenerate(factor float64) bool {
	return factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0)
}

// DiscountReport describes the join against the term structure.
type DiscountReport struct {
	Rows       int
	Nearest    int // rows resolved by nearest neighbor
	Degenerate int
}

// Discount computes fair value for every record. On degenerate factors the
// returned table is still complete and the error lists the affected rows.
func (d Discounter) Discount(records Records, terms *TermStructure) (Records, DiscountReport, error) {
	if terms.Len() == 0 {
		return nil, DiscountReport{}, &MissingReferenceDataError{Dataset: DatasetTermStructure, Stage: StageDiscount}
	}
	convention := d.Convention
	if !convention.Valid() {
		convention = Convention252
	}

	type resolved struct {
		point TermPoint
		exact bool
	}
	byMonths := make(map[int]resolved)
	for _, r := range records {
		if _, ok := byMonths[r.MonthsToReceipt]; !ok {
			p, exact := terms.Nearest(r.MonthsToReceipt)
			byMonths[r.MonthsToReceipt] = resolved{point: p, exact: exact}
		}
	}

	out := records.Clone()
	report := DiscountReport{Rows: len(out)}
	var failures []DegenerateDiscount

	for i := range out {
		r := &out[i]
		res := byMonths[r.MonthsToReceipt]
		r.TermMonths = res.point.Months
		r.TermExact = res.exact
		if !res.exact {
			report.Nearest++
		}
		r.BaseRate = res.point.Rate(convention)
		r.DiscountRate = TotalRate(r.BaseRate, d.RiskSpread)
		r.DiscountFactor = DiscountFactor(r.DiscountRate, r.MonthsToReceipt)

		if degenerate(r.DiscountFactor) {
			r.DegenerateDiscount = true
			r.FairValue = decimal.Zero
			report.Degenerate++
			failures = append(failures, DegenerateDiscount{
				Row:             r.Row,
				MonthsToReceipt: r.MonthsToReceipt,
				TotalRate:       r.DiscountRate,
				Factor:          r.DiscountFactor,
			})
			continue
		}
		r.DegenerateDiscount = false
		r.FairValue = NonNegative(r.RecoverableAtReceipt.Div(decimal.NewFromFloat(r.DiscountFactor)))
	}

	if len(failures) > 0 {
		return out, report, &DegenerateDiscountError{Rows: failures}
	}
	return out, report, nil
}
