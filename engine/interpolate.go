/*
interpolate.go - Proportional-day index lookup and forward extrapolation

PURPOSE:
  Turns a monthly index series into a value for an arbitrary calendar date.

PROPORTIONAL-DAY RULE:
  For a date inside a month the series knows, blend that month's value with
  the previous point by the fraction of the month elapsed:

    value = prev + (curr - prev) * (day / days_in_month)

  On the last day of the month the fraction is 1 and the month's own value
  is returned exactly.

PATHS (recorded on every value for audit):
  interpolated  month present in the series
  fallback      month missing inside the series: latest earlier point, no blend
  clamped       date before the first point: first point's value
  extrapolated  month after the last point (see Extrapolate)
  neutral       empty series or zero date: 1.0

BATCH FORM:
  ValuesAt resolves n dates against m points with one sort of the targets
  and a single forward sweep over the series: O(n log n + m). It returns
  exactly what ValueAt returns for each date.
*/
package engine

import (
	"math"
	"sort"
	"time"
)

// IndexValue is an index reading and the path that produced it.
type IndexValue struct {
	Value float64
	Path  IndexPath
}

var neutralValue = IndexValue{Value: 1.0, Path: PathNeutral}

// ValueAt returns the proportional-day index value for date, extrapolating
// when the date's month is after the last known period.
func (s *IndexSeries) ValueAt(date time.Time) IndexValue {
	if s.IsEmpty() || date.IsZero() {
		return neutralValue
	}
	m := MonthOf(date)
	return s.valueAtPosition(date, m, s.search(m))
}

// valueAtPosition resolves date given i, the first point not before its month.
func (s *IndexSeries) valueAtPosition(date time.Time, m Month, i int) IndexValue {
	n := len(s.points)
	if m.After(s.points[n-1].Period) {
		return s.extrapolate(date, m)
	}
	if i < n && s.points[i].Period.Equal(m) {
		curr := s.points[i].Value
		prev := curr
		if i > 0 {
			prev = s.points[i-1].Value
		}
		return IndexValue{Value: prev + (curr-prev)*DayFraction(date), Path: PathInterpolated}
	}
	if i > 0 {
		return IndexValue{Value: s.points[i-1].Value, Path: PathFallback}
	}
	return IndexValue{Value: s.points[0].Value, Path: PathClamped}
}

// Extrapolate projects the series forward to date using the trailing
// month-over-month growth floored at zero, compounded once per whole month
// past the last known period. Mid-month dates blend with the value one
// compounding step earlier. The result is never below 1.0.
//
// Dates that do not lie beyond the series are resolved by ValueAt.
func (s *IndexSeries) Extrapolate(date time.Time) IndexValue {
	if s.IsEmpty() || date.IsZero() {
		return neutralValue
	}
	m := MonthOf(date)
	last := s.points[len(s.points)-1]
	if !m.After(last.Period) {
		return s.ValueAt(date)
	}
	return s.extrapolate(date, m)
}

func (s *IndexSeries) extrapolate(date time.Time, m Month) IndexValue {
	last := s.points[len(s.points)-1]
	steps := last.Period.MonthsUntil(m)
	growth := 1 + s.TrailingGrowth()

	value := last.Value * math.Pow(growth, float64(steps))
	if !IsMonthEnd(date) {
		prev := last.Value * math.Pow(growth, float64(steps-1))
		value = prev + (value-prev)*DayFraction(date)
	}
	if value < 1.0 {
		value = 1.0
	}
	return IndexValue{Value: value, Path: PathExtrapolated}
}

// ValuesAt resolves every date in one sweep. The result is aligned with dates.
func (s *IndexSeries) ValuesAt(dates []time.Time) []IndexValue {
	out := make([]IndexValue, len(dates))
	if s.IsEmpty() {
		for i := range out {
			out[i] = neutralValue
		}
		return out
	}

	order := make([]int, 0, len(dates))
	for i, d := range dates {
		if d.IsZero() {
			out[i] = neutralValue
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return MonthOf(dates[order[a]]).Before(MonthOf(dates[order[b]]))
	})

	cursor := 0
	for _, idx := range order {
		m := MonthOf(dates[idx])
		key := m.Ordinal()
		for cursor < len(s.points) && s.points[cursor].Period.Ordinal() < key {
			cursor++
		}
		out[idx] = s.valueAtPosition(dates[idx], m, cursor)
	}
	return out
}

// PathCounts tallies how a batch of values was produced.
type PathCounts map[IndexPath]int

func (pc PathCounts) Add(values ...IndexValue) {
	for _, v := range values {
		pc[v.Path]++
	}
}

func (pc PathCounts) Merge(other PathCounts) {
	for k, v := range other {
		pc[k] += v
	}
}
