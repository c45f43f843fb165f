package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - Year-month key for monthly index series
// =============================================================================

type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month {
	return MonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month { return Month{Year: t.Year(), Month: t.Month()} }

// ParseMonth accepts "2006-01" and "2006-01-02".
func ParseMonth(s string) (Month, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return Month{}, fmt.Errorf("invalid month %q", s)
}

// Ordinal is a strictly increasing integer key: consecutive months differ by one.
func (m Month) Ordinal() int { return m.Year*12 + int(m.Month) - 1 }

func (m Month) AddMonths(n int) Month {
	return MonthOf(time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

func (m Month) Before(o Month) bool { return m.Ordinal() < o.Ordinal() }
func (m Month) After(o Month) bool  { return m.Ordinal() > o.Ordinal() }
func (m Month) Equal(o Month) bool  { return m.Ordinal() == o.Ordinal() }

// MonthsUntil returns the number of whole months from m to o (negative if o is earlier).
func (m Month) MonthsUntil(o Month) int { return o.Ordinal() - m.Ordinal() }

func (m Month) Start() time.Time { return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC) }
func (m Month) End() time.Time   { return m.Start().AddDate(0, 1, -1) }
func (m Month) Days() int        { return m.End().Day() }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// =============================================================================
// DAY ARITHMETIC
// =============================================================================

// Date builds a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from one date to another, ignoring time of day.
func DaysBetween(from, to time.Time) int {
	return int(normalize(to).Sub(normalize(from)).Hours() / 24)
}

func DaysInMonth(t time.Time) int { return MonthOf(t).Days() }

func IsMonthEnd(t time.Time) bool { return t.Day() == DaysInMonth(t) }

// DayFraction is day_of_month / days_in_month, the weight of the current
// month in a proportional-day blend.
func DayFraction(t time.Time) float64 {
	return float64(t.Day()) / float64(DaysInMonth(t))
}

// AddMonths behaves like a spreadsheet EDATE: the day is clamped to the end
// of the target month instead of overflowing into the next one.
func AddMonths(t time.Time, n int) time.Time {
	target := MonthOf(t).AddMonths(n)
	day := t.Day()
	if last := target.Days(); day > last {
		day = last
	}
	return Date(target.Year, target.Month, day)
}
