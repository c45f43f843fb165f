/*
aging.go - Days overdue and aging buckets

PURPOSE:
  Maps a (base date, due date) pair to a days-overdue count and one of nine
  ordered aging buckets. Every later stage keys off these two values.

BREAKPOINTS (inclusive on the lower bucket):
  0 | 30 | 59 | 89 | 119 | 359 | 719 | 1080 | beyond

  days_overdue == 0   -> not yet due
  days_overdue == 30  -> 1-30
  days_overdue == 31  -> 31-59

INVALID DATES:
  A zero due date or base date cannot be aged. The record is treated as
  not yet due with zero days overdue and counted as a data-quality warning.
*/
package engine

import "time"

// =============================================================================
// AGING BUCKET
// =============================================================================

type AgingBucket int

const (
	BucketNotDue AgingBucket = iota
	Bucket1To30
	Bucket31To59
	Bucket60To89
	Bucket90To119
	Bucket120To359
	Bucket360To719
	Bucket720To1080
	BucketOver1080
)

// agingBreakpoints[i] is the inclusive upper bound of bucket i.
var agingBreakpoints = [...]int{0, 30, 59, 89, 119, 359, 719, 1080}

var bucketLabels = [...]string{
	BucketNotDue:    "not_due",
	Bucket1To30:     "overdue_1_30",
	Bucket31To59:    "overdue_31_59",
	Bucket60To89:    "overdue_60_89",
	Bucket90To119:   "overdue_90_119",
	Bucket120To359:  "overdue_120_359",
	Bucket360To719:  "overdue_360_719",
	Bucket720To1080: "overdue_720_1080",
	BucketOver1080:  "overdue_over_1080",
}

func (b AgingBucket) String() string {
	if b < BucketNotDue || int(b) >= len(bucketLabels) {
		return "unknown"
	}
	return bucketLabels[b]
}

// AgingBuckets returns every bucket in order.
func AgingBuckets() []AgingBucket {
	out := make([]AgingBucket, len(bucketLabels))
	for i := range out {
		out[i] = AgingBucket(i)
	}
	return out
}

// BucketFor maps days overdue to its bucket. Negative counts are not yet due.
func BucketFor(daysOverdue int) AgingBucket {
	for i, upper := range agingBreakpoints {
		if daysOverdue <= upper {
			return AgingBucket(i)
		}
	}
	return BucketOver1080
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify returns days overdue and bucket. ok is false when either date is
// missing, in which case the record is aged as not yet due.
func Classify(baseDate, dueDate time.Time) (daysOverdue int, bucket AgingBucket, ok bool) {
	if baseDate.IsZero() || dueDate.IsZero() {
		return 0, BucketNotDue, false
	}
	days := DaysBetween(dueDate, baseDate)
	if days < 0 {
		days = 0
	}
	return days, BucketFor(days), true
}

// AgingReport counts what the aging stage recovered from.
type AgingReport struct {
	InvalidDates int
	ByBucket     map[AgingBucket]int
}

// ClassifyAll ages the whole table in one pass and returns a new table.
func ClassifyAll(records Records) (Records, AgingReport) {
	out := records.Clone()
	report := AgingReport{ByBucket: make(map[AgingBucket]int)}
	for i := range out {
		days, bucket, ok := Classify(out[i].BaseDate, out[i].DueDate)
		out[i].DaysOverdue = days
		out[i].Bucket = bucket
		out[i].InvalidDate = !ok
		if !ok {
			report.InvalidDates++
		}
		report.ByBucket[bucket]++
	}
	return out, report
}
