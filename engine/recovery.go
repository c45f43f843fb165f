/*
recovery.go - Recovery-rate resolution

PURPOSE:
  Attaches to every record the fraction of its corrected balance expected
  to be collected, and how many months collection is expected to take.

JOIN KEY:
  (entity, contract type, coarse bucket), compared case-insensitively after
  trimming. The detailed aging bucket is first collapsed to a coarse one:

    not_due            <- not yet due
    first_year         <- 1-30, 31-59, 60-89, 90-119, 120-359
    second_year        <- 360-719
    third_year         <- 720-1080
    beyond_third_year  <- over 1080, and any bucket without a mapping

FALLBACK:
  Rows with no table entry get the resolver's FallbackRate and
  FallbackMonths and are counted as unmatched. They never fail the batch.
*/
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COARSE BUCKET
// =============================================================================

type CoarseBucket string

const (
	CoarseNotDue          CoarseBucket = "not_due"
	CoarseFirstYear       CoarseBucket = "first_year"
	CoarseSecondYear      CoarseBucket = "second_year"
	CoarseThirdYear       CoarseBucket = "third_year"
	CoarseBeyondThirdYear CoarseBucket = "beyond_third_year"
)

var coarseByBucket = map[AgingBucket]CoarseBucket{
	BucketNotDue:    CoarseNotDue,
	Bucket1To30:     CoarseFirstYear,
	Bucket31To59:    CoarseFirstYear,
	Bucket60To89:    CoarseFirstYear,
	Bucket90To119:   CoarseFirstYear,
	Bucket120To359:  CoarseFirstYear,
	Bucket360To719:  CoarseSecondYear,
	Bucket720To1080: CoarseThirdYear,
	BucketOver1080:  CoarseBeyondThirdYear,
}

// CoarseBucketFor collapses a detailed bucket. Unmapped buckets fall into
// the most overdue coarse bucket.
func CoarseBucketFor(b AgingBucket) CoarseBucket {
	if c, ok := coarseByBucket[b]; ok {
		return c
	}
	return CoarseBeyondThirdYear
}

var coarseAliases = map[string]CoarseBucket{
	"not_due":           CoarseNotDue,
	"a vencer":          CoarseNotDue,
	"first_year":        CoarseFirstYear,
	"primeiro ano":      CoarseFirstYear,
	"second_year":       CoarseSecondYear,
	"segundo ano":       CoarseSecondYear,
	"third_year":        CoarseThirdYear,
	"terceiro ano":      CoarseThirdYear,
	"beyond_third_year": CoarseBeyondThirdYear,
	"demais anos":       CoarseBeyondThirdYear,
}

// ParseCoarseBucket accepts canonical labels and the labels used by the
// fund administrator's recovery spreadsheets.
func ParseCoarseBucket(label string) (CoarseBucket, bool) {
	c, ok := coarseAliases[strings.ToLower(strings.TrimSpace(label))]
	return c, ok
}

// =============================================================================
// RECOVERY TABLE
// =============================================================================

type RecoveryEntry struct {
	Entity          string
	ContractType    string
	Bucket          CoarseBucket
	Rate            float64
	MonthsToReceipt int
}

type recoveryKey struct {
	entity, contractType string
	bucket               CoarseBucket
}

func newRecoveryKey(entity, contractType string, bucket CoarseBucket) recoveryKey {
	return recoveryKey{
		entity:       strings.ToLower(strings.TrimSpace(entity)),
		contractType: strings.ToLower(strings.TrimSpace(contractType)),
		bucket:       bucket,
	}
}

// RecoveryTable is a static lookup loaded once per run.
type RecoveryTable struct {
	entries []RecoveryEntry
	index   map[recoveryKey]RecoveryEntry
}

// NewRecoveryTable indexes entries by key. The first entry for a key wins.
func NewRecoveryTable(entries []RecoveryEntry) *RecoveryTable {
	t := &RecoveryTable{
		entries: make([]RecoveryEntry, len(entries)),
		index:   make(map[recoveryKey]RecoveryEntry, len(entries)),
	}
	copy(t.entries, entries)
	for _, e := range entries {
		k := newRecoveryKey(e.Entity, e.ContractType, e.Bucket)
		if _, exists := t.index[k]; !exists {
			t.index[k] = e
		}
	}
	return t
}

func (t *RecoveryTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func (t *RecoveryTable) Entries() []RecoveryEntry {
	out := make([]RecoveryEntry, t.Len())
	if t != nil {
		copy(out, t.entries)
	}
	return out
}

func (t *RecoveryTable) Lookup(entity, contractType string, bucket CoarseBucket) (RecoveryEntry, bool) {
	if t == nil {
		return RecoveryEntry{}, false
	}
	e, ok := t.index[newRecoveryKey(entity, contractType, bucket)]
	return e, ok
}

// =============================================================================
// RESOLVER
// =============================================================================

// Documented fallbacks for rows the recovery table does not cover.
const (
	DefaultFallbackRecoveryRate = 0.0
	DefaultFallbackMonths       = 12
)

type RecoveryResolver struct {
	FallbackRate   float64
	FallbackMonths int
}

func NewRecoveryResolver() RecoveryResolver {
	return RecoveryResolver{
		FallbackRate:   DefaultFallbackRecoveryRate,
		FallbackMonths: DefaultFallbackMonths,
	}
}

// RecoveryReport describes the join.
type RecoveryReport struct {
	Rows      int
	Matched   int
	Unmatched int
	// UnmatchedKeys lists distinct unmatched keys, sorted, for the warning log.
	UnmatchedKeys []string
}

// MatchRatio is matched rows over total rows; an empty batch matches fully.
func (r RecoveryReport) MatchRatio() float64 {
	if r.Rows == 0 {
		return 1.0
	}
	return float64(r.Matched) / float64(r.Rows)
}

// Resolve joins records against table and computes recoverable value and
// estimated receipt date. A nil or empty table is missing reference data.
func (rr RecoveryResolver) Resolve(records Records, table *RecoveryTable) (Records, RecoveryReport, error) {
	if table.Len() == 0 {
		return nil, RecoveryReport{}, &MissingReferenceDataError{Dataset: DatasetRecoveryTable, Stage: StageRecovery}
	}

	out := records.Clone()
	report := RecoveryReport{Rows: len(out)}
	unmatched := make(map[string]struct{})

	for i := range out {
		r := &out[i]
		r.CoarseBucket = CoarseBucketFor(r.Bucket)
		if entry, ok := table.Lookup(r.Entity, r.ContractType, r.CoarseBucket); ok {
			r.RecoveryRate = entry.Rate
			r.MonthsToReceipt = entry.MonthsToReceipt
			r.RecoveryMatched = true
			report.Matched++
		} else {
			r.RecoveryRate = rr.FallbackRate
			r.MonthsToReceipt = rr.FallbackMonths
			r.RecoveryMatched = false
			report.Unmatched++
			unmatched[fmt.Sprintf("%s/%s/%s", r.Entity, r.ContractType, r.CoarseBucket)] = struct{}{}
		}
		r.RecoverableValue = NonNegative(r.CorrectedAtBase.Mul(decimal.NewFromFloat(r.RecoveryRate)))
		if !r.BaseDate.IsZero() {
			r.ReceiptDate = AddMonths(r.BaseDate, r.MonthsToReceipt)
		}
	}

	for k := range unmatched {
		report.UnmatchedKeys = append(report.UnmatchedKeys, k)
	}
	sort.Strings(report.UnmatchedKeys)
	return out, report, nil
}

// ApplyRecoveryAtReceipt fills RecoverableAtReceipt from CorrectedAtReceipt.
func ApplyRecoveryAtReceipt(records Records) Records {
	out := records.Clone()
	for i := range out {
		out[i].RecoverableAtReceipt = NonNegative(out[i].CorrectedAtReceipt.Mul(decimal.NewFromFloat(out[i].RecoveryRate)))
	}
	return out
}
