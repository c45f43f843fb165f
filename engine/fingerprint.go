/*
fingerprint.go - Structural fingerprints of stage inputs

PURPOSE:
  A stage's inputs are reduced to a short key so the checkpoint cache can
  tell whether it has already computed them. The key covers, per table:

    - shape (row and column counts)
    - column set
    - a sample of rows (first and last few)
    - the sum of every numeric column

  plus a canonical JSON encoding of the stage's scalar parameters.

COLLISION RISK:
  The full table content is NOT hashed. Two large tables with identical
  shape, columns, sampled rows and numeric sum but different interior rows
  produce the same fingerprint, and the second would be served the first
  one's result. This is accepted: hashing every row on every invocation
  would make the cache cost as much as the computation it skips.
*/
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

// fingerprintSampleRows rows are sampled from each end of a table.
const fingerprintSampleRows = 5

// Tabular is anything that can be fingerprinted as a table.
type Tabular interface {
	Columns() []string
	Len() int
	Row(i int) []string
	NumericSum() float64
}

type Fingerprint string

// Fingerprinter accumulates tables and parameters into one hash.
type Fingerprinter struct {
	digest *xxhash.Digest
}

func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{digest: xxhash.New()}
}

func (f *Fingerprinter) write(parts ...string) {
	for _, p := range parts {
		_, _ = f.digest.WriteString(p)
		_, _ = f.digest.Write([]byte{0})
	}
}

// Table adds a named table's structure and samples.
func (f *Fingerprinter) Table(name string, t Tabular) *Fingerprinter {
	cols := append([]string(nil), t.Columns()...)
	sort.Strings(cols)
	n := t.Len()

	f.write("table", name, strconv.Itoa(n), strconv.Itoa(len(cols)))
	f.write(cols...)
	for _, i := range sampleRows(n) {
		f.write("row", strconv.Itoa(i))
		f.write(t.Row(i)...)
	}
	f.write("sum", formatFloat(t.NumericSum()))
	return f
}

// Params adds scalar parameters. encoding/json sorts map keys, which makes
// the encoding canonical.
func (f *Fingerprinter) Params(params map[string]any) *Fingerprinter {
	b, err := json.Marshal(params)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", params))
	}
	f.write("params", string(b))
	return f
}

func (f *Fingerprinter) Sum() Fingerprint {
	return Fingerprint(fmt.Sprintf("%016x", f.digest.Sum64()))
}

func sampleRows(n int) []int {
	if n <= 2*fingerprintSampleRows {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, 2*fingerprintSampleRows)
	for i := 0; i < fingerprintSampleRows; i++ {
		out = append(out, i)
	}
	for i := n - fingerprintSampleRows; i < n; i++ {
		out = append(out, i)
	}
	return out
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// =============================================================================
// TABULAR IMPLEMENTATIONS
// =============================================================================

var recordColumns = []string{
	"row", "entity", "contract_type", "client", "due_date", "base_date",
	"principal", "ceded", "third_party", "cip",
	"days_overdue", "bucket", "invalid_date",
	"variant", "index_kind", "net_value", "due_index", "base_index", "correction_factor",
	"monetary_correction", "penalty", "moratory_interest", "remuneration_interest", "corrected_at_base",
	"coarse_bucket", "recovery_rate", "months_to_receipt", "recovery_matched", "recoverable_value", "receipt_date",
	"receipt_index", "receipt_correction_factor", "corrected_at_receipt", "recoverable_at_receipt",
	"term_months", "discount_rate", "discount_factor", "fair_value",
}

func (rs Records) Columns() []string { return recordColumns }
func (rs Records) Len() int          { return len(rs) }

func (rs Records) Row(i int) []string {
	r := rs[i]
	return []string{
		strconv.Itoa(r.Row), r.Entity, r.ContractType, r.Client, formatDate(r.DueDate), formatDate(r.BaseDate),
		r.Principal.String(), r.Ceded.String(), r.ThirdParty.String(), r.CIP.String(),
		strconv.Itoa(r.DaysOverdue), r.Bucket.String(), strconv.FormatBool(r.InvalidDate),
		string(r.Variant), string(r.IndexKind), r.NetValue.String(),
		formatFloat(r.DueIndex), formatFloat(r.BaseIndex), formatFloat(r.CorrectionFactor),
		r.MonetaryCorrection.String(), r.Penalty.String(), r.MoratoryInterest.String(),
		r.RemunerationInterest.String(), r.CorrectedAtBase.String(),
		string(r.CoarseBucket), formatFloat(r.RecoveryRate), strconv.Itoa(r.MonthsToReceipt),
		strconv.FormatBool(r.RecoveryMatched), r.RecoverableValue.String(), formatDate(r.ReceiptDate),
		formatFloat(r.ReceiptIndex), formatFloat(r.ReceiptCorrectionFactor),
		r.CorrectedAtReceipt.String(), r.RecoverableAtReceipt.String(),
		strconv.Itoa(r.TermMonths), formatFloat(r.DiscountRate), formatFloat(r.DiscountFactor), r.FairValue.String(),
	}
}

func (rs Records) NumericSum() float64 {
	total := decimal.Zero
	var counts float64
	for _, r := range rs {
		total = total.Add(r.Principal).Add(r.Deductions()).Add(r.NetValue).
			Add(r.CorrectedAtBase).Add(r.RecoverableValue).
			Add(r.CorrectedAtReceipt).Add(r.RecoverableAtReceipt).Add(r.FairValue)
		counts += float64(r.DaysOverdue+r.MonthsToReceipt) + r.CorrectionFactor + r.RecoveryRate
	}
	return total.InexactFloat64() + counts
}

func (s *IndexSeries) Columns() []string { return []string{"period", "value"} }

func (s *IndexSeries) Row(i int) []string {
	p := s.points[i]
	return []string{p.Period.String(), formatFloat(p.Value)}
}

func (s *IndexSeries) NumericSum() float64 {
	var sum float64
	for _, p := range s.Points() {
		sum += p.Value
	}
	return sum
}

func (t *RecoveryTable) Columns() []string {
	return []string{"entity", "contract_type", "aging", "recovery_rate", "months_to_receipt"}
}

func (t *RecoveryTable) Row(i int) []string {
	e := t.entries[i]
	return []string{e.Entity, e.ContractType, string(e.Bucket), formatFloat(e.Rate), strconv.Itoa(e.MonthsToReceipt)}
}

func (t *RecoveryTable) NumericSum() float64 {
	var sum float64
	for _, e := range t.Entries() {
		sum += e.Rate + float64(e.MonthsToReceipt)
	}
	return sum
}

func (ts *TermStructure) Columns() []string { return []string{"months", "rate_252", "rate_360"} }

func (ts *TermStructure) Row(i int) []string {
	p := ts.points[i]
	r360 := ""
	if p.Rate360 != nil {
		r360 = formatFloat(*p.Rate360)
	}
	return []string{strconv.Itoa(p.Months), formatFloat(p.Rate252), r360}
}

func (ts *TermStructure) NumericSum() float64 {
	var sum float64
	for _, p := range ts.Points() {
		sum += float64(p.Months) + p.Rate252
		if p.Rate360 != nil {
			sum += *p.Rate360
		}
	}
	return sum
}
