// Package report renders a one-page PDF summary of a valuation run.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/warp/receivables-engine/engine"
)

// BuildSummaryPDF renders portfolio totals, the fair value by aging bucket
// and the run diagnostics. generatedAt is printed in the header.
func BuildSummaryPDF(res *engine.Result, generatedAt time.Time) ([]byte, error) {
	d := res.Diagnostics

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, "Receivables Valuation")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		fmt.Sprintf("Portfolio: %s", d.PortfolioID),
		fmt.Sprintf("Variant: %s", d.Variant),
		fmt.Sprintf("Run: %s", d.RunID),
		fmt.Sprintf("Rows: %d", d.Rows),
		fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)),
	} {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Totals")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	for _, t := range []struct {
		label string
		value decimal.Decimal
	}{
		{"Principal", d.Totals.Principal},
		{"Net value", d.Totals.NetValue},
		{"Corrected at base date", d.Totals.CorrectedAtBase},
		{"Recoverable value", d.Totals.RecoverableValue},
		{"Corrected at receipt date", d.Totals.CorrectedAtReceipt},
		{"Recoverable at receipt date", d.Totals.RecoverableAtReceipt},
		{"Fair value", d.Totals.FairValue},
	} {
		pdf.CellFormat(80, 6, t.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, t.value.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Aging", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Rows", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Corrected", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Fair value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, b := range ByBucket(res.Records) {
		pdf.CellFormat(50, 6, b.Bucket.String(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", b.Rows), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, b.CorrectedAtBase.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, b.FairValue.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Diagnostics")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Recovery match ratio: %.2f%%", d.MatchRatio*100))
	pdf.Ln(5)
	warnings := d.Warnings()
	if len(warnings) == 0 {
		pdf.Cell(0, 6, "No recoverable conditions were met.")
		pdf.Ln(5)
	}
	for _, w := range warnings {
		pdf.MultiCell(0, 5, "- "+w, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BucketSummary aggregates the records of one aging bucket.
type BucketSummary struct {
	Bucket          engine.AgingBucket
	Rows            int
	CorrectedAtBase decimal.Decimal
	FairValue       decimal.Decimal
}

// ByBucket groups records by aging bucket, in bucket order. Buckets with no
// records are omitted.
func ByBucket(records engine.Records) []BucketSummary {
	groups := make(map[engine.AgingBucket]*BucketSummary)
	for _, r := range records {
		g, ok := groups[r.Bucket]
		if !ok {
			g = &BucketSummary{Bucket: r.Bucket}
			groups[r.Bucket] = g
		}
		g.Rows++
		g.CorrectedAtBase = g.CorrectedAtBase.Add(r.CorrectedAtBase)
		g.FairValue = g.FairValue.Add(r.FairValue)
	}
	out := make([]BucketSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}
