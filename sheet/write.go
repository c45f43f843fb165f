package sheet

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/warp/receivables-engine/engine"
)

// Output sheets of BuildResultXLSX.
const (
	SheetSummary     = "summary"
	SheetRecords     = "records"
	SheetDiagnostics = "diagnostics"
)

// textColumns are written as strings even when they look numeric.
var textColumns = map[string]bool{
	"entity": true, "contract_type": true, "client": true,
	"due_date": true, "base_date": true, "receipt_date": true,
}

// BuildResultXLSX renders the corrected table, its totals and the run
// diagnostics.
func BuildResultXLSX(res *engine.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetRecords, SheetDiagnostics} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	d := res.Diagnostics
	summary := [][]any{
		{"Portfolio", d.PortfolioID},
		{"Run", d.RunID},
		{"Variant", string(d.Variant)},
		{"Rows", d.Rows},
		{"Principal", d.Totals.Principal.InexactFloat64()},
		{"Net value", d.Totals.NetValue.InexactFloat64()},
		{"Corrected at base date", d.Totals.CorrectedAtBase.InexactFloat64()},
		{"Recoverable value", d.Totals.RecoverableValue.InexactFloat64()},
		{"Corrected at receipt date", d.Totals.CorrectedAtReceipt.InexactFloat64()},
		{"Recoverable at receipt date", d.Totals.RecoverableAtReceipt.InexactFloat64()},
		{"Fair value", d.Totals.FairValue.InexactFloat64()},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return nil, err
	}

	records := make([][]any, 0, len(res.Records)+1)
	records = append(records, toAny(res.Records.Columns()))
	for i := range res.Records {
		records = append(records, typedRow(res.Records.Columns(), res.Records.Row(i)))
	}
	if err := writeRows(f, SheetRecords, records); err != nil {
		return nil, err
	}

	if err := writeRows(f, SheetDiagnostics, diagnosticsRows(d)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func diagnosticsRows(d engine.Diagnostics) [][]any {
	rows := [][]any{
		{"condition", "count"},
		{"invalid_dates", d.InvalidDates},
		{"overdue", d.Overdue},
	}
	for _, p := range []engine.IndexPath{engine.PathInterpolated, engine.PathFallback, engine.PathExtrapolated, engine.PathClamped, engine.PathNeutral} {
		rows = append(rows, []any{"index_" + string(p), d.BaseIndexPaths[p] + d.ReceiptIndexPaths[p]})
	}
	rows = append(rows,
		[]any{"recovery_matched", d.RecoveryMatched},
		[]any{"recovery_unmatched", d.RecoveryUnmatched},
		[]any{"recovery_match_ratio", d.MatchRatio},
		[]any{"nearest_term", d.NearestTerm},
		[]any{"degenerate_discount", d.Degenerate},
		[]any{"cache_hits", d.CacheHits},
		[]any{"cache_misses", d.CacheMisses},
	)
	for _, k := range d.UnmatchedKeys {
		rows = append(rows, []any{"unmatched_key", k})
	}
	return rows
}

func typedRow(cols, values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
		if textColumns[cols[i]] || v == "" {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[i] = f
		}
	}
	return out
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// =============================================================================
// INPUT WORKBOOKS - same layout the readers expect
// =============================================================================

// WriteInputs writes receivables and reference data in the layout Open and
// the Workbook readers accept. Either part may be empty.
func WriteInputs(w io.Writer, records engine.Records, refs engine.References) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetReceivables); err != nil {
		return err
	}

	rows := [][]any{toAny(ReceivableColumns)}
	for _, r := range records {
		rows = append(rows, []any{
			r.Entity, r.ContractType, r.Client,
			formatDate(r.DueDate), formatDate(r.BaseDate),
			r.Principal.String(), r.Ceded.String(), r.ThirdParty.String(), r.CIP.String(),
		})
	}
	if err := writeRows(f, SheetReceivables, rows); err != nil {
		return err
	}

	kinds := make([]string, 0, len(refs.Indexes))
	for k := range refs.Indexes {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, name := range kinds {
		series := refs.Indexes[engine.IndexKind(name)]
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
		rows := [][]any{toAny(IndexColumns)}
		for _, p := range series.Points() {
			rows = append(rows, []any{p.Period.String(), p.Value})
		}
		if err := writeRows(f, name, rows); err != nil {
			return err
		}
	}

	if refs.Recovery.Len() > 0 {
		if _, err := f.NewSheet(SheetRecovery); err != nil {
			return err
		}
		rows := [][]any{toAny(RecoveryColumns)}
		for _, e := range refs.Recovery.Entries() {
			rows = append(rows, []any{e.Entity, e.ContractType, string(e.Bucket), e.Rate, e.MonthsToReceipt})
		}
		if err := writeRows(f, SheetRecovery, rows); err != nil {
			return err
		}
	}

	if refs.Terms.Len() > 0 {
		if _, err := f.NewSheet(SheetTerms); err != nil {
			return err
		}
		rows := [][]any{toAny(TermColumns)}
		for _, p := range refs.Terms.Points() {
			var r360 any = ""
			if p.Rate360 != nil {
				r360 = *p.Rate360
			}
			rows = append(rows, []any{p.Months, p.Rate252, r360})
		}
		if err := writeRows(f, SheetTerms, rows); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
