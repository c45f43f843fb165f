/*
Package sheet reads portfolio and reference workbooks and writes the
corrected table back out as XLSX.

LAYOUT:
  Columns are fixed and matched by header name, case-insensitively, in any
  order. There is no fuzzy or positional mapping: a missing header is an
  error naming the sheet and column.

	receivables     entity, contract_type, client, due_date, base_date,
	                principal, ceded, third_party, cip
	igpm / ipca     date, value
	recovery        entity, contract_type, aging, recovery_rate, months_to_receipt
	term_structure  months, rate_252, rate_360

  Receivables are read from the "receivables" sheet, or the first sheet
  when the workbook has no sheet of that name.

DATES:
  Accepted as 2006-01-02, 02/01/2006 or an Excel serial number. A date that
  cannot be parsed becomes the zero time, which the aging stage counts as
  invalid. Amounts must parse; a bad amount fails the whole read.
*/
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/receivables-engine/engine"
)

// Sheet names.
const (
	SheetReceivables = "receivables"
	SheetRecovery    = "recovery"
	SheetTerms       = "term_structure"
)

// Column layouts.
var (
	ReceivableColumns = []string{"entity", "contract_type", "client", "due_date", "base_date", "principal", "ceded", "third_party", "cip"}
	IndexColumns      = []string{"date", "value"}
	RecoveryColumns   = []string{"entity", "contract_type", "aging", "recovery_rate", "months_to_receipt"}
	TermColumns       = []string{"months", "rate_252", "rate_360"}
)

var (
	ErrMissingSheet  = errors.New("sheet: missing sheet")
	ErrMissingColumn = errors.New("sheet: missing column")
	ErrInvalidCell   = errors.New("sheet: invalid cell")
)

// Workbook is an opened XLSX file.
type Workbook struct {
	f *excelize.File
}

// Open reads a workbook from r.
func Open(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheet: open workbook: %w", err)
	}
	return &Workbook{f: f}, nil
}

func (w *Workbook) Close() error { return w.f.Close() }

// HasSheet reports whether the workbook contains the named sheet.
func (w *Workbook) HasSheet(name string) bool {
	idx, err := w.f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// =============================================================================
// TABLE - header-addressed rows
// =============================================================================

type table struct {
	sheet string
	cols  map[string]int
	rows  [][]string // data rows, header excluded
}

func (w *Workbook) table(sheet string, required []string) (*table, error) {
	if !w.HasSheet(sheet) {
		return nil, fmt.Errorf("%w: %q", ErrMissingSheet, sheet)
	}
	rows, err := w.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingColumn, sheet, required[0])
	}

	t := &table{sheet: sheet, cols: make(map[string]int), rows: rows[1:]}
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := t.cols[key]; !dup && key != "" {
			t.cols[key] = i
		}
	}
	for _, c := range required {
		if _, ok := t.cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingColumn, sheet, c)
		}
	}
	return t, nil
}

// cell returns the trimmed value of column col in data row i, "" when the
// row is shorter than the header.
func (t *table) cell(i int, col string) string {
	j, ok := t.cols[col]
	if !ok || j >= len(t.rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.rows[i][j])
}

func (t *table) blank(i int) bool {
	for _, v := range t.rows[i] {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sheetRow is the 1-based spreadsheet row of data row i.
func sheetRow(i int) int { return i + 2 }

func (t *table) invalid(i int, col, value string, err error) error {
	return fmt.Errorf("%w: %s!%s row %d: %q: %v", ErrInvalidCell, t.sheet, col, sheetRow(i), value, err)
}

// =============================================================================
// READERS
// =============================================================================

// Receivables reads the receivables sheet. Record.Row is the spreadsheet row.
func (w *Workbook) Receivables() (engine.Records, error) {
	name := SheetReceivables
	if !w.HasSheet(name) {
		name = w.f.GetSheetName(0)
	}
	t, err := w.table(name, ReceivableColumns)
	if err != nil {
		return nil, err
	}

	out := make(engine.Records, 0, len(t.rows))
	for i := range t.rows {
		if t.blank(i) {
			continue
		}
		r := engine.Record{
			Row:          sheetRow(i),
			Entity:       t.cell(i, "entity"),
			ContractType: t.cell(i, "contract_type"),
			Client:       t.cell(i, "client"),
			DueDate:      ParseDate(t.cell(i, "due_date")),
			BaseDate:     ParseDate(t.cell(i, "base_date")),
		}
		for _, m := range []struct {
			col string
			dst *decimal.Decimal
		}{
			{"principal", &r.Principal},
			{"ceded", &r.Ceded},
			{"third_party", &r.ThirdParty},
			{"cip", &r.CIP},
		} {
			v := t.cell(i, m.col)
			if *m.dst, err = ParseAmount(v); err != nil {
				return nil, t.invalid(i, m.col, v, err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// IndexSeries reads the sheet named after kind.
func (w *Workbook) IndexSeries(kind engine.IndexKind) (*engine.IndexSeries, error) {
	t, err := w.table(string(kind), IndexColumns)
	if err != nil {
		return nil, err
	}

	points := make([]engine.IndexPoint, 0, len(t.rows))
	for i := range t.rows {
		if t.blank(i) {
			continue
		}
		d := t.cell(i, "date")
		m, err := parsePeriod(d)
		if err != nil {
			return nil, t.invalid(i, "date", d, err)
		}
		v := t.cell(i, "value")
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, t.invalid(i, "value", v, err)
		}
		points = append(points, engine.IndexPoint{Period: m, Value: f})
	}
	return engine.NewIndexSeries(kind, points)
}

func (w *Workbook) RecoveryTable() (*engine.RecoveryTable, error) {
	t, err := w.table(SheetRecovery, RecoveryColumns)
	if err != nil {
		return nil, err
	}

	entries := make([]engine.RecoveryEntry, 0, len(t.rows))
	for i := range t.rows {
		if t.blank(i) {
			continue
		}
		label := t.cell(i, "aging")
		bucket, ok := engine.ParseCoarseBucket(label)
		if !ok {
			return nil, t.invalid(i, "aging", label, errors.New("unknown aging bucket"))
		}
		rv := t.cell(i, "recovery_rate")
		rate, err := strconv.ParseFloat(rv, 64)
		if err != nil {
			return nil, t.invalid(i, "recovery_rate", rv, err)
		}
		mv := t.cell(i, "months_to_receipt")
		months, err := parseInt(mv)
		if err != nil {
			return nil, t.invalid(i, "months_to_receipt", mv, err)
		}
		entries = append(entries, engine.RecoveryEntry{
			Entity:          t.cell(i, "entity"),
			ContractType:    t.cell(i, "contract_type"),
			Bucket:          bucket,
			Rate:            rate,
			MonthsToReceipt: months,
		})
	}
	return engine.NewRecoveryTable(entries), nil
}

func (w *Workbook) TermStructure() (*engine.TermStructure, error) {
	t, err := w.table(SheetTerms, TermColumns)
	if err != nil {
		return nil, err
	}

	points := make([]engine.TermPoint, 0, len(t.rows))
	for i := range t.rows {
		if t.blank(i) {
			continue
		}
		mv := t.cell(i, "months")
		months, err := parseInt(mv)
		if err != nil {
			return nil, t.invalid(i, "months", mv, err)
		}
		r252 := t.cell(i, "rate_252")
		rate252, err := strconv.ParseFloat(r252, 64)
		if err != nil {
			return nil, t.invalid(i, "rate_252", r252, err)
		}
		p := engine.TermPoint{Months: months, Rate252: rate252}
		if r360 := t.cell(i, "rate_360"); r360 != "" {
			v, err := strconv.ParseFloat(r360, 64)
			if err != nil {
				return nil, t.invalid(i, "rate_360", r360, err)
			}
			p.Rate360 = &v
		}
		points = append(points, p)
	}
	return engine.NewTermStructure(points)
}

// References reads every reference sheet the workbook carries. Index sheets
// are optional per kind; the recovery and term sheets are required.
func (w *Workbook) References(kinds ...engine.IndexKind) (engine.References, error) {
	refs := engine.References{Indexes: make(engine.IndexSet, len(kinds))}
	for _, k := range kinds {
		if !w.HasSheet(string(k)) {
			continue
		}
		s, err := w.IndexSeries(k)
		if err != nil {
			return engine.References{}, err
		}
		refs.Indexes[k] = s
	}
	var err error
	if refs.Recovery, err = w.RecoveryTable(); err != nil {
		return engine.References{}, err
	}
	if refs.Terms, err = w.TermStructure(); err != nil {
		return engine.References{}, err
	}
	return refs, nil
}

// =============================================================================
// CELL PARSING
// =============================================================================

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02T15:04:05Z07:00"}

// ParseDate parses a cell as a date, returning the zero time when it cannot.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return engine.Date(t.Year(), t.Month(), t.Day())
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return engine.Date(t.Year(), t.Month(), t.Day())
		}
	}
	return time.Time{}
}

func parsePeriod(s string) (engine.Month, error) {
	if m, err := engine.ParseMonth(s); err == nil {
		return m, nil
	}
	t := ParseDate(s)
	if t.IsZero() {
		return engine.Month{}, errors.New("not a date")
	}
	return engine.MonthOf(t), nil
}

// ParseAmount parses a monetary cell. Blank is zero. A comma is accepted as
// the decimal separator when the value has no dot.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not a whole number")
	}
	return int(f), nil
}
