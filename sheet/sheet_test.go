package sheet_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/receivables-engine/engine"
	"github.com/warp/receivables-engine/sheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixtureRecords() engine.Records {
	return engine.Records{
		{
			Entity: "CEMIG", ContractType: "invoice", Client: "00123",
			DueDate: engine.Date(2024, time.January, 31), BaseDate: engine.Date(2024, time.June, 30),
			Principal: d("1500.75"), Ceded: d("100"), ThirdParty: d("0"), CIP: d("12.5"),
		},
		{
			Entity: "LIGHT", ContractType: "invoice", Client: "00456",
			BaseDate:  engine.Date(2024, time.June, 30),
			Principal: d("80"), Ceded: d("0"), ThirdParty: d("0"), CIP: d("0"),
		},
	}
}

func fixtureReferences() engine.References {
	r360 := 0.107
	return engine.References{
		Indexes: engine.NewIndexSet(
			engine.MustIndexSeries(engine.IndexIGPM,
				engine.IndexPoint{Period: engine.NewMonth(2024, time.January), Value: 1100.25},
				engine.IndexPoint{Period: engine.NewMonth(2024, time.February), Value: 1105.5}),
			engine.MustIndexSeries(engine.IndexIPCA,
				engine.IndexPoint{Period: engine.NewMonth(2024, time.January), Value: 6800}),
		),
		Recovery: engine.NewRecoveryTable([]engine.RecoveryEntry{
			{Entity: "CEMIG", ContractType: "invoice", Bucket: engine.CoarseFirstYear, Rate: 0.45, MonthsToReceipt: 18},
			{Entity: "CEMIG", ContractType: "invoice", Bucket: engine.CoarseNotDue, Rate: 0.9, MonthsToReceipt: 2},
		}),
		Terms: engine.MustTermStructure(
			engine.TermPoint{Months: 1, Rate252: 0.1},
			engine.TermPoint{Months: 12, Rate252: 0.105, Rate360: &r360},
		),
	}
}

func openBytes(t *testing.T, data []byte) *sheet.Workbook {
	t.Helper()
	wb, err := sheet.Open(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { wb.Close() })
	return wb
}

// customWorkbook writes rows to one sheet of a fresh workbook.
func customWorkbook(t *testing.T, name string, rows [][]any) *sheet.Workbook {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", name))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(name, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return openBytes(t, buf.Bytes())
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestWriteInputs_ReadBack(t *testing.T) {
	// GIVEN: Receivables and references written in the input layout
	// WHEN: Reading the workbook back
	// THEN: Every value survives; the missing due date stays zero

	var buf bytes.Buffer
	require.NoError(t, sheet.WriteInputs(&buf, fixtureRecords(), fixtureReferences()))
	wb := openBytes(t, buf.Bytes())

	records, err := wb.Receivables()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].Row)
	assert.Equal(t, "00123", records[0].Client)
	assert.Equal(t, engine.Date(2024, time.January, 31), records[0].DueDate)
	assert.True(t, records[0].Principal.Equal(d("1500.75")))
	assert.True(t, records[0].CIP.Equal(d("12.5")))
	assert.True(t, records[1].DueDate.IsZero())

	refs, err := wb.References(engine.IndexIGPM, engine.IndexIPCA)
	require.NoError(t, err)
	want := fixtureReferences()
	assert.Equal(t, want.Indexes[engine.IndexIGPM].Points(), refs.Indexes[engine.IndexIGPM].Points())
	assert.Equal(t, want.Indexes[engine.IndexIPCA].Points(), refs.Indexes[engine.IndexIPCA].Points())
	assert.Equal(t, want.Recovery.Entries(), refs.Recovery.Entries())
	assert.Equal(t, want.Terms.Points(), refs.Terms.Points())
}

func TestReferences_IndexSheetsAreOptional(t *testing.T) {
	refs := fixtureReferences()
	refs.Indexes = engine.NewIndexSet(refs.Indexes[engine.IndexIGPM])
	var buf bytes.Buffer
	require.NoError(t, sheet.WriteInputs(&buf, nil, refs))

	got, err := openBytes(t, buf.Bytes()).References(engine.IndexIGPM, engine.IndexIPCA)

	require.NoError(t, err)
	assert.Contains(t, got.Indexes, engine.IndexIGPM)
	assert.NotContains(t, got.Indexes, engine.IndexIPCA)
}

func TestReferences_RecoverySheetRequired(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sheet.WriteInputs(&buf, fixtureRecords(), engine.References{}))

	_, err := openBytes(t, buf.Bytes()).References()

	assert.ErrorIs(t, err, sheet.ErrMissingSheet)
}

// =============================================================================
// LAYOUT ERRORS
// =============================================================================

func TestReceivables_FirstSheetAndHeaderCase(t *testing.T) {
	// GIVEN: A workbook whose only sheet is not named "receivables", with
	//        headers in another order and case, a blank row and Excel serials
	// WHEN: Reading receivables
	// THEN: Rows are read by header; serial dates and comma decimals parse

	wb := customWorkbook(t, "Carteira", [][]any{
		{"CIP", "Third_Party", "Ceded", "Principal", "Base_Date", "Due_Date", "Client", "Contract_Type", "Entity"},
		{"0", "", "0", "1234,56", 45473, 45322, "c1", "invoice", "CEMIG"},
		{},
		{"0", "0", "0", "10", "30/06/2024", "garbage", "c2", "invoice", "CEMIG"},
	})

	records, err := wb.Receivables()

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, engine.Date(2024, time.June, 30), records[0].BaseDate)
	assert.Equal(t, engine.Date(2024, time.January, 31), records[0].DueDate)
	assert.True(t, records[0].Principal.Equal(d("1234.56")))
	assert.True(t, records[0].ThirdParty.IsZero())
	assert.Equal(t, 4, records[1].Row)
	assert.Equal(t, engine.Date(2024, time.June, 30), records[1].BaseDate)
	assert.True(t, records[1].DueDate.IsZero(), "unparseable dates are left for aging to flag")
}

func TestReceivables_MissingColumn(t *testing.T) {
	wb := customWorkbook(t, sheet.SheetReceivables, [][]any{
		{"entity", "contract_type", "client", "due_date", "base_date", "principal", "ceded", "third_party"},
	})

	_, err := wb.Receivables()

	require.ErrorIs(t, err, sheet.ErrMissingColumn)
	assert.Contains(t, err.Error(), "receivables.cip")
}

func TestReceivables_BadAmountNamesCell(t *testing.T) {
	wb := customWorkbook(t, sheet.SheetReceivables, [][]any{
		sheetHeader(sheet.ReceivableColumns),
		{"CEMIG", "invoice", "c1", "2024-01-31", "2024-06-30", "1.000,00", "0", "0", "0"},
	})

	_, err := wb.Receivables()

	require.ErrorIs(t, err, sheet.ErrInvalidCell)
	assert.Contains(t, err.Error(), "principal row 2")
}

func TestRecoveryTable_UnknownBucket(t *testing.T) {
	wb := customWorkbook(t, sheet.SheetRecovery, [][]any{
		sheetHeader(sheet.RecoveryColumns),
		{"CEMIG", "invoice", "Quarto Ano", 0.1, 48},
	})

	_, err := wb.RecoveryTable()

	assert.ErrorIs(t, err, sheet.ErrInvalidCell)
}

func TestRecoveryTable_PortugueseLabels(t *testing.T) {
	wb := customWorkbook(t, sheet.SheetRecovery, [][]any{
		sheetHeader(sheet.RecoveryColumns),
		{"CEMIG", "invoice", "A Vencer", 0.9, 2},
		{"CEMIG", "invoice", "Demais Anos", 0.05, 60},
	})

	table, err := wb.RecoveryTable()

	require.NoError(t, err)
	e, ok := table.Lookup("CEMIG", "invoice", engine.CoarseBeyondThirdYear)
	require.True(t, ok)
	assert.Equal(t, 60, e.MonthsToReceipt)
}

func sheetHeader(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

// =============================================================================
// CELL PARSING
// =============================================================================

func TestParseDate(t *testing.T) {
	want := engine.Date(2024, time.January, 1)
	assert.Equal(t, want, sheet.ParseDate("2024-01-01"))
	assert.Equal(t, want, sheet.ParseDate("01/01/2024"))
	assert.Equal(t, want, sheet.ParseDate("2024-01-01T15:04:05Z"))
	assert.Equal(t, want, sheet.ParseDate("45292"))
	assert.True(t, sheet.ParseDate("").IsZero())
	assert.True(t, sheet.ParseDate("yesterday").IsZero())
}

func TestParseAmount(t *testing.T) {
	v, err := sheet.ParseAmount("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	v, err = sheet.ParseAmount(" 99,5 ")
	require.NoError(t, err)
	assert.True(t, v.Equal(d("99.5")))

	_, err = sheet.ParseAmount("R$ 10")
	assert.Error(t, err)
}

// =============================================================================
// RESULT WORKBOOK
// =============================================================================

func TestBuildResultXLSX(t *testing.T) {
	// GIVEN: A result with one valued record and an unmatched key
	// WHEN: Rendering it
	// THEN: Summary, records and diagnostics sheets carry the numbers

	rec := fixtureRecords()[0]
	rec.Row = 2
	rec.FairValue = d("886.92")
	rec.ReceiptDate = engine.Date(2025, time.June, 30)
	res := &engine.Result{
		Records: engine.Records{rec},
		Diagnostics: engine.Diagnostics{
			RunID: "run-1", PortfolioID: "FIDC Energia", Variant: engine.VariantGeneric, Rows: 1,
			RecoveryUnmatched: 1, UnmatchedKeys: []string{"LIGHT/invoice/first_year"},
			Totals: engine.Totals{FairValue: d("886.92")},
		},
	}

	data, err := sheet.BuildResultXLSX(res)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheet.SheetSummary, sheet.SheetRecords, sheet.SheetDiagnostics}, f.GetSheetList())

	summary, err := f.GetRows(sheet.SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Portfolio", "FIDC Energia"}, summary[0])
	assert.Equal(t, []string{"Fair value", "886.92"}, summary[len(summary)-1])

	records, err := f.GetRows(sheet.SheetRecords)
	require.NoError(t, err)
	require.Len(t, records, 2)
	header := map[string]int{}
	for i, h := range records[0] {
		header[h] = i
	}
	assert.Equal(t, "00123", records[1][header["client"]], "text columns keep leading zeros")
	assert.Equal(t, "2025-06-30", records[1][header["receipt_date"]])
	assert.Equal(t, "886.92", records[1][header["fair_value"]])

	diag, err := f.GetRows(sheet.SheetDiagnostics)
	require.NoError(t, err)
	assert.Equal(t, []string{"unmatched_key", "LIGHT/invoice/first_year"}, diag[len(diag)-1])
}
