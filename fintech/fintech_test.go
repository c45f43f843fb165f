package fintech_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/receivables-engine/engine"
	"github.com/warp/receivables-engine/fintech"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ipcaSeries() *engine.IndexSeries {
	return engine.MustIndexSeries(engine.IndexIPCA,
		engine.IndexPoint{Period: engine.NewMonth(2024, time.January), Value: 200},
		engine.IndexPoint{Period: engine.NewMonth(2024, time.February), Value: 204},
		engine.IndexPoint{Period: engine.NewMonth(2024, time.March), Value: 210},
	)
}

func note(due, base time.Time, principal string) engine.Record {
	days, bucket, _ := engine.Classify(base, due)
	return engine.Record{
		Row: 1, Entity: "Fintech X", ContractType: "ccb",
		DueDate: due, BaseDate: base, Principal: d(principal),
		Ceded: d("999"), DaysOverdue: days, Bucket: bucket,
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, fintech.Matches("FIDC CCB Fintech 2024", fintech.DefaultMarkers))
	assert.True(t, fintech.Matches("consumer-credit pool", fintech.DefaultMarkers))
	assert.False(t, fintech.Matches("FIDC Energia", fintech.DefaultMarkers))
	assert.False(t, fintech.Matches("anything", []string{"", "  "}))
}

func TestRemunerationInterest(t *testing.T) {
	// GIVEN: 1000 at 4.65% a month
	// WHEN: 30 and 60 days overdue
	// THEN: One and two months of compound interest

	assert.InDelta(t, 46.5, fintech.RemunerationInterest(d("1000"), 30, 0.0465).InexactFloat64(), 1e-6)
	assert.InDelta(t, 95.16225, fintech.RemunerationInterest(d("1000"), 60, 0.0465).InexactFloat64(), 1e-6)
	assert.True(t, fintech.RemunerationInterest(d("1000"), 0, 0.0465).IsZero())
	assert.True(t, fintech.RemunerationInterest(d("1000"), 30, 0).IsZero())
}

func TestCorrect_OverdueNote(t *testing.T) {
	// GIVEN: A 1000 note due 2024-01-31, valued 2024-03-01, IPCA 200 -> 210
	// WHEN: Correcting with the standard policy
	// THEN: Deductions are ignored, remuneration is reported but not added

	c := fintech.NewCorrector(fintech.StandardPolicy())
	r := note(engine.Date(2024, time.January, 31), engine.Date(2024, time.March, 1), "1000")

	out, report, err := c.Correct(engine.Records{r}, engine.NewIndexSet(ipcaSeries()))

	require.NoError(t, err)
	got := out[0]
	assert.Equal(t, engine.VariantFintech, got.Variant)
	assert.Equal(t, engine.IndexIPCA, got.IndexKind)
	assert.Equal(t, 30, got.DaysOverdue)
	assert.True(t, got.NetValue.Equal(d("1000")))
	assert.Equal(t, 200.0, got.DueIndex)
	assert.InDelta(t, 204+6.0/31, got.BaseIndex, 1e-9)
	assert.Greater(t, got.CorrectionFactor, 1.0)
	assert.True(t, got.Penalty.Equal(d("20")))
	assert.True(t, got.MoratoryInterest.Equal(d("10")))
	assert.InDelta(t, 46.5, got.RemunerationInterest.InexactFloat64(), 1e-6)

	expected := got.NetValue.Add(got.MonetaryCorrection).Add(got.Penalty).Add(got.MoratoryInterest)
	assert.True(t, got.CorrectedAtBase.Equal(expected))
	assert.Equal(t, 1, report.Overdue)
}

func TestCorrect_RequiresIPCA(t *testing.T) {
	c := fintech.NewCorrector(fintech.Policy{ID: "x"})
	r := note(engine.Date(2024, time.January, 31), engine.Date(2024, time.March, 1), "1000")

	_, _, err := c.Correct(engine.Records{r}, engine.IndexSet{})

	require.Error(t, err)
	var missing *engine.MissingReferenceDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, engine.DatasetIndexSeries(engine.IndexIPCA), missing.Dataset)
}

func TestProjectToReceipt_CarriesBaseValues(t *testing.T) {
	// GIVEN: A corrected note with a receipt date a year later
	// WHEN: Projecting to receipt
	// THEN: Receipt values equal base values and no index is read

	c := fintech.NewCorrector(fintech.StandardPolicy())
	r := note(engine.Date(2024, time.January, 31), engine.Date(2024, time.March, 1), "1000")
	corrected, _, err := c.Correct(engine.Records{r}, engine.NewIndexSet(ipcaSeries()))
	require.NoError(t, err)
	corrected[0].ReceiptDate = engine.Date(2025, time.March, 1)

	out, report, err := c.ProjectToReceipt(corrected, nil)

	require.NoError(t, err)
	got := out[0]
	assert.True(t, got.CorrectedAtReceipt.Equal(got.CorrectedAtBase))
	assert.Equal(t, got.BaseIndex, got.ReceiptIndex)
	assert.Equal(t, got.DaysOverdue, got.DaysOverdueAtReceipt)
	assert.Empty(t, report.Paths)
}

func TestStandardPolicy(t *testing.T) {
	p := fintech.StandardPolicy()
	assert.Equal(t, engine.IndexIPCA, p.Index)
	assert.Equal(t, fintech.DefaultRemunerationRate, p.RemunerationRate)

	params := fintech.NewCorrector(p).Params()
	assert.Equal(t, "fintech", params["variant"])
	assert.Equal(t, "ipca", params["index"])
}
