package distributor_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/receivables-engine/distributor"
	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func monthly(kind engine.IndexKind, from engine.Month, values ...float64) *engine.IndexSeries {
	pts := make([]engine.IndexPoint, len(values))
	for i, v := range values {
		pts[i] = engine.IndexPoint{Period: from.AddMonths(i), Value: v}
	}
	return engine.MustIndexSeries(kind, pts...)
}

// aged returns an invoice already through the aging stage.
func aged(due, base time.Time, principal string) engine.Record {
	days, bucket, _ := engine.Classify(base, due)
	return engine.Record{
		Row:          1,
		Entity:       "CEMIG",
		ContractType: "invoice",
		DueDate:      due,
		BaseDate:     base,
		Principal:    d(principal),
		DaysOverdue:  days,
		Bucket:       bucket,
	}
}

// =============================================================================
// POLICY
// =============================================================================

func TestPolicy_IndexForCutover(t *testing.T) {
	// GIVEN: The standard policy with its May 2021 cutover
	// WHEN: Selecting the index by due date
	// THEN: IGP-M strictly before the cutover, IPCA from it on

	p := distributor.StandardPolicy()

	assert.Equal(t, engine.IndexIGPM, p.IndexFor(engine.Date(2021, time.April, 30)))
	assert.Equal(t, engine.IndexIPCA, p.IndexFor(engine.Date(2021, time.May, 1)))
	assert.Equal(t, engine.IndexIPCA, p.IndexFor(engine.Date(2024, time.January, 1)))
	assert.Equal(t, []engine.IndexKind{engine.IndexIGPM, engine.IndexIPCA}, p.Kinds())
}

func TestPolicy_SingleIndex(t *testing.T) {
	p := distributor.SingleIndexPolicy("igpm-only", engine.IndexIGPM)

	assert.Equal(t, engine.IndexIGPM, p.IndexFor(engine.Date(2024, time.January, 1)))
	assert.Equal(t, []engine.IndexKind{engine.IndexIGPM}, p.Kinds())
	assert.True(t, p.Cutover.IsZero())
}

func TestNetValue_FlooredAtZero(t *testing.T) {
	r := engine.Record{Principal: d("100"), Ceded: d("60"), ThirdParty: d("30"), CIP: d("20")}
	assert.True(t, distributor.NetValue(r).IsZero())

	r.CIP = d("5")
	assert.True(t, distributor.NetValue(r).Equal(d("5")))
}

// =============================================================================
// CORRECTOR
// =============================================================================

func TestCorrect_OverdueInvoice(t *testing.T) {
	// GIVEN: Invoice of 1000 less 200 ceded, due 2024-01-31, valued 2024-03-31,
	//        IPCA 100 in January, 110 in March
	// WHEN: Correcting at base date
	// THEN: net 800, factor 1.1, correction 80, penalty 16, moratory 800*1%*60/30 = 16

	ipca := monthly(engine.IndexIPCA, engine.NewMonth(2023, time.December), 99, 100, 105, 110)
	c := distributor.NewCorrector(distributor.StandardPolicy())

	r := aged(engine.Date(2024, time.January, 31), engine.Date(2024, time.March, 31), "1000")
	r.Ceded = d("200")

	out, report, err := c.Correct(engine.Records{r}, engine.NewIndexSet(ipca))

	require.NoError(t, err)
	got := out[0]
	assert.Equal(t, engine.VariantGeneric, got.Variant)
	assert.Equal(t, engine.IndexIPCA, got.IndexKind)
	assert.Equal(t, 60, got.DaysOverdue)
	assert.True(t, got.NetValue.Equal(d("800")))
	assert.Equal(t, 100.0, got.DueIndex)
	assert.Equal(t, 110.0, got.BaseIndex)
	assert.InDelta(t, 1.1, got.CorrectionFactor, 1e-12)
	assert.InDelta(t, 80, got.MonetaryCorrection.InexactFloat64(), 1e-9)
	assert.True(t, got.Penalty.Equal(d("16")))
	assert.True(t, got.MoratoryInterest.Equal(d("16")))
	assert.InDelta(t, 912, got.CorrectedAtBase.InexactFloat64(), 1e-9)
	assert.True(t, got.RemunerationInterest.IsZero())
	assert.Equal(t, 1, report.Overdue)
	assert.Equal(t, 2, report.Paths[engine.PathInterpolated])
}

func TestCorrect_NotDueIsNetValue(t *testing.T) {
	ipca := monthly(engine.IndexIPCA, engine.NewMonth(2024, time.January), 100, 101, 102)
	c := distributor.NewCorrector(distributor.StandardPolicy())
	r := aged(engine.Date(2024, time.May, 31), engine.Date(2024, time.March, 31), "1000")

	out, report, err := c.Correct(engine.Records{r}, engine.NewIndexSet(ipca))

	require.NoError(t, err)
	assert.True(t, out[0].CorrectedAtBase.Equal(d("1000")))
	assert.Equal(t, 1.0, out[0].CorrectionFactor)
	assert.Equal(t, 0, report.Overdue)
	assert.Equal(t, engine.PathExtrapolated, out[0].DueIndexPath, "due date is after the series")
}

func TestCorrect_CutoverSplitsSeries(t *testing.T) {
	// GIVEN: One invoice on each side of the cutover, only IGP-M loaded
	// WHEN: Correcting
	// THEN: The IPCA invoice fails with missing reference data

	igpm := monthly(engine.IndexIGPM, engine.NewMonth(2021, time.January), 100, 101, 102, 103, 104, 105)
	c := distributor.NewCorrector(distributor.StandardPolicy())
	records := engine.Records{
		aged(engine.Date(2021, time.March, 31), engine.Date(2021, time.June, 30), "10"),
		aged(engine.Date(2021, time.May, 31), engine.Date(2021, time.June, 30), "10"),
	}

	_, _, err := c.Correct(records, engine.NewIndexSet(igpm))

	require.Error(t, err)
	assert.True(t, engine.IsMissingReferenceData(err))
}

func TestProjectToReceipt_BecomesOverdue(t *testing.T) {
	// GIVEN: An invoice not due at base date but collected after its due date
	// WHEN: Projecting to receipt
	// THEN: Penalty and moratory interest accrue from the due date

	ipca := monthly(engine.IndexIPCA, engine.NewMonth(2024, time.January), 100, 100, 100, 100, 100, 100)
	c := distributor.NewCorrector(distributor.StandardPolicy())
	r := aged(engine.Date(2024, time.April, 30), engine.Date(2024, time.March, 31), "1000")

	corrected, _, err := c.Correct(engine.Records{r}, engine.NewIndexSet(ipca))
	require.NoError(t, err)
	corrected[0].ReceiptDate = engine.Date(2024, time.May, 30)

	out, report, err := c.ProjectToReceipt(corrected, engine.NewIndexSet(ipca))

	require.NoError(t, err)
	got := out[0]
	assert.Equal(t, 30, got.DaysOverdueAtReceipt)
	assert.Equal(t, 1, report.Overdue)
	assert.True(t, got.ReceiptPenalty.Equal(d("20")))
	assert.True(t, got.ReceiptMoratoryInterest.Equal(d("10")))
	assert.True(t, got.CorrectedAtReceipt.Equal(d("1030")))
	assert.True(t, got.CorrectedAtBase.Equal(d("1000")), "base-date values are untouched")
}

func TestCorrector_ParamsIdentifyPolicy(t *testing.T) {
	a := distributor.NewCorrector(distributor.StandardPolicy()).Params()
	b := distributor.NewCorrector(distributor.SingleIndexPolicy("x", engine.IndexIGPM)).Params()

	assert.Equal(t, "generic", a["variant"])
	assert.Equal(t, "2021-05-01", a["cutover"])
	assert.NotEqual(t, a, b)
}
