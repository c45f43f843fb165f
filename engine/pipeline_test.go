package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/receivables-engine/distributor"
	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var baseDate = day(2024, time.June, 30)

// risingSeries grows 0.5% a month through 2024-06.
func risingSeries(kind engine.IndexKind) *engine.IndexSeries {
	var pts []engine.IndexPoint
	v := 100.0
	for m := month(2022, time.January); !m.After(month(2024, time.June)); m = m.AddMonths(1) {
		pts = append(pts, engine.IndexPoint{Period: m, Value: v})
		v *= 1.005
	}
	return engine.MustIndexSeries(kind, pts...)
}

func pipelineInput(records engine.Records) engine.Input {
	return engine.Input{
		PortfolioID: "FIDC Energia 2024-06",
		Variant:     engine.VariantGeneric,
		Records:     records,
		Indexes:     engine.NewIndexSet(risingSeries(engine.IndexIGPM), risingSeries(engine.IndexIPCA)),
		Recovery: engine.NewRecoveryTable([]engine.RecoveryEntry{
			{Entity: "CEMIG", ContractType: "invoice", Bucket: engine.CoarseNotDue, Rate: 1.0, MonthsToReceipt: 0},
			{Entity: "CEMIG", ContractType: "invoice", Bucket: engine.CoarseFirstYear, Rate: 0.5, MonthsToReceipt: 12},
		}),
		Terms: engine.MustTermStructure(
			engine.TermPoint{Months: 12, Rate252: 0.10},
			engine.TermPoint{Months: 24, Rate252: 0.11},
		),
	}
}

func newPipeline() *engine.Pipeline {
	return engine.NewPipeline(distributor.NewCorrector(distributor.StandardPolicy()))
}

type stageCounter struct {
	stages []string
	cached int
	runs   int
	err    error
}

func (s *stageCounter) StageCompleted(stage string, _ int, cached bool, _ time.Duration) {
	s.stages = append(s.stages, stage)
	if cached {
		s.cached++
	}
}

func (s *stageCounter) RunCompleted(_ engine.Diagnostics, err error) {
	s.runs++
	s.err = err
}

// =============================================================================
// END TO END
// =============================================================================

func TestRun_NotDueRecordKeepsPrincipal(t *testing.T) {
	// GIVEN: 1000 not yet due, full recovery at the base date
	// WHEN: Running the pipeline
	// THEN: Every stage leaves the value untouched; fair value is exactly 1000

	records := engine.Records{receivable(1, "1000", day(2024, time.December, 31), baseDate)}

	result, err := newPipeline().Run(pipelineInput(records))

	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	r := result.Records[0]
	assert.Equal(t, engine.BucketNotDue, r.Bucket)
	assert.True(t, r.CorrectedAtBase.Equal(dec("1000")))
	assert.Equal(t, baseDate, r.ReceiptDate)
	assert.True(t, r.CorrectedAtReceipt.Equal(dec("1000")))
	assert.Equal(t, 1.0, r.DiscountFactor)
	assert.True(t, r.FairValue.Equal(dec("1000")), r.FairValue.String())
	assert.True(t, result.Diagnostics.Totals.FairValue.Equal(dec("1000")))
}

func TestRun_DueOnBaseDateIsNotOverdue(t *testing.T) {
	// GIVEN: 1000 due exactly on the base date
	// WHEN: Running the pipeline
	// THEN: Zero days, not_due, factor 1 and no accruals

	records := engine.Records{receivable(1, "1000", baseDate, baseDate)}

	result, err := newPipeline().Run(pipelineInput(records))

	require.NoError(t, err)
	r := result.Records[0]
	assert.Equal(t, 0, r.DaysOverdue)
	assert.Equal(t, engine.BucketNotDue, r.Bucket)
	assert.Equal(t, 1.0, r.CorrectionFactor)
	assert.True(t, r.MonetaryCorrection.IsZero())
	assert.True(t, r.Penalty.IsZero())
	assert.True(t, r.MoratoryInterest.IsZero())
	assert.True(t, r.CorrectedAtBase.Equal(dec("1000")))
	assert.True(t, r.FairValue.Equal(dec("1000")), r.FairValue.String())
}

func TestRun_OverdueRecordMonotonicity(t *testing.T) {
	// GIVEN: An overdue invoice with deductions and a rising index
	// WHEN: Running the pipeline
	// THEN: corrected >= net, receipt >= base, recoverable <= corrected, fair value >= 0

	r := receivable(1, "1000", day(2024, time.January, 31), baseDate)
	r.Ceded = dec("100")

	result, err := newPipeline().Run(pipelineInput(engine.Records{r}))

	require.NoError(t, err)
	out := result.Records[0]
	assert.Equal(t, 151, out.DaysOverdue)
	assert.Equal(t, engine.IndexIPCA, out.IndexKind)
	assert.True(t, out.NetValue.Equal(dec("900")))
	assert.Greater(t, out.CorrectionFactor, 1.0)
	assert.True(t, out.CorrectedAtBase.GreaterThan(out.NetValue))
	assert.True(t, out.CorrectedAtReceipt.GreaterThanOrEqual(out.CorrectedAtBase))
	assert.True(t, out.RecoverableValue.LessThanOrEqual(out.CorrectedAtBase))
	assert.Equal(t, engine.PathExtrapolated, out.ReceiptIndexPath)
	assert.False(t, out.FairValue.IsNegative())
	assert.True(t, out.FairValue.LessThan(out.RecoverableAtReceipt))
	assert.Equal(t, 1, result.Diagnostics.Overdue)
	assert.Equal(t, 1, result.Diagnostics.Extrapolated())
}

func TestRun_SecondRunIsServedFromCheckpoint(t *testing.T) {
	// GIVEN: One pipeline and one input
	// WHEN: Running twice
	// THEN: Identical tables; every stage of the second run is cached

	p := newPipeline()
	in := pipelineInput(engine.Records{
		receivable(1, "1000", day(2024, time.January, 31), baseDate),
		receivable(2, "500", day(2024, time.December, 31), baseDate),
	})

	first, err := p.Run(in)
	require.NoError(t, err)
	second, err := p.Run(in)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Empty(t, first.Diagnostics.CachedStages)
	assert.Equal(t, []string{
		engine.StageAging, engine.StageCorrection, engine.StageRecovery, engine.StageReceipt, engine.StageDiscount,
	}, second.Diagnostics.CachedStages)
	assert.NotEqual(t, first.Diagnostics.RunID, second.Diagnostics.RunID)
}

func TestRun_CallerChangesDoNotReachCheckpoint(t *testing.T) {
	// GIVEN: A first result edited in place by the caller
	// WHEN: Running the same input again
	// THEN: The cached run returns the first run's original values

	p := newPipeline()
	r := receivable(1, "1000", day(2024, time.January, 31), baseDate)
	r.Entity = "LIGHT"
	in := pipelineInput(engine.Records{r, receivable(2, "500", day(2024, time.January, 31), baseDate)})

	first, err := p.Run(in)
	require.NoError(t, err)
	fairValue := first.Records[1].FairValue
	require.True(t, fairValue.IsPositive())
	require.NotEmpty(t, first.Diagnostics.UnmatchedKeys)
	unmatched := first.Diagnostics.UnmatchedKeys[0]

	first.Records[1].FairValue = dec("999999")
	first.Records[1].Principal = dec("1")
	first.Diagnostics.UnmatchedKeys[0] = "edited"

	second, err := p.Run(in)

	require.NoError(t, err)
	assert.Len(t, second.Diagnostics.CachedStages, 5)
	assert.True(t, second.Records[1].FairValue.Equal(fairValue), second.Records[1].FairValue.String())
	assert.True(t, second.Records[1].Principal.Equal(dec("500")))
	assert.Equal(t, unmatched, second.Diagnostics.UnmatchedKeys[0])
}

func TestRun_WithoutCheckpointRecomputes(t *testing.T) {
	p := newPipeline()
	p.Checkpoint = nil
	in := pipelineInput(engine.Records{receivable(1, "1000", day(2024, time.January, 31), baseDate)})

	_, err := p.Run(in)
	require.NoError(t, err)
	second, err := p.Run(in)
	require.NoError(t, err)

	assert.Empty(t, second.Diagnostics.CachedStages)
	assert.Equal(t, 5, second.Diagnostics.CacheMisses)
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	records := engine.Records{receivable(1, "1000", day(2024, time.January, 31), baseDate)}

	_, err := newPipeline().Run(pipelineInput(records))

	require.NoError(t, err)
	assert.Equal(t, 0, records[0].DaysOverdue)
	assert.True(t, records[0].FairValue.IsZero())
}

// =============================================================================
// FAILURES
// =============================================================================

func TestRun_MissingIndexSeries(t *testing.T) {
	in := pipelineInput(engine.Records{receivable(1, "1000", day(2024, time.January, 31), baseDate)})
	in.Indexes = engine.NewIndexSet(risingSeries(engine.IndexIGPM))

	result, err := newPipeline().Run(in)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, engine.IsMissingReferenceData(err))
	assert.Contains(t, err.Error(), "ipca")
}

func TestRun_MissingRecoveryTable(t *testing.T) {
	in := pipelineInput(engine.Records{receivable(1, "1000", day(2024, time.January, 31), baseDate)})
	in.Recovery = nil

	_, err := newPipeline().Run(in)

	var missing *engine.MissingReferenceDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, engine.DatasetRecoveryTable, missing.Dataset)
}

func TestRun_VariantMismatch(t *testing.T) {
	in := pipelineInput(engine.Records{receivable(1, "1000", day(2024, time.January, 31), baseDate)})
	in.Variant = engine.VariantFintech

	_, err := newPipeline().Run(in)

	assert.True(t, errors.Is(err, engine.ErrVariantMismatch))
}

func TestRun_DegenerateDiscountReturnsResult(t *testing.T) {
	// GIVEN: A term structure at -100% and no spread
	// WHEN: Running a record that is received in 12 months
	// THEN: Both the complete result and a degenerate-discount error come back

	p := newPipeline()
	p.Discounter = engine.Discounter{RiskSpread: 0, Convention: engine.Convention252}
	obs := &stageCounter{}
	p.Observer = obs

	in := pipelineInput(engine.Records{receivable(1, "1000", day(2024, time.January, 31), baseDate)})
	in.Terms = engine.MustTermStructure(engine.TermPoint{Months: 12, Rate252: -1})

	result, err := p.Run(in)

	require.Error(t, err)
	assert.True(t, engine.IsDegenerate(err))
	require.NotNil(t, result)
	assert.True(t, result.Records[0].DegenerateDiscount)
	assert.Equal(t, 1, result.Diagnostics.Degenerate)
	assert.Len(t, obs.stages, 5)
	assert.Equal(t, 1, obs.runs)
	assert.Error(t, obs.err)
}

func TestRun_ObserverSeesEveryStage(t *testing.T) {
	p := newPipeline()
	obs := &stageCounter{}
	p.Observer = obs
	in := pipelineInput(engine.Records{receivable(1, "1000", day(2024, time.January, 31), baseDate)})

	_, err := p.Run(in)
	require.NoError(t, err)
	_, err = p.Run(in)
	require.NoError(t, err)

	assert.Len(t, obs.stages, 10)
	assert.Equal(t, 5, obs.cached)
	assert.Equal(t, 2, obs.runs)
	assert.NoError(t, obs.err)
}

func TestRun_UnmatchedRecoveryIsDiagnosed(t *testing.T) {
	r := receivable(1, "1000", day(2024, time.January, 31), baseDate)
	r.Entity = "LIGHT"

	result, err := newPipeline().Run(pipelineInput(engine.Records{r}))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Diagnostics.RecoveryUnmatched)
	assert.Equal(t, 0.0, result.Diagnostics.MatchRatio)
	assert.NotEmpty(t, result.Diagnostics.Warnings())
	assert.True(t, result.Records[0].FairValue.IsZero())
}
