package engine_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/receivables-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(y int, m time.Month, d int) time.Time { return engine.Date(y, m, d) }

func month(y int, m time.Month) engine.Month { return engine.NewMonth(y, m) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func point(y int, m time.Month, v float64) engine.IndexPoint {
	return engine.IndexPoint{Period: month(y, m), Value: v}
}

// flatSeries returns a kind's series with the same value every month of 2020-2024.
func flatSeries(kind engine.IndexKind, v float64) *engine.IndexSeries {
	var pts []engine.IndexPoint
	for y := 2020; y <= 2024; y++ {
		for m := time.January; m <= time.December; m++ {
			pts = append(pts, point(y, m, v))
		}
	}
	return engine.MustIndexSeries(kind, pts...)
}

func receivable(row int, principal string, due, base time.Time) engine.Record {
	return engine.Record{
		Row:          row,
		Entity:       "CEMIG",
		ContractType: "invoice",
		Client:       "client-" + decimal.NewFromInt(int64(row)).String(),
		DueDate:      due,
		BaseDate:     base,
		Principal:    dec(principal),
		Ceded:        decimal.Zero,
		ThirdParty:   decimal.Zero,
		CIP:          decimal.Zero,
	}
}

func rate(v float64) *float64 { return &v }
