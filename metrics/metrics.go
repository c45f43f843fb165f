/*
Package metrics exports pipeline activity as Prometheus collectors.

Recorder implements engine.Observer. Each Recorder owns a registry, so a
batch CLI can write it out as a node-exporter textfile at the end of a run
(WriteTextfile) and tests can build as many recorders as they like.

Collectors (prefix "valuation_"):

	stage_duration_seconds{stage,cached}     histogram
	stage_rows_total{stage}                  counter
	checkpoint_total{stage,result}           counter, result = hit|miss
	runs_total{variant,result}               counter, result = success|error
	index_lookups_total{variant,point,path}  counter, point = base|receipt
	recovery_rows_total{variant,matched}     counter
	degenerate_discounts_total{variant}      counter
	recovery_match_ratio{variant}            gauge, last run
	fair_value{variant}                      gauge, last run
*/
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/receivables-engine/engine"
)

const (
	metricPrefix = "valuation_"

	resultSuccess = "success"
	resultError   = "error"
)

type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageRows     *prometheus.CounterVec
	checkpoint    *prometheus.CounterVec

	runs         *prometheus.CounterVec
	indexLookups *prometheus.CounterVec
	recoveryRows *prometheus.CounterVec
	degenerate   *prometheus.CounterVec
	matchRatio   *prometheus.GaugeVec
	fairValue    *prometheus.GaugeVec
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder with its collectors registered on a fresh
// registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "cached"},
		),
		stageRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stage_rows_total",
				Help: "Rows produced by pipeline stages",
			},
			[]string{"stage"},
		),
		checkpoint: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "checkpoint_total",
				Help: "Checkpoint lookups by stage and result",
			},
			[]string{"stage", "result"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Valuation runs by variant and result",
			},
			[]string{"variant", "result"},
		),
		indexLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "index_lookups_total",
				Help: "Index lookups by valuation point and resolution path",
			},
			[]string{"variant", "point", "path"},
		),
		recoveryRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recovery_rows_total",
				Help: "Rows joined to the recovery table, by match",
			},
			[]string{"variant", "matched"},
		),
		degenerate: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "degenerate_discounts_total",
				Help: "Rows with a degenerate discount factor",
			},
			[]string{"variant"},
		),
		matchRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "recovery_match_ratio",
				Help: "Share of rows matched in the recovery table, last run",
			},
			[]string{"variant"},
		),
		fairValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fair_value",
				Help: "Portfolio fair value, last run",
			},
			[]string{"variant"},
		),
	}
	r.registry.MustRegister(
		r.stageDuration, r.stageRows, r.checkpoint,
		r.runs, r.indexLookups, r.recoveryRows, r.degenerate,
		r.matchRatio, r.fairValue,
	)
	return r
}

// Registry exposes the recorder's registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) StageCompleted(stage string, rows int, cached bool, elapsed time.Duration) {
	r.stageDuration.WithLabelValues(stage, strconv.FormatBool(cached)).Observe(elapsed.Seconds())
	r.stageRows.WithLabelValues(stage).Add(float64(rows))
	result := "miss"
	if cached {
		result = "hit"
	}
	r.checkpoint.WithLabelValues(stage, result).Inc()
}

func (r *Recorder) RunCompleted(d engine.Diagnostics, err error) {
	variant := string(d.Variant)
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	r.runs.WithLabelValues(variant, result).Inc()

	for path, n := range d.BaseIndexPaths {
		r.indexLookups.WithLabelValues(variant, "base", string(path)).Add(float64(n))
	}
	for path, n := range d.ReceiptIndexPaths {
		r.indexLookups.WithLabelValues(variant, "receipt", string(path)).Add(float64(n))
	}
	r.recoveryRows.WithLabelValues(variant, "true").Add(float64(d.RecoveryMatched))
	r.recoveryRows.WithLabelValues(variant, "false").Add(float64(d.RecoveryUnmatched))
	r.degenerate.WithLabelValues(variant).Add(float64(d.Degenerate))
	r.matchRatio.WithLabelValues(variant).Set(d.MatchRatio)
	r.fairValue.WithLabelValues(variant).Set(d.Totals.FairValue.InexactFloat64())
}

// WriteTextfile writes every collected metric to path in the text
// exposition format, for the node-exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
