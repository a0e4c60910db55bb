// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Loader metrics
	RowsLoaded    *prometheus.CounterVec
	ParseFailures *prometheus.CounterVec
	DatasetErrors *prometheus.CounterVec

	// Alignment metrics
	TweetsAligned    *prometheus.CounterVec
	TweetsDropped    *prometheus.CounterVec
	AlignedCoverage  *prometheus.GaugeVec
	SamplesEmitted   *prometheus.CounterVec
	VolatilityLatest *prometheus.GaugeVec

	// Evaluation metrics
	EvaluationMSE    *prometheus.GaugeVec
	EvaluationScored *prometheus.GaugeVec
	ModelCalls       *prometheus.CounterVec
	ModelCacheHits   *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "social_volatility"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "rows_loaded_total",
			Help:      "Rows turned into records, by asset and source",
		}, []string{"asset", "source"}),
		ParseFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "parse_failures_total",
			Help:      "Rows dropped with a parse error, by asset and source",
		}, []string{"asset", "source"}),
		DatasetErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "dataset_errors_total",
			Help:      "Per-asset dataset failures by kind",
		}, []string{"asset", "kind"}),

		TweetsAligned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alignment",
			Name:      "tweets_aligned_total",
			Help:      "Tweets joined to a price observation",
		}, []string{"asset"}),
		TweetsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alignment",
			Name:      "tweets_dropped_total",
			Help:      "Tweets dropped during alignment by reason",
		}, []string{"asset", "reason"}),
		AlignedCoverage: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alignment",
			Name:      "coverage_ratio",
			Help:      "Share of tweets that found a price on the last run",
		}, []string{"asset"}),
		SamplesEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "features",
			Name:      "samples_emitted_total",
			Help:      "Aligned samples emitted with full windows",
		}, []string{"asset"}),
		VolatilityLatest: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "volatility",
			Name:      "latest",
			Help:      "Most recent defined rolling volatility",
		}, []string{"asset"}),

		EvaluationMSE: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "mse",
			Help:      "Mean squared error of the last evaluation",
		}, []string{"asset", "model"}),
		EvaluationScored: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "scored_points",
			Help:      "Timestamps scored in the last evaluation",
		}, []string{"asset", "model"}),
		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "calls_total",
			Help:      "Model fit and predict calls by status",
		}, []string{"model", "op", "status"}),
		ModelCacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "cache_lookups_total",
			Help:      "Prediction cache lookups by result",
		}, []string{"result"}),

		PipelineRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"phase"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulPipeline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordLoad records a finished file load.
func (m *Metrics) RecordLoad(asset, source string, loaded, failed int) {
	m.RowsLoaded.WithLabelValues(asset, source).Add(float64(loaded))
	m.ParseFailures.WithLabelValues(asset, source).Add(float64(failed))
}

// RecordDatasetError counts a per-asset failure.
func (m *Metrics) RecordDatasetError(asset, kind string) {
	m.DatasetErrors.WithLabelValues(asset, kind).Inc()
}

// RecordAlignment records alignment counters for one asset.
func (m *Metrics) RecordAlignment(asset string, matched, unmatched, missingSentiment, duplicates int, coverage float64) {
	m.TweetsAligned.WithLabelValues(asset).Add(float64(matched))
	m.TweetsDropped.WithLabelValues(asset, "unmatched").Add(float64(unmatched))
	m.TweetsDropped.WithLabelValues(asset, "missing_sentiment").Add(float64(missingSentiment))
	m.TweetsDropped.WithLabelValues(asset, "duplicate").Add(float64(duplicates))
	m.AlignedCoverage.WithLabelValues(asset).Set(coverage)
}

// RecordSamples adds emitted samples for an asset.
func (m *Metrics) RecordSamples(asset string, n int) {
	m.SamplesEmitted.WithLabelValues(asset).Add(float64(n))
}

// RecordEvaluation stores the last MSE and scored count.
func (m *Metrics) RecordEvaluation(asset, model string, mse float64, scored int) {
	m.EvaluationMSE.WithLabelValues(asset, model).Set(mse)
	m.EvaluationScored.WithLabelValues(asset, model).Set(float64(scored))
}

// RecordModelCall counts a model operation.
func (m *Metrics) RecordModelCall(model, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelCalls.WithLabelValues(model, op, status).Inc()
}

// RecordCacheLookup counts a prediction cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ModelCacheHits.WithLabelValues(result).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run.
func (m *Metrics) RecordPipelineRun(phase, status string, durationSeconds float64) {
	m.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	m.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
}
