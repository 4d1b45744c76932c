package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "burn_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the scoring pipeline.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec   // labels: status={succeeded,failed}
	RunDuration     prometheus.Histogram
	StageDuration   *prometheus.HistogramVec // labels: stage
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	// Input metrics.
	RecordsLoaded   *prometheus.CounterVec // labels: source
	SchemaErrors    *prometheus.CounterVec // labels: source
	EmptyAggregates *prometheus.CounterVec // labels: source
	UnassignedFires prometheus.Gauge

	// Output metrics.
	Suitability        *prometheus.GaugeVec // labels: region
	SnapshotsPublished prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete select-to-publish run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the scheduler is active, 0 when shut down.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Input records loaded by source.",
		}, []string{"source"}),
		SchemaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_errors_total",
			Help:      "Snapshot files rejected by schema validation, by source.",
		}, []string{"source"}),
		EmptyAggregates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_aggregates_total",
			Help:      "Region summaries that fell back to defaults, by source.",
		}, []string{"source"}),
		UnassignedFires: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unassigned_fire_points",
			Help:      "Fire points outside every region in the last run.",
		}),
		Suitability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suitability_score",
			Help:      "Latest burn suitability score per region.",
		}, []string{"region"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Region snapshots written to the Kafka topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.PipelineRunning,
		m.LastSuccess,
		m.RecordsLoaded,
		m.SchemaErrors,
		m.EmptyAggregates,
		m.UnassignedFires,
		m.Suitability,
		m.SnapshotsPublished,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
