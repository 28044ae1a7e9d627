package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the batch job.
type Metrics struct {
	RowsLoaded      *prometheus.CounterVec // labels: source={trips,zones,zone_shapes}
	RowsDropped     *prometheus.CounterVec // labels: reason={invalid_values,non_positive_duration}
	RowsPersisted   *prometheus.CounterVec // labels: table={trips,zones}
	UnmatchedTrips  prometheus.Counter
	StageDuration   *prometheus.HistogramVec // labels: stage
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobility_etl",
			Name:      "rows_loaded_total",
			Help:      "Rows read from each input source.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobility_etl",
			Name:      "rows_dropped_total",
			Help:      "Trip rows removed by cleaning filters, by reason.",
		}, []string{"reason"}),
		RowsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mobility_etl",
			Name:      "rows_persisted_total",
			Help:      "Rows written to each relational table.",
		}, []string{"table"}),
		UnmatchedTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mobility_etl",
			Name:      "unmatched_pickup_zones_total",
			Help:      "Trips whose PULocationID had no zone lookup entry.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mobility_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mobility_etl",
			Name:      "pipeline_running",
			Help:      "1 while the pipeline is running, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mobility_etl",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsLoaded,
		m.RowsDropped,
		m.RowsPersisted,
		m.UnmatchedTrips,
		m.StageDuration,
		m.PipelineRunning,
		m.LastSuccess,
	)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() (*Metrics, *prometheus.Registry) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		m.RowsLoaded,
		m.RowsDropped,
		m.RowsPersisted,
		m.UnmatchedTrips,
		m.StageDuration,
		m.PipelineRunning,
		m.LastSuccess,
	)
	return m, reg
}

// WriteTextfile writes the gathered metrics in the text exposition format for
// the node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
