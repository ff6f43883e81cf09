package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pipeline metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// Batch metrics
	BatchesProcessedTotal *prometheus.CounterVec
	BatchesSkippedTotal   *prometheus.CounterVec

	// Store metrics
	RowsLoadedTotal      *prometheus.CounterVec
	RowsSkippedTotal     *prometheus.CounterVec
	IntegrityErrorsTotal *prometheus.CounterVec

	// Non-hitter metrics
	SequencesTotal *prometheus.CounterVec

	// Reduction metrics
	PartitionSize *prometheus.GaugeVec

	StageDurationSeconds *prometheus.HistogramVec

	CapacityUsedPercent *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all required metrics registered
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BatchesProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastsum_batches_processed_total",
				Help: "Total number of batches processed",
			},
			[]string{"stage"},
		),
		BatchesSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastsum_batches_skipped_total",
				Help: "Total number of batches skipped",
			},
			[]string{"stage", "reason"},
		),

		RowsLoadedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastsum_rows_loaded_total",
				Help: "Total number of rows appended to the store",
			},
			[]string{"table"},
		),
		RowsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastsum_rows_skipped_total",
				Help: "Total number of staged rows that failed to parse",
			},
			[]string{"table"},
		),
		IntegrityErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastsum_integrity_errors_total",
				Help: "Total number of primary key collisions on load",
			},
			[]string{"table"},
		),

		SequencesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastsum_nonhit_sequences_total",
				Help: "Sequences seen by the non-hitter filter",
			},
			[]string{"result"},
		),

		PartitionSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blastsum_partition_batches",
				Help: "Number of batches in each identity partition",
			},
			[]string{"partition"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blastsum_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"stage"},
		),

		CapacityUsedPercent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blastsum_capacity_used_percent",
				Help: "Disk usage of the staging volume (0-100)",
			},
			[]string{"path"},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// BatchProcessed counts a batch that completed a stage
func (m *Metrics) BatchProcessed(stage string) {
	m.BatchesProcessedTotal.WithLabelValues(stage).Inc()
}

// BatchSkipped counts a batch that was skipped, labelled by error kind
func (m *Metrics) BatchSkipped(stage, reason string) {
	m.BatchesSkippedTotal.WithLabelValues(stage, reason).Inc()
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
