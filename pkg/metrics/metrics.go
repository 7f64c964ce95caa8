package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Indexed-map metrics
	IndexedMapCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentineldb_indexed_map_count",
			Help: "Number of active records per indexed map",
		},
		[]string{"map"},
	)

	IndexedMapFreeListLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentineldb_indexed_map_free_list_length",
			Help: "Number of recyclable slots in an indexed map's free list",
		},
		[]string{"map"},
	)

	// Retry-loop metrics
	TransactionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineldb_transaction_retries_total",
			Help: "Total number of optimistic-transaction retries, by column family",
		},
		[]string{"column_family"},
	)

	// Backup coordinator metrics
	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineldb_backups_total",
			Help: "Total number of backup attempts by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	BackupLastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentineldb_backup_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful backup",
		},
	)

	BackupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentineldb_backup_duration_seconds",
			Help:    "Time taken to complete a full backup cycle (KV + relational + purge)",
			Buckets: prometheus.DefBuckets,
		},
	)

	RestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentineldb_restore_duration_seconds",
			Help:    "Time taken to complete a restore",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Migration driver metrics
	MigrationVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentineldb_migration_version_info",
			Help: "Installed schema version; value is always 1, version is a label",
		},
		[]string{"version"},
	)

	MigrationStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineldb_migration_steps_total",
			Help: "Total number of migration steps applied, by outcome",
		},
		[]string{"outcome"},
	)

	// Classifier file manager metrics
	ClassifierBytesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentineldb_classifier_bytes_written_total",
			Help: "Total bytes written to classifier blobs",
		},
		[]string{"model_id"},
	)
)

func init() {
	prometheus.MustRegister(
		IndexedMapCount,
		IndexedMapFreeListLength,
		TransactionRetriesTotal,
		BackupsTotal,
		BackupLastSuccessTimestamp,
		BackupDuration,
		RestoreDuration,
		MigrationVersion,
		MigrationStepsTotal,
		ClassifierBytesWritten,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
