/*
Package metrics provides Prometheus metrics collection and exposition for the
storage engine.

The metrics package defines and registers every sentineldb metric using the
Prometheus client library, giving observability into indexed-map occupancy,
transaction retries, backup/restore outcomes, and migration progress.
Metrics are exposed over HTTP for scraping by a Prometheus server.

# Metrics Catalog

sentineldb_indexed_map_count{map}:
  - Type: Gauge
  - Description: Active record count per indexed map (category, qualifier,
    status, models, nodes, ...)

sentineldb_indexed_map_free_list_length{map}:
  - Type: Gauge
  - Description: Recyclable slot count per indexed map's free list

sentineldb_transaction_retries_total{column_family}:
  - Type: Counter
  - Description: Optimistic-transaction retries observed by the kv.Retry
    helper, by column family

sentineldb_backups_total{phase, outcome}:
  - Type: Counter
  - Description: Backup attempts by phase (kv, relational, purge) and
    outcome (ok, error)

sentineldb_backup_last_success_timestamp_seconds:
  - Type: Gauge
  - Description: Unix time of the last backup that completed all phases

sentineldb_backup_duration_seconds / sentineldb_restore_duration_seconds:
  - Type: Histogram
  - Description: Wall time of a full backup/restore cycle

sentineldb_migration_version_info{version}:
  - Type: Gauge (always 1)
  - Description: Installed schema version, exposed as a label for alerting

sentineldb_migration_steps_total{outcome}:
  - Type: Counter
  - Description: Migration steps applied, by outcome (ok, error,
    unsupported)

sentineldb_classifier_bytes_written_total{model_id}:
  - Type: Counter
  - Description: Bytes written to classifier blobs, by model id

# Usage

	import "github.com/quietloop/sentineldb/pkg/metrics"

	metrics.IndexedMapCount.WithLabelValues("category").Set(4)

	timer := metrics.NewTimer()
	// ... perform a backup ...
	timer.ObserveDuration(metrics.BackupDuration)

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

All metrics are registered once in init(); MustRegister panics on duplicate
registration so a second accidental import surfaces immediately. Labels are
kept low-cardinality (map name, column family, phase, outcome) — never a
timestamp, and never a record ID except the model_id label of
sentineldb_classifier_bytes_written_total.
*/
package metrics
