// Package store is the facade over the whole storage engine: it owns the
// open KV database, the classifier file manager, the pretrained-artifact
// directory, and the typed tables built in storage/tables, opening the
// fixed column-family list up front so every boot sees the same on-disk
// layout.
package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/classifier"
	"github.com/quietloop/sentineldb/pkg/dberr"
	"github.com/quietloop/sentineldb/pkg/migration"
	"github.com/quietloop/sentineldb/pkg/storage/tables/account"
	"github.com/quietloop/sentineldb/pkg/storage/tables/batchinfo"
	"github.com/quietloop/sentineldb/pkg/storage/tables/category"
	"github.com/quietloop/sentineldb/pkg/storage/tables/cluster"
	"github.com/quietloop/sentineldb/pkg/storage/tables/columnstats"
	"github.com/quietloop/sentineldb/pkg/storage/tables/csvcolumnextra"
	"github.com/quietloop/sentineldb/pkg/storage/tables/eventlog"
	modeltbl "github.com/quietloop/sentineldb/pkg/storage/tables/model"
	"github.com/quietloop/sentineldb/pkg/storage/tables/modelindicator"
	"github.com/quietloop/sentineldb/pkg/storage/tables/network"
	"github.com/quietloop/sentineldb/pkg/storage/tables/node"
	"github.com/quietloop/sentineldb/pkg/storage/tables/outlierinfo"
	"github.com/quietloop/sentineldb/pkg/storage/tables/qualifier"
	"github.com/quietloop/sentineldb/pkg/storage/tables/scores"
	"github.com/quietloop/sentineldb/pkg/storage/tables/status"
	"github.com/quietloop/sentineldb/pkg/storage/tables/tagset"
	"github.com/quietloop/sentineldb/pkg/storage/tables/timeseries"
)

// columnFamilies is the fixed list of bucket names opened on every boot,
// independent of which ones have a typed Go wrapper today. Buckets with
// no dedicated table package below (access_tokens, allow_networks,
// block_networks, configs, backup_configs, customers, data_sources, external_services, filters,
// hosts, sampling_policies, templates, tidbs, tor_exit_nodes,
// traffic_filters, triage_policies, triage_responses, trusted_domains,
// trusted_user_agents) are reserved; they are still created so every
// installation shares one on-disk layout and a later package can open
// them without a migration step.
var columnFamilies = []string{
	"access_tokens", "accounts", "agents", "allow_networks", "batch_info",
	"block_networks", "category", "cluster", "column_stats", "configs",
	"backup_configs", "csv_column_extras", "customers", "data_sources",
	"external_services", "filters", "hosts", "models", "model_indicators",
	"networks", "nodes", "outliers", "qualifiers", "sampling_policies",
	"scores", "statuses", "templates", "tidbs", "time_series",
	"tor_exit_nodes", "traffic_filters", "triage_policies",
	"triage_responses", "trusted_domains", "trusted_user_agents", "meta",
	"events",
}

// Store is the engine facade: the open KV database plus every typed
// table built on top of it, the classifier manager, and the
// pretrained-artifact directory.
type Store struct {
	db *bolt.DB

	// mu guards backup/restore/recover exclusivity: table reads and writes
	// take RLock, whole-store operations take Lock.
	mu sync.RWMutex

	Classifier   *classifier.Manager
	Pretrained   *Pretrained
	Models       *modeltbl.Table
	BatchInfo    *batchinfo.Table
	Scores       *scores.Table
	Clusters     *cluster.Table
	ColumnStats  *columnstats.Table
	CsvColumns   *csvcolumnextra.Table
	TimeSeries   *timeseries.Table
	Indicators   *modelindicator.Table
	Outliers     *outlierinfo.Table
	Accounts     *account.Table
	Networks     *network.Table
	Nodes        *node.Table
	Categories   *category.Table
	Qualifiers   *qualifier.Table
	Statuses     *status.Table
	EventTags    *tagset.EventTags
	NetworkTags  *tagset.NetworkTags
	WorkflowTags *tagset.WorkflowTags
	Events       *eventlog.Log
}

// Open opens (creating if absent) the bbolt database at
// dataDir/states.db, ensures every column family exists, and wires every
// typed table on top of it. classifierDir and pretrainedDir default to
// dataDir/classifiers and dataDir/pretrained when empty.
func Open(dataDir, classifierDir, pretrainedDir string) (*Store, error) {
	if classifierDir == "" {
		classifierDir = filepath.Join(dataDir, "classifiers")
	}
	if pretrainedDir == "" {
		pretrainedDir = filepath.Join(dataDir, "pretrained")
	}

	if err := migration.InitVersion(dataDir, ""); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dataDir, "states.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open states.db: %w: %w", err, dberr.ErrIo)
	}
	if err := ensureColumnFamilies(db); err != nil {
		db.Close()
		return nil, err
	}

	clf, err := classifier.New(classifierDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	pretrained, err := newPretrained(pretrainedDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, Classifier: clf, Pretrained: pretrained}
	if err := s.openTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func ensureColumnFamilies(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range columnFamilies {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) openTables() error {
	var err error
	if s.Models, err = modeltbl.Open(s.db); err != nil {
		return err
	}
	if s.BatchInfo, err = batchinfo.Open(s.db); err != nil {
		return err
	}
	if s.Scores, err = scores.Open(s.db); err != nil {
		return err
	}
	if s.Clusters, err = cluster.Open(s.db, func() int64 { return time.Now().UnixNano() }); err != nil {
		return err
	}
	if s.ColumnStats, err = columnstats.Open(s.db); err != nil {
		return err
	}
	if s.CsvColumns, err = csvcolumnextra.Open(s.db); err != nil {
		return err
	}
	if s.TimeSeries, err = timeseries.Open(s.db); err != nil {
		return err
	}
	if s.Indicators, err = modelindicator.Open(s.db); err != nil {
		return err
	}
	if s.Outliers, err = outlierinfo.Open(s.db); err != nil {
		return err
	}
	if s.Accounts, err = account.Open(s.db); err != nil {
		return err
	}
	if s.Networks, err = network.Open(s.db); err != nil {
		return err
	}
	if s.Nodes, err = node.Open(s.db); err != nil {
		return err
	}
	if s.Categories, err = category.Open(s.db); err != nil {
		return err
	}
	if s.Qualifiers, err = qualifier.Open(s.db); err != nil {
		return err
	}
	if s.Statuses, err = status.Open(s.db); err != nil {
		return err
	}
	if s.EventTags, err = tagset.OpenEventTags(s.db); err != nil {
		return err
	}
	if s.NetworkTags, err = tagset.OpenNetworkTags(s.db); err != nil {
		return err
	}
	if s.WorkflowTags, err = tagset.OpenWorkflowTags(s.db); err != nil {
		return err
	}
	if s.Events, err = eventlog.Open(s.db); err != nil {
		return err
	}
	return nil
}

// DB exposes the underlying bbolt handle, e.g. for the backup coordinator's
// hot-backup snapshot.
func (s *Store) DB() *bolt.DB { return s.db }

// Lock acquires exclusive store-wide access, for backup/restore/recover.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases exclusive store-wide access.
func (s *Store) Unlock() { s.mu.Unlock() }

// RLock acquires a table-level read/write lock, held around every ordinary
// table operation so it excludes a concurrent backup/restore/recover.
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock releases the table-level lock.
func (s *Store) RUnlock() { s.mu.RUnlock() }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
