package migration

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

// withStateDBs runs fn against the bbolt database opened directly at
// dir/states.db for both dataDir and (if non-empty) backupDir, so each
// step applies identically to the live store and its backup copy.
func withStateDBs(dataDir, backupDir string, fn func(tx *bolt.Tx) error) error {
	dirs := []string{dataDir}
	if backupDir != "" {
		dirs = append(dirs, backupDir)
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, "states.db")
		db, err := bolt.Open(path, 0o600, nil)
		if err != nil {
			return fmt.Errorf("migration: open %s: %w: %w", path, err, dberr.ErrIo)
		}
		err = db.Update(fn)
		closeErr := db.Close()
		if err != nil {
			return fmt.Errorf("migration: apply step to %s: %w", path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("migration: close %s: %w: %w", path, closeErr, dberr.ErrIo)
		}
	}
	return nil
}

// --- Shape 1: record-rewrite-in-place ----------------------------------
//
// TriagePolicyV0_40 had a single global Threshold; 0.41 added a
// per-policy Enabled flag (defaulting true for every pre-existing row)
// alongside it. The old shape is an explicit struct; the driver never
// auto-detects formats.

type triagePolicyV0_40 struct {
	Threshold uint32
}

func decodeTriagePolicyV0_40(v []byte) (triagePolicyV0_40, error) {
	if len(v) != 4 {
		return triagePolicyV0_40{}, fmt.Errorf("migration: malformed triage_policy v0.40 row: %w", dberr.ErrCorrupt)
	}
	return triagePolicyV0_40{Threshold: binary.LittleEndian.Uint32(v)}, nil
}

type triagePolicy struct {
	Threshold uint32
	Enabled   bool
}

func encodeTriagePolicy(p triagePolicy) []byte {
	buf := make([]byte, 5)
	binary.LittleEndian.PutUint32(buf[:4], p.Threshold)
	if p.Enabled {
		buf[4] = 1
	}
	return buf
}

func migrateTriagePoliciesV0_40(dataDir, backupDir string) error {
	return withStateDBs(dataDir, backupDir, func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("triage_policies"))
		if err != nil {
			return err
		}
		type row struct{ key, value []byte }
		var rows []row
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			old, err := decodeTriagePolicyV0_40(v)
			if err != nil {
				return err
			}
			next := triagePolicy{Threshold: old.Threshold, Enabled: true}
			rows = append(rows, row{append([]byte(nil), k...), encodeTriagePolicy(next)})
		}
		for _, r := range rows {
			if err := b.Put(r.key, r.value); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Shape 2: column-family rename (with merge into the live CF) -------
//
// Early installations kept per-cluster column statistics in a
// "column_stats_legacy" bucket with the same composite key layout used by
// storage/tables/columnstats today; 0.41.1 folds that bucket's rows into
// the live "column_stats" bucket and removes the legacy one.

func renameLegacyColumnStats(dataDir, backupDir string) error {
	return withStateDBs(dataDir, backupDir, func(tx *bolt.Tx) error {
		legacy := tx.Bucket([]byte("column_stats_legacy"))
		if legacy == nil {
			return nil
		}
		current, err := tx.CreateBucketIfNotExists([]byte("column_stats"))
		if err != nil {
			return err
		}
		c := legacy.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := current.Put(append([]byte(nil), k...), append([]byte(nil), v...)); err != nil {
				return err
			}
		}
		return tx.DeleteBucket([]byte("column_stats_legacy"))
	})
}

// --- Shape 3: deprecated-CF-drop ----------------------------------------
//
// "legacy_sampling_policies" was superseded by "sampling_policies" in
// 0.41.1 and carries no data a 0.42 installation still reads; 0.42 drops
// it outright.

func dropLegacySamplingPolicies(dataDir, backupDir string) error {
	return withStateDBs(dataDir, backupDir, func(tx *bolt.Tx) error {
		if tx.Bucket([]byte("legacy_sampling_policies")) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte("legacy_sampling_policies"))
	})
}
