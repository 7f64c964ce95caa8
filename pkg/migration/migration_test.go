package migration

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, dir string) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(dir, "states.db"), 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunNoopWhenAlreadyCurrent(t *testing.T) {
	dataDir, backupDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "VERSION"), []byte(CurrentVersion), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, "VERSION"), []byte(CurrentVersion), 0o644))

	require.NoError(t, Run(dataDir, backupDir))

	data, err := os.ReadFile(filepath.Join(dataDir, "VERSION"))
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, string(data))
}

func TestRunMismatchedVersionsFails(t *testing.T) {
	dataDir, backupDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "VERSION"), []byte("0.40.0"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, "VERSION"), []byte("0.41.0"), 0o644))

	err := Run(dataDir, backupDir)
	require.Error(t, err)
}

func TestRunUnsupportedVersionFails(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "VERSION"), []byte("0.1.0"), 0o644))

	err := Run(dataDir, "")
	require.Error(t, err)
}

func TestRunAppliesAllThreeStepShapes(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "VERSION"), []byte("0.40.0"), 0o644))

	db := openDB(t, dataDir)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		tp, err := tx.CreateBucketIfNotExists([]byte("triage_policies"))
		if err != nil {
			return err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, 75)
		if err := tp.Put([]byte("default"), buf); err != nil {
			return err
		}

		legacy, err := tx.CreateBucketIfNotExists([]byte("column_stats_legacy"))
		if err != nil {
			return err
		}
		if err := legacy.Put([]byte("row1"), []byte("value1")); err != nil {
			return err
		}

		sp, err := tx.CreateBucketIfNotExists([]byte("legacy_sampling_policies"))
		if err != nil {
			return err
		}
		return sp.Put([]byte("old"), []byte("stale"))
	}))
	require.NoError(t, db.Close())

	require.NoError(t, Run(dataDir, ""))

	version, err := os.ReadFile(filepath.Join(dataDir, "VERSION"))
	require.NoError(t, err)
	require.Equal(t, CurrentVersion+"\n", string(version))

	db2 := openDB(t, dataDir)
	require.NoError(t, db2.View(func(tx *bolt.Tx) error {
		tp := tx.Bucket([]byte("triage_policies"))
		require.NotNil(t, tp)
		row := tp.Get([]byte("default"))
		require.Len(t, row, 5)
		require.Equal(t, uint32(75), binary.LittleEndian.Uint32(row[:4]))
		require.Equal(t, byte(1), row[4])

		cs := tx.Bucket([]byte("column_stats"))
		require.NotNil(t, cs)
		require.Equal(t, []byte("value1"), cs.Get([]byte("row1")))
		require.Nil(t, tx.Bucket([]byte("column_stats_legacy")))

		require.Nil(t, tx.Bucket([]byte("legacy_sampling_policies")))
		return nil
	}))
}

func TestRunIsIdempotentOnceCurrent(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "VERSION"), []byte("0.41.1"), 0o644))

	db := openDB(t, dataDir)
	require.NoError(t, db.Close())

	require.NoError(t, Run(dataDir, ""))
	require.NoError(t, Run(dataDir, ""))

	version, err := os.ReadFile(filepath.Join(dataDir, "VERSION"))
	require.NoError(t, err)
	require.Equal(t, CurrentVersion+"\n", string(version))
}

func TestInitVersionWritesOnlyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitVersion(dir, ""))
	data, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	require.Equal(t, CurrentVersion+"\n", string(data))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("0.1.0\n"), 0o644))
	require.NoError(t, InitVersion(dir, "0.42.0"))
	data, err = os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	require.Equal(t, "0.1.0\n", string(data))
}
