package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietloop/sentineldb/pkg/config"
	modeltbl "github.com/quietloop/sentineldb/pkg/storage/tables/model"
	"github.com/quietloop/sentineldb/pkg/store"
)

// fakeDumper swaps the real pg_dump/pg_restore subprocess calls for plain
// file copies, so tests exercise the archive/restore plumbing without a
// live postgres container.
type fakeDumper struct {
	lastDump []byte
}

func (f *fakeDumper) Dump(_ context.Context, _ config.BackupConfig, dumpFile string) error {
	return os.WriteFile(dumpFile, f.lastDump, 0o644)
}

func (f *fakeDumper) Restore(_ context.Context, _ config.BackupConfig, dumpFile string) error {
	data, err := os.ReadFile(dumpFile)
	if err != nil {
		return err
	}
	f.lastDump = data
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeDumper) {
	t.Helper()
	dataDir := t.TempDir()
	backupDir := t.TempDir()

	st, err := store.Open(dataDir, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dumper := &fakeDumper{lastDump: []byte("relational-snapshot-v1")}
	cfg := config.BackupConfig{BackupPath: backupDir, Container: "pg", Host: "localhost", Port: 5432, User: "u", Name: "db", NumOfBackups: 5}
	c, err := New(st, dataDir, "", "", cfg, dumper)
	require.NoError(t, err)
	return c, dumper
}

func TestCreateThenList(t *testing.T) {
	c, _ := newTestCoordinator(t)

	for i := 0; i < 3; i++ {
		_, err := c.Create(context.Background(), false, 10)
		require.NoError(t, err)
	}

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, uint64(3), list[0].ID) // newest first
	require.Equal(t, uint64(1), list[2].ID)
	for _, info := range list {
		require.True(t, info.HasArchive)
		require.Positive(t, info.KVSize)
		require.Positive(t, info.ArchiveSize)
	}
}

func TestListReflectsMissingArchive(t *testing.T) {
	c, _ := newTestCoordinator(t)

	for i := 0; i < 3; i++ {
		_, err := c.Create(context.Background(), false, 10)
		require.NoError(t, err)
	}

	list, err := c.List()
	require.NoError(t, err)
	require.True(t, list[1].HasArchive)
	require.NoError(t, os.Remove(list[1].ArchivePath))

	list, err = c.List()
	require.NoError(t, err)
	var middle Info
	for _, info := range list {
		if info.ID == 2 {
			middle = info
		}
	}
	require.False(t, middle.HasArchive)
	require.Zero(t, middle.ArchiveSize)
}

func TestCreatePurgesBeyondRetention(t *testing.T) {
	c, _ := newTestCoordinator(t)

	for i := 0; i < 5; i++ {
		_, err := c.Create(context.Background(), false, 2)
		require.NoError(t, err)
	}

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, uint64(5), list[0].ID)
	require.Equal(t, uint64(4), list[1].ID)

	entries, err := os.ReadDir(filepath.Join(c.backupDir, "database.db"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRestoreRoundTrip(t *testing.T) {
	c, dumper := newTestCoordinator(t)

	st := c.Store()
	_, err := st.Models.Insert(modeltbl.Model{Name: "first", Kind: "classifier", ClassifierVersion: 1})
	require.NoError(t, err)

	dumper.lastDump = []byte("relational-state-at-backup")
	backupInfo, err := c.Create(context.Background(), true, 10)
	require.NoError(t, err)

	_, err = c.Store().Models.Insert(modeltbl.Model{Name: "second", Kind: "classifier", ClassifierVersion: 1})
	require.NoError(t, err)
	dumper.lastDump = []byte("relational-state-after-backup")

	require.NoError(t, c.Restore(context.Background(), &backupInfo.ID))

	_, ok, err := c.Store().Models.GetByName("first")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.Store().Models.GetByName("second")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, []byte("relational-state-at-backup"), dumper.lastDump)
}

func TestRestoreMissingArchiveFails(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.Create(context.Background(), false, 10)
	require.NoError(t, err)

	require.NoError(t, os.Remove(c.archivePath(1)))

	id := uint64(1)
	err = c.Restore(context.Background(), &id)
	require.Error(t, err)
}

func TestRecoverFallsBackToNewestCleanBackup(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.Store().Models.Insert(modeltbl.Model{Name: "before-corruption", Kind: "classifier", ClassifierVersion: 1})
	require.NoError(t, err)
	_, err = c.Create(context.Background(), true, 10)
	require.NoError(t, err)

	dbPath := filepath.Join(c.dataDir, "states.db")
	require.NoError(t, c.Store().Close())
	require.NoError(t, os.WriteFile(dbPath, []byte("not a bbolt file"), 0o644))

	require.NoError(t, c.Recover(context.Background()))

	_, ok, err := c.Store().Models.GetByName("before-corruption")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPurgeOldDeletesOrphanArchives(t *testing.T) {
	c, _ := newTestCoordinator(t)

	for i := 0; i < 4; i++ {
		_, err := c.Create(context.Background(), false, 10)
		require.NoError(t, err)
	}

	require.NoError(t, c.PurgeOld(1))

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, uint64(4), list[0].ID)

	entries, err := os.ReadDir(filepath.Join(c.backupDir, "database.db"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
