package indexedmap

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

type nameRecord struct {
	Name string
}

func (r nameRecord) UniqueKey() []byte { return []byte(r.Name) }
func (r nameRecord) Value() []byte     { return []byte(r.Name) }

func decodeNameRecord(key, value []byte) (nameRecord, error) {
	return nameRecord{Name: string(value)}, nil
}

func openTestMap(t *testing.T) *Map[nameRecord] {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, err := Open[nameRecord](db, []byte("category"), decodeNameRecord, nil)
	require.NoError(t, err)
	return m
}

// Seed two rows, then insert/remove/insert and check ID recycling.
func TestInsertRemoveRecycle(t *testing.T) {
	m := openTestMap(t)

	id1, err := m.Insert(nameRecord{Name: "one"})
	require.NoError(t, err)
	id2, err := m.Insert(nameRecord{Name: "two"})
	require.NoError(t, err)
	require.Equal(t, uint32(0), id1)
	require.Equal(t, uint32(1), id2)

	id3, err := m.Insert(nameRecord{Name: "alpha"})
	require.NoError(t, err)
	require.Equal(t, uint32(2), id3)

	id4, err := m.Insert(nameRecord{Name: "beta"})
	require.NoError(t, err)
	require.Equal(t, uint32(3), id4)

	_, err = m.Remove(id3)
	require.NoError(t, err)

	id5, err := m.Insert(nameRecord{Name: "gamma"})
	require.NoError(t, err)
	require.Equal(t, id3, id5, "freed id must be recycled before a new slot is appended")

	r, err := m.GetByID(id5)
	require.NoError(t, err)
	require.Equal(t, "gamma", r.Name)

	count, err := m.Count()
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestInsertRejectsDuplicateUniqueKey(t *testing.T) {
	m := openTestMap(t)
	_, err := m.Insert(nameRecord{Name: "dup"})
	require.NoError(t, err)
	_, err = m.Insert(nameRecord{Name: "dup"})
	require.ErrorIs(t, err, dberr.ErrAlreadyExists)
}

func TestDeactivateThenClearInactiveRecycles(t *testing.T) {
	m := openTestMap(t)
	id, err := m.Insert(nameRecord{Name: "tombstoned"})
	require.NoError(t, err)

	_, err = m.Deactivate(id)
	require.NoError(t, err)

	_, err = m.GetByID(id)
	require.ErrorIs(t, err, dberr.ErrNotFound)

	// Before ClearInactive, the id must not be handed out again.
	other, err := m.Insert(nameRecord{Name: "other"})
	require.NoError(t, err)
	require.NotEqual(t, id, other)

	require.NoError(t, m.ClearInactive())

	recycled, err := m.Insert(nameRecord{Name: "recycled"})
	require.NoError(t, err)
	require.Equal(t, id, recycled)
}

func TestRemoveAbsentIDFails(t *testing.T) {
	m := openTestMap(t)
	_, err := m.Remove(999)
	require.ErrorIs(t, err, dberr.ErrNotFound)
}

type renameUpdate struct {
	expect nameRecord
	to     string
}

func (u renameUpdate) Verify(stored nameRecord) bool { return stored == u.expect }
func (u renameUpdate) Apply(stored nameRecord) nameRecord {
	return nameRecord{Name: u.to}
}

func TestUpdateRekeysAndPreservesID(t *testing.T) {
	m := openTestMap(t)
	id, err := m.Insert(nameRecord{Name: "before"})
	require.NoError(t, err)

	err = m.Update(id, renameUpdate{expect: nameRecord{Name: "before"}, to: "after"})
	require.NoError(t, err)

	r, err := m.GetByID(id)
	require.NoError(t, err)
	require.Equal(t, "after", r.Name)
}

func TestUpdateVerifyMismatchConflicts(t *testing.T) {
	m := openTestMap(t)
	id, err := m.Insert(nameRecord{Name: "before"})
	require.NoError(t, err)

	err = m.Update(id, renameUpdate{expect: nameRecord{Name: "wrong"}, to: "after"})
	require.ErrorIs(t, err, dberr.ErrConflict)
}

func TestAppendIDKeyAllowsSharedUniqueKeyAcrossIDs(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, err := Open[nameRecord](db, []byte("network"), decodeNameRecord, AppendIDKey)
	require.NoError(t, err)

	id1, err := m.Insert(nameRecord{Name: "shared"})
	require.NoError(t, err)
	id2, err := m.Insert(nameRecord{Name: "shared"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	r1, err := m.GetByID(id1)
	require.NoError(t, err)
	r2, err := m.GetByID(id2)
	require.NoError(t, err)
	require.Equal(t, "shared", r1.Name)
	require.Equal(t, "shared", r2.Name)
}
