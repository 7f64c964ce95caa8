package outlierinfo

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/require"
)

func openTestTable(t *testing.T) *Table {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tbl, err := Open(db)
	require.NoError(t, err)
	return tbl
}

func TestUpsertGetDelete(t *testing.T) {
	tbl := openTestTable(t)

	o := OutlierInfo{ModelID: 1, OutlierID: 5, RawEvent: []byte("raw"), EventIDs: []uint64{10, 11}, Size: 2}
	require.NoError(t, tbl.Upsert(o))

	got, ok, err := tbl.Get(1, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, o, got)

	require.NoError(t, tbl.Delete(1, 5))
	_, ok, err = tbl.Get(1, 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteAllForIsolatesByModel(t *testing.T) {
	tbl := openTestTable(t)

	require.NoError(t, tbl.Upsert(OutlierInfo{ModelID: 1, OutlierID: 1, RawEvent: []byte("a")}))
	require.NoError(t, tbl.Upsert(OutlierInfo{ModelID: 1, OutlierID: 2, RawEvent: []byte("b")}))
	require.NoError(t, tbl.Upsert(OutlierInfo{ModelID: 2, OutlierID: 1, RawEvent: []byte("c")}))

	n, err := tbl.DeleteAllFor(1)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, err := tbl.GetAllFor(2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
