package scores

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

func TestOverwriteGetDelete(t *testing.T) {
	tbl := openTestTable(t)

	_, ok, err := tbl.Get(1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tbl.Overwrite(Scores{ModelID: 1, Inner: []byte("v1")}))
	got, ok, err := tbl.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), got.Inner)

	require.NoError(t, tbl.Overwrite(Scores{ModelID: 1, Inner: []byte("v2")}))
	got, ok, err = tbl.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), got.Inner)

	require.NoError(t, tbl.Delete(1))
	_, ok, err = tbl.Get(1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tbl.Delete(1))
}
