package csvcolumnextra

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

func TestUpsertGetDeleteAllFor(t *testing.T) {
	tbl := openTestTable(t)

	require.NoError(t, tbl.Upsert(CsvColumnExtra{ModelID: 1, ColumnIndex: 0, ColumnName: "src_ip", ColumnTopN: 10}))
	require.NoError(t, tbl.Upsert(CsvColumnExtra{ModelID: 1, ColumnIndex: 1, ColumnName: "dst_ip", ColumnTopN: 10}))
	require.NoError(t, tbl.Upsert(CsvColumnExtra{ModelID: 2, ColumnIndex: 0, ColumnName: "proto", ColumnTopN: 5}))

	got, ok, err := tbl.Get(1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dst_ip", got.ColumnName)

	rows, err := tbl.GetAllFor(1)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	n, err := tbl.DeleteAllFor(1)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, err = tbl.GetAllFor(2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
