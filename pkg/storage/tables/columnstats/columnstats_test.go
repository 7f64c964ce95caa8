package columnstats

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

func TestInsertAndGetRoundTrip(t *testing.T) {
	tbl := openTestTable(t)

	err := tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		7: {
			{ColumnIndex: 0, ColumnType: TypeIPAddress, Counts: map[string]uint64{"10.0.0.1": 5, "10.0.0.2": 2}},
			{ColumnIndex: 1, Counts: map[string]uint64{"GET": 9}},
		},
	}, 1, 1000)
	require.NoError(t, err)

	rows, err := tbl.Get(7, 1000)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestRemoveByModel(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		7: {{ColumnIndex: 0, Counts: map[string]uint64{"a": 1}}},
	}, 1, 1000))
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		7: {{ColumnIndex: 0, Counts: map[string]uint64{"a": 1}}},
	}, 2, 1000))

	require.NoError(t, tbl.RemoveByModel(1))

	rows, err := tbl.Get(7, 1000)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint32(2), rows[0].ModelID)
}

func TestGetTopColumnsOfModelSumsAcrossClusters(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		1: {{ColumnIndex: 0, Counts: map[string]uint64{"x": 3}}},
		2: {{ColumnIndex: 0, Counts: map[string]uint64{"x": 4, "y": 1}}},
	}, 9, 1000))

	result, err := tbl.GetTopColumnsOfModel(9, []uint32{1, 2}, []uint32{0}, 10, nil, 1.0)
	require.NoError(t, err)
	require.Len(t, result[0], 2)
	require.Equal(t, "x", result[0][0].Value)
	require.Equal(t, uint64(7), result[0][0].Count)
}

func TestGetTopIPAddressesOfClusterSizeZeroReturnsEmptySlice(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		1: {{ColumnIndex: 0, ColumnType: TypeIPAddress, Counts: map[string]uint64{"10.0.0.1": 3}}},
	}, 9, 1000))

	result, err := tbl.GetTopIPAddressesOfCluster(9, 1, []uint32{0}, 0)
	require.NoError(t, err)
	require.Contains(t, result, uint32(0))
	require.Empty(t, result[0])
}

func TestGetTopMultimapsOfModelPrefersLargerThenNewer(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		1: {
			{ColumnIndex: 0, Counts: map[string]uint64{"a": 1, "b": 2}},
			{ColumnIndex: 1, Counts: map[string]uint64{"GET": 4}},
		},
	}, 9, 1000))
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		2: {
			{ColumnIndex: 0, Counts: map[string]uint64{"a": 1, "b": 2, "c": 3}},
			{ColumnIndex: 1, Counts: map[string]uint64{"POST": 8}},
		},
	}, 9, 2000))

	result, err := tbl.GetTopMultimapsOfModel(9, []uint32{1, 2}, []uint32{1}, []uint32{0}, 1, 2, nil)
	require.NoError(t, err)
	require.Len(t, result[0], 1)
	// Cluster 2's column 0 has the longer top-N, so its pair wins.
	require.Equal(t, uint32(2), result[0][0].ClusterID)
	require.Equal(t, int64(2000), result[0][0].BatchTS)
	require.Len(t, result[0][0].Columns, 1)
	require.Equal(t, uint32(1), result[0][0].Columns[0].ColumnIndex)
}

func TestGetTopIPAddressesOfModelFiltersNonIPColumns(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		1: {
			{ColumnIndex: 0, ColumnType: TypeIPAddress, Counts: map[string]uint64{"10.0.0.1": 3}},
			{ColumnIndex: 1, Counts: map[string]uint64{"GET": 9}},
		},
	}, 9, 1000))

	result, err := tbl.GetTopIPAddressesOfModel(9, []uint32{1}, []uint32{0, 1}, 10, nil, 1.0)
	require.NoError(t, err)
	require.Contains(t, result, uint32(0))
	require.NotContains(t, result, uint32(1))
}

func TestCountAndLoadRoundsByCluster(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		1: {{ColumnIndex: 0, Counts: map[string]uint64{"a": 1}}},
	}, 9, 1000))
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		1: {{ColumnIndex: 0, Counts: map[string]uint64{"a": 1}}},
	}, 9, 2000))

	count, err := tbl.CountRoundsByCluster(1)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	rounds, err := tbl.LoadRoundsByCluster(1, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1000, 2000}, rounds)
}

func TestGetColumnTypesOfModel(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.InsertColumnStatistics(map[uint32][]ColumnStatistics{
		1: {{ColumnIndex: 0, ColumnType: TypeIPAddress, Counts: map[string]uint64{"10.0.0.1": 1}}},
	}, 9, 1000))

	types, err := tbl.GetColumnTypesOfModel(9)
	require.NoError(t, err)
	require.Equal(t, TypeIPAddress, types[0])
}
