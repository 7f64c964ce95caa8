package cluster

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

	tick := int64(0)
	tbl, err := Open(db, func() int64 {
		tick++
		return tick
	})
	require.NoError(t, err)
	return tbl
}

// Merge-then-remerge with a shrinking cap.
func TestClusterMerge(t *testing.T) {
	tbl := openTestTable(t)

	err := tbl.UpdateClusters([]Update{{
		ClusterID:  7,
		DetectorID: 77,
		EventIDs:   []uint64{123, 456},
		Sensors:    []string{"sX", "sY"},
		StatusID:   5,
		Signature:  "s1",
		Size:       10,
		Score:      f64ptr(0.5),
		Labels:     strSlicePtr("L"),
	}}, 1, 2)
	require.NoError(t, err)

	c, ok, err := tbl.Get(1, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []uint64{456, 123}, c.EventIDs)
	require.Equal(t, []string{"sY", "sX"}, c.Sensors)

	err = tbl.UpdateClusters([]Update{{
		ClusterID:  7,
		DetectorID: 77,
		EventIDs:   []uint64{123, 999},
		Sensors:    []string{"sX", "sZ"},
		StatusID:   9,
		Signature:  "s2",
		Size:       5,
	}}, 1, 1)
	require.NoError(t, err)

	c2, ok, err := tbl.Get(1, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []uint64{999}, c2.EventIDs)
	require.Equal(t, []string{"sZ"}, c2.Sensors)
	require.Equal(t, uint64(15), c2.Size)
	require.Equal(t, uint32(9), c2.StatusID)
	require.Equal(t, "s2", c2.Signature)
}

func f64ptr(v float64) *float64     { return &v }
func strSlicePtr(v ...string) *[]string { return &v }

func TestUpdateClusterRequiresAtLeastOneField(t *testing.T) {
	tbl := openTestTable(t)
	require.NoError(t, tbl.UpdateClusters([]Update{{ClusterID: 1, EventIDs: nil, Sensors: nil}}, 1, 10))
	err := tbl.UpdateCluster(1, 1, nil, nil, nil)
	require.Error(t, err)
}

// Two consecutive cursor pages concatenate to the unpaged load.
func TestPaginationCursorLaw(t *testing.T) {
	tbl := openTestTable(t)
	for i := uint32(1); i <= 6; i++ {
		require.NoError(t, tbl.UpdateClusters([]Update{{
			ClusterID: i,
			EventIDs:  []uint64{uint64(i)},
			Sensors:   []string{"s"},
			Size:      uint64(i * 10),
		}}, 1, 10))
	}

	firstPage, err := tbl.LoadClusters(1, nil, nil, nil, nil, nil, nil, true, 3)
	require.NoError(t, err)
	require.Len(t, firstPage, 3)

	last := firstPage[len(firstPage)-1]
	cursor := &Cursor{Size: last.Size, ID: last.ClusterID}
	secondPage, err := tbl.LoadClusters(1, nil, nil, nil, nil, cursor, nil, true, 3)
	require.NoError(t, err)
	require.Len(t, secondPage, 3)

	all, err := tbl.LoadClusters(1, nil, nil, nil, nil, nil, nil, true, 6)
	require.NoError(t, err)
	require.Len(t, all, 6)

	combined := append(append([]Cluster{}, firstPage...), secondPage...)
	for i := range all {
		require.Equal(t, all[i].ClusterID, combined[i].ClusterID)
	}
}

// isFirst=false returns the tail page, still in size-descending order.
func TestLoadClustersIsFirstFalseStaysDescending(t *testing.T) {
	tbl := openTestTable(t)
	for i := uint32(1); i <= 6; i++ {
		require.NoError(t, tbl.UpdateClusters([]Update{{
			ClusterID: i,
			EventIDs:  []uint64{uint64(i)},
			Sensors:   []string{"s"},
			Size:      uint64(i * 10),
		}}, 1, 10))
	}

	all, err := tbl.LoadClusters(1, nil, nil, nil, nil, nil, nil, true, 6)
	require.NoError(t, err)
	require.Len(t, all, 6)

	tail, err := tbl.LoadClusters(1, nil, nil, nil, nil, nil, nil, false, 3)
	require.NoError(t, err)
	require.Equal(t, all[3:], tail)
	for i := 0; i+1 < len(tail); i++ {
		require.GreaterOrEqual(t, tail[i].Size, tail[i+1].Size)
	}
}
