package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietloop/sentineldb/pkg/storage/tables/batchinfo"
	"github.com/quietloop/sentineldb/pkg/storage/tables/csvcolumnextra"
	modeltbl "github.com/quietloop/sentineldb/pkg/storage/tables/model"
	"github.com/quietloop/sentineldb/pkg/storage/tables/network"
	"github.com/quietloop/sentineldb/pkg/storage/tables/scores"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "", "")
	require.NoError(t, err)
	defer s.Close()

	require.DirExists(t, filepath.Join(dir, "classifiers"))
	require.DirExists(t, filepath.Join(dir, "pretrained"))
	require.FileExists(t, filepath.Join(dir, "states.db"))
}

func TestAddModelThenLoadByName(t *testing.T) {
	s := openTestStore(t)

	m := modeltbl.Model{Name: "phishing", Kind: "classifier", ClassifierVersion: 1, CreationTime: 1}
	saved, err := s.AddModel(m, []byte("blob"), []batchinfo.BatchInfo{
		{BatchID: 1, Earliest: 1, Latest: 2, Size: 10, Sensors: []string{"eth0"}},
	}, scores.Scores{Inner: []byte("s1")})
	require.NoError(t, err)

	loadedModel, blob, err := s.LoadModelByName("phishing")
	require.NoError(t, err)
	require.Equal(t, saved.ID, loadedModel.ID)
	require.Equal(t, []byte("blob"), blob)

	sc, ok, err := s.Scores.Get(saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("s1"), sc.Inner)

	count, err := s.BatchInfo.Count(saved.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestDeleteModelSweepsDependents(t *testing.T) {
	s := openTestStore(t)

	saved, err := s.AddModel(
		modeltbl.Model{Name: "to-delete", Kind: "classifier", CreationTime: 1},
		[]byte("blob"),
		[]batchinfo.BatchInfo{{BatchID: 1, Earliest: 1, Latest: 2, Size: 1}},
		scores.Scores{Inner: []byte("x")},
	)
	require.NoError(t, err)

	require.NoError(t, s.CsvColumns.Upsert(csvcolumnextra.CsvColumnExtra{ModelID: saved.ID, ColumnIndex: 0, ColumnName: "col"}))

	completed, err := s.DeleteModel("to-delete")
	require.NoError(t, err)
	require.Equal(t, 9, completed)

	_, _, err = s.LoadModelByName("to-delete")
	require.Error(t, err)

	_, ok, err := s.Scores.Get(saved.ID)
	require.NoError(t, err)
	require.False(t, ok)

	count, err := s.BatchInfo.Count(saved.ID)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	cols, err := s.CsvColumns.GetAllFor(saved.ID)
	require.NoError(t, err)
	require.Empty(t, cols)

	require.False(t, s.Classifier.Exists(saved.ID, "to-delete"))
}

func TestRemoveNetworkTagSweepsNetworks(t *testing.T) {
	s := openTestStore(t)

	tagID, err := s.NetworkTags.Insert("blocked")
	require.NoError(t, err)

	netID, err := s.Networks.Insert(network.Network{
		Name:     "dmz",
		Networks: []string{"192.0.2.0/24"},
		TagIDs:   []uint32{tagID, 99},
	})
	require.NoError(t, err)

	removed, err := s.RemoveNetworkTag(tagID)
	require.NoError(t, err)
	require.Equal(t, "blocked", removed)

	n, err := s.Networks.GetByID(netID)
	require.NoError(t, err)
	require.Equal(t, []uint32{99}, n.TagIDs)

	tags, err := s.NetworkTags.Tags()
	require.NoError(t, err)
	require.NotContains(t, tags, "blocked")
}

func TestPretrainedNewestWins(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Pretrained.Store("triage", 100, []byte("old")))
	require.NoError(t, s.Pretrained.Store("triage", 200, []byte("new")))

	data, ok, err := s.Pretrained.Load("triage")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), data)

	_, ok, err = s.Pretrained.Load("nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}
