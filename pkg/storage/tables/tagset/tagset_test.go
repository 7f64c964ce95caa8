package tagset

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// Workflow tag removal is non-cascading and frees the ID.
func TestWorkflowTagRemove(t *testing.T) {
	db := openDB(t)
	wt, err := OpenWorkflowTags(db)
	require.NoError(t, err)

	id, err := wt.Insert("t")
	require.NoError(t, err)
	require.Equal(t, uint32(0), id)

	removed, err := wt.RemoveWorkflowTag(id)
	require.NoError(t, err)
	require.Equal(t, "t", removed)

	tags, err := wt.Tags()
	require.NoError(t, err)
	require.NotContains(t, tags, "t")
}

func TestNetworkTagCascadeInvokesCleanup(t *testing.T) {
	db := openDB(t)
	nt, err := OpenNetworkTags(db)
	require.NoError(t, err)

	id, err := nt.Insert("net-tag")
	require.NoError(t, err)

	var cleanedID uint32
	_, err = nt.RemoveNetworkTag(id, func(tagID uint32) error {
		cleanedID = tagID
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, id, cleanedID)

	tags, err := nt.Tags()
	require.NoError(t, err)
	require.NotContains(t, tags, "net-tag")
}

func TestEventTagCascadeInvokesCleanupBeforeReclaim(t *testing.T) {
	db := openDB(t)
	et, err := OpenEventTags(db)
	require.NoError(t, err)

	id, err := et.Insert("event-tag")
	require.NoError(t, err)

	var called bool
	_, err = et.RemoveEventTag(id, func(tagID uint32) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)

	count, err := et.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestThreeTagSetsAreIndependent(t *testing.T) {
	db := openDB(t)
	et, err := OpenEventTags(db)
	require.NoError(t, err)
	nt, err := OpenNetworkTags(db)
	require.NoError(t, err)
	wt, err := OpenWorkflowTags(db)
	require.NoError(t, err)

	eid, err := et.Insert("shared-name")
	require.NoError(t, err)
	nid, err := nt.Insert("shared-name")
	require.NoError(t, err)
	wid, err := wt.Insert("shared-name")
	require.NoError(t, err)

	// Each set keeps its own index, so the same name gets the first slot
	// of each set independently.
	require.Equal(t, uint32(0), eid)
	require.Equal(t, uint32(0), nid)
	require.Equal(t, uint32(0), wid)
}
