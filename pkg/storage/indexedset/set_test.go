package indexedset

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/require"
)

var stringCodec = Codec[string]{
	Encode: func(s string) []byte { return []byte(s) },
	Decode: func(b []byte) (string, error) { return string(b), nil },
}

func openTestSet(t *testing.T) *Set[string] {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := Open[string](db, []byte("tags"), []byte("workflow"), stringCodec)
	require.NoError(t, err)
	return s
}

func TestTagCreateAndRemove(t *testing.T) {
	s := openTestSet(t)

	id, err := s.Insert("t")
	require.NoError(t, err)

	removed, err := s.Remove(id)
	require.NoError(t, err)
	require.Equal(t, "t", removed)

	ids, _, err := s.Items()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestSetUpdatePreservesID(t *testing.T) {
	s := openTestSet(t)

	id, err := s.Insert("before")
	require.NoError(t, err)
	require.NoError(t, s.Update(id, "after"))

	v, err := s.GetByID(id)
	require.NoError(t, err)
	require.Equal(t, "after", v)
}

func TestSetInsertRecyclesFreedID(t *testing.T) {
	s := openTestSet(t)

	id1, err := s.Insert("a")
	require.NoError(t, err)
	_, err = s.Remove(id1)
	require.NoError(t, err)

	id2, err := s.Insert("b")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestSetItemsOrderedByID(t *testing.T) {
	s := openTestSet(t)
	for _, v := range []string{"a", "b", "c"} {
		_, err := s.Insert(v)
		require.NoError(t, err)
	}

	ids, values, err := s.Items()
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2}, ids)
	require.Equal(t, []string{"a", "b", "c"}, values)
}
