package kv

import (
	"errors"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

func openTestMap(t *testing.T) *Map {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, err := Open(db, []byte("rows"))
	require.NoError(t, err)
	return m
}

func TestInsertRejectsDuplicate(t *testing.T) {
	m := openTestMap(t)
	require.NoError(t, m.Insert([]byte("a"), []byte("1")))
	err := m.Insert([]byte("a"), []byte("2"))
	require.ErrorIs(t, err, dberr.ErrAlreadyExists)

	v, ok, err := m.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestDeleteAbsentKeySucceeds(t *testing.T) {
	m := openTestMap(t)
	require.NoError(t, m.Delete([]byte("missing")))
}

func TestIterForwardAscendingSkipsIndexKey(t *testing.T) {
	m := openTestMap(t)
	require.NoError(t, m.Put(IndexKey, []byte("index-row")))
	require.NoError(t, m.Put([]byte("b"), []byte("2")))
	require.NoError(t, m.Put([]byte("a"), []byte("1")))
	require.NoError(t, m.Put([]byte("c"), []byte("3")))

	var keys []string
	require.NoError(t, m.IterForward(func(p Pair) bool {
		keys = append(keys, string(p.Key))
		return true
	}))
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestIterBackwardDescending(t *testing.T) {
	m := openTestMap(t)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, m.Put([]byte(k), []byte("v")))
	}

	var keys []string
	require.NoError(t, m.IterBackward(func(p Pair) bool {
		keys = append(keys, string(p.Key))
		return true
	}))
	require.Equal(t, []string{"c", "b", "a"}, keys)
}

func TestPrefixIterForwardAndBackward(t *testing.T) {
	m := openTestMap(t)
	for _, k := range []string{"ax1", "ax2", "ay1", "bz1"} {
		require.NoError(t, m.Put([]byte(k), []byte("v")))
	}

	var fwd []string
	require.NoError(t, m.PrefixIter([]byte("ax"), Forward, func(p Pair) bool {
		fwd = append(fwd, string(p.Key))
		return true
	}))
	require.Equal(t, []string{"ax1", "ax2"}, fwd)

	var bwd []string
	require.NoError(t, m.PrefixIter([]byte("ax"), Backward, func(p Pair) bool {
		bwd = append(bwd, string(p.Key))
		return true
	}))
	require.Equal(t, []string{"ax2", "ax1"}, bwd)
}

func TestUpdateRekeysAtomically(t *testing.T) {
	m := openTestMap(t)
	require.NoError(t, m.Put([]byte("old"), []byte("v1")))

	require.NoError(t, m.Update(Pair{Key: []byte("old"), Value: []byte("v1")}, Pair{Key: []byte("new"), Value: []byte("v2")}))

	_, ok, err := m.Get([]byte("old"))
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := m.Get([]byte("new"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestUpdateStaleValueConflicts(t *testing.T) {
	m := openTestMap(t)
	require.NoError(t, m.Put([]byte("k"), []byte("current")))

	err := m.Update(Pair{Key: []byte("k"), Value: []byte("stale")}, Pair{Key: []byte("k"), Value: []byte("next")})
	require.ErrorIs(t, err, dberr.ErrConflict)
}

func TestReplaceAllSwapsEntireBucket(t *testing.T) {
	m := openTestMap(t)
	require.NoError(t, m.Put([]byte("stale"), []byte("v")))

	require.NoError(t, m.ReplaceAll([]Pair{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}))

	_, ok, err := m.Get([]byte("stale"))
	require.NoError(t, err)
	require.False(t, ok)

	var keys []string
	require.NoError(t, m.IterForward(func(p Pair) bool {
		keys = append(keys, string(p.Key))
		return true
	}))
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestRetryAbsorbsConflictThenSucceeds(t *testing.T) {
	attempts := 0
	err := Retry(nil, func() error {
		attempts++
		if attempts < 3 {
			return dberr.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryPropagatesNonConflictError(t *testing.T) {
	wantErr := errors.New("boom")
	err := Retry(nil, func() error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
}
