package eventlog

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l, err := Open(db)
	require.NoError(t, err)
	return l
}

// Put 3 events with identical (time, kind); all succeed with distinct
// nonces, and iteration order follows ascending nonce.
func TestEventNonceProbing(t *testing.T) {
	l := openTestLog(t)

	const T, K = int64(1000), uint32(7)
	k1, err := l.Put(Event{Time: T, Kind: K, Value: []byte("e1")})
	require.NoError(t, err)
	k2, err := l.Put(Event{Time: T, Kind: K, Value: []byte("e2")})
	require.NoError(t, err)
	k3, err := l.Put(Event{Time: T, Kind: K, Value: []byte("e3")})
	require.NoError(t, err)

	require.NotEqual(t, k1, k2)
	require.NotEqual(t, k2, k3)
	require.NotEqual(t, k1, k3)

	var got []Decoded
	require.NoError(t, l.Iterate(func(d Decoded) bool {
		got = append(got, d)
		return true
	}))
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].Nonce, got[i].Nonce)
	}
}

func TestGetByExactKey(t *testing.T) {
	l := openTestLog(t)
	k, err := l.Put(Event{Time: 1, Kind: 2, Value: []byte("v")})
	require.NoError(t, err)

	v, ok, err := l.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestIterateYieldsInvalidKeyErrorWithoutStopping(t *testing.T) {
	l := openTestLog(t)
	require.NoError(t, l.rows.Put([]byte("short"), []byte("x")))
	_, err := l.Put(Event{Time: 1, Kind: 1, Value: []byte("ok")})
	require.NoError(t, err)

	var decoded []Decoded
	require.NoError(t, l.Iterate(func(d Decoded) bool {
		decoded = append(decoded, d)
		return true
	}))

	var badCount, goodCount int
	for _, d := range decoded {
		if d.Err != nil {
			badCount++
			var ike *InvalidKeyError
			require.ErrorAs(t, d.Err, &ike)
		} else {
			goodCount++
		}
	}
	require.Equal(t, 1, badCount)
	require.Equal(t, 1, goodCount)
}
