package keyindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	idx := New()
	id1, err := idx.Allocate([]byte("alpha"))
	require.NoError(t, err)
	_, err = idx.Allocate([]byte("beta"))
	require.NoError(t, err)
	_, err = idx.Remove(id1)
	require.NoError(t, err)

	buf := idx.Encode()
	decoded, err := Decode(buf)
	require.NoError(t, err)

	require.Equal(t, idx.Available, decoded.Available)
	require.Equal(t, idx.Inactive, decoded.Inactive)
	require.Equal(t, idx.Entries, decoded.Entries)
}

func TestDecodeTruncatedHeaderIsCorrupt(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestClearInactiveDrainsIntoFreeList(t *testing.T) {
	idx := New()
	id, err := idx.Allocate([]byte("x"))
	require.NoError(t, err)
	_, err = idx.Deactivate(id)
	require.NoError(t, err)
	require.NotEqual(t, None, idx.Inactive)

	idx.ClearInactive()
	require.Equal(t, None, idx.Inactive)
	require.Equal(t, id, idx.Available)
}
