package classifier

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietloop/sentineldb/pkg/dberr"
)

func TestNewCreatesDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "base")
	m, err := New(base)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.DirExists(t, base)
}

func TestStoreAndLoadRoundTrip(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("classifier weights")
	require.NoError(t, m.Store(7, "phishing", data))
	require.True(t, m.Exists(7, "phishing"))

	got, err := m.Load(7, "phishing")
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestLoadMissingReturnsNilNoError(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	got, err := m.Load(1, "nonexistent")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreOverwritesPrevious(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Store(1, "v", []byte("first")))
	require.NoError(t, m.Store(1, "v", []byte("second")))

	got, err := m.Load(1, "v")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestDeleteIsIdempotent(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.Store(1, "gone", []byte("x")))
	require.NoError(t, m.Delete(1, "gone"))
	require.False(t, m.Exists(1, "gone"))
	require.NoError(t, m.Delete(1, "gone"))
}

func TestValidateNameRejectsTraversalAndForbiddenChars(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{
		"",
		"../etc/passwd",
		"a/b",
		"a\\b",
		"a:b",
		"a*b",
		"a<b",
		"a>b",
		"a|b",
		"a?b",
		"a\"b",
	} {
		err := m.Store(1, name, []byte("x"))
		require.Error(t, err, "name %q should be rejected", name)
		require.ErrorIs(t, err, dberr.ErrInvalidInput)
	}

	require.NoError(t, m.Store(1, "valid_name-1.2", []byte("x")))
}

func TestPathIsDeterministic(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)

	want := filepath.Join(m.baseDir, "classifiers", "model_123", "classifier_test_classifier.bin")
	got, err := m.path(123, "test_classifier")
	require.NoError(t, err)
	require.Equal(t, want, got)
}
