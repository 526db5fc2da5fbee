package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageLifecycle(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	stored, err := store.Save("reports/7/out.csv", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), stored.Size)
	assert.True(t, store.Exists("reports/7/out.csv"))

	data, err := store.Read(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, store.Delete(stored.Path))
	assert.False(t, store.Exists(stored.Path))
	require.NoError(t, store.Delete(stored.Path))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	stored, err := store.Save("../../etc/evil", []byte("x"))
	require.NoError(t, err)
	assert.True(t, store.Exists("etc/evil"))
	assert.Equal(t, "../../etc/evil", stored.Path)
}
