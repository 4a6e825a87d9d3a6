package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveReadDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save(filepath.Join("job-1", "tc.xlsx"), []byte("payload"))
	require.NoError(t, err)

	data, err := store.Read(name)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.DeleteDir("job-1"))
	_, err = store.Read(name)
	assert.Error(t, err)
	assert.NoError(t, store.DeleteDir("job-1"))
	assert.Error(t, store.DeleteDir("."))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.xlsx", []byte("x"))
	assert.Error(t, err)
	_, err = store.Read("../../etc/passwd")
	assert.Error(t, err)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("old/a.xlsx", []byte("a"))
	require.NoError(t, err)
	_, err = store.Save("new/b.xlsx", []byte("b"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old", "a.xlsx"), past, past))

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("old", "a.xlsx")}, deleted)

	_, err = store.Read("new/b.xlsx")
	assert.NoError(t, err)
}
