package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStore(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)
	exerciseKV(t, store)
}

func TestNewFileSystemStore_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "ppac")

	store, err := NewFileSystemStore(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestFileSystemStore_KeysWithSeparators(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileSystemStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "ppac:a/b/../c", []byte("v")))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "key must map to exactly one file in the root")

	value, err := store.Get(ctx, "ppac:a/b/../c")
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))
}

func TestFileSystemStore_HealthCheckMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")
	store, err := NewFileSystemStore(root)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))

	assert.Error(t, store.HealthCheck(context.Background()))
}
