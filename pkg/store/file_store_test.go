package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFileStorage(t *testing.T) (*FileStorage, string) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config", "config.csv")
	return NewFileStorage(path, log.NewTestLogger()), path
}

func TestFileStorageReadMissing(t *testing.T) {
	s, _ := setupFileStorage(t)
	_, err := s.Read(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFileStorageWriteAndRead(t *testing.T) {
	s, path := setupFileStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, []byte("key,value\n")))
	data, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key,value\n", string(data))
	assert.Equal(t, path, s.Location())
}

func TestFileStorageAtomicReplaceLeavesNoTempFiles(t *testing.T) {
	s, path := setupFileStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, []byte("old")))
	require.NoError(t, s.AtomicReplace(ctx, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryStorageFailWrites(t *testing.T) {
	m := NewMemoryStorage([]byte("original"))
	m.FailWrites = true

	err := m.AtomicReplace(context.Background(), []byte("changed"))
	assert.Error(t, err)
	assert.Equal(t, "original", string(m.Bytes()))

	_, err = NewMemoryStorage(nil).Read(context.Background())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFileStorageRemove(t *testing.T) {
	s, path := setupFileStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Remove(ctx))
	require.NoError(t, s.Write(ctx, []byte("key,value\n")))
	require.NoError(t, s.Remove(ctx))
	assert.NoFileExists(t, path)

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStorageRemove(t *testing.T) {
	m := NewMemoryStorage([]byte("key,value\n"))
	require.NoError(t, m.Remove(context.Background()))
	assert.False(t, m.Exists())
	_, err := m.Read(context.Background())
	assert.ErrorIs(t, err, types.ErrNotFound)
}
