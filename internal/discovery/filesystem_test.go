package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
	}
}

func TestFilesystemAdapter_ListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.csv", "b.csv", "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	a := NewFilesystemAdapter()

	files, err := a.ListFiles(context.Background(), dir, "")
	require.NoError(t, err)
	// Directories are skipped.
	assert.Len(t, files, 3)
}

func TestFilesystemAdapter_ListFiles_Pattern(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.csv", "b.csv", "notes.txt")

	a := NewFilesystemAdapter()

	files, err := a.ListFiles(context.Background(), dir, "*.csv")
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, ".csv", filepath.Ext(f.Name))
		assert.Equal(t, int64(4), f.SizeBytes)
		assert.False(t, f.LastModified.IsZero())
	}
}

func TestFilesystemAdapter_ListFiles_BadPattern(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.csv")

	a := NewFilesystemAdapter()

	_, err := a.ListFiles(context.Background(), dir, "[")
	assert.Error(t, err)
}

func TestFilesystemAdapter_ListFiles_MissingDir(t *testing.T) {
	a := NewFilesystemAdapter()

	_, err := a.ListFiles(context.Background(), "/does/not/exist", "")
	assert.Error(t, err)
}

func TestFilesystemAdapter_ReadFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.csv")

	a := NewFilesystemAdapter()

	data, err := a.ReadFile(context.Background(), filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(AdapterTypeFilesystem, NewFilesystemAdapter())

	_, ok := r.Get(AdapterTypeFilesystem)
	assert.True(t, ok)

	_, ok = r.Get("sftp")
	assert.False(t, ok)
}
