package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filepipe/internal/logger"
	"filepipe/internal/source"
)

func folderRequest(dir string, dest source.OutputDestination) WriteRequest {
	dest.Type = "folder"
	if dest.PathTemplate == "" {
		dest.PathTemplate = dir
	}
	return WriteRequest{
		Destination: dest,
		Content:     []byte(`[{"id":"1"}]`),
		FileName:    "orders.json",
		SourceID:    "src-1",
		SourceName:  "orders",
		Format:      "json",
	}
}

func TestFolderHandler_Write(t *testing.T) {
	h := NewFolderHandler(logger.NopLogger())
	dir := t.TempDir()

	err := h.Write(context.Background(), folderRequest(dir, source.OutputDestination{Name: "out"}))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "orders.json"))
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(data))
}

func TestFolderHandler_NoPathTemplate(t *testing.T) {
	h := NewFolderHandler(logger.NopLogger())

	req := folderRequest("", source.OutputDestination{Name: "out"})
	req.Destination.PathTemplate = ""
	assert.Error(t, h.Write(context.Background(), req))
}

func TestFolderHandler_SkipMode(t *testing.T) {
	h := NewFolderHandler(logger.NopLogger())
	dir := t.TempDir()

	target := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))

	req := folderRequest(dir, source.OutputDestination{Name: "out", OverwriteMode: OverwriteModeSkip})
	require.NoError(t, h.Write(context.Background(), req))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestFolderHandler_RenameMode(t *testing.T) {
	h := NewFolderHandler(logger.NopLogger())
	dir := t.TempDir()

	target := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))

	req := folderRequest(dir, source.OutputDestination{Name: "out", OverwriteMode: OverwriteModeRename})
	require.NoError(t, h.Write(context.Background(), req))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestFolderHandler_DefaultModeRenamesOnCollision(t *testing.T) {
	h := NewFolderHandler(logger.NopLogger())
	dir := t.TempDir()

	target := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))

	// No overwrite mode configured: both deliveries must survive.
	req := folderRequest(dir, source.OutputDestination{Name: "out"})
	require.NoError(t, h.Write(context.Background(), req))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestFolderHandler_OverwriteMode(t *testing.T) {
	h := NewFolderHandler(logger.NopLogger())
	dir := t.TempDir()

	target := filepath.Join(dir, "orders.json")
	require.NoError(t, os.WriteFile(target, []byte("existing"), 0o644))

	req := folderRequest(dir, source.OutputDestination{Name: "out", OverwriteMode: OverwriteModeOverwrite})
	require.NoError(t, h.Write(context.Background(), req))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(data))
}

func TestExpandTemplate(t *testing.T) {
	now := time.Date(2026, 3, 7, 14, 30, 5, 0, time.UTC)
	req := WriteRequest{SourceID: "src-1", SourceName: "orders", FileName: "batch.csv"}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "date partitioned path",
			template: "/out/{sourceName}/{yyyy}/{MM}/{dd}",
			want:     "/out/orders/2026/03/07",
		},
		{
			name:     "file name with timestamp",
			template: "{timestamp}_{fileName}",
			want:     "20260307T143005_batch.csv",
		},
		{
			name:     "source id",
			template: "{sourceId}/data",
			want:     "src-1/data",
		},
		{
			name:     "extension from file name",
			template: "export_{timestamp}{ext}",
			want:     "export_20260307T143005.csv",
		},
		{
			name:     "unknown placeholder left as-is",
			template: "/out/{bogus}/{fileName}",
			want:     "/out/{bogus}/batch.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandTemplate(tt.template, req, now))
		})
	}
}
