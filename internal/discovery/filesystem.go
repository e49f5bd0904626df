package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// AdapterTypeFilesystem is the adapter type name for local directories.
const AdapterTypeFilesystem = "filesystem"

// FilesystemAdapter scans local directories. Subdirectories are not
// descended into; a source points at one flat drop directory.
type FilesystemAdapter struct{}

func NewFilesystemAdapter() *FilesystemAdapter {
	return &FilesystemAdapter{}
}

func (a *FilesystemAdapter) ListFiles(ctx context.Context, path, pattern string) ([]FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			matched, err := filepath.Match(pattern, entry.Name())
			if err != nil {
				return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
			}
			if !matched {
				continue
			}
		}

		info, err := entry.Info()
		if err != nil {
			// File removed between ReadDir and Info; skip it.
			continue
		}

		files = append(files, FileInfo{
			Path:         filepath.Join(path, entry.Name()),
			Name:         entry.Name(),
			SizeBytes:    info.Size(),
			LastModified: info.ModTime().UTC(),
		})
	}

	return files, nil
}

func (a *FilesystemAdapter) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

func (a *FilesystemAdapter) GetMetadata(ctx context.Context, path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	return FileInfo{
		Path:         path,
		Name:         filepath.Base(path),
		SizeBytes:    info.Size(),
		LastModified: info.ModTime().UTC(),
	}, nil
}
