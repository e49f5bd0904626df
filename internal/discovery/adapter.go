package discovery

import (
	"context"
	"time"
)

// FileInfo is the adapter-neutral description of one candidate file.
type FileInfo struct {
	Path         string
	Name         string
	SizeBytes    int64
	LastModified time.Time
}

// Adapter abstracts the storage behind a data source. Implementations list
// candidate files, fetch content, and report metadata; everything above
// this interface is storage-agnostic.
type Adapter interface {
	ListFiles(ctx context.Context, path, pattern string) ([]FileInfo, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	GetMetadata(ctx context.Context, path string) (FileInfo, error)
}

// Registry maps adapter type names to implementations.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(adapterType string, a Adapter) {
	r.adapters[adapterType] = a
}

func (r *Registry) Get(adapterType string) (Adapter, bool) {
	a, ok := r.adapters[adapterType]
	return a, ok
}
