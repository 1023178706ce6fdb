// internal/storage/archive/interface.go
package archive

import "context"

// Storage is a flat blob backend for archived snapshots. Paths are
// slash-separated keys; backends need no directory semantics beyond
// prefix listing.
type Storage interface {
	// Write stores data under the key, overwriting any previous blob.
	Write(ctx context.Context, path string, data []byte) error

	// Read returns the blob stored under the key.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns every key starting with the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the blob under the key.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob is stored under the key.
	Exists(ctx context.Context, path string) (bool, error)
}
