package artifact

import "context"

// Backend stores artifact bytes under keys and maps keys to URIs.
type Backend interface {
	// Get returns the bytes stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data at key, replacing any previous value atomically.
	Put(ctx context.Context, key string, data []byte) error

	// Exists reports whether key holds data.
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the externally visible location of key.
	URI(key string) string

	// Key maps a URI back into this backend's key space.
	Key(uri string) (string, bool)
}
