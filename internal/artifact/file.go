package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// FileBackend stores artifacts on the local filesystem under a root directory.
// Absolute paths outside the root are readable, which lets clients point at
// update files they wrote themselves.
type FileBackend struct {
	root string // root is the absolute base directory
}

// NewFileBackend creates a backend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root:\n%w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root:\n%w", err)
	}

	return &FileBackend{root: abs}, nil
}

// Root returns the backend's base directory.
func (b *FileBackend) Root() string {
	return b.root
}

// path resolves a key to a filesystem path.
func (b *FileBackend) path(key string) string {
	if filepath.IsAbs(key) {
		return filepath.Clean(key)
	}

	return filepath.Join(b.root, filepath.FromSlash(key))
}

// Get reads the file for key.
func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s:\n%w", key, err)
	}

	return data, nil
}

// Put writes data to a temp file in the target directory and renames it into place.
func (b *FileBackend) Put(_ context.Context, key string, data []byte) error {
	dst := b.path(key)
	dir := filepath.Dir(dst)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir:\n%w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp:\n%w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp:\n%w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp:\n%w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp:\n%w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename into place:\n%w", err)
	}

	return nil
}

// Exists reports whether the file for key exists.
func (b *FileBackend) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return err == nil, err
}

// URI returns the absolute path of key.
func (b *FileBackend) URI(key string) string {
	return b.path(key)
}

// Key accepts plain paths and file:// URIs. Relative paths are root-relative.
func (b *FileBackend) Key(uri string) (string, bool) {
	if uri == "" || (strings.Contains(uri, "://") && !strings.HasPrefix(uri, fileScheme)) {
		return "", false
	}

	return strings.TrimPrefix(uri, fileScheme), true
}
