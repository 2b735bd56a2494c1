package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Compile-time check that FileSystem implements Store.
var _ Store = (*FileSystem)(nil)

// FileSystem implements Store on the local filesystem.
// Entries live at <basePath>/<namespace>/<digest>.<ext>.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a FileSystem store rooted at basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

func (fs *FileSystem) entryPath(key Key) string {
	return filepath.Join(fs.basePath, key.Namespace, key.Name())
}

// Get reads the entry for key. A file still being written is never visible
// because writers rename into place.
func (fs *FileSystem) Get(_ context.Context, key Key) ([]byte, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fs.entryPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Put writes data using an atomic write (temp file + rename).
func (fs *FileSystem) Put(_ context.Context, key Key, data []byte) error {
	if err := key.validate(); err != nil {
		return err
	}
	dst := fs.entryPath(key)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Write to a temp file in the same directory for atomic rename.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", dst, err)
	}

	// Rename succeeded; prevent deferred cleanup from removing the final file.
	tmpPath = ""
	return nil
}

// Close is a no-op for the filesystem store.
func (fs *FileSystem) Close() error { return nil }
