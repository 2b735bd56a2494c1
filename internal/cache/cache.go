// Package cache stores derived image bytes keyed by a digest of the
// transform that produced them. Entries are written once and never expire.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leca/cover-proxy/internal/model"
)

// ErrMiss is returned by Get when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Key addresses one cache entry.
type Key struct {
	Namespace string
	Digest    string
	Ext       string
}

// NewKey derives the key for spec: the SHA-1 of its canonical string under
// its namespace, with the codec extension.
func NewKey(spec model.TransformSpec) Key {
	sum := sha1.Sum([]byte(spec.String()))
	return Key{
		Namespace: spec.Namespace(),
		Digest:    hex.EncodeToString(sum[:]),
		Ext:       spec.Codec.Ext(),
	}
}

// Name returns the entry file name, "<digest>.<ext>".
func (k Key) Name() string {
	return k.Digest + "." + k.Ext
}

// String returns "<namespace>/<digest>.<ext>".
func (k Key) String() string {
	return k.Namespace + "/" + k.Name()
}

func (k Key) validate() error {
	for _, part := range []string{k.Namespace, k.Digest, k.Ext} {
		if part == "" || strings.ContainsAny(part, `/\.`) || part != filepath.Base(part) {
			return fmt.Errorf("invalid cache key %q", k.String())
		}
	}
	return nil
}

// Store is a write-once blob store for derived images.
type Store interface {
	// Get returns the bytes stored under key or ErrMiss.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Put stores data under key unless an entry already exists. Existing
	// entries are left untouched; since values are pure functions of their
	// key, any concurrent writer stores identical bytes.
	Put(ctx context.Context, key Key, data []byte) error

	Close() error
}

// Open returns the Store for backend ("fs", "sqlite", "badger" or "memory").
// path is the root directory, or the database DSN for sqlite.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "fs":
		return NewFileSystem(path), nil
	case "sqlite":
		return NewSQLite(path)
	case "badger":
		return NewBadger(path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
