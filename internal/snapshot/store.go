// Package snapshot ships cache snapshots to durable storage (local disk,
// Redis or S3) and runs periodic dumps.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blueberrycongee/semcache/internal/cache"
)

// ErrNotFound is returned by Open when no snapshot exists under the name.
var ErrNotFound = errors.New("snapshot not found")

// Store is a named blob store for snapshots.
type Store interface {
	// Save stores the full content of r under name, replacing any previous
	// snapshot. A failed Save must not damage the previous snapshot.
	Save(ctx context.Context, name string, r io.Reader) error

	// Open returns the snapshot stored under name. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Kind names the backend for logs, e.g. "file".
	Kind() string
}

// Pinger is implemented by stores that can check their backend cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FileStore keeps snapshots as files in a directory.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

// Kind implements Store.
func (s *FileStore) Kind() string { return "file" }

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid snapshot name %q", name)
	}
	return filepath.Join(s.Dir, name), nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(ctx context.Context, name string, r io.Reader) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return cache.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// Ping checks that the directory still exists.
func (s *FileStore) Ping(context.Context) error {
	fi, err := os.Stat(s.Dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", s.Dir)
	}
	return nil
}

// Open implements Store.
func (s *FileStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return f, err
}
