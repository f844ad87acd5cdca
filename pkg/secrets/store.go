// Package secrets provides keyed lookup of opaque credential blobs by
// reference string. The production store reads JSON files from a mounted
// secrets directory; tests substitute an in-memory map.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no blob exists for a reference.
var ErrNotFound = errors.New("secret not found")

// Store resolves credential references to opaque JSON blobs.
type Store interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

// FileStore reads secrets from <dir>/<ref>.json. References are restricted to
// a single path element so a crafted reference cannot escape the directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed secret store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Get reads the blob for the given reference.
func (s *FileStore) Get(_ context.Context, ref string) ([]byte, error) {
	if ref == "" || strings.ContainsAny(ref, `/\`) || ref != filepath.Base(ref) {
		return nil, fmt.Errorf("invalid secret reference %q", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, ref+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("secret %q: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("reading secret %q: %w", ref, err)
	}
	return data, nil
}

// MapStore is an in-memory Store for tests.
type MapStore map[string][]byte

// Get implements Store.
func (m MapStore) Get(_ context.Context, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("secret %q: %w", ref, ErrNotFound)
	}
	return data, nil
}
