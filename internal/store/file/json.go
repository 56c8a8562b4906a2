// Package file persists position history and symbol weights as JSON
// documents, rewriting the whole file on every save.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// jsonFile is a JSON array of T on disk. A missing or empty file reads as an
// empty slice.
type jsonFile[T any] struct {
	path string
	mu   sync.Mutex
}

func (f *jsonFile[T]) load() ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("file: read %s: %w: %w", f.path, domain.ErrPersistence, err)
	}
	if len(data) == 0 {
		return []T{}, nil
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("file: decode %s: %w: %w", f.path, domain.ErrPersistence, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// save writes items to a temp file next to the target and renames it into
// place, so a crash leaves either the old or the new document.
func (f *jsonFile[T]) save(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode %s: %w: %w", f.path, domain.ErrPersistence, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create dir %s: %w: %w", dir, domain.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp: %w: %w", domain.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("file: write %s: %w: %w", tmpName, domain.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("file: sync %s: %w: %w", tmpName, domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file: close %s: %w: %w", tmpName, domain.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("file: replace %s: %w: %w", f.path, domain.ErrPersistence, err)
	}
	return nil
}
