// Package filesystem lists and opens input snapshots on local disk.
package filesystem

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
)

// Lister implements domain.SourceLister over a directory tree.
type Lister struct{}

// NewLister creates a filesystem-backed source lister.
func NewLister() *Lister {
	return &Lister{}
}

// List returns the regular files in spec.Dir whose base name matches
// spec.Pattern. A missing directory yields no entries rather than an error so
// the selector can report the source as absent.
func (l *Lister) List(ctx context.Context, spec domain.SourceSpec) ([]domain.SourceEntry, error) {
	if _, err := filepath.Match(spec.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid %s pattern %q: %w", spec.Source, spec.Pattern, err)
	}

	dirEntries, err := os.ReadDir(spec.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s directory: %w", spec.Source, err)
	}

	var out []domain.SourceEntry
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if de.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(spec.Pattern, de.Name()); !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, domain.SourceEntry{
			Name:    de.Name(),
			Path:    filepath.Join(spec.Dir, de.Name()),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// Open opens the entry for reading.
func (l *Lister) Open(_ context.Context, entry domain.SourceEntry) (io.ReadCloser, error) {
	f, err := os.Open(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	return f, nil
}
