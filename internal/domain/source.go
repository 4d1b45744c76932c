package domain

import (
	"context"
	"io"
	"time"
)

// SourceSpec locates a source's snapshots: a directory and a glob pattern
// matched against file base names.
type SourceSpec struct {
	Source  Source
	Dir     string
	Pattern string
}

// SourceEntry is one candidate snapshot. ModTime is the primary ordering key.
type SourceEntry struct {
	Name    string // base name, e.g. "california_fires_20240426.csv"
	Path    string
	ModTime time.Time
}

// SourceLister enumerates and opens snapshot files. The filesystem adapter is
// the production implementation; tests supply entries from memory.
type SourceLister interface {
	List(ctx context.Context, spec SourceSpec) ([]SourceEntry, error)
	Open(ctx context.Context, entry SourceEntry) (io.ReadCloser, error)
}

// SelectLatest picks the newest entry. Equal modification times, common on
// coarse filesystem clocks, are broken by the greatest file name (collectors
// embed a date or run sequence in it) and then by path, so the result never
// depends on listing order.
func SelectLatest(spec SourceSpec, entries []SourceEntry) (SourceEntry, error) {
	if len(entries) == 0 {
		return SourceEntry{}, &NoSourceFileError{Source: spec.Source, Dir: spec.Dir, Pattern: spec.Pattern}
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if newer(e, best) {
			best = e
		}
	}
	return best, nil
}

func newer(a, b SourceEntry) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	if a.Name != b.Name {
		return a.Name > b.Name
	}
	return a.Path > b.Path
}
