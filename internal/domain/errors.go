package domain

import (
	"errors"
	"fmt"
)

// NoSourceFileError reports that no snapshot matched a source's naming pattern.
type NoSourceFileError struct {
	Source  Source
	Dir     string
	Pattern string
}

func (e *NoSourceFileError) Error() string {
	return fmt.Sprintf("no %s snapshot matching %q in %s", e.Source, e.Pattern, e.Dir)
}

// SchemaValidationError reports a missing required column or an unparsable
// value. Record is the 1-based data row, or -1 for header-level problems.
type SchemaValidationError struct {
	File   string
	Column string
	Record int
	Err    error
}

func (e *SchemaValidationError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("%s: column %q: %v", e.File, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: record %d: column %q: %v", e.File, e.Record, e.Column, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// EmptyAggregateWarning marks a region with no records for a source. It is
// not a failure: the summary falls back to defaults.
type EmptyAggregateWarning struct {
	RegionID string
	Source   Source
}

func (w EmptyAggregateWarning) Error() string {
	return fmt.Sprintf("region %s has no %s records, using defaults", w.RegionID, w.Source)
}

// PersistenceError reports a failed snapshot write.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("write snapshot %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrSnapshotNotFound is returned when a persisted snapshot does not exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")
