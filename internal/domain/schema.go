package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingColumn is wrapped by header-level SchemaValidationErrors.
	ErrMissingColumn = errors.New("required column missing")
	// ErrEmptyValue is wrapped when a required cell is blank.
	ErrEmptyValue = errors.New("required value empty")
	// ErrNonFinite is wrapped when a numeric cell parses to NaN or ±Inf.
	ErrNonFinite = errors.New("value is not finite")
	// ErrNegative is wrapped when a physically non-negative cell is below zero.
	ErrNegative = errors.New("value is negative")
)

// Defaults for optional columns, applied to every record lacking the value.
const (
	DefaultFireConfidence   = "n"
	DefaultWindDirection    = "NW"
	DefaultVegetationType   = "mixed"
	dateLayout              = "2006-01-02"
	headerRecord            = -1
	utf8BOM                 = "\ufeff"
	vegetationDensitySlope  = 0.8
	vegetationDensityOffset = 0.1
)

// Field declares one column. Aliases are alternate header names emitted by
// upstream collectors; the first one present wins.
type Field struct {
	Name     string
	Aliases  []string
	Required bool
}

// Schema is the column contract of one source.
type Schema struct {
	Source Source
	Fields []Field
}

// table is a CSV snapshot whose header has been bound to a schema.
type table struct {
	file  string
	index map[string]int // field name -> column, absent fields omitted
	rows  [][]string
}

// readTable parses CSV and resolves the header against the schema. Header
// names are matched case-insensitively after trimming.
func readTable(file string, r io.Reader, schema Schema) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaValidationError{File: file, Column: "header", Record: headerRecord, Err: errors.New("file is empty")}
	}
	if err != nil {
		return nil, &SchemaValidationError{File: file, Column: "header", Record: headerRecord, Err: err}
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM)))
		if _, seen := columns[h]; !seen {
			columns[h] = i
		}
	}

	t := &table{file: file, index: make(map[string]int, len(schema.Fields))}
	for _, f := range schema.Fields {
		if i, ok := lookupColumn(columns, f); ok {
			t.index[f.Name] = i
			continue
		}
		if f.Required {
			return nil, &SchemaValidationError{File: file, Column: f.Name, Record: headerRecord, Err: ErrMissingColumn}
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := len(t.rows) + 1
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line - 1
			}
			return nil, &SchemaValidationError{File: file, Column: "row", Record: line, Err: err}
		}
		if blankRecord(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func lookupColumn(columns map[string]int, f Field) (int, bool) {
	if i, ok := columns[strings.ToLower(f.Name)]; ok {
		return i, true
	}
	for _, a := range f.Aliases {
		if i, ok := columns[strings.ToLower(a)]; ok {
			return i, true
		}
	}
	return 0, false
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// each iterates data rows with a fresh rowReader. Iteration stops at the
// first coercion error, which is returned.
func (t *table) each(fn func(r *rowReader)) error {
	for i, cells := range t.rows {
		r := &rowReader{file: t.file, record: i + 1, index: t.index, cells: cells}
		fn(r)
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

// rowReader coerces cells of one record. The first failure sticks; later
// accessors return zero values so loaders can read a whole row before
// checking r.err.
type rowReader struct {
	file   string
	record int
	index  map[string]int
	cells  []string
	err    error
}

// cell returns the trimmed value and whether the column exists in the file.
func (r *rowReader) cell(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok {
		return "", false
	}
	if i >= len(r.cells) {
		return "", true
	}
	return strings.TrimSpace(r.cells[i]), true
}

func (r *rowReader) fail(column string, err error) {
	if r.err == nil {
		r.err = &SchemaValidationError{File: r.file, Column: column, Record: r.record, Err: err}
	}
}

func (r *rowReader) required(name string) string {
	v, _ := r.cell(name)
	if v == "" {
		r.fail(name, ErrEmptyValue)
	}
	return v
}

func (r *rowReader) float(name string) float64 {
	if r.err != nil {
		return 0
	}
	return r.parseFloat(name, r.required(name))
}

// nonNegative is float for quantities that cannot be below zero.
func (r *rowReader) nonNegative(name string) float64 {
	f := r.float(name)
	if r.err == nil && f < 0 {
		r.fail(name, ErrNegative)
		return 0
	}
	return f
}

// floatOr returns def when the column is absent or the cell is blank.
func (r *rowReader) floatOr(name string, def float64) float64 {
	if r.err != nil {
		return 0
	}
	v, _ := r.cell(name)
	if v == "" {
		return def
	}
	return r.parseFloat(name, v)
}

func (r *rowReader) parseFloat(name, v string) float64 {
	if r.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(name, fmt.Errorf("not a number: %q", v))
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		r.fail(name, ErrNonFinite)
		return 0
	}
	return f
}

func (r *rowReader) stringOr(name, def string) string {
	if r.err != nil {
		return ""
	}
	v, _ := r.cell(name)
	if v == "" {
		return def
	}
	return v
}

func (r *rowReader) date(name string) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v := r.required(name)
	if r.err != nil {
		return time.Time{}
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		r.fail(name, fmt.Errorf("not a %s date: %q", dateLayout, v))
		return time.Time{}
	}
	return d
}

// clockTime combines a date with a time-of-day cell in "HH:MM:SS", "HH:MM"
// or FIRMS "HHMM" notation. Three-digit values are zero-padded: "930" -> 09:30.
func (r *rowReader) clockTime(name string, day time.Time) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v := r.required(name)
	if r.err != nil {
		return time.Time{}
	}
	hour, mins, secs, ok := parseClock(v)
	if !ok {
		r.fail(name, fmt.Errorf("not a time of day: %q", v))
		return time.Time{}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, mins, secs, 0, time.UTC)
}

func parseClock(v string) (hour, mins, secs int, ok bool) {
	var parts []string
	if strings.Contains(v, ":") {
		parts = strings.Split(v, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return 0, 0, 0, false
		}
	} else {
		if len(v) == 3 {
			v = "0" + v
		}
		if len(v) != 4 {
			return 0, 0, 0, false
		}
		parts = []string{v[:2], v[2:]}
	}

	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, false
		}
		vals[i] = n
	}
	hour, mins, secs = vals[0], vals[1], vals[2]
	if hour < 0 || hour > 23 || mins < 0 || mins > 59 || secs < 0 || secs > 59 {
		return 0, 0, 0, false
	}
	return hour, mins, secs, true
}

// defaultDensity derives vegetation density from NDVI when the source omits it.
func defaultDensity(ndvi float64) float64 {
	return clamp(ndvi*vegetationDensitySlope+vegetationDensityOffset, 0, 1)
}
