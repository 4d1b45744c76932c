// Package csvstore persists scored region snapshots as flat CSV files.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
)

// CombinedFile is the name of the all-regions snapshot.
const CombinedFile = "all_regions.csv"

// Columns is the persisted column order shared by per-region and combined files.
var Columns = []string{
	"id",
	"name",
	"coordinates",
	"score",
	"riskLevel",
	"riskColor",
	"recentFires",
	"heatMW",
	"firmsScore",
	"historicalAvg",
	"historicalScore",
	"suitabilityScore",
	"weather_temperature",
	"weather_humidity",
	"weather_windSpeed",
	"weather_windDirection",
	"hazardProximity",
}

// Store reads and writes snapshots under a single output directory.
// It implements pipeline.SnapshotStore.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// RegionFile returns the per-region file name for id.
func RegionFile(id string) string {
	return id + "_processed.csv"
}

// SaveRegion replaces <id>_processed.csv with a single-row snapshot.
func (s *Store) SaveRegion(ctx context.Context, snap domain.RegionSnapshot) error {
	if !validID(snap.ID) {
		return &domain.PersistenceError{Path: s.dir, Err: fmt.Errorf("invalid region id %q", snap.ID)}
	}
	return s.write(ctx, RegionFile(snap.ID), []domain.RegionSnapshot{snap})
}

// SaveCombined replaces all_regions.csv with one row per snapshot, in the
// order given.
func (s *Store) SaveCombined(ctx context.Context, snaps []domain.RegionSnapshot) error {
	return s.write(ctx, CombinedFile, snaps)
}

// LoadRegion reads a per-region snapshot. A missing file or unknown id
// yields domain.ErrSnapshotNotFound.
func (s *Store) LoadRegion(ctx context.Context, id string) (domain.RegionSnapshot, error) {
	if !validID(id) {
		return domain.RegionSnapshot{}, domain.ErrSnapshotNotFound
	}
	snaps, err := s.read(ctx, RegionFile(id))
	if err != nil {
		return domain.RegionSnapshot{}, err
	}
	if len(snaps) == 0 {
		return domain.RegionSnapshot{}, fmt.Errorf("%s: no rows: %w", RegionFile(id), domain.ErrSnapshotNotFound)
	}
	return snaps[0], nil
}

// LoadCombined reads all_regions.csv.
func (s *Store) LoadCombined(ctx context.Context) ([]domain.RegionSnapshot, error) {
	return s.read(ctx, CombinedFile)
}

// write encodes snaps to a temporary file next to the target and renames it
// into place, so readers see either the previous or the new version.
func (s *Store) write(ctx context.Context, name string, snaps []domain.RegionSnapshot) error {
	path := filepath.Join(s.dir, name)
	fail := func(err error) error { return &domain.PersistenceError{Path: path, Err: err} }

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fail(err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fail(err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		}
	}()

	if err := encode(tmp, snaps); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail(err)
	}
	committed = true
	return nil
}

func (s *Store) read(ctx context.Context, name string) ([]domain.RegionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, domain.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	snaps, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return snaps, nil
}

func encode(w io.Writer, snaps []domain.RegionSnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i := range snaps {
		if err := cw.Write(row(snaps[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(s domain.RegionSnapshot) []string {
	return []string{
		s.ID,
		s.Name,
		s.Coordinates,
		strconv.Itoa(s.Score),
		s.RiskLevel,
		s.RiskColor,
		strconv.Itoa(s.RecentFires),
		strconv.Itoa(s.HeatMW),
		strconv.Itoa(s.FirmsScore),
		s.HistoricalAvg,
		strconv.Itoa(s.HistoricalScore),
		formatFloat(s.SuitabilityScore),
		formatFloat(s.WeatherTemperature),
		formatFloat(s.WeatherHumidity),
		formatFloat(s.WeatherWindSpeed),
		s.WeatherWindDirection,
		s.HazardProximity,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Decode parses a snapshot file. Columns are located by header name, so
// extra columns are ignored; a missing column is an error.
func Decode(r io.Reader) ([]domain.RegionSnapshot, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []domain.RegionSnapshot
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		d := decoder{rec: rec, idx: idx}
		snap := domain.RegionSnapshot{
			ID:                   d.text("id"),
			Name:                 d.text("name"),
			Coordinates:          d.text("coordinates"),
			Score:                d.integer("score"),
			RiskLevel:            d.text("riskLevel"),
			RiskColor:            d.text("riskColor"),
			RecentFires:          d.integer("recentFires"),
			HeatMW:               d.integer("heatMW"),
			FirmsScore:           d.integer("firmsScore"),
			HistoricalAvg:        d.text("historicalAvg"),
			HistoricalScore:      d.integer("historicalScore"),
			SuitabilityScore:     d.number("suitabilityScore"),
			WeatherTemperature:   d.number("weather_temperature"),
			WeatherHumidity:      d.number("weather_humidity"),
			WeatherWindSpeed:     d.number("weather_windSpeed"),
			WeatherWindDirection: d.text("weather_windDirection"),
			HazardProximity:      d.text("hazardProximity"),
		}
		if d.err != nil {
			return nil, fmt.Errorf("record %d: %w", n, d.err)
		}
		out = append(out, snap)
	}
}

type decoder struct {
	rec []string
	idx map[string]int
	err error
}

func (d *decoder) text(col string) string {
	i := d.idx[col]
	if i >= len(d.rec) {
		return ""
	}
	return d.rec[i]
}

func (d *decoder) integer(col string) int {
	v := d.text(col)
	n, err := strconv.Atoi(v)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("column %q: %w", col, err)
	}
	return n
}

func (d *decoder) number(col string) float64 {
	v := d.text(col)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("column %q: %w", col, err)
	}
	return f
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
