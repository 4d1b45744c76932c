// Package mockdata writes deterministic sample input snapshots whose fire
// points fall inside the configured regions.
package mockdata

import (
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
)

// Dirs are the per-source output directories.
type Dirs struct {
	Fire       string
	Weather    string
	Vegetation string
}

// Options control the generated volume. Zero values select the defaults.
type Options struct {
	Day                 time.Time // snapshot date; files are named after it
	Seed                uint64
	MinFires, MaxFires  int // per region, inclusive
	WeatherDays         int // per region
	VegetationPerRegion int
}

// Files lists the written snapshot paths.
type Files struct {
	Fire       string
	Weather    string
	Vegetation string
}

var windDirections = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (o Options) withDefaults() Options {
	if o.Day.IsZero() {
		o.Day = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	}
	if o.MinFires == 0 && o.MaxFires == 0 {
		o.MinFires, o.MaxFires = 10, 20
	}
	if o.MaxFires < o.MinFires {
		o.MaxFires = o.MinFires
	}
	if o.WeatherDays == 0 {
		o.WeatherDays = 30
	}
	if o.VegetationPerRegion == 0 {
		o.VegetationPerRegion = 50
	}
	return o
}

// Generate writes one fire, weather and vegetation snapshot for every region.
func Generate(reg *domain.Registry, dirs Dirs, opts Options) (Files, error) {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	stamp := opts.Day.Format("20060102")

	files := Files{
		Fire:       filepath.Join(dirs.Fire, "california_fires_"+stamp+".csv"),
		Weather:    filepath.Join(dirs.Weather, "weather_"+stamp+".csv"),
		Vegetation: filepath.Join(dirs.Vegetation, "vegetation_"+stamp+"_ndvi.csv"),
	}

	if err := writeCSV(files.Fire, fireRows(reg, rng, opts)); err != nil {
		return Files{}, err
	}
	if err := writeCSV(files.Weather, weatherRows(reg, rng, opts)); err != nil {
		return Files{}, err
	}
	if err := writeCSV(files.Vegetation, vegetationRows(reg, rng, opts)); err != nil {
		return Files{}, err
	}
	return files, nil
}

func fireRows(reg *domain.Registry, rng *rand.Rand, opts Options) [][]string {
	rows := [][]string{{"latitude", "longitude", "acquisition_date", "acquisition_time", "frp", "confidence"}}
	for _, region := range reg.Regions() {
		b := region.Bounds
		n := opts.MinFires + rng.IntN(opts.MaxFires-opts.MinFires+1)
		for range n {
			at := opts.Day.Add(-time.Duration(rng.IntN(30*24*60)) * time.Minute)
			rows = append(rows, []string{
				formatFloat(uniform(rng, b.MinLat, b.MaxLat)),
				formatFloat(uniform(rng, b.MinLon, b.MaxLon)),
				at.Format("2006-01-02"),
				at.Format("15:04:05"),
				formatFloat(uniform(rng, 0.1, 10)),
				strconv.Itoa(rng.IntN(101)),
			})
		}
	}
	return rows
}

// Weather uses the NOAA-style wind_speed and county_id column names.
func weatherRows(reg *domain.Registry, rng *rand.Rand, opts Options) [][]string {
	rows := [][]string{{"county_id", "date", "temperature", "humidity", "wind_speed", "windDirection"}}
	for _, region := range reg.Regions() {
		for day := range opts.WeatherDays {
			rows = append(rows, []string{
				region.ID,
				opts.Day.AddDate(0, 0, -day).Format("2006-01-02"),
				formatFloat(uniform(rng, 59, 86)),
				formatFloat(uniform(rng, 30, 80)),
				formatFloat(uniform(rng, 0, 20)),
				windDirections[rng.IntN(len(windDirections))],
			})
		}
	}
	return rows
}

func vegetationRows(reg *domain.Registry, rng *rand.Rand, opts Options) [][]string {
	rows := [][]string{{"county_id", "ndvi_value", "vegetation_density", "vegetation_type"}}
	for _, region := range reg.Regions() {
		for range opts.VegetationPerRegion {
			ndvi := rng.Float64()
			density := min(1, ndvi*0.8+uniform(rng, 0, 0.2))
			rows = append(rows, []string{
				region.ID,
				formatFloat(ndvi),
				formatFloat(density),
				vegetationType(ndvi),
			})
		}
	}
	return rows
}

func vegetationType(ndvi float64) string {
	switch {
	case ndvi < 0.2:
		return "barren"
	case ndvi < 0.4:
		return "sparse"
	case ndvi < 0.6:
		return "moderate"
	case ndvi < 0.8:
		return "dense"
	default:
		return "very dense"
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
