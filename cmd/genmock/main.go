// Command genmock writes a set of sample fire, weather and vegetation
// snapshots whose points fall inside the configured regions.
//
// Usage:
//
//	go run ./cmd/genmock -data-dir data -date 2024-04-26 -seed 42
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/couchcryptid/burn-suitability-etl/internal/config"
	"github.com/couchcryptid/burn-suitability-etl/internal/mockdata"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "data", "root directory; snapshots go to fire/, weather/ and vegetation/ beneath it")
	date := flag.String("date", "2024-04-26", "snapshot date (YYYY-MM-DD), used in file names")
	seed := flag.Uint64("seed", 42, "random seed")
	minFires := flag.Int("min-fires", 10, "minimum fire detections per region")
	maxFires := flag.Int("max-fires", 20, "maximum fire detections per region")
	weatherDays := flag.Int("weather-days", 30, "daily weather rows per region")
	vegetation := flag.Int("vegetation", 50, "vegetation samples per region")
	regions := flag.String("regions", "", "optional YAML region table (defaults to the built-in regions)")
	flag.Parse()

	day, err := time.Parse(time.DateOnly, *date)
	if err != nil {
		return fmt.Errorf("invalid -date %q: %w", *date, err)
	}
	if *minFires < 0 || *maxFires < *minFires {
		return fmt.Errorf("invalid fire range %d..%d", *minFires, *maxFires)
	}

	reg, err := config.LoadRegistry(*regions)
	if err != nil {
		return err
	}

	files, err := mockdata.Generate(reg, mockdata.Dirs{
		Fire:       filepath.Join(*dataDir, "fire"),
		Weather:    filepath.Join(*dataDir, "weather"),
		Vegetation: filepath.Join(*dataDir, "vegetation"),
	}, mockdata.Options{
		Day:                 day,
		Seed:                *seed,
		MinFires:            *minFires,
		MaxFires:            *maxFires,
		WeatherDays:         *weatherDays,
		VegetationPerRegion: *vegetation,
	})
	if err != nil {
		return err
	}

	log.Printf("fire:       %s", files.Fire)
	log.Printf("weather:    %s", files.Weather)
	log.Printf("vegetation: %s", files.Vegetation)
	return nil
}
