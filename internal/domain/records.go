package domain

import "time"

// Source names one of the three input datasets.
type Source string

const (
	SourceFire       Source = "fire"
	SourceWeather    Source = "weather"
	SourceVegetation Source = "vegetation"
)

// Sources lists the inputs in load order.
var Sources = []Source{SourceFire, SourceWeather, SourceVegetation}

// FirePoint is a single satellite fire detection.
type FirePoint struct {
	Latitude   float64
	Longitude  float64
	Timestamp  time.Time
	FRP        float64 // fire radiative power, MW
	Confidence string  // FIRMS confidence: "l", "n", "h" or a 0–100 percentage
}

// WeatherRecord is one daily observation. RegionID is empty when the source
// has no region column.
type WeatherRecord struct {
	Date          time.Time
	Temperature   float64 // °F
	Humidity      float64 // percent
	WindSpeed     float64 // mph
	WindDirection string
	RegionID      string
}

// VegetationSample is one NDVI pixel or zonal sample.
type VegetationSample struct {
	NDVI     float64
	Density  float64
	Type     string
	RegionID string
}

// Dataset is the full input of a run, one record set per source.
type Dataset struct {
	Fires      []FirePoint
	Weather    []WeatherRecord
	Vegetation []VegetationSample
}

// RegionSummary holds per-region statistics. Every field is defined even when
// the underlying subset is empty.
type RegionSummary struct {
	RecentFireCount int
	MeanFRP         float64
	MeanTemperature float64
	MeanHumidity    float64
	MeanWindSpeed   float64
	WindDirection   string
	MeanNDVI        float64
}

// Finite reports whether every numeric field is a finite number. Means of
// very large inputs can overflow even when each record is finite.
func (s RegionSummary) Finite() bool {
	return finite(s.MeanFRP, s.MeanTemperature, s.MeanHumidity, s.MeanWindSpeed, s.MeanNDVI)
}

// SuitabilityScore is the scoring model's output for one region.
type SuitabilityScore struct {
	Suitability     float64 // 0–100, higher is more favorable for a controlled burn
	RiskScore       int
	FirmsScore      int
	HistoricalScore int
	RiskLevel       string
	RiskColor       string
	HazardProximity string
}

// RegionResult pairs a region with its summary and score for one run.
type RegionResult struct {
	Region  Region
	Summary RegionSummary
	Score   SuitabilityScore
}
