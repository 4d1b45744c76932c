package domain

import (
	"fmt"
	"math"
	"strconv"
)

// RegionSnapshot is the flattened per-region record persisted after a run and
// read by the API layer and the narrative generator. Weather fields are
// prefixed rather than nested.
type RegionSnapshot struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Coordinates          string  `json:"coordinates"`
	Score                int     `json:"score"`
	RiskLevel            string  `json:"riskLevel"`
	RiskColor            string  `json:"riskColor"`
	RecentFires          int     `json:"recentFires"`
	HeatMW               int     `json:"heatMW"`
	FirmsScore           int     `json:"firmsScore"`
	HistoricalAvg        string  `json:"historicalAvg"`
	HistoricalScore      int     `json:"historicalScore"`
	SuitabilityScore     float64 `json:"suitabilityScore"`
	WeatherTemperature   float64 `json:"weather_temperature"`
	WeatherHumidity      float64 `json:"weather_humidity"`
	WeatherWindSpeed     float64 `json:"weather_windSpeed"`
	WeatherWindDirection string  `json:"weather_windDirection"`
	HazardProximity      string  `json:"hazardProximity"`
}

// NewRegionSnapshot flattens a scored region. The summary must be finite;
// heatMW saturates at math.MaxInt32.
func NewRegionSnapshot(r RegionResult) RegionSnapshot {
	lat, lon := r.Region.Bounds.Center()
	return RegionSnapshot{
		ID:                   r.Region.ID,
		Name:                 r.Region.Name,
		Coordinates:          FormatCoordinates(lat, lon),
		Score:                r.Score.RiskScore,
		RiskLevel:            r.Score.RiskLevel,
		RiskColor:            r.Score.RiskColor,
		RecentFires:          r.Summary.RecentFireCount,
		HeatMW:               heatMW(r.Summary.MeanFRP),
		FirmsScore:           r.Score.FirmsScore,
		HistoricalAvg:        historicalAverage(r.Summary.RecentFireCount),
		HistoricalScore:      r.Score.HistoricalScore,
		SuitabilityScore:     r.Score.Suitability,
		WeatherTemperature:   r.Summary.MeanTemperature,
		WeatherHumidity:      r.Summary.MeanHumidity,
		WeatherWindSpeed:     r.Summary.MeanWindSpeed,
		WeatherWindDirection: r.Summary.WindDirection,
		HazardProximity:      r.Score.HazardProximity,
	}
}

// ScoreRegions aggregates and scores every region in registry order.
func ScoreRegions(reg *Registry, ds Dataset) ([]RegionResult, []EmptyAggregateWarning, Assignment) {
	summaries, warnings, assignment := AggregateAll(reg, ds)
	regions := reg.Regions()
	results := make([]RegionResult, len(regions))
	for i, region := range regions {
		results[i] = RegionResult{Region: region, Summary: summaries[i], Score: Score(summaries[i])}
	}
	return results, warnings, assignment
}

// FormatCoordinates renders a center point as "lat, lon".
func FormatCoordinates(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ", " + strconv.FormatFloat(lon, 'f', -1, 64)
}

func heatMW(meanFRP float64) int {
	return int(math.Max(0, math.Min(math.Floor(meanFRP), math.MaxInt32)))
}

// historicalAverage approximates weekly fire frequency from the recent count.
func historicalAverage(recentFires int) string {
	perWeek := int(math.Floor(float64(recentFires) * 0.8))
	return fmt.Sprintf("%d fires/week", max(1, perWeek))
}

// CheckSnapshot reports fields of a persisted snapshot that disagree with
// the values derived from its suitability score and fire count. An empty
// result means the row is internally consistent.
func CheckSnapshot(s RegionSnapshot) []string {
	var problems []string
	mismatch := func(field string, got, want any) {
		if got != want {
			problems = append(problems, fmt.Sprintf("%s: %s = %v, want %v", s.ID, field, got, want))
		}
	}

	if math.IsNaN(s.SuitabilityScore) || s.SuitabilityScore < 0 || s.SuitabilityScore > 100 {
		return []string{fmt.Sprintf("%s: suitabilityScore %v outside [0,100]", s.ID, s.SuitabilityScore)}
	}
	want := Classify(s.SuitabilityScore)
	mismatch("score", s.Score, want.RiskScore)
	mismatch("firmsScore", s.FirmsScore, want.FirmsScore)
	mismatch("historicalScore", s.HistoricalScore, want.HistoricalScore)
	mismatch("riskLevel", s.RiskLevel, want.RiskLevel)
	mismatch("riskColor", s.RiskColor, want.RiskColor)
	mismatch("hazardProximity", s.HazardProximity, want.HazardProximity)
	mismatch("historicalAvg", s.HistoricalAvg, historicalAverage(s.RecentFires))
	if s.RecentFires < 0 {
		problems = append(problems, fmt.Sprintf("%s: recentFires %d is negative", s.ID, s.RecentFires))
	}
	if s.HeatMW < 0 {
		problems = append(problems, fmt.Sprintf("%s: heatMW %d is negative", s.ID, s.HeatMW))
	}
	return problems
}
