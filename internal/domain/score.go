package domain

import (
	"fmt"
	"math"
)

// Normalization caps and the fixed linear model.
const (
	fireCountCap    = 20.0
	frpCap          = 1000.0 // MW
	temperatureBase = 50.0   // °F, low end of the 50–100 scale
	temperatureSpan = 50.0
	humidityCap     = 100.0
	windSpeedCap    = 20.0 // mph

	baseSuitability   = 50.0
	suitabilitySpan   = 50.0
	lowRiskAbove      = 80.0
	moderateRiskAbove = 60.0
)

// Weights apply to the normalized factors in Factors order. The sign encodes
// whether a factor raises or lowers suitability.
var Weights = [6]float64{-0.20, -0.10, -0.15, 0.25, -0.20, 0.10}

// Factors normalizes a summary to [0,1] in model order:
// fires, frp, temperature, humidity, wind, ndvi.
func Factors(s RegionSummary) [6]float64 {
	return [6]float64{
		clamp(float64(s.RecentFireCount)/fireCountCap, 0, 1),
		clamp(s.MeanFRP/frpCap, 0, 1),
		clamp((s.MeanTemperature-temperatureBase)/temperatureSpan, 0, 1),
		clamp(s.MeanHumidity/humidityCap, 0, 1),
		clamp(s.MeanWindSpeed/windSpeedCap, 0, 1),
		clamp(s.MeanNDVI, 0, 1),
	}
}

// WeightedSum combines normalized factors with Weights.
func WeightedSum(factors [6]float64) float64 {
	var sum float64
	for i, f := range factors {
		sum += f * Weights[i]
	}
	return sum
}

// Score runs the suitability model. Summaries come from validated loaders; a
// non-finite field is a programming error and panics.
func Score(s RegionSummary) SuitabilityScore {
	if !s.Finite() {
		panic(fmt.Sprintf("domain: non-finite region summary %+v", s))
	}

	return Classify(clamp(baseSuitability+WeightedSum(Factors(s))*suitabilitySpan, 0, 100))
}

// Classify derives the display scores and risk buckets from a suitability
// value in [0,100].
func Classify(suitability float64) SuitabilityScore {
	level, color := riskBucket(suitability)

	return SuitabilityScore{
		Suitability:     suitability,
		RiskScore:       int(math.Floor(suitability * 0.7)),
		FirmsScore:      int(math.Floor(100 - suitability*0.5)),
		HistoricalScore: int(math.Floor(100 - suitability*0.6)),
		RiskLevel:       level,
		RiskColor:       color,
		HazardProximity: hazardProximity(suitability),
	}
}

func riskBucket(suitability float64) (level, color string) {
	switch {
	case suitability > lowRiskAbove:
		return "Low", "green"
	case suitability > moderateRiskAbove:
		return "Moderate", "yellow"
	default:
		return "High", "red"
	}
}

func hazardProximity(suitability float64) string {
	switch {
	case suitability > lowRiskAbove:
		return "Low"
	case suitability > moderateRiskAbove:
		return "Medium"
	default:
		return "High"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
