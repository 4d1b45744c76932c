package domain

import "sort"

// Defaults used when a source contributes no records.
const (
	DefaultTemperature = 70.0 // °F
	DefaultHumidity    = 50.0 // percent
	DefaultWindSpeed   = 5.0  // mph
	DefaultNDVI        = 0.5
)

// Assignment groups fire points by the region that contains them.
type Assignment struct {
	ByRegion   map[string][]FirePoint
	Unassigned int
}

// AssignFires resolves every fire point with RegionOf in one pass.
func AssignFires(reg *Registry, fires []FirePoint) Assignment {
	a := Assignment{ByRegion: make(map[string][]FirePoint, reg.Len())}
	for _, f := range fires {
		region, ok := reg.RegionOf(f.Latitude, f.Longitude)
		if !ok {
			a.Unassigned++
			continue
		}
		a.ByRegion[region.ID] = append(a.ByRegion[region.ID], f)
	}
	return a
}

// sourceMeans are the source-wide weather and vegetation statistics shared by
// every region. Per-record region ids are not used for filtering.
type sourceMeans struct {
	temperature   float64
	humidity      float64
	windSpeed     float64
	windDirection string
	ndvi          float64
	noWeather     bool
	noVegetation  bool
}

func computeSourceMeans(weather []WeatherRecord, vegetation []VegetationSample) sourceMeans {
	m := sourceMeans{
		temperature:   DefaultTemperature,
		humidity:      DefaultHumidity,
		windSpeed:     DefaultWindSpeed,
		windDirection: DefaultWindDirection,
		ndvi:          DefaultNDVI,
		noWeather:     len(weather) == 0,
		noVegetation:  len(vegetation) == 0,
	}

	if !m.noWeather {
		var t, h, w float64
		dirs := make(map[string]int)
		for _, rec := range weather {
			t += rec.Temperature
			h += rec.Humidity
			w += rec.WindSpeed
			if rec.WindDirection != "" {
				dirs[rec.WindDirection]++
			}
		}
		n := float64(len(weather))
		m.temperature, m.humidity, m.windSpeed = t/n, h/n, w/n
		if d := prevailing(dirs); d != "" {
			m.windDirection = d
		}
	}

	if !m.noVegetation {
		var sum float64
		for _, s := range vegetation {
			sum += s.NDVI
		}
		m.ndvi = sum / float64(len(vegetation))
	}
	return m
}

// prevailing returns the most frequent direction; ties go to the
// alphabetically first so the result is stable.
func prevailing(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestN := "", 0
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}

// Aggregate summarizes one region. Fire points are filtered with RegionOf;
// weather and vegetation use source-wide means.
func Aggregate(reg *Registry, regionID string, ds Dataset) (RegionSummary, []EmptyAggregateWarning) {
	var regionFires []FirePoint
	for _, f := range ds.Fires {
		if region, ok := reg.RegionOf(f.Latitude, f.Longitude); ok && region.ID == regionID {
			regionFires = append(regionFires, f)
		}
	}
	return summarize(regionID, regionFires, computeSourceMeans(ds.Weather, ds.Vegetation))
}

// AggregateAll summarizes every region in registry order.
func AggregateAll(reg *Registry, ds Dataset) ([]RegionSummary, []EmptyAggregateWarning, Assignment) {
	assignment := AssignFires(reg, ds.Fires)
	means := computeSourceMeans(ds.Weather, ds.Vegetation)

	regions := reg.Regions()
	summaries := make([]RegionSummary, 0, len(regions))
	var warnings []EmptyAggregateWarning
	for _, region := range regions {
		s, w := summarize(region.ID, assignment.ByRegion[region.ID], means)
		summaries = append(summaries, s)
		warnings = append(warnings, w...)
	}
	return summaries, warnings, assignment
}

func summarize(regionID string, fires []FirePoint, m sourceMeans) (RegionSummary, []EmptyAggregateWarning) {
	s := RegionSummary{
		RecentFireCount: len(fires),
		MeanTemperature: m.temperature,
		MeanHumidity:    m.humidity,
		MeanWindSpeed:   m.windSpeed,
		WindDirection:   m.windDirection,
		MeanNDVI:        m.ndvi,
	}

	var warnings []EmptyAggregateWarning
	if len(fires) == 0 {
		warnings = append(warnings, EmptyAggregateWarning{RegionID: regionID, Source: SourceFire})
	} else {
		var sum float64
		for _, f := range fires {
			sum += f.FRP
		}
		s.MeanFRP = sum / float64(len(fires))
	}
	if m.noWeather {
		warnings = append(warnings, EmptyAggregateWarning{RegionID: regionID, Source: SourceWeather})
	}
	if m.noVegetation {
		warnings = append(warnings, EmptyAggregateWarning{RegionID: regionID, Source: SourceVegetation})
	}
	return s, warnings
}
