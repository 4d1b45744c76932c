// Package domain models controlled-burn suitability scoring over three
// geospatial sources: wildfire detections, weather observations, and
// vegetation indices.
//
// # Data Sources
//
// Each source lands as a CSV snapshot in its own directory. The collector
// names snapshots with an embedded date (e.g. "california_fires_20240426.csv",
// "2024-04-26_ndvi.csv"), so the newest file is selected by modification time
// with the file name as a deterministic tie-break. See [SelectLatest].
//
// Fire detections (NASA FIRMS):
//
//	latitude, longitude, acquisition_date, acquisition_time, frp [, confidence]
//	acquisition_time is "HH:MM:SS", "HH:MM", or FIRMS "HHMM" ("930" -> 09:30).
//	frp is fire radiative power in megawatts.
//
// Weather observations (NOAA):
//
//	date, temperature, humidity, windSpeed [, windDirection, region_id]
//	NOAA GHCN column names are accepted as aliases: TAVG, RHAVG, AWND.
//	Temperature is in °F; the model reads it on a 50–100 scale.
//
// Vegetation (NDVI raster export):
//
//	ndvi [, vegetation_density, vegetation_type, region_id]
//	"ndvi_value" is accepted as an alias for ndvi.
//
// Required columns must appear in the header or the snapshot is rejected with
// a [SchemaValidationError]. Optional columns fall back to the constants in
// schema.go for every record lacking them.
//
// # Regions
//
// A region is an administrative area (a county) approximated by a rectangular
// bounding box. The [Registry] is ordered: a point inside overlapping boxes
// belongs to the first region in registry order. Bounds are inclusive on all
// four edges.
//
// # Aggregation
//
// Fire points are attributed to regions by containment. Weather and
// vegetation are averaged across the whole source and the same means are used
// for every region, even when records carry a region_id. Empty subsets resolve
// to documented defaults and are reported as [EmptyAggregateWarning].
//
// # Scoring
//
// Six factors are normalized to [0,1] and combined with fixed weights:
//
//	factor       normalization        weight
//	fires        count / 20           -0.20
//	frp          mean / 1000          -0.10
//	temperature  (mean - 50) / 50     -0.15
//	humidity     mean / 100           +0.25
//	wind         mean / 20            -0.20
//	ndvi         as-is                +0.10
//
//	suitability = clamp(50 + 50 * Σ weight·factor, 0, 100)
//
// Risk buckets: suitability > 80 is Low/green, > 60 is Moderate/yellow,
// anything else High/red. Hazard proximity uses the same thresholds with
// Low/Medium/High.
package domain
