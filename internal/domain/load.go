package domain

import "io"

// FireSchema is the column contract of FIRMS fire detection snapshots.
var FireSchema = Schema{
	Source: SourceFire,
	Fields: []Field{
		{Name: "latitude", Required: true},
		{Name: "longitude", Required: true},
		{Name: "acquisition_date", Aliases: []string{"acq_date"}, Required: true},
		{Name: "acquisition_time", Aliases: []string{"acq_time"}, Required: true},
		{Name: "frp", Required: true},
		{Name: "confidence"},
	},
}

// WeatherSchema is the column contract of weather snapshots.
var WeatherSchema = Schema{
	Source: SourceWeather,
	Fields: []Field{
		{Name: "date", Required: true},
		{Name: "temperature", Aliases: []string{"TAVG"}, Required: true},
		{Name: "humidity", Aliases: []string{"RHAVG"}, Required: true},
		{Name: "windSpeed", Aliases: []string{"wind_speed", "AWND"}, Required: true},
		{Name: "windDirection", Aliases: []string{"wind_direction"}},
		{Name: "region_id", Aliases: []string{"regionId", "county_id"}},
	},
}

// VegetationSchema is the column contract of NDVI snapshots.
var VegetationSchema = Schema{
	Source: SourceVegetation,
	Fields: []Field{
		{Name: "ndvi", Aliases: []string{"ndvi_value"}, Required: true},
		{Name: "vegetation_density"},
		{Name: "vegetation_type"},
		{Name: "region_id", Aliases: []string{"regionId", "county_id"}},
	},
}

// LoadFirePoints parses a fire detection snapshot.
func LoadFirePoints(file string, r io.Reader) ([]FirePoint, error) {
	t, err := readTable(file, r, FireSchema)
	if err != nil {
		return nil, err
	}

	points := make([]FirePoint, 0, len(t.rows))
	err = t.each(func(row *rowReader) {
		lat := row.float("latitude")
		lon := row.float("longitude")
		day := row.date("acquisition_date")
		ts := row.clockTime("acquisition_time", day)
		frp := row.nonNegative("frp")
		conf := row.stringOr("confidence", DefaultFireConfidence)
		if row.err != nil {
			return
		}
		points = append(points, FirePoint{
			Latitude:   lat,
			Longitude:  lon,
			Timestamp:  ts,
			FRP:        frp,
			Confidence: conf,
		})
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// LoadWeatherRecords parses a weather snapshot.
func LoadWeatherRecords(file string, r io.Reader) ([]WeatherRecord, error) {
	t, err := readTable(file, r, WeatherSchema)
	if err != nil {
		return nil, err
	}

	records := make([]WeatherRecord, 0, len(t.rows))
	err = t.each(func(row *rowReader) {
		rec := WeatherRecord{
			Date:          row.date("date"),
			Temperature:   row.float("temperature"),
			Humidity:      row.float("humidity"),
			WindSpeed:     row.float("windSpeed"),
			WindDirection: row.stringOr("windDirection", DefaultWindDirection),
			RegionID:      row.stringOr("region_id", ""),
		}
		if row.err == nil {
			records = append(records, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LoadVegetationSamples parses an NDVI snapshot. Density defaults to a value
// derived from NDVI, type to "mixed".
func LoadVegetationSamples(file string, r io.Reader) ([]VegetationSample, error) {
	t, err := readTable(file, r, VegetationSchema)
	if err != nil {
		return nil, err
	}

	samples := make([]VegetationSample, 0, len(t.rows))
	err = t.each(func(row *rowReader) {
		ndvi := row.float("ndvi")
		s := VegetationSample{
			NDVI:     ndvi,
			Density:  row.floatOr("vegetation_density", defaultDensity(ndvi)),
			Type:     row.stringOr("vegetation_type", DefaultVegetationType),
			RegionID: row.stringOr("region_id", ""),
		}
		if row.err == nil {
			samples = append(samples, s)
		}
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}
