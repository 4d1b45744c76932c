package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
)

// regionsFile is the on-disk region table:
//
//	regions:
//	  - id: sf
//	    name: San Francisco
//	    bounds: {min_lat: 37.7, max_lat: 37.8, min_lon: -122.5, max_lon: -122.3}
type regionsFile struct {
	Regions []domain.Region `yaml:"regions"`
}

// LoadRegistry builds the region registry. An empty path selects the
// built-in table.
func LoadRegistry(path string) (*domain.Registry, error) {
	if path == "" {
		return domain.NewRegistry(domain.DefaultRegions())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}

	var f regionsFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("parse regions file %s: %w", path, err)
	}

	reg, err := domain.NewRegistry(f.Regions)
	if err != nil {
		return nil, fmt.Errorf("regions file %s: %w", path, err)
	}
	return reg, nil
}
