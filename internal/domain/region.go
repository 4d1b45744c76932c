package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Bounds is a rectangular latitude/longitude box in WGS-84 degrees.
type Bounds struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b Bounds) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Region is an administrative area approximated by a bounding box.
type Region struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Bounds Bounds `json:"bounds" yaml:"bounds"`
}

// Registry is the ordered, immutable set of regions scored on every run.
// Order matters: RegionOf resolves overlaps to the earliest region.
type Registry struct {
	regions []Region
	byID    map[string]int
}

// NewRegistry validates regions and freezes them in the given order.
func NewRegistry(regions []Region) (*Registry, error) {
	if len(regions) == 0 {
		return nil, errors.New("region registry is empty")
	}

	r := &Registry{
		regions: make([]Region, len(regions)),
		byID:    make(map[string]int, len(regions)),
	}
	copy(r.regions, regions)

	for i, region := range r.regions {
		if err := validateRegion(region); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		if _, dup := r.byID[region.ID]; dup {
			return nil, fmt.Errorf("region %d: duplicate id %q", i, region.ID)
		}
		r.byID[region.ID] = i
	}
	return r, nil
}

// MustRegistry is NewRegistry for hard-coded tables; it panics on invalid input.
func MustRegistry(regions []Region) *Registry {
	r, err := NewRegistry(regions)
	if err != nil {
		panic(err)
	}
	return r
}

func validateRegion(region Region) error {
	b := region.Bounds
	switch {
	case region.ID == "":
		return errors.New("id is required")
	case strings.ContainsAny(region.ID, `/\ `):
		return fmt.Errorf("id %q must not contain path separators or spaces", region.ID)
	case region.Name == "":
		return fmt.Errorf("%s: name is required", region.ID)
	case !finite(b.MinLat, b.MaxLat, b.MinLon, b.MaxLon):
		return fmt.Errorf("%s: bounds must be finite", region.ID)
	case b.MinLat > b.MaxLat:
		return fmt.Errorf("%s: min_lat %g exceeds max_lat %g", region.ID, b.MinLat, b.MaxLat)
	case b.MinLon > b.MaxLon:
		return fmt.Errorf("%s: min_lon %g exceeds max_lon %g", region.ID, b.MinLon, b.MaxLon)
	case b.MinLat < -90 || b.MaxLat > 90:
		return fmt.Errorf("%s: latitude out of range", region.ID)
	case b.MinLon < -180 || b.MaxLon > 180:
		return fmt.Errorf("%s: longitude out of range", region.ID)
	}
	return nil
}

// Regions returns the regions in registry order. The slice is a copy.
func (r *Registry) Regions() []Region {
	out := make([]Region, len(r.regions))
	copy(out, r.regions)
	return out
}

// Len returns the number of regions.
func (r *Registry) Len() int { return len(r.regions) }

// Lookup finds a region by id.
func (r *Registry) Lookup(id string) (Region, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Region{}, false
	}
	return r.regions[i], true
}

// RegionOf returns the first region, in registry order, whose bounds contain
// the point. A linear scan is fine at county scale; a spatial index would have
// to keep the same first-match semantics.
func (r *Registry) RegionOf(lat, lon float64) (Region, bool) {
	for _, region := range r.regions {
		if region.Bounds.Contains(lat, lon) {
			return region, true
		}
	}
	return Region{}, false
}

// DefaultRegions is the built-in county table used when no regions file is configured.
func DefaultRegions() []Region {
	return []Region{
		{
			ID:     "sf",
			Name:   "San Francisco",
			Bounds: Bounds{MinLat: 37.7, MaxLat: 37.8, MinLon: -122.5, MaxLon: -122.3},
		},
		{
			ID:     "la",
			Name:   "Los Angeles",
			Bounds: Bounds{MinLat: 33.7, MaxLat: 34.8, MinLon: -118.7, MaxLon: -117.7},
		},
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
