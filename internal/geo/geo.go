// Package geo provides helpers for working with GeoJSON feature
// collections: school-name scoping, deep copies, and safe parsing of
// operator-supplied files.
package geo

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SchoolNameProperty is the feature property used for school scoping.
const SchoolNameProperty = "school_name"

// FilterBySchool returns a collection containing only features whose
// school_name property equals school. An empty school name or a nil
// collection is returned unchanged (identity, not a copy).
func FilterBySchool(fc *geojson.FeatureCollection, school string) *geojson.FeatureCollection {
	if fc == nil || school == "" {
		return fc
	}

	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		if name, ok := f.Properties[SchoolNameProperty].(string); ok && name == school {
			out.Append(f)
		}
	}
	return out
}

// SchoolNames returns the distinct school_name values in the collection,
// sorted. Features without the property are skipped.
func SchoolNames(fc *geojson.FeatureCollection) []string {
	if fc == nil {
		return nil
	}

	seen := make(map[string]struct{})
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		if name, ok := f.Properties[SchoolNameProperty].(string); ok && name != "" {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloneCollection returns a deep copy of the collection. Geometry and
// properties are copied so edits to one side never leak into the other.
func CloneCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return nil
	}

	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		out.Append(CloneFeature(f))
	}
	return out
}

// CloneFeature returns a deep copy of a single feature.
func CloneFeature(f *geojson.Feature) *geojson.Feature {
	var c *geojson.Feature
	if f.Geometry != nil {
		c = geojson.NewFeature(orb.Clone(f.Geometry))
	} else {
		c = geojson.NewFeature(nil)
	}
	c.ID = f.ID
	c.Type = f.Type
	if f.Properties != nil {
		c.Properties = f.Properties.Clone()
	}
	return c
}

// ParseCollection parses GeoJSON text into a feature collection. Used for
// locally opened files, so failures are reported as validation errors
// rather than panics.
func ParseCollection(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	return fc, nil
}
