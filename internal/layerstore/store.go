// Package layerstore holds the live overlay collections for the three
// map layers and their original (pre-edit) snapshots.
//
// Live overlays are what the operator sees and edits on the map surface.
// The original snapshot is the last known-good collection for a layer,
// updated only on a fresh load or a successful save, and is the basis
// for local filtering and reset.
package layerstore

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mirrorlake/geodesk/internal/geo"
	"github.com/mirrorlake/geodesk/internal/mapsurface"
)

// Kind identifies one of the three map layers.
type Kind string

const (
	LayerPolygon Kind = "polygon"
	LayerPoints  Kind = "points"
	LayerItems   Kind = "items"
)

// Kinds lists all layers in render order.
var Kinds = []Kind{LayerPolygon, LayerPoints, LayerItems}

// RenderOptions controls snapshot behaviour during a render.
type RenderOptions struct {
	// SkipOriginal leaves the layer's original snapshot untouched. Used
	// when rendering filtered views and read-only historical data.
	SkipOriginal bool
}

type layer struct {
	overlays []mapsurface.Overlay
	original *geojson.FeatureCollection
}

// Store owns the live overlays and original snapshots per layer. It is
// mutated only by the session controller; concurrent direct mutation of
// overlay state is prevented by disabling edit mode before any reload.
type Store struct {
	surface mapsurface.Surface
	layers  map[Kind]*layer
}

// New creates an empty store rendering onto the given surface.
func New(surface mapsurface.Surface) *Store {
	layers := make(map[Kind]*layer, len(Kinds))
	for _, k := range Kinds {
		layers[k] = &layer{}
	}
	return &Store{surface: surface, layers: layers}
}

// Render replaces the layer's overlays with ones converted from fc.
// Multi-geometries are exploded into one overlay per member. The polygon
// layer fits the viewport to its new overlays. Unless opts.SkipOriginal
// is set, a deep copy of fc becomes the layer's original snapshot.
func (s *Store) Render(kind Kind, fc *geojson.FeatureCollection, opts RenderOptions) error {
	l, ok := s.layers[kind]
	if !ok {
		return fmt.Errorf("unknown layer %q", kind)
	}

	s.Clear(kind)

	var overlays []mapsurface.Overlay
	if fc != nil {
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			overlays = append(overlays, s.featureOverlays(f)...)
		}
	}

	l.overlays = overlays
	s.surface.Add(overlays...)
	if kind == LayerPolygon && len(overlays) > 0 {
		s.surface.FitViewport(overlays)
	}

	if !opts.SkipOriginal {
		l.original = geo.CloneCollection(fc)
	}
	return nil
}

func (s *Store) featureOverlays(f *geojson.Feature) []mapsurface.Overlay {
	props := func() geojson.Properties {
		if f.Properties == nil {
			return geojson.Properties{}
		}
		return f.Properties.Clone()
	}

	// Overlays get their own geometry copies. Line and polygon geometries
	// are backed by shared slices, and the source collection may also sit
	// in the response cache; a surface that moves vertices in place must
	// not write through into either.
	var out []mapsurface.Overlay
	switch g := f.Geometry.(type) {
	case orb.Point:
		out = append(out, s.surface.NewMarker(g, props()))
	case orb.MultiPoint:
		for _, p := range g {
			out = append(out, s.surface.NewMarker(p, props()))
		}
	case orb.LineString:
		out = append(out, s.surface.NewPolyline(g.Clone(), props()))
	case orb.MultiLineString:
		for _, ls := range g {
			out = append(out, s.surface.NewPolyline(ls.Clone(), props()))
		}
	case orb.Polygon:
		out = append(out, s.surface.NewPolygon(g.Clone(), props()))
	case orb.MultiPolygon:
		for _, pg := range g {
			out = append(out, s.surface.NewPolygon(pg.Clone(), props()))
		}
	}
	// Other geometry types are not produced by the pipeline and are skipped.
	return out
}

// Clear removes the layer's live overlays from the surface and drops the
// in-memory references. The original snapshot is left untouched.
func (s *Store) Clear(kind Kind) {
	l, ok := s.layers[kind]
	if !ok || len(l.overlays) == 0 {
		return
	}
	s.surface.Remove(l.overlays...)
	l.overlays = nil
}

// ClearAll clears every layer.
func (s *Store) ClearAll() {
	for _, k := range Kinds {
		s.Clear(k)
	}
}

// DropOriginals forgets every layer's original snapshot. Called when the
// file context changes so stale snapshots cannot leak across files.
func (s *Store) DropOriginals() {
	for _, l := range s.layers {
		l.original = nil
	}
}

// Overlays returns the layer's live overlays.
func (s *Store) Overlays(kind Kind) []mapsurface.Overlay {
	if l, ok := s.layers[kind]; ok {
		return l.overlays
	}
	return nil
}

// Count returns the number of live overlays on the layer.
func (s *Store) Count(kind Kind) int {
	return len(s.Overlays(kind))
}

// Original returns the layer's original snapshot, or nil.
func (s *Store) Original(kind Kind) *geojson.FeatureCollection {
	if l, ok := s.layers[kind]; ok {
		return l.original
	}
	return nil
}

// SetOriginal replaces the layer's original snapshot with a deep copy of
// fc. Called after a successful save, the single point where live edits
// become the new source of truth.
func (s *Store) SetOriginal(kind Kind, fc *geojson.FeatureCollection) {
	if l, ok := s.layers[kind]; ok {
		l.original = geo.CloneCollection(fc)
	}
}

// ToGeoJSON reads back the layer's current overlay geometry and attached
// properties as a fresh FeatureCollection. This is how in-map edits are
// captured for saving.
func (s *Store) ToGeoJSON(kind Kind) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range s.Overlays(kind) {
		g := o.Geometry()
		if g == nil {
			continue
		}
		f := geojson.NewFeature(orb.Clone(g))
		if props := o.Properties(); props != nil {
			f.Properties = props.Clone()
		}
		fc.Append(f)
	}
	return fc
}
