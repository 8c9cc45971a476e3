// Package mapsurface defines the narrow capability the editor needs from
// a rendering surface: construct overlays, add and remove them, fit the
// viewport, and toggle per-overlay editing affordances. The core never
// references a concrete mapping SDK; implementations adapt one behind
// this interface.
package mapsurface

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// OverlayKind distinguishes the renderable overlay types.
type OverlayKind int

const (
	KindMarker OverlayKind = iota
	KindPolyline
	KindPolygon
)

func (k OverlayKind) String() string {
	switch k {
	case KindMarker:
		return "marker"
	case KindPolyline:
		return "polyline"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Overlay is a renderable map object bound to geometry and properties.
// Geometry reflects in-map edits (vertex drags, marker moves), which is
// how the layer store captures edited state for saving.
type Overlay interface {
	Kind() OverlayKind

	// Geometry returns the overlay's current geometry: orb.Point for
	// markers, orb.LineString for polylines, orb.Polygon for polygons.
	Geometry() orb.Geometry

	// SetGeometry replaces the overlay's geometry, e.g. when the operator
	// supplies an explicit coordinate for a marker.
	SetGeometry(orb.Geometry)

	// Properties returns the feature properties attached at render time.
	Properties() geojson.Properties
}

// Surface is the rendering capability consumed by the layer store and
// edit controller.
type Surface interface {
	// NewMarker creates a draggable-capable point marker.
	NewMarker(p orb.Point, props geojson.Properties) Overlay

	// NewPolyline creates a polyline overlay.
	NewPolyline(ls orb.LineString, props geojson.Properties) Overlay

	// NewPolygon creates a filled polygon overlay.
	NewPolygon(pg orb.Polygon, props geojson.Properties) Overlay

	// Add renders overlays on the map.
	Add(overlays ...Overlay)

	// Remove takes overlays off the map.
	Remove(overlays ...Overlay)

	// FitViewport adjusts the viewport to contain the given overlays.
	FitViewport(overlays []Overlay)

	// SetDraggable toggles drag support on a marker overlay.
	SetDraggable(o Overlay, draggable bool)

	// OpenEditHandle attaches a vertex-editing handle to a polygon overlay.
	OpenEditHandle(o Overlay)

	// CloseEditHandle detaches the editing handle.
	CloseEditHandle(o Overlay)

	// OnClick registers a click handler for an overlay. A nil handler
	// clears the registration.
	OnClick(o Overlay, handler func())
}
