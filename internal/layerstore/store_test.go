package layerstore

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mirrorlake/geodesk/internal/mapsurface"
)

func testCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	poly := geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	poly.Properties["school_name"] = "一小"
	fc.Append(poly)

	multi := geojson.NewFeature(orb.MultiPolygon{
		{{{2, 2}, {3, 2}, {3, 3}, {2, 2}}},
		{{{4, 4}, {5, 4}, {5, 5}, {4, 4}}},
	})
	multi.Properties["school_name"] = "二小"
	fc.Append(multi)

	return fc
}

func TestRenderExplodesMultiGeometries(t *testing.T) {
	surface := mapsurface.NewFake()
	s := New(surface)

	if err := s.Render(LayerPolygon, testCollection(), RenderOptions{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	// One polygon + a two-member multipolygon = 3 overlays.
	if got := s.Count(LayerPolygon); got != 3 {
		t.Errorf("overlay count = %d, want 3", got)
	}
	if surface.RenderedCount() != 3 {
		t.Errorf("surface rendered = %d, want 3", surface.RenderedCount())
	}
	if surface.ViewportFits() != 1 {
		t.Errorf("viewport fits = %d, want 1 for polygon layer", surface.ViewportFits())
	}

	// Multi-member overlays share the source feature's properties.
	for _, o := range s.Overlays(LayerPolygon)[1:] {
		if o.Properties()["school_name"] != "二小" {
			t.Errorf("overlay properties = %v", o.Properties())
		}
	}
}

func TestRenderPointKinds(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{120.6, 31.3}))
	fc.Append(geojson.NewFeature(orb.MultiPoint{{1, 1}, {2, 2}}))
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))

	surface := mapsurface.NewFake()
	s := New(surface)
	if err := s.Render(LayerPoints, fc, RenderOptions{}); err != nil {
		t.Fatal(err)
	}

	overlays := s.Overlays(LayerPoints)
	if len(overlays) != 4 {
		t.Fatalf("overlay count = %d, want 4", len(overlays))
	}
	kinds := map[mapsurface.OverlayKind]int{}
	for _, o := range overlays {
		kinds[o.Kind()]++
	}
	if kinds[mapsurface.KindMarker] != 3 || kinds[mapsurface.KindPolyline] != 1 {
		t.Errorf("kinds = %v", kinds)
	}

	// Non-polygon layers do not move the viewport.
	if surface.ViewportFits() != 0 {
		t.Errorf("viewport fits = %d, want 0", surface.ViewportFits())
	}
}

func TestRenderSnapshotBehaviour(t *testing.T) {
	surface := mapsurface.NewFake()
	s := New(surface)
	fc := testCollection()

	if err := s.Render(LayerPolygon, fc, RenderOptions{}); err != nil {
		t.Fatal(err)
	}
	orig := s.Original(LayerPolygon)
	if orig == nil || len(orig.Features) != 2 {
		t.Fatalf("original snapshot = %+v", orig)
	}

	// The snapshot is a deep copy: mutating the input must not change it.
	fc.Features[0].Properties["school_name"] = "changed"
	if s.Original(LayerPolygon).Features[0].Properties["school_name"] != "一小" {
		t.Error("original snapshot shares state with the rendered input")
	}

	// SkipOriginal keeps the previous snapshot.
	filtered := geojson.NewFeatureCollection()
	filtered.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}))
	if err := s.Render(LayerPolygon, filtered, RenderOptions{SkipOriginal: true}); err != nil {
		t.Fatal(err)
	}
	if len(s.Original(LayerPolygon).Features) != 2 {
		t.Error("SkipOriginal render replaced the original snapshot")
	}
	if s.Count(LayerPolygon) != 1 {
		t.Errorf("filtered overlay count = %d, want 1", s.Count(LayerPolygon))
	}
}

func TestClearLeavesOriginal(t *testing.T) {
	surface := mapsurface.NewFake()
	s := New(surface)
	if err := s.Render(LayerPolygon, testCollection(), RenderOptions{}); err != nil {
		t.Fatal(err)
	}

	s.Clear(LayerPolygon)

	if s.Count(LayerPolygon) != 0 {
		t.Error("overlays survived Clear")
	}
	if surface.RenderedCount() != 0 {
		t.Error("surface still has overlays after Clear")
	}
	if s.Original(LayerPolygon) == nil {
		t.Error("Clear dropped the original snapshot")
	}
}

func TestToGeoJSONCapturesEdits(t *testing.T) {
	surface := mapsurface.NewFake()
	s := New(surface)

	fc := geojson.NewFeatureCollection()
	marker := geojson.NewFeature(orb.Point{120.6, 31.3})
	marker.Properties["name"] = "北门"
	fc.Append(marker)
	if err := s.Render(LayerPoints, fc, RenderOptions{}); err != nil {
		t.Fatal(err)
	}

	// Simulate a drag.
	s.Overlays(LayerPoints)[0].SetGeometry(orb.Point{121.0, 31.5})

	got := s.ToGeoJSON(LayerPoints)
	if len(got.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(got.Features))
	}
	if p := got.Features[0].Geometry.(orb.Point); p != (orb.Point{121.0, 31.5}) {
		t.Errorf("captured point = %v, want dragged position", p)
	}
	if got.Features[0].Properties["name"] != "北门" {
		t.Errorf("captured properties = %v", got.Features[0].Properties)
	}
}

func TestDropOriginals(t *testing.T) {
	surface := mapsurface.NewFake()
	s := New(surface)
	if err := s.Render(LayerPolygon, testCollection(), RenderOptions{}); err != nil {
		t.Fatal(err)
	}

	s.DropOriginals()
	if s.Original(LayerPolygon) != nil {
		t.Error("original snapshot survived DropOriginals")
	}
}

func TestOverlayGeometryIsDetachedFromSource(t *testing.T) {
	surface := mapsurface.NewFake()
	s := New(surface)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}))
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))
	if err := s.Render(LayerPolygon, fc, RenderOptions{}); err != nil {
		t.Fatal(err)
	}

	// A vertex drag that mutates overlay geometry in place must not
	// write through into the collection the render came from.
	poly := s.Overlays(LayerPolygon)[0].Geometry().(orb.Polygon)
	poly[0][0] = orb.Point{99, 99}
	line := s.Overlays(LayerPolygon)[1].Geometry().(orb.LineString)
	line[0] = orb.Point{-7, -7}

	if got := fc.Features[0].Geometry.(orb.Polygon)[0][0]; got != (orb.Point{0, 0}) {
		t.Errorf("source polygon vertex mutated to %v", got)
	}
	if got := fc.Features[1].Geometry.(orb.LineString)[0]; got != (orb.Point{0, 0}) {
		t.Errorf("source line vertex mutated to %v", got)
	}
}

func TestRenderUnknownLayer(t *testing.T) {
	s := New(mapsurface.NewFake())
	if err := s.Render(Kind("bogus"), geojson.NewFeatureCollection(), RenderOptions{}); err == nil {
		t.Error("expected error for unknown layer")
	}
}
