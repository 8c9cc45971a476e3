package geo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func makeCollection(schools ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, name := range schools {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i)})
		if name != "" {
			f.Properties[SchoolNameProperty] = name
		}
		fc.Append(f)
	}
	return fc
}

func TestFilterBySchoolEmptyNameIsIdentity(t *testing.T) {
	fc := makeCollection("一小", "二小")
	if got := FilterBySchool(fc, ""); got != fc {
		t.Error("empty school name should return the input collection unchanged")
	}
	if got := FilterBySchool(nil, "一小"); got != nil {
		t.Error("nil collection should pass through")
	}
}

func TestFilterBySchoolSelectsMatches(t *testing.T) {
	fc := makeCollection("一小", "二小", "一小", "")

	got := FilterBySchool(fc, "一小")
	if len(got.Features) != 2 {
		t.Fatalf("filtered features = %d, want 2", len(got.Features))
	}
	for _, f := range got.Features {
		if f.Properties[SchoolNameProperty] != "一小" {
			t.Errorf("unexpected feature for school %v", f.Properties[SchoolNameProperty])
		}
	}

	// Filtering the already-filtered collection is a no-op.
	again := FilterBySchool(got, "一小")
	if len(again.Features) != len(got.Features) {
		t.Errorf("second filter changed feature count: %d != %d", len(again.Features), len(got.Features))
	}
}

func TestFilterBySchoolNoMatches(t *testing.T) {
	fc := makeCollection("一小")
	got := FilterBySchool(fc, "不存在")
	if len(got.Features) != 0 {
		t.Errorf("expected empty result, got %d features", len(got.Features))
	}
}

func TestSchoolNames(t *testing.T) {
	fc := makeCollection("星湾小学", "一小", "一小", "")
	got := SchoolNames(fc)
	want := []string{"一小", "星湾小学"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SchoolNames mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneCollectionIndependence(t *testing.T) {
	fc := makeCollection("一小")
	clone := CloneCollection(fc)

	// Mutating the clone must not affect the source.
	clone.Features[0].Properties[SchoolNameProperty] = "changed"
	clone.Features[0].Geometry = orb.Point{99, 99}

	if fc.Features[0].Properties[SchoolNameProperty] != "一小" {
		t.Error("clone mutation leaked into source properties")
	}
	if p := fc.Features[0].Geometry.(orb.Point); p != (orb.Point{0, 0}) {
		t.Errorf("clone mutation leaked into source geometry: %v", p)
	}
}

func TestCloneCollectionCopiesRings(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	fc.Append(geojson.NewFeature(poly))

	clone := CloneCollection(fc)
	clone.Features[0].Geometry.(orb.Polygon)[0][0] = orb.Point{5, 5}

	if fc.Features[0].Geometry.(orb.Polygon)[0][0] != (orb.Point{0, 0}) {
		t.Error("polygon ring mutation leaked into source")
	}
}

func TestParseCollection(t *testing.T) {
	good := []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"school_name":"一小"},"geometry":{"type":"Point","coordinates":[120.6,31.3]}}]}`)
	fc, err := ParseCollection(good)
	if err != nil {
		t.Fatalf("ParseCollection failed: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Errorf("features = %d, want 1", len(fc.Features))
	}

	for _, bad := range []string{"", "not json", `{"type":"Point"}`} {
		if _, err := ParseCollection([]byte(bad)); err == nil {
			t.Errorf("ParseCollection(%q) succeeded, want error", bad)
		}
	}
}
