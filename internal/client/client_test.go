package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mirrorlake/geodesk/internal/httputil"
	"github.com/mirrorlake/geodesk/internal/respcache"
	"github.com/mirrorlake/geodesk/internal/timeutil"
)

const polygonsBody = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"school_name":"一小"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`

func newTestClient() (*Client, *httputil.MockHTTPClient, *timeutil.MockClock) {
	mock := httputil.NewMockHTTPClient()
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	cache := respcache.New(clock)
	return New("http://geodesk.test", mock, cache), mock, clock
}

func TestListFilesCachesResult(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusOK, `["a.geojson","b.geojson"]`)

	files, err := c.ListFiles(context.Background(), false)
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v", files)
	}

	// Second call is served from the cache.
	if _, err := c.ListFiles(context.Background(), false); err != nil {
		t.Fatalf("cached ListFiles failed: %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("request count = %d, want 1", mock.RequestCount())
	}
}

func TestForceBypassesCache(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusOK, `["a.geojson"]`)
	mock.AddResponse(http.StatusOK, `["a.geojson","b.geojson"]`)

	if _, err := c.ListFiles(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	files, err := c.ListFiles(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("forced fetch returned %v", files)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("request count = %d, want 2", mock.RequestCount())
	}
}

func TestCacheExpiryTriggersRefetch(t *testing.T) {
	c, mock, clock := newTestClient()
	mock.AddResponse(http.StatusOK, polygonsBody)
	mock.AddResponse(http.StatusOK, polygonsBody)

	if _, err := c.Polygons(context.Background(), "a.geojson", false); err != nil {
		t.Fatal(err)
	}
	clock.Advance(respcache.DefaultTTL + time.Second)
	if _, err := c.Polygons(context.Background(), "a.geojson", false); err != nil {
		t.Fatal(err)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("request count = %d, want 2 after TTL expiry", mock.RequestCount())
	}
}

func TestPointsNotFound(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusNotFound, `{"error":"File not found"}`)

	_, err := c.Points(context.Background(), "a.geojson", false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	// A failed fetch must not populate the cache.
	mock.AddResponse(http.StatusNotFound, ``)
	if _, err := c.Points(context.Background(), "a.geojson", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("second fetch served from cache despite failure: %v", err)
	}
}

func TestServerErrorIncludesStatus(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusInternalServerError, `{"error":"disk full"}`)

	_, err := c.Polygons(context.Background(), "a.geojson", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("500 mapped to ErrNotFound")
	}
}

func TestSaveWritesThroughCache(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusOK, polygonsBody)
	mock.AddResponse(http.StatusOK, `{"status":"ok"}`)

	fc, err := c.Polygons(context.Background(), "a.geojson", false)
	if err != nil {
		t.Fatal(err)
	}

	fc.Features[0].Properties["edited"] = true
	if err := c.SavePolygons(context.Background(), "a.geojson", fc); err != nil {
		t.Fatalf("SavePolygons failed: %v", err)
	}

	last := mock.LastRequest()
	if last.Method != http.MethodPost || last.Path != "/api/polygons/a.geojson" {
		t.Errorf("save request = %s %s", last.Method, last.Path)
	}
	var sent map[string]interface{}
	if err := json.Unmarshal(last.Body, &sent); err != nil {
		t.Fatalf("save body is not JSON: %v", err)
	}

	// Subsequent read hits the write-through cache, no new request.
	before := mock.RequestCount()
	got, err := c.Polygons(context.Background(), "a.geojson", false)
	if err != nil {
		t.Fatal(err)
	}
	if mock.RequestCount() != before {
		t.Error("read after save went to the network")
	}
	if got.Features[0].Properties["edited"] != true {
		t.Error("cache does not hold the saved collection")
	}
}

func TestSaveFailureLeavesCacheUntouched(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusOK, polygonsBody)

	fc, err := c.Polygons(context.Background(), "a.geojson", false)
	if err != nil {
		t.Fatal(err)
	}
	wantFeatures := len(fc.Features)

	mock.AddResponse(http.StatusInternalServerError, `{"error":"backup failed"}`)
	empty := geojson.NewFeatureCollection()
	if err := c.SavePolygons(context.Background(), "a.geojson", empty); err == nil {
		t.Fatal("expected save failure")
	}

	// The cached value is still the last successful fetch.
	before := mock.RequestCount()
	got, err := c.Polygons(context.Background(), "a.geojson", false)
	if err != nil {
		t.Fatal(err)
	}
	if mock.RequestCount() != before {
		t.Error("read after failed save went to the network")
	}
	if len(got.Features) != wantFeatures {
		t.Errorf("cached features = %d, want %d", len(got.Features), wantFeatures)
	}
}

func TestHistoryListCacheKeyedBySchool(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusOK, `[{"save_id":"id-1","saved_at":"2025-06-01T09:00:00Z","file_name":"a.geojson"}]`)
	mock.AddResponse(http.StatusOK, `[]`)

	all, err := c.HistoryList(context.Background(), "a.geojson", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].SaveID != "id-1" {
		t.Errorf("history = %+v", all)
	}

	scoped, err := c.HistoryList(context.Background(), "a.geojson", "一小", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 0 {
		t.Errorf("scoped history = %+v", scoped)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("request count = %d, want 2 (different cache keys)", mock.RequestCount())
	}

	reqs := mock.Requests()
	if reqs[1].Query != "file_name=a.geojson&school_name=%E4%B8%80%E5%B0%8F" {
		t.Errorf("scoped query = %q", reqs[1].Query)
	}
}

func TestHistoryVersionCachedForever(t *testing.T) {
	c, mock, clock := newTestClient()
	mock.AddResponse(http.StatusOK, `{"save_id":"id-1","saved_at":"2025-06-01T09:00:00Z","file_name":"a.geojson","polygons":{"type":"FeatureCollection","features":[]},"points":{"type":"FeatureCollection","features":[]}}`)

	snap, err := c.HistoryVersion(context.Background(), "id-1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.FileName != "a.geojson" {
		t.Errorf("snapshot = %+v", snap)
	}

	// Within the TTL the snapshot is served from cache. (History items are
	// immutable; they share the cache TTL but offer no force path.)
	clock.Advance(time.Minute)
	if _, err := c.HistoryVersion(context.Background(), "id-1"); err != nil {
		t.Fatal(err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("request count = %d, want 1", mock.RequestCount())
	}
}

func TestInvalidateHistory(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusOK, `[]`)
	mock.AddResponse(http.StatusOK, `[]`)
	mock.AddResponse(http.StatusOK, `[]`)

	if _, err := c.HistoryList(context.Background(), "a.geojson", "", false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.HistoryList(context.Background(), "b.geojson", "", false); err != nil {
		t.Fatal(err)
	}

	c.InvalidateHistory("a.geojson")

	// a.geojson refetches, b.geojson stays cached.
	if _, err := c.HistoryList(context.Background(), "a.geojson", "", false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.HistoryList(context.Background(), "b.geojson", "", false); err != nil {
		t.Fatal(err)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("request count = %d, want 3", mock.RequestCount())
	}
}

func TestSaveAll(t *testing.T) {
	c, mock, _ := newTestClient()
	mock.AddResponse(http.StatusOK, `{"errors":["bad.geojson: invalid GeoJSON"]}`)

	result, err := c.SaveAll(context.Background())
	if err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v", result.Errors)
	}
	last := mock.LastRequest()
	if last.Method != http.MethodPost || last.Path != "/api/save_all" {
		t.Errorf("request = %s %s", last.Method, last.Path)
	}
}
