package respcache

import (
	"strings"
	"testing"
	"time"

	"github.com/mirrorlake/geodesk/internal/timeutil"
)

func newTestCache() (*Cache, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	return New(clock), clock
}

func TestGetAfterSetWithinTTL(t *testing.T) {
	c, clock := newTestCache()

	c.Set(KindPolygons, "a.geojson", "payload")
	clock.Advance(4 * time.Minute)

	got, ok := c.Get(KindPolygons, "a.geojson")
	if !ok {
		t.Fatal("entry missing within TTL")
	}
	if got != "payload" {
		t.Errorf("value = %v", got)
	}
}

func TestGetAfterTTLExpiry(t *testing.T) {
	c, clock := newTestCache()

	c.Set(KindPolygons, "a.geojson", "payload")
	clock.Advance(5*time.Minute + time.Second)

	if _, ok := c.Get(KindPolygons, "a.geojson"); ok {
		t.Error("expired entry still returned")
	}
	// Expired entries are dropped on read.
	if c.Len() != 0 {
		t.Errorf("Len = %d after expiry read, want 0", c.Len())
	}
}

func TestSetOverwritesAndRefreshes(t *testing.T) {
	c, clock := newTestCache()

	c.Set(KindPoints, "a.geojson", "old")
	clock.Advance(4 * time.Minute)
	c.Set(KindPoints, "a.geojson", "new")
	clock.Advance(4 * time.Minute)

	got, ok := c.Get(KindPoints, "a.geojson")
	if !ok || got != "new" {
		t.Errorf("Get = %v, %v; want new, true", got, ok)
	}
}

func TestKindsAreIndependent(t *testing.T) {
	c, _ := newTestCache()

	c.Set(KindPolygons, "a.geojson", "poly")
	c.Set(KindPoints, "a.geojson", "pts")

	if got, _ := c.Get(KindPolygons, "a.geojson"); got != "poly" {
		t.Errorf("polygons = %v", got)
	}
	if got, _ := c.Get(KindPoints, "a.geojson"); got != "pts" {
		t.Errorf("points = %v", got)
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache()

	c.Set(KindHistoryItem, "id-1", 1)
	c.Invalidate(KindHistoryItem, "id-1")
	if _, ok := c.Get(KindHistoryItem, "id-1"); ok {
		t.Error("invalidated entry still present")
	}
}

func TestInvalidateKind(t *testing.T) {
	c, _ := newTestCache()

	c.Set(KindHistoryList, "a.geojson|", 1)
	c.Set(KindHistoryList, "b.geojson|", 2)
	c.Set(KindPolygons, "a.geojson", 3)

	c.InvalidateKind(KindHistoryList)

	if _, ok := c.Get(KindHistoryList, "a.geojson|"); ok {
		t.Error("history list entry survived InvalidateKind")
	}
	if _, ok := c.Get(KindPolygons, "a.geojson"); !ok {
		t.Error("unrelated kind was invalidated")
	}
}

func TestInvalidateFunc(t *testing.T) {
	c, _ := newTestCache()

	c.Set(KindHistoryList, "a.geojson|", 1)
	c.Set(KindHistoryList, "a.geojson|一小", 2)
	c.Set(KindHistoryList, "b.geojson|", 3)

	c.InvalidateFunc(KindHistoryList, func(key string) bool {
		return strings.HasPrefix(key, "a.geojson|")
	})

	if _, ok := c.Get(KindHistoryList, "a.geojson|一小"); ok {
		t.Error("matching entry survived InvalidateFunc")
	}
	if _, ok := c.Get(KindHistoryList, "b.geojson|"); !ok {
		t.Error("non-matching entry was removed")
	}
}
