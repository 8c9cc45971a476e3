// Package client implements the REST client for the geodesk backend.
//
// All reads go through the response cache: a fresh entry is returned
// without touching the network, a miss or an expired entry triggers a
// fetch that writes through to the cache, and force bypasses the cache
// entirely. Saves POST the collection and write the saved value through
// on success, so the cache always reflects the last known server state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mirrorlake/geodesk/internal/httputil"
	"github.com/mirrorlake/geodesk/internal/respcache"
)

// ErrNotFound reports a 404 from the backend. For points and items this
// means "not yet generated" and is not treated as a failure by callers.
var ErrNotFound = errors.New("resource not found")

// HistoryVersion identifies one saved snapshot of a file.
type HistoryVersion struct {
	SaveID     string    `json:"save_id"`
	SavedAt    time.Time `json:"saved_at"`
	FileName   string    `json:"file_name"`
	SchoolName string    `json:"school_name,omitempty"`
}

// HistorySnapshot is the full content of one saved version. Historical
// snapshots carry no items layer.
type HistorySnapshot struct {
	SaveID     string                     `json:"save_id"`
	SavedAt    time.Time                  `json:"saved_at"`
	FileName   string                     `json:"file_name"`
	SchoolName string                     `json:"school_name,omitempty"`
	Polygons   *geojson.FeatureCollection `json:"polygons"`
	Points     *geojson.FeatureCollection `json:"points"`
}

// SaveAllResult reports the outcome of a bulk database save.
type SaveAllResult struct {
	Errors []string `json:"errors"`
}

// Client talks to the geodesk REST backend.
type Client struct {
	base  string
	http  httputil.HTTPClient
	cache *respcache.Cache
}

// New creates a client for the given base URL (e.g. "http://localhost:8080").
func New(base string, h httputil.HTTPClient, cache *respcache.Cache) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		http:  h,
		cache: cache,
	}
}

// Cache exposes the response cache for invalidation by callers.
func (c *Client) Cache() *respcache.Cache {
	return c.cache
}

// ListFiles returns the available polygon file names.
func (c *Client) ListFiles(ctx context.Context, force bool) ([]string, error) {
	if !force {
		if v, ok := c.cache.Get(respcache.KindIndex, "files"); ok {
			return v.([]string), nil
		}
	}

	body, err := c.get(ctx, "/api/polygons")
	if err != nil {
		return nil, err
	}

	var files []string
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("decode file list: %w", err)
	}
	c.cache.Set(respcache.KindIndex, "files", files)
	return files, nil
}

// Polygons fetches the polygon collection for a file.
func (c *Client) Polygons(ctx context.Context, file string, force bool) (*geojson.FeatureCollection, error) {
	return c.collection(ctx, respcache.KindPolygons, "/api/polygons/", file, force)
}

// Points fetches the boundary-point collection for a file.
// Returns ErrNotFound if the points layer has not been generated yet.
func (c *Client) Points(ctx context.Context, file string, force bool) (*geojson.FeatureCollection, error) {
	return c.collection(ctx, respcache.KindPoints, "/api/points/", file, force)
}

// Items fetches the subdivision-item collection for a file.
// Returns ErrNotFound if the items layer has not been generated yet.
func (c *Client) Items(ctx context.Context, file string, force bool) (*geojson.FeatureCollection, error) {
	return c.collection(ctx, respcache.KindItems, "/api/items/", file, force)
}

// SavePolygons persists the polygon collection for a file.
func (c *Client) SavePolygons(ctx context.Context, file string, fc *geojson.FeatureCollection) error {
	return c.save(ctx, respcache.KindPolygons, "/api/polygons/", file, fc)
}

// SavePoints persists the point collection for a file.
func (c *Client) SavePoints(ctx context.Context, file string, fc *geojson.FeatureCollection) error {
	return c.save(ctx, respcache.KindPoints, "/api/points/", file, fc)
}

// SaveItems persists the items collection for a file.
func (c *Client) SaveItems(ctx context.Context, file string, fc *geojson.FeatureCollection) error {
	return c.save(ctx, respcache.KindItems, "/api/items/", file, fc)
}

func historyListKey(file, school string) string {
	return file + "|" + school
}

// HistoryList returns the saved versions for a file, newest first,
// optionally scoped to one school.
func (c *Client) HistoryList(ctx context.Context, file, school string, force bool) ([]HistoryVersion, error) {
	key := historyListKey(file, school)
	if !force {
		if v, ok := c.cache.Get(respcache.KindHistoryList, key); ok {
			return v.([]HistoryVersion), nil
		}
	}

	q := url.Values{}
	q.Set("file_name", file)
	if school != "" {
		q.Set("school_name", school)
	}
	body, err := c.get(ctx, "/api/history?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var versions []HistoryVersion
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("decode history list: %w", err)
	}
	c.cache.Set(respcache.KindHistoryList, key, versions)
	return versions, nil
}

// HistoryVersion fetches a single snapshot by save ID. Snapshots are
// immutable once written, so there is no forced-refresh path.
func (c *Client) HistoryVersion(ctx context.Context, saveID string) (*HistorySnapshot, error) {
	if v, ok := c.cache.Get(respcache.KindHistoryItem, saveID); ok {
		return v.(*HistorySnapshot), nil
	}

	body, err := c.get(ctx, "/api/history/"+url.PathEscape(saveID))
	if err != nil {
		return nil, err
	}

	var snap HistorySnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode history snapshot: %w", err)
	}
	c.cache.Set(respcache.KindHistoryItem, saveID, &snap)
	return &snap, nil
}

// InvalidateHistory drops every cached history list for the given file.
// Restoring a version changes what "current" means, so cached lists for
// that file are no longer trustworthy.
func (c *Client) InvalidateHistory(file string) {
	c.cache.InvalidateFunc(respcache.KindHistoryList, func(key string) bool {
		return strings.HasPrefix(key, file+"|")
	})
}

// SaveAll asks the backend to persist every file to the database and
// returns the per-file errors it reports.
func (c *Client) SaveAll(ctx context.Context) (*SaveAllResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/save_all", nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result SaveAllResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode save_all result: %w", err)
	}
	return &result, nil
}

func (c *Client) collection(ctx context.Context, kind respcache.Kind, prefix, file string, force bool) (*geojson.FeatureCollection, error) {
	if !force {
		if v, ok := c.cache.Get(kind, file); ok {
			return v.(*geojson.FeatureCollection), nil
		}
	}

	body, err := c.get(ctx, prefix+url.PathEscape(file))
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s for %s: %w", kind, file, err)
	}
	c.cache.Set(kind, file, fc)
	return fc, nil
}

func (c *Client) save(ctx context.Context, kind respcache.Kind, prefix, file string, fc *geojson.FeatureCollection) error {
	payload, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", kind, file, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+prefix+url.PathEscape(file), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return err
	}

	// The cache now reflects the last state the server acknowledged.
	c.cache.Set(kind, file, fc)
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// do executes the request and returns the response body, mapping 404 to
// ErrNotFound and any other non-2xx status to a descriptive error. The
// cache is never touched on failure.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}
	return body, nil
}
