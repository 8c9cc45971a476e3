// Package session holds the controller that ties the map layers, edit
// sessions, response cache, and history browsing together. Every user
// intent funnels through one Controller method, which serializes state
// transitions and guards the combinations that must not coexist (edit
// under a filter, saves on read-only sources, loads superseded by a
// newer file selection).
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/mirrorlake/geodesk/internal/client"
	"github.com/mirrorlake/geodesk/internal/editor"
	"github.com/mirrorlake/geodesk/internal/geo"
	"github.com/mirrorlake/geodesk/internal/history"
	"github.com/mirrorlake/geodesk/internal/layerstore"
	"github.com/mirrorlake/geodesk/internal/mapsurface"
)

var (
	// ErrNoFile is returned by intents that need an active file.
	ErrNoFile = errors.New("no file selected")

	// ErrFilterActive blocks editing and saving while a school filter
	// is applied: the rendered overlays are a subset, and saving them
	// would silently drop every other school's features.
	ErrFilterActive = errors.New("school filter active")

	// ErrReadOnlySource blocks saves for local and historical contexts.
	ErrReadOnlySource = errors.New("file is not server-backed")

	// ErrHistorySelected blocks editing while viewing a snapshot.
	ErrHistorySelected = errors.New("historical version selected")

	// ErrNotSaveable is returned for layers with no save endpoint.
	ErrNotSaveable = errors.New("layer cannot be saved")

	// errStaleLoad marks a fetch whose result arrived after a newer
	// intent switched the file context. The result is discarded.
	errStaleLoad = errors.New("load superseded by newer selection")
)

// StatusFunc receives one-line status messages for the operator.
type StatusFunc func(msg string)

// Options configures a Controller.
type Options struct {
	API     *client.Client
	Surface mapsurface.Surface
	Prompt  editor.CoordinateRequester

	// Status receives progress and failure messages. Optional.
	Status StatusFunc
}

// Controller owns the whole editing session. All exported methods are
// safe for concurrent use; long-running fetches release the lock so a
// newer intent can take over, and stale results are discarded by
// generation check.
type Controller struct {
	mu     sync.Mutex
	api    *client.Client
	layers *layerstore.Store
	edits  *editor.Controller
	hist   *history.Manager
	status StatusFunc

	file          FileContext
	schoolFilter  string
	schoolOptions []string
	showPoints    bool
	showItems     bool
	selectedSave  string
	versions      []client.HistoryVersion

	// gen increments on every context-switching intent. Fetch helpers
	// capture it before unlocking and bail out if it moved on.
	gen uint64
}

// New builds a Controller around the given API client and map surface.
func New(opts Options) *Controller {
	c := &Controller{
		api:    opts.API,
		status: opts.Status,
		layers: layerstore.New(opts.Surface),
		hist:   history.New(opts.API),
	}
	c.edits = editor.New(opts.Surface, c.layers, opts.Prompt, c.editGuard)
	return c
}

// editGuard is consulted by the edit controller before enabling a
// session. Called with c.mu held by the enabling intent.
func (c *Controller) editGuard() error {
	if c.schoolFilter != "" {
		return ErrFilterActive
	}
	if c.selectedSave != "" {
		return ErrHistorySelected
	}
	return nil
}

// File returns the active file context.
func (c *Controller) File() FileContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file
}

// SchoolFilter returns the active school filter, or "".
func (c *Controller) SchoolFilter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schoolFilter
}

// SchoolOptions returns the distinct school names of the loaded
// polygon layer, sorted.
func (c *Controller) SchoolOptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.schoolOptions))
	copy(out, c.schoolOptions)
	return out
}

// Versions returns the history list for the active file.
func (c *Controller) Versions() []client.HistoryVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]client.HistoryVersion, len(c.versions))
	copy(out, c.versions)
	return out
}

// SelectedVersion returns the save ID being viewed, or "".
func (c *Controller) SelectedVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedSave
}

// EditActive reports whether an edit session is open for the layer.
func (c *Controller) EditActive(kind layerstore.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edits.Active(kind)
}

// Layers exposes the layer store for read-only inspection.
func (c *Controller) Layers() *layerstore.Store {
	return c.layers
}

// Files lists the server's GeoJSON file names.
func (c *Controller) Files(ctx context.Context, force bool) ([]string, error) {
	return c.api.ListFiles(ctx, force)
}

// SelectFile loads the named server file: polygons always, points and
// items when their toggles are on, then the history list. Any prior
// context is cleared first.
func (c *Controller) SelectFile(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.beginContextSwitch()
	c.file = FileContext{Name: name, Source: SourceServer}

	if err := c.loadPolygons(ctx, gen, false); err != nil {
		if errors.Is(err, errStaleLoad) {
			return err
		}
		return c.fail("load polygons", err)
	}
	if c.showPoints {
		if err := c.loadLayer(ctx, gen, layerstore.LayerPoints, false); err != nil {
			if errors.Is(err, client.ErrNotFound) {
				c.report("points not yet generated for " + name)
			} else {
				return c.failUnlessStale("load points", err)
			}
		}
	}
	if c.showItems {
		if err := c.loadLayer(ctx, gen, layerstore.LayerItems, false); err != nil {
			if errors.Is(err, client.ErrNotFound) {
				c.report("items not yet generated for " + name)
			} else {
				return c.failUnlessStale("load items", err)
			}
		}
	}
	if err := c.reloadHistory(ctx, gen, false); err != nil {
		return c.failUnlessStale("load history", err)
	}
	c.report("loaded " + name)
	return nil
}

// OpenLocal renders a locally supplied GeoJSON document as the polygon
// layer. The context becomes local: no history, no saves, and resets
// re-render from the in-memory snapshot.
func (c *Controller) OpenLocal(name string, data []byte) error {
	fc, err := geo.ParseCollection(data)
	if err != nil {
		c.report(fmt.Sprintf("open %s: %v", name, err))
		return fmt.Errorf("open %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.beginContextSwitch()
	c.file = FileContext{Name: name, Source: SourceLocal}
	if err := c.layers.Render(layerstore.LayerPolygon, fc, layerstore.RenderOptions{}); err != nil {
		return c.fail("render local file", err)
	}
	c.schoolOptions = geo.SchoolNames(fc)
	c.report("opened local file " + name)
	return nil
}

// ToggleLayer switches the points or items layer on or off. Turning a
// layer on loads it for the active server file; turning it off clears
// its overlays and closes its edit session.
func (c *Controller) ToggleLayer(ctx context.Context, kind layerstore.Kind, on bool) error {
	if kind != layerstore.LayerPoints && kind != layerstore.LayerItems {
		return fmt.Errorf("layer %q has no toggle", kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A historical view must stay pure: enabling a layer here would mix
	// the retained head originals into the snapshot on the map. Hiding a
	// layer is still allowed.
	if on && c.selectedSave != "" {
		return c.fail("toggle "+string(kind), ErrHistorySelected)
	}

	switch kind {
	case layerstore.LayerPoints:
		c.showPoints = on
	case layerstore.LayerItems:
		c.showItems = on
	}

	if !on {
		c.edits.Disable(kind)
		c.layers.Clear(kind)
		c.report(string(kind) + " layer hidden")
		return nil
	}
	if c.file.Source == SourceNone {
		return nil
	}
	if c.file.Source != SourceServer {
		// Local and historical contexts carry no companion layers on
		// the server; render a retained snapshot if we have one.
		if orig := c.layers.Original(kind); orig != nil {
			return c.layers.Render(kind, geo.FilterBySchool(orig, c.schoolFilter), layerstore.RenderOptions{SkipOriginal: true})
		}
		c.report(string(kind) + " not available for " + string(c.file.Source) + " files")
		return nil
	}

	gen := c.gen
	if err := c.loadLayer(ctx, gen, kind, false); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			c.report(string(kind) + " not yet generated for " + c.file.Name)
			return nil
		}
		return c.failUnlessStale("load "+string(kind), err)
	}
	c.report(string(kind) + " layer shown")
	return nil
}

// SetSchoolFilter restricts rendering to one school's features, or
// clears the restriction when school is "". Applying any filter closes
// open edit sessions; originals are kept so clearing the filter does
// not refetch.
func (c *Controller) SetSchoolFilter(ctx context.Context, school string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file.Source == SourceNone {
		return c.fail("set filter", ErrNoFile)
	}
	if c.selectedSave != "" {
		return c.fail("set filter", ErrHistorySelected)
	}

	c.edits.DisableAll()
	c.schoolFilter = school

	gen := c.gen
	refresh := func(kind layerstore.Kind) error {
		if orig := c.layers.Original(kind); orig != nil {
			return c.layers.Render(kind, geo.FilterBySchool(orig, school), layerstore.RenderOptions{SkipOriginal: true})
		}
		if c.file.Source == SourceServer {
			return c.loadLayer(ctx, gen, kind, false)
		}
		return nil
	}

	if err := refresh(layerstore.LayerPolygon); err != nil {
		return c.failUnlessStale("apply filter", err)
	}
	if c.showPoints {
		if err := refresh(layerstore.LayerPoints); err != nil && !errors.Is(err, client.ErrNotFound) {
			return c.failUnlessStale("apply filter", err)
		}
	}
	if c.showItems {
		if err := refresh(layerstore.LayerItems); err != nil && !errors.Is(err, client.ErrNotFound) {
			return c.failUnlessStale("apply filter", err)
		}
	}

	// The server scopes the version list by school, so the filter
	// narrows history too.
	if c.file.Source == SourceServer {
		if err := c.reloadHistory(ctx, gen, false); err != nil && !errors.Is(err, errStaleLoad) {
			c.report(fmt.Sprintf("refresh history: %v", err))
		}
	}

	if school == "" {
		c.report("filter cleared")
	} else {
		c.report("filtering by " + school)
	}
	return nil
}

// ToggleEdit opens or closes the edit session for a layer and returns
// the resulting state. Enabling fails while a filter or historical
// selection is active, or when the layer has nothing to edit.
func (c *Controller) ToggleEdit(kind layerstore.Kind) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	on, err := c.edits.Toggle(kind)
	if err != nil {
		c.report(fmt.Sprintf("edit %s: %v", kind, err))
		return on, err
	}
	if on {
		c.report("editing " + string(kind))
	} else {
		c.report("edit session closed for " + string(kind))
	}
	return on, nil
}

// SaveLayer uploads the layer's current overlays as the file's new
// head and adopts them as the original snapshot. Only the polygon and
// points layers of a server-backed, unfiltered context are saveable.
func (c *Controller) SaveLayer(ctx context.Context, kind layerstore.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if kind != layerstore.LayerPolygon && kind != layerstore.LayerPoints {
		return c.fail("save "+string(kind), ErrNotSaveable)
	}
	if c.file.Source == SourceNone {
		return c.fail("save "+string(kind), ErrNoFile)
	}
	if !c.file.Editable() {
		return c.fail("save "+string(kind), ErrReadOnlySource)
	}
	if c.schoolFilter != "" {
		return c.fail("save "+string(kind), ErrFilterActive)
	}

	fc := c.layers.ToGeoJSON(kind)
	file := c.file.Name
	gen := c.gen

	c.mu.Unlock()
	var err error
	if kind == layerstore.LayerPolygon {
		err = c.api.SavePolygons(ctx, file, fc)
	} else {
		err = c.api.SavePoints(ctx, file, fc)
	}
	c.mu.Lock()

	if err != nil {
		return c.fail("save "+string(kind), err)
	}
	if gen == c.gen {
		// A save mints a new head, so what we uploaded is now the
		// baseline that resets return to.
		c.layers.SetOriginal(kind, fc)
		c.hist.Invalidate(file)
		if err := c.reloadHistory(ctx, gen, false); err != nil && !errors.Is(err, errStaleLoad) {
			c.report(fmt.Sprintf("refresh history: %v", err))
		}
	}
	c.report("saved " + string(kind) + " for " + file)
	return nil
}

// SaveAll asks the server to persist every file into the database and
// reports per-file failures in the status line.
func (c *Controller) SaveAll(ctx context.Context) (*client.SaveAllResult, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	res, err := c.api.SaveAll(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		return nil, c.fail("save all", err)
	}
	if n := len(res.Errors); n > 0 {
		c.report(fmt.Sprintf("database save finished with %d failures", n))
	} else {
		c.report("database save complete")
	}
	if gen == c.gen && c.file.Source == SourceServer {
		c.hist.Invalidate(c.file.Name)
		if err := c.reloadHistory(ctx, gen, false); err != nil && !errors.Is(err, errStaleLoad) {
			c.report(fmt.Sprintf("refresh history: %v", err))
		}
	}
	return res, nil
}

// ResetEdits discards unsaved changes. Server files force a reload
// from the server so the baseline is authoritative even if the cache
// went stale; local and historical contexts re-render from the
// retained original snapshots.
func (c *Controller) ResetEdits(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file.Source == SourceNone {
		return c.fail("reset", ErrNoFile)
	}
	c.edits.DisableAll()

	if c.file.Source == SourceServer {
		gen := c.gen
		if err := c.loadPolygons(ctx, gen, true); err != nil {
			return c.failUnlessStale("reset", err)
		}
		if c.showPoints {
			if err := c.loadLayer(ctx, gen, layerstore.LayerPoints, true); err != nil && !errors.Is(err, client.ErrNotFound) {
				return c.failUnlessStale("reset", err)
			}
		}
		if c.showItems {
			if err := c.loadLayer(ctx, gen, layerstore.LayerItems, true); err != nil && !errors.Is(err, client.ErrNotFound) {
				return c.failUnlessStale("reset", err)
			}
		}
	} else {
		for _, kind := range layerstore.Kinds {
			orig := c.layers.Original(kind)
			if orig == nil {
				c.layers.Clear(kind)
				continue
			}
			if err := c.layers.Render(kind, geo.FilterBySchool(orig, c.schoolFilter), layerstore.RenderOptions{SkipOriginal: true}); err != nil {
				return c.fail("reset", err)
			}
		}
	}
	c.report("edits reset")
	return nil
}

// SelectHistory renders a historical snapshot read-only on top of the
// active file. The current originals are retained so clearing the
// selection restores the head without a refetch.
func (c *Controller) SelectHistory(ctx context.Context, saveID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file.Source == SourceNone {
		return c.fail("view version", ErrNoFile)
	}

	c.gen++
	gen := c.gen
	c.edits.DisableAll()

	snap, err := c.fetchSnapshot(ctx, gen, saveID)
	if err != nil {
		return c.failUnlessStale("view version", err)
	}

	if err := c.layers.Render(layerstore.LayerPolygon, snap.Polygons, layerstore.RenderOptions{SkipOriginal: true}); err != nil {
		return c.fail("view version", err)
	}
	if snap.Points != nil {
		if err := c.layers.Render(layerstore.LayerPoints, snap.Points, layerstore.RenderOptions{SkipOriginal: true}); err != nil {
			return c.fail("view version", err)
		}
	} else {
		c.layers.Clear(layerstore.LayerPoints)
	}
	// Snapshots never carry items.
	c.layers.Clear(layerstore.LayerItems)

	c.file.Source = SourceHistory
	c.selectedSave = saveID
	c.report("viewing version " + saveID)
	return nil
}

// ClearHistorySelection leaves snapshot view and re-renders the head
// from the retained originals.
func (c *Controller) ClearHistorySelection() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selectedSave == "" {
		return nil
	}
	c.edits.DisableAll()
	c.selectedSave = ""
	c.file.Source = SourceServer

	for _, kind := range layerstore.Kinds {
		orig := c.layers.Original(kind)
		if orig == nil {
			c.layers.Clear(kind)
			continue
		}
		if kind != layerstore.LayerPolygon {
			if (kind == layerstore.LayerPoints && !c.showPoints) || (kind == layerstore.LayerItems && !c.showItems) {
				c.layers.Clear(kind)
				continue
			}
		}
		if err := c.layers.Render(kind, geo.FilterBySchool(orig, c.schoolFilter), layerstore.RenderOptions{SkipOriginal: true}); err != nil {
			return c.fail("leave version view", err)
		}
	}
	c.report("returned to current version")
	return nil
}

// PromoteHistory makes a snapshot the file's new head: its layers are
// rendered as fresh originals, the context returns to server-backed,
// and the history list is invalidated and reloaded.
func (c *Controller) PromoteHistory(ctx context.Context, saveID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file.Source == SourceNone {
		return c.fail("restore version", ErrNoFile)
	}

	c.gen++
	gen := c.gen
	c.edits.DisableAll()

	snap, err := c.fetchSnapshot(ctx, gen, saveID)
	if err != nil {
		return c.failUnlessStale("restore version", err)
	}

	if err := c.layers.Render(layerstore.LayerPolygon, snap.Polygons, layerstore.RenderOptions{}); err != nil {
		return c.fail("restore version", err)
	}
	c.schoolOptions = geo.SchoolNames(snap.Polygons)
	if snap.Points != nil {
		if err := c.layers.Render(layerstore.LayerPoints, snap.Points, layerstore.RenderOptions{}); err != nil {
			return c.fail("restore version", err)
		}
	} else {
		c.layers.Clear(layerstore.LayerPoints)
	}
	c.layers.Clear(layerstore.LayerItems)

	name := snap.FileName
	if name == "" {
		name = c.file.Name
	}
	c.file = FileContext{Name: name, Source: SourceServer}
	c.selectedSave = ""
	c.schoolFilter = ""

	c.hist.Invalidate(name)
	if err := c.reloadHistory(ctx, gen, false); err != nil && !errors.Is(err, errStaleLoad) {
		c.report(fmt.Sprintf("refresh history: %v", err))
	}
	c.report("restored version " + saveID)
	return nil
}

// beginContextSwitch clears all per-file state and bumps the
// generation so in-flight fetches for the previous context discard
// their results. Caller holds c.mu.
func (c *Controller) beginContextSwitch() uint64 {
	c.gen++
	c.edits.DisableAll()
	c.layers.ClearAll()
	c.layers.DropOriginals()
	c.schoolFilter = ""
	c.schoolOptions = nil
	c.selectedSave = ""
	c.versions = nil
	return c.gen
}

// loadPolygons fetches and renders the polygon layer and refreshes the
// school options. Caller holds c.mu.
func (c *Controller) loadPolygons(ctx context.Context, gen uint64, force bool) error {
	fc, err := c.fetch(ctx, gen, force, c.api.Polygons)
	if err != nil {
		return err
	}
	c.schoolOptions = geo.SchoolNames(fc)
	return c.renderLoaded(layerstore.LayerPolygon, fc)
}

// loadLayer fetches and renders the points or items layer. Caller
// holds c.mu.
func (c *Controller) loadLayer(ctx context.Context, gen uint64, kind layerstore.Kind, force bool) error {
	get := c.api.Points
	if kind == layerstore.LayerItems {
		get = c.api.Items
	}
	fc, err := c.fetch(ctx, gen, force, get)
	if err != nil {
		return err
	}
	return c.renderLoaded(kind, fc)
}

// renderLoaded renders a freshly fetched collection, honoring the
// active school filter while keeping the full collection as the
// original snapshot. Caller holds c.mu.
func (c *Controller) renderLoaded(kind layerstore.Kind, fc *geojson.FeatureCollection) error {
	if c.schoolFilter != "" {
		if err := c.layers.Render(kind, geo.FilterBySchool(fc, c.schoolFilter), layerstore.RenderOptions{SkipOriginal: true}); err != nil {
			return err
		}
		c.layers.SetOriginal(kind, fc)
		return nil
	}
	return c.layers.Render(kind, fc, layerstore.RenderOptions{})
}

// fetch runs one layer fetch with the lock released, then rechecks the
// generation. Caller holds c.mu.
func (c *Controller) fetch(ctx context.Context, gen uint64, force bool, get func(context.Context, string, bool) (*geojson.FeatureCollection, error)) (*geojson.FeatureCollection, error) {
	file := c.file.Name
	c.mu.Unlock()
	fc, err := get(ctx, file, force)
	c.mu.Lock()
	if err != nil {
		return nil, err
	}
	if gen != c.gen {
		return nil, errStaleLoad
	}
	return fc, nil
}

// fetchSnapshot loads one historical version with the lock released.
// Caller holds c.mu.
func (c *Controller) fetchSnapshot(ctx context.Context, gen uint64, saveID string) (*client.HistorySnapshot, error) {
	c.mu.Unlock()
	snap, err := c.hist.Get(ctx, saveID)
	c.mu.Lock()
	if err != nil {
		return nil, err
	}
	if gen != c.gen {
		return nil, errStaleLoad
	}
	return snap, nil
}

// reloadHistory refreshes the version list for the active file and
// filter. Caller holds c.mu.
func (c *Controller) reloadHistory(ctx context.Context, gen uint64, force bool) error {
	file := c.file.Name
	school := c.schoolFilter
	c.mu.Unlock()
	versions, err := c.hist.List(ctx, file, school, force)
	c.mu.Lock()
	if err != nil {
		return err
	}
	if gen != c.gen {
		return errStaleLoad
	}
	c.versions = versions
	return nil
}

func (c *Controller) report(msg string) {
	if c.status != nil {
		c.status(msg)
	}
}

func (c *Controller) fail(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	c.report(err.Error())
	return err
}

// failUnlessStale suppresses the status message for stale loads: the
// intent that superseded us already reported its own outcome.
func (c *Controller) failUnlessStale(op string, err error) error {
	if errors.Is(err, errStaleLoad) {
		return err
	}
	return c.fail(op, err)
}
