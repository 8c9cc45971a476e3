package mapsurface

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FakeOverlay is the overlay implementation used by the Fake surface.
// Tests mutate its geometry directly to simulate in-map edits.
type FakeOverlay struct {
	kind     OverlayKind
	geometry orb.Geometry
	props    geojson.Properties
}

func (o *FakeOverlay) Kind() OverlayKind { return o.kind }

func (o *FakeOverlay) Geometry() orb.Geometry { return o.geometry }

func (o *FakeOverlay) SetGeometry(g orb.Geometry) { o.geometry = g }

func (o *FakeOverlay) Properties() geojson.Properties { return o.props }

// Fake is an in-memory Surface for tests. It records rendered overlays,
// viewport fits, draggability, open edit handles, and click handlers.
type Fake struct {
	mu           sync.Mutex
	rendered     map[Overlay]bool
	draggable    map[Overlay]bool
	editHandles  map[Overlay]bool
	clicks       map[Overlay]func()
	viewportFits int
}

// NewFake creates an empty fake surface.
func NewFake() *Fake {
	return &Fake{
		rendered:    make(map[Overlay]bool),
		draggable:   make(map[Overlay]bool),
		editHandles: make(map[Overlay]bool),
		clicks:      make(map[Overlay]func()),
	}
}

func (f *Fake) NewMarker(p orb.Point, props geojson.Properties) Overlay {
	return &FakeOverlay{kind: KindMarker, geometry: p, props: props}
}

func (f *Fake) NewPolyline(ls orb.LineString, props geojson.Properties) Overlay {
	return &FakeOverlay{kind: KindPolyline, geometry: ls, props: props}
}

func (f *Fake) NewPolygon(pg orb.Polygon, props geojson.Properties) Overlay {
	return &FakeOverlay{kind: KindPolygon, geometry: pg, props: props}
}

func (f *Fake) Add(overlays ...Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range overlays {
		f.rendered[o] = true
	}
}

func (f *Fake) Remove(overlays ...Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range overlays {
		delete(f.rendered, o)
		delete(f.draggable, o)
		delete(f.editHandles, o)
		delete(f.clicks, o)
	}
}

func (f *Fake) FitViewport(overlays []Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewportFits++
}

func (f *Fake) SetDraggable(o Overlay, draggable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draggable[o] = draggable
}

func (f *Fake) OpenEditHandle(o Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editHandles[o] = true
}

func (f *Fake) CloseEditHandle(o Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.editHandles, o)
}

func (f *Fake) OnClick(o Overlay, handler func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if handler == nil {
		delete(f.clicks, o)
		return
	}
	f.clicks[o] = handler
}

// RenderedCount returns how many overlays are currently on the surface.
func (f *Fake) RenderedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rendered)
}

// IsRendered reports whether the overlay is on the surface.
func (f *Fake) IsRendered(o Overlay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rendered[o]
}

// IsDraggable reports the overlay's drag state.
func (f *Fake) IsDraggable(o Overlay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draggable[o]
}

// HasEditHandle reports whether an edit handle is open on the overlay.
func (f *Fake) HasEditHandle(o Overlay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editHandles[o]
}

// OpenEditHandleCount returns the number of overlays with open handles.
func (f *Fake) OpenEditHandleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.editHandles)
}

// ViewportFits returns how many times the viewport was fitted.
func (f *Fake) ViewportFits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewportFits
}

// Click invokes the overlay's click handler, if one is registered.
func (f *Fake) Click(o Overlay) {
	f.mu.Lock()
	handler := f.clicks[o]
	f.mu.Unlock()
	if handler != nil {
		handler()
	}
}

// HasClickHandler reports whether a click handler is registered.
func (f *Fake) HasClickHandler(o Overlay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clicks[o] != nil
}

var _ Surface = (*Fake)(nil)
