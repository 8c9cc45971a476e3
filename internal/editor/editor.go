// Package editor implements the per-layer edit session state machine.
//
// Each editable layer (polygon, points) is either Viewing or Editing.
// Entering Editing attaches the surface's editing affordances: vertex
// handles on polygon overlays, drag plus click-to-reposition on markers.
// Leaving Editing detaches them. Edits live only in the overlays; they
// are discarded when the layer is cleared or reloaded, so the session
// controller force-disables all sessions before any context change.
package editor

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/mirrorlake/geodesk/internal/layerstore"
	"github.com/mirrorlake/geodesk/internal/mapsurface"
)

// ErrNoOverlays rejects an edit toggle on a layer with nothing rendered.
var ErrNoOverlays = errors.New("layer has no rendered overlays")

// ErrNotEditable rejects an edit toggle on a layer that has no edit
// affordances (items).
var ErrNotEditable = errors.New("layer is not editable")

// ErrInvalidCoordinate rejects an operator-supplied coordinate that is
// not a pair of finite numbers.
var ErrInvalidCoordinate = errors.New("coordinate must be two finite numbers")

// CoordinateRequester asks the operator for a replacement coordinate,
// given a marker's current position. Returning ok=false cancels.
type CoordinateRequester interface {
	RequestCoordinate(current orb.Point) (p orb.Point, ok bool, err error)
}

// EditableLayers lists the layers that support editing.
var EditableLayers = []layerstore.Kind{layerstore.LayerPolygon, layerstore.LayerPoints}

// Controller tracks the edit session for each editable layer.
type Controller struct {
	surface mapsurface.Surface
	layers  *layerstore.Store
	prompt  CoordinateRequester

	// guard is consulted before entering Editing; a non-nil result
	// blocks the transition (e.g. a school filter is active).
	guard func() error

	active map[layerstore.Kind]bool
}

// New creates a controller over the given surface and layer store.
// prompt may be nil, in which case click-to-reposition is unavailable.
// guard may be nil.
func New(surface mapsurface.Surface, layers *layerstore.Store, prompt CoordinateRequester, guard func() error) *Controller {
	return &Controller{
		surface: surface,
		layers:  layers,
		prompt:  prompt,
		guard:   guard,
		active:  make(map[layerstore.Kind]bool),
	}
}

// Active reports whether the layer is currently in the Editing state.
func (c *Controller) Active(kind layerstore.Kind) bool {
	return c.active[kind]
}

// Toggle flips the layer's edit session and returns the new state.
func (c *Controller) Toggle(kind layerstore.Kind) (bool, error) {
	if c.active[kind] {
		c.Disable(kind)
		return false, nil
	}
	if err := c.Enable(kind); err != nil {
		return false, err
	}
	return true, nil
}

// Enable transitions the layer from Viewing to Editing. The transition
// is rejected if the layer is not editable, has no overlays, or the
// guard objects.
func (c *Controller) Enable(kind layerstore.Kind) error {
	if !isEditable(kind) {
		return fmt.Errorf("%s: %w", kind, ErrNotEditable)
	}
	if c.active[kind] {
		return nil
	}
	if c.layers.Count(kind) == 0 {
		return fmt.Errorf("%s: %w", kind, ErrNoOverlays)
	}
	if c.guard != nil {
		if err := c.guard(); err != nil {
			return err
		}
	}

	switch kind {
	case layerstore.LayerPolygon:
		for _, o := range c.layers.Overlays(kind) {
			if o.Kind() == mapsurface.KindPolygon {
				c.surface.OpenEditHandle(o)
			}
		}
	case layerstore.LayerPoints:
		for _, o := range c.layers.Overlays(kind) {
			if o.Kind() != mapsurface.KindMarker {
				continue
			}
			c.surface.SetDraggable(o, true)
			c.bindReposition(o)
		}
	}

	c.active[kind] = true
	return nil
}

// Disable transitions the layer back to Viewing, detaching all editing
// affordances. Safe to call in any state.
func (c *Controller) Disable(kind layerstore.Kind) {
	if !c.active[kind] {
		return
	}

	for _, o := range c.layers.Overlays(kind) {
		switch o.Kind() {
		case mapsurface.KindPolygon:
			c.surface.CloseEditHandle(o)
		case mapsurface.KindMarker:
			c.surface.SetDraggable(o, false)
			c.surface.OnClick(o, nil)
		}
	}
	c.active[kind] = false
}

// DisableAll force-disables every edit session. Invoked on file context
// changes, history loads, and filter changes: edits are not preserved
// across those transitions.
func (c *Controller) DisableAll() {
	for _, kind := range EditableLayers {
		c.Disable(kind)
	}
}

func (c *Controller) bindReposition(o mapsurface.Overlay) {
	if c.prompt == nil {
		return
	}
	c.surface.OnClick(o, func() {
		current, _ := o.Geometry().(orb.Point)
		p, ok, err := c.prompt.RequestCoordinate(current)
		if err != nil || !ok {
			return
		}
		if err := ValidateCoordinate(p); err != nil {
			return
		}
		o.SetGeometry(p)
	})
}

// ValidateCoordinate rejects coordinates that are not finite numbers.
func ValidateCoordinate(p orb.Point) error {
	for _, v := range []float64{p[0], p[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidCoordinate
		}
	}
	return nil
}

func isEditable(kind layerstore.Kind) bool {
	for _, k := range EditableLayers {
		if k == kind {
			return true
		}
	}
	return false
}
