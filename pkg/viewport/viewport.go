// Package viewport implements the pan/zoom engine for a 2D vector scene.
//
// The engine tracks which rectangle of the scene is visible (the view) and
// converts between container pixels and scene units. The view never leaves
// the scene's full extent and is never smaller than full/MaxZoom.
package viewport

import (
	"math"

	"github.com/unklstewy/ads-livemap/pkg/coordinates"
)

const (
	// DefaultMaxZoom is the deepest zoom relative to the full extent
	DefaultMaxZoom = 6.0

	// ZoomStep is the zoom factor applied per wheel notch or key press
	ZoomStep = 1.12

	// epsilon for comparing scene-unit sizes
	epsilon = 1e-9
)

// Rect is a rectangle in scene units.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// FromExtent converts a scene extent into a Rect.
func FromExtent(e coordinates.Extent) Rect {
	return Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
}

// Contains reports whether r lies entirely inside outer, allowing for
// floating point noise.
func (r Rect) Contains(outer Rect) bool {
	return r.X >= outer.X-epsilon &&
		r.Y >= outer.Y-epsilon &&
		r.X+r.Width <= outer.X+outer.Width+epsilon &&
		r.Y+r.Height <= outer.Y+outer.Height+epsilon
}

// Engine owns the visible region of the scene.
// Not safe for concurrent use.
type Engine struct {
	full    Rect
	view    Rect
	maxZoom float64

	containerW float64
	containerH float64
}

// New creates an engine showing the full extent. A maxZoom below 1 falls
// back to DefaultMaxZoom.
func New(full Rect, maxZoom float64) *Engine {
	if maxZoom < 1 || math.IsNaN(maxZoom) {
		maxZoom = DefaultMaxZoom
	}
	return &Engine{full: full, view: full, maxZoom: maxZoom}
}

// SetContainer sets the pixel size of the area the view is drawn into.
func (e *Engine) SetContainer(width, height float64) {
	e.containerW = width
	e.containerH = height
}

// Container returns the container's pixel size.
func (e *Engine) Container() (float64, float64) {
	return e.containerW, e.containerH
}

// View returns the visible rectangle.
func (e *Engine) View() Rect {
	return e.view
}

// Full returns the full extent.
func (e *Engine) Full() Rect {
	return e.full
}

// MaxZoom returns the deepest allowed zoom.
func (e *Engine) MaxZoom() float64 {
	return e.maxZoom
}

// Zoom returns the current magnification relative to the full extent.
func (e *Engine) Zoom() float64 {
	if e.view.Width <= 0 {
		return 1
	}
	return e.full.Width / e.view.Width
}

// UnitsPerPixel returns how many scene units one container pixel spans
// horizontally. Zero until a container size is set.
func (e *Engine) UnitsPerPixel() float64 {
	if e.containerW <= 0 {
		return 0
	}
	return e.view.Width / e.containerW
}

// Reset returns to the full, unzoomed view.
func (e *Engine) Reset() {
	e.view = e.full
}

// CanPan reports whether there is anything to pan into. A view equal to the
// full extent on both axes cannot move.
func (e *Engine) CanPan() bool {
	return e.view.Width < e.full.Width-epsilon || e.view.Height < e.full.Height-epsilon
}

// ScreenToScene converts a container pixel position to scene units.
func (e *Engine) ScreenToScene(px, py float64) coordinates.Point {
	if !e.hasContainer() {
		return coordinates.Point{X: e.view.X, Y: e.view.Y}
	}
	return coordinates.Point{
		X: e.view.X + px/e.containerW*e.view.Width,
		Y: e.view.Y + py/e.containerH*e.view.Height,
	}
}

// SceneToScreen converts a scene position to container pixels.
func (e *Engine) SceneToScreen(p coordinates.Point) (float64, float64) {
	if !e.hasContainer() || e.view.Width <= 0 || e.view.Height <= 0 {
		return 0, 0
	}
	return (p.X - e.view.X) / e.view.Width * e.containerW,
		(p.Y - e.view.Y) / e.view.Height * e.containerH
}

// ZoomAt zooms by factor (>1 zooms in) keeping the scene point under the
// pixel (px, py) fixed as far as the clamps allow. It reports whether the
// view changed.
//
// Size is clamped first, then the top-left corner is re-solved around the
// anchored point, then the position is clamped into the full extent.
// Reaching the full width snaps to the exact full view.
func (e *Engine) ZoomAt(px, py, factor float64) bool {
	if !e.hasContainer() || !(factor > 0) || math.IsInf(factor, 0) || math.Abs(factor-1) < epsilon {
		return false
	}

	anchor := e.ScreenToScene(px, py)

	minW := e.full.Width / e.maxZoom
	w := clamp(e.view.Width/factor, minW, e.full.Width)
	h := w * e.full.Height / e.full.Width

	var next Rect
	if w >= e.full.Width-epsilon {
		next = e.full
	} else {
		next = Rect{
			X:      anchor.X - px/e.containerW*w,
			Y:      anchor.Y - py/e.containerH*h,
			Width:  w,
			Height: h,
		}
		next = e.clampPosition(next)
	}

	if sameRect(next, e.view) {
		return false
	}
	e.view = next
	return true
}

// Pan moves the view by a pixel delta. Dragging right (dx > 0) moves the
// visible window left. It reports whether the view changed.
func (e *Engine) Pan(dx, dy float64) bool {
	if !e.hasContainer() || !e.CanPan() {
		return false
	}
	if math.IsNaN(dx) || math.IsNaN(dy) {
		return false
	}

	next := e.view
	next.X -= dx * e.view.Width / e.containerW
	next.Y -= dy * e.view.Height / e.containerH
	next = e.clampPosition(next)

	if sameRect(next, e.view) {
		return false
	}
	e.view = next
	return true
}

func (e *Engine) clampPosition(r Rect) Rect {
	r.X = clamp(r.X, e.full.X, e.full.X+e.full.Width-r.Width)
	r.Y = clamp(r.Y, e.full.Y, e.full.Y+e.full.Height-r.Height)
	return r
}

func sameRect(a, b Rect) bool {
	return math.Abs(a.X-b.X) < epsilon &&
		math.Abs(a.Y-b.Y) < epsilon &&
		math.Abs(a.Width-b.Width) < epsilon &&
		math.Abs(a.Height-b.Height) < epsilon
}

func (e *Engine) hasContainer() bool {
	return e.containerW > 0 && e.containerH > 0
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
