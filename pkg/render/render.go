// Package render drives the per-frame marker animation: it smooths each
// aircraft's position and heading toward the latest feed values, projects
// the result into the scene, and sizes every marker so it keeps a constant
// on-screen footprint at any zoom level.
package render

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/unklstewy/ads-livemap/pkg/adsb"
	"github.com/unklstewy/ads-livemap/pkg/coordinates"
	"github.com/unklstewy/ads-livemap/pkg/icons"
	"github.com/unklstewy/ads-livemap/pkg/viewport"
)

// Config tunes the render loop.
type Config struct {
	// Smoothing is the fraction of the remaining distance covered per frame (default: 0.14)
	Smoothing float64

	// MarkerPixels is the on-screen size of a marker's larger side (default: 24)
	MarkerPixels float64

	// StaleAfter is how long an aircraft may go without updates before it is purged (default: 30s)
	StaleAfter time.Duration

	// CleanupChance is the per-frame probability of running a purge (default: 0.01)
	CleanupChance float64
}

// DefaultConfig returns the standard render settings.
func DefaultConfig() Config {
	return Config{
		Smoothing:     0.14,
		MarkerPixels:  24,
		StaleAfter:    30 * time.Second,
		CleanupChance: 0.01,
	}
}

// State is a marker's lifecycle state. Removed markers no longer exist.
type State int

const (
	// Active markers are interpolating toward their latest target
	Active State = iota

	// Stale markers have had no update for longer than StaleAfter and
	// will be removed on the next cleanup
	Stale
)

func (s State) String() string {
	if s == Stale {
		return "stale"
	}
	return "active"
}

// Marker is the interpolation state for one aircraft.
type Marker struct {
	ID       string
	Category string

	Displayed coordinates.Position
	Target    coordinates.Position

	Heading       float64
	TargetHeading float64
}

// Placement is where and how to draw one marker this frame.
type Placement struct {
	ID       string
	Category string
	State    State

	// Scene is the marker's centre in scene units
	Scene coordinates.Point

	// Heading is the smoothed heading in degrees
	Heading float64

	// Rotation in radians, clockwise positive in the y-down scene
	Rotation float64

	// Scale converts icon units to scene units
	Scale float64

	// Offset translates the scaled icon so its bounding box is centred on Scene
	Offset coordinates.Point

	Geometry icons.Geometry
}

// Transform maps a point in icon units into scene units: centre, scale,
// rotate by heading, then move onto the marker position.
func (p Placement) Transform(pt coordinates.Point) coordinates.Point {
	x := pt.X*p.Scale + p.Offset.X
	y := pt.Y*p.Scale + p.Offset.Y
	sin, cos := math.Sincos(p.Rotation)
	return coordinates.Point{
		X: p.Scene.X + x*cos - y*sin,
		Y: p.Scene.Y + x*sin + y*cos,
	}
}

// Radius returns the scene-unit distance from the centre to the furthest
// corner of the icon's bounding box, for hit testing.
func (p Placement) Radius() float64 {
	return math.Hypot(p.Geometry.Bounds.Width, p.Geometry.Bounds.Height) * p.Scale / 2
}

// Loop owns the marker set. It reads the store, mapper, viewport and icon
// set on every Tick. Not safe for concurrent use.
type Loop struct {
	cfg     Config
	store   *adsb.Store
	mapper  *coordinates.Mapper
	view    *viewport.Engine
	icons   *icons.Set
	markers map[string]*Marker
	rand    func() float64
	purged  []string
	frames  uint64
}

// NewLoop creates a render loop over the given collaborators. Zero config
// fields take their defaults.
func NewLoop(cfg Config, store *adsb.Store, mapper *coordinates.Mapper, view *viewport.Engine, set *icons.Set) *Loop {
	def := DefaultConfig()
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.MarkerPixels <= 0 {
		cfg.MarkerPixels = def.MarkerPixels
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.CleanupChance < 0 {
		cfg.CleanupChance = def.CleanupChance
	}
	if set == nil {
		set = icons.NewSet()
	}
	return &Loop{
		cfg:     cfg,
		store:   store,
		mapper:  mapper,
		view:    view,
		icons:   set,
		markers: make(map[string]*Marker),
		rand:    rand.Float64,
	}
}

// Config returns the effective configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// SetRand replaces the random source used for the cleanup check.
func (l *Loop) SetRand(fn func() float64) {
	l.rand = fn
}

// SetMapper replaces the coordinate mapper, e.g. after a scene reload.
func (l *Loop) SetMapper(m *coordinates.Mapper) {
	l.mapper = m
}

// SetIcons replaces the icon set.
func (l *Loop) SetIcons(set *icons.Set) {
	if set != nil {
		l.icons = set
	}
}

// Track sets the target for an aircraft's marker. A new marker starts at
// its target so it appears in place instead of flying in.
func (l *Loop) Track(a adsb.Aircraft) {
	heading := coordinates.NormalizeHeading(a.Heading)
	m, ok := l.markers[a.ID]
	if !ok {
		m = &Marker{
			ID:        a.ID,
			Displayed: a.Position,
			Heading:   heading,
		}
		l.markers[a.ID] = m
	}
	m.Target = a.Position
	m.TargetHeading = heading
	m.Category = icons.CategoryFor(a.Type)
}

// Remove drops a marker. It reports whether one existed.
func (l *Loop) Remove(id string) bool {
	if _, ok := l.markers[id]; !ok {
		return false
	}
	delete(l.markers, id)
	return true
}

// Clear drops every marker.
func (l *Loop) Clear() {
	clear(l.markers)
}

// Len returns the number of markers.
func (l *Loop) Len() int {
	return len(l.markers)
}

// Marker returns a copy of a marker's interpolation state.
func (l *Loop) Marker(id string) (Marker, bool) {
	m, ok := l.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Frames returns the number of Tick calls so far.
func (l *Loop) Frames() uint64 {
	return l.frames
}

// Purged returns the IDs removed by the cleanup during the last Tick.
func (l *Loop) Purged() []string {
	return l.purged
}

// Tick advances every marker by one frame and returns the placements to
// draw, in store order. Markers that cannot be mapped are skipped for this
// frame but kept.
func (l *Loop) Tick(now time.Time) []Placement {
	l.frames++
	l.purged = nil
	if l.cfg.CleanupChance > 0 && l.rand() < l.cfg.CleanupChance {
		l.purged = l.Purge(now)
	}

	if l.store == nil {
		return nil
	}

	ids := l.store.IDs()
	l.sync(ids)

	if l.mapper == nil || l.view == nil {
		return nil
	}

	upp := l.view.UnitsPerPixel()
	t := l.cfg.Smoothing
	out := make([]Placement, 0, len(ids))
	for _, id := range ids {
		m := l.markers[id]
		m.Displayed = m.Displayed.Lerp(m.Target, t)
		m.Heading = coordinates.LerpHeading(m.Heading, m.TargetHeading, t)

		pt, ok := l.mapper.ToScene(m.Displayed)
		if !ok {
			continue
		}

		geom := l.icons.Get(m.Category)
		scale := 0.0
		if size := geom.Size(); size > 0 {
			scale = l.cfg.MarkerPixels * upp / size
		}
		center := geom.Center()

		state := Active
		if last, ok := l.store.LastUpdate(id); ok && now.Sub(last) > l.cfg.StaleAfter {
			state = Stale
		}

		out = append(out, Placement{
			ID:       id,
			Category: m.Category,
			State:    state,
			Scene:    pt,
			Heading:  m.Heading,
			Rotation: m.Heading * coordinates.DegreesToRadians,
			Scale:    scale,
			Offset:   coordinates.Point{X: -center.X * scale, Y: -center.Y * scale},
			Geometry: geom,
		})
	}
	return out
}

// sync makes the marker set match the store: records without a marker get
// one, markers without a record are dropped.
func (l *Loop) sync(ids []string) {
	if len(ids) == len(l.markers) {
		missing := false
		for _, id := range ids {
			if _, ok := l.markers[id]; !ok {
				missing = true
				break
			}
		}
		if !missing {
			return
		}
	}

	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
		if _, ok := l.markers[id]; !ok {
			if a, found := l.store.FindByID(id); found {
				l.Track(a)
			}
		}
	}
	for id := range l.markers {
		if !keep[id] {
			delete(l.markers, id)
		}
	}
}

// Purge removes aircraft that have not been updated for longer than
// StaleAfter from both the store and the marker set, returning their IDs.
func (l *Loop) Purge(now time.Time) []string {
	if l.store == nil {
		return nil
	}
	stale := l.store.Stale(now, l.cfg.StaleAfter)
	for _, id := range stale {
		l.store.Remove(id)
		delete(l.markers, id)
	}
	return stale
}
