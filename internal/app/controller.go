// Package app holds the controller that ties the feed, the aircraft store,
// the viewport and the render loop together. Every method must be called
// from the same goroutine; the terminal viewer calls them from its Update
// loop and forwards feed callbacks there as messages.
package app

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/ads-livemap/pkg/adsb"
	"github.com/unklstewy/ads-livemap/pkg/coordinates"
	"github.com/unklstewy/ads-livemap/pkg/feed"
	"github.com/unklstewy/ads-livemap/pkg/icons"
	"github.com/unklstewy/ads-livemap/pkg/render"
	"github.com/unklstewy/ads-livemap/pkg/scene"
	"github.com/unklstewy/ads-livemap/pkg/viewport"
)

// DetailsRenderer presents the selected aircraft.
type DetailsRenderer interface {
	// Show is called with the full record when a marker is activated and
	// again whenever the selected record changes
	Show(a adsb.Aircraft)

	// Close hides the details view
	Close()
}

// Options configures a Controller.
type Options struct {
	Render  render.Config
	MaxZoom float64

	// Details receives selection changes; nil discards them
	Details DetailsRenderer

	// MaxNotices bounds the notice history (default: 50)
	MaxNotices int

	Logger zerolog.Logger
}

// Controller is the live map's context object. It owns the store, the
// viewport, the mapper, the render loop, the icon set, the selection and
// the connection notices.
type Controller struct {
	doc     *scene.Document
	store   *adsb.Store
	view    *viewport.Engine
	mapper  *coordinates.Mapper
	loop    *render.Loop
	icons   *icons.Set
	details DetailsRenderer
	notices *Notices
	log     zerolog.Logger

	selected string
	frame    []render.Placement

	conn    feed.State
	attempt int
}

type discardDetails struct{}

func (discardDetails) Show(adsb.Aircraft) {}
func (discardDetails) Close()             {}

// New builds a controller over a parsed scene. A scene whose anchors cannot
// be solved falls back to the geographic mapping with a warning.
func New(doc *scene.Document, set *icons.Set, opts Options) *Controller {
	if opts.Details == nil {
		opts.Details = discardDetails{}
	}
	if opts.MaxNotices <= 0 {
		opts.MaxNotices = 50
	}
	if set == nil {
		set = icons.NewSet()
	}

	c := &Controller{
		doc:     doc,
		store:   adsb.NewStore(),
		icons:   set,
		details: opts.Details,
		notices: NewNotices(opts.MaxNotices),
		log:     opts.Logger,
		conn:    feed.Disconnected,
	}

	mapper, err := doc.Mapper()
	if err != nil {
		c.log.Warn().Err(err).Int("anchors", len(doc.Anchors)).Msg("Using geographic fallback mapping")
	}
	c.mapper = mapper

	c.view = viewport.New(viewport.FromExtent(doc.Extent), opts.MaxZoom)
	c.loop = render.NewLoop(opts.Render, c.store, c.mapper, c.view, c.icons)
	return c
}

// Store returns the aircraft store.
func (c *Controller) Store() *adsb.Store { return c.store }

// Viewport returns the pan/zoom engine.
func (c *Controller) Viewport() *viewport.Engine { return c.view }

// Loop returns the render loop.
func (c *Controller) Loop() *render.Loop { return c.loop }

// Scene returns the map document.
func (c *Controller) Scene() *scene.Document { return c.doc }

// Mapper returns the coordinate mapper in use.
func (c *Controller) Mapper() *coordinates.Mapper { return c.mapper }

// Notices returns the notice history.
func (c *Controller) Notices() *Notices { return c.notices }

// Frame returns the placements produced by the last Tick.
func (c *Controller) Frame() []render.Placement { return c.frame }

// Connection returns the feed state and the current retry attempt.
func (c *Controller) Connection() (feed.State, int) { return c.conn, c.attempt }

// Selected returns the selected aircraft ID.
func (c *Controller) Selected() (string, bool) {
	return c.selected, c.selected != ""
}

// SetIcons swaps in a loaded icon set.
func (c *Controller) SetIcons(set *icons.Set) {
	if set == nil {
		return
	}
	c.icons = set
	c.loop.SetIcons(set)
}

// Resize sets the drawing area in pixels.
func (c *Controller) Resize(width, height float64) {
	c.view.SetContainer(width, height)
}

// HandleMessage applies one feed message.
func (c *Controller) HandleMessage(msg feed.Message, now time.Time) {
	switch m := msg.(type) {
	case feed.InitialData:
		n := c.store.Replace(m.Aircraft, now)
		c.loop.Clear()
		for _, a := range c.store.List() {
			c.loop.Track(a)
		}
		c.log.Debug().Int("received", len(m.Aircraft)).Int("accepted", n).Msg("Initial data")
		c.refreshSelection()

	case feed.AircraftUpdate:
		for _, fields := range m.Aircraft {
			a, ok := c.store.Upsert(fields, now)
			if !ok {
				c.log.Debug().Interface("fields", fields).Msg("Dropping update without identifier")
				continue
			}
			c.loop.Track(a)
			if a.ID == c.selected {
				c.details.Show(a)
			}
		}

	case feed.AircraftRemoved:
		c.remove(m.ID)

	case feed.ServerShutdown:
		c.log.Info().Msg("Feed server shutting down")
		c.notices.Info("Feed server is shutting down")
		c.clearAll()

	case feed.Ignored:
		c.log.Warn().Str("type", m.Kind).Str("reason", m.Reason).Msg("Ignoring feed message")
	}
}

// HandleOpen records a successful connection.
func (c *Controller) HandleOpen() {
	c.conn = feed.Open
	c.attempt = 0
	c.notices.Info("Connected to live feed")
}

// HandleDisconnect clears every tracked aircraft so nothing stale is shown
// from a dead connection.
func (c *Controller) HandleDisconnect(err error) {
	c.clearAll()
	c.conn = feed.Error
	if err != nil {
		c.notices.Warn("Feed disconnected: %v", err)
	} else {
		c.notices.Warn("Feed disconnected")
	}
}

// HandleRetry records a scheduled reconnect. The client stays
// disconnected until the timer fires.
func (c *Controller) HandleRetry(attempt int, delay time.Duration) {
	c.conn = feed.Disconnected
	c.attempt = attempt
	c.notices.Info("Reconnecting in %s (attempt %d)", delay, attempt)
}

// HandleFailure records that automatic reconnects have stopped.
func (c *Controller) HandleFailure(err error) {
	c.conn = feed.Failed
	c.clearAll()
	c.notices.Error("Live feed unavailable: %v. Press r to retry", err)
}

// Tick advances the render loop and keeps the selection consistent with
// any aircraft the cleanup removed.
func (c *Controller) Tick(now time.Time) []render.Placement {
	c.frame = c.loop.Tick(now)
	for _, id := range c.loop.Purged() {
		c.log.Debug().Str("id", id).Msg("Purged stale aircraft")
		if id == c.selected {
			c.CloseDetails()
		}
	}
	return c.frame
}

// Select opens the details view for an aircraft.
func (c *Controller) Select(id string) bool {
	a, ok := c.store.FindByID(id)
	if !ok {
		return false
	}
	c.selected = a.ID
	c.details.Show(a)
	return true
}

// SelectNext moves the selection to the next aircraft in store order,
// wrapping around.
func (c *Controller) SelectNext() bool {
	id, ok := c.NextID(c.selected)
	if !ok {
		return false
	}
	return c.Select(id)
}

// NextID returns the aircraft after current in store order, wrapping
// around. An unknown or empty current yields the first aircraft.
func (c *Controller) NextID(current string) (string, bool) {
	ids := c.store.IDs()
	if len(ids) == 0 {
		return "", false
	}
	for i, id := range ids {
		if id == current {
			return ids[(i+1)%len(ids)], true
		}
	}
	return ids[0], true
}

// CloseDetails clears the selection.
func (c *Controller) CloseDetails() {
	if c.selected == "" {
		return
	}
	c.selected = ""
	c.details.Close()
}

// MarkerAt returns the marker under a container pixel, using the last
// frame. When markers overlap the closest centre wins.
func (c *Controller) MarkerAt(px, py float64) (string, bool) {
	pt := c.view.ScreenToScene(px, py)
	best, bestDist := "", math.Inf(1)
	for _, p := range c.frame {
		d := math.Hypot(pt.X-p.Scene.X, pt.Y-p.Scene.Y)
		if d <= p.Radius() && d < bestDist {
			best, bestDist = p.ID, d
		}
	}
	return best, best != ""
}

// Activate selects the marker under a pixel, or closes the details view
// when the click landed on empty map.
func (c *Controller) Activate(px, py float64) bool {
	if id, ok := c.MarkerAt(px, py); ok {
		return c.Select(id)
	}
	c.CloseDetails()
	return false
}

// ZoomAt zooms about a container pixel.
func (c *Controller) ZoomAt(px, py, factor float64) bool {
	return c.view.ZoomAt(px, py, factor)
}

// Pan moves the view by a pixel delta.
func (c *Controller) Pan(dx, dy float64) bool {
	return c.view.Pan(dx, dy)
}

// ResetView shows the whole scene.
func (c *Controller) ResetView() {
	c.view.Reset()
}

func (c *Controller) remove(id string) {
	c.store.Remove(id)
	c.loop.Remove(id)
	if id == c.selected {
		c.CloseDetails()
	}
}

func (c *Controller) clearAll() {
	c.store.Clear()
	c.loop.Clear()
	c.frame = nil
	c.CloseDetails()
}

// refreshSelection re-shows the selected record after a snapshot, or
// closes the view if the snapshot no longer has it.
func (c *Controller) refreshSelection() {
	if c.selected == "" {
		return
	}
	if a, ok := c.store.FindByID(c.selected); ok {
		c.details.Show(a)
		return
	}
	c.CloseDetails()
}
