package app

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/ads-livemap/pkg/adsb"
	"github.com/unklstewy/ads-livemap/pkg/coordinates"
	"github.com/unklstewy/ads-livemap/pkg/feed"
	"github.com/unklstewy/ads-livemap/pkg/render"
	"github.com/unklstewy/ads-livemap/pkg/scene"
)

var t0 = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

// recordingDetails records what the controller asked the details view to do.
type recordingDetails struct {
	shown  []adsb.Aircraft
	closed int
}

func (r *recordingDetails) Show(a adsb.Aircraft) { r.shown = append(r.shown, a) }
func (r *recordingDetails) Close()               { r.closed++ }

// newController builds a controller over an anchorless 360x180 scene, so
// positions use the geographic fallback, drawn into a 360x180 container.
func newController(t *testing.T) (*Controller, *recordingDetails) {
	t.Helper()
	details := &recordingDetails{}
	doc := &scene.Document{Extent: coordinates.Extent{Width: 360, Height: 180}}
	c := New(doc, nil, Options{
		Render:  render.DefaultConfig(),
		Details: details,
		Logger:  zerolog.Nop(),
	})
	c.Loop().SetRand(func() float64 { return 1 })
	c.Resize(360, 180)
	return c, details
}

func TestInitialDataThenUpdate(t *testing.T) {
	c, _ := newController(t)

	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{
		{"id": "A1", "latitude": 10.0, "longitude": 20.0, "heading": 90.0},
	}}, t0)

	if c.Store().Len() != 1 {
		t.Fatalf("Expected 1 aircraft, got %d", c.Store().Len())
	}
	a, ok := c.Store().FindByID("A1")
	if !ok {
		t.Fatal("Expected A1 in store")
	}
	lat, _ := a.Float(adsb.FieldLatitude)
	lon, _ := a.Float(adsb.FieldLongitude)
	if lat != 10 || lon != 20 || a.Heading != 90 {
		t.Errorf("Expected lat 10 lon 20 heading 90, got %+v", a.Fields)
	}

	c.HandleMessage(feed.AircraftUpdate{Aircraft: []map[string]any{
		{"id": "A1", "heading": 180.0},
	}}, t0.Add(time.Second))

	a, _ = c.Store().FindByID("A1")
	if lat, _ := a.Float(adsb.FieldLatitude); lat != 10 {
		t.Errorf("Expected latitude to stay 10, got %v", lat)
	}
	if lon, _ := a.Float(adsb.FieldLongitude); lon != 20 {
		t.Errorf("Expected longitude to stay 20, got %v", lon)
	}
	if a.Heading != 180 {
		t.Errorf("Expected heading 180, got %v", a.Heading)
	}
	if c.Loop().Len() != 1 {
		t.Errorf("Expected 1 marker, got %d", c.Loop().Len())
	}
}

func TestInitialDataReplacesEverything(t *testing.T) {
	c, _ := newController(t)
	c.HandleMessage(feed.AircraftUpdate{Aircraft: []map[string]any{{"id": "OLD"}}}, t0)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "NEW"}}}, t0)

	if _, ok := c.Store().FindByID("OLD"); ok {
		t.Error("Expected snapshot to drop OLD")
	}
	if _, ok := c.Loop().Marker("OLD"); ok {
		t.Error("Expected OLD marker to be dropped")
	}
	if _, ok := c.Loop().Marker("NEW"); !ok {
		t.Error("Expected NEW marker")
	}
}

func TestRemovalClosesDetails(t *testing.T) {
	c, details := newController(t)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{
		{"id": "A1", "latitude": 10.0, "longitude": 20.0},
	}}, t0)

	if !c.Select("A1") {
		t.Fatal("Expected A1 to be selectable")
	}
	if len(details.shown) != 1 || details.shown[0].ID != "A1" {
		t.Fatalf("Expected details for A1, got %+v", details.shown)
	}

	c.HandleMessage(feed.AircraftRemoved{ID: "A1"}, t0)

	if _, ok := c.Store().FindByID("A1"); ok {
		t.Error("Expected A1 removed from store")
	}
	if _, ok := c.Loop().Marker("A1"); ok {
		t.Error("Expected A1 marker removed")
	}
	if _, ok := c.Selected(); ok {
		t.Error("Expected selection cleared")
	}
	if details.closed != 1 {
		t.Errorf("Expected details closed once, got %d", details.closed)
	}
}

func TestRemovalOfOtherAircraftKeepsDetails(t *testing.T) {
	c, details := newController(t)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "A1"}, {"id": "B2"}}}, t0)
	c.Select("A1")

	c.HandleMessage(feed.AircraftRemoved{ID: "B2"}, t0)

	if id, ok := c.Selected(); !ok || id != "A1" {
		t.Errorf("Expected A1 to stay selected, got %q", id)
	}
	if details.closed != 0 {
		t.Errorf("Expected details to stay open, closed %d times", details.closed)
	}
}

func TestUpdateRefreshesSelectedDetails(t *testing.T) {
	c, details := newController(t)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "A1", "callsign": "ABC"}}}, t0)
	c.Select("A1")

	c.HandleMessage(feed.AircraftUpdate{Aircraft: []map[string]any{{"id": "A1", "callsign": "XYZ"}}}, t0)

	last := details.shown[len(details.shown)-1]
	if last.Callsign != "XYZ" {
		t.Errorf("Expected refreshed callsign XYZ, got %s", last.Callsign)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	c, details := newController(t)
	c.HandleOpen()
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "A1"}}}, t0)
	c.Select("A1")

	if state, _ := c.Connection(); state != feed.Open {
		t.Errorf("Expected open, got %s", state)
	}

	c.HandleDisconnect(errors.New("connection reset"))
	if c.Store().Len() != 0 || c.Loop().Len() != 0 {
		t.Errorf("Expected disconnect to clear store and markers, got %d/%d", c.Store().Len(), c.Loop().Len())
	}
	if details.closed != 1 {
		t.Errorf("Expected details closed on disconnect, got %d", details.closed)
	}

	c.HandleRetry(2, 2*time.Second)
	if state, attempt := c.Connection(); state != feed.Disconnected || attempt != 2 {
		t.Errorf("Expected disconnected with attempt 2 pending, got %s attempt %d", state, attempt)
	}

	c.HandleFailure(errors.New("retries exhausted"))
	state, _ := c.Connection()
	if state != feed.Failed {
		t.Errorf("Expected failed, got %s", state)
	}
	n, ok := c.Notices().Latest()
	if !ok || n.Level != LevelError {
		t.Fatalf("Expected an error notice, got %+v", n)
	}
	if !strings.Contains(n.Message, "retries exhausted") {
		t.Errorf("Expected failure reason in notice, got %q", n.Message)
	}
}

func TestServerShutdownClears(t *testing.T) {
	c, _ := newController(t)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "A1"}, {"id": "B2"}}}, t0)
	c.HandleMessage(feed.ServerShutdown{}, t0)

	if c.Store().Len() != 0 {
		t.Errorf("Expected empty store, got %d", c.Store().Len())
	}
	if c.Loop().Len() != 0 {
		t.Errorf("Expected no markers, got %d", c.Loop().Len())
	}
}

func TestIgnoredLeavesState(t *testing.T) {
	var buf bytes.Buffer
	doc := &scene.Document{Extent: coordinates.Extent{Width: 360, Height: 180}}
	c := New(doc, nil, Options{Render: render.DefaultConfig(), Logger: zerolog.New(&buf)})
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "A1"}}}, t0)
	buf.Reset()

	c.HandleMessage(feed.Ignored{Kind: "weather", Reason: "unknown type"}, t0)

	if c.Store().Len() != 1 {
		t.Errorf("Expected store untouched, got %d", c.Store().Len())
	}
	if n := strings.Count(buf.String(), "Ignoring feed message"); n != 1 {
		t.Errorf("Expected one warning for the ignored message, got %d: %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"type":"weather"`) {
		t.Errorf("Expected message type in warning, got: %s", buf.String())
	}
}

func TestMarkerHitTesting(t *testing.T) {
	c, details := newController(t)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{
		{"id": "A1", "latitude": 0.0, "longitude": 0.0},
	}}, t0)
	c.Tick(t0)

	// lat 0 lon 0 maps to the centre of the 360x180 scene.
	id, ok := c.MarkerAt(180, 90)
	if !ok || id != "A1" {
		t.Fatalf("Expected A1 under the centre, got %q", id)
	}
	if _, ok := c.MarkerAt(10, 10); ok {
		t.Error("Expected no marker in the corner")
	}

	if !c.Activate(181, 91) {
		t.Fatal("Expected click near the centre to select A1")
	}
	if len(details.shown) != 1 {
		t.Errorf("Expected details shown once, got %d", len(details.shown))
	}

	if c.Activate(10, 10) {
		t.Error("Expected click on empty map not to select")
	}
	if details.closed != 1 {
		t.Errorf("Expected empty click to close details, got %d", details.closed)
	}
}

func TestPurgeClosesDetails(t *testing.T) {
	c, details := newController(t)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "A1"}}}, t0)
	c.Select("A1")

	c.Loop().SetRand(func() float64 { return 0 })
	c.Tick(t0.Add(31 * time.Second))

	if c.Store().Len() != 0 {
		t.Errorf("Expected stale aircraft purged, got %d", c.Store().Len())
	}
	if details.closed != 1 {
		t.Errorf("Expected details closed after purge, got %d", details.closed)
	}
}

func TestSelectNextWraps(t *testing.T) {
	c, _ := newController(t)
	c.HandleMessage(feed.InitialData{Aircraft: []map[string]any{{"id": "A1"}, {"id": "B2"}}}, t0)

	want := []string{"A1", "B2", "A1"}
	for i, w := range want {
		if !c.SelectNext() {
			t.Fatalf("Step %d: expected a selection", i)
		}
		if id, _ := c.Selected(); id != w {
			t.Errorf("Step %d: expected %s, got %s", i, w, id)
		}
	}
}

func TestSelectUnknown(t *testing.T) {
	c, details := newController(t)
	if c.Select("nope") {
		t.Error("Expected unknown ID not to be selectable")
	}
	if len(details.shown) != 0 {
		t.Errorf("Expected no details shown, got %d", len(details.shown))
	}
}
