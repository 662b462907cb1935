package scene

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unklstewy/ads-livemap/pkg/backoff"
	"github.com/unklstewy/ads-livemap/pkg/coordinates"
)

const worldMap = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 2000 1000" width="800" height="400">
  <defs>
    <rect id="ignored" x="0" y="0" width="5" height="5"/>
  </defs>
  <rect x="0" y="0" width="2000" height="1000" fill="#ffffff"/>
  <rect x="10" y="10" width="50" height="20" style="stroke:#000; fill: white"/>
  <rect x="100" y="100" width="300" height="200" fill="#334455"/>
  <line x1="0" y1="500" x2="2000" y2="500"/>
  <polyline points="10,10 20,20 30,10"/>
  <g id="anchors">
    <circle cx="100" cy="900" r="4" data-world-x="-1000" data-world-z="-500"/>
    <circle cx="1900" cy="900" r="4" data-world-x="1000" data-world-z="-500"/>
    <circle data-scene-x="1000" data-scene-y="100" cx="1" cy="1" r="4" data-world-x="0" data-world-z="500"/>
    <circle cx="5" cy="5" r="1" data-lat="51" data-lon="0"/>
    <circle r="1" data-world-x="3" data-world-z="3"/>
  </g>
</svg>`

func TestParseWorldMap(t *testing.T) {
	doc, err := Parse(strings.NewReader(worldMap))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := coordinates.Extent{X: 0, Y: 0, Width: 2000, Height: 1000}
	if doc.Extent != want || doc.ExtentSource != ExtentViewBox {
		t.Errorf("Expected extent %+v from viewBox, got %+v from %s", want, doc.Extent, doc.ExtentSource)
	}

	if doc.RemovedBackgrounds != 2 {
		t.Errorf("Expected 2 background rects removed, got %d", doc.RemovedBackgrounds)
	}

	if doc.AnchorKind != coordinates.KindWorld {
		t.Errorf("Expected world anchors, got %s", doc.AnchorKind)
	}
	if len(doc.Anchors) != 3 {
		t.Fatalf("Expected 3 anchors, got %d", len(doc.Anchors))
	}
	// Explicit scene attributes win over the circle centre
	if got := doc.Anchors[2].Scene; got != (coordinates.Point{X: 1000, Y: 100}) {
		t.Errorf("Expected explicit scene point (1000, 100), got %+v", got)
	}
	// One geo anchor of the wrong kind, one world anchor with no position
	if doc.SkippedAnchors != 2 {
		t.Errorf("Expected 2 skipped anchors, got %d", doc.SkippedAnchors)
	}

	// rect + line + polyline + 5 circles; the defs rect is hidden
	if len(doc.Shapes) != 8 {
		t.Errorf("Expected 8 shapes, got %d", len(doc.Shapes))
	}
}

func TestDocumentMapper(t *testing.T) {
	doc, err := Parse(strings.NewReader(worldMap))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	m, err := doc.Mapper()
	if err != nil {
		t.Fatalf("Expected affine transform, got %v", err)
	}
	if !m.HasAffine() || m.AnchorKind() != coordinates.KindWorld {
		t.Fatal("Expected a world affine mapper")
	}

	for _, a := range doc.Anchors {
		got, ok := m.ToScene(coordinates.World(a.Domain.X, a.Domain.Y))
		if !ok {
			t.Fatal("Expected anchor to be mappable")
		}
		if math.Abs(got.X-a.Scene.X) > 1e-6 || math.Abs(got.Y-a.Scene.Y) > 1e-6 {
			t.Errorf("Expected %+v, got %+v", a.Scene, got)
		}
	}
}

func TestDocumentMapperFallback(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<svg viewBox="0 0 360 180">
		<circle cx="0" cy="0" r="1" data-lat="0" data-lon="0"/>
		<circle cx="10" cy="10" r="1" data-lat="1" data-lon="1"/>
		<circle cx="20" cy="20" r="1" data-lat="2" data-lon="2"/>
	</svg>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	m, err := doc.Mapper()
	if !errors.Is(err, coordinates.ErrCollinearAnchors) {
		t.Errorf("Expected ErrCollinearAnchors, got %v", err)
	}
	if m == nil || m.HasAffine() {
		t.Fatal("Expected a fallback mapper")
	}
	got, ok := m.ToScene(coordinates.Geo(0, 0))
	if !ok || got != (coordinates.Point{X: 180, Y: 90}) {
		t.Errorf("Expected fallback projection (180, 90), got %+v", got)
	}
}

func TestParseExtentFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantExtent coordinates.Extent
		wantSource ExtentSource
	}{
		{
			name:       "width and height",
			doc:        `<svg width="640px" height="480"><line x1="0" y1="0" x2="1" y2="1"/></svg>`,
			wantExtent: coordinates.Extent{Width: 640, Height: 480},
			wantSource: ExtentSize,
		},
		{
			name:       "shape bounds",
			doc:        `<svg width="100%" height="100%"><polygon points="10,20 110,20 110,70"/></svg>`,
			wantExtent: coordinates.Extent{X: 10, Y: 20, Width: 100, Height: 50},
			wantSource: ExtentBounds,
		},
		{
			name:       "default",
			doc:        `<svg></svg>`,
			wantExtent: coordinates.Extent{Width: DefaultSize, Height: DefaultSize},
			wantSource: ExtentDefault,
		},
		{
			name:       "invalid viewBox is ignored",
			doc:        `<svg viewBox="0 0 0 10" width="30" height="40"></svg>`,
			wantExtent: coordinates.Extent{Width: 30, Height: 40},
			wantSource: ExtentSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if doc.Extent != tt.wantExtent {
				t.Errorf("Expected extent %+v, got %+v", tt.wantExtent, doc.Extent)
			}
			if doc.ExtentSource != tt.wantSource {
				t.Errorf("Expected source %s, got %s", tt.wantSource, doc.ExtentSource)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(strings.NewReader(`<html><body/></html>`)); !errors.Is(err, ErrNoSVG) {
		t.Errorf("Expected ErrNoSVG, got %v", err)
	}
	if _, err := Parse(strings.NewReader(`<svg><line`)); err == nil {
		t.Error("Expected error for truncated document")
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name       string
		d          string
		wantLen    int
		wantLast   coordinates.Point
		wantClosed bool
	}{
		{"absolute lines", "M 0 0 L 10 0 L 10 10", 3, coordinates.Point{X: 10, Y: 10}, false},
		{"relative lines", "m5,5 l10,0 0,10", 3, coordinates.Point{X: 15, Y: 15}, false},
		{"implicit lineto after moveto", "M0 0 10 0 10 10z", 4, coordinates.Point{X: 0, Y: 0}, true},
		{"horizontal and vertical", "M0,0H20V30h-5v-5", 5, coordinates.Point{X: 15, Y: 25}, false},
		{"compact numbers", "M0-5L.5.5", 2, coordinates.Point{X: 0.5, Y: 0.5}, false},
		{"cubic is sampled", "M0 0C0 10 10 10 10 0", 1 + curveSegments, coordinates.Point{X: 10, Y: 0}, false},
		{"smooth cubic", "M0 0C0 10 10 10 10 0S20 -10 20 0", 1 + 2*curveSegments, coordinates.Point{X: 20, Y: 0}, false},
		{"quadratic", "M0 0Q5 10 10 0T20 0", 1 + 2*curveSegments, coordinates.Point{X: 20, Y: 0}, false},
		{"arc goes to endpoint", "M0 0A5 5 0 0 1 10 0", 2, coordinates.Point{X: 10, Y: 0}, false},
		{"exponent", "M1e1 0L2E1 1e-1", 2, coordinates.Point{X: 20, Y: 0.1}, false},
		{"stops at garbage", "M0 0L5 5X9 9", 2, coordinates.Point{X: 5, Y: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts, closed := ParsePath(tt.d)
			if len(pts) != tt.wantLen {
				t.Fatalf("Expected %d points, got %d: %v", tt.wantLen, len(pts), pts)
			}
			last := pts[len(pts)-1]
			if math.Abs(last.X-tt.wantLast.X) > 1e-9 || math.Abs(last.Y-tt.wantLast.Y) > 1e-9 {
				t.Errorf("Expected last point %+v, got %+v", tt.wantLast, last)
			}
			if closed != tt.wantClosed {
				t.Errorf("Expected closed=%v, got %v", tt.wantClosed, closed)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	policy := backoff.Policy{Base: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 3}

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(worldMap))
		}))
		defer server.Close()

		doc, err := Fetch(context.Background(), server.Client(), server.URL+"/map.svg", policy)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("Expected 3 requests, got %d", calls.Load())
		}
		if len(doc.Anchors) != 3 {
			t.Errorf("Expected 3 anchors, got %d", len(doc.Anchors))
		}
	})

	t.Run("404 is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.NotFound(w, r)
		}))
		defer server.Close()

		_, err := Fetch(context.Background(), server.Client(), server.URL+"/missing.svg", policy)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("Expected 1 request, got %d", calls.Load())
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := Fetch(context.Background(), server.Client(), server.URL, policy)
		if !errors.Is(err, backoff.ErrRetriesExhausted) {
			t.Errorf("Expected ErrRetriesExhausted, got %v", err)
		}
	})

	t.Run("local file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "map.svg")
		if err := os.WriteFile(path, []byte(worldMap), 0o644); err != nil {
			t.Fatalf("Failed to write map: %v", err)
		}
		doc, err := Fetch(context.Background(), nil, path, policy)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if doc.Extent.Width != 2000 {
			t.Errorf("Expected width 2000, got %.0f", doc.Extent.Width)
		}

		_, err = Fetch(context.Background(), nil, filepath.Join(t.TempDir(), "nope.svg"), policy)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
