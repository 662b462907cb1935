package icons

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/unklstewy/ads-livemap/pkg/backoff"
	"github.com/unklstewy/ads-livemap/pkg/scene"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"B738", "jet"},
		{"B77W", "heavy"},
		{"b789", "heavy"},
		{" A320 ", "jet"},
		{"A388", "heavy"},
		{"C172", "light"},
		{"C177", "light"},
		{"C17", "heavy"},
		{"c17", "heavy"},
		{"C208", "turboprop"},
		{"C130", "turboprop"},
		{"BE20", "turboprop"},
		{"BE36", "light"},
		{"H60", "helicopter"},
		{"H25B", "jet"},
		{"GLID", "glider"},
		{"GLF5", "jet"},
		{"ZZZZ", DefaultCategory},
		{"", DefaultCategory},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := CategoryFor(tt.code); got != tt.expected {
				t.Errorf("CategoryFor(%q) = %s, expected %s", tt.code, got, tt.expected)
			}
		})
	}
}

func TestCategories(t *testing.T) {
	cats := Categories()
	want := []string{"default", "glider", "heavy", "helicopter", "jet", "light", "turboprop"}
	if strings.Join(cats, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, cats)
	}
	if !ValidCategory("jet") || ValidCategory("../etc") {
		t.Error("ValidCategory gave the wrong answer")
	}
}

func TestParseGeometry(t *testing.T) {
	g, err := ParseGeometry(strings.NewReader(`<svg viewBox="0 0 64 32"><path d="M32 0L64 32H0Z"/></svg>`))
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	if g.Size() != 64 {
		t.Errorf("Expected size 64, got %.1f", g.Size())
	}
	if c := g.Center(); c.X != 32 || c.Y != 16 {
		t.Errorf("Expected centre (32, 16), got (%.1f, %.1f)", c.X, c.Y)
	}
	if g.Fallback {
		t.Error("Expected parsed geometry not to be the fallback")
	}

	if _, err := ParseGeometry(strings.NewReader(`<svg viewBox="0 0 10 10"></svg>`)); !errors.Is(err, ErrNoGeometry) {
		t.Errorf("Expected ErrNoGeometry, got %v", err)
	}
}

func TestFallbackGeometry(t *testing.T) {
	g := FallbackGeometry()
	if g.Size() != 512 || !g.Fallback {
		t.Errorf("Expected 512 unit fallback, got size %.0f", g.Size())
	}
	// Nose points north: the topmost point sits on the vertical centre line
	nose := g.Shapes[0].Points[0]
	for _, p := range g.Shapes[0].Points {
		if p.Y < nose.Y {
			t.Errorf("Expected nose to be the topmost point, found %+v", p)
		}
	}
	if nose.X != g.Center().X {
		t.Errorf("Expected nose on centre line, got x=%.0f", nose.X)
	}
}

func TestSetLookup(t *testing.T) {
	s := NewSet()
	if !s.Get("jet").Fallback {
		t.Error("Expected empty set to return the fallback")
	}

	def := Geometry{Shapes: []scene.Shape{{Element: "line"}}}
	def.Bounds.Width, def.Bounds.Height = 10, 10
	s.Put(DefaultCategory, def)

	jet := Geometry{Shapes: []scene.Shape{{Element: "path"}}}
	jet.Bounds.Width, jet.Bounds.Height = 20, 20
	s.Put("jet", jet)

	if cat, g := s.ForType("A320"); cat != "jet" || g.Size() != 20 {
		t.Errorf("Expected jet geometry, got %s size %.0f", cat, g.Size())
	}
	if cat, g := s.ForType("R44"); cat != "helicopter" || g.Size() != 10 {
		t.Errorf("Expected default geometry for helicopter, got %s size %.0f", cat, g.Size())
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 loaded categories, got %d", s.Len())
	}
}

func TestLoad(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/icons/jet.svg":
			w.Write([]byte(`<svg viewBox="0 0 100 100"><polygon points="50,0 100,100 0,100"/></svg>`))
		case "/icons/default.svg":
			w.Write([]byte(`<svg viewBox="0 0 24 24"><rect x="4" y="4" width="16" height="16"/></svg>`))
		case "/icons/heavy.svg":
			w.Write([]byte(`not svg`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	policy := backoff.Policy{Base: time.Millisecond, Max: time.Millisecond, Multiplier: 2, MaxAttempts: 1}
	set, err := Load(context.Background(), server.Client(), server.URL+"/icons/", policy)

	if err == nil {
		t.Fatal("Expected an error describing the missing icons")
	}
	if !errors.Is(err, scene.ErrNotFound) {
		t.Errorf("Expected ErrNotFound among the failures, got %v", err)
	}
	if set == nil {
		t.Fatal("Expected a usable set despite failures")
	}
	if set.Len() != 2 {
		t.Errorf("Expected 2 loaded categories, got %d", set.Len())
	}
	if g := set.Get("jet"); g.Size() != 100 {
		t.Errorf("Expected jet icon size 100, got %.0f", g.Size())
	}
	if g := set.Get("heavy"); g.Size() != 24 {
		t.Errorf("Expected heavy to fall back to the default icon, got size %.0f", g.Size())
	}
}

func TestURL(t *testing.T) {
	if got := URL("http://host/assets/icons/", "jet"); got != "http://host/assets/icons/jet.svg" {
		t.Errorf("Expected trailing slash to be collapsed, got %s", got)
	}
}
