// Package icons maps aircraft type codes to marker categories and loads the
// vector geometry drawn for each category.
package icons

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/ads-livemap/pkg/backoff"
	"github.com/unklstewy/ads-livemap/pkg/coordinates"
	"github.com/unklstewy/ads-livemap/pkg/scene"
)

// DefaultCategory is used for type codes that match no table entry.
const DefaultCategory = "default"

// ErrNoGeometry is returned for icon documents with nothing to draw.
var ErrNoGeometry = errors.New("icon has no drawable geometry")

// exactTypes are designators that would collide with a shorter family
// prefix, such as the C-17 against the Cessna C17x singles.
var exactTypes = map[string]string{
	"C17": "heavy",
}

// categoryTable maps ICAO type designator prefixes to icon categories.
// The longest matching prefix wins.
var categoryTable = []struct {
	Prefix   string
	Category string
}{
	// Wide-body
	{"A33", "heavy"},
	{"A34", "heavy"},
	{"A35", "heavy"},
	{"A38", "heavy"},
	{"B74", "heavy"},
	{"B76", "heavy"},
	{"B77", "heavy"},
	{"B78", "heavy"},
	{"MD11", "heavy"},

	// Narrow-body and regional jets
	{"A2", "jet"},
	{"A3", "jet"},
	{"B7", "jet"},
	{"BCS", "jet"},
	{"CRJ", "jet"},
	{"E1", "jet"},
	{"E2", "jet"},
	{"GLF", "jet"},
	{"H25", "jet"},
	{"MD8", "jet"},

	// Turboprops
	{"AT4", "turboprop"},
	{"AT7", "turboprop"},
	{"BE20", "turboprop"},
	{"C130", "turboprop"},
	{"C208", "turboprop"},
	{"DH8", "turboprop"},
	{"PC12", "turboprop"},
	{"SF34", "turboprop"},

	// Light aircraft
	{"BE", "light"},
	{"C1", "light"},
	{"C2", "light"},
	{"DA4", "light"},
	{"PA", "light"},
	{"SR2", "light"},

	// Rotorcraft
	{"AS3", "helicopter"},
	{"B06", "helicopter"},
	{"EC", "helicopter"},
	{"H", "helicopter"},
	{"R22", "helicopter"},
	{"R44", "helicopter"},

	{"GLID", "glider"},
}

// CategoryFor returns the icon category for an aircraft type code.
func CategoryFor(typeCode string) string {
	code := strings.ToUpper(strings.TrimSpace(typeCode))
	if code == "" {
		return DefaultCategory
	}
	if c, ok := exactTypes[code]; ok {
		return c
	}

	best, bestLen := DefaultCategory, 0
	for _, e := range categoryTable {
		if len(e.Prefix) > bestLen && strings.HasPrefix(code, e.Prefix) {
			best, bestLen = e.Category, len(e.Prefix)
		}
	}
	return best
}

// Categories lists every category including DefaultCategory, sorted.
func Categories() []string {
	out := []string{DefaultCategory}
	for _, e := range categoryTable {
		if !slices.Contains(out, e.Category) {
			out = append(out, e.Category)
		}
	}
	for _, c := range exactTypes {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// ValidCategory reports whether name is a known category.
func ValidCategory(name string) bool {
	return slices.Contains(Categories(), name)
}

// Geometry is the drawable outline of one icon. Bounds is the icon's
// declared bounding box; markers are scaled by its larger side and centred
// on its midpoint.
type Geometry struct {
	Bounds coordinates.Extent
	Shapes []scene.Shape

	// Fallback marks the built-in outline used when an asset is missing
	Fallback bool
}

// Size returns the larger side of the bounding box.
func (g Geometry) Size() float64 {
	return math.Max(g.Bounds.Width, g.Bounds.Height)
}

// Center returns the midpoint of the bounding box.
func (g Geometry) Center() coordinates.Point {
	return coordinates.Point{
		X: g.Bounds.X + g.Bounds.Width/2,
		Y: g.Bounds.Y + g.Bounds.Height/2,
	}
}

// ParseGeometry reads an icon SVG. The viewBox (or width/height) is used as
// the bounding box.
func ParseGeometry(r io.Reader) (Geometry, error) {
	doc, err := scene.Parse(r)
	if err != nil {
		return Geometry{}, err
	}
	if len(doc.Shapes) == 0 {
		return Geometry{}, ErrNoGeometry
	}
	return Geometry{Bounds: doc.Extent, Shapes: doc.Shapes}, nil
}

// fallbackCanvas is the size of the built-in icon's square canvas
const fallbackCanvas = 512.0

// FallbackGeometry is a plain aircraft silhouette pointing north on a
// 512-unit canvas.
func FallbackGeometry() Geometry {
	outline := []coordinates.Point{
		{X: 256, Y: 16}, // nose
		{X: 284, Y: 72},
		{X: 288, Y: 200},
		{X: 488, Y: 300}, // right wingtip
		{X: 488, Y: 336},
		{X: 288, Y: 296},
		{X: 280, Y: 420},
		{X: 352, Y: 468}, // right stabiliser
		{X: 352, Y: 496},
		{X: 256, Y: 472},
		{X: 160, Y: 496},
		{X: 160, Y: 468}, // left stabiliser
		{X: 232, Y: 420},
		{X: 224, Y: 296},
		{X: 24, Y: 336},
		{X: 24, Y: 300}, // left wingtip
		{X: 224, Y: 200},
		{X: 228, Y: 72},
	}
	return Geometry{
		Bounds:   coordinates.Extent{Width: fallbackCanvas, Height: fallbackCanvas},
		Shapes:   []scene.Shape{{Element: "polygon", Points: outline, Closed: true}},
		Fallback: true,
	}
}

// Set holds the geometry for each category.
type Set struct {
	geoms    map[string]Geometry
	fallback Geometry
}

// NewSet creates a set where every category resolves to the fallback.
func NewSet() *Set {
	return &Set{geoms: make(map[string]Geometry), fallback: FallbackGeometry()}
}

// Put stores the geometry for a category.
func (s *Set) Put(category string, g Geometry) {
	s.geoms[category] = g
}

// Get returns the geometry for a category, falling back to the default
// category's geometry and then the built-in outline.
func (s *Set) Get(category string) Geometry {
	if g, ok := s.geoms[category]; ok {
		return g
	}
	if g, ok := s.geoms[DefaultCategory]; ok {
		return g
	}
	return s.fallback
}

// ForType resolves a type code to its category and geometry.
func (s *Set) ForType(typeCode string) (string, Geometry) {
	c := CategoryFor(typeCode)
	return c, s.Get(c)
}

// Len returns the number of categories with loaded geometry.
func (s *Set) Len() int {
	return len(s.geoms)
}

// URL returns the location of a category's icon under base.
func URL(base, category string) string {
	return strings.TrimRight(base, "/") + "/" + category + ".svg"
}

// loadConcurrency bounds simultaneous icon downloads
const loadConcurrency = 4

// Load fetches the icon for every category from base. The returned set is
// always usable: categories that fail to load use the fallback, and the
// failures are reported together in the error.
func Load(ctx context.Context, client *http.Client, base string, policy backoff.Policy) (*Set, error) {
	cats := Categories()
	geoms := make([]Geometry, len(cats))
	errs := make([]error, len(cats))

	var eg errgroup.Group
	eg.SetLimit(loadConcurrency)
	for i, c := range cats {
		eg.Go(func() error {
			data, err := scene.Download(ctx, client, URL(base, c), policy)
			if err != nil {
				errs[i] = fmt.Errorf("icon %s: %w", c, err)
				return nil
			}
			g, err := ParseGeometry(bytes.NewReader(data))
			if err != nil {
				errs[i] = fmt.Errorf("icon %s: %w", c, err)
				return nil
			}
			geoms[i] = g
			return nil
		})
	}
	eg.Wait()

	set := NewSet()
	for i, c := range cats {
		if errs[i] == nil {
			set.Put(c, geoms[i])
		}
	}
	return set, errors.Join(errs...)
}
