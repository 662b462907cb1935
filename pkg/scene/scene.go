// Package scene reads SVG map documents into the pieces the live map needs:
// the full extent, anchor correspondences for the coordinate mapper, and
// flattened polylines for drawing on a character canvas.
package scene

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/unklstewy/ads-livemap/pkg/coordinates"
)

// DefaultSize is used for the extent when the document declares no
// viewBox, no width/height and has no drawable geometry.
const DefaultSize = 1000.0

// ErrNoSVG is returned when the document has no <svg> root element.
var ErrNoSVG = errors.New("document has no <svg> element")

// ExtentSource records where a document's full extent came from.
type ExtentSource string

const (
	ExtentViewBox ExtentSource = "viewBox"
	ExtentSize    ExtentSource = "width/height"
	ExtentBounds  ExtentSource = "bounds"
	ExtentDefault ExtentSource = "default"
)

// Shape is one drawable element flattened to a polyline.
type Shape struct {
	// Element is the SVG element name the shape came from
	Element string

	// Points in scene units
	Points []coordinates.Point

	// Closed shapes connect the last point back to the first
	Closed bool
}

// Document is a parsed scene description.
type Document struct {
	Extent       coordinates.Extent
	ExtentSource ExtentSource

	// Anchors in document order, all of AnchorKind
	Anchors    []coordinates.Anchor
	AnchorKind coordinates.Kind

	Shapes []Shape

	// SkippedAnchors counts anchors dropped for mixing kinds or lacking
	// a scene position
	SkippedAnchors int

	// RemovedBackgrounds counts full-size or white rects that were dropped
	RemovedBackgrounds int
}

// Mapper solves the affine transform from the document's anchors and
// returns a coordinate mapper over its extent. When no transform can be
// solved the geographic fallback mapper is returned together with the
// reason, which callers log; it is never fatal.
func (d *Document) Mapper() (*coordinates.Mapper, error) {
	affine, err := coordinates.SolveAffine(d.Anchors)
	if err != nil {
		return coordinates.NewMapper(d.Extent, nil, coordinates.KindNone), err
	}
	return coordinates.NewMapper(d.Extent, affine, d.AnchorKind), nil
}

// Bounds returns the bounding box of all shapes.
func (d *Document) Bounds() (coordinates.Extent, bool) {
	return shapeBounds(d.Shapes)
}

// elements whose content is never drawn
var hiddenContainers = map[string]bool{
	"defs":     true,
	"clipPath": true,
	"mask":     true,
	"symbol":   true,
	"pattern":  true,
	"marker":   true,
	"style":    true,
	"script":   true,
	"metadata": true,
	"title":    true,
	"desc":     true,
}

// Parse reads an SVG document.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	doc := &Document{}
	var (
		root       *xml.StartElement
		viewBox    *coordinates.Extent
		hidden     int
		candidates []xml.StartElement
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse svg: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			name := el.Name.Local
			if root == nil {
				if name != "svg" {
					continue
				}
				start := el.Copy()
				root = &start
				if vb, ok := parseViewBox(attr(el, "viewBox")); ok {
					viewBox = &vb
				}
				continue
			}
			if hidden > 0 || hiddenContainers[name] {
				hidden++
				continue
			}
			candidates = append(candidates, el.Copy())

		case xml.EndElement:
			if hidden > 0 {
				hidden--
			}
		}
	}

	if root == nil {
		return nil, ErrNoSVG
	}

	for _, el := range candidates {
		if el.Name.Local == "rect" && isBackground(el, viewBox) {
			doc.RemovedBackgrounds++
			continue
		}
		doc.addAnchor(el)
		if shape, ok := toShape(el); ok {
			doc.Shapes = append(doc.Shapes, shape)
		}
	}

	doc.resolveExtent(*root, viewBox)
	return doc, nil
}

func (d *Document) resolveExtent(root xml.StartElement, viewBox *coordinates.Extent) {
	if viewBox != nil {
		d.Extent, d.ExtentSource = *viewBox, ExtentViewBox
		return
	}

	w, okW := parseLength(attr(root, "width"))
	h, okH := parseLength(attr(root, "height"))
	if okW && okH && w > 0 && h > 0 {
		d.Extent = coordinates.Extent{Width: w, Height: h}
		d.ExtentSource = ExtentSize
		return
	}

	if b, ok := d.Bounds(); ok && !b.Empty() {
		d.Extent, d.ExtentSource = b, ExtentBounds
		return
	}

	d.Extent = coordinates.Extent{Width: DefaultSize, Height: DefaultSize}
	d.ExtentSource = ExtentDefault
}

// addAnchor records el as an anchor if it carries domain coordinates.
// The first anchor decides the kind; later anchors of another kind are
// skipped.
func (d *Document) addAnchor(el xml.StartElement) {
	var (
		kind   coordinates.Kind
		domain coordinates.Point
	)
	if x, okX := parseNumber(attr(el, "data-world-x")); okX {
		z, okZ := parseNumber(attr(el, "data-world-z"))
		if !okZ {
			d.SkippedAnchors++
			return
		}
		kind, domain = coordinates.KindWorld, coordinates.Point{X: x, Y: z}
	} else if lat, okLat := parseNumber(attr(el, "data-lat")); okLat {
		lon, okLon := parseNumber(attr(el, "data-lon"))
		if !okLon {
			d.SkippedAnchors++
			return
		}
		kind, domain = coordinates.KindGeo, coordinates.Point{X: lon, Y: lat}
	} else {
		return
	}

	scenePt, ok := anchorPoint(el)
	if !ok {
		d.SkippedAnchors++
		return
	}

	if d.AnchorKind == coordinates.KindNone {
		d.AnchorKind = kind
	} else if kind != d.AnchorKind {
		d.SkippedAnchors++
		return
	}
	d.Anchors = append(d.Anchors, coordinates.Anchor{Domain: domain, Scene: scenePt})
}

// anchorPoint finds the scene position of an anchor element: an explicit
// data-scene-x/y pair, else the centre of a circle or ellipse, else x/y.
func anchorPoint(el xml.StartElement) (coordinates.Point, bool) {
	for _, pair := range [][2]string{
		{"data-scene-x", "data-scene-y"},
		{"cx", "cy"},
		{"x", "y"},
	} {
		x, okX := parseNumber(attr(el, pair[0]))
		y, okY := parseNumber(attr(el, pair[1]))
		if okX && okY {
			return coordinates.Point{X: x, Y: y}, true
		}
	}
	return coordinates.Point{}, false
}

// isBackground reports whether a rect is a page background: a white fill,
// or a size covering the whole viewBox.
func isBackground(el xml.StartElement, viewBox *coordinates.Extent) bool {
	if isWhite(attr(el, "fill")) || isWhite(styleProperty(attr(el, "style"), "fill")) {
		return true
	}
	if viewBox == nil {
		return false
	}
	w, okW := parseLength(attr(el, "width"))
	h, okH := parseLength(attr(el, "height"))
	return okW && okH && w >= viewBox.Width && h >= viewBox.Height
}

func isWhite(color string) bool {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(color), " ", "")) {
	case "white", "#fff", "#ffffff", "rgb(255,255,255)":
		return true
	}
	return false
}

func styleProperty(style, name string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(k) == name {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseViewBox(s string) (coordinates.Extent, bool) {
	nums := parseNumberList(s)
	if len(nums) != 4 || nums[2] <= 0 || nums[3] <= 0 {
		return coordinates.Extent{}, false
	}
	return coordinates.Extent{X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}, true
}

// parseLength parses a user-unit length, ignoring a trailing "px".
// Percentages and other units are rejected.
func parseLength(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	return parseNumber(s)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseNumberList splits a whitespace and/or comma separated list.
func parseNumberList(s string) []float64 {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		n, ok := parseNumber(f)
		if !ok {
			return nil
		}
		out = append(out, n)
	}
	return out
}

func shapeBounds(shapes []Shape) (coordinates.Extent, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range shapes {
		for _, p := range s.Points {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return coordinates.Extent{}, false
	}
	return coordinates.Extent{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}
