package scene

import (
	"encoding/xml"
	"math"

	"github.com/unklstewy/ads-livemap/pkg/coordinates"
)

// segments used to flatten circles, ellipses and curves
const (
	ellipseSegments = 24
	curveSegments   = 8
)

// toShape flattens a drawable element into a polyline.
func toShape(el xml.StartElement) (Shape, bool) {
	name := el.Name.Local
	num := func(key string) float64 {
		v, _ := parseNumber(attr(el, key))
		return v
	}

	var (
		pts    []coordinates.Point
		closed bool
	)
	switch name {
	case "line":
		pts = []coordinates.Point{
			{X: num("x1"), Y: num("y1")},
			{X: num("x2"), Y: num("y2")},
		}
	case "polyline", "polygon":
		nums := parseNumberList(attr(el, "points"))
		for i := 0; i+1 < len(nums); i += 2 {
			pts = append(pts, coordinates.Point{X: nums[i], Y: nums[i+1]})
		}
		closed = name == "polygon"
	case "rect":
		x, y, w, h := num("x"), num("y"), num("width"), num("height")
		if w <= 0 || h <= 0 {
			return Shape{}, false
		}
		pts = []coordinates.Point{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
		closed = true
	case "circle":
		r := num("r")
		pts = ellipse(num("cx"), num("cy"), r, r)
		closed = true
	case "ellipse":
		pts = ellipse(num("cx"), num("cy"), num("rx"), num("ry"))
		closed = true
	case "path":
		pts, closed = ParsePath(attr(el, "d"))
	default:
		return Shape{}, false
	}

	if len(pts) < 2 {
		return Shape{}, false
	}
	return Shape{Element: name, Points: pts, Closed: closed}, true
}

func ellipse(cx, cy, rx, ry float64) []coordinates.Point {
	if rx <= 0 || ry <= 0 {
		return nil
	}
	pts := make([]coordinates.Point, ellipseSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / ellipseSegments
		pts[i] = coordinates.Point{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a)}
	}
	return pts
}

// ParsePath flattens SVG path data into a single polyline. Bezier curves
// are sampled; arcs are replaced by a straight segment to their endpoint.
// Subpaths are joined, so a later moveto draws a connecting segment; the
// character canvas is coarse enough that this is rarely visible, and the
// map documents draw most features as separate elements.
//
// Parsing stops at the first malformed command, keeping what was read.
func ParsePath(d string) ([]coordinates.Point, bool) {
	p := pathLexer{s: d}
	var (
		pts    []coordinates.Point
		cur    coordinates.Point
		start  coordinates.Point
		ctrl   coordinates.Point // last control point for S/T reflection
		cmd    byte
		prev   byte
		closed bool
	)

	for {
		if c, ok := p.command(); ok {
			cmd = c
		} else if cmd == 0 || !p.more() {
			break
		}

		rel := cmd >= 'a'
		at := func(x, y float64) coordinates.Point {
			if rel {
				return coordinates.Point{X: cur.X + x, Y: cur.Y + y}
			}
			return coordinates.Point{X: x, Y: y}
		}

		switch cmd | 0x20 {
		case 'm':
			x, y, ok := p.pair()
			if !ok {
				return pts, closed
			}
			cur = at(x, y)
			start = cur
			pts = append(pts, cur)
			// Subsequent pairs after a moveto are implicit linetos
			if rel {
				cmd = 'l'
			} else {
				cmd = 'L'
			}
		case 'l':
			x, y, ok := p.pair()
			if !ok {
				return pts, closed
			}
			cur = at(x, y)
			pts = append(pts, cur)
		case 'h':
			x, ok := p.number()
			if !ok {
				return pts, closed
			}
			if rel {
				cur.X += x
			} else {
				cur.X = x
			}
			pts = append(pts, cur)
		case 'v':
			y, ok := p.number()
			if !ok {
				return pts, closed
			}
			if rel {
				cur.Y += y
			} else {
				cur.Y = y
			}
			pts = append(pts, cur)
		case 'c':
			n, ok := p.numbers(6)
			if !ok {
				return pts, closed
			}
			c1, c2, end := at(n[0], n[1]), at(n[2], n[3]), at(n[4], n[5])
			pts = append(pts, cubic(cur, c1, c2, end)...)
			ctrl, cur = c2, end
		case 's':
			n, ok := p.numbers(4)
			if !ok {
				return pts, closed
			}
			c1 := cur
			if pc := prev | 0x20; pc == 'c' || pc == 's' {
				c1 = reflect(ctrl, cur)
			}
			c2, end := at(n[0], n[1]), at(n[2], n[3])
			pts = append(pts, cubic(cur, c1, c2, end)...)
			ctrl, cur = c2, end
		case 'q':
			n, ok := p.numbers(4)
			if !ok {
				return pts, closed
			}
			c, end := at(n[0], n[1]), at(n[2], n[3])
			pts = append(pts, quadratic(cur, c, end)...)
			ctrl, cur = c, end
		case 't':
			x, y, ok := p.pair()
			if !ok {
				return pts, closed
			}
			c := cur
			if pc := prev | 0x20; pc == 'q' || pc == 't' {
				c = reflect(ctrl, cur)
			}
			end := at(x, y)
			pts = append(pts, quadratic(cur, c, end)...)
			ctrl, cur = c, end
		case 'a':
			n, ok := p.numbers(7)
			if !ok {
				return pts, closed
			}
			cur = at(n[5], n[6])
			pts = append(pts, cur)
		case 'z':
			closed = true
			cur = start
			if len(pts) > 0 && pts[len(pts)-1] != start {
				pts = append(pts, start)
			}
		default:
			return pts, closed
		}
		prev = cmd

		// z takes no arguments; the next token must be a command
		if cmd|0x20 == 'z' {
			cmd = 0
		}
	}
	return pts, closed
}

func reflect(ctrl, about coordinates.Point) coordinates.Point {
	return coordinates.Point{X: 2*about.X - ctrl.X, Y: 2*about.Y - ctrl.Y}
}

func cubic(p0, p1, p2, p3 coordinates.Point) []coordinates.Point {
	out := make([]coordinates.Point, 0, curveSegments)
	for i := 1; i <= curveSegments; i++ {
		t := float64(i) / curveSegments
		u := 1 - t
		a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
		out = append(out, coordinates.Point{
			X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
		})
	}
	return out
}

func quadratic(p0, p1, p2 coordinates.Point) []coordinates.Point {
	out := make([]coordinates.Point, 0, curveSegments)
	for i := 1; i <= curveSegments; i++ {
		t := float64(i) / curveSegments
		u := 1 - t
		a, b, c := u*u, 2*u*t, t*t
		out = append(out, coordinates.Point{
			X: a*p0.X + b*p1.X + c*p2.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y,
		})
	}
	return out
}

// pathLexer walks SVG path data.
type pathLexer struct {
	s   string
	pos int
}

func (p *pathLexer) skip() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r', ',':
			p.pos++
		default:
			return
		}
	}
}

func (p *pathLexer) more() bool {
	p.skip()
	return p.pos < len(p.s)
}

func (p *pathLexer) command() (byte, bool) {
	p.skip()
	if p.pos >= len(p.s) {
		return 0, false
	}
	c := p.s[p.pos]
	switch c | 0x20 {
	case 'm', 'l', 'h', 'v', 'c', 's', 'q', 't', 'a', 'z':
		p.pos++
		return c, true
	}
	return 0, false
}

// number reads one number. Handles forms like "-1.5e3", ".5.5" (two
// numbers) and "1-2" (two numbers).
func (p *pathLexer) number() (float64, bool) {
	p.skip()
	start := p.pos
	if p.pos < len(p.s) && (p.s[p.pos] == '-' || p.s[p.pos] == '+') {
		p.pos++
	}
	digits, dot := false, false
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c >= '0' && c <= '9' {
			digits = true
			p.pos++
			continue
		}
		if c == '.' && !dot {
			dot = true
			p.pos++
			continue
		}
		break
	}
	if digits && p.pos < len(p.s) && (p.s[p.pos] == 'e' || p.s[p.pos] == 'E') {
		save := p.pos
		p.pos++
		if p.pos < len(p.s) && (p.s[p.pos] == '-' || p.s[p.pos] == '+') {
			p.pos++
		}
		expDigits := false
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			expDigits = true
			p.pos++
		}
		if !expDigits {
			p.pos = save
		}
	}
	if !digits {
		p.pos = start
		return 0, false
	}
	return parseNumber(p.s[start:p.pos])
}

func (p *pathLexer) pair() (float64, float64, bool) {
	x, ok := p.number()
	if !ok {
		return 0, 0, false
	}
	y, ok := p.number()
	return x, y, ok
}

func (p *pathLexer) numbers(n int) ([]float64, bool) {
	out := make([]float64, n)
	for i := range out {
		v, ok := p.number()
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
