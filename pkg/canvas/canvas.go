// Package canvas is a small pixel raster drawn with half-block characters.
//
// Each terminal cell holds two pixels stacked vertically, so a pixel is one
// column wide and half a row tall and circles stay round on a typical
// terminal font. Text can be overlaid on whole cells.
package canvas

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color represents an RGB color
type Color struct {
	R, G, B uint8
}

// Hex returns the color as #rrggbb for lipgloss.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Common colors
var (
	ColorBlack     = Color{0, 0, 0}
	ColorWhite     = Color{255, 255, 255}
	ColorRed       = Color{255, 0, 0}
	ColorGreen     = Color{0, 255, 0}
	ColorYellow    = Color{255, 255, 0}
	ColorCyan      = Color{0, 255, 255}
	ColorGray      = Color{128, 128, 128}
	ColorDarkGray  = Color{64, 64, 64}
	ColorLightGray = Color{192, 192, 192}
	ColorOrange    = Color{255, 165, 0}
	ColorDarkCyan  = Color{0, 139, 139}
	ColorLightBlue = Color{173, 216, 230}
)

// pixel is a set flag plus its color
type pixel struct {
	set   bool
	color Color
}

// glyph is text overlaid on a cell
type glyph struct {
	ch    rune
	color Color
}

// Context is a raster of width x height cells, i.e. width x 2*height pixels.
type Context struct {
	width, height int
	pixels        []pixel
	glyphs        map[int]glyph
}

// New creates a context with the given size in cells.
func New(width, height int) *Context {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Context{
		width:  width,
		height: height,
		pixels: make([]pixel, width*height*2),
		glyphs: make(map[int]glyph),
	}
}

// Size returns the dimensions in cells.
func (ctx *Context) Size() (width, height int) {
	return ctx.width, ctx.height
}

// PixelSize returns the dimensions in pixels.
func (ctx *Context) PixelSize() (width, height int) {
	return ctx.width, ctx.height * 2
}

// Clear clears pixels and text.
func (ctx *Context) Clear() {
	clear(ctx.pixels)
	clear(ctx.glyphs)
}

// Point sets a single pixel. Out of range pixels are ignored.
func (ctx *Context) Point(x, y int, color Color) {
	if x < 0 || y < 0 || x >= ctx.width || y >= ctx.height*2 {
		return
	}
	ctx.pixels[y*ctx.width+x] = pixel{set: true, color: color}
}

// At reports whether a pixel is set and its color.
func (ctx *Context) At(x, y int) (Color, bool) {
	if x < 0 || y < 0 || x >= ctx.width || y >= ctx.height*2 {
		return Color{}, false
	}
	p := ctx.pixels[y*ctx.width+x]
	return p.color, p.set
}

// Line draws a line between two pixels (Bresenham).
func (ctx *Context) Line(x0, y0, x1, y1 int, color Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	// Lines far outside the raster are clipped by Point; bound the walk so a
	// wild coordinate cannot spin for long.
	for steps := 0; steps <= dx-dy && steps < 1<<16; steps++ {
		ctx.Point(x0, y0, color)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// LineF draws a line between float pixel positions, rounding to the
// nearest pixel. Non-finite coordinates are skipped.
func (ctx *Context) LineF(x0, y0, x1, y1 float64, color Color) {
	if !finite(x0, y0, x1, y1) {
		return
	}
	ctx.Line(round(x0), round(y0), round(x1), round(y1), color)
}

// Circle draws a circle outline using line segments.
// segments: number of line segments to approximate the circle (higher = smoother)
func (ctx *Context) Circle(centerX, centerY, radius int, color Color, segments int) {
	if segments < 8 {
		segments = 32
	}
	step := 2 * math.Pi / float64(segments)
	var prevX, prevY int
	for i := 0; i <= segments; i++ {
		sin, cos := math.Sincos(float64(i) * step)
		x := centerX + round(float64(radius)*cos)
		y := centerY + round(float64(radius)*sin)
		if i > 0 {
			ctx.Line(prevX, prevY, x, y, color)
		}
		prevX, prevY = x, y
	}
}

// FillPolygon fills a polygon with the even-odd rule, sampling each pixel
// row at its centre. Points are float pixel positions.
func (ctx *Context) FillPolygon(xs, ys []float64, color Color) {
	n := min(len(xs), len(ys))
	if n < 3 || !finite(xs[:n]...) || !finite(ys[:n]...) {
		return
	}

	minY, maxY := ys[0], ys[0]
	for _, y := range ys[1:n] {
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
	}
	_, ph := ctx.PixelSize()
	top := max(0, int(math.Floor(minY)))
	bottom := min(ph-1, int(math.Ceil(maxY)))

	var cross []float64
	for py := top; py <= bottom; py++ {
		sy := float64(py) + 0.5
		cross = cross[:0]
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			y0, y1 := ys[i], ys[j]
			if (y0 <= sy && y1 > sy) || (y1 <= sy && y0 > sy) {
				t := (sy - y0) / (y1 - y0)
				cross = append(cross, xs[i]+t*(xs[j]-xs[i]))
			}
		}
		slices.Sort(cross)
		for k := 0; k+1 < len(cross); k += 2 {
			x0 := max(0, int(math.Ceil(cross[k]-0.5)))
			x1 := min(ctx.width-1, int(math.Floor(cross[k+1]-0.5)))
			for px := x0; px <= x1; px++ {
				ctx.Point(px, py, color)
			}
		}
	}
}

// PutChar writes a character over the cell at column x, row y.
func (ctx *Context) PutChar(x, y int, ch rune, color Color) {
	if x < 0 || y < 0 || x >= ctx.width || y >= ctx.height {
		return
	}
	ctx.glyphs[y*ctx.width+x] = glyph{ch: ch, color: color}
}

// PutString writes text starting at column x, row y, clipped at the edge.
func (ctx *Context) PutString(x, y int, text string, color Color) {
	for _, ch := range text {
		ctx.PutChar(x, y, ch, color)
		x++
	}
}

// cell is the resolved look of one terminal cell
type cell struct {
	ch     rune
	fg, bg Color
	hasFg  bool
	hasBg  bool
}

func (ctx *Context) cellAt(x, y int) cell {
	if g, ok := ctx.glyphs[y*ctx.width+x]; ok {
		return cell{ch: g.ch, fg: g.color, hasFg: true}
	}
	top := ctx.pixels[(2*y)*ctx.width+x]
	bot := ctx.pixels[(2*y+1)*ctx.width+x]
	switch {
	case top.set && bot.set && top.color == bot.color:
		return cell{ch: '█', fg: top.color, hasFg: true}
	case top.set && bot.set:
		return cell{ch: '▀', fg: top.color, bg: bot.color, hasFg: true, hasBg: true}
	case top.set:
		return cell{ch: '▀', fg: top.color, hasFg: true}
	case bot.set:
		return cell{ch: '▄', fg: bot.color, hasFg: true}
	default:
		return cell{ch: ' '}
	}
}

func (c cell) sameStyle(o cell) bool {
	return c.hasFg == o.hasFg && c.hasBg == o.hasBg && c.fg == o.fg && c.bg == o.bg
}

func (c cell) style() lipgloss.Style {
	s := lipgloss.NewStyle()
	if c.hasFg {
		s = s.Foreground(lipgloss.Color(c.fg.Hex()))
	}
	if c.hasBg {
		s = s.Background(lipgloss.Color(c.bg.Hex()))
	}
	return s
}

// Render returns the raster as height lines of styled text. Runs of cells
// with the same colors share one style.
func (ctx *Context) Render() string {
	var out strings.Builder
	var run strings.Builder
	for y := 0; y < ctx.height; y++ {
		if y > 0 {
			out.WriteByte('\n')
		}
		var cur cell
		for x := 0; x < ctx.width; x++ {
			c := ctx.cellAt(x, y)
			if x > 0 && !c.sameStyle(cur) {
				out.WriteString(cur.render(run.String()))
				run.Reset()
			}
			cur = c
			run.WriteRune(c.ch)
		}
		if run.Len() > 0 {
			out.WriteString(cur.render(run.String()))
			run.Reset()
		}
	}
	return out.String()
}

func (c cell) render(s string) string {
	if !c.hasFg && !c.hasBg {
		return s
	}
	return c.style().Render(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 1e7 {
			return false
		}
	}
	return true
}
