package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/ads-livemap/internal/app"
	"github.com/unklstewy/ads-livemap/pkg/canvas"
	"github.com/unklstewy/ads-livemap/pkg/coordinates"
	"github.com/unklstewy/ads-livemap/pkg/feed"
	"github.com/unklstewy/ads-livemap/pkg/render"
	"github.com/unklstewy/ads-livemap/pkg/scene"
)

var (
	mapColor      = canvas.ColorDarkCyan
	markerColor   = canvas.ColorLightBlue
	staleColor    = canvas.ColorGray
	focusColor    = canvas.ColorOrange
	selectedColor = canvas.ColorYellow
)

func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}
	if m.layout.cols == 0 {
		return "Terminal too small"
	}

	body := m.renderMap()
	if m.details.open && m.layout.cols < m.width {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, m.details.render(m.width-m.layout.cols, m.layout.rows))
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, m.renderStatus())
}

func (m model) renderHeader() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	state, attempt := m.ctrl.Connection()
	conn := connectionStyle(state).Render(state.String())
	if state != feed.Open && state != feed.Failed && attempt > 0 {
		conn += infoStyle.Render(fmt.Sprintf(" (retry %d)", attempt))
	}

	info := fmt.Sprintf(" zoom x%.2f  aircraft %d  ", m.ctrl.Viewport().Zoom(), m.ctrl.Store().Len())
	return titleStyle.Render("ADS-B LIVE MAP") + infoStyle.Render(info) + conn
}

func connectionStyle(state feed.State) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch state {
	case feed.Open:
		return s.Foreground(lipgloss.Color("46"))
	case feed.Connecting:
		return s.Foreground(lipgloss.Color("226"))
	case feed.Failed, feed.Error:
		return s.Foreground(lipgloss.Color("196"))
	default:
		return s.Foreground(lipgloss.Color("244"))
	}
}

func (m model) renderStatus() string {
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	help := "wheel/+/-: zoom  drag/arrows: pan  tab/enter: select  0: reset  q: quit"

	n, ok := m.ctrl.Notices().Latest()
	if !ok {
		return helpStyle.Render(help)
	}

	style := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	switch n.Level {
	case app.LevelWarn:
		style = style.Foreground(lipgloss.Color("214"))
	case app.LevelError:
		style = style.Foreground(lipgloss.Color("196"))
	}
	line := style.Render(n.String()) + "  " + helpStyle.Render(help)
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line)
}

// renderMap rasterises the scene and the current frame's markers.
func (m model) renderMap() string {
	c := m.canvas
	c.Clear()

	for _, shape := range m.ctrl.Scene().Shapes {
		m.drawShape(shape, mapColor)
	}

	selected, _ := m.ctrl.Selected()
	for _, p := range m.ctrl.Frame() {
		color := markerColor
		switch {
		case p.ID == selected:
			color = selectedColor
		case p.ID == m.focus:
			color = focusColor
		case p.State == render.Stale:
			color = staleColor
		}
		m.drawMarker(p, color)

		if p.ID == selected || p.ID == m.focus {
			m.drawLabel(p, color)
		}
		if p.ID == selected {
			m.drawRing(p, color)
		}
	}

	return c.Render()
}

// toPixel maps a scene point to a pixel in the map area.
func (m model) toPixel(pt coordinates.Point) (float64, float64) {
	x, y := m.ctrl.Viewport().SceneToScreen(pt)
	return x + m.layout.offX, y + m.layout.offY
}

func (m model) drawShape(shape scene.Shape, color canvas.Color) {
	pts := shape.Points
	if len(pts) == 0 {
		return
	}
	px0, py0 := m.toPixel(pts[0])
	if len(pts) == 1 {
		m.canvas.LineF(px0, py0, px0, py0, color)
		return
	}
	prevX, prevY := px0, py0
	for _, pt := range pts[1:] {
		x, y := m.toPixel(pt)
		m.canvas.LineF(prevX, prevY, x, y, color)
		prevX, prevY = x, y
	}
	if shape.Closed {
		m.canvas.LineF(prevX, prevY, px0, py0, color)
	}
}

func (m model) drawMarker(p render.Placement, color canvas.Color) {
	for _, shape := range p.Geometry.Shapes {
		if shape.Closed && len(shape.Points) >= 3 {
			xs := make([]float64, len(shape.Points))
			ys := make([]float64, len(shape.Points))
			for i, pt := range shape.Points {
				xs[i], ys[i] = m.toPixel(p.Transform(pt))
			}
			m.canvas.FillPolygon(xs, ys, color)
			continue
		}
		transformed := scene.Shape{Points: make([]coordinates.Point, len(shape.Points))}
		for i, pt := range shape.Points {
			transformed.Points[i] = p.Transform(pt)
		}
		m.drawShape(transformed, color)
	}

	// Markers too small to fill a pixel still show up as a dot.
	x, y := m.toPixel(p.Scene)
	m.canvas.LineF(x, y, x, y, color)
}

// drawRing circles the selected marker.
func (m model) drawRing(p render.Placement, color canvas.Color) {
	upp := m.ctrl.Viewport().UnitsPerPixel()
	if upp <= 0 {
		return
	}
	x, y := m.toPixel(p.Scene)
	r := int(p.Radius()/upp) + 2
	m.canvas.Circle(int(x), int(y), r, color, 32)
}

// drawLabel writes the callsign to the right of the marker.
func (m model) drawLabel(p render.Placement, color canvas.Color) {
	a, ok := m.ctrl.Store().FindByID(p.ID)
	if !ok {
		return
	}
	x, y := m.toPixel(p.Scene)
	upp := m.ctrl.Viewport().UnitsPerPixel()
	offset := 2.0
	if upp > 0 {
		offset += p.Radius() / upp
	}
	m.canvas.PutString(int(x+offset), int(y/2), strings.ToUpper(a.DisplayName()), color)
}
