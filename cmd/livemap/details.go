package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/ads-livemap/pkg/adsb"
	"github.com/unklstewy/ads-livemap/pkg/lookup"
)

// lookupRequest names one collaborator lookup for the open panel.
type lookupRequest struct {
	aircraftID string
	kind       string
	key        string
}

func (r lookupRequest) cacheKey() string {
	return r.kind + "/" + r.key
}

// detailsPanel is the side panel shown for the selected aircraft. The
// controller drives it through Show and Close; lookups it needs are queued
// and turned into commands by the model.
type detailsPanel struct {
	open     bool
	aircraft adsb.Aircraft

	pilot string
	image string

	pending   []lookupRequest
	requested map[string]bool
}

func newDetailsPanel() *detailsPanel {
	return &detailsPanel{requested: make(map[string]bool)}
}

// Show implements app.DetailsRenderer.
func (d *detailsPanel) Show(a adsb.Aircraft) {
	if !d.open || d.aircraft.ID != a.ID {
		d.pilot, d.image = "", ""
		d.pending = nil
		clear(d.requested)
	}
	d.open = true
	d.aircraft = a

	if pilot, ok := adsb.ParseID(a.Fields[adsb.FieldPilot]); ok {
		d.queue(lookupRequest{aircraftID: a.ID, kind: lookup.KindUser, key: pilot})
	}
	if a.String(adsb.FieldImageURL) == "" {
		d.queue(lookupRequest{aircraftID: a.ID, kind: lookup.KindImage, key: a.ID})
	}
}

// Close implements app.DetailsRenderer.
func (d *detailsPanel) Close() {
	d.open = false
	d.pending = nil
}

func (d *detailsPanel) queue(req lookupRequest) {
	if d.requested[req.cacheKey()] {
		return
	}
	d.requested[req.cacheKey()] = true
	d.pending = append(d.pending, req)
}

// takePending returns and clears the queued lookups.
func (d *detailsPanel) takePending() []lookupRequest {
	out := d.pending
	d.pending = nil
	return out
}

// apply stores a lookup answer if it still belongs to the open panel.
func (d *detailsPanel) apply(msg lookupMsg) {
	if !d.open || msg.req.aircraftID != d.aircraft.ID || msg.err != nil {
		return
	}
	switch msg.req.kind {
	case lookup.KindUser:
		d.pilot = firstNonEmpty(msg.res.String("username"), msg.res.String("name"))
	case lookup.KindImage:
		d.image = firstNonEmpty(msg.res.String("url"), msg.res.String("imageUrl"))
	}
}

func (d *detailsPanel) render(width, height int) string {
	panelStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("39")).
		Padding(0, 1).
		Width(width - 2).
		Height(height - 2)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	a := d.aircraft
	var s strings.Builder
	s.WriteString(titleStyle.Render(a.DisplayName()))
	s.WriteString("\n")
	s.WriteString(a.TypeName())
	s.WriteString("\n\n")

	row := func(label, value string) {
		if value == "" {
			return
		}
		s.WriteString(labelStyle.Render(fmt.Sprintf("%-9s", label)))
		s.WriteString(value)
		s.WriteString("\n")
	}

	row("ID", a.ID)
	if lat, ok := a.Float(adsb.FieldLatitude); ok {
		lon, _ := a.Float(adsb.FieldLongitude)
		row("Position", fmt.Sprintf("%.4f, %.4f", lat, lon))
	} else if x, ok := a.Float(adsb.FieldWorldX); ok {
		z, _ := a.Float(adsb.FieldWorldZ)
		row("Position", fmt.Sprintf("x %.1f z %.1f", x, z))
	}
	row("Heading", fmt.Sprintf("%.0f°", a.Heading))

	pilot := d.pilot
	if pilot == "" {
		if id, ok := adsb.ParseID(a.Fields[adsb.FieldPilot]); ok {
			pilot = id
		}
	}
	row("Pilot", pilot)
	row("Image", firstNonEmpty(a.String(adsb.FieldImageURL), d.image))

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: close"))

	return panelStyle.Render(s.String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
