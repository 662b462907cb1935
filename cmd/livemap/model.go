package main

import (
	"context"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/unklstewy/ads-livemap/internal/app"
	"github.com/unklstewy/ads-livemap/pkg/backoff"
	"github.com/unklstewy/ads-livemap/pkg/canvas"
	"github.com/unklstewy/ads-livemap/pkg/feed"
	"github.com/unklstewy/ads-livemap/pkg/icons"
	"github.com/unklstewy/ads-livemap/pkg/lookup"
	"github.com/unklstewy/ads-livemap/pkg/viewport"
)

// Screen layout in cells
const (
	headerRows  = 1
	statusRows  = 1
	panelWidth  = 36
	minMapWidth = 20

	// panFraction of the container moved per arrow key
	panFraction = 0.1

	lookupTimeout = 15 * time.Second
	iconsTimeout  = time.Minute
)

type frameMsg time.Time

type feedOpenMsg struct{}

type feedMsg struct {
	msg feed.Message
}

type feedDisconnectMsg struct {
	err error
}

type feedRetryMsg struct {
	attempt int
	delay   time.Duration
}

type feedFailureMsg struct {
	err error
}

type iconsMsg struct {
	set *icons.Set
	err error
}

type lookupMsg struct {
	req lookupRequest
	res lookup.Result
	err error
}

type modelDeps struct {
	ctrl       *app.Controller
	client     *feed.Client
	lookups    *lookup.Client
	details    *detailsPanel
	httpClient *http.Client
	iconsBase  string
	iconPolicy backoff.Policy
	frame      time.Duration
	log        zerolog.Logger
}

// layout is where the map sits on screen. The container is letterboxed
// inside the map area so the scene keeps its aspect ratio.
type layout struct {
	cols, rows int     // map area in cells
	offX, offY float64 // container offset inside the map area, in pixels
	contW      float64 // container size in pixels
	contH      float64
}

type model struct {
	modelDeps

	width, height int
	layout        layout
	canvas        *canvas.Context

	// focus is the aircraft highlighted with tab
	focus string

	dragging bool
	dragged  bool
	lastX    int
	lastY    int
}

func newModel(deps modelDeps) model {
	return model{modelDeps: deps, canvas: canvas.New(0, 0)}
}

func frameTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		frameTick(m.frame),
		func() tea.Msg {
			m.client.Start()
			return nil
		},
	}
	if m.iconsBase != "" {
		cmds = append(cmds, m.loadIcons())
	}
	return tea.Batch(cmds...)
}

func (m model) loadIcons() tea.Cmd {
	client, base, policy := m.httpClient, m.iconsBase, m.iconPolicy
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), iconsTimeout)
		defer cancel()
		set, err := icons.Load(ctx, client, base, policy)
		return iconsMsg{set: set, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.KeyMsg:
		if cmd := m.handleKey(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		m.handleMouse(msg)

	case frameMsg:
		m.ctrl.Tick(time.Time(msg))
		cmds = append(cmds, frameTick(m.frame))

	case feedOpenMsg:
		m.log.Info().Str("url", m.client.URL()).Msg("Feed connected")
		m.ctrl.HandleOpen()

	case feedMsg:
		m.ctrl.HandleMessage(msg.msg, time.Now())

	case feedDisconnectMsg:
		m.log.Warn().Err(msg.err).Msg("Feed disconnected")
		m.ctrl.HandleDisconnect(msg.err)
		m.focus = ""

	case feedRetryMsg:
		m.log.Info().Int("attempt", msg.attempt).Dur("delay", msg.delay).Msg("Feed reconnect scheduled")
		m.ctrl.HandleRetry(msg.attempt, msg.delay)

	case feedFailureMsg:
		m.log.Error().Err(msg.err).Msg("Feed retries exhausted")
		m.ctrl.HandleFailure(msg.err)

	case iconsMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("Some icons failed to load, using fallback outline")
			m.ctrl.Notices().Warn("Some aircraft icons unavailable")
		}
		m.ctrl.SetIcons(msg.set)

	case lookupMsg:
		if msg.err != nil {
			m.log.Debug().Err(msg.err).Str("kind", msg.req.kind).Str("key", msg.req.key).Msg("Lookup failed")
		}
		m.details.apply(msg)
	}

	if m.quitting(msg) {
		return m, tea.Quit
	}

	cmds = append(cmds, m.pendingLookups()...)
	m.relayout()
	return m, tea.Batch(cmds...)
}

func (m model) quitting(msg tea.Msg) bool {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return false
	}
	switch k.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	l := m.layout
	stepX, stepY := l.contW*panFraction, l.contH*panFraction

	switch msg.String() {
	case "left", "h":
		m.ctrl.Pan(stepX, 0)
	case "right", "l":
		m.ctrl.Pan(-stepX, 0)
	case "up", "k":
		m.ctrl.Pan(0, stepY)
	case "down", "j":
		m.ctrl.Pan(0, -stepY)
	case "+", "=":
		m.ctrl.ZoomAt(l.contW/2, l.contH/2, viewport.ZoomStep)
	case "-", "_":
		m.ctrl.ZoomAt(l.contW/2, l.contH/2, 1/viewport.ZoomStep)
	case "0":
		m.ctrl.ResetView()
	case "tab":
		if id, ok := m.ctrl.NextID(m.focus); ok {
			m.focus = id
		}
	case "enter":
		if m.focus != "" {
			m.ctrl.Select(m.focus)
		}
	case "esc":
		m.ctrl.CloseDetails()
	case "r":
		if state, _ := m.ctrl.Connection(); state == feed.Failed {
			if m.client.Reconnect() {
				m.ctrl.Notices().Info("Reconnecting to live feed")
			}
		}
	}
	return nil
}

func (m *model) handleMouse(msg tea.MouseMsg) {
	px, py, inside := m.containerPixel(msg.X, msg.Y)

	switch {
	case msg.Button == tea.MouseButtonWheelUp && msg.Action == tea.MouseActionPress:
		if inside {
			m.ctrl.ZoomAt(px, py, viewport.ZoomStep)
		}

	case msg.Button == tea.MouseButtonWheelDown && msg.Action == tea.MouseActionPress:
		if inside {
			m.ctrl.ZoomAt(px, py, 1/viewport.ZoomStep)
		}

	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		m.dragging, m.dragged = inside, false
		m.lastX, m.lastY = msg.X, msg.Y

	case msg.Action == tea.MouseActionMotion && m.dragging:
		dx := float64(msg.X - m.lastX)
		dy := float64(msg.Y-m.lastY) * 2
		if dx != 0 || dy != 0 {
			m.ctrl.Pan(dx, dy)
			m.dragged = true
		}
		m.lastX, m.lastY = msg.X, msg.Y

	case msg.Action == tea.MouseActionRelease && m.dragging:
		if !m.dragged && inside {
			if m.ctrl.Activate(px, py) {
				m.focus, _ = m.ctrl.Selected()
			}
		}
		m.dragging = false
	}
}

// containerPixel converts a terminal cell to container pixels, using the
// cell's centre. inside is false outside the letterboxed container.
func (m model) containerPixel(cellX, cellY int) (px, py float64, inside bool) {
	l := m.layout
	px = float64(cellX) + 0.5 - l.offX
	py = float64(cellY-headerRows)*2 + 1 - l.offY
	inside = cellX < l.cols && px >= 0 && py >= 0 && px <= l.contW && py <= l.contH
	return px, py, inside
}

// pendingLookups turns the panel's queued requests into commands.
func (m model) pendingLookups() []tea.Cmd {
	reqs := m.details.takePending()
	if !m.lookups.Enabled() {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(reqs))
	for _, req := range reqs {
		client := m.lookups
		cmds = append(cmds, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
			defer cancel()
			res, err := client.Lookup(ctx, req.kind, req.key)
			return lookupMsg{req: req, res: res, err: err}
		})
	}
	return cmds
}

// relayout fits the container to the current terminal and panel state.
func (m *model) relayout() {
	cols := m.width
	if m.details.open && cols-panelWidth >= minMapWidth {
		cols -= panelWidth
	}
	rows := m.height - headerRows - statusRows
	if cols < 1 || rows < 1 {
		m.layout = layout{}
		return
	}

	full := m.ctrl.Viewport().Full()
	l := fitContainer(cols, rows, full.Width, full.Height)
	if l != m.layout {
		m.layout = l
		m.ctrl.Resize(l.contW, l.contH)
	}
	if w, h := m.canvas.Size(); w != cols || h != rows {
		m.canvas = canvas.New(cols, rows)
	}
}

// fitContainer letterboxes a scene of the given aspect into a map area of
// cols x rows cells, two pixels per row.
func fitContainer(cols, rows int, sceneW, sceneH float64) layout {
	pw, ph := float64(cols), float64(rows*2)
	l := layout{cols: cols, rows: rows, contW: pw, contH: ph}
	if !(sceneW > 0) || !(sceneH > 0) {
		return l
	}
	aspect := sceneW / sceneH
	if pw/aspect <= ph {
		l.contH = pw / aspect
	} else {
		l.contW = ph * aspect
	}
	l.offX = (pw - l.contW) / 2
	l.offY = (ph - l.contH) / 2
	return l
}
