// Package model is the full-screen viewer for the merged log stream.
package model

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/ptail/pkg/core"
)

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneLogs Pane = iota
	PaneSources
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
)

// DefaultScrollback is the number of lines kept for scrolling.
const DefaultScrollback = 5000

const refreshInterval = 100 * time.Millisecond

type source struct {
	label  string
	color  string
	path   string
	active bool
}

// App is the root Bubble Tea model.
type App struct {
	// State
	lines      []core.LineEvent
	sources    []source
	selected   int
	only       string // show only lines of this path when set
	paused     bool
	dirty      bool
	finished   bool
	scrollback int

	// UI
	activePane Pane
	mode       Mode
	search     textinput.Model
	logs       viewport.Model
	width      int
	height     int

	statusMsg string
}

// New creates the viewer.
func New(scrollback int) App {
	si := textinput.New()
	si.Placeholder = "search..."
	si.CharLimit = 64

	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	return App{
		search:     si,
		logs:       viewport.New(0, 0),
		scrollback: scrollback,
		activePane: PaneLogs,
		mode:       ModeNormal,
	}
}

// Init starts the refresh ticker.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		refreshCmd(),
		tea.SetWindowTitle("ptail"),
	)
}

// lineMsg carries a routed line.
type lineMsg core.LineEvent

// announceMsg carries a followed/unfollowed notice.
type announceMsg core.Announcement

// finishedMsg reports that the stream ended.
type finishedMsg struct{ err error }

// refreshMsg triggers a redraw of the log pane when lines arrived.
type refreshMsg time.Time

func refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		a.refresh()
		return a, nil

	case lineMsg:
		a.lines = append(a.lines, core.LineEvent(msg))
		if len(a.lines) > a.scrollback {
			a.lines = a.lines[len(a.lines)-a.scrollback:]
		}
		a.dirty = true
		return a, nil

	case announceMsg:
		a.announce(core.Announcement(msg))
		return a, nil

	case refreshMsg:
		if a.dirty && !a.paused {
			a.refresh()
		}
		return a, refreshCmd()

	case finishedMsg:
		a.finished = true
		a.statusMsg = "stream ended"
		if msg.err != nil {
			a.statusMsg = "error: " + msg.err.Error()
		}
		a.refresh()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) announce(n core.Announcement) {
	for i := range a.sources {
		if a.sources[i].path == n.Path && a.sources[i].label == n.Label {
			a.sources[i].active = n.Kind == core.LogAdded
			a.sources[i].color = n.Color
			return
		}
	}
	if n.Kind == core.LogAdded {
		a.sources = append(a.sources, source{label: n.Label, color: n.Color, path: n.Path, active: true})
	}
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Search mode
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			a.refresh()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			a.refresh()
			return a, nil
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			a.refresh()
			return a, cmd
		}
	}

	// Normal mode
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "tab":
		a.activePane = (a.activePane + 1) % 2

	case "/":
		a.mode = ModeSearch
		a.search.Focus()
		return a, textinput.Blink

	case " ", "p":
		a.paused = !a.paused
		if !a.paused {
			a.refresh()
		}

	case "enter":
		if a.activePane == PaneSources && a.selected < len(a.sources) {
			path := a.sources[a.selected].path
			if a.only == path {
				a.only = ""
			} else {
				a.only = path
			}
			a.refresh()
		}

	case "G", "end":
		a.logs.GotoBottom()

	case "g", "home":
		a.logs.GotoTop()

	default:
		if a.activePane == PaneSources {
			switch msg.String() {
			case "j", "down":
				a.selected = min(a.selected+1, max(len(a.sources)-1, 0))
			case "k", "up":
				if a.selected > 0 {
					a.selected--
				}
			}
			return a, nil
		}
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return a, cmd
	}

	return a, nil
}

// visible returns the lines that pass the source focus.
func (a App) visible() []core.LineEvent {
	if a.only == "" {
		return a.lines
	}
	var out []core.LineEvent
	for _, l := range a.lines {
		if l.Path == a.only {
			out = append(out, l)
		}
	}
	return out
}

func (a *App) refresh() {
	follow := a.logs.AtBottom() || a.logs.TotalLineCount() == 0
	query := strings.ToLower(a.search.Value())

	var b strings.Builder
	for i, l := range a.visible() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(renderLine(l, query))
	}
	a.logs.SetContent(b.String())
	if follow {
		a.logs.GotoBottom()
	}
	a.dirty = false
}
