// Package render presents routed lines: colored terminal text or JSON lines.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/modoterra/ptail/pkg/core"
)

// ColorMode selects when escape sequences are written.
type ColorMode int

const (
	ColorAuto ColorMode = iota // only when the output is a terminal
	ColorAlways
	ColorNever
)

// ansi maps configuration color names to the eight basic terminal colors.
var ansi = map[string]lipgloss.Color{
	"grey":    "0",
	"red":     "1",
	"green":   "2",
	"yellow":  "3",
	"blue":    "4",
	"magenta": "5",
	"cyan":    "6",
	"white":   "7",
}

// Terminal writes "[label] text" lines with the label, or the whole line in
// full-color mode, in the source color.
type Terminal struct {
	w         io.Writer
	renderer  *lipgloss.Renderer
	fullColor bool
	highlight lipgloss.Style
	styles    map[string]lipgloss.Style
	mu        sync.Mutex
}

// NewTerminal creates a terminal sink writing to w.
func NewTerminal(w io.Writer, mode ColorMode, fullColor bool) *Terminal {
	r := lipgloss.NewRenderer(w)
	switch {
	case mode == ColorNever:
		r.SetColorProfile(termenv.Ascii)
	case mode == ColorAlways:
		r.SetColorProfile(termenv.ANSI)
	case !IsTerminal(w):
		r.SetColorProfile(termenv.Ascii)
	}
	return &Terminal{
		w:         w,
		renderer:  r,
		fullColor: fullColor,
		highlight: r.NewStyle().TabWidth(lipgloss.NoTabConversion).Foreground(ansi["red"]).Bold(true).Reverse(true),
		styles:    make(map[string]lipgloss.Style),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (t *Terminal) style(color string) lipgloss.Style {
	if s, ok := t.styles[color]; ok {
		return s
	}
	s := ColorStyle(t.renderer.NewStyle().TabWidth(lipgloss.NoTabConversion), color)
	t.styles[color] = s
	return s
}

// ColorStyle sets the foreground and background of base from a
// configuration color name. Unknown names leave base unchanged.
func ColorStyle(base lipgloss.Style, color string) lipgloss.Style {
	fg, bg, err := core.ParseColor(color)
	if err != nil {
		return base
	}
	base = base.Foreground(ansi[fg])
	if bg != "" {
		base = base.Background(ansi[bg])
	}
	return base
}

func (t *Terminal) Emit(ev core.LineEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.style(ev.Color)
	label := st.Render("[" + ev.Label + "]")

	var text strings.Builder
	body := func(s string) string { return s }
	if t.fullColor {
		body = func(s string) string {
			if s == "" {
				return ""
			}
			return st.Render(s)
		}
	}
	pos := 0
	for _, sp := range ev.Highlights {
		if sp.Start < pos || sp.End > len(ev.Text) {
			continue
		}
		text.WriteString(body(ev.Text[pos:sp.Start]))
		text.WriteString(t.highlight.Render(ev.Text[sp.Start:sp.End]))
		pos = sp.End
	}
	text.WriteString(body(ev.Text[pos:]))

	_, err := fmt.Fprintf(t.w, "%s %s\n", label, text.String())
	return err
}

func (t *Terminal) Announce(a core.Announcement) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.style(a.Color)
	marker, verb := "[+ LOG]", "Following log file"
	if a.Kind == core.LogRemoved {
		marker, verb = "[- LOG]", "Unfollowing log file"
	}
	_, err := fmt.Fprintf(t.w, "%s %s %s\n", marker, st.Render("["+a.Label+"]"), st.Render(verb+": "+a.Path))
	return err
}

func (t *Terminal) Close() error { return nil }
