package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/render"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	highlightStyle = lipgloss.NewStyle().Bold(true).Reverse(true).Foreground(lipgloss.Color("1"))
	matchStyle     = lipgloss.NewStyle().Background(lipgloss.Color("220")).Foreground(lipgloss.Color("0"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	statusBarH   = 1
	sourcesMinW  = 100
	paneOverhead = 4 // border and padding
)

func (a App) sourcesWidth() int {
	if a.width < sourcesMinW {
		return 0
	}
	return a.width / 4
}

func (a *App) resize() {
	logW := a.width - paneOverhead
	if sw := a.sourcesWidth(); sw > 0 {
		logW -= sw + paneOverhead
	}
	a.logs.Width = max(logW, 1)
	a.logs.Height = max(a.height-statusBarH-paneOverhead, 1)
}

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	logPane := a.paneBox(PaneLogs, a.logTitle(), a.logs.View(), a.logs.Width, a.logs.Height)
	main := logPane
	if sw := a.sourcesWidth(); sw > 0 {
		sources := a.renderSources(sw, a.logs.Height)
		main = lipgloss.JoinHorizontal(lipgloss.Top, a.paneBox(PaneSources, " Logs ", sources, sw, a.logs.Height), logPane)
	}

	return lipgloss.JoinVertical(lipgloss.Left, main, a.renderStatusBar())
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w + 2).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderSources(w, h int) string {
	if len(a.sources) == 0 {
		return dimStyle.Render("no logs yet")
	}

	var b strings.Builder
	maxVisible := h - 2
	start := 0
	if a.selected >= maxVisible {
		start = a.selected - maxVisible + 1
	}
	for i := start; i < len(a.sources) && i-start < maxVisible; i++ {
		s := a.sources[i]
		indicator := render.ColorStyle(lipgloss.NewStyle(), s.color).Render("●")
		if !s.active {
			indicator = dimStyle.Render("○")
		}
		if s.path == a.only {
			indicator += "*"
		}
		line := fmt.Sprintf(" %s %s", indicator, truncate(s.label, w-5))
		if i == a.selected && a.activePane == PaneSources {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (a App) logTitle() string {
	title := fmt.Sprintf(" %d lines ", len(a.lines))
	if a.paused {
		title += dimStyle.Render("[PAUSED]") + " "
	}
	if a.only != "" {
		title += dimStyle.Render("["+a.only+"]") + " "
	}
	return title
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "space:pause /:search tab:pane enter:focus g/G:top/bottom q:quit"
	if a.mode == ModeSearch {
		left = a.search.View()
		right = "enter:apply esc:clear"
	}

	gap := a.width - lipgloss.Width(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

type mark struct {
	core.Span
	style lipgloss.Style
}

// renderLine draws "[label] text" with highlight spans and search matches.
func renderLine(ev core.LineEvent, query string) string {
	label := render.ColorStyle(lipgloss.NewStyle(), ev.Color).Render("[" + ev.Label + "]")
	text := strings.ReplaceAll(ev.Text, "\t", "    ")
	if text != ev.Text {
		return label + " " + markText(text, searchMarks(text, query))
	}
	marks := searchMarks(text, query)
	for _, sp := range ev.Highlights {
		marks = append(marks, mark{Span: sp, style: highlightStyle})
	}
	return label + " " + markText(text, marks)
}

func searchMarks(text, query string) []mark {
	if query == "" {
		return nil
	}
	var marks []mark
	lower := strings.ToLower(text)
	for from := 0; ; {
		i := strings.Index(lower[from:], query)
		if i < 0 {
			break
		}
		start := from + i
		marks = append(marks, mark{Span: core.Span{Start: start, End: start + len(query)}, style: matchStyle})
		from = start + len(query)
	}
	return marks
}

func markText(text string, marks []mark) string {
	if len(marks) == 0 {
		return text
	}
	sort.SliceStable(marks, func(i, j int) bool { return marks[i].Start < marks[j].Start })

	var b strings.Builder
	pos := 0
	for _, m := range marks {
		if m.Start < pos || m.End > len(text) || m.End <= m.Start {
			continue
		}
		b.WriteString(text[pos:m.Start])
		b.WriteString(m.style.Render(text[m.Start:m.End]))
		pos = m.End
	}
	b.WriteString(text[pos:])
	return b.String()
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
