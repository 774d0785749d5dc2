// Package router styles, parses, highlights and filters tailed lines and
// hands them to a sink in order.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/manifest"
)

// DefaultQueueSize bounds the events waiting for the sink.
const DefaultQueueSize = 1024

// Options configure a Router.
type Options struct {
	Config    *manifest.Manifest // compiled; nil means no configuration
	Highlight *regexp.Regexp
	Filter    Filter
	Palette   []string
	Hosts     []string // stripped from default labels
	QueueSize int
}

type queued struct {
	event        core.LineEvent
	announcement *core.Announcement
}

// Router turns raw lines into events. Route and Announce are called from the
// poll loop only; a single goroutine forwards queued events to the sink.
type Router struct {
	cfg       *manifest.Manifest
	palette   *Palette
	highlight *regexp.Regexp
	filter    Filter
	hosts     []string

	sink   core.Sink
	queue  chan queued
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	sinkErr error
	closed  bool
}

// New creates a router and starts forwarding to sink.
func New(sink core.Sink, opts Options, logger *slog.Logger) (*Router, error) {
	if opts.Filter.Raw != nil && len(opts.Filter.Fields) > 0 {
		return nil, errors.New("raw and structured filters are mutually exclusive")
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	r := &Router{
		cfg:       opts.Config,
		palette:   NewPalette(opts.Palette),
		highlight: opts.Highlight,
		filter:    opts.Filter,
		hosts:     opts.Hosts,
		sink:      sink,
		queue:     make(chan queued, size),
		done:      make(chan struct{}),
		logger:    logger,
	}
	go r.drain()
	return r, nil
}

func (r *Router) drain() {
	defer close(r.done)
	for q := range r.queue {
		var err error
		if q.announcement != nil {
			err = r.sink.Announce(*q.announcement)
		} else {
			err = r.sink.Emit(q.event)
		}
		if err != nil {
			r.mu.Lock()
			if r.sinkErr == nil {
				r.sinkErr = err
				r.logger.Error("output failed", "err", err)
			}
			r.mu.Unlock()
		}
	}
}

// Err returns the first error the sink reported.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinkErr
}

// DefaultFormat applies to logs whose configuration supplies no usable format,
// so every line carries at least a text field.
var DefaultFormat = regexp.MustCompile(`^(?P<text>.*)$`)

// Attach resolves the style of a newly discovered log: the first matching
// configuration entry supplies label, color and format; anything left unset
// falls back to the short log name with the lowest owning pid, the next
// palette color and DefaultFormat. A log that already has a color keeps its
// style.
func (r *Router) Attach(log *core.DiscoveredLog) {
	if log.Style.Color != "" {
		return
	}
	var st core.Style
	if e, ok := r.cfg.Match(log.Path); ok {
		st = core.Style{Label: e.Label, Color: e.Color, Format: e.FormatRegexp()}
	}
	if st.Label == "" {
		st.Label = r.defaultLabel(log)
	}
	if st.Color == "" {
		st.Color = r.palette.Next()
	}
	if st.Format == nil {
		st.Format = DefaultFormat
	}
	log.Style = st
}

func (r *Router) defaultLabel(log *core.DiscoveredLog) string {
	name := ShortName(log.Path, r.hosts)
	if len(log.PIDs) == 0 {
		return name
	}
	low := log.PIDs[0]
	for _, p := range log.PIDs[1:] {
		low = min(low, p)
	}
	return fmt.Sprintf("%s:%d", name, low)
}

// Event builds the event for a line and reports whether it passes the filter.
func (r *Router) Event(line core.RawLine) (core.LineEvent, bool) {
	log := line.Log
	if log.Style.Color == "" {
		r.Attach(log)
	}
	ev := core.LineEvent{
		Label: log.Label(),
		Color: log.Style.Color,
		Path:  log.Path,
		Text:  line.Text,
		Tick:  line.Tick,
	}
	if log.Style.Format != nil {
		ev.Fields = extract(log.Style.Format, line.Text)
	}
	if !r.filter.Pass(ev.Text, ev.Fields) {
		return ev, false
	}
	if r.highlight != nil {
		for _, loc := range r.highlight.FindAllStringIndex(ev.Text, -1) {
			if loc[1] > loc[0] {
				ev.Highlights = append(ev.Highlights, core.Span{Start: loc[0], End: loc[1]})
			}
		}
	}
	return ev, true
}

// extract returns the named captures of a format anchored at the start of
// text, or nil when the format does not match. Groups that did not take part
// in the match are absent.
func extract(format *regexp.Regexp, text string) map[string]string {
	loc := format.FindStringSubmatchIndex(text)
	if loc == nil || loc[0] != 0 {
		return nil
	}
	fields := make(map[string]string)
	for i, name := range format.SubexpNames() {
		if i == 0 || name == "" || loc[2*i] < 0 {
			continue
		}
		fields[name] = text[loc[2*i]:loc[2*i+1]]
	}
	return fields
}

// Route queues the passing lines in order and returns how many passed. It
// blocks while the queue is full.
func (r *Router) Route(lines []core.RawLine) int {
	n := 0
	for _, l := range lines {
		ev, ok := r.Event(l)
		if !ok {
			continue
		}
		r.queue <- queued{event: ev}
		n++
	}
	return n
}

// Announce queues a notice that log started or stopped being followed.
func (r *Router) Announce(kind core.AnnouncementKind, log *core.DiscoveredLog, tick uint64) {
	if log.Style.Color == "" {
		r.Attach(log)
	}
	r.queue <- queued{announcement: &core.Announcement{
		Kind:  kind,
		Label: log.Label(),
		Color: log.Style.Color,
		Path:  log.Path,
		Tick:  tick,
	}}
}

// Close waits for queued events to reach the sink and closes it.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.Err()
	}
	r.closed = true
	r.mu.Unlock()

	close(r.queue)
	<-r.done
	return errors.Join(r.Err(), r.sink.Close())
}
