package router

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"regexp"
	"sync"
	"testing"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/manifest"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []core.LineEvent
	notices []core.Announcement
	order   []string
	closed  bool
	emitErr error
}

func (s *recordingSink) Emit(ev core.LineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.order = append(s.order, ev.Text)
	return s.emitErr
}

func (s *recordingSink) Announce(a core.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, a)
	s.order = append(s.order, string(a.Kind)+" "+a.Path)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, sink core.Sink, opts Options) *Router {
	t.Helper()
	r, err := New(sink, opts, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func rawLines(log *core.DiscoveredLog, texts ...string) []core.RawLine {
	out := make([]core.RawLine, len(texts))
	for i, s := range texts {
		out[i] = core.RawLine{Log: log, Text: s, Tick: 1}
	}
	return out
}

func TestRawFilterScenario(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRouter(t, sink, Options{Filter: Filter{Raw: regexp.MustCompile(`ERROR|WARN`)}})
	log := &core.DiscoveredLog{Path: "/var/log/app.log", PIDs: []int{7}}

	n := r.Route(rawLines(log, "ERROR foo", "INFO bar", "WARN baz"))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("passed: got %d, want 2", n)
	}
	if !reflect.DeepEqual(sink.order, []string{"ERROR foo", "WARN baz"}) {
		t.Errorf("got %v", sink.order)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
}

func TestStructuredFilterConjunction(t *testing.T) {
	fields := map[string]string{"level": "ERROR", "id": "main"}
	tests := []struct {
		name   string
		filter map[string]*regexp.Regexp
		fields map[string]string
		want   bool
	}{
		{"single field", map[string]*regexp.Regexp{"level": regexp.MustCompile("ERROR|WARN")}, fields, true},
		{"one field fails", map[string]*regexp.Regexp{"level": regexp.MustCompile("ERROR"), "id": regexp.MustCompile("x")}, fields, false},
		{"missing field", map[string]*regexp.Regexp{"thread": regexp.MustCompile(".")}, fields, false},
		{"format did not match", map[string]*regexp.Regexp{"level": regexp.MustCompile(".")}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Filter{Fields: tt.filter}
			if got := f.Pass("raw text", tt.fields); got != tt.want {
				t.Errorf("Pass = %v, want %v", got, tt.want)
			}
		})
	}
	if !(Filter{}).Pass("anything", nil) {
		t.Error("zero filter should pass everything")
	}
}

func TestFormatAndStructuredFilter(t *testing.T) {
	cfg := &manifest.Manifest{Entries: []manifest.Entry{
		{Pattern: `app\.log$`, Label: "app", Color: "cyan", Format: `^(?P<level>[A-Z]+) \[(?P<id>\w+)\] (?P<text>.*)$`},
	}}
	cfg.Compile()

	sink := &recordingSink{}
	r := newTestRouter(t, sink, Options{
		Config: cfg,
		Filter: Filter{Fields: map[string]*regexp.Regexp{"level": regexp.MustCompile("ERROR|WARN")}},
	})
	log := &core.DiscoveredLog{Path: "/srv/app.log", PIDs: []int{3}}
	r.Route(rawLines(log, "ERROR [main] disk full", "INFO [main] ok", "continuation without level"))
	r.Close()

	if len(sink.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	want := map[string]string{"level": "ERROR", "id": "main", "text": "disk full"}
	if !reflect.DeepEqual(ev.Fields, want) {
		t.Errorf("fields: got %v", ev.Fields)
	}
	if ev.Label != "app" || ev.Color != "cyan" {
		t.Errorf("style: got %q %q", ev.Label, ev.Color)
	}
}

func TestUnmatchedFormatStillEmitted(t *testing.T) {
	cfg := &manifest.Manifest{Entries: []manifest.Entry{{Pattern: `.`, Format: `^(?P<level>[A-Z]+) `}}}
	cfg.Compile()
	sink := &recordingSink{}
	r := newTestRouter(t, sink, Options{Config: cfg})
	log := &core.DiscoveredLog{Path: "/a.log", PIDs: []int{1}}
	r.Route(rawLines(log, "\tat com.example.Main(Main.java:10)", "x INFO not at start"))
	r.Close()

	if len(sink.events) != 2 {
		t.Fatalf("events: got %d", len(sink.events))
	}
	for _, ev := range sink.events {
		if ev.Fields != nil {
			t.Errorf("%q: expected no fields, got %v", ev.Text, ev.Fields)
		}
	}
}

func TestTextFieldWithoutConfiguredFormat(t *testing.T) {
	cfg := &manifest.Manifest{Entries: []manifest.Entry{
		{Pattern: `labeled\.log$`, Label: "labeled"},
		{Pattern: `broken\.log$`, Format: `(?P<text`},
	}}
	cfg.Compile()
	sink := &recordingSink{}
	r := newTestRouter(t, sink, Options{
		Config: cfg,
		Filter: Filter{Fields: map[string]*regexp.Regexp{"text": regexp.MustCompile("crash")}},
	})

	for _, path := range []string{"/var/log/plain.log", "/var/log/labeled.log", "/var/log/broken.log"} {
		log := &core.DiscoveredLog{Path: path, PIDs: []int{1}}
		r.Route(rawLines(log, "all good", "FATAL crash in "+path))
	}
	r.Close()

	if len(sink.events) != 3 {
		t.Fatalf("events: got %d, want 3: %v", len(sink.events), sink.order)
	}
	for _, ev := range sink.events {
		if ev.Fields["text"] != ev.Text {
			t.Errorf("%s: text field %q, want whole line", ev.Path, ev.Fields["text"])
		}
	}
}

func TestAttach(t *testing.T) {
	cfg := &manifest.Manifest{Entries: []manifest.Entry{
		{Pattern: "hive", Label: "hive", Color: "blue"},
		{Pattern: "hive-metadata", Label: "meta", Color: "red"},
		{Pattern: "kafka", Color: "magenta"},
	}}
	cfg.Compile()
	r := newTestRouter(t, &recordingSink{}, Options{Config: cfg, Hosts: []string{"node7"}})
	defer r.Close()

	hive := &core.DiscoveredLog{Path: "/tmp/hive/hive-metadata.log", PIDs: []int{9}}
	r.Attach(hive)
	if hive.Style.Label != "hive" || hive.Style.Color != "blue" {
		t.Errorf("first declared entry should win: %+v", hive.Style)
	}

	kafka := &core.DiscoveredLog{Path: "/var/log/kafka/server-node7.log", PIDs: []int{812, 640}}
	r.Attach(kafka)
	if kafka.Style.Label != "server.log:640" || kafka.Style.Color != "magenta" {
		t.Errorf("kafka: %+v", kafka.Style)
	}

	a := &core.DiscoveredLog{Path: "/x/a.log", PIDs: []int{1}}
	b := &core.DiscoveredLog{Path: "/x/b.log", PIDs: []int{1}}
	r.Attach(a)
	r.Attach(b)
	if a.Style.Color != DefaultPalette[0] || b.Style.Color != DefaultPalette[1] {
		t.Errorf("palette: got %q, %q", a.Style.Color, b.Style.Color)
	}

	// Styles stay stable for the log's lifetime.
	r.Attach(a)
	if a.Style.Color != DefaultPalette[0] {
		t.Errorf("style changed on reattach: %q", a.Style.Color)
	}
}

func TestHighlight(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRouter(t, sink, Options{Highlight: regexp.MustCompile(`ERR\w*|x*`)})
	log := &core.DiscoveredLog{Path: "/a.log", PIDs: []int{1}}
	r.Route(rawLines(log, "ERROR one ERRNO two", "nothing here"))
	r.Close()

	if len(sink.events) != 2 {
		t.Fatalf("highlight must not filter: got %d events", len(sink.events))
	}
	want := []core.Span{{Start: 0, End: 5}, {Start: 10, End: 15}}
	if !reflect.DeepEqual(sink.events[0].Highlights, want) {
		t.Errorf("spans: got %v", sink.events[0].Highlights)
	}
	if sink.events[1].Highlights != nil {
		t.Errorf("unexpected spans %v", sink.events[1].Highlights)
	}
}

func TestAnnouncementsShareOrder(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRouter(t, sink, Options{QueueSize: 1})
	log := &core.DiscoveredLog{Path: "/a.log", PIDs: []int{1}}

	r.Announce(core.LogAdded, log, 1)
	r.Route(rawLines(log, "one", "two"))
	r.Announce(core.LogRemoved, log, 2)
	r.Close()

	want := []string{"added /a.log", "one", "two", "removed /a.log"}
	if !reflect.DeepEqual(sink.order, want) {
		t.Errorf("got %v", sink.order)
	}
	if sink.notices[0].Label != "a.log:1" {
		t.Errorf("label: got %q", sink.notices[0].Label)
	}
}

func TestSinkErrorReported(t *testing.T) {
	boom := errors.New("broken pipe")
	r := newTestRouter(t, &recordingSink{emitErr: boom}, Options{})
	r.Route(rawLines(&core.DiscoveredLog{Path: "/a.log"}, "x"))
	if err := r.Close(); !errors.Is(err, boom) {
		t.Errorf("close: got %v", err)
	}
	if !errors.Is(r.Err(), boom) {
		t.Errorf("Err: got %v", r.Err())
	}
}

func TestNewRejectsBothFilters(t *testing.T) {
	_, err := New(&recordingSink{}, Options{Filter: Filter{
		Raw:    regexp.MustCompile("x"),
		Fields: map[string]*regexp.Regexp{"a": regexp.MustCompile("b")},
	}}, testLogger())
	if err == nil {
		t.Error("expected error")
	}
}

func TestParseFieldFilters(t *testing.T) {
	got, err := ParseFieldFilters([]string{"level=ERROR|WARN", "id=^main$"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got["level"].MatchString("WARN") || got["id"].MatchString("mainly") {
		t.Errorf("got %v", got)
	}
	for _, bad := range []string{"noequals", "=x", "level=(["} {
		if _, err := ParseFieldFilters([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestParseFieldFiltersCommaLists(t *testing.T) {
	tests := []struct {
		spec string
		want map[string]string
	}{
		{"id=a{1,3}", map[string]string{"id": "a{1,3}"}},
		{"level=WARN,thread=main", map[string]string{"level": "WARN", "thread": "main"}},
		{"level=WARN, thread=a,b", map[string]string{"level": "WARN", "thread": "a,b"}},
	}
	for _, tt := range tests {
		got, err := ParseFieldFilters([]string{tt.spec})
		if err != nil {
			t.Fatalf("%q: %v", tt.spec, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%q: got %v", tt.spec, got)
		}
		for name, pattern := range tt.want {
			if got[name] == nil || got[name].String() != pattern {
				t.Errorf("%q: %s = %v, want %q", tt.spec, name, got[name], pattern)
			}
		}
	}
}

func TestShortName(t *testing.T) {
	hosts := []string{"node7.example.com", "node7", "localhost"}
	tests := []struct {
		path, want string
	}{
		{"/var/log/hive/hive-server2-node7.example.com.log", "hive-server.log"},
		{"/var/log/impala/impalad.node7.impala.log.INFO.20240501-101010.1234", "impalad.impala.log.INFO"},
		{"/var/log/app/app.log", "app.log"},
		{"/var/log/2024.log", ".log"},
		{"/tmp/123", "123"},
	}
	for _, tt := range tests {
		if got := ShortName(tt.path, hosts); got != tt.want {
			t.Errorf("ShortName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPaletteCycles(t *testing.T) {
	p := NewPalette([]string{"red", "green"})
	got := []string{p.Next(), p.Next(), p.Next()}
	if !reflect.DeepEqual(got, []string{"red", "green", "red"}) {
		t.Errorf("got %v", got)
	}
}
