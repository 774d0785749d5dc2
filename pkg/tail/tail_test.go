package tail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/modoterra/ptail/pkg/core"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func discovered(t *testing.T, path string) *core.DiscoveredLog {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	id, ok := core.IdentityOf(fi)
	if !ok {
		t.Fatal("no identity")
	}
	return &core.DiscoveredLog{Path: path, Identity: id, PIDs: []int{1}}
}

func texts(lines []core.RawLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Text)
	}
	return out
}

func poll(t *testing.T, c *Cursor, tick uint64) []string {
	t.Helper()
	lines, err := c.Poll(tick)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	return texts(lines)
}

func TestCursorStartsAtEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "history 1\nhistory 2\n")

	c, err := Open(discovered(t, path), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)

	if got := poll(t, c, 1); len(got) != 0 {
		t.Fatalf("replayed history: %v", got)
	}
	appendFile(t, path, "fresh\n")
	if got := poll(t, c, 2); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Errorf("got %v", got)
	}
}

func TestCursorFromTop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "one\ntwo\n")

	opts := DefaultOptions()
	opts.FromTop = true
	c, err := Open(discovered(t, path), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)
	if got := poll(t, c, 1); !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Errorf("got %v", got)
	}
}

func TestCursorReassemblesAppends(t *testing.T) {
	payload := "first line\nsecond\n\nfourth has more text\r\nx\ntrailing fragment"
	for _, chunk := range []int{1, 2, 3, 5, 7, 64} {
		path := filepath.Join(t.TempDir(), "app.log")
		writeFile(t, path, "")
		c, err := Open(discovered(t, path), DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}

		var got []string
		for i := 0; i < len(payload); i += chunk {
			end := min(i+chunk, len(payload))
			appendFile(t, path, payload[i:end])
			got = append(got, poll(t, c, uint64(i))...)
		}
		if string(c.Pending()) != "trailing fragment" {
			t.Errorf("chunk %d: pending %q", chunk, c.Pending())
		}
		rest := c.Close(99)
		if len(rest) != 1 || !rest[0].Final {
			t.Fatalf("chunk %d: expected one final fragment, got %+v", chunk, rest)
		}
		got = append(got, rest[0].Text)

		want := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
		if !reflect.DeepEqual(got, want) {
			t.Errorf("chunk %d:\n got %q\nwant %q", chunk, got, want)
		}
	}
}

func TestCursorOffsetTracksTerminators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	c, err := Open(discovered(t, path), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)

	appendFile(t, path, "abc\nde")
	poll(t, c, 1)
	if c.Offset() != 4 {
		t.Errorf("offset: got %d, want 4", c.Offset())
	}
	if string(c.Pending()) != "de" {
		t.Errorf("pending: got %q", c.Pending())
	}
}

func TestCursorRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	writeFile(t, path, "old 1\n")
	c, err := Open(discovered(t, path), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)

	appendFile(t, path, "old partial")
	if got := poll(t, c, 1); len(got) != 0 {
		t.Fatalf("unexpected lines %v", got)
	}

	appendFile(t, path, " done\nold 2\nlast")
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, "new 1\nnew 2\n")

	lines, err := c.Poll(2)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"old partial done", "old 2", "last", "new 1", "new 2"}
	if got := texts(lines); !reflect.DeepEqual(got, want) {
		t.Errorf("after rotation: got %q, want %q", got, want)
	}
	for i, l := range lines {
		if l.Final != (i == 2) {
			t.Errorf("line %d %q: final=%v", i, l.Text, l.Final)
		}
	}
	if c.Offset() != int64(len("new 1\nnew 2\n")) {
		t.Errorf("offset: got %d", c.Offset())
	}
}

func TestCursorTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	c, err := Open(discovered(t, path), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)

	appendFile(t, path, "aaaaaaaa\nbbbbbbbb\ncc")
	poll(t, c, 1)

	if err := os.Truncate(path, 0); err != nil {
		t.Fatal(err)
	}
	appendFile(t, path, "x\n")
	if got := poll(t, c, 2); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("after truncation: got %q", got)
	}
}

func TestCursorReadLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	opts := DefaultOptions()
	opts.ReadLimit = 4
	c, err := Open(discovered(t, path), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)

	appendFile(t, path, "abcdefgh\nij\n")
	var got []string
	for tick := uint64(1); tick <= 3; tick++ {
		got = append(got, poll(t, c, tick)...)
	}
	if !reflect.DeepEqual(got, []string{"abcdefgh", "ij"}) {
		t.Errorf("got %q", got)
	}
	if c.Offset() != 12 {
		t.Errorf("offset: got %d", c.Offset())
	}
}

func TestCursorMaxLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	opts := DefaultOptions()
	opts.MaxLine = 4
	c, err := Open(discovered(t, path), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)

	appendFile(t, path, "abcdef")
	if got := poll(t, c, 1); !reflect.DeepEqual(got, []string{"abcdef"}) {
		t.Errorf("got %q", got)
	}
	if len(c.Pending()) != 0 {
		t.Errorf("pending not bounded: %q", c.Pending())
	}
}

func TestCursorVanished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	c, err := Open(discovered(t, path), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(0)

	os.Remove(path)
	if _, err := c.Poll(1); !errors.Is(err, core.ErrLogVanished) {
		t.Errorf("err: got %v, want ErrLogVanished", err)
	}
}

func testEngine() *Engine {
	return NewEngine(DefaultOptions(), 4, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEngineDeduplicatesAndOrders(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	writeFile(t, a, "")
	writeFile(t, b, "")

	e := testEngine()
	logB := discovered(t, b)
	for _, l := range []*core.DiscoveredLog{logB, discovered(t, a), discovered(t, b)} {
		if err := e.Open(l); err != nil {
			t.Fatal(err)
		}
	}
	if e.Len() != 2 {
		t.Fatalf("cursors: got %d, want 2", e.Len())
	}

	appendFile(t, a, "a1\na2\n")
	appendFile(t, b, "b1\n")
	lines := e.Poll(context.Background(), 1)
	if got := texts(lines); !reflect.DeepEqual(got, []string{"b1", "a1", "a2"}) {
		t.Errorf("got %v", got)
	}
	if lines[0].Log != logB {
		t.Error("line not attributed to its log")
	}
}

func TestEngineRemovalFlushesFragment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	e := testEngine()
	l := discovered(t, path)
	if err := e.Open(l); err != nil {
		t.Fatal(err)
	}

	appendFile(t, path, "partial-lin")
	if got := e.Poll(context.Background(), 1); len(got) != 0 {
		t.Fatalf("unexpected lines %v", texts(got))
	}

	rest := e.Close(l.Identity, 2)
	if len(rest) != 1 || rest[0].Text != "partial-lin" || !rest[0].Final {
		t.Fatalf("final: got %+v", rest)
	}
	if e.Has(l.Identity) {
		t.Error("cursor not torn down")
	}
	if len(e.Close(l.Identity, 3)) != 0 {
		t.Error("second close should yield nothing")
	}
}

func TestEngineVanishedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	e := testEngine()
	l := discovered(t, path)
	if err := e.Open(l); err != nil {
		t.Fatal(err)
	}
	appendFile(t, path, "done\ntail")
	os.Remove(path)

	// The cursor holds the file open but the path is gone.
	lines := e.Poll(context.Background(), 1)
	if got := texts(lines); !reflect.DeepEqual(got, []string{"done", "tail"}) {
		t.Fatalf("got %q", got)
	}
	if lines[0].Final || !lines[1].Final {
		t.Errorf("only the flushed fragment is final: %+v", lines)
	}
	if e.Has(l.Identity) || !e.Bad(l.Identity) {
		t.Error("vanished log should be torn down and marked bad")
	}
	if err := e.Open(l); err != nil || e.Has(l.Identity) {
		t.Error("bad log should not be reopened while discovered")
	}
	e.Close(l.Identity, 2)
	if e.Bad(l.Identity) {
		t.Error("close should clear the bad mark")
	}
}

func TestEngineOpenFailureMarksBad(t *testing.T) {
	e := testEngine()
	l := &core.DiscoveredLog{Path: filepath.Join(t.TempDir(), "missing.log"), Identity: core.FileIdentity{Dev: 1, Ino: 2}}
	if err := e.Open(l); !errors.Is(err, core.ErrLogVanished) {
		t.Fatalf("err: got %v", err)
	}
	if !e.Bad(l.Identity) {
		t.Error("expected bad mark")
	}
	if err := e.Open(l); err != nil {
		t.Errorf("retry should be suppressed, got %v", err)
	}
}

func TestEngineCloseAll(t *testing.T) {
	dir := t.TempDir()
	e := testEngine()
	for _, name := range []string{"x.log", "y.log"} {
		p := filepath.Join(dir, name)
		writeFile(t, p, "")
		if err := e.Open(discovered(t, p)); err != nil {
			t.Fatal(err)
		}
		appendFile(t, p, "frag-"+name)
	}
	e.Poll(context.Background(), 1)

	got := texts(e.CloseAll(2))
	if !reflect.DeepEqual(got, []string{"frag-x.log", "frag-y.log"}) {
		t.Errorf("got %v", got)
	}
	if e.Len() != 0 {
		t.Error("cursors remain")
	}
}

func TestEngineCloseReadsUnpolledBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	e := testEngine()
	l := discovered(t, path)
	if err := e.Open(l); err != nil {
		t.Fatal(err)
	}

	appendFile(t, path, "partial-lin")
	e.Poll(context.Background(), 1)
	appendFile(t, path, "e\nFATAL crash\n")

	rest := e.Close(l.Identity, 2)
	if got := texts(rest); !reflect.DeepEqual(got, []string{"partial-line", "FATAL crash"}) {
		t.Fatalf("got %q", got)
	}
	for _, r := range rest {
		if r.Final {
			t.Errorf("%q: complete lines are not final", r.Text)
		}
	}
}

func TestCursorCloseIgnoresReadLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	c, err := Open(discovered(t, path), Options{ReadLimit: 8, MaxLine: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}

	var want []string
	var sb strings.Builder
	for i := range 20 {
		line := strings.Repeat(string(rune('a'+i)), 5)
		want = append(want, line)
		sb.WriteString(line + "\n")
	}
	sb.WriteString("tail")
	want = append(want, "tail")
	appendFile(t, path, sb.String())

	if got := texts(c.Close(1)); !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEngineVanishedLogDrainsPastReadLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	e := NewEngine(Options{ReadLimit: 4, MaxLine: 1 << 20}, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l := discovered(t, path)
	if err := e.Open(l); err != nil {
		t.Fatal(err)
	}
	appendFile(t, path, "one\ntwo\nthree\nfour")
	os.Remove(path)

	got := texts(e.Poll(context.Background(), 1))
	if !reflect.DeepEqual(got, []string{"one", "two", "three", "four"}) {
		t.Errorf("got %q", got)
	}
}

// rotate moves path aside and creates a new file there.
func rotate(t *testing.T, path, content string) {
	t.Helper()
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, content)
}

func TestEngineRotationKeepsOneCursorPerIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	e := testEngine()
	old := discovered(t, path)
	if err := e.Open(old); err != nil {
		t.Fatal(err)
	}

	rotate(t, path, "")
	e.Poll(context.Background(), 1)

	fresh := discovered(t, path)
	if !e.Has(fresh.Identity) || e.Has(old.Identity) {
		t.Fatal("cursor should be filed under the new identity")
	}
	if err := e.Open(fresh); err != nil {
		t.Fatal(err)
	}
	if e.Len() != 1 {
		t.Fatalf("cursors: got %d, want 1", e.Len())
	}

	appendFile(t, path, "x\n")
	lines := e.Poll(context.Background(), 2)
	if got := texts(lines); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("got %q", got)
	}
	if lines[0].Log != fresh {
		t.Error("rotated cursor should adopt the rediscovered log")
	}
	if len(e.Close(old.Identity, 3)) != 0 || e.Len() != 1 {
		t.Error("closing the old identity must not touch the rotated cursor")
	}
}

func TestEngineRotationDropsLateDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "")
	e := testEngine()
	old := discovered(t, path)
	if err := e.Open(old); err != nil {
		t.Fatal(err)
	}

	// Discovery sees the new file before any poll noticed the rotation.
	rotate(t, path, "first\n")
	fresh := discovered(t, path)
	if err := e.Open(fresh); err != nil {
		t.Fatal(err)
	}
	if e.Len() != 2 {
		t.Fatalf("cursors before poll: got %d", e.Len())
	}

	if got := texts(e.Poll(context.Background(), 1)); !reflect.DeepEqual(got, []string{"first"}) {
		t.Fatalf("got %q", got)
	}
	if e.Len() != 1 || !e.Has(fresh.Identity) {
		t.Fatalf("expected a single cursor on the new identity, have %d", e.Len())
	}

	appendFile(t, path, "x\n")
	lines := e.Poll(context.Background(), 2)
	if got := texts(lines); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("got %q", got)
	}
	if len(lines) == 1 && lines[0].Log != fresh {
		t.Error("surviving cursor should carry the rediscovered log")
	}
}

func TestEngineReplacementOfClosedPathStartsAtTop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, path, "old\n")
	e := testEngine()
	old := discovered(t, path)
	if err := e.Open(old); err != nil {
		t.Fatal(err)
	}

	appendFile(t, path, "last old\n")
	rotate(t, path, "new 1\n")
	fresh := discovered(t, path)

	var got []string
	got = append(got, texts(e.Close(old.Identity, 1))...)
	if err := e.Open(fresh); err != nil {
		t.Fatal(err)
	}
	got = append(got, texts(e.Poll(context.Background(), 1))...)
	if !reflect.DeepEqual(got, []string{"last old", "new 1"}) {
		t.Errorf("got %q", got)
	}

	// Only until the next poll.
	e.Close(fresh.Identity, 2)
	e.Poll(context.Background(), 2)
	if err := e.Open(discovered(t, path)); err != nil {
		t.Fatal(err)
	}
	if got := texts(e.Poll(context.Background(), 3)); len(got) != 0 {
		t.Errorf("reopened after a poll should start at end, got %q", got)
	}
}
