// Package tail follows discovered logs and reassembles their lines.
package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/modoterra/ptail/pkg/core"
)

// Options bound the work a cursor does per poll.
type Options struct {
	ReadLimit int64 // bytes read per cursor per poll
	MaxLine   int   // an unterminated fragment this long is emitted as a line
	FromTop   bool  // start new cursors at offset 0 instead of end of file
}

// DefaultOptions returns the built-in limits.
func DefaultOptions() Options {
	return Options{ReadLimit: 256 << 10, MaxLine: 1 << 20}
}

// Cursor is the read position in one log. It is not safe for concurrent use.
type Cursor struct {
	log      *core.DiscoveredLog
	file     *os.File
	identity core.FileIdentity
	offset   int64 // position just past the last consumed terminator
	pending  []byte
	opts     Options
}

// Open starts following log at end of file, or at 0 with Options.FromTop.
func Open(log *core.DiscoveredLog, opts Options) (*Cursor, error) {
	c := &Cursor{log: log, opts: opts}
	size, err := c.reopen()
	if err != nil {
		return nil, err
	}
	if !opts.FromTop {
		c.offset = size
	}
	return c, nil
}

// Log returns the followed log.
func (c *Cursor) Log() *core.DiscoveredLog { return c.log }

// Offset returns the position just past the last emitted line.
func (c *Cursor) Offset() int64 { return c.offset }

// Pending returns the buffered unterminated fragment.
func (c *Cursor) Pending() []byte { return c.pending }

func (c *Cursor) reopen() (int64, error) {
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
	path := c.log.ReadPath()
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w: %v", path, core.ErrLogVanished, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("stat %s: %w: %v", path, core.ErrLogVanished, err)
	}
	id, _ := core.IdentityOf(fi)
	c.file = f
	c.identity = id
	c.offset = 0
	c.pending = nil
	return fi.Size(), nil
}

// Poll reads what was appended since the last poll and returns the complete
// lines. A changed identity at the path finishes the old file through the
// open handle and reopens the path at offset 0; a size below the read
// position restarts at 0. When the path is gone, the bytes still readable
// through the open handle are returned with ErrLogVanished.
func (c *Cursor) Poll(tick uint64) ([]core.RawLine, error) {
	path := c.log.ReadPath()
	fi, err := os.Stat(path)
	if err != nil {
		return c.drain(tick), fmt.Errorf("stat %s: %w: %v", path, core.ErrLogVanished, err)
	}
	size := fi.Size()

	if id, ok := core.IdentityOf(fi); ok && id != c.identity {
		lines := c.retire(tick)
		if size, err = c.reopen(); err != nil {
			return lines, err
		}
		more, err := c.read(size, tick)
		return append(lines, more...), err
	}
	if size < c.readPos() {
		c.offset = 0
		c.pending = nil
	}
	return c.read(size, tick)
}

func (c *Cursor) read(size int64, tick uint64) ([]core.RawLine, error) {
	pos := c.readPos()
	if size <= pos {
		return nil, nil
	}
	n := size - pos
	if c.opts.ReadLimit > 0 && n > c.opts.ReadLimit {
		n = c.opts.ReadLimit
	}
	buf := make([]byte, n)
	m, err := c.file.ReadAt(buf, pos)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", c.log.ReadPath(), err)
	}
	return c.split(buf[:m], tick), nil
}

// drain reads everything still reachable through the open handle, ignoring
// the per-poll read limit.
func (c *Cursor) drain(tick uint64) []core.RawLine {
	if c.file == nil {
		return nil
	}
	held, err := c.file.Stat()
	if err != nil {
		return nil
	}
	size := held.Size()
	var out []core.RawLine
	for c.readPos() < size {
		before := c.readPos()
		lines, err := c.read(size, tick)
		out = append(out, lines...)
		if err != nil || c.readPos() == before {
			break
		}
	}
	return out
}

// Identity returns the identity of the file currently open, which differs
// from the discovered one after a rotation.
func (c *Cursor) Identity() core.FileIdentity { return c.identity }

func (c *Cursor) readPos() int64 {
	return c.offset + int64(len(c.pending))
}

func (c *Cursor) split(data []byte, tick uint64) []core.RawLine {
	buf := data
	if len(c.pending) > 0 {
		buf = append(c.pending, data...)
	}

	var lines []core.RawLine
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, c.line(bytes.TrimSuffix(buf[:i], []byte{'\r'}), tick, false))
		c.offset += int64(i + 1)
		buf = buf[i+1:]
	}

	if c.opts.MaxLine > 0 && len(buf) >= c.opts.MaxLine {
		lines = append(lines, c.line(buf, tick, false))
		c.offset += int64(len(buf))
		buf = nil
	}
	c.pending = append([]byte(nil), buf...)
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return lines
}

func (c *Cursor) line(b []byte, tick uint64, final bool) core.RawLine {
	return core.RawLine{Log: c.log, Text: string(b), Tick: tick, Final: final}
}

// Close reads what is left through the open handle, releases the file and
// returns the remaining lines. An unterminated tail comes last, marked final.
func (c *Cursor) Close(tick uint64) []core.RawLine {
	lines := c.retire(tick)
	c.discard()
	return lines
}

// retire drains the open file and flushes its unterminated tail.
func (c *Cursor) retire(tick uint64) []core.RawLine {
	lines := c.drain(tick)
	if len(c.pending) == 0 {
		return lines
	}
	lines = append(lines, c.line(c.pending, tick, true))
	c.offset += int64(len(c.pending))
	c.pending = nil
	return lines
}

// discard releases the file without emitting anything.
func (c *Cursor) discard() {
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
}
