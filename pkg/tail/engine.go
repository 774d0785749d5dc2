package tail

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/modoterra/ptail/pkg/core"
)

// Engine owns one cursor per file identity.
type Engine struct {
	opts    Options
	workers int
	cursors map[core.FileIdentity]*Cursor
	order   []core.FileIdentity
	bad     map[core.FileIdentity]bool
	retired map[string]bool // paths closed since the last poll
	logger  *slog.Logger
}

// NewEngine creates an engine polling with at most workers cursors at once.
func NewEngine(opts Options, workers int, logger *slog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		opts:    opts,
		workers: workers,
		cursors: make(map[core.FileIdentity]*Cursor),
		bad:     make(map[core.FileIdentity]bool),
		retired: make(map[string]bool),
		logger:  logger,
	}
}

// Open starts a cursor for log. When a cursor already follows the identity,
// for example one that rotated onto it, that cursor adopts log instead. A log
// replacing a path closed since the last poll is read from the start. A log
// that cannot be opened is marked bad and not retried until it is closed.
func (e *Engine) Open(log *core.DiscoveredLog) error {
	id := log.Identity
	if c, ok := e.cursors[id]; ok {
		c.log = log
		return nil
	}
	if e.bad[id] {
		return nil
	}
	opts := e.opts
	if e.retired[log.Path] {
		opts.FromTop = true
	}
	c, err := Open(log, opts)
	if err != nil {
		e.bad[id] = true
		return err
	}
	e.cursors[id] = c
	e.order = append(e.order, id)
	e.logger.Debug("cursor opened", "path", log.Path, "identity", id, "offset", c.Offset())
	return nil
}

// Close tears down the cursor for id and returns what was still unread,
// ending with the unterminated fragment, if any.
func (e *Engine) Close(id core.FileIdentity, tick uint64) []core.RawLine {
	delete(e.bad, id)
	c, ok := e.cursors[id]
	if !ok {
		return nil
	}
	e.remove(id)
	e.retired[c.log.Path] = true
	return c.Close(tick)
}

func (e *Engine) remove(id core.FileIdentity) {
	delete(e.cursors, id)
	for i, x := range e.order {
		if x == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Has reports whether id has a live cursor.
func (e *Engine) Has(id core.FileIdentity) bool {
	_, ok := e.cursors[id]
	return ok
}

// Bad reports whether id failed to open or vanished and awaits removal.
func (e *Engine) Bad(id core.FileIdentity) bool { return e.bad[id] }

// Len returns the number of live cursors.
func (e *Engine) Len() int { return len(e.cursors) }

// Poll polls every cursor, up to the worker limit in parallel, and returns the
// lines grouped by cursor in the order cursors were opened. A cursor whose
// file vanished is torn down and its fragment flushed after its lines. A
// cursor that followed its path onto a new file is filed under the new
// identity afterwards.
func (e *Engine) Poll(ctx context.Context, tick uint64) []core.RawLine {
	type result struct {
		lines []core.RawLine
		err   error
	}
	results := make([]result, len(e.order))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, id := range e.order {
		c := e.cursors[id]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			lines, err := c.Poll(tick)
			results[i] = result{lines: lines, err: err}
			return nil
		})
	}
	g.Wait()

	// A cursor opened on a file another cursor has just rotated onto started
	// at end of file; the rotated one read it from the start.
	dup := make(map[core.FileIdentity]bool)
	for i, id := range e.order {
		c := e.cursors[id]
		if results[i].err != nil || c.identity == id {
			continue
		}
		if other, ok := e.cursors[c.identity]; ok && other.identity == c.identity {
			dup[c.identity] = true
			c.log = other.log
		}
	}

	var out []core.RawLine
	var gone []core.FileIdentity
	for i, id := range e.order {
		c := e.cursors[id]
		if dup[id] {
			continue
		}
		r := results[i]
		out = append(out, r.lines...)
		if r.err == nil {
			continue
		}
		e.logger.Debug("cursor torn down", "path", c.Log().Path, "err", r.err)
		out = append(out, c.Close(tick)...)
		gone = append(gone, id)
	}
	for id := range dup {
		e.cursors[id].discard()
		e.remove(id)
	}
	for _, id := range gone {
		e.remove(id)
		e.bad[id] = true
	}
	e.rekey()
	clear(e.retired)
	return out
}

// rekey files rotated cursors under the identity they now follow. Of two
// cursors on the same file the one opened first stays.
func (e *Engine) rekey() {
	cursors := make(map[core.FileIdentity]*Cursor, len(e.cursors))
	order := make([]core.FileIdentity, 0, len(e.order))
	for _, id := range e.order {
		c := e.cursors[id]
		cur := c.identity
		if _, taken := cursors[cur]; taken {
			c.discard()
			continue
		}
		cursors[cur] = c
		order = append(order, cur)
		if cur != id {
			delete(e.bad, cur)
			e.logger.Debug("cursor rotated", "path", c.Log().Path, "from", id, "to", cur)
		}
	}
	e.cursors, e.order = cursors, order
}

// CloseAll tears down every cursor in open order and returns the flushed
// fragments.
func (e *Engine) CloseAll(tick uint64) []core.RawLine {
	var out []core.RawLine
	for _, id := range e.order {
		out = append(out, e.cursors[id].Close(tick)...)
	}
	e.cursors = make(map[core.FileIdentity]*Cursor)
	e.order = nil
	e.bad = make(map[core.FileIdentity]bool)
	clear(e.retired)
	return out
}
