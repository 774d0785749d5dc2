// Package runner drives the tick loop: resolve targets, discover their logs,
// tail them and route the lines.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/discovery"
	"github.com/modoterra/ptail/pkg/resolver"
	"github.com/modoterra/ptail/pkg/router"
	"github.com/modoterra/ptail/pkg/tail"
)

// Options set the loop cadence.
type Options struct {
	Interval        time.Duration // between ticks
	RefreshInterval time.Duration // between discovery passes
}

// DefaultOptions returns the built-in cadence.
func DefaultOptions() Options {
	return Options{Interval: 500 * time.Millisecond, RefreshInterval: 500 * time.Millisecond}
}

// PollLoop ties the pipeline together.
type PollLoop struct {
	resolver   *resolver.Resolver
	discoverer *discovery.Discoverer
	engine     *tail.Engine
	router     *router.Router
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
	warned     map[int]bool
}

// NewPollLoop creates a poll loop.
func NewPollLoop(res *resolver.Resolver, disc *discovery.Discoverer, engine *tail.Engine, rt *router.Router, opts Options, logger *slog.Logger) *PollLoop {
	return &PollLoop{
		resolver:   res,
		discoverer: disc,
		engine:     engine,
		router:     rt,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		warned:     make(map[int]bool),
	}
}

// Run ticks until ctx is cancelled or the output fails. On the way out every
// pending fragment is flushed through the router.
func (pl *PollLoop) Run(ctx context.Context) error {
	reg := NewRegistry(pl.engine)
	defer pl.shutdown(reg)

	pl.tick(ctx, reg)

	ticker := time.NewTicker(pl.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pl.tick(ctx, reg)
			if err := pl.router.Err(); err != nil {
				return err
			}
		}
	}
}

func (pl *PollLoop) tick(ctx context.Context, reg *Registry) {
	reg.Tick++
	if reg.refreshDue(pl.now(), pl.opts.RefreshInterval) {
		pl.discover(ctx, reg)
	}
	pl.router.Route(reg.Engine.Poll(ctx, reg.Tick))
}

func (pl *PollLoop) discover(ctx context.Context, reg *Registry) {
	targets := pl.resolver.Targets(ctx, pl.now())
	next, delta, err := pl.discoverer.Discover(ctx, targets, reg.Logs)
	pl.report(err, targets)
	reg.Logs = next

	for _, l := range delta.Removed {
		pl.router.Route(reg.Engine.Close(l.Identity, reg.Tick))
		if reg.followed[l.Identity] {
			delete(reg.followed, l.Identity)
			pl.router.Announce(core.LogRemoved, l, reg.Tick)
		}
	}
	for _, l := range delta.Added {
		pl.router.Attach(l)
		if err := reg.Engine.Open(l); err != nil {
			pl.logger.Warn("cannot follow log", "path", l.Path, "err", err)
			continue
		}
		reg.followed[l.Identity] = true
		pl.router.Announce(core.LogAdded, l, reg.Tick)
	}
	if !delta.Empty() {
		pl.logger.Debug("discovery", "added", len(delta.Added), "removed", len(delta.Removed), "logs", len(next))
	}
}

// report warns once per process about descriptor enumeration failures.
func (pl *PollLoop) report(err error, targets []core.TargetProcess) {
	live := make(map[int]bool, len(targets))
	for _, t := range targets {
		live[t.PID] = true
	}
	for pid := range pl.warned {
		if !live[pid] {
			delete(pl.warned, pid)
		}
	}
	if err == nil {
		return
	}

	errs := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	}
	for _, e := range errs {
		var pe *discovery.ProcessError
		if !errors.As(e, &pe) {
			pl.logger.Warn("discovery", "err", e)
			continue
		}
		if pl.warned[pe.Process.PID] {
			continue
		}
		pl.warned[pe.Process.PID] = true
		if errors.Is(pe, core.ErrPermissionDenied) {
			pl.logger.Warn("cannot list open files, try --user", "process", pe.Process.String(), "err", pe.Err)
		} else {
			pl.logger.Warn("cannot list open files", "process", pe.Process.String(), "err", pe.Err)
		}
	}
}

func (pl *PollLoop) shutdown(reg *Registry) {
	pl.router.Route(reg.Engine.CloseAll(reg.Tick))
}
