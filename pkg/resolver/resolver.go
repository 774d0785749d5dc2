// Package resolver turns pids, name patterns and external selectors into the
// current set of target processes.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/modoterra/ptail/pkg/core"
)

// Selector says which processes to follow. Fields combine as a union.
type Selector struct {
	PIDs    []int
	Pattern *regexp.Regexp // matched against the command line and the process name
	Sources []core.PIDSource
}

// CompilePattern builds a case-insensitive name pattern.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("name pattern %q: %w", expr, err)
	}
	return re, nil
}

// Resolver re-resolves its selector at most once per interval.
type Resolver struct {
	inspector core.Inspector
	sel       Selector
	interval  time.Duration
	self      int
	logger    *slog.Logger

	targets  []core.TargetProcess
	resolved time.Time
	idle     bool
}

// New creates a resolver.
func New(inspector core.Inspector, sel Selector, interval time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		inspector: inspector,
		sel:       sel,
		interval:  interval,
		self:      os.Getpid(),
		logger:    logger,
	}
}

// Resolve computes the target set now. Targets are unique and sorted by pid.
// An empty set wraps core.ErrNoMatchingProcess.
func (r *Resolver) Resolve(ctx context.Context) ([]core.TargetProcess, error) {
	byPID := make(map[int]core.TargetProcess)

	pids := append([]int(nil), r.sel.PIDs...)
	for _, src := range r.sel.Sources {
		got, err := src.PIDs(ctx)
		if err != nil {
			r.logger.Warn("pid source failed", "source", src.Name(), "err", err)
			continue
		}
		pids = append(pids, got...)
	}
	for _, pid := range pids {
		if pid == r.self {
			continue
		}
		if _, ok := byPID[pid]; ok {
			continue
		}
		p, err := r.inspector.Process(ctx, pid)
		if err != nil {
			if !errors.Is(err, core.ErrProcessGone) {
				r.logger.Warn("inspect process", "pid", pid, "err", err)
			}
			continue
		}
		byPID[pid] = p
	}

	if r.sel.Pattern != nil {
		all, err := r.inspector.Processes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list processes: %w", err)
		}
		for _, p := range all {
			if p.PID == r.self {
				continue
			}
			if r.sel.Pattern.MatchString(p.Cmdline) || r.sel.Pattern.MatchString(p.Name) {
				byPID[p.PID] = p
			}
		}
	}

	targets := make([]core.TargetProcess, 0, len(byPID))
	for _, p := range byPID {
		p.Name = DisplayName(p.Cmdline, p.Name)
		targets = append(targets, p)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].PID < targets[j].PID })

	if len(targets) == 0 {
		return nil, core.ErrNoMatchingProcess
	}
	return targets, nil
}

// Targets returns the cached target set, re-resolving when the interval has
// elapsed. Resolution failures keep the previous set.
func (r *Resolver) Targets(ctx context.Context, now time.Time) []core.TargetProcess {
	if !r.resolved.IsZero() && now.Sub(r.resolved) < r.interval {
		return r.targets
	}
	r.resolved = now

	targets, err := r.Resolve(ctx)
	switch {
	case errors.Is(err, core.ErrNoMatchingProcess):
		if !r.idle {
			r.logger.Info("waiting for matching processes")
		}
		r.idle = true
		r.targets = nil
	case err != nil:
		r.logger.Warn("resolve targets", "err", err)
	default:
		if r.idle || len(targets) != len(r.targets) {
			r.logger.Info("targets resolved", "count", len(targets))
		}
		r.idle = false
		r.targets = targets
	}
	return r.targets
}
