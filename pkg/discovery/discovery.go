// Package discovery finds the text logs held open by a set of processes and
// diffs them against the previous pass.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/textclass"
)

// DefaultInclude matches the usual log file extensions.
var DefaultInclude = regexp.MustCompile(`\.(log|trc|out)`)

// Set is the discovered logs keyed by file identity.
type Set map[core.FileIdentity]*core.DiscoveredLog

// Sorted returns the logs ordered by path, then identity.
func (s Set) Sorted() []*core.DiscoveredLog {
	out := make([]*core.DiscoveredLog, 0, len(s))
	for _, l := range s {
		out = append(out, l)
	}
	sortLogs(out)
	return out
}

// Delta is the difference between two discovery passes.
type Delta struct {
	Added   []*core.DiscoveredLog
	Removed []*core.DiscoveredLog
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// ProcessError is a failure to enumerate one process's descriptors.
type ProcessError struct {
	Process core.TargetProcess
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Process, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Discoverer enumerates and filters open files.
type Discoverer struct {
	inspector core.Inspector
	classes   *textclass.Cache
	include   *regexp.Regexp
	logger    *slog.Logger
}

// New creates a discoverer. A nil include pattern selects DefaultInclude.
func New(inspector core.Inspector, classifier core.Classifier, include *regexp.Regexp, logger *slog.Logger) *Discoverer {
	if include == nil {
		include = DefaultInclude
	}
	return &Discoverer{
		inspector: inspector,
		classes:   textclass.NewCache(classifier),
		include:   include,
		logger:    logger,
	}
}

// Discover returns the logs the targets hold open now and the delta against
// prev. Logs present in both passes keep their prev instance. Per-process
// failures are joined into the returned error; the set and delta are valid
// regardless.
func (d *Discoverer) Discover(ctx context.Context, targets []core.TargetProcess, prev Set) (Set, Delta, error) {
	next := make(Set)
	seen := make(map[core.FileIdentity]bool)
	var errs []error

	for _, p := range targets {
		files, err := d.inspector.OpenFiles(ctx, p.PID)
		if err != nil {
			if errors.Is(err, core.ErrProcessGone) {
				d.logger.Debug("process exited during discovery", "pid", p.PID)
				continue
			}
			errs = append(errs, &ProcessError{Process: p, Err: err})
			continue
		}
		for _, f := range files {
			if !f.Regular || f.Identity.IsZero() || !d.include.MatchString(f.Path) {
				continue
			}
			seen[f.Identity] = true

			if l, ok := next[f.Identity]; ok {
				l.PIDs = appendUnique(l.PIDs, p.PID)
				l.Owners = appendUniqueString(l.Owners, p.Name)
				continue
			}

			openPath := hostPath(p, f.Path)
			text, err := d.classes.IsText(ctx, openPath, f.Identity)
			if err != nil {
				d.logger.Debug("classify", "path", f.Path, "err", err)
				continue
			}
			if !text {
				continue
			}

			l := prev[f.Identity]
			if l == nil {
				l = &core.DiscoveredLog{Path: f.Path, Identity: f.Identity}
				if openPath != f.Path {
					l.OpenPath = openPath
				}
			}
			l.PIDs = []int{p.PID}
			l.Owners = []string{p.Name}
			next[f.Identity] = l
		}
	}
	d.classes.Retain(seen)

	var delta Delta
	for id, l := range next {
		if _, ok := prev[id]; !ok {
			delta.Added = append(delta.Added, l)
		}
	}
	for id, l := range prev {
		if _, ok := next[id]; !ok {
			delta.Removed = append(delta.Removed, l)
		}
	}
	sortLogs(delta.Added)
	sortLogs(delta.Removed)

	return next, delta, errors.Join(errs...)
}

// hostPath maps a path seen by p to one ptail can open.
func hostPath(p core.TargetProcess, path string) string {
	if p.Root == "" || p.Root == "/" {
		return path
	}
	return filepath.Join("/proc", strconv.Itoa(p.PID), "root", path)
}

func sortLogs(logs []*core.DiscoveredLog) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].Path != logs[j].Path {
			return logs[i].Path < logs[j].Path
		}
		a, b := logs[i].Identity, logs[j].Identity
		if a.Dev != b.Dev {
			return a.Dev < b.Dev
		}
		return a.Ino < b.Ino
	})
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	s = append(s, v)
	sort.Ints(s)
	return s
}

func appendUniqueString(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
