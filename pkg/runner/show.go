package runner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/discovery"
	"github.com/modoterra/ptail/pkg/render"
	"github.com/modoterra/ptail/pkg/resolver"
)

// Show runs one discovery pass and returns each target with its logs.
func Show(ctx context.Context, res *resolver.Resolver, disc *discovery.Discoverer, logger *slog.Logger) ([]render.ProcessLogs, error) {
	targets, err := res.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	set, _, err := disc.Discover(ctx, targets, nil)
	if err != nil {
		if errors.Is(err, core.ErrPermissionDenied) {
			logger.Warn("some processes could not be inspected, try --user", "err", err)
		} else {
			logger.Warn("discovery", "err", err)
		}
	}

	byPID := make(map[int][]string)
	for _, l := range set.Sorted() {
		for _, pid := range l.PIDs {
			byPID[pid] = append(byPID[pid], l.Path)
		}
	}
	out := make([]render.ProcessLogs, 0, len(targets))
	for _, t := range targets {
		out = append(out, render.ProcessLogs{Process: t, Logs: byPID[t.PID]})
	}
	return out, nil
}
