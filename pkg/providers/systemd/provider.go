// Package systemd resolves systemd units to the main pids of their services.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// unitProps is the slice of the D-Bus connection the source needs.
type unitProps interface {
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	GetUnitTypePropertiesContext(ctx context.Context, unit, unitType string) (map[string]interface{}, error)
	Close()
}

// Source yields the MainPID of every active unit in its list.
type Source struct {
	units  []string
	dial   func(ctx context.Context) (unitProps, error)
	logger *slog.Logger
}

// New creates a systemd pid source for the given unit names. Names without a
// suffix are treated as services.
func New(units []string, logger *slog.Logger) *Source {
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, unitName(u))
	}
	return &Source{units: names, dial: dialSystem, logger: logger}
}

func dialSystem(ctx context.Context) (unitProps, error) {
	return dbus.NewWithContext(ctx)
}

func (s *Source) Name() string { return "systemd" }

func (s *Source) PIDs(ctx context.Context) ([]int, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, s.units)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	var pids []int
	for _, u := range units {
		if !running(u.ActiveState, u.SubState) {
			s.logger.Debug("unit not running", "unit", u.Name, "active", u.ActiveState, "sub", u.SubState)
			continue
		}
		props, err := conn.GetUnitTypePropertiesContext(ctx, u.Name, "Service")
		if err != nil {
			s.logger.Warn("unit properties", "unit", u.Name, "err", err)
			continue
		}
		if pid, ok := props["MainPID"].(uint32); ok && pid > 0 {
			pids = append(pids, int(pid))
		}
	}
	return pids, nil
}

func running(active, sub string) bool {
	switch active {
	case "active", "reloading", "deactivating":
		return sub != "exited" && sub != "dead"
	default:
		return false
	}
}

func unitName(u string) string {
	if strings.Contains(u, ".") {
		return u
	}
	return u + ".service"
}
