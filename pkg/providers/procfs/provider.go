// Package procfs inspects processes and their open descriptors through /proc.
package procfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"

	"github.com/modoterra/ptail/pkg/core"
)

const deletedSuffix = " (deleted)"

// Inspector implements core.Inspector for the local host.
type Inspector struct {
	procRoot string
	logger   *slog.Logger
}

// New creates a new procfs inspector.
func New(logger *slog.Logger) *Inspector {
	return &Inspector{procRoot: "/proc", logger: logger}
}

// Available checks that per-process descriptor tables can be read at all.
func (i *Inspector) Available() error {
	if _, err := os.ReadDir(filepath.Join(i.procRoot, "self", "fd")); err != nil {
		return fmt.Errorf("%s/self/fd: %w: %v", i.procRoot, core.ErrCollaboratorUnavailable, err)
	}
	return nil
}

func (i *Inspector) Processes(ctx context.Context) ([]core.TargetProcess, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	out := make([]core.TargetProcess, 0, len(procs))
	for _, p := range procs {
		tp, err := i.describe(ctx, p)
		if err != nil {
			continue // exited while listing
		}
		out = append(out, tp)
	}
	return out, nil
}

func (i *Inspector) Process(ctx context.Context, pid int) (core.TargetProcess, error) {
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return core.TargetProcess{}, fmt.Errorf("pid %d: %w", pid, err)
	}
	if !exists {
		return core.TargetProcess{}, fmt.Errorf("pid %d: %w", pid, core.ErrProcessGone)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return core.TargetProcess{}, fmt.Errorf("pid %d: %w", pid, core.ErrProcessGone)
	}
	return i.describe(ctx, p)
}

func (i *Inspector) describe(ctx context.Context, p *process.Process) (core.TargetProcess, error) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return core.TargetProcess{}, err
	}
	cmdline, _ := p.CmdlineWithContext(ctx)
	pid := int(p.Pid)
	return core.TargetProcess{
		PID:     pid,
		Name:    name,
		Cmdline: strings.TrimSpace(cmdline),
		Root:    i.root(pid),
	}, nil
}

// root returns the process root directory, or "" when it cannot be read.
func (i *Inspector) root(pid int) string {
	target, err := os.Readlink(filepath.Join(i.procRoot, strconv.Itoa(pid), "root"))
	if err != nil {
		return ""
	}
	return target
}

func (i *Inspector) OpenFiles(ctx context.Context, pid int) ([]core.OpenFile, error) {
	p := &process.Process{Pid: int32(pid)}
	stats, err := p.OpenFilesWithContext(ctx)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("pid %d: %w", pid, core.ErrPermissionDenied)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("pid %d: %w", pid, core.ErrProcessGone)
		}
		return nil, fmt.Errorf("pid %d open files: %w", pid, err)
	}

	files := make([]core.OpenFile, 0, len(stats))
	for _, s := range stats {
		if strings.HasSuffix(s.Path, deletedSuffix) {
			continue
		}
		fdPath := filepath.Join(i.procRoot, strconv.Itoa(pid), "fd", strconv.FormatUint(s.Fd, 10))
		var st unix.Stat_t
		if err := unix.Stat(fdPath, &st); err != nil {
			// Descriptor closed since the directory was read.
			continue
		}
		files = append(files, core.OpenFile{
			FD:       int(s.Fd),
			Path:     s.Path,
			Identity: core.FileIdentity{Dev: uint64(st.Dev), Ino: uint64(st.Ino)},
			Regular:  st.Mode&unix.S_IFMT == unix.S_IFREG,
			Size:     st.Size,
		})
	}
	return files, nil
}
