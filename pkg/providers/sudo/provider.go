// Package sudo runs descriptor enumeration and file classification as another
// user through sudo, for processes ptail's own user cannot inspect.
package sudo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/textclass"
)

// listFDs prints one "fd<TAB>dev ino mode size<TAB>target" record per descriptor.
const listFDs = `cd "/proc/$1/fd" || exit 3
for fd in *; do
  t=$(readlink "$fd") || continue
  s=$(stat -L -c '%d %i %f %s' "$fd" 2>/dev/null) || continue
  printf '%s\t%s\t%s\n' "$fd" "$s" "$t"
done`

const headFile = `head -c 512 -- "$1"`

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Inspector enumerates descriptors as User. Process enumeration itself is not
// privileged and is delegated to the wrapped inspector.
type Inspector struct {
	User   string
	local  core.Inspector
	run    runFunc
	logger *slog.Logger
}

// New creates a sudo-backed inspector for user.
func New(user string, local core.Inspector, logger *slog.Logger) *Inspector {
	return &Inspector{User: user, local: local, run: runCommand, logger: logger}
}

// Available checks that sudo can be found.
func (i *Inspector) Available() error {
	if _, err := exec.LookPath("sudo"); err != nil {
		return fmt.Errorf("sudo: %w: %v", core.ErrCollaboratorUnavailable, err)
	}
	return nil
}

func (i *Inspector) Processes(ctx context.Context) ([]core.TargetProcess, error) {
	return i.local.Processes(ctx)
}

func (i *Inspector) Process(ctx context.Context, pid int) (core.TargetProcess, error) {
	return i.local.Process(ctx, pid)
}

func (i *Inspector) OpenFiles(ctx context.Context, pid int) ([]core.OpenFile, error) {
	stdout, stderr, err := i.shell(ctx, listFDs, strconv.Itoa(pid))
	if err != nil {
		msg := string(stderr)
		switch {
		case strings.Contains(msg, "No such file"):
			return nil, fmt.Errorf("pid %d: %w", pid, core.ErrProcessGone)
		case strings.Contains(msg, "Permission denied"), strings.Contains(msg, "password is required"):
			return nil, fmt.Errorf("pid %d as %s: %w", pid, i.User, core.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("pid %d as %s: %w: %s", pid, i.User, err, strings.TrimSpace(msg))
	}
	return parseFDListing(stdout, i.logger), nil
}

// Classify reads the file head as User and sniffs it.
func (i *Inspector) Classify(ctx context.Context, path string) (core.FileKind, error) {
	stdout, stderr, err := i.shell(ctx, headFile, path)
	if err != nil {
		return "", fmt.Errorf("head %s as %s: %w: %s", path, i.User, err, strings.TrimSpace(string(stderr)))
	}
	return textclass.Sniff(stdout), nil
}

func (i *Inspector) shell(ctx context.Context, script string, args ...string) ([]byte, []byte, error) {
	argv := append([]string{"-n", "-u", i.User, "sh", "-c", script, "ptail"}, args...)
	return i.run(ctx, "sudo", argv...)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func parseFDListing(out []byte, logger *slog.Logger) []core.OpenFile {
	var files []core.OpenFile
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		of, err := parseFDRecord(line)
		if err != nil {
			logger.Debug("skipping descriptor record", "line", line, "err", err)
			continue
		}
		if strings.HasSuffix(of.Path, " (deleted)") {
			continue
		}
		files = append(files, of)
	}
	return files
}

func parseFDRecord(line string) (core.OpenFile, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return core.OpenFile{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}
	fd, err := strconv.Atoi(parts[0])
	if err != nil {
		return core.OpenFile{}, fmt.Errorf("fd: %w", err)
	}
	st := strings.Fields(parts[1])
	if len(st) != 4 {
		return core.OpenFile{}, fmt.Errorf("stat: expected 4 fields, got %d", len(st))
	}
	dev, err := strconv.ParseUint(st[0], 10, 64)
	if err != nil {
		return core.OpenFile{}, fmt.Errorf("dev: %w", err)
	}
	ino, err := strconv.ParseUint(st[1], 10, 64)
	if err != nil {
		return core.OpenFile{}, fmt.Errorf("ino: %w", err)
	}
	mode, err := strconv.ParseUint(st[2], 16, 32)
	if err != nil {
		return core.OpenFile{}, fmt.Errorf("mode: %w", err)
	}
	size, err := strconv.ParseInt(st[3], 10, 64)
	if err != nil {
		return core.OpenFile{}, fmt.Errorf("size: %w", err)
	}
	return core.OpenFile{
		FD:       fd,
		Path:     parts[2],
		Identity: core.FileIdentity{Dev: dev, Ino: ino},
		Regular:  mode&0xf000 == 0x8000,
		Size:     size,
	}, nil
}
