package core

import "context"

// Inspector is the OS process and file-descriptor introspection collaborator.
type Inspector interface {
	// Processes returns every process visible to the inspector.
	Processes(ctx context.Context) ([]TargetProcess, error)

	// Process returns a single process. It wraps ErrProcessGone when pid does not exist.
	Process(ctx context.Context, pid int) (TargetProcess, error)

	// OpenFiles returns the files the process currently holds open.
	// It wraps ErrPermissionDenied when the descriptors cannot be listed.
	OpenFiles(ctx context.Context, pid int) ([]OpenFile, error)
}

// Classifier decides whether a file looks like text.
type Classifier interface {
	Classify(ctx context.Context, path string) (FileKind, error)
}

// FileKind is the verdict of a Classifier.
type FileKind string

const (
	KindText   FileKind = "text"
	KindBinary FileKind = "binary"
	KindEmpty  FileKind = "empty"
)

// PIDSource turns an external selector (systemd unit, container) into host pids.
type PIDSource interface {
	// Name returns the source's identifier (e.g., "systemd", "docker").
	Name() string

	// PIDs returns the host pids currently backing the selector.
	PIDs(ctx context.Context) ([]int, error)
}

// Sink is the Output Renderer contract. Implementations present events in the
// order received and never drop or reorder them.
type Sink interface {
	Emit(ev LineEvent) error
	Announce(a Announcement) error
	Close() error
}
