package core

import "errors"

var (
	// ErrNoMatchingProcess means the resolver found no targets. Never fatal.
	ErrNoMatchingProcess = errors.New("no matching process")

	// ErrProcessGone means a pid disappeared between enumeration and inspection.
	ErrProcessGone = errors.New("process gone")

	// ErrPermissionDenied means a process's descriptors could not be enumerated.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrLogVanished means a tailed file was removed or became unreadable.
	ErrLogVanished = errors.New("log vanished")

	// ErrBadFormatPattern means a configured capture pattern does not compile.
	ErrBadFormatPattern = errors.New("bad format pattern")

	// ErrMalformedConfig means the log configuration cannot be parsed.
	ErrMalformedConfig = errors.New("malformed configuration")

	// ErrCollaboratorUnavailable means a required OS capability is missing.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
