package core

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"syscall"
)

// FileIdentity distinguishes underlying files even when paths collide over time.
type FileIdentity struct {
	Dev uint64 `json:"dev"`
	Ino uint64 `json:"ino"`
}

func (id FileIdentity) String() string {
	return fmt.Sprintf("%d:%d", id.Dev, id.Ino)
}

// IsZero reports whether the identity is unset.
func (id FileIdentity) IsZero() bool {
	return id.Dev == 0 && id.Ino == 0
}

// IdentityOf extracts the device and inode from a stat result.
func IdentityOf(fi fs.FileInfo) (FileIdentity, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return FileIdentity{}, false
	}
	return FileIdentity{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, true
}

// Style is the presentation resolved for a log source.
type Style struct {
	Label  string
	Color  string
	Format *regexp.Regexp // nil when no structured extraction applies
}

// DiscoveredLog is a text log currently held open by at least one target process.
// Exactly one exists per FileIdentity.
type DiscoveredLog struct {
	Path     string       `json:"path"`
	OpenPath string       `json:"-"` // path ptail itself opens; differs from Path for foreign mount namespaces
	Identity FileIdentity `json:"identity"`
	PIDs     []int        `json:"pids"`
	Owners   []string     `json:"owners,omitempty"`
	Style    Style        `json:"-"`
}

// Label returns the resolved label, falling back to the file name.
func (l *DiscoveredLog) Label() string {
	if l.Style.Label != "" {
		return l.Style.Label
	}
	return filepath.Base(l.Path)
}

// ReadPath returns the path used for stat and open calls.
func (l *DiscoveredLog) ReadPath() string {
	if l.OpenPath != "" {
		return l.OpenPath
	}
	return l.Path
}
