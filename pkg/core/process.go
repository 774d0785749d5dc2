package core

import (
	"fmt"
	"strconv"
)

// TargetProcess is a process selected for log discovery during one resolution cycle.
type TargetProcess struct {
	PID     int    `json:"pid"`
	Name    string `json:"name"`
	Cmdline string `json:"cmdline,omitempty"`
	// Root is the process root directory as seen from ptail ("/" for processes
	// in the host mount namespace).
	Root string `json:"root,omitempty"`
}

func (p TargetProcess) String() string {
	if p.Name == "" {
		return strconv.Itoa(p.PID)
	}
	return fmt.Sprintf("%s[%d]", p.Name, p.PID)
}

// OpenFile is one open descriptor of a process.
type OpenFile struct {
	FD       int
	Path     string
	Identity FileIdentity
	Regular  bool
	Size     int64
}
