package runner

import (
	"time"

	"github.com/modoterra/ptail/pkg/core"
	"github.com/modoterra/ptail/pkg/discovery"
	"github.com/modoterra/ptail/pkg/tail"
)

// Registry is the state one poll loop owns: the discovered logs and their
// cursors. Only the discovery and tail phases of a tick mutate it.
type Registry struct {
	Logs     discovery.Set
	Engine   *tail.Engine
	Tick     uint64
	followed map[core.FileIdentity]bool
	refresh  time.Time
}

// NewRegistry creates an empty registry around engine.
func NewRegistry(engine *tail.Engine) *Registry {
	return &Registry{
		Logs:     make(discovery.Set),
		Engine:   engine,
		followed: make(map[core.FileIdentity]bool),
	}
}

// refreshDue reports whether discovery should run at now.
func (r *Registry) refreshDue(now time.Time, every time.Duration) bool {
	if !r.refresh.IsZero() && now.Sub(r.refresh) < every {
		return false
	}
	r.refresh = now
	return true
}
