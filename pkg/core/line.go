package core

// RawLine is a complete line read from a tailed file, before routing.
type RawLine struct {
	Log  *DiscoveredLog
	Text string
	Tick uint64
	// Final is set on the fragment flushed when a cursor is torn down.
	Final bool
}

// Span is a half-open byte range [Start, End) within a line.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// LineEvent is a routed line ready for rendering. Immutable once produced.
type LineEvent struct {
	Label      string            `json:"label"`
	Color      string            `json:"color"`
	Path       string            `json:"path"`
	Text       string            `json:"text"`
	Fields     map[string]string `json:"fields,omitempty"`
	Highlights []Span            `json:"highlights,omitempty"`
	Tick       uint64            `json:"tick"`
}

// AnnouncementKind tells whether a log started or stopped being followed.
type AnnouncementKind string

const (
	LogAdded   AnnouncementKind = "added"
	LogRemoved AnnouncementKind = "removed"
)

// Announcement is a notice about the set of followed logs.
type Announcement struct {
	Kind  AnnouncementKind `json:"kind"`
	Label string           `json:"label"`
	Color string           `json:"color"`
	Path  string           `json:"path"`
	Tick  uint64           `json:"tick"`
}
