package render

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/modoterra/ptail/pkg/core"
)

// JSON writes one object per event.
type JSON struct {
	enc *json.Encoder
	mu  sync.Mutex
}

// NewJSON creates a JSON lines sink writing to w.
func NewJSON(w io.Writer) *JSON {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSON{enc: enc}
}

type lineRecord struct {
	Type string `json:"type"`
	core.LineEvent
}

type announcementRecord struct {
	Type string `json:"type"`
	core.Announcement
}

func (j *JSON) Emit(ev core.LineEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(lineRecord{Type: "line", LineEvent: ev})
}

func (j *JSON) Announce(a core.Announcement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(announcementRecord{Type: "log", Announcement: a})
}

func (j *JSON) Close() error { return nil }
