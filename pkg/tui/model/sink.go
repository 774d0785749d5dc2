package model

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/ptail/pkg/core"
)

// Sink feeds a running program. Send blocks until the program takes the
// message and is a no-op once the program has exited.
type Sink struct {
	send func(tea.Msg)
}

// NewSink creates a sink for p.
func NewSink(p *tea.Program) *Sink {
	return &Sink{send: p.Send}
}

func (s *Sink) Emit(ev core.LineEvent) error {
	s.send(lineMsg(ev))
	return nil
}

func (s *Sink) Announce(a core.Announcement) error {
	s.send(announceMsg(a))
	return nil
}

// Close tells the viewer the stream ended.
func (s *Sink) Close() error {
	s.send(finishedMsg{})
	return nil
}

// Finish reports the error that ended the stream.
func (s *Sink) Finish(err error) {
	s.send(finishedMsg{err: err})
}
