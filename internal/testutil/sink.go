package testutil

import (
	"sync"

	"github.com/parleyhq/parley/core"
)

// CapturingSink records every emitted event for later assertions. Safe for
// concurrent use.
type CapturingSink struct {
	mu     sync.Mutex
	events []core.Event
}

// NewCapturingSink creates an empty sink.
func NewCapturingSink() *CapturingSink { return &CapturingSink{} }

// Emit implements core.EventSink.
func (s *CapturingSink) Emit(ev core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of everything emitted so far.
func (s *CapturingSink) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns the captured events with the given name, in emission order.
func (s *CapturingSink) Named(name string) []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for _, ev := range s.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}
