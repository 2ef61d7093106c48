// Package progress records pipeline events and fans them out to listeners.
package progress

import (
	"sync"
	"time"
)

// Event is one observable step of a run.
type Event struct {
	RunID    string    `json:"run_id"`
	Stage    string    `json:"stage"`
	State    string    `json:"state"`
	Attempt  int       `json:"attempt,omitempty"`
	Coverage float64   `json:"coverage,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// Terminal states of a run.
const (
	StateDone   = "done"
	StateFailed = "failed"
)

// Sink receives events.
type Sink interface {
	Add(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Add(e Event) { f(e) }

// MemoryStore keeps the most recent events and emits each on a buffered channel.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
	now      func() time.Time
}

// NewStore creates a store retaining maxEntries events.
func NewStore(maxEntries, eventBuffer int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &MemoryStore{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
		now:      time.Now,
	}
}

// Add stores e, stamping it when Time is zero, and emits it.
func (s *MemoryStore) Add(e Event) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	s.mu.Unlock()

	s.Emit(e)
}

// ForRun returns the retained events of one run, oldest first.
func (s *MemoryStore) ForRun(runID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// Events returns the channel for emitted events.
func (s *MemoryStore) Events() <-chan Event {
	return s.eventsCh
}

// Emit sends an event (non-blocking). Events are dropped when no one keeps up.
func (s *MemoryStore) Emit(e Event) {
	select {
	case s.eventsCh <- e:
	default:
	}
}

// Entries returns a copy of all retained events.
func (s *MemoryStore) Entries() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Event, len(s.entries))
	copy(result, s.entries)
	return result
}

// Tee forwards every event to each non-nil sink.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Add(e)
			}
		}
	})
}
