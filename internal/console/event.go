package console

import (
	"fmt"
	"sync"
)

// Kind classifies an Event.
type Kind int

const (
	// KindPhase starts a new output segment.
	KindPhase Kind = iota

	// KindInfo is progress information.
	KindInfo

	// KindWarning is a problem that did not stop the document.
	KindWarning

	// KindError is a failure. Its message names the affected document and
	// the recovery action.
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPhase:
		return "phase"
	case KindInfo:
		return "info"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one structured session step event.
type Event struct {
	Kind    Kind
	Message string
}

// Phase returns a phase start event.
func Phase(name string) Event {
	return Event{Kind: KindPhase, Message: name}
}

// Info returns an info event.
func Info(format string, args ...any) Event {
	return Event{Kind: KindInfo, Message: fmt.Sprintf(format, args...)}
}

// Warning returns a warning event.
func Warning(format string, args ...any) Event {
	return Event{Kind: KindWarning, Message: fmt.Sprintf(format, args...)}
}

// Error returns an error event.
func Error(format string, args ...any) Event {
	return Event{Kind: KindError, Message: fmt.Sprintf(format, args...)}
}

// Emitter receives events.
type Emitter interface {
	Emit(e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(e Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns the number of recorded events of kind.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
