package transport

import (
	"context"
	"slices"
	"sync"
)

// Recorder is a Transport that records commands and emits whatever events it
// is told to. It is meant for tests.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	err      error
	closed   bool

	eventCh chan Event
}

var _ Transport = (*Recorder)(nil)

// NewRecorder creates a recorder.
func NewRecorder() *Recorder {
	return &Recorder{eventCh: make(chan Event, 64)}
}

// Send records cmd. It returns the error set by FailWith, if any.
func (r *Recorder) Send(_ context.Context, cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.commands = append(r.commands, cmd)
	return r.err
}

// FailWith makes subsequent sends return err. nil restores success.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Emit delivers an event to the engine.
func (r *Recorder) Emit(ev Event) {
	r.eventCh <- ev
}

// Commands returns every command sent so far.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

// Last returns the most recent command of the given kind.
func (r *Recorder) Last(kind CommandKind) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.commands) - 1; i >= 0; i-- {
		if r.commands[i].Kind == kind {
			return r.commands[i], true
		}
	}
	return Command{}, false
}

// Count returns the number of commands of the given kind.
func (r *Recorder) Count(kind CommandKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Events returns the event channel.
func (r *Recorder) Events() <-chan Event {
	return r.eventCh
}

// Close closes the event channel.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.eventCh)
	}
	return nil
}
