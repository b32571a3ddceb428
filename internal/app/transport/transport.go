// Package transport defines the boundary between the player engine and the
// native audio engine: commands going out, events coming back, and the
// sequence numbers that tie the two together.
package transport

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/progress"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// Errors
var (
	ErrCommandTimeout = errors.New("transport: command not confirmed in time")
	ErrCommandFailed  = errors.New("transport: command failed")
	ErrFatal          = errors.New("transport: fatal playback error")
	ErrClosed         = errors.New("transport: closed")
)

// NativeState is the playback state reported by the native engine.
type NativeState int

const (
	NativeNone NativeState = iota
	NativeReady
	NativeBuffering
	NativePlaying
	NativePaused
	NativeStopped
	NativeEnded
)

var nativeStateNames = []string{"none", "ready", "buffering", "playing", "paused", "stopped", "ended"}

// String returns the string representation of the state.
func (s NativeState) String() string {
	if s < 0 || int(s) >= len(nativeStateNames) {
		return "unknown"
	}
	return nativeStateNames[s]
}

// ParseNativeState parses a native state name. Unknown names map to NativeNone.
func ParseNativeState(s string) NativeState {
	for i, name := range nativeStateNames {
		if strings.EqualFold(s, name) {
			return NativeState(i)
		}
	}
	return NativeNone
}

// CommandKind identifies a transport command.
type CommandKind int

const (
	CommandLoad CommandKind = iota
	CommandPlay
	CommandPause
	CommandSeek
	CommandStop
	CommandSetRepeat
)

// String returns the string representation of the command kind.
func (k CommandKind) String() string {
	switch k {
	case CommandLoad:
		return "load"
	case CommandPlay:
		return "play"
	case CommandPause:
		return "pause"
	case CommandSeek:
		return "seek"
	case CommandStop:
		return "stop"
	case CommandSetRepeat:
		return "set_repeat"
	default:
		return "unknown"
	}
}

// Command is sent from the engine to the transport. Seq is stamped by a
// Sequencer just before sending.
type Command struct {
	Seq  uint64
	Kind CommandKind

	// Load
	Track    *track.Ref
	Index    int
	Autoplay bool

	// Seek
	PositionMs int64

	// SetRepeat
	Repeat mode.Repeat
}

// EventKind identifies a transport event.
type EventKind int

const (
	EventTrackChanged EventKind = iota
	EventStateChanged
	EventProgress
	EventError
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is reported by the transport. Seq is the sequence number of the last
// command the transport had processed when the event was produced.
type Event struct {
	Seq  uint64
	Kind EventKind

	Index    int             // TrackChanged
	State    NativeState     // StateChanged
	Progress progress.Sample // Progress

	// Error
	Code    string
	Message string
	Fatal   bool
}

// Err converts an error event into an error wrapping ErrFatal or
// ErrCommandFailed. It returns nil for other kinds.
func (e Event) Err() error {
	if e.Kind != EventError {
		return nil
	}
	base := ErrCommandFailed
	if e.Fatal {
		base = ErrFatal
	}
	return errors.Wrapf(base, "%s: %s", e.Code, e.Message)
}

// Transport is the native audio engine as seen by the player engine.
//
// Send must not block for long: implementations queue the command and report
// its outcome through Events.
type Transport interface {
	Send(ctx context.Context, cmd Command) error
	Events() <-chan Event
	Close() error
}
