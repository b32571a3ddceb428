package playback

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/app/transport"
)

// ErrInvalidTransition is returned when an intent is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("playback: invalid transition")

// Intent is a play or pause request applied optimistically and waiting for
// the transport to confirm it.
type Intent struct {
	Target State
	Seq    uint64
}

// Machine owns the playback state. It never talks to the transport: the
// engine sends commands and feeds native events back in. It is not safe for
// concurrent use.
//
// The machine tracks two states: the displayed state, which includes
// optimistic intents, and the last state confirmed by the transport, which
// the displayed state falls back to when an intent fails.
type Machine struct {
	state     State
	confirmed State
	pending   *Intent

	listeners []func(StateChange)
}

// NewMachine creates a machine in StateNone.
func NewMachine() *Machine {
	return &Machine{}
}

// OnChange registers a listener for displayed state changes.
func (m *Machine) OnChange(fn func(StateChange)) {
	m.listeners = append(m.listeners, fn)
}

// State returns the displayed state.
func (m *Machine) State() State {
	return m.state
}

// Confirmed returns the last state confirmed by the transport.
func (m *Machine) Confirmed() State {
	return m.confirmed
}

// Pending returns the intent awaiting confirmation, if any.
func (m *Machine) Pending() (Intent, bool) {
	if m.pending == nil {
		return Intent{}, false
	}
	return *m.pending, true
}

// TrackLoading moves to Buffering because a new track is being loaded,
// whatever the prior state. Pending intents are dropped.
func (m *Machine) TrackLoading() {
	m.pending = nil
	m.confirmed = StateBuffering
	m.set(StateBuffering, CauseTrackLoad)
}

// Stop forces Stopped.
func (m *Machine) Stop() {
	m.pending = nil
	m.confirmed = StateStopped
	m.set(StateStopped, CauseStop)
}

// Acknowledge moves Stopped to None. It returns false in any other state.
func (m *Machine) Acknowledge() bool {
	if m.state != StateStopped {
		return false
	}
	m.confirmed = StateNone
	m.set(StateNone, CauseAcknowledge)
	return true
}

// RequestPlay records a play command stamped seq. From Paused the displayed
// state flips to Playing right away. It returns false when nothing needs to
// be sent.
func (m *Machine) RequestPlay(seq uint64) (bool, error) {
	switch m.state {
	case StatePaused:
		m.pending = &Intent{Target: StatePlaying, Seq: seq}
		m.set(StatePlaying, CauseIntent)
		return true, nil
	case StatePlaying:
		return false, nil
	case StateBuffering:
		if m.pending != nil && m.pending.Target == StatePaused {
			// Pause requested while loading: cancel it.
			m.pending = &Intent{Target: StatePlaying, Seq: seq}
			return true, nil
		}
		return false, nil
	default:
		return false, errors.Wrapf(ErrInvalidTransition, "play from %s", m.state)
	}
}

// RequestPause records a pause command stamped seq. From Playing the
// displayed state flips to Paused right away; from Buffering it waits for
// the transport to confirm.
func (m *Machine) RequestPause(seq uint64) (bool, error) {
	switch m.state {
	case StatePlaying:
		m.pending = &Intent{Target: StatePaused, Seq: seq}
		m.set(StatePaused, CauseIntent)
		return true, nil
	case StateBuffering:
		m.pending = &Intent{Target: StatePaused, Seq: seq}
		return true, nil
	case StatePaused:
		return false, nil
	default:
		return false, errors.Wrapf(ErrInvalidTransition, "pause from %s", m.state)
	}
}

// Timeout reverts the intent stamped seq to the last confirmed state. It
// returns false if that intent was already confirmed or superseded.
func (m *Machine) Timeout(seq uint64) bool {
	return m.revert(seq, CauseTimeout)
}

// Reject reverts the intent stamped seq because the transport refused it.
func (m *Machine) Reject(seq uint64) bool {
	return m.revert(seq, CauseRejected)
}

func (m *Machine) revert(seq uint64, cause Cause) bool {
	if m.pending == nil || m.pending.Seq != seq {
		return false
	}
	zlog.Debug().Msgf("playback: reverting %s intent seq=%d to %s (%s)",
		m.pending.Target, seq, m.confirmed, cause)
	m.pending = nil
	m.set(m.confirmed, cause)
	return true
}

// Native applies a state reported by the transport with the sequence number
// seq. Events older than the pending intent only update the confirmed state.
func (m *Machine) Native(seq uint64, ns transport.NativeState) Action {
	m.confirmed, _ = transition(m.confirmed, ns)

	next, action := transition(m.state, ns)
	if m.pending != nil {
		if seq < m.pending.Seq {
			zlog.Debug().Msgf("playback: %s seq=%d predates %s intent seq=%d, display kept",
				ns, seq, m.pending.Target, m.pending.Seq)
			if action == ActionAdvance {
				m.pending = nil
			}
			return action
		}
		m.pending = nil
	}
	m.set(next, CauseNative)
	return action
}

// transition is the (state, native event) table. Pairs not listed keep the
// state.
func transition(s State, ns transport.NativeState) (State, Action) {
	switch ns {
	case transport.NativeReady:
		if s == StateBuffering {
			return StatePlaying, ActionNone
		}
	case transport.NativePlaying:
		// None is only left by loading a track.
		switch s {
		case StateBuffering, StatePaused, StatePlaying:
			return StatePlaying, ActionNone
		}
	case transport.NativePaused:
		switch s {
		case StateBuffering, StatePlaying, StatePaused:
			return StatePaused, ActionNone
		}
	case transport.NativeStopped:
		if s.Active() {
			return StateStopped, ActionNone
		}
	case transport.NativeEnded:
		if s.Active() {
			return s, ActionAdvance
		}
	case transport.NativeBuffering:
		// Rebuffering while playing or paused is not surfaced.
		return s, ActionNone
	}
	if ns != transport.NativeNone && ns != transport.NativeBuffering {
		zlog.Debug().Msgf("playback: ignoring native %s in %s", ns, s)
	}
	return s, ActionNone
}

func (m *Machine) set(next State, cause Cause) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	zlog.Debug().Msgf("playback: %s -> %s (%s)", prev, next, cause)
	change := StateChange{Previous: prev, Current: next, Cause: cause}
	for _, fn := range m.listeners {
		fn(change)
	}
}
