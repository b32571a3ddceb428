// Package playback provides the player state machine that reconciles local
// intents with the state reported by the native transport.
package playback

// State represents the playback state shown to the user.
type State int

const (
	StateNone      State = iota // Nothing loaded, or stop acknowledged
	StateBuffering              // Track loading, waiting for the transport
	StatePlaying                // Track is playing
	StatePaused                 // Track is paused
	StateStopped                // Playback stopped (end of queue, queue emptied or fatal error)
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether a track is loaded in this state.
func (s State) Active() bool {
	return s == StateBuffering || s == StatePlaying || s == StatePaused
}
