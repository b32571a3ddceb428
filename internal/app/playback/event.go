package playback

// Cause tells what triggered a state change.
type Cause int

const (
	CauseTrackLoad Cause = iota // New track loaded
	CauseIntent                 // Local play/pause applied optimistically
	CauseNative                 // Transport reported a state
	CauseTimeout                // Intent not confirmed in time, reverted
	CauseRejected               // Transport rejected the command, reverted
	CauseStop                   // Stop forced by the engine
	CauseAcknowledge            // Stop acknowledged
)

// String returns the string representation of the cause.
func (c Cause) String() string {
	switch c {
	case CauseTrackLoad:
		return "track_load"
	case CauseIntent:
		return "intent"
	case CauseNative:
		return "native"
	case CauseTimeout:
		return "timeout"
	case CauseRejected:
		return "rejected"
	case CauseStop:
		return "stop"
	case CauseAcknowledge:
		return "acknowledge"
	default:
		return "unknown"
	}
}

// StateChange is reported whenever the displayed state changes.
type StateChange struct {
	Previous State
	Current  State
	Cause    Cause
}

// Action is what the engine must do after a native event.
type Action int

const (
	ActionNone    Action = iota
	ActionAdvance        // Current track ended, move on
)
