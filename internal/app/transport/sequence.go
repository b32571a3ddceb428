package transport

// Sequencer stamps outgoing commands and filters incoming events.
//
// An event is stale if it was produced before the latest load or stop
// command was processed, or if an event with a higher sequence number was
// already accepted. It is not safe for concurrent use.
type Sequencer struct {
	last        uint64 // Last stamped sequence number
	floor       uint64 // Events below this are stale
	lastApplied uint64 // Highest accepted event sequence number
}

// Stamp assigns the next sequence number to cmd and returns it. Load and
// stop commands cancel interest in everything sent before them.
func (s *Sequencer) Stamp(cmd *Command) uint64 {
	s.last++
	cmd.Seq = s.last
	if cmd.Kind == CommandLoad || cmd.Kind == CommandStop {
		s.floor = s.last
	}
	return s.last
}

// Fence discards events for every command stamped so far, e.g. after a fatal
// transport error.
func (s *Sequencer) Fence() {
	s.floor = s.last + 1
}

// Accept reports whether ev is current and records it as applied.
func (s *Sequencer) Accept(ev Event) bool {
	if ev.Seq < s.floor || ev.Seq < s.lastApplied {
		return false
	}
	s.lastApplied = ev.Seq
	return true
}

// Last returns the last stamped sequence number.
func (s *Sequencer) Last() uint64 {
	return s.last
}

// Floor returns the lowest sequence number still accepted.
func (s *Sequencer) Floor() uint64 {
	return s.floor
}
