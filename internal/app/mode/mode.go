// Package mode computes queue navigation under shuffle and repeat settings.
package mode

import "math/rand/v2"

// Repeat defines the repeat behavior.
type Repeat int

const (
	RepeatOff Repeat = iota // Stop at the end of the queue
	RepeatOne               // Restart the current track
	RepeatAll               // Wrap to the start of the queue
)

// String returns the repeat mode name.
func (r Repeat) String() string {
	switch r {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Next returns the mode following r in the off -> all -> one cycle.
func (r Repeat) Next() Repeat {
	switch r {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// ParseRepeat converts a string to a Repeat. Unknown values map to RepeatOff.
func ParseRepeat(s string) Repeat {
	switch s {
	case "one", "track":
		return RepeatOne
	case "all", "queue":
		return RepeatAll
	default:
		return RepeatOff
	}
}

// State is the navigation configuration of a queue.
type State struct {
	Shuffle bool
	Repeat  Repeat
}

// Next computes the index to play after current in a queue of the given length.
// ok is false when playback should stop instead (end of queue, or empty queue).
//
// RepeatOne restarts the current track and wins over shuffle. Shuffle draws
// uniformly from [0, length) and never returns current when length > 1; there
// is no precomputed order, so a track may come back later in the session.
func Next(current, length int, m State, rng *rand.Rand) (index int, ok bool) {
	if length <= 0 {
		return -1, false
	}
	if current >= length {
		current = length - 1
	}

	if m.Repeat == RepeatOne && current >= 0 {
		return current, true
	}

	if m.Shuffle {
		return draw(current, length, rng), true
	}

	if current < 0 {
		return 0, true
	}
	if current == length-1 {
		if m.Repeat == RepeatAll {
			return 0, true
		}
		return -1, false
	}
	return current + 1, true
}

// Previous computes the index to play before current. Shuffle is ignored:
// previous always steps back one slot, clamped to 0.
func Previous(current, length int, m State) int {
	if length <= 0 {
		return -1
	}
	if current >= length {
		current = length - 1
	}
	if m.Repeat == RepeatOne && current >= 0 {
		return current
	}
	if current <= 0 {
		return 0
	}
	return current - 1
}

// draw picks a uniform index in [0, length) excluding current.
func draw(current, length int, rng *rand.Rand) int {
	intN := rand.IntN
	if rng != nil {
		intN = rng.IntN
	}
	if length == 1 {
		return 0
	}
	if current < 0 {
		return intN(length)
	}
	// Draw from length-1 slots and skip over current.
	i := intN(length - 1)
	if i >= current {
		i++
	}
	return i
}
