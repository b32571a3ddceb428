// Package queue provides the playing queue: the ordered track list, the
// current index and the shuffle/repeat configuration.
package queue

import (
	"math/rand/v2"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// Errors
var (
	ErrOutOfRange = errors.New("queue: index out of range")
	ErrEndOfQueue = errors.New("queue: end of queue")
	ErrEmpty      = errors.New("queue: empty")
)

// Reason tells why the current track changed.
type Reason int

const (
	ReasonReplaced Reason = iota // SetQueue
	ReasonAdvanced               // Advance
	ReasonRewound                // Rewind
	ReasonRemoved                // current entry removed
	ReasonJumped                 // JumpTo
	ReasonCleared                // Clear
)

// String returns the string representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonReplaced:
		return "replaced"
	case ReasonAdvanced:
		return "advanced"
	case ReasonRewound:
		return "rewound"
	case ReasonRemoved:
		return "removed"
	case ReasonJumped:
		return "jumped"
	case ReasonCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// TrackChange is emitted when the current track changes and the transport
// must load a new track. Current is nil when the queue became empty.
type TrackChange struct {
	Reason        Reason
	Previous      *track.Entry
	Current       *track.Entry
	PreviousIndex int
	Index         int
}

// Store owns the queue. It is not safe for concurrent use: the engine loop
// is its only caller.
type Store struct {
	items   []track.Entry
	current int // -1 if nothing current
	mode    mode.State
	rng     *rand.Rand

	listeners []func(TrackChange)
}

// NewStore creates an empty store. rng drives shuffle draws; nil uses the
// global source.
func NewStore(rng *rand.Rand) *Store {
	return &Store{
		items:   make([]track.Entry, 0),
		current: -1,
		rng:     rng,
	}
}

// OnTrackChanged registers a listener for track changes.
func (s *Store) OnTrackChanged(fn func(TrackChange)) {
	s.listeners = append(s.listeners, fn)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.items)
}

// IsEmpty returns true if the queue has no entries.
func (s *Store) IsEmpty() bool {
	return len(s.items) == 0
}

// CurrentIndex returns the current index (-1 if none).
func (s *Store) CurrentIndex() int {
	return s.current
}

// Current returns a copy of the current entry, or nil if none.
func (s *Store) Current() *track.Entry {
	return s.at(s.current)
}

// Items returns a copy of all entries.
func (s *Store) Items() []track.Entry {
	return slices.Clone(s.items)
}

// At returns a copy of the entry at index, or nil if out of range.
func (s *Store) At(index int) *track.Entry {
	return s.at(index)
}

// IndexOf returns the index of the entry with the given instance ID, or -1.
func (s *Store) IndexOf(instanceID string) int {
	_, idx, ok := lo.FindIndexOf(s.items, func(e track.Entry) bool {
		return e.InstanceID == instanceID
	})
	if !ok {
		return -1
	}
	return idx
}

// Mode returns the shuffle/repeat configuration.
func (s *Store) Mode() mode.State {
	return s.mode
}

// SetRepeat sets the repeat mode.
func (s *Store) SetRepeat(r mode.Repeat) {
	s.mode.Repeat = r
}

// CycleRepeat advances the repeat mode and returns the new value.
func (s *Store) CycleRepeat() mode.Repeat {
	s.mode.Repeat = s.mode.Repeat.Next()
	return s.mode.Repeat
}

// SetShuffle enables or disables shuffle.
func (s *Store) SetShuffle(enabled bool) {
	s.mode.Shuffle = enabled
}

// ToggleShuffle flips shuffle and returns the new value.
func (s *Store) ToggleShuffle() bool {
	s.mode.Shuffle = !s.mode.Shuffle
	return s.mode.Shuffle
}

// SetQueue replaces the queue wholesale. startIndex is clamped into range.
// The current track always changes, even when the new queue is empty.
func (s *Store) SetQueue(refs []track.Ref, startIndex int) error {
	if err := validateAll(refs); err != nil {
		return err
	}

	prev, prevIdx := s.Current(), s.current
	s.items = track.NewEntries(refs)
	switch {
	case len(s.items) == 0:
		s.current = -1
	case startIndex < 0:
		s.current = 0
	case startIndex >= len(s.items):
		s.current = len(s.items) - 1
	default:
		s.current = startIndex
	}

	s.emit(ReasonReplaced, prev, prevIdx)
	return nil
}

// Add appends a track without changing the current index.
func (s *Store) Add(refs ...track.Ref) error {
	if err := validateAll(refs); err != nil {
		return err
	}
	s.items = append(s.items, track.NewEntries(refs)...)
	return nil
}

// InsertNext inserts a track right after the current one without changing
// the current index. With no current track it goes to the front.
func (s *Store) InsertNext(ref track.Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s.items = slices.Insert(s.items, s.current+1, track.NewEntry(ref))
	return nil
}

// Remove removes the entry at index.
//
// Removing an entry before the current one shifts the index down. Removing
// the current entry keeps the numeric index, which now points at the entry
// that slid into the gap (clamped to the new last entry), and reports a track
// change; if the queue became empty the index becomes -1.
func (s *Store) Remove(index int) error {
	if !s.valid(index) {
		err := errors.Wrapf(ErrOutOfRange, "remove %d (len %d)", index, len(s.items))
		zlog.Warn().Msgf("queue: %v", err)
		return err
	}

	prev, prevIdx := s.Current(), s.current
	s.items = slices.Delete(s.items, index, index+1)

	switch {
	case index < s.current:
		s.current--
	case index == s.current:
		if len(s.items) == 0 {
			s.current = -1
		} else if s.current >= len(s.items) {
			s.current = len(s.items) - 1
		}
		s.emit(ReasonRemoved, prev, prevIdx)
	}
	return nil
}

// Reorder moves the entry at from so that it ends up at to. The current
// index follows the entry that was current before the move.
func (s *Store) Reorder(from, to int) error {
	if !s.valid(from) || !s.valid(to) {
		err := errors.Wrapf(ErrOutOfRange, "reorder %d -> %d (len %d)", from, to, len(s.items))
		zlog.Warn().Msgf("queue: %v", err)
		return err
	}
	if from == to {
		return nil
	}

	moved := s.items[from]
	s.items = slices.Delete(s.items, from, from+1)
	s.items = slices.Insert(s.items, to, moved)

	switch {
	case from == s.current:
		s.current = to
	case from < s.current && s.current <= to:
		s.current--
	case to <= s.current && s.current < from:
		s.current++
	}
	return nil
}

// Advance moves to the next track according to the mode.
// Returns ErrEndOfQueue (index unchanged) when playback should stop.
func (s *Store) Advance() error {
	if len(s.items) == 0 {
		return ErrEmpty
	}
	next, ok := mode.Next(s.current, len(s.items), s.mode, s.rng)
	if !ok {
		return ErrEndOfQueue
	}
	prev, prevIdx := s.Current(), s.current
	s.current = next
	s.emit(ReasonAdvanced, prev, prevIdx)
	return nil
}

// Rewind moves to the previous track. Shuffle is ignored.
func (s *Store) Rewind() error {
	if len(s.items) == 0 {
		return ErrEmpty
	}
	prev, prevIdx := s.Current(), s.current
	s.current = mode.Previous(s.current, len(s.items), s.mode)
	s.emit(ReasonRewound, prev, prevIdx)
	return nil
}

// JumpTo makes the entry at index current.
func (s *Store) JumpTo(index int) error {
	if !s.valid(index) {
		err := errors.Wrapf(ErrOutOfRange, "jump to %d (len %d)", index, len(s.items))
		zlog.Warn().Msgf("queue: %v", err)
		return err
	}
	prev, prevIdx := s.Current(), s.current
	s.current = index
	s.emit(ReasonJumped, prev, prevIdx)
	return nil
}

// Clear removes every entry. A track change is reported if something was
// current.
func (s *Store) Clear() {
	prev, prevIdx := s.Current(), s.current
	s.items = s.items[:0]
	s.current = -1
	if prev != nil {
		s.emit(ReasonCleared, prev, prevIdx)
	}
}

// ReplaceTrack swaps the descriptor of the entry at index, keeping its
// instance identity. No track change is reported.
func (s *Store) ReplaceTrack(index int, ref track.Ref) error {
	if !s.valid(index) {
		return errors.Wrapf(ErrOutOfRange, "replace %d (len %d)", index, len(s.items))
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	s.items[index].Ref = ref
	return nil
}

// Restore loads a previously saved queue without reporting a track change.
// An index past the end is clamped.
func (s *Store) Restore(entries []track.Entry, index int, m mode.State) {
	s.items = slices.Clone(entries)
	s.mode = m
	switch {
	case len(s.items) == 0, index < 0:
		s.current = -1
	case index >= len(s.items):
		s.current = len(s.items) - 1
	default:
		s.current = index
	}
}

func (s *Store) valid(index int) bool {
	return index >= 0 && index < len(s.items)
}

func (s *Store) at(index int) *track.Entry {
	if !s.valid(index) {
		return nil
	}
	e := s.items[index]
	return &e
}

func (s *Store) emit(reason Reason, prev *track.Entry, prevIdx int) {
	change := TrackChange{
		Reason:        reason,
		Previous:      prev,
		Current:       s.Current(),
		PreviousIndex: prevIdx,
		Index:         s.current,
	}
	zlog.Debug().Msgf("queue: track changed: reason=%s index=%d->%d len=%d",
		reason, prevIdx, s.current, len(s.items))
	for _, fn := range s.listeners {
		fn(change)
	}
}

func validateAll(refs []track.Ref) error {
	for i, r := range refs {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "track %d", i)
		}
	}
	return nil
}
