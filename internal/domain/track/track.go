// Package track provides the TrackRef domain entity and queue entries.
package track

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Ref is an immutable track descriptor.
// It is never mutated in place: metadata changes replace the whole value.
type Ref struct {
	ID         string `json:"id" validate:"required"`          // Stable identity (catalog ID)
	Title      string `json:"title"`                            // Track title
	Artist     string `json:"artist"`                           // Artist display name
	Album      string `json:"album,omitempty"`                  // Album name
	ArtworkURL string `json:"artwork_url,omitempty" validate:"omitempty,url"`
	DurationMs int64  `json:"duration_ms" validate:"gte=0"` // Length known before playback (0 if unknown)
}

var validate = validator.New()

// Validate checks the descriptor before it enters a queue.
func (r Ref) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.Wrapf(err, "invalid track %q", r.ID)
	}
	return nil
}

// Duration returns the known length as a time.Duration.
func (r Ref) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// WithDuration returns a copy of the descriptor with a corrected length.
func (r Ref) WithDuration(ms int64) Ref {
	r.DurationMs = ms
	return r
}

// Entry is one logical track instance inside a queue.
// The same Ref may appear in several entries; InstanceID tells them apart.
type Entry struct {
	InstanceID string
	Ref        Ref
}

// NewEntry wraps a descriptor into a fresh queue instance.
func NewEntry(ref Ref) Entry {
	return Entry{
		InstanceID: uuid.New().String(),
		Ref:        ref,
	}
}

// NewEntries wraps each descriptor into its own queue instance.
func NewEntries(refs []Ref) []Entry {
	entries := make([]Entry, len(refs))
	for i, r := range refs {
		entries[i] = NewEntry(r)
	}
	return entries
}

// Refs returns the descriptors of the given entries, in order.
func Refs(entries []Entry) []Ref {
	refs := make([]Ref, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref
	}
	return refs
}
