// Package playlist provides the Playlist domain entity returned by catalog sources.
package playlist

import (
	"time"

	"github.com/samber/lo"

	"github.com/osa030/tapedeck/internal/domain/track"
)

// Playlist is a read-only collection of tracks fetched from a catalog source
// (a playlist or an album).
type Playlist struct {
	ID     string      // Source-specific ID
	Name   string      // Display name
	Source string      // Name of the catalog source that produced it
	Tracks []track.Ref // Tracks in play order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return lo.Map(p.Tracks, func(t track.Ref, _ int) string { return t.ID })
}

// TotalDuration returns the summed known length of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	return lo.SumBy(p.Tracks, func(t track.Ref) time.Duration { return t.Duration() })
}

// MissingArtwork returns the indices of tracks without an artwork URL.
func (p *Playlist) MissingArtwork() []int {
	var idx []int
	for i, t := range p.Tracks {
		if t.ArtworkURL == "" {
			idx = append(idx, i)
		}
	}
	return idx
}
