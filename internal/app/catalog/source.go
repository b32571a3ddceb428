// Package catalog fetches track lists from read-only catalog sources.
package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tapedeck/internal/domain/track"
	"github.com/osa030/tapedeck/internal/infra/lastfm"
)

var (
	// ErrUnsupported is returned when no source accepts a reference.
	ErrUnsupported = errors.New("no catalog source supports this reference")
	// ErrNotFound is returned when a source knows the reference scheme but
	// has no such collection.
	ErrNotFound = errors.New("collection not found")
)

// Source is a read-only collection backend. A reference is a
// source-specific playlist or album locator such as a Spotify URI or
// "library:<id>".
type Source interface {
	// Name returns the source type (used in config).
	Name() string
	// Supports reports whether ref is in a format this source understands.
	Supports(ref string) bool
	// Fetch returns the tracks of the collection in play order.
	Fetch(ctx context.Context, ref string) ([]track.Ref, error)
}

// SpotifyClient defines the Spotify operations needed by the Spotify source.
type SpotifyClient interface {
	GetTrack(ctx context.Context, trackID string) (track.Ref, error)
	GetPlaylistTracks(ctx context.Context, playlistURL string) ([]track.Ref, error)
	GetAlbumTracks(ctx context.Context, albumURL string) ([]track.Ref, error)
}

// LastFmClient defines the Last.fm operations needed for enrichment.
type LastFmClient interface {
	GetTrackInfo(ctx context.Context, trackName, artistName string) (lastfm.TrackInfo, error)
}
