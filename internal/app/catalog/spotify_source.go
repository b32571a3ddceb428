package catalog

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/domain/track"
	"github.com/osa030/tapedeck/internal/infra/spotify"
)

// SpotifySourceConfig holds the settings of a Spotify source.
type SpotifySourceConfig struct {
	// DefaultKind decides how a bare ID (no URI or URL) is resolved.
	DefaultKind string `yaml:"default_kind" mapstructure:"default_kind" default:"playlist" validate:"oneof=playlist album"`
}

// SpotifySource fetches playlists, albums and single tracks from Spotify.
type SpotifySource struct {
	spotify SpotifyClient
	config  *SpotifySourceConfig
}

// NewSpotifySource creates a new SpotifySource.
func NewSpotifySource(client SpotifyClient, settings map[string]any) (*SpotifySource, error) {
	var config SpotifySourceConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("spotify source config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &SpotifySource{spotify: client, config: &config}, nil
}

// Name returns the source type.
func (s *SpotifySource) Name() string {
	return "spotify"
}

// Supports accepts Spotify URIs and URLs, and bare IDs.
func (s *SpotifySource) Supports(ref string) bool {
	return s.kind(ref) != ""
}

// Fetch returns the tracks of the referenced playlist or album, or a single
// track list for a track reference.
func (s *SpotifySource) Fetch(ctx context.Context, ref string) ([]track.Ref, error) {
	switch s.kind(ref) {
	case "playlist":
		return s.spotify.GetPlaylistTracks(ctx, ref)
	case "album":
		return s.spotify.GetAlbumTracks(ctx, ref)
	case "track":
		t, err := s.spotify.GetTrack(ctx, ref)
		if err != nil {
			return nil, err
		}
		return []track.Ref{t}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "ref %q", ref)
	}
}

func (s *SpotifySource) kind(ref string) string {
	if k := spotify.Kind(ref); k != "" {
		return k
	}
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.ContainsAny(ref, ":/") {
		return ""
	}
	return s.config.DefaultKind
}
