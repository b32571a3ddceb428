// Package spotify provides a read-only client for the Spotify Web API.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tapedeck/internal/domain/track"
)

const pageLimit = 50

// api is the subset of *spotify.Client used by Client.
type api interface {
	GetTrack(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.FullTrack, error)
	GetPlaylistItems(ctx context.Context, playlistID spotify.ID, opts ...spotify.RequestOption) (*spotify.PlaylistItemPage, error)
	GetAlbum(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.FullAlbum, error)
	GetAlbumTracks(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.SimpleTrackPage, error)
}

// Client is a Spotify API client.
type Client struct {
	client     api
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	// The refresh token is exchanged on first use.
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return newClient(spotify.New(httpClient), cfg.Market), nil
}

func newClient(c api, market string) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     c,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// GetTrack retrieves a single track by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (track.Ref, error) {
	id := extractID("track", trackID)
	if id == "" {
		return track.Ref{}, errors.New("invalid track ID")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return track.Ref{}, errors.Wrap(err, "failed to get track")
	}
	return convertTrack(result), nil
}

// GetPlaylistTracks retrieves all tracks from a playlist. Episodes and local
// files are skipped.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistURL string) ([]track.Ref, error) {
	playlistID := extractID("playlist", playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var refs []track.Ref
	for offset := 0; ; offset += pageLimit {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(pageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				refs = append(refs, convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < pageLimit {
			break
		}
	}

	zlog.Debug().Msgf("spotify: fetched %d tracks from playlist %s", len(refs), playlistID)
	return refs, nil
}

// GetAlbumTracks retrieves all tracks of an album in disc order. Album name
// and artwork are taken from the album itself since simplified tracks do not
// carry them.
func (c *Client) GetAlbumTracks(ctx context.Context, albumURL string) ([]track.Ref, error) {
	albumID := extractID("album", albumURL)
	if albumID == "" {
		return nil, errors.New("invalid album URL")
	}

	var album *spotify.FullAlbum
	err := c.retry(ctx, func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(albumID), spotify.Market(c.market))
		if err != nil {
			return err
		}
		album = a
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album")
	}

	var refs []track.Ref
	for offset := 0; ; offset += pageLimit {
		var page *spotify.SimpleTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(albumID),
				spotify.Limit(pageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}

		for _, t := range page.Tracks {
			if t.ID == "" {
				continue
			}
			refs = append(refs, track.Ref{
				ID:         string(t.ID),
				Title:      t.Name,
				Artist:     joinArtists(t.Artists),
				Album:      album.Name,
				ArtworkURL: firstImage(album.Images),
				DurationMs: int64(t.Duration),
			})
		}

		if len(page.Tracks) < pageLimit {
			break
		}
	}

	zlog.Debug().Msgf("spotify: fetched %d tracks from album %s", len(refs), albumID)
	return refs, nil
}

// convertTrack converts a Spotify FullTrack to a track descriptor.
func convertTrack(t *spotify.FullTrack) track.Ref {
	return track.Ref{
		ID:         string(t.ID),
		Title:      t.Name,
		Artist:     joinArtists(t.Artists),
		Album:      t.Album.Name,
		ArtworkURL: firstImage(t.Album.Images),
		DurationMs: int64(t.Duration),
	}
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// firstImage returns the largest image; Spotify lists them widest first.
func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// retry retries an operation with linear backoff. It gives up early when ctx
// is done.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Warn().Msgf("spotify: retrying after error: %v", err)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry canceled")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// Kind reports whether input names a "playlist", "album" or "track" by URI
// or URL. Bare IDs return "".
func Kind(input string) string {
	input = strings.TrimSpace(input)
	for _, kind := range []string{"playlist", "album", "track"} {
		if strings.HasPrefix(input, "spotify:"+kind+":") {
			return kind
		}
		if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
			return kind
		}
	}
	return ""
}

// extractID extracts the ID of the given kind ("playlist", "album", "track")
// from a Spotify URL or URI. Anything else is assumed to be an ID already.
func extractID(kind, input string) string {
	input = strings.TrimSpace(input)
	// spotify:<kind>:<id>
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// https://open.spotify.com/<kind>/<id> or https://open.spotify.com/intl-XX/<kind>/<id>
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
		parts := strings.Split(input, "/"+kind+"/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
