package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/tapedeck/internal/domain/track"
	"github.com/osa030/tapedeck/internal/infra/lastfm"
)

// Enricher fills in missing artwork, album and duration from Last.fm.
// Lookups that fail leave the track unchanged.
type Enricher struct {
	lastfm LastFmClient
}

// NewEnricher creates a new Enricher.
func NewEnricher(client LastFmClient) *Enricher {
	return &Enricher{lastfm: client}
}

// Enrich returns refs with gaps filled. Descriptors are replaced, never
// modified in place.
func (e *Enricher) Enrich(ctx context.Context, refs []track.Ref) []track.Ref {
	filled := 0
	out := lo.Map(refs, func(r track.Ref, _ int) track.Ref {
		if !needsEnrichment(r) || ctx.Err() != nil {
			return r
		}

		info, err := e.lastfm.GetTrackInfo(ctx, r.Title, r.Artist)
		if err != nil {
			if !errors.Is(err, lastfm.ErrNotFound) {
				zlog.Warn().Msgf("catalog: last.fm lookup failed for %s - %s: %v", r.Artist, r.Title, err)
			}
			return r
		}

		next := r
		if next.ArtworkURL == "" {
			next.ArtworkURL = info.ArtworkURL
		}
		if next.Album == "" {
			next.Album = info.Album
		}
		if next.DurationMs == 0 {
			next.DurationMs = info.DurationMs
		}
		if next != r {
			filled++
		}
		return next
	})

	if filled > 0 {
		zlog.Debug().Msgf("catalog: enriched %d of %d tracks", filled, len(refs))
	}
	return out
}

func needsEnrichment(r track.Ref) bool {
	if r.Title == "" || r.Artist == "" {
		return false
	}
	return r.ArtworkURL == "" || r.Album == "" || r.DurationMs == 0
}
