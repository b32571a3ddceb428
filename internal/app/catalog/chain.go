package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/tapedeck/internal/domain/playlist"
	"github.com/osa030/tapedeck/internal/domain/track"
)

// SourceWithMetadata wraps a source with its metadata.
type SourceWithMetadata struct {
	Source      Source
	DisplayName string
}

// Chain resolves a reference against its sources in order. The first source
// that supports the reference and fetches it successfully wins.
type Chain struct {
	sources  []SourceWithMetadata
	enricher *Enricher
}

// NewChain creates a new source chain. enricher may be nil.
func NewChain(sources []SourceWithMetadata, enricher *Enricher) *Chain {
	return &Chain{
		sources:  sources,
		enricher: enricher,
	}
}

// Fetch resolves ref into a playlist. Tracks that fail validation are dropped.
func (c *Chain) Fetch(ctx context.Context, ref string) (*playlist.Playlist, error) {
	var lastErr error
	tried := 0

	for i, sm := range c.sources {
		if !sm.Source.Supports(ref) {
			continue
		}
		tried++
		zlog.Debug().Msgf("catalog: trying source: index=%d total=%d name=%s type=%s",
			i+1, len(c.sources), sm.DisplayName, sm.Source.Name())

		refs, err := sm.Source.Fetch(ctx, ref)
		if err != nil {
			zlog.Warn().Msgf("catalog: source failed, trying next: source=%s error=%v", sm.DisplayName, err)
			lastErr = err
			continue
		}

		valid := lo.Filter(refs, func(r track.Ref, _ int) bool {
			if err := r.Validate(); err != nil {
				zlog.Warn().Msgf("catalog: dropping track from %s: %v", sm.DisplayName, err)
				return false
			}
			return true
		})

		if c.enricher != nil {
			valid = c.enricher.Enrich(ctx, valid)
		}

		pl := &playlist.Playlist{
			ID:     ref,
			Name:   sm.DisplayName,
			Source: sm.Source.Name(),
			Tracks: valid,
		}
		zlog.Info().Msgf("catalog: fetched %d tracks: source=%s ref=%s", len(valid), sm.DisplayName, ref)
		if missing := pl.MissingArtwork(); len(missing) > 0 {
			zlog.Debug().Msgf("catalog: %d tracks without artwork in %s", len(missing), ref)
		}
		return pl, nil
	}

	if tried == 0 {
		return nil, errors.Wrapf(ErrUnsupported, "ref %q", ref)
	}
	return nil, errors.Wrapf(lastErr, "all sources failed for %q", ref)
}

// Sources returns the display names of the configured sources.
func (c *Chain) Sources() []string {
	return lo.Map(c.sources, func(sm SourceWithMetadata, _ int) string { return sm.DisplayName })
}
