package catalog

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tapedeck/internal/infra/config"
)

// NewChainFromConfig creates a source chain from configuration. spotify and
// lastFm may be nil when no configured source needs them.
func NewChainFromConfig(cfg *config.Config, spotify SpotifyClient, lastFm LastFmClient) (*Chain, error) {
	if len(cfg.Catalog.Sources) == 0 {
		return nil, errors.New("no catalog sources configured")
	}

	var sources []SourceWithMetadata

	for i, scfg := range cfg.Catalog.Sources {
		var source Source
		var err error
		zlog.Debug().Msgf("creating catalog source: index=%d type=%s settings=%+v", i+1, scfg.Type, scfg.Settings)
		switch scfg.Type {
		case "spotify":
			if spotify == nil {
				return nil, errors.Newf("spotify source requires a spotify client (source index %d)", i)
			}
			source, err = NewSpotifySource(spotify, scfg.Settings)

		case "library":
			source, err = NewLibrarySource(scfg.Settings)

		default:
			return nil, errors.Newf("unsupported source type: %s (source index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, scfg.Type)
		}

		sources = append(sources, SourceWithMetadata{
			Source:      source,
			DisplayName: scfg.DisplayName,
		})

		zlog.Info().Msgf("registered catalog source: index=%d type=%s display_name=%s", i+1, scfg.Type, scfg.DisplayName)
	}

	var enricher *Enricher
	if cfg.Catalog.EnrichArtwork {
		if lastFm == nil {
			return nil, errors.New("artwork enrichment requires a last.fm client")
		}
		enricher = NewEnricher(lastFm)
	}

	return NewChain(sources, enricher), nil
}
