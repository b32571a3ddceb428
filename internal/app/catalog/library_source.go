package catalog

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/osa030/tapedeck/internal/domain/track"
)

const libraryPrefix = "library:"

// LibrarySourceConfig holds the settings of a local library source.
type LibrarySourceConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// libraryFile is the on-disk layout of a local library.
type libraryFile struct {
	Collections []libraryCollection `yaml:"collections" validate:"dive"`
}

type libraryCollection struct {
	ID     string         `yaml:"id" validate:"required"`
	Name   string         `yaml:"name"`
	Tracks []libraryTrack `yaml:"tracks"`
}

type libraryTrack struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	Artist     string `yaml:"artist"`
	Album      string `yaml:"album"`
	ArtworkURL string `yaml:"artwork_url"`
	DurationMs int64  `yaml:"duration_ms"`
}

// LibrarySource serves collections from a local YAML file. References have
// the form "library:<collection id>". The file is re-read on every fetch so
// edits are picked up without a restart.
type LibrarySource struct {
	config *LibrarySourceConfig
}

// NewLibrarySource creates a new LibrarySource and checks that the file parses.
func NewLibrarySource(settings map[string]any) (*LibrarySource, error) {
	var config LibrarySourceConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	s := &LibrarySource{config: &config}
	lib, err := s.load()
	if err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("library source: %s has %d collections", config.Path, len(lib.Collections))
	return s, nil
}

// Name returns the source type.
func (s *LibrarySource) Name() string {
	return "library"
}

// Supports accepts "library:<id>" references.
func (s *LibrarySource) Supports(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), libraryPrefix)
}

// Fetch returns the tracks of the named collection.
func (s *LibrarySource) Fetch(_ context.Context, ref string) ([]track.Ref, error) {
	id := strings.TrimPrefix(strings.TrimSpace(ref), libraryPrefix)

	lib, err := s.load()
	if err != nil {
		return nil, err
	}

	coll, ok := lo.Find(lib.Collections, func(c libraryCollection) bool { return c.ID == id })
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "library collection %q", id)
	}

	return lo.Map(coll.Tracks, func(t libraryTrack, _ int) track.Ref {
		return track.Ref{
			ID:         t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			ArtworkURL: t.ArtworkURL,
			DurationMs: t.DurationMs,
		}
	}), nil
}

// Collections returns the IDs of all collections in the library.
func (s *LibrarySource) Collections() ([]string, error) {
	lib, err := s.load()
	if err != nil {
		return nil, err
	}
	return lo.Map(lib.Collections, func(c libraryCollection, _ int) string { return c.ID }), nil
}

func (s *LibrarySource) load() (*libraryFile, error) {
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read library %s", s.config.Path)
	}

	var lib libraryFile
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, errors.Wrapf(err, "failed to parse library %s", s.config.Path)
	}
	if err := validator.New().Struct(lib); err != nil {
		return nil, errors.Wrapf(err, "invalid library %s", s.config.Path)
	}
	return &lib, nil
}
