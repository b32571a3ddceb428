// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Admin        AdminConfig        `yaml:"admin"`
	Engine       EngineConfig       `yaml:"engine"`
	Presentation PresentationConfig `yaml:"presentation"`
	Transport    TransportConfig    `yaml:"transport"`
	Store        StoreConfig        `yaml:"store"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Spotify      SpotifyConfig      `yaml:"spotify"`
	LastFm       LastFmConfig       `yaml:"lastfm"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// EngineConfig represents player engine timing configuration.
type EngineConfig struct {
	ConfirmTimeoutMs           int `yaml:"confirm_timeout_ms" default:"3000" validate:"gte=100,lte=60000"`
	SeekToleranceMs            int `yaml:"seek_tolerance_ms" default:"1500" validate:"gte=0,lte=60000"`
	SeekTimeoutMs              int `yaml:"seek_timeout_ms" default:"4000" validate:"gte=100,lte=60000"`
	PreviousRestartThresholdMs int `yaml:"previous_restart_threshold_ms" default:"3000" validate:"gte=0,lte=60000"`
	MaxNotices                 int `yaml:"max_notices" default:"20" validate:"gte=1,lte=1000"`
}

// PresentationConfig represents the mini/full player gesture thresholds.
type PresentationConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold" default:"100" validate:"gt=0"`
	VelocityThreshold float64 `yaml:"velocity_threshold" default:"1000" validate:"gt=0"`
}

// TransportConfig represents simulated transport configuration.
type TransportConfig struct {
	ConfirmLatencyMs  int `yaml:"confirm_latency_ms" default:"150" validate:"gte=0,lte=10000"`
	TickIntervalMs    int `yaml:"tick_interval_ms" default:"500" validate:"gte=50,lte=10000"`
	DefaultDurationMs int `yaml:"default_duration_ms" default:"180000" validate:"gte=1000"`
}

// StoreConfig represents session persistence configuration.
// An empty path disables persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CatalogConfig represents track source configuration.
type CatalogConfig struct {
	Sources       []SourceConfig `yaml:"sources" validate:"dive"`
	EnrichArtwork bool           `yaml:"enrich_artwork"`
}

// SourceConfig represents a single catalog source configuration.
type SourceConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=spotify library"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" || s.ClientSecret != "" || s.RefreshToken != ""
}

// LastFmConfig represents Last.fm API configuration.
type LastFmConfig struct {
	APIKey string `yaml:"api_key"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML, then applies environment overrides,
// defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFm.APIKey = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("TAPEDECK_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TAPEDECK_CONFIRM_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Engine.ConfirmTimeoutMs = ms
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateSources(); err != nil {
		return err
	}

	if c.Engine.SeekToleranceMs >= c.Engine.SeekTimeoutMs {
		return errors.Newf("seek_tolerance_ms (%d) must be below seek_timeout_ms (%d)",
			c.Engine.SeekToleranceMs, c.Engine.SeekTimeoutMs)
	}

	return nil
}

// validateSources checks that every configured source has what it needs.
func (c *Config) validateSources() error {
	for i, s := range c.Catalog.Sources {
		if s.Type == "spotify" {
			if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
				return errors.Newf("catalog source %d (%s) requires spotify client_id, client_secret and refresh_token", i, s.DisplayName)
			}
		}
	}
	if c.Catalog.EnrichArtwork && c.LastFm.APIKey == "" {
		return errors.New("catalog.enrich_artwork requires lastfm.api_key")
	}
	return nil
}

// HasSource reports whether a source of the given type is configured.
func (c *Config) HasSource(sourceType string) bool {
	for _, s := range c.Catalog.Sources {
		if s.Type == sourceType {
			return true
		}
	}
	return false
}

// ConfirmTimeout returns the engine confirmation timeout.
func (c *Config) ConfirmTimeout() time.Duration {
	return ms(c.Engine.ConfirmTimeoutMs)
}

// SeekTolerance returns the seek tolerance.
func (c *Config) SeekTolerance() time.Duration {
	return ms(c.Engine.SeekToleranceMs)
}

// SeekTimeout returns the seek timeout.
func (c *Config) SeekTimeout() time.Duration {
	return ms(c.Engine.SeekTimeoutMs)
}

// PreviousRestartThreshold returns the position past which previous restarts
// the current track.
func (c *Config) PreviousRestartThreshold() time.Duration {
	return ms(c.Engine.PreviousRestartThresholdMs)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
