package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Admin:        AdminConfig{Token: "test-admin-token"},
		Engine:       EngineConfig{ConfirmTimeoutMs: 3000, SeekToleranceMs: 1500, SeekTimeoutMs: 4000, PreviousRestartThresholdMs: 3000, MaxNotices: 20},
		Presentation: PresentationConfig{DistanceThreshold: 100, VelocityThreshold: 1000},
		Transport:    TransportConfig{ConfirmLatencyMs: 150, TickIntervalMs: 500, DefaultDurationMs: 180000},
		Spotify:      SpotifyConfig{Market: "JP"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing admin token",
			mutate:  func(c *Config) { c.Admin.Token = "" },
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name:    "invalid market length",
			mutate:  func(c *Config) { c.Spotify.Market = "JAPAN" },
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name:    "confirm timeout too small",
			mutate:  func(c *Config) { c.Engine.ConfirmTimeoutMs = 10 },
			wantErr: true,
			errMsg:  "ConfirmTimeoutMs",
		},
		{
			name:    "zero distance threshold",
			mutate:  func(c *Config) { c.Presentation.DistanceThreshold = 0 },
			wantErr: true,
			errMsg:  "DistanceThreshold",
		},
		{
			name:    "tolerance not below timeout",
			mutate:  func(c *Config) { c.Engine.SeekToleranceMs = 5000 },
			wantErr: true,
			errMsg:  "seek_tolerance_ms",
		},
		{
			name: "spotify source without credentials",
			mutate: func(c *Config) {
				c.Catalog.Sources = []SourceConfig{{Type: "spotify", DisplayName: "Spotify"}}
			},
			wantErr: true,
			errMsg:  "requires spotify",
		},
		{
			name: "spotify source with credentials",
			mutate: func(c *Config) {
				c.Catalog.Sources = []SourceConfig{{Type: "spotify", DisplayName: "Spotify"}}
				c.Spotify.ClientID = "id"
				c.Spotify.ClientSecret = "secret"
				c.Spotify.RefreshToken = "token"
			},
		},
		{
			name: "unknown source type",
			mutate: func(c *Config) {
				c.Catalog.Sources = []SourceConfig{{Type: "tape", DisplayName: "Tape"}}
			},
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name:    "artwork enrichment without api key",
			mutate:  func(c *Config) { c.Catalog.EnrichArtwork = true },
			wantErr: true,
			errMsg:  "lastfm.api_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "")
	cfg, err := Parse([]byte(`
admin:
  token: secret
`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.ConfirmTimeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.SeekTolerance())
	assert.Equal(t, 4*time.Second, cfg.SeekTimeout())
	assert.Equal(t, 3*time.Second, cfg.PreviousRestartThreshold())
	assert.Equal(t, 100.0, cfg.Presentation.DistanceThreshold)
	assert.Equal(t, 1000.0, cfg.Presentation.VelocityThreshold)
	assert.Equal(t, 150, cfg.Transport.ConfirmLatencyMs)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.False(t, cfg.Spotify.Enabled())
	assert.Empty(t, cfg.Store.Path)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "from-env")
	t.Setenv("LASTFM_API_KEY", "lastfm-key")
	t.Setenv("TAPEDECK_STORE_PATH", "/tmp/tapedeck.db")
	t.Setenv("TAPEDECK_CONFIRM_TIMEOUT_MS", "1200")

	cfg, err := Parse([]byte(`
admin:
  token: from-file
catalog:
  enrich_artwork: true
  sources:
    - type: library
      display_name: Local
      settings:
        path: library.yaml
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Admin.Token)
	assert.Equal(t, "lastfm-key", cfg.LastFm.APIKey)
	assert.Equal(t, "/tmp/tapedeck.db", cfg.Store.Path)
	assert.Equal(t, 1200*time.Millisecond, cfg.ConfirmTimeout())
	assert.True(t, cfg.HasSource("library"))
	assert.False(t, cfg.HasSource("spotify"))
	assert.Equal(t, "library.yaml", cfg.Catalog.Sources[0].Settings["path"])
}

func TestLoad(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin:\n  token: abc\nengine:\n  confirm_timeout_ms: 2500\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.ConfirmTimeout())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "")
	_, err := Parse([]byte("admin: ["))
	assert.Error(t, err)

	_, err = Parse([]byte("server:\n  addr: ':9000'\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
