// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/tapedeck/internal/api/connect"
	"github.com/osa030/tapedeck/internal/app/catalog"
	"github.com/osa030/tapedeck/internal/app/player"
	"github.com/osa030/tapedeck/internal/app/presentation"
	"github.com/osa030/tapedeck/internal/app/transport"
	"github.com/osa030/tapedeck/internal/infra/config"
	"github.com/osa030/tapedeck/internal/infra/lastfm"
	"github.com/osa030/tapedeck/internal/infra/logger"
	"github.com/osa030/tapedeck/internal/infra/spotify"
	"github.com/osa030/tapedeck/internal/infra/store"
)

var (
	app        = kingpin.New("tapedeck-server", "tapedeck player engine server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	startCmd = app.Command("start", "Start the server (default)").Default()
	loadRef  = startCmd.Flag("load", "Catalog reference to queue at startup (e.g. library:road-trip)").String()

	// list-sources command
	listSourcesCmd = app.Command("list-sources", "List configured catalog sources and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == listSourcesCmd.FullCommand() {
		printSources(cfg)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain, err := newCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}

	sim := transport.NewSimulated(transport.SimulatedConfig{
		ConfirmLatency:  time.Duration(cfg.Transport.ConfirmLatencyMs) * time.Millisecond,
		TickInterval:    time.Duration(cfg.Transport.TickIntervalMs) * time.Millisecond,
		DefaultDuration: time.Duration(cfg.Transport.DefaultDurationMs) * time.Millisecond,
	})
	defer sim.Close()

	var opts []player.Option
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()
		opts = append(opts, player.WithSaver(st))
		zlog.Info().Msgf("Session persistence enabled: path=%s", cfg.Store.Path)
	}

	engine := player.New(engineConfig(cfg), sim, opts...)
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	if *loadRef != "" {
		if err := loadInitial(ctx, engine, chain, *loadRef); err != nil {
			zlog.Warn().Msgf("Failed to load %s: %v", *loadRef, err)
		}
	}

	var cat apiconnect.Catalog
	if chain != nil {
		cat = chain
	}
	path, handler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(engine, cat),
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg)),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-engineDone:
		return fmt.Errorf("engine stopped unexpectedly: %w", err)
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Stop the engine first so Watch streams end and the session is saved.
	cancel()
	if err := <-engineDone; err != nil {
		zlog.Error().Msgf("Engine error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

func engineConfig(cfg *config.Config) player.Config {
	ec := player.DefaultConfig()
	ec.ConfirmTimeout = cfg.ConfirmTimeout()
	ec.SeekTolerance = cfg.SeekTolerance()
	ec.SeekTimeout = cfg.SeekTimeout()
	ec.PreviousRestartThreshold = cfg.PreviousRestartThreshold()
	ec.MaxNotices = cfg.Engine.MaxNotices
	ec.Presentation = presentation.Thresholds{
		Distance: cfg.Presentation.DistanceThreshold,
		Velocity: cfg.Presentation.VelocityThreshold,
	}
	return ec
}

// newCatalog builds the source chain. It returns nil when no sources are
// configured.
func newCatalog(ctx context.Context, cfg *config.Config) (*catalog.Chain, error) {
	if len(cfg.Catalog.Sources) == 0 {
		zlog.Info().Msg("No catalog sources configured, queues must be set over RPC")
		return nil, nil
	}

	var spotifyClient catalog.SpotifyClient
	if cfg.HasSource("spotify") {
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify client: %w", err)
		}
		spotifyClient = c
	}

	var lastFmClient catalog.LastFmClient
	if cfg.Catalog.EnrichArtwork {
		c, err := lastfm.New(lastfm.Config{APIKey: cfg.LastFm.APIKey})
		if err != nil {
			return nil, fmt.Errorf("failed to create Last.fm client: %w", err)
		}
		lastFmClient = c
	}

	return catalog.NewChainFromConfig(cfg, spotifyClient, lastFmClient)
}

func loadInitial(ctx context.Context, engine *player.Engine, chain *catalog.Chain, ref string) error {
	if chain == nil {
		return fmt.Errorf("no catalog sources configured")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pl, err := chain.Fetch(fetchCtx, ref)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Queueing %d tracks from %s", len(pl.Tracks), pl.Name)
	return engine.SetQueue(fetchCtx, pl.Tracks, 0)
}

// printSources prints the configured catalog sources.
func printSources(cfg *config.Config) {
	if len(cfg.Catalog.Sources) == 0 {
		fmt.Println("No catalog sources configured")
		return
	}
	fmt.Println("Catalog Sources:")
	for i, s := range cfg.Catalog.Sources {
		fmt.Printf("  %d. %-20s [type: %s]\n", i+1, s.DisplayName, s.Type)
	}
	if cfg.Catalog.EnrichArtwork {
		fmt.Println("Artwork enrichment: last.fm")
	}
}
