// Package main provides the lyricsync daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/lyricsync/internal/api/connect"
	"github.com/osa030/lyricsync/internal/api/ws"
	"github.com/osa030/lyricsync/internal/app/session"
	"github.com/osa030/lyricsync/internal/app/sink"
	"github.com/osa030/lyricsync/internal/infra/config"
	"github.com/osa030/lyricsync/internal/infra/ingest"
	"github.com/osa030/lyricsync/internal/infra/logger"
)

const hookTimeout = time.Minute

var (
	app        = kingpin.New("lyricsyncd", "Synchronized lyrics receiver")
	configPath = app.Flag("config", "Path to config file").Default("config/lyricsync.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	port       = app.Flag("port", "Ingestion port (overrides config)").Int()

	// list-sinks command
	listSinksCmd = app.Command("list-sinks", "List available sinks and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the receiver (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listSinksCmd.FullCommand() {
		printSinks()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if err := applyFlags(cfg, *port); err != nil {
		zlog.Fatal().Msgf("Invalid --port: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Receiver error: %v", err)
		os.Exit(1)
	}
}

// run executes the main receiver logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	chain, err := sink.NewChainFromSettings(cfg.EnabledSinks())
	if err != nil {
		return errors.Wrap(err, "invalid sink config")
	}

	ingest.RegisterMetrics(prometheus.DefaultRegisterer)

	sessionMgr := session.NewManager(session.Config{
		Port:              cfg.Server.Port,
		CollectionPath:    cfg.Server.CollectionPath,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		PlaybackSpeed:     cfg.Playback.Speed,
		ReconnectInterval: cfg.ReconnectInterval(),
	})
	if err := chain.Attach(sessionMgr); err != nil {
		sessionMgr.Close()
		return errors.Wrap(err, "failed to attach sinks")
	}

	// A busy port is not fatal: the supervisor keeps retrying.
	if err := sessionMgr.Start(); err != nil {
		zlog.Warn().Msgf("Ingestion server not started: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessionMgr.Run(ctx, cfg.TickInterval())

	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := applyFlags(next, *port); err != nil {
				zlog.Warn().Msgf("Ignoring reloaded config: %v", err)
				return
			}
			applyConfig(sessionMgr, next)
		})
		if err != nil {
			zlog.Warn().Msgf("Config watch disabled: %v", err)
		}
	}()

	var apiServer *http.Server
	serverErrCh := make(chan error, 1)
	if cfg.APIEnabled() {
		apiServer = newAPIServer(cfg.API.Addr, sessionMgr)
		go func() {
			zlog.Info().Msgf("Starting API server: addr=%s", cfg.API.Addr)
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrCh <- err
			}
		}()
	}

	hookCtx, hookCancel := context.WithTimeout(context.Background(), hookTimeout)
	sink.RunCommands(hookCtx, "on_started", "sh", cfg.Server.Hooks.OnStarted, nil)
	hookCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "api server error")
	}

	cancel()

	// Close session first to terminate active streams
	chain.Detach()
	sessionMgr.Close()

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown API server: %v", err)
		}
	}

	zlog.Info().Msg("Receiver stopped")

	hookCtx, hookCancel = context.WithTimeout(context.Background(), hookTimeout)
	defer hookCancel()
	sink.RunCommands(hookCtx, "on_stopped", "sh", cfg.Server.Hooks.OnStopped, nil)

	return runErr
}

// newAPIServer builds the query API: Connect StateService, WebSocket feed
// and Prometheus metrics, served over h2c.
func newAPIServer(addr string, sessionMgr *session.Manager) *http.Server {
	mux := http.NewServeMux()

	statePath, stateHandler := apiconnect.NewStateServiceHandler(apiconnect.NewStateService(sessionMgr))
	mux.Handle(statePath, stateHandler)
	mux.Handle("/ws", ws.NewHandler(sessionMgr))
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// applyFlags lets command-line flags take precedence over cfg, both at
// startup and on every reload. A port of 0 leaves cfg unchanged.
func applyFlags(cfg *config.Config, port int) error {
	if port == 0 {
		return nil
	}
	cfg.Server.Port = port
	return cfg.Validate()
}

// applyConfig applies the runtime-changeable parts of a reloaded config.
func applyConfig(sessionMgr *session.Manager, next *config.Config) {
	sessionMgr.SetPlaybackSpeed(next.Playback.Speed)
	if err := sessionMgr.UpdatePort(next.Server.Port); err != nil {
		zlog.Warn().Msgf("Failed to apply port %d: %v", next.Server.Port, err)
	}
}

// printSinks prints available sinks.
func printSinks() {
	fmt.Println("Available Sinks:")
	registry := sink.GetRegistered()
	for _, name := range sink.Names() {
		s := registry[name]()
		fmt.Printf("  %-10s - %s\n", s.Name(), s.Description())
	}
}
