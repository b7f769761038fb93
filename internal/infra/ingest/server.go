// Package ingest provides the loopback HTTP server that receives pushed
// now-playing messages and emits one typed event per decoded message.
package ingest

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/lyricsync/internal/app/event"
)

// Errors
var (
	ErrBind     = errors.New("failed to bind ingestion listener")
	ErrDisposed = errors.New("ingestion server is disposed")
)

const (
	// Host is the only address the server binds to.
	Host = "127.0.0.1"

	// DefaultPort is the port the player pushes to by default.
	DefaultPort = 35010

	defaultCollectionPath = "/"
	defaultMaxBodyBytes   = 1 << 20
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// Config holds server configuration.
type Config struct {
	Port           int    // 0 binds an ephemeral port
	CollectionPath string // POST path for messages; "/" accepts any path
	MaxBodyBytes   int64  // Upper bound on a request body
}

// Server is the ingestion HTTP server.
// Lifecycle: Stopped -> Starting -> Listening -> Stopped. Dispose is terminal.
type Server struct {
	// pubMu orders lifecycle events; it is taken before mu.
	pubMu sync.Mutex
	mu    sync.Mutex

	config   Config
	state    State
	disposed bool
	port     int // Bound port while listening, configured port otherwise

	listener   net.Listener
	httpServer *http.Server

	handler http.Handler
	bus     *event.Bus
}

// New creates a stopped server.
func New(cfg Config) *Server {
	if cfg.CollectionPath == "" {
		cfg.CollectionPath = defaultCollectionPath
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		config: cfg,
		state:  StateStopped,
		port:   cfg.Port,
		bus:    event.NewBus(),
	}
	s.handler = s.routes()
	return s
}

// routes builds the request router. h2c lets HTTP/2 clients push without TLS.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("POST "+s.config.CollectionPath, s.handleCollect)
	return h2c.NewHandler(mux, &http2.Server{})
}

// Handler returns the request handler. Used by tests to serve without a socket.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Subscribe registers an event handler and returns its subscription ID.
func (s *Server) Subscribe(h event.Handler) string {
	return s.bus.Subscribe(h)
}

// Unsubscribe removes an event handler.
func (s *Server) Unsubscribe(id string) bool {
	return s.bus.Unsubscribe(id)
}

// Start binds 127.0.0.1:<port> and begins serving.
// It returns an error marked with ErrBind if the port is unavailable and
// ErrDisposed after Dispose. Starting a listening server is a no-op.
func (s *Server) Start() error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStarting

	addr := net.JoinHostPort(Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.state = StateStopped
		s.mu.Unlock()
		return errors.Mark(errors.Wrapf(err, "listen on %s", addr), ErrBind)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.listener = ln
	s.httpServer = srv
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.state = StateListening
	port := s.port
	s.mu.Unlock()

	go s.serve(srv, ln)

	zlog.Info().Msgf("ingest: listening on %s", ln.Addr())
	s.bus.Publish(event.Event{Type: event.TypeConnected, Port: port})
	return nil
}

// serve runs the accept loop until the listener closes. A return while the
// server still believes it is listening is a transport fault.
func (s *Server) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	faulted := s.httpServer == srv && s.state == StateListening
	s.mu.Unlock()
	if !faulted {
		return
	}

	zlog.Error().Msgf("ingest: accept loop failed: %v", err)
	msg := "accept loop stopped"
	if err != nil {
		msg = err.Error()
	}
	s.bus.Publish(event.Event{Type: event.TypeError, Message: msg})
	s.stopLocked()
}

// Stop closes the listener and emits a disconnected event.
// It is idempotent: only the call that leaves the listening state emits.
// In-flight requests are drained in the background.
func (s *Server) Stop() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.stopLocked()
}

// stopLocked is Stop with pubMu held.
func (s *Server) stopLocked() {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return
	}
	srv, ln, port := s.httpServer, s.listener, s.port
	s.state = StateStopped
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		zlog.Warn().Msgf("ingest: failed to close listener: %v", err)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Debug().Msgf("ingest: shutdown: %v", err)
		}
	}()

	zlog.Info().Msgf("ingest: stopped listening on port %d", port)
	s.bus.Publish(event.Event{Type: event.TypeDisconnected, Port: port})
}

// Dispose stops the server, releases its socket and drops all subscribers.
// A disposed server cannot be started again.
func (s *Server) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	s.Stop()
	s.bus.Close()
}

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning returns true while the server is listening.
func (s *Server) IsRunning() bool {
	return s.State() == StateListening
}

// IsDisposed returns true after Dispose.
func (s *Server) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Port returns the bound port while listening, or the configured port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}
