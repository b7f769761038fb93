// Package session provides the session manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/app/playback"
	"github.com/osa030/lyricsync/internal/app/supervisor"
	"github.com/osa030/lyricsync/internal/domain/lyric"
)

var (
	ErrSessionClosed = errors.New("session is closed")
)

// Config holds session configuration.
type Config struct {
	Port              int
	CollectionPath    string
	MaxBodyBytes      int64
	PlaybackSpeed     float64
	ReconnectInterval time.Duration
	NewIngestor       playback.IngestorFactory // Optional, used by tests
}

// Manager owns one reconciler and its reconnection supervisor, drives the
// host tick and hands the event feed to consumers.
type Manager struct {
	mu sync.Mutex

	id         string
	config     Config
	reconciler *playback.Reconciler
	supervisor *supervisor.Supervisor
	linkSub    string
	now        func() time.Time

	started bool
	closed  bool
	done    chan struct{}
}

// NewManager creates a new session manager. Nothing is bound until Start.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		id:     uuid.New().String(),
		config: cfg,
		now:    time.Now,
		done:   make(chan struct{}),
		reconciler: playback.NewReconciler(playback.Config{
			CollectionPath: cfg.CollectionPath,
			MaxBodyBytes:   cfg.MaxBodyBytes,
			PlaybackSpeed:  cfg.PlaybackSpeed,
			NewIngestor:    cfg.NewIngestor,
		}),
	}
	m.supervisor = supervisor.New(cfg.ReconnectInterval, m.reconciler.Reconnect)
	m.linkSub = m.reconciler.Subscribe(m.handleLinkEvent)
	return m
}

// handleLinkEvent feeds connection changes to the supervisor.
func (m *Manager) handleLinkEvent(e event.Event) {
	switch e.Type {
	case event.TypeConnected:
		m.supervisor.OnConnected()
	case event.TypeDisconnected:
		m.supervisor.OnDisconnected(m.now())
	}
}

// Done returns a channel closed by Close.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// ID returns the session ID.
func (m *Manager) ID() string {
	return m.id
}

// Start binds the ingestion server on the configured port. When the bind
// fails the session keeps running and retries from Tick; the error is
// returned for reporting.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	zlog.Info().Msgf("session: starting: session_id=%s port=%d", m.id, m.config.Port)
	if err := m.reconciler.Initialize(m.config.Port); err != nil {
		m.supervisor.OnDisconnected(m.now())
		return errors.Wrap(err, "failed to start ingestion")
	}
	return nil
}

// Tick advances the clock by delta, publishes the tick and lets the
// supervisor retry a lost binding when due.
func (m *Manager) Tick(delta time.Duration) {
	if m.isClosed() {
		return
	}
	m.reconciler.Advance(delta)
	m.supervisor.Tick(m.now())
}

// Run calls Tick every interval with the measured wall-clock delta until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			m.Tick(delta)
		}
	}
}

// UpdatePort moves ingestion to port. It is a no-op when already listening
// on port. When the new bind fails the supervisor retries on the new port.
func (m *Manager) UpdatePort(port int) error {
	if m.isClosed() {
		return ErrSessionClosed
	}
	if port == m.reconciler.Port() && m.reconciler.IsConnected() {
		return nil
	}

	m.mu.Lock()
	m.config.Port = port
	m.mu.Unlock()

	if err := m.reconciler.UpdatePort(port); err != nil {
		if errors.Is(err, playback.ErrNotInitialized) {
			return err
		}
		m.supervisor.OnDisconnected(m.now())
		return errors.Wrapf(err, "failed to move ingestion to port %d", port)
	}
	return nil
}

// SetPlaybackSpeed sets the clock multiplier.
func (m *Manager) SetPlaybackSpeed(speed float64) {
	m.reconciler.SetPlaybackSpeed(speed)
}

// PlaybackSpeed returns the clock multiplier.
func (m *Manager) PlaybackSpeed() float64 {
	return m.reconciler.PlaybackSpeed()
}

// Subscribe registers a handler for live events.
func (m *Manager) Subscribe(h event.Handler) string {
	return m.reconciler.Subscribe(h)
}

// SubscribeWithReplay registers a handler after delivering the current
// state to it.
func (m *Manager) SubscribeWithReplay(h event.Handler) string {
	return m.reconciler.SubscribeWithReplay(h)
}

// Unsubscribe removes a handler.
func (m *Manager) Unsubscribe(id string) bool {
	return m.reconciler.Unsubscribe(id)
}

// Snapshot returns the current read model.
func (m *Manager) Snapshot() playback.Snapshot {
	return m.reconciler.Snapshot()
}

// CurrentSong returns a copy of the current song, or nil.
func (m *Manager) CurrentSong() *lyric.SongInfo {
	return m.reconciler.CurrentSong()
}

// CurrentLyric returns a copy of the current lyric sheet, or nil.
func (m *Manager) CurrentLyric() *lyric.LyricData {
	return m.reconciler.CurrentLyric()
}

// CurrentLineIndex returns the index of the current lyric line, or -1.
func (m *Manager) CurrentLineIndex() int {
	return m.reconciler.CurrentLineIndex()
}

// FormattedTime returns "m:ss/m:ss".
func (m *Manager) FormattedTime() string {
	return m.reconciler.FormattedTime()
}

// IsConnected returns true while ingestion is listening.
func (m *Manager) IsConnected() bool {
	return m.reconciler.IsConnected()
}

// Port returns the ingestion port.
func (m *Manager) Port() int {
	return m.reconciler.Port()
}

// LinkState returns the reconnection supervisor state.
func (m *Manager) LinkState() supervisor.State {
	return m.supervisor.State()
}

// ReconnectAttempts returns attempts since the binding was lost.
func (m *Manager) ReconnectAttempts() int {
	return m.supervisor.Attempts()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close disposes the reconciler and drops all subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.reconciler.Unsubscribe(m.linkSub)
	m.reconciler.Dispose()
	close(m.done)
	zlog.Info().Msgf("session: closed: session_id=%s", m.id)
}
