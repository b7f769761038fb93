package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// Errors
var (
	ErrDisposed       = errors.New("reconciler is disposed")
	ErrNotInitialized = errors.New("reconciler is not initialized")
)

// Playback speed bounds.
const (
	MinSpeed     = 0.1
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0
)

// Config holds reconciler configuration.
type Config struct {
	CollectionPath string          // Passed to the ingestion server
	MaxBodyBytes   int64           // Passed to the ingestion server
	PlaybackSpeed  float64         // Clock multiplier; 0 means DefaultSpeed
	NewIngestor    IngestorFactory // Overrides the ingestion server, used by tests
}

// Reconciler owns the live playback state. It applies ingestion events,
// advances a local clock between pushes and republishes every applied event
// to its own subscribers.
//
// Lock order: lifeMu, then pubMu, then mu. Subscriber handlers run with
// pubMu held and must not call lifecycle methods or subscribe.
type Reconciler struct {
	lifeMu sync.Mutex // Serializes Initialize, UpdatePort, Reconnect, Dispose
	pubMu  sync.Mutex // Keeps delivery in mutation order
	mu     sync.RWMutex

	config      Config
	newIngestor IngestorFactory

	// Binding
	ingestor  Ingestor
	subID     string
	gen       uint64 // Bumped on every rebind; stale handlers compare against it
	port      int
	active    bool
	disposed  bool
	connected bool

	// Playback state
	song      *lyric.SongInfo
	lyric     *lyric.LyricData
	progress  *lyric.ProgressData
	playState *lyric.PlayStateData
	clock     time.Duration
	speed     float64

	bus *event.Bus
}

// NewReconciler creates an uninitialized reconciler.
func NewReconciler(config Config) *Reconciler {
	factory := config.NewIngestor
	if factory == nil {
		factory = serverFactory(config.CollectionPath, config.MaxBodyBytes)
	}
	speed := config.PlaybackSpeed
	if speed == 0 {
		speed = DefaultSpeed
	}
	return &Reconciler{
		config:      config,
		newIngestor: factory,
		speed:       clampSpeed(speed),
		bus:         event.NewBus(),
	}
}

// Initialize builds the ingestion server for port, subscribes to it and
// starts it. The reconciler stays initialized when the start fails, so a
// later Reconnect can retry on the same port.
func (r *Reconciler) Initialize(port int) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	r.active = true
	r.mu.Unlock()

	zlog.Info().Msgf("playback: initializing on port %d", port)
	return r.rebind(port)
}

// UpdatePort moves the ingestion binding to port. Loaded state and
// subscribers are preserved.
func (r *Reconciler) UpdatePort(port int) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if err := r.checkActive(); err != nil {
		return err
	}
	zlog.Info().Msgf("playback: moving ingestion to port %d", port)
	return r.rebind(port)
}

// Reconnect rebuilds the ingestion binding on the current port.
func (r *Reconciler) Reconnect() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if err := r.checkActive(); err != nil {
		return err
	}
	port := r.Port()
	zlog.Debug().Msgf("playback: reconnecting on port %d", port)
	return r.rebind(port)
}

// Dispose unsubscribes from and disposes the ingestion server, clears all
// state and drops subscribers. Late events are ignored afterwards.
func (r *Reconciler) Dispose() {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.active = false
	r.gen++
	ing, sub := r.ingestor, r.subID
	r.ingestor = nil
	r.subID = ""
	r.connected = false
	r.clearLocked()
	r.mu.Unlock()

	if ing != nil {
		ing.Unsubscribe(sub)
		ing.Dispose()
	}
	r.bus.Close()
	zlog.Info().Msg("playback: disposed")
}

func (r *Reconciler) checkActive() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.disposed {
		return ErrDisposed
	}
	if !r.active {
		return ErrNotInitialized
	}
	return nil
}

// rebind replaces the ingestion server. The new server is subscribed before
// it starts so its connected event is not missed. Must be called with lifeMu
// held.
func (r *Reconciler) rebind(port int) error {
	next := r.newIngestor(port)

	r.mu.Lock()
	old, oldSub := r.ingestor, r.subID
	wasConnected, oldPort := r.connected, r.port
	r.gen++
	gen := r.gen
	r.ingestor = next
	r.port = port
	r.connected = false
	r.subID = next.Subscribe(func(e event.Event) {
		r.apply(gen, e)
	})
	r.mu.Unlock()

	if old != nil {
		old.Unsubscribe(oldSub)
		old.Dispose()
	}
	if wasConnected {
		r.publish(event.Event{Type: event.TypeDisconnected, Port: oldPort})
	}

	if err := next.Start(); err != nil {
		zlog.Warn().Msgf("playback: failed to start ingestion on port %d: %v", port, err)
		return errors.Wrapf(err, "start ingestion on port %d", port)
	}
	return nil
}

// apply mutates state for one ingestion event and republishes it.
// Events from a replaced or disposed binding are dropped.
func (r *Reconciler) apply(gen uint64, e event.Event) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.Lock()
	if !r.active || gen != r.gen {
		r.mu.Unlock()
		zlog.Debug().Msgf("playback: dropping stale %s event", e.Type)
		return
	}

	switch e.Type {
	case event.TypeConnected:
		r.connected = true
		if e.Port != 0 {
			r.port = e.Port
		}
	case event.TypeDisconnected:
		r.connected = false
	case event.TypeSongChanged:
		r.song = e.Song.Clone()
		r.lyric = nil
		r.progress = nil
		r.playState = nil
		r.clock = 0
	case event.TypeLyricReceived:
		r.lyric = e.Lyric.Clone()
	case event.TypeProgressUpdated:
		r.progress = e.Progress.Clone()
		if r.progress != nil {
			r.clock = time.Duration(r.progress.Time) * time.Millisecond
		}
	case event.TypePlayStateChanged:
		r.playState = e.PlayState.Clone()
	case event.TypeError:
		zlog.Warn().Msgf("playback: error reported: %s", e.Message)
	default:
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.bus.Publish(e.Clone())
}

// publish delivers e to subscribers in mutation order.
func (r *Reconciler) publish(e event.Event) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.bus.Publish(e)
}

func (r *Reconciler) clearLocked() {
	r.song = nil
	r.lyric = nil
	r.progress = nil
	r.playState = nil
	r.clock = 0
}

// Advance moves the clock forward by delta scaled by the playback speed,
// then publishes a tick event. The clock is frozen unless playing.
func (r *Reconciler) Advance(delta time.Duration) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	if r.playState.IsPlaying() && delta > 0 {
		r.clock += time.Duration(float64(delta) * r.speed)
	}
	r.mu.Unlock()

	r.bus.Publish(event.Event{Type: event.TypeTick, Delta: delta})
}

// SetPlaybackSpeed sets the clock multiplier, clamped to [MinSpeed, MaxSpeed].
func (r *Reconciler) SetPlaybackSpeed(speed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speed = clampSpeed(speed)
}

// PlaybackSpeed returns the clock multiplier.
func (r *Reconciler) PlaybackSpeed() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.speed
}

func clampSpeed(speed float64) float64 {
	return min(max(speed, MinSpeed), MaxSpeed)
}

// Subscribe registers a consumer handler and returns its subscription ID.
func (r *Reconciler) Subscribe(h event.Handler) string {
	return r.bus.Subscribe(h)
}

// SubscribeWithReplay registers h and first delivers the current connection,
// song, lyric, progress and play state to it. No live event is delivered
// between the replay and the subscription.
func (r *Reconciler) SubscribeWithReplay(h event.Handler) string {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.RLock()
	var replay []event.Event
	if r.connected {
		replay = append(replay, event.Event{Type: event.TypeConnected, Port: r.port})
	}
	if r.song != nil {
		replay = append(replay, event.Event{Type: event.TypeSongChanged, Song: r.song.Clone()})
	}
	if r.lyric != nil {
		replay = append(replay, event.Event{Type: event.TypeLyricReceived, Lyric: r.lyric.Clone()})
	}
	if r.progress != nil {
		replay = append(replay, event.Event{Type: event.TypeProgressUpdated, Progress: r.progress.Clone()})
	}
	if r.playState != nil {
		replay = append(replay, event.Event{Type: event.TypePlayStateChanged, PlayState: r.playState.Clone()})
	}
	r.mu.RUnlock()

	for _, e := range replay {
		h(e)
	}
	return r.bus.Subscribe(h)
}

// Unsubscribe removes a consumer handler.
func (r *Reconciler) Unsubscribe(id string) bool {
	return r.bus.Unsubscribe(id)
}

// CurrentSong returns a copy of the current song, or nil.
func (r *Reconciler) CurrentSong() *lyric.SongInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.song.Clone()
}

// CurrentLyric returns a copy of the current lyric sheet, or nil.
func (r *Reconciler) CurrentLyric() *lyric.LyricData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lyric.Clone()
}

// CurrentProgress returns a copy of the last progress sample, or nil.
func (r *Reconciler) CurrentProgress() *lyric.ProgressData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress.Clone()
}

// CurrentPlayState returns a copy of the last play state, or nil.
func (r *Reconciler) CurrentPlayState() *lyric.PlayStateData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playState.Clone()
}

// State returns the transport state.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return stateOf(r.playState)
}

// IsConnected returns true while the ingestion server is listening.
func (r *Reconciler) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Port returns the bound ingestion port, or the requested one before binding.
func (r *Reconciler) Port() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.port
}

// Position returns the local clock.
func (r *Reconciler) Position() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clock
}

// CurrentLineIndex returns the index of the lyric line at the local clock,
// or -1 without a lyric, before the first progress sample or before the
// first line.
func (r *Reconciler) CurrentLineIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lineIndexLocked()
}

func (r *Reconciler) lineIndexLocked() int {
	if r.progress == nil {
		return -1
	}
	return r.lyric.LineIndexAt(r.clock.Milliseconds())
}

// Progress returns clock/duration in [0, 1].
func (r *Reconciler) Progress() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return progressRatio(r.clock, r.progress)
}

// FormattedTime returns "m:ss/m:ss" for the clock and song duration.
func (r *Reconciler) FormattedTime() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return formatTime(r.clock, r.progress)
}

func progressRatio(clock time.Duration, p *lyric.ProgressData) float64 {
	if p == nil || p.Duration <= 0 {
		return 0
	}
	ratio := float64(clock.Milliseconds()) / float64(p.Duration)
	return min(max(ratio, 0), 1)
}

func formatTime(clock time.Duration, p *lyric.ProgressData) string {
	if p == nil {
		return "0:00/0:00"
	}
	return formatClock(clock) + "/" + formatClock(time.Duration(p.Duration)*time.Millisecond)
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
