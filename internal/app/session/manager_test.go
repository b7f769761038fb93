package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/app/supervisor"
	"github.com/osa030/lyricsync/internal/infra/ingest"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// occupy holds a loopback port until the returned func is called.
func occupy(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", net.JoinHostPort(ingest.Host, "0"))
	require.NoError(t, err)
	return ln.Addr().(*net.TCPAddr).Port, func() { ln.Close() }
}

func newTestManager(t *testing.T, port int) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager(Config{Port: port, ReconnectInterval: time.Second})
	m.now = clock.Now
	t.Cleanup(m.Close)
	return m, clock
}

func TestManager_StartAndClose(t *testing.T) {
	m, _ := newTestManager(t, 0)

	require.NoError(t, m.Start())
	assert.True(t, m.IsConnected())
	assert.NotZero(t, m.Port())
	assert.Equal(t, supervisor.StateIdle, m.LinkState())
	assert.NotEmpty(t, m.ID())

	m.Close()
	m.Close()
	assert.False(t, m.IsConnected())
	assert.True(t, errors.Is(m.Start(), ErrSessionClosed))
}

func TestManager_ReconnectsAfterFailedStart(t *testing.T) {
	port, release := occupy(t)
	m, clock := newTestManager(t, port)

	err := m.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrBind))
	assert.Equal(t, supervisor.StateReconnecting, m.LinkState())

	clock.Add(500 * time.Millisecond)
	m.Tick(0)
	assert.Zero(t, m.ReconnectAttempts(), "interval has not elapsed")

	clock.Add(time.Second)
	m.Tick(0)
	assert.Equal(t, 1, m.ReconnectAttempts())
	assert.False(t, m.IsConnected())

	release()
	clock.Add(time.Second)
	m.Tick(0)

	assert.True(t, m.IsConnected())
	assert.Equal(t, port, m.Port())
	assert.Equal(t, supervisor.StateIdle, m.LinkState())
}

func TestManager_UpdatePort(t *testing.T) {
	m, clock := newTestManager(t, 0)
	require.NoError(t, m.Start())

	var disconnects atomic.Int32
	m.Subscribe(func(e event.Event) {
		if e.Type == event.TypeDisconnected {
			disconnects.Add(1)
		}
	})

	// Same port while listening is a no-op.
	require.NoError(t, m.UpdatePort(m.Port()))
	assert.Zero(t, disconnects.Load())

	busy, release := occupy(t)
	err := m.UpdatePort(busy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrBind))
	assert.Equal(t, int32(1), disconnects.Load())
	assert.Equal(t, supervisor.StateReconnecting, m.LinkState())

	release()
	clock.Add(time.Second)
	m.Tick(0)
	assert.True(t, m.IsConnected())
	assert.Equal(t, busy, m.Port())
}

func TestManager_UpdatePortBeforeStart(t *testing.T) {
	m, _ := newTestManager(t, 0)
	err := m.UpdatePort(1234)
	assert.Error(t, err)
	assert.Equal(t, supervisor.StateIdle, m.LinkState())
}

func TestManager_TickPublishesDelta(t *testing.T) {
	m, _ := newTestManager(t, 0)
	require.NoError(t, m.Start())

	var got []time.Duration
	var mu sync.Mutex
	m.Subscribe(func(e event.Event) {
		if e.Type == event.TypeTick {
			mu.Lock()
			got = append(got, e.Delta)
			mu.Unlock()
		}
	})

	m.Tick(16 * time.Millisecond)
	m.Tick(17 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{16 * time.Millisecond, 17 * time.Millisecond}, got)
}

func TestManager_Run(t *testing.T) {
	m, _ := newTestManager(t, 0)
	require.NoError(t, m.Start())

	var ticks atomic.Int32
	m.Subscribe(func(e event.Event) {
		if e.Type == event.TypeTick && e.Delta > 0 {
			ticks.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManager_SubscribeWithReplay(t *testing.T) {
	m, _ := newTestManager(t, 0)
	require.NoError(t, m.Start())

	var got []event.Type
	id := m.SubscribeWithReplay(func(e event.Event) {
		got = append(got, e.Type)
	})

	assert.Equal(t, []event.Type{event.TypeConnected}, got)
	assert.True(t, m.Unsubscribe(id))
}

func TestManager_PlaybackSpeed(t *testing.T) {
	m, _ := newTestManager(t, 0)

	m.SetPlaybackSpeed(1.5)
	assert.Equal(t, 1.5, m.PlaybackSpeed())

	m.SetPlaybackSpeed(9)
	assert.Equal(t, 2.0, m.PlaybackSpeed())
}
