package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/domain/lyric"
)

type fakeSource struct {
	bus    *event.Bus
	replay []event.Event
	done   chan struct{}
}

func (f *fakeSource) SubscribeWithReplay(h event.Handler) string {
	for _, e := range f.replay {
		h(e)
	}
	return f.bus.Subscribe(h)
}

func (f *fakeSource) Unsubscribe(id string) bool { return f.bus.Unsubscribe(id) }
func (f *fakeSource) Done() <-chan struct{}      { return f.done }

func dial(t *testing.T, src Source, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(src))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestFeed_ReplayThenLive(t *testing.T) {
	src := &fakeSource{
		bus:    event.NewBus(),
		replay: []event.Event{{Type: event.TypeSongChanged, Song: &lyric.SongInfo{ID: 1, Name: "Song"}}},
		done:   make(chan struct{}),
	}
	conn := dial(t, src, "")

	var got event.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, event.TypeSongChanged, got.Type)
	assert.Equal(t, "Song", got.Song.Name)

	src.bus.Publish(event.Event{Type: event.TypeTick, Delta: time.Millisecond})
	src.bus.Publish(event.Event{Type: event.TypeProgressUpdated, Progress: &lyric.ProgressData{Time: 1, Duration: 2}})

	got = event.Event{}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, event.TypeProgressUpdated, got.Type)
	assert.Equal(t, &lyric.ProgressData{Time: 1, Duration: 2}, got.Progress)
}

func TestFeed_Ticks(t *testing.T) {
	src := &fakeSource{
		bus:    event.NewBus(),
		replay: []event.Event{{Type: event.TypeConnected, Port: 35010}},
		done:   make(chan struct{}),
	}
	conn := dial(t, src, "?ticks=true")

	var got event.Event
	require.NoError(t, conn.ReadJSON(&got))
	src.bus.Publish(event.Event{Type: event.TypeTick, Delta: 16 * time.Millisecond})

	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, event.TypeTick, got.Type)
	assert.Equal(t, 16*time.Millisecond, got.Delta)
}

func TestFeed_ClosesWithSession(t *testing.T) {
	src := &fakeSource{
		bus:    event.NewBus(),
		replay: []event.Event{{Type: event.TypeConnected, Port: 35010}},
		done:   make(chan struct{}),
	}
	conn := dial(t, src, "")

	var got event.Event
	require.NoError(t, conn.ReadJSON(&got))
	close(src.done)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return src.bus.Len() == 0 }, time.Second, 10*time.Millisecond)
}
