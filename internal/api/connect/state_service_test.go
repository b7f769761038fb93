package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/app/playback"
	"github.com/osa030/lyricsync/internal/app/supervisor"
	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// fakeSession is an in-memory Session.
type fakeSession struct {
	bus    *event.Bus
	snap   playback.Snapshot
	replay []event.Event
	done   chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{bus: event.NewBus(), done: make(chan struct{})}
}

func (f *fakeSession) ID() string                  { return "session-1" }
func (f *fakeSession) Snapshot() playback.Snapshot { return f.snap }
func (f *fakeSession) LinkState() supervisor.State { return supervisor.StateReconnecting }
func (f *fakeSession) ReconnectAttempts() int      { return 3 }
func (f *fakeSession) Unsubscribe(id string) bool  { return f.bus.Unsubscribe(id) }
func (f *fakeSession) Done() <-chan struct{}       { return f.done }

func (f *fakeSession) SubscribeWithReplay(h event.Handler) string {
	for _, e := range f.replay {
		h(e)
	}
	return f.bus.Subscribe(h)
}

// closeStream cancels the call first so Close does not wait for the
// server to end the stream.
func closeStream(cancel context.CancelFunc, stream *connect.ServerStreamForClient[event.Event]) {
	cancel()
	_ = stream.Close()
}

func newTestClient(t *testing.T, sess Session) *StateClient {
	t.Helper()
	mux := http.NewServeMux()
	path, handler := NewStateServiceHandler(NewStateService(sess))
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewStateClient(srv.Client(), srv.URL)
}

func TestStateService_GetSnapshot(t *testing.T) {
	sess := newFakeSession()
	sess.snap = playback.Snapshot{
		Song:          &lyric.SongInfo{ID: 1, Name: "Song", Artists: []lyric.Artist{{ID: 2, Name: "A"}}},
		Lyric:         &lyric.LyricData{Lines: []lyric.LyricLine{{Time: 0, OriginalLyric: "x"}}},
		Progress:      &lyric.ProgressData{Time: 6000, Duration: 20000},
		PlayState:     &lyric.PlayStateData{State: lyric.StateResume},
		State:         playback.StatePlaying,
		Connected:     true,
		Port:          35010,
		Position:      6 * time.Second,
		LineIndex:     0,
		Ratio:         0.3,
		FormattedTime: "0:06/0:20",
		Speed:         1,
	}
	client := newTestClient(t, sess)

	res, err := client.GetSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "session-1", res.SessionID)
	assert.Equal(t, "reconnecting", res.LinkState)
	assert.Equal(t, 3, res.ReconnectAttempts)
	assert.Equal(t, sess.snap, res.Snapshot)
}

func TestStateService_Watch(t *testing.T) {
	sess := newFakeSession()
	sess.replay = []event.Event{{Type: event.TypeConnected, Port: 35010}}
	client := newTestClient(t, sess)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.Watch(ctx, &WatchRequest{})
	require.NoError(t, err)
	defer closeStream(cancel, stream)

	require.True(t, stream.Receive(), "replayed state: %v", stream.Err())
	assert.Equal(t, event.TypeConnected, stream.Msg().Type)
	assert.Equal(t, 35010, stream.Msg().Port)

	sess.bus.Publish(event.Event{Type: event.TypeTick, Delta: time.Millisecond})
	sess.bus.Publish(event.Event{Type: event.TypeSongChanged, Song: &lyric.SongInfo{ID: 9, Name: "next"}})

	require.True(t, stream.Receive(), "live event: %v", stream.Err())
	assert.Equal(t, event.TypeSongChanged, stream.Msg().Type, "ticks are filtered")
	assert.Equal(t, "next", stream.Msg().Song.Name)
}

func TestStateService_WatchTicks(t *testing.T) {
	sess := newFakeSession()
	sess.replay = []event.Event{{Type: event.TypeConnected, Port: 1}}
	client := newTestClient(t, sess)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.Watch(ctx, &WatchRequest{IncludeTicks: true})
	require.NoError(t, err)
	defer closeStream(cancel, stream)

	require.True(t, stream.Receive())
	sess.bus.Publish(event.Event{Type: event.TypeTick, Delta: 16 * time.Millisecond})

	require.True(t, stream.Receive())
	assert.Equal(t, event.TypeTick, stream.Msg().Type)
	assert.Equal(t, 16*time.Millisecond, stream.Msg().Delta)
}

func TestStateService_WatchClosesPromptly(t *testing.T) {
	sess := newFakeSession()
	sess.replay = []event.Event{{Type: event.TypeConnected, Port: 1}}
	client := newTestClient(t, sess)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.Watch(ctx, &WatchRequest{})
	require.NoError(t, err)
	require.True(t, stream.Receive())

	start := time.Now()
	closeStream(cancel, stream)
	assert.Less(t, time.Since(start), time.Second)
	assert.Eventually(t, func() bool { return sess.bus.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStateService_WatchEndsWithSession(t *testing.T) {
	sess := newFakeSession()
	sess.replay = []event.Event{{Type: event.TypeConnected, Port: 1}}
	client := newTestClient(t, sess)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.Watch(ctx, &WatchRequest{})
	require.NoError(t, err)
	defer closeStream(cancel, stream)

	require.True(t, stream.Receive())
	close(sess.done)

	assert.False(t, stream.Receive())
	assert.NoError(t, stream.Err())
	assert.Eventually(t, func() bool { return sess.bus.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStateService_ClosedSession(t *testing.T) {
	sess := newFakeSession()
	close(sess.done)
	client := newTestClient(t, sess)

	_, err := client.GetSnapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))

	stream, err := client.Watch(context.Background(), &WatchRequest{})
	require.NoError(t, err)
	defer stream.Close()
	assert.False(t, stream.Receive())
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(stream.Err()))
}

func TestNewStateServiceHandler_UnknownProcedure(t *testing.T) {
	_, handler := NewStateServiceHandler(NewStateService(newFakeSession()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/"+StateServiceName+"/Nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCodec(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "json", c.Name())

	data, err := c.Marshal(&WatchRequest{IncludeTicks: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"include_ticks":true}`, string(data))

	var req WatchRequest
	require.NoError(t, c.Unmarshal(data, &req))
	assert.True(t, req.IncludeTicks)

	assert.Error(t, c.Unmarshal([]byte("{"), &req))
	assert.NoError(t, c.Unmarshal(nil, &req))
}
