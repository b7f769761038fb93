// Package ws serves the playback event feed over WebSocket.
package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lyricsync/internal/app/event"
)

const (
	feedBuffer   = 64
	writeTimeout = 5 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	// Browser overlays are served from arbitrary local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Source is the event feed served to clients.
type Source interface {
	SubscribeWithReplay(h event.Handler) string
	Unsubscribe(id string) bool
	Done() <-chan struct{}
}

// NewHandler returns a handler that upgrades to WebSocket and writes each
// event as a JSON text message, starting with the current state.
// Tick events are sent only with ?ticks=true.
func NewHandler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		includeTicks, _ := strconv.ParseBool(r.URL.Query().Get("ticks"))

		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			zlog.Warn().Msgf("ws: upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		zlog.Debug().Msgf("ws: client connected: %s", r.RemoteAddr)

		ch := make(chan event.Event, feedBuffer)
		id := src.SubscribeWithReplay(func(e event.Event) {
			if e.Type == event.TypeTick && !includeTicks {
				return
			}
			select {
			case ch <- e:
			default:
				zlog.Debug().Msgf("ws: buffer full, dropping %s event", e.Type)
			}
		})
		defer src.Unsubscribe(id)

		// Drain incoming messages (ping/pong, close frames) without blocking.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				zlog.Debug().Msgf("ws: client disconnected: %s", r.RemoteAddr)
				return
			case <-src.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeTimeout))
				return
			case e := <-ch:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(e); err != nil {
					return
				}
			}
		}
	})
}
