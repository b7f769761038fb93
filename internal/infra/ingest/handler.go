package ingest

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/infra/codec"
)

// handlePing answers the liveness probe.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleCollect reads, decodes and publishes one pushed message.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(requestDuration)
	defer timer.ObserveDuration()

	body, err := readBody(w, r, s.config.MaxBodyBytes)
	if err != nil {
		failuresTotal.WithLabelValues("read").Inc()
		zlog.Warn().Msgf("ingest: failed to read body from %s: %v", r.RemoteAddr, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	msg, err := codec.Decode(body)
	if err != nil {
		failuresTotal.WithLabelValues("decode").Inc()
		zlog.Warn().Msgf("ingest: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if msg == nil {
		messagesTotal.WithLabelValues("unknown").Inc()
		zlog.Debug().Msg("ingest: ignoring message of unknown type")
		w.WriteHeader(http.StatusOK)
		return
	}

	messagesTotal.WithLabelValues(string(msg.Type)).Inc()
	if !s.IsDisposed() {
		s.bus.Publish(toEvent(msg))
	}
	w.WriteHeader(http.StatusOK)
}

// readBody reads the whole body, bounded by limit, and transcodes it to
// UTF-8 when the Content-Type declares another charset.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	var reader io.Reader = http.MaxBytesReader(w, r.Body, limit)

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			if cs := params["charset"]; cs != "" && !isUTF8(cs) {
				enc, err := htmlindex.Get(cs)
				if err != nil {
					return nil, errors.Wrapf(err, "unsupported charset %q", cs)
				}
				reader = enc.NewDecoder().Reader(reader)
			}
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	return body, nil
}

func isUTF8(charset string) bool {
	cs := strings.ToLower(charset)
	return cs == "utf-8" || cs == "utf8"
}

// toEvent maps a decoded message to its event.
func toEvent(msg *codec.Message) event.Event {
	switch msg.Type {
	case codec.TypeSong:
		return event.Event{Type: event.TypeSongChanged, Song: msg.Song}
	case codec.TypeLyric:
		return event.Event{Type: event.TypeLyricReceived, Lyric: msg.Lyric}
	case codec.TypeProgress:
		return event.Event{Type: event.TypeProgressUpdated, Progress: msg.Progress}
	case codec.TypePlayState:
		return event.Event{Type: event.TypePlayStateChanged, PlayState: msg.PlayState}
	default:
		return event.Event{Type: event.TypeError, Message: msg.Error.Message}
	}
}
