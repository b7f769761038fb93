// Package event provides the typed event and the publish/subscribe bus that
// carries it from the ingestion server to the reconciler and on to consumers.
package event

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// Type represents an event type.
type Type int

const (
	TypeConnected        Type = iota // Ingestion server is listening
	TypeDisconnected                 // Ingestion server stopped or failed
	TypeError                        // Error reported by the player or the server
	TypeSongChanged                  // New song received
	TypeLyricReceived                // New lyric sheet received
	TypeProgressUpdated              // New progress sample received
	TypePlayStateChanged             // New play state received
	TypeTick                         // Host tick with elapsed delta
)

// String returns the string representation of the event type.
func (t Type) String() string {
	switch t {
	case TypeConnected:
		return "connected"
	case TypeDisconnected:
		return "disconnected"
	case TypeError:
		return "error"
	case TypeSongChanged:
		return "song_changed"
	case TypeLyricReceived:
		return "lyric_received"
	case TypeProgressUpdated:
		return "progress_updated"
	case TypePlayStateChanged:
		return "play_state_changed"
	case TypeTick:
		return "tick"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type as its string form.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes the string form produced by MarshalText.
func (t *Type) UnmarshalText(text []byte) error {
	for c := TypeConnected; c <= TypeTick; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return errors.Newf("unknown event type %q", text)
}

// Event is a single notification. Only the payload matching Type is set.
type Event struct {
	Type      Type                 `json:"type"`
	Song      *lyric.SongInfo      `json:"song,omitempty"`
	Lyric     *lyric.LyricData     `json:"lyric,omitempty"`
	Progress  *lyric.ProgressData  `json:"progress,omitempty"`
	PlayState *lyric.PlayStateData `json:"play_state,omitempty"`
	Message   string               `json:"message,omitempty"` // TypeError
	Port      int                  `json:"port,omitempty"`    // TypeConnected, TypeDisconnected
	Delta     time.Duration        `json:"delta,omitempty"`   // TypeTick
}

// Clone returns a copy of the event with deep-copied payloads.
func (e Event) Clone() Event {
	e.Song = e.Song.Clone()
	e.Lyric = e.Lyric.Clone()
	e.Progress = e.Progress.Clone()
	e.PlayState = e.PlayState.Clone()
	return e
}
