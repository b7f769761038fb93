// Package playback reconciles pushed now-playing events into one continuously
// advancing playback state.
package playback

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// State represents the transport state derived from the last play-state push.
type State int

const (
	StateIdle    State = iota // No play state received for the current song
	StatePlaying              // Player reported "resume"
	StatePaused               // Player reported any other state
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its string form.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes the string form produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, c := range []State{StateIdle, StatePlaying, StatePaused} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return errors.Newf("unknown playback state %q", text)
}

func stateOf(ps *lyric.PlayStateData) State {
	switch {
	case ps == nil:
		return StateIdle
	case ps.IsPlaying():
		return StatePlaying
	default:
		return StatePaused
	}
}
