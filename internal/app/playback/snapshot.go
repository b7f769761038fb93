package playback

import (
	"time"

	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// Snapshot is a consistent copy of the reconciler's read model.
type Snapshot struct {
	Song          *lyric.SongInfo      `json:"song,omitempty"`
	Lyric         *lyric.LyricData     `json:"lyric,omitempty"`
	Progress      *lyric.ProgressData  `json:"progress,omitempty"`
	PlayState     *lyric.PlayStateData `json:"play_state,omitempty"`
	State         State                `json:"state"`
	Connected     bool                 `json:"connected"`
	Port          int                  `json:"port"`
	Position      time.Duration        `json:"position"`
	LineIndex     int                  `json:"line_index"`
	Ratio         float64              `json:"ratio"`
	FormattedTime string               `json:"formatted_time"`
	Speed         float64              `json:"speed"`
}

// CurrentLine returns the lyric line at LineIndex.
func (s *Snapshot) CurrentLine() (lyric.LyricLine, bool) {
	return s.Lyric.Line(s.LineIndex)
}

// Snapshot returns every accessor value taken at one instant.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Snapshot{
		Song:          r.song.Clone(),
		Lyric:         r.lyric.Clone(),
		Progress:      r.progress.Clone(),
		PlayState:     r.playState.Clone(),
		State:         stateOf(r.playState),
		Connected:     r.connected,
		Port:          r.port,
		Position:      r.clock,
		LineIndex:     r.lineIndexLocked(),
		Ratio:         progressRatio(r.clock, r.progress),
		FormattedTime: formatTime(r.clock, r.progress),
		Speed:         r.speed,
	}
}
