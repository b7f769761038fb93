package lyric

// StateResume is the play-state tag the player sends while playing.
const StateResume = "resume"

// DynamicLyricWord represents one syllable or word inside a line.
type DynamicLyricWord struct {
	Time     int64  `json:"time"`
	Duration int64  `json:"duration"`
	Flag     int    `json:"flag"`
	Word     string `json:"word"`
}

// LyricLine represents one synchronized lyric line.
type LyricLine struct {
	Time             int64              `json:"time"`     // Start time in milliseconds
	Duration         int64              `json:"duration"` // Duration in milliseconds
	OriginalLyric    string             `json:"originalLyric"`
	TranslatedLyric  string             `json:"translatedLyric"`
	RomanLyric       string             `json:"romanLyric"`
	DynamicLyricTime *int64             `json:"dynamicLyricTime,omitempty"`
	DynamicLyric     []DynamicLyricWord `json:"dynamicLyric,omitempty"`
}

// LyricData is the full lyric sheet of the current song.
type LyricData struct {
	Lines []LyricLine `json:"lines"`
}

// LineIndexAt returns the index of the line playing at t milliseconds:
// the line whose start is <= t and whose successor (if any) starts after t.
// Returns -1 when there are no lines or t precedes the first line.
func (d *LyricData) LineIndexAt(t int64) int {
	if d == nil {
		return -1
	}
	n := len(d.Lines)
	for i := 0; i < n; i++ {
		if d.Lines[i].Time <= t && (i == n-1 || d.Lines[i+1].Time > t) {
			return i
		}
	}
	return -1
}

// Line returns the line at index i.
func (d *LyricData) Line(i int) (LyricLine, bool) {
	if d == nil || i < 0 || i >= len(d.Lines) {
		return LyricLine{}, false
	}
	return d.Lines[i], true
}

// Clone returns a deep copy of the lyric sheet.
func (d *LyricData) Clone() *LyricData {
	if d == nil {
		return nil
	}
	c := &LyricData{}
	if d.Lines != nil {
		c.Lines = make([]LyricLine, len(d.Lines))
		for i, l := range d.Lines {
			if l.DynamicLyricTime != nil {
				v := *l.DynamicLyricTime
				l.DynamicLyricTime = &v
			}
			if l.DynamicLyric != nil {
				words := make([]DynamicLyricWord, len(l.DynamicLyric))
				copy(words, l.DynamicLyric)
				l.DynamicLyric = words
			}
			c.Lines[i] = l
		}
	}
	return c
}

// ProgressData is a position sample from the player. It is the
// authoritative resync point for the local clock.
type ProgressData struct {
	Time     int64 `json:"time"`     // Elapsed milliseconds
	Duration int64 `json:"duration"` // Total milliseconds
}

// Clone returns a copy of the progress sample.
func (p *ProgressData) Clone() *ProgressData {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// PlayStateData is the transport state reported by the player.
type PlayStateData struct {
	State string `json:"state"`
}

// IsPlaying reports whether the state tag means playing.
// Any tag other than "resume" is treated as not playing.
func (p *PlayStateData) IsPlaying() bool {
	return p != nil && p.State == StateResume
}

// Clone returns a copy of the play state.
func (p *PlayStateData) Clone() *PlayStateData {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// ErrorData carries an error message reported by the player.
type ErrorData struct {
	Message string `json:"message"`
}
