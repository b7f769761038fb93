package lyric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLyricData_LineIndexAt(t *testing.T) {
	sheet := &LyricData{Lines: []LyricLine{
		{Time: 0, OriginalLyric: "a"},
		{Time: 5000, OriginalLyric: "b"},
		{Time: 12000, OriginalLyric: "c"},
	}}

	tests := []struct {
		name     string
		data     *LyricData
		at       int64
		expected int
	}{
		{name: "nil sheet", data: nil, at: 1000, expected: -1},
		{name: "empty sheet", data: &LyricData{}, at: 1000, expected: -1},
		{name: "first line start", data: sheet, at: 0, expected: 0},
		{name: "inside first line", data: sheet, at: 4999, expected: 0},
		{name: "second line start", data: sheet, at: 5000, expected: 1},
		{name: "inside second line", data: sheet, at: 6000, expected: 1},
		{name: "last line", data: sheet, at: 12500, expected: 2},
		{name: "far past the end", data: sheet, at: 999999, expected: 2},
		{
			name:     "before first line",
			data:     &LyricData{Lines: []LyricLine{{Time: 3000}, {Time: 6000}}},
			at:       1000,
			expected: -1,
		},
		{
			name:     "equal start times pick the later line",
			data:     &LyricData{Lines: []LyricLine{{Time: 0}, {Time: 5000}, {Time: 5000}, {Time: 9000}}},
			at:       6000,
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.data.LineIndexAt(tt.at))
		})
	}
}

func TestLyricData_Clone(t *testing.T) {
	dyn := int64(100)
	orig := &LyricData{Lines: []LyricLine{{
		Time:             1000,
		OriginalLyric:    "hello",
		DynamicLyricTime: &dyn,
		DynamicLyric:     []DynamicLyricWord{{Time: 0, Duration: 200, Word: "hel"}},
	}}}

	c := orig.Clone()
	assert.Equal(t, orig, c)

	c.Lines[0].OriginalLyric = "changed"
	c.Lines[0].DynamicLyric[0].Word = "changed"
	*c.Lines[0].DynamicLyricTime = 999

	assert.Equal(t, "hello", orig.Lines[0].OriginalLyric)
	assert.Equal(t, "hel", orig.Lines[0].DynamicLyric[0].Word)
	assert.Equal(t, int64(100), *orig.Lines[0].DynamicLyricTime)

	var nilSheet *LyricData
	assert.Nil(t, nilSheet.Clone())
}

func TestPlayStateData_IsPlaying(t *testing.T) {
	var nilState *PlayStateData
	assert.False(t, nilState.IsPlaying())
	assert.True(t, (&PlayStateData{State: "resume"}).IsPlaying())
	assert.False(t, (&PlayStateData{State: "pause"}).IsPlaying())
	assert.False(t, (&PlayStateData{State: "Resume"}).IsPlaying())
	assert.False(t, (&PlayStateData{State: ""}).IsPlaying())
}

func TestSongInfo_Names(t *testing.T) {
	song := &SongInfo{
		Name:    "Song",
		Alias:   []string{"Alias"},
		Artists: []Artist{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}},
	}
	assert.Equal(t, "A / B", song.ArtistNames())
	assert.Equal(t, "Song (Alias)", song.DisplayName())

	song.TransNames = []string{"Translated"}
	assert.Equal(t, "Song (Translated)", song.DisplayName())

	assert.Equal(t, "Plain", (&SongInfo{Name: "Plain"}).DisplayName())
}

func TestSongInfo_Clone(t *testing.T) {
	orig := &SongInfo{ID: 1, Name: "Song", Alias: []string{"x"}, Artists: []Artist{{Name: "A"}}}
	c := orig.Clone()
	c.Alias[0] = "y"
	c.Artists[0].Name = "B"

	assert.Equal(t, "x", orig.Alias[0])
	assert.Equal(t, "A", orig.Artists[0].Name)
}
