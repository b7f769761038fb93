package codec

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lyricsync/internal/domain/lyric"
)

func TestDecode_KnownTypes(t *testing.T) {
	dyn := int64(120)

	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, msg *Message)
	}{
		{
			name: "song",
			body: `{"type":"song","timestamp":1700000000000,"data":{"id":42,"name":"Song","alias":["Alias"],
				"artists":[{"id":7,"name":"Artist"}],"album":{"id":9,"name":"Album","picUrl":"http://img"},
				"duration":200000,"transNames":["T"]}}`,
			check: func(t *testing.T, msg *Message) {
				assert.Equal(t, int64(1700000000000), msg.Timestamp)
				assert.Equal(t, &lyric.SongInfo{
					ID:         42,
					Name:       "Song",
					Alias:      []string{"Alias"},
					Artists:    []lyric.Artist{{ID: 7, Name: "Artist"}},
					Album:      lyric.Album{ID: 9, Name: "Album", PicURL: "http://img"},
					Duration:   200000,
					TransNames: []string{"T"},
				}, msg.Song)
				assert.Nil(t, msg.Lyric)
			},
		},
		{
			name: "lyric",
			body: `{"type":"lyric","timestamp":1,"data":{"lines":[
				{"time":0,"duration":5000,"originalLyric":"a","translatedLyric":"A","romanLyric":"ah"},
				{"time":5000,"duration":7000,"originalLyric":"b","dynamicLyricTime":120,
				 "dynamicLyric":[{"time":0,"duration":300,"flag":0,"word":"b"}]}]}}`,
			check: func(t *testing.T, msg *Message) {
				require.NotNil(t, msg.Lyric)
				assert.Equal(t, []lyric.LyricLine{
					{Time: 0, Duration: 5000, OriginalLyric: "a", TranslatedLyric: "A", RomanLyric: "ah"},
					{
						Time: 5000, Duration: 7000, OriginalLyric: "b", DynamicLyricTime: &dyn,
						DynamicLyric: []lyric.DynamicLyricWord{{Time: 0, Duration: 300, Flag: 0, Word: "b"}},
					},
				}, msg.Lyric.Lines)
			},
		},
		{
			name: "progress",
			body: `{"type":"progress","timestamp":1,"data":{"time":6000,"duration":20000}}`,
			check: func(t *testing.T, msg *Message) {
				assert.Equal(t, &lyric.ProgressData{Time: 6000, Duration: 20000}, msg.Progress)
			},
		},
		{
			name: "state",
			body: `{"type":"state","timestamp":1,"data":{"state":"resume"}}`,
			check: func(t *testing.T, msg *Message) {
				assert.Equal(t, &lyric.PlayStateData{State: "resume"}, msg.PlayState)
			},
		},
		{
			name: "error",
			body: `{"type":"error","timestamp":1,"data":{"message":"boom"}}`,
			check: func(t *testing.T, msg *Message) {
				assert.Equal(t, &lyric.ErrorData{Message: "boom"}, msg.Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			require.NotNil(t, msg)
			assert.Equal(t, MessageType(tt.name), msg.Type)
			tt.check(t, msg)
		})
	}
}

func TestDecode_UnknownTypeIgnored(t *testing.T) {
	for _, body := range []string{
		`{"type":"volume","timestamp":1,"data":{"level":3}}`,
		`{"type":"","data":{}}`,
		`{}`,
	} {
		msg, err := Decode([]byte(body))
		assert.NoError(t, err, body)
		assert.Nil(t, msg, body)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `hello`},
		{name: "empty body", body: ``},
		{name: "truncated envelope", body: `{"type":"song"`},
		{name: "type is not a string", body: `{"type":5}`},
		{name: "payload of wrong shape", body: `{"type":"progress","data":{"time":"soon"}}`},
		{name: "payload is an array", body: `{"type":"lyric","data":[1,2]}`},
		{name: "missing data", body: `{"type":"song","timestamp":1}`},
		{name: "null data", body: `{"type":"state","data":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, ErrDecode), "error should be marked as decode failure: %v", err)
		})
	}
}

func TestEncode_DecodesBack(t *testing.T) {
	raw, err := Encode(TypeProgress, 99, lyric.ProgressData{Time: 1500, Duration: 3000})
	require.NoError(t, err)

	msg, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, TypeProgress, msg.Type)
	assert.Equal(t, int64(99), msg.Timestamp)
	assert.Equal(t, &lyric.ProgressData{Time: 1500, Duration: 3000}, msg.Progress)
}
