// Package codec decodes and encodes the player's tagged JSON envelopes.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// ErrDecode marks every failure to decode an envelope or its payload.
var ErrDecode = errors.New("decode failed")

// MessageType is the envelope discriminator.
type MessageType string

const (
	TypeSong      MessageType = "song"
	TypeLyric     MessageType = "lyric"
	TypeProgress  MessageType = "progress"
	TypePlayState MessageType = "state"
	TypeError     MessageType = "error"
)

// Known reports whether the type is one the codec decodes.
func (t MessageType) Known() bool {
	switch t {
	case TypeSong, TypeLyric, TypeProgress, TypePlayState, TypeError:
		return true
	default:
		return false
	}
}

// Envelope is the outer wire wrapper.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Message is a decoded envelope. Exactly one payload field is set,
// matching Type.
type Message struct {
	Type      MessageType
	Timestamp int64

	Song      *lyric.SongInfo
	Lyric     *lyric.LyricData
	Progress  *lyric.ProgressData
	PlayState *lyric.PlayStateData
	Error     *lyric.ErrorData
}

// Decode decodes raw into a Message.
// It returns (nil, nil) for envelopes with an unknown type so the protocol
// can grow without breaking older receivers. Errors are marked with ErrDecode.
func Decode(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode envelope"), ErrDecode)
	}

	if !env.Type.Known() {
		return nil, nil
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errors.Mark(errors.Newf("%s message has no data", env.Type), ErrDecode)
	}

	msg := &Message{Type: env.Type, Timestamp: env.Timestamp}

	var target any
	switch env.Type {
	case TypeSong:
		msg.Song = &lyric.SongInfo{}
		target = msg.Song
	case TypeLyric:
		msg.Lyric = &lyric.LyricData{}
		target = msg.Lyric
	case TypeProgress:
		msg.Progress = &lyric.ProgressData{}
		target = msg.Progress
	case TypePlayState:
		msg.PlayState = &lyric.PlayStateData{}
		target = msg.PlayState
	case TypeError:
		msg.Error = &lyric.ErrorData{}
		target = msg.Error
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode %s payload", env.Type), ErrDecode)
	}

	return msg, nil
}

// Encode builds a wire envelope around data.
func Encode(t MessageType, timestamp int64, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s payload", t)
	}
	out, err := json.Marshal(Envelope{Type: t, Timestamp: timestamp, Data: payload})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope")
	}
	return out, nil
}
