package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/liuzl/gocc"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// ConsoleConfig represents the configuration for ConsoleSink.
type ConsoleConfig struct {
	Output          string `yaml:"output" mapstructure:"output" default:"log" validate:"oneof=log stdout"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix" default:">"`
	HideTranslation bool   `yaml:"hide_translation" mapstructure:"hide_translation"`
	ShowRoman       bool   `yaml:"show_roman" mapstructure:"show_roman"`
	Convert         string `yaml:"convert" mapstructure:"convert" validate:"omitempty,oneof=s2t t2s s2tw tw2s s2hk hk2s s2twp tw2sp t2tw t2hk"`
}

// ConsoleSink prints the current song and each new lyric line.
type ConsoleSink struct {
	mu sync.Mutex

	config    *ConsoleConfig
	converter *gocc.OpenCC
	out       io.Writer

	src       Source
	lyric     *lyric.LyricData
	lastIndex int
}

// NewConsoleSink creates a console sink with default settings.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout, lastIndex: -1}
}

func (s *ConsoleSink) Name() string {
	return "console"
}

func (s *ConsoleSink) Description() string {
	return "Prints the current song and lyric lines as they become current"
}

func (s *ConsoleSink) ValidateConfig(settings map[string]any) error {
	var config ConsoleConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	s.config = &config
	zlog.Debug().Msgf("console sink config: %+v", config)
	return nil
}

func (s *ConsoleSink) Attach(src Source) (func(), error) {
	if s.config == nil {
		if err := s.ValidateConfig(nil); err != nil {
			return nil, err
		}
	}
	if s.config.Convert != "" && s.converter == nil {
		cc, err := gocc.New(s.config.Convert)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to initialize OpenCC converter %s", s.config.Convert)
		}
		s.converter = cc
	}

	s.mu.Lock()
	s.src = src
	s.mu.Unlock()

	id := src.SubscribeWithReplay(s.handle)
	return func() { src.Unsubscribe(id) }, nil
}

func (s *ConsoleSink) handle(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case event.TypeSongChanged:
		s.lyric = nil
		s.lastIndex = -1
		if e.Song != nil {
			s.printLocked("now playing: %s - %s", s.convert(e.Song.DisplayName()), s.convert(e.Song.ArtistNames()))
		}
	case event.TypeLyricReceived:
		s.lyric = e.Lyric
		s.lastIndex = -1
	case event.TypeTick, event.TypeProgressUpdated:
		s.printCurrentLineLocked()
	case event.TypeDisconnected:
		zlog.Info().Msg("console: player link lost")
	case event.TypeError:
		zlog.Warn().Msgf("console: player error: %s", e.Message)
	}
}

func (s *ConsoleSink) printCurrentLineLocked() {
	if s.lyric == nil || s.src == nil {
		return
	}
	idx := s.src.CurrentLineIndex()
	if idx == s.lastIndex {
		return
	}
	s.lastIndex = idx
	line, ok := s.lyric.Line(idx)
	if !ok || strings.TrimSpace(line.OriginalLyric) == "" {
		return
	}

	s.printLocked("%s %s", s.config.Prefix, s.convert(line.OriginalLyric))
	if !s.config.HideTranslation && line.TranslatedLyric != "" {
		s.printLocked("%s %s", s.config.Prefix, s.convert(line.TranslatedLyric))
	}
	if s.config.ShowRoman && line.RomanLyric != "" {
		s.printLocked("%s %s", s.config.Prefix, line.RomanLyric)
	}
}

func (s *ConsoleSink) printLocked(format string, args ...any) {
	if s.config.Output == "stdout" {
		fmt.Fprintf(s.out, format+"\n", args...)
		return
	}
	zlog.Info().Msgf(format, args...)
}

// convert applies the configured script conversion, returning text
// unchanged on failure.
func (s *ConsoleSink) convert(text string) string {
	if s.converter == nil {
		return text
	}
	out, err := s.converter.Convert(text)
	if err != nil {
		zlog.Warn().Msgf("console: failed to convert %q: %v", text, err)
		return text
	}
	return out
}

func init() {
	Register("console", func() Sink {
		return NewConsoleSink()
	})
}
