package sink

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/domain/lyric"
)

// HookConfig represents the configuration for HookSink.
type HookConfig struct {
	OnSongChanged  []string `yaml:"on_song_changed" mapstructure:"on_song_changed"`
	OnDisconnected []string `yaml:"on_disconnected" mapstructure:"on_disconnected"`
	Shell          string   `yaml:"shell" mapstructure:"shell" default:"sh" validate:"required"`
	TimeoutMs      int      `yaml:"timeout_ms" mapstructure:"timeout_ms" default:"10000" validate:"gte=0"`
}

// HookSink runs shell commands on song changes and link loss.
type HookSink struct {
	config *HookConfig
	wg     sync.WaitGroup
}

// NewHookSink creates a new hook sink.
func NewHookSink() *HookSink {
	return &HookSink{}
}

func (s *HookSink) Name() string {
	return "hook"
}

func (s *HookSink) Description() string {
	return "Runs shell commands when the song changes or the player link is lost"
}

func (s *HookSink) ValidateConfig(settings map[string]any) error {
	var config HookConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	if len(config.OnSongChanged) == 0 && len(config.OnDisconnected) == 0 {
		return errors.New("at least one of on_song_changed or on_disconnected is required")
	}
	s.config = &config
	zlog.Debug().Msgf("hook sink config: %+v", config)
	return nil
}

func (s *HookSink) Attach(src Source) (func(), error) {
	if s.config == nil {
		return nil, errors.New("hook sink is not configured")
	}
	id := src.Subscribe(s.handle)
	return func() {
		src.Unsubscribe(id)
		s.wg.Wait()
	}, nil
}

// handle starts commands in the background; event handlers must not block.
func (s *HookSink) handle(e event.Event) {
	switch e.Type {
	case event.TypeSongChanged:
		s.spawn("on_song_changed", s.config.OnSongChanged, songEnv(e.Song))
	case event.TypeDisconnected:
		s.spawn("on_disconnected", s.config.OnDisconnected, []string{
			"LYRICSYNC_PORT=" + strconv.Itoa(e.Port),
		})
	}
}

func (s *HookSink) spawn(stage string, cmds []string, env []string) {
	if len(cmds) == 0 {
		return
	}
	timeout := time.Duration(s.config.TimeoutMs) * time.Millisecond
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		RunCommands(ctx, stage, s.config.Shell, cmds, env)
	}()
}

func songEnv(song *lyric.SongInfo) []string {
	if song == nil {
		return nil
	}
	return []string{
		"LYRICSYNC_SONG_ID=" + strconv.FormatInt(song.ID, 10),
		"LYRICSYNC_SONG_NAME=" + song.DisplayName(),
		"LYRICSYNC_SONG_ARTISTS=" + song.ArtistNames(),
		"LYRICSYNC_SONG_ALBUM=" + song.Album.Name,
		"LYRICSYNC_SONG_DURATION_MS=" + strconv.FormatInt(song.Duration, 10),
	}
}

// RunCommands runs each command with shell -c in order, adding env to the
// process environment. Failures are logged and do not stop later commands.
func RunCommands(ctx context.Context, stage, shell string, cmds []string, env []string) {
	if len(cmds) == 0 {
		return
	}
	if shell == "" {
		shell = "sh"
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(cmds))

	for _, c := range cmds {
		zlog.Info().Msgf("Executing hook: %s", c)
		cmd := exec.CommandContext(ctx, shell, "-c", c)
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", c)
		}
	}
}

func init() {
	Register("hook", func() Sink {
		return NewHookSink()
	})
}
