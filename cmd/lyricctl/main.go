// Package main provides the lyricsync client CLI for testing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/lyricsync/internal/api/connect"
	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/infra/codec"
)

var (
	app       = kingpin.New("lyricctl", "lyricsync client for testing")
	serverURL = app.Flag("server", "Ingestion server address").Default("http://127.0.0.1:35010").String()
	apiURL    = app.Flag("api", "Query API address").Default("http://127.0.0.1:35011").String()

	// ping command
	pingCmd = app.Command("ping", "Check that the ingestion server is up")

	// send command
	sendCmd  = app.Command("send", "Push a message as the player would")
	sendType = sendCmd.Arg("type", "Envelope type (song, lyric, progress, state, error)").Required().String()
	sendFile = sendCmd.Arg("file", "JSON payload file ('-' for stdin)").Required().String()

	// snapshot command
	snapshotCmd = app.Command("snapshot", "Print the current state")

	// watch command
	watchCmd   = app.Command("watch", "Stream events")
	watchTicks = watchCmd.Flag("ticks", "Include clock ticks").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx := context.Background()
	client := apiconnect.NewStateClient(http.DefaultClient, *apiURL)

	var err error
	switch command {
	case pingCmd.FullCommand():
		err = ping(ctx, *serverURL)
	case sendCmd.FullCommand():
		err = send(ctx, *serverURL, codec.MessageType(*sendType), *sendFile)
	case snapshotCmd.FullCommand():
		err = snapshot(ctx, client)
	case watchCmd.FullCommand():
		err = watch(ctx, client, *watchTicks)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func ping(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s %s\n", resp.Status, strings.TrimSpace(string(body)))
	return nil
}

func send(ctx context.Context, base string, t codec.MessageType, file string) error {
	if !t.Known() {
		return fmt.Errorf("unknown type %q", t)
	}

	var raw []byte
	var err error
	if file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return err
	}

	body, err := codec.Encode(t, time.Now().UnixMilli(), json.RawMessage(raw))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Printf("Sent %s (%d bytes): %s\n", t, len(body), resp.Status)
	return nil
}

func snapshot(ctx context.Context, client *apiconnect.StateClient) error {
	res, err := client.GetSnapshot(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Session: %s\n", res.SessionID)
	fmt.Printf("  Link: %s (attempts: %d)\n", res.LinkState, res.ReconnectAttempts)

	s := res.Snapshot
	fmt.Printf("  Connected: %v (port %d)\n", s.Connected, s.Port)
	fmt.Printf("  State: %s  %s  x%.2f\n", s.State, s.FormattedTime, s.Speed)
	if s.Song != nil {
		fmt.Printf("  Song: %s - %s\n", s.Song.DisplayName(), s.Song.ArtistNames())
	}
	if line, ok := s.CurrentLine(); ok {
		fmt.Printf("  Line %d: %s\n", s.LineIndex, line.OriginalLyric)
		if line.TranslatedLyric != "" {
			fmt.Printf("           %s\n", line.TranslatedLyric)
		}
	}
	return nil
}

func watch(ctx context.Context, client *apiconnect.StateClient, ticks bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stream, err := client.Watch(ctx, &apiconnect.WatchRequest{IncludeTicks: ticks})
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println("Watching events. Press Ctrl+C to exit.")

	for stream.Receive() {
		printEvent(stream.Msg())
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}

func printEvent(e *event.Event) {
	switch e.Type {
	case event.TypeConnected, event.TypeDisconnected:
		fmt.Printf("[%s] port=%d\n", e.Type, e.Port)
	case event.TypeSongChanged:
		if e.Song != nil {
			fmt.Printf("[%s] %s - %s\n", e.Type, e.Song.DisplayName(), e.Song.ArtistNames())
		}
	case event.TypeLyricReceived:
		if e.Lyric != nil {
			fmt.Printf("[%s] %d lines\n", e.Type, len(e.Lyric.Lines))
		}
	case event.TypeProgressUpdated:
		if e.Progress != nil {
			fmt.Printf("[%s] %d/%d ms\n", e.Type, e.Progress.Time, e.Progress.Duration)
		}
	case event.TypePlayStateChanged:
		if e.PlayState != nil {
			fmt.Printf("[%s] %s\n", e.Type, e.PlayState.State)
		}
	case event.TypeError:
		fmt.Printf("[%s] %s\n", e.Type, e.Message)
	case event.TypeTick:
		fmt.Printf("[%s] +%s\n", e.Type, e.Delta)
	default:
		fmt.Printf("[%s]\n", e.Type)
	}
}
