// Package lyric provides the now-playing domain entities pushed by the player.
package lyric

import "strings"

// Artist represents a credited artist.
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Album represents the album a song belongs to.
type Album struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	PicURL string `json:"picUrl"` // Album art URL
}

// SongInfo represents the currently playing song.
// A new song event replaces it wholesale; it is never patched in place.
type SongInfo struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Alias      []string `json:"alias"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	Duration   int64    `json:"duration"` // Duration in milliseconds
	TransNames []string `json:"transNames"`
}

// ArtistNames returns the artist names joined with " / ".
func (s *SongInfo) ArtistNames() string {
	names := make([]string, 0, len(s.Artists))
	for _, a := range s.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, " / ")
}

// DisplayName returns the song name followed by its first alias or
// translated name, if any.
func (s *SongInfo) DisplayName() string {
	switch {
	case len(s.TransNames) > 0 && s.TransNames[0] != "":
		return s.Name + " (" + s.TransNames[0] + ")"
	case len(s.Alias) > 0 && s.Alias[0] != "":
		return s.Name + " (" + s.Alias[0] + ")"
	default:
		return s.Name
	}
}

// Clone returns a deep copy of the song.
func (s *SongInfo) Clone() *SongInfo {
	if s == nil {
		return nil
	}
	c := *s
	c.Alias = cloneStrings(s.Alias)
	c.TransNames = cloneStrings(s.TransNames)
	if s.Artists != nil {
		c.Artists = make([]Artist, len(s.Artists))
		copy(c.Artists, s.Artists)
	}
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
