package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	parts := []string{fmt.Sprintf("%d tracks", i.playlist.TrackCount), shared.VisibilityString(i.playlist.Public)}
	if i.playlist.Description != "" {
		parts = append(parts, i.playlist.Description)
	}
	return strings.Join(parts, " • ")
}

// trackItem wraps [models.SourceTrack] to implement [list.Item].
type trackItem struct {
	track models.SourceTrack
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string       { return fmt.Sprintf("%d. %s", i.track.Position+1, i.track.Name) }
func (i trackItem) Description() string {
	parts := []string{i.track.PrimaryArtist}
	if i.track.Album != "" {
		parts = append(parts, i.track.Album)
	}
	if i.track.DurationMS > 0 {
		parts = append(parts, shared.FormatDuration(i.track.DurationMS))
	}
	return strings.Join(parts, " • ")
}
