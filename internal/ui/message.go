package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPlaylistsFetched MsgKind = iota
	MsgTracksFetched
	MsgSyncStarted
	MsgEvent
	MsgSyncFinished
)

type playlistsData struct {
	playlists []models.Playlist
	err       error
}

type tracksData struct {
	playlist models.Playlist
	tracks   []models.SourceTrack
	err      error
}

type startedData struct {
	jobID string
	err   error
}

type finishedData struct {
	snap models.SyncJobSnapshot
	err  error
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(playlists []models.Playlist, err error) Msg {
	return Msg{kind: MsgPlaylistsFetched, data: playlistsData{playlists, err}}
}

// tracksFetchedMsg is the constructor for [MsgTracksFetched]
func tracksFetchedMsg(playlist models.Playlist, tracks []models.SourceTrack, err error) Msg {
	return Msg{kind: MsgTracksFetched, data: tracksData{playlist, tracks, err}}
}

// syncStartedMsg is the constructor for [MsgSyncStarted]
func syncStartedMsg(jobID string, err error) Msg {
	return Msg{kind: MsgSyncStarted, data: startedData{jobID, err}}
}

// eventMsg is the constructor for [MsgEvent]
func eventMsg(e broadcast.Event) Msg {
	return Msg{kind: MsgEvent, data: e}
}

// syncFinishedMsg is the constructor for [MsgSyncFinished]
func syncFinishedMsg(snap models.SyncJobSnapshot, err error) Msg {
	return Msg{kind: MsgSyncFinished, data: finishedData{snap, err}}
}
