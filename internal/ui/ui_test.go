package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/tasks"
	th "github.com/desertthunder/tracksync/internal/testing"
)

type fakeSyncer struct {
	startErr error
	requests []tasks.SyncRequest
	snap     models.SyncJobSnapshot
}

func (f *fakeSyncer) StartSync(_ context.Context, req tasks.SyncRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.snap.ID, nil
}

func (f *fakeSyncer) JobStatus(id string) (models.SyncJobSnapshot, error) {
	if id != f.snap.ID {
		return models.SyncJobSnapshot{}, errors.New("unknown job")
	}
	return f.snap, nil
}

func press(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step runs cmd and feeds its message back into the model.
func step(t *testing.T, m *Model, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	_, next := m.Update(cmd())
	return next
}

func newSource() *th.MockService {
	return th.NewMockService("Spotify").
		WithPlaylist("pl1", "Road Trip",
			models.Track{ID: "t1", Title: "Yellow", Artist: "Coldplay", Album: "Parachutes", DurationMS: 266000},
			models.Track{ID: "t2", Title: "Clocks", Artist: "Coldplay", Album: "A Rush of Blood to the Head"},
		)
}

func TestModel(t *testing.T) {
	t.Run("browse, confirm and follow a sync", func(t *testing.T) {
		hub := broadcast.NewHub(16, nil, nil)
		defer hub.Close()
		syncer := &fakeSyncer{snap: models.SyncJobSnapshot{
			ID:     "job-1",
			Status: models.SyncCompleted,
			Stats:  models.SyncStats{Total: 2, Matched: 2, Added: 2},
		}}
		m := NewModel(context.Background(), newSource(), syncer, hub, Options{Destination: "am1"})
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

		step(t, m, m.Init())
		if m.view != PlaylistListView || len(m.playlistList.Items()) != 1 {
			t.Fatalf("expected one playlist, got view %d with %d items", m.view, len(m.playlistList.Items()))
		}

		_, cmd := m.Update(press("enter"))
		step(t, m, cmd)
		if m.view != TrackListView {
			t.Fatalf("expected track list, got %d", m.view)
		}
		if len(m.tracks) != 2 || m.selected.ID != "pl1" {
			t.Fatalf("unexpected selection %+v with %d tracks", m.selected, len(m.tracks))
		}

		m.Update(press("enter"))
		if m.view != ConfirmView {
			t.Fatalf("expected confirm view, got %d", m.view)
		}
		if !strings.Contains(m.View(), "'Road Trip' into am1") {
			t.Errorf("confirm view should name the playlist and destination:\n%s", m.View())
		}

		_, cmd = m.Update(press("y"))
		if m.view != TransferView || m.sub == nil {
			t.Fatal("expected transfer view with an open subscription")
		}
		waitCmd := step(t, m, cmd)
		if m.jobID != "job-1" {
			t.Fatalf("expected job-1, got %q", m.jobID)
		}
		if got := syncer.requests[0]; got.SourceRef != "pl1" || got.DestinationRef != "am1" || got.DryRun {
			t.Errorf("unexpected request %+v", got)
		}

		hub.Publish(broadcast.ProgressEvent("other-job", 9, 9, "adding", models.SyncRunning))
		hub.Publish(broadcast.ProgressEvent("job-1", 1, 2, "matching", models.SyncRunning))
		hub.Publish(broadcast.LogEvent("job-1", "info", "matched Yellow"))
		hub.Publish(broadcast.FinishEvent(syncer.snap))

		waitCmd = step(t, m, waitCmd)
		if m.progress.Current != 0 {
			t.Errorf("events of other jobs must be ignored, got %+v", m.progress)
		}
		waitCmd = step(t, m, waitCmd)
		if m.progress.Current != 1 || m.progress.Step != "matching" {
			t.Errorf("unexpected progress %+v", m.progress)
		}
		waitCmd = step(t, m, waitCmd)
		if len(m.logs) != 1 || !strings.Contains(m.View(), "matched Yellow") {
			t.Errorf("expected the log line in the transfer view:\n%s", m.View())
		}
		resultCmd := step(t, m, waitCmd)
		if m.sub != nil {
			t.Error("subscription should be closed after the finish event")
		}
		if next := step(t, m, resultCmd); next != nil {
			t.Error("interactive mode should stay open on the result view")
		}

		if m.view != ResultView {
			t.Fatalf("expected result view, got %d", m.view)
		}
		snap, err := m.Result()
		if err != nil || snap.Stats.Added != 2 {
			t.Fatalf("unexpected result %+v, %v", snap, err)
		}
		if !strings.Contains(m.View(), "Sync Complete") {
			t.Errorf("unexpected result view:\n%s", m.View())
		}

		m.Update(press("r"))
		if m.view != PlaylistListView || m.jobID != "" || m.result != nil {
			t.Error("restart should reset to the playlist list")
		}
	})

	t.Run("start failure shows the error", func(t *testing.T) {
		hub := broadcast.NewHub(16, nil, nil)
		defer hub.Close()
		syncer := &fakeSyncer{startErr: errors.New("sync already in progress")}
		m := NewModel(context.Background(), newSource(), syncer, hub, Options{Destination: "am1", DryRun: true})
		m.selected = models.Playlist{ID: "pl1", Name: "Road Trip"}
		m.view = ConfirmView
		if !strings.Contains(m.View(), "Dry-run sync") {
			t.Errorf("confirm view should mention the dry run:\n%s", m.View())
		}

		_, cmd := m.Update(press("y"))
		step(t, m, cmd)
		if m.view != ResultView {
			t.Fatalf("expected result view, got %d", m.view)
		}
		if hub.Subscribers() != 0 {
			t.Error("subscription should be released on start failure")
		}
		if !strings.Contains(m.View(), "sync already in progress") {
			t.Errorf("expected the error in the view:\n%s", m.View())
		}
		if !syncer.requests[0].DryRun {
			t.Error("dry run option should be forwarded")
		}
	})

	t.Run("playlist fetch failure quits", func(t *testing.T) {
		m := NewModel(context.Background(), newSource(), &fakeSyncer{}, broadcast.NewHub(1, nil, nil), Options{})
		if _, cmd := m.Update(playlistsFetchedMsg(nil, errors.New("boom"))); cmd == nil {
			t.Error("expected quit command")
		}
		if !strings.Contains(m.View(), "boom") {
			t.Errorf("expected error view, got:\n%s", m.View())
		}
	})

	t.Run("keys before playlists load", func(t *testing.T) {
		m := NewModel(context.Background(), newSource(), &fakeSyncer{}, broadcast.NewHub(1, nil, nil), Options{})
		if _, cmd := m.Update(press("j")); cmd != nil {
			t.Error("navigation before load should be ignored")
		}
		if _, cmd := m.Update(press("q")); cmd == nil {
			t.Error("q should quit")
		}
	})

	t.Run("esc goes back", func(t *testing.T) {
		m := NewModel(context.Background(), newSource(), &fakeSyncer{}, broadcast.NewHub(1, nil, nil), Options{})
		m.view = ConfirmView
		m.Update(press("n"))
		if m.view != TrackListView {
			t.Errorf("n should return to the track list, got %d", m.view)
		}
		m.Update(press("esc"))
		if m.view != PlaylistListView {
			t.Errorf("esc should return to the playlist list, got %d", m.view)
		}
	})
}

func TestWatchModel(t *testing.T) {
	hub := broadcast.NewHub(16, nil, nil)
	defer hub.Close()
	syncer := &fakeSyncer{snap: models.SyncJobSnapshot{ID: "job-2", Status: models.SyncError, Error: "source unavailable"}}

	sub := hub.Subscribe()
	m := NewWatchModel(context.Background(), syncer, sub, "job-2")
	if m.view != TransferView {
		t.Fatalf("watch model should start on the transfer view, got %d", m.view)
	}

	hub.Publish(broadcast.FinishEvent(syncer.snap))
	resultCmd := step(t, m, m.Init())
	quit := step(t, m, resultCmd)
	if quit == nil {
		t.Fatal("watch mode should quit after the job finishes")
	}
	if _, ok := quit().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}

	_, err := m.Result()
	if err == nil || !strings.Contains(err.Error(), "source unavailable") {
		t.Errorf("expected the job error, got %v", err)
	}
	if strings.Contains(m.View(), "sync another") {
		t.Error("watch mode offers no new sync")
	}
}

func TestTrackItem(t *testing.T) {
	item := trackItem{track: models.SourceTrack{Name: "Yellow", PrimaryArtist: "Coldplay", Album: "Parachutes", DurationMS: 266000, Position: 0}}
	if got := item.Title(); got != "1. Yellow" {
		t.Errorf("Title() = %q", got)
	}
	if got := item.Description(); got != "Coldplay • Parachutes • 4:26" {
		t.Errorf("Description() = %q", got)
	}
}
