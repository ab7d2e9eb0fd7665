package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/formatter"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
	th "github.com/desertthunder/tracksync/internal/testing"
)

func exportOrchestrator(src *th.MockService) *Orchestrator {
	return NewOrchestrator(src, th.NewMockService("Apple Music"), Config{})
}

func drain(ch <-chan ProgressUpdate) {
	go func() {
		for range ch {
		}
	}()
}

func TestBulkExport_SuccessfulExport(t *testing.T) {
	tests := []struct {
		name           string
		format         formatter.Format
		playlistCount  int
		validateResult func(t *testing.T, result *BulkExportResult, tempDir string)
	}{
		{
			name:          "single playlist json export",
			format:        formatter.FormatJSON,
			playlistCount: 1,
			validateResult: func(t *testing.T, result *BulkExportResult, tempDir string) {
				if len(result.Results[0].Files) != 1 {
					t.Errorf("expected 1 file, got %d", len(result.Results[0].Files))
				}
				th.AssertFileExists(t, filepath.Join(tempDir, "playlist1.json"))
			},
		},
		{
			name:          "multiple playlists csv export",
			format:        formatter.FormatCSV,
			playlistCount: 3,
			validateResult: func(t *testing.T, result *BulkExportResult, tempDir string) {
				for _, res := range result.Results {
					if len(res.Files) != 2 {
						t.Errorf("CSV export should create 2 files, got %d", len(res.Files))
					}
				}
			},
		},
		{
			name:          "xspf export",
			format:        formatter.FormatXSPF,
			playlistCount: 2,
			validateResult: func(t *testing.T, result *BulkExportResult, tempDir string) {
				th.AssertFileExists(t, filepath.Join(tempDir, "playlist2.xspf"))
			},
		},
		{
			name:          "markdown export",
			format:        formatter.FormatMarkdown,
			playlistCount: 1,
			validateResult: func(t *testing.T, result *BulkExportResult, tempDir string) {
				th.AssertFileExists(t, filepath.Join(tempDir, "playlist1.md"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()

			src := th.NewMockService("Spotify")
			ids := make([]string, tt.playlistCount)
			for i := range tt.playlistCount {
				id := fmt.Sprintf("playlist%d", i+1)
				ids[i] = id
				src.WithPlaylist(id, fmt.Sprintf("Playlist %d", i+1),
					models.Track{ID: id + "-1", Title: "Song 1", Artist: "Artist 1"},
					models.Track{ID: id + "-2", Title: "Song 2", Artist: "Artist 2"},
				)
			}

			progressCh := make(chan ProgressUpdate, 100)
			drain(progressCh)

			opts := BulkExportOpts{Format: tt.format, OutputDir: tempDir, NumWorkers: 2, RateLimit: 100}
			result, err := exportOrchestrator(src).BulkExport(context.Background(), progressCh, "spotify", ids, opts)
			close(progressCh)

			if err != nil {
				t.Fatalf("BulkExport() error = %v", err)
			}
			if result.TotalPlaylists != tt.playlistCount {
				t.Errorf("TotalPlaylists = %d, want %d", result.TotalPlaylists, tt.playlistCount)
			}
			if result.SuccessfulExports != tt.playlistCount || result.FailedExports != 0 {
				t.Errorf("successful/failed = %d/%d, want %d/0", result.SuccessfulExports, result.FailedExports, tt.playlistCount)
			}
			if len(result.Results) != tt.playlistCount {
				t.Errorf("expected %d results, got %d", tt.playlistCount, len(result.Results))
			}

			manifestPath := filepath.Join(tempDir, "export_manifest.json")
			if result.ManifestPath != manifestPath {
				t.Errorf("ManifestPath = %q, want %q", result.ManifestPath, manifestPath)
			}

			var manifest formatter.Manifest
			if err := json.Unmarshal([]byte(th.MustReadFile(t, manifestPath)), &manifest); err != nil {
				t.Fatalf("failed to parse manifest: %v", err)
			}
			if manifest.Format != tt.format {
				t.Errorf("manifest format = %s, want %s", manifest.Format, tt.format)
			}
			if manifest.Total != tt.playlistCount || len(manifest.Playlists) != tt.playlistCount {
				t.Errorf("manifest total = %d (%d entries), want %d", manifest.Total, len(manifest.Playlists), tt.playlistCount)
			}

			tt.validateResult(t, result, tempDir)
		})
	}
}

func TestBulkExport_PartialFailures(t *testing.T) {
	tempDir := t.TempDir()
	src := th.NewMockService("Spotify").
		WithPlaylist("playlist1", "Playlist 1", models.Track{ID: "t1", Title: "Song 1", Artist: "Artist 1"}).
		WithPlaylist("playlist3", "Playlist 3", models.Track{ID: "t3", Title: "Song 3", Artist: "Artist 3"})

	opts := BulkExportOpts{Format: formatter.FormatJSON, OutputDir: tempDir, NumWorkers: 2, RateLimit: 100}
	result, err := exportOrchestrator(src).BulkExport(context.Background(), nil, "Spotify",
		[]string{"playlist1", "playlist2", "playlist3"}, opts)
	if err != nil {
		t.Fatalf("BulkExport() error = %v", err)
	}

	if result.SuccessfulExports != 2 || result.FailedExports != 1 {
		t.Fatalf("successful/failed = %d/%d, want 2/1", result.SuccessfulExports, result.FailedExports)
	}

	var failed *PlaylistExportResult
	for i := range result.Results {
		if !result.Results[i].Success {
			failed = &result.Results[i]
		}
	}
	if failed == nil {
		t.Fatal("expected one failed result")
	}
	if failed.PlaylistID != "playlist2" {
		t.Errorf("failed playlist ID = %s, want playlist2", failed.PlaylistID)
	}
	if !errors.Is(failed.Error, shared.ErrPlaylistNotFound) {
		t.Errorf("failed result error = %v, want ErrPlaylistNotFound", failed.Error)
	}

	var manifest formatter.Manifest
	if err := json.Unmarshal([]byte(th.MustReadFile(t, result.ManifestPath)), &manifest); err != nil {
		t.Fatalf("failed to parse manifest: %v", err)
	}
	if manifest.Failed != 1 {
		t.Errorf("manifest failed = %d, want 1", manifest.Failed)
	}
	for _, e := range manifest.Playlists {
		if !e.Success && e.Error == "" {
			t.Errorf("failed manifest entry %s has no error", e.PlaylistID)
		}
	}
}

func TestBulkExport_UnknownService(t *testing.T) {
	o := exportOrchestrator(th.NewMockService("Spotify"))

	_, err := o.BulkExport(context.Background(), nil, "tidal", []string{"p1"}, BulkExportOpts{OutputDir: t.TempDir()})
	if !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("BulkExport() error = %v, want ErrInvalidArgument", err)
	}
}

func TestBulkExport_ContextCancellation(t *testing.T) {
	tempDir := t.TempDir()
	src := th.NewMockService("Spotify").
		WithPlaylist("playlist1", "Playlist 1", models.Track{ID: "t1", Title: "Song 1"}).
		WithPlaylist("playlist2", "Playlist 2", models.Track{ID: "t2", Title: "Song 2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := BulkExportOpts{Format: formatter.FormatJSON, OutputDir: tempDir, NumWorkers: 1, RateLimit: 10}
	result, err := exportOrchestrator(src).BulkExport(ctx, nil, "spotify", []string{"playlist1", "playlist2"}, opts)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("BulkExport() error = %v, want context.Canceled", err)
	}
	if result == nil {
		t.Fatal("result should not be nil")
	}
	if result.SuccessfulExports != 0 {
		t.Errorf("SuccessfulExports = %d, want 0", result.SuccessfulExports)
	}
	th.AssertFileExists(t, filepath.Join(tempDir, "export_manifest.json"))
}

func TestBulkExport_DefaultOptions(t *testing.T) {
	th.MustChdir(t, t.TempDir())

	src := th.NewMockService("Spotify").
		WithPlaylist("playlist1", "Playlist 1", models.Track{ID: "t1", Title: "Song 1"})

	result, err := exportOrchestrator(src).BulkExport(context.Background(), nil, "spotify", []string{"playlist1"}, BulkExportOpts{})
	if err != nil {
		t.Fatalf("BulkExport() error = %v", err)
	}

	if !strings.HasPrefix(filepath.Base(result.OutputDirectory), "spotify_export_") {
		t.Errorf("default output directory should start with 'spotify_export_', got: %s", result.OutputDirectory)
	}
	th.AssertDirExists(t, result.OutputDirectory)
	th.AssertFileExists(t, filepath.Join(result.OutputDirectory, "playlist1.json"))
}

func TestBulkExport_WorkerPoolLimits(t *testing.T) {
	src := th.NewMockService("Spotify")
	var ids []string
	for i := range 12 {
		id := fmt.Sprintf("p%02d", i)
		ids = append(ids, id)
		src.WithPlaylist(id, "Playlist "+id, models.Track{ID: "t" + id, Title: "Song"})
	}

	result, err := exportOrchestrator(src).BulkExport(context.Background(), nil, "spotify", ids,
		BulkExportOpts{Format: formatter.FormatText, OutputDir: t.TempDir(), NumWorkers: 50, RateLimit: 1000})
	if err != nil {
		t.Fatalf("BulkExport() error = %v", err)
	}
	if result.SuccessfulExports != len(ids) {
		t.Errorf("SuccessfulExports = %d, want %d", result.SuccessfulExports, len(ids))
	}

	entries, err := os.ReadDir(result.OutputDirectory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != len(ids)+1 {
		t.Errorf("output dir has %d entries, want %d", len(entries), len(ids)+1)
	}
}

func TestBulkExport_ProgressUpdates(t *testing.T) {
	src := th.NewMockService("Spotify").
		WithPlaylist("playlist1", "Playlist 1", models.Track{ID: "t1", Title: "Song 1"})

	progressCh := make(chan ProgressUpdate, 100)
	_, err := exportOrchestrator(src).BulkExport(context.Background(), progressCh, "spotify", []string{"playlist1"},
		BulkExportOpts{OutputDir: t.TempDir(), RateLimit: 100})
	close(progressCh)
	if err != nil {
		t.Fatalf("BulkExport() error = %v", err)
	}

	var phases []Phase
	var named bool
	for u := range progressCh {
		phases = append(phases, u.Phase)
		named = named || strings.Contains(u.Message, "Playlist 1")
	}
	if len(phases) < 4 {
		t.Fatalf("expected at least 4 progress updates, got %d", len(phases))
	}
	if phases[0] != PhaseFetch {
		t.Errorf("first phase = %v, want %v", phases[0], PhaseFetch)
	}
	if last := phases[len(phases)-1]; last != PhaseManifest {
		t.Errorf("last phase = %v, want %v", last, PhaseManifest)
	}
	if !named {
		t.Error("no progress message named the playlist")
	}
}

func TestBulkExport_PublishesToHub(t *testing.T) {
	src := th.NewMockService("Spotify").
		WithPlaylist("playlist1", "Playlist 1", models.Track{ID: "t1", Title: "Song 1"})
	hub := broadcast.NewHub(64, shared.DiscardLogger(), nil)
	defer hub.Close()
	sub := hub.Subscribe()
	defer sub.Close()

	o := NewOrchestrator(src, th.NewMockService("Apple Music"), Config{}, WithPublisher(hub))
	result, err := o.BulkExport(context.Background(), nil, "spotify", []string{"playlist1"},
		BulkExportOpts{OutputDir: t.TempDir(), RateLimit: 100})
	if err != nil {
		t.Fatalf("BulkExport() error = %v", err)
	}

	var events []broadcast.Event
	for len(sub.C()) > 0 {
		events = append(events, <-sub.C())
	}
	if len(events) == 0 {
		t.Fatal("expected progress events on the hub")
	}
	for _, e := range events {
		if e.JobID != result.ExportID {
			t.Errorf("event job id = %q, want %q", e.JobID, result.ExportID)
		}
	}
	last := events[len(events)-1]
	if last.Kind != broadcast.KindProgress || last.Progress.Status != models.SyncCompleted {
		t.Errorf("last event = %+v, want a completed progress tick", last)
	}
}
