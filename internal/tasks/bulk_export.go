package tasks

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/desertthunder/tracksync/internal/formatter"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
	"golang.org/x/time/rate"
)

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format     formatter.Format // Export format
	OutputDir  string           // Base output directory (default: {service}_export_{epoch})
	NumWorkers int              // Concurrent workers (default: 5, max: 10)
	RateLimit  float64          // Playlist reads per second (default: 5)
}

// BulkExportResult summarizes a bulk export.
type BulkExportResult struct {
	ExportID          string
	TotalPlaylists    int
	SuccessfulExports int
	FailedExports     int
	OutputDirectory   string
	ManifestPath      string
	Results           []PlaylistExportResult
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID   string
	PlaylistName string
	Success      bool
	Files        []string
	Error        error
}

// PlaylistExportJob is a fetched playlist waiting to be written.
type PlaylistExportJob struct {
	PlaylistID string
	Export     *models.PlaylistExport
}

// BulkExport exports multiple playlists from service concurrently with rate limiting and progress tracking.
//
// Playlist reads are paced by a token bucket; writes happen on a worker pool. Individual failures are
// recorded in the result and the manifest, never aborting the rest.
func (o *Orchestrator) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	service string,
	ids []string,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	srv, err := o.Service(service)
	if err != nil {
		return nil, err
	}

	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("%s_export_%d", serviceKey(srv.Name()), time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		ExportID:        "export-" + shared.GenerateID(),
		TotalPlaylists:  len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, 0, len(ids)),
	}

	progress := exportProgress{id: result.ExportID, ch: prog, pub: o.pub}
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan PlaylistExportJob, len(ids))
	results := make(chan PlaylistExportResult, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		progress.send(fetchingSourceUpdate(len(ids), srv.Name()))
		for i, playlistID := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			export, err := srv.ExportPlaylist(ctx, playlistID)
			if err != nil {
				results <- PlaylistExportResult{
					PlaylistID:   playlistID,
					PlaylistName: fmt.Sprintf("Unknown (%s)", playlistID),
					Error:        fmt.Errorf("failed to fetch playlist: %w", err),
				}
				continue
			}

			jobs <- PlaylistExportJob{PlaylistID: playlistID, Export: export}
			progress.send(exportingPlaylistUpdate(i+1, len(ids), export.Playlist.Name))
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			progress.send(exportCompletedUpdate(completed, len(ids), res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			progress.send(exportFailedUpdate(completed, len(ids), res.PlaylistName, res.Error))
		}
	}

	manifestPath := fmt.Sprintf("%s/export_manifest.json", opts.OutputDir)
	if err := formatter.WriteManifest(manifest(result, opts.Format), manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	progress.send(manifestWrittenUpdate(result.SuccessfulExports, len(ids), manifestPath))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// exportWorker writes playlists from the jobs channel until it is closed.
// It keeps draining after cancellation so the producer never sends on a closed results channel.
func exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan PlaylistExportJob,
	results chan<- PlaylistExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- PlaylistExportResult{
				PlaylistID:   job.PlaylistID,
				PlaylistName: job.Export.Playlist.Name,
				Error:        err,
			}
			continue
		}
		results <- exportSinglePlaylist(job, opts)
	}
}

func exportSinglePlaylist(j PlaylistExportJob, opts BulkExportOpts) PlaylistExportResult {
	result := PlaylistExportResult{
		PlaylistID:   j.PlaylistID,
		PlaylistName: j.Export.Playlist.Name,
	}

	files, err := formatter.WriteExport(j.Export, opts.Format, opts.OutputDir)
	if err != nil {
		result.Error = fmt.Errorf("%s export failed: %w", opts.Format, err)
		return result
	}
	result.Files = files
	result.Success = true
	return result
}

func manifest(r *BulkExportResult, f formatter.Format) formatter.Manifest {
	m := formatter.Manifest{
		Format:     f,
		Total:      r.TotalPlaylists,
		Successful: r.SuccessfulExports,
		Failed:     r.FailedExports,
		Playlists:  make([]formatter.ManifestEntry, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		entry := formatter.ManifestEntry{
			PlaylistID:   res.PlaylistID,
			PlaylistName: res.PlaylistName,
			Success:      res.Success,
			Files:        res.Files,
		}
		if res.Error != nil {
			entry.Error = res.Error.Error()
		}
		m.Playlists = append(m.Playlists, entry)
	}
	return m
}
