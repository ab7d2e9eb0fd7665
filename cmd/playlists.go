package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/desertthunder/tracksync/internal/formatter"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/desertthunder/tracksync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Playlists lists the playlists of one service.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}
	svc, err := orch.Service(cmd.String("service"))
	if err != nil {
		return err
	}

	r.logger.Info("listing playlists", "service", svc.Name())
	playlists, err := svc.Playlists(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	rows := make([][]string, 0, len(playlists))
	for _, p := range playlists {
		rows = append(rows, []string{p.ID, p.Name, strconv.Itoa(p.TrackCount), shared.VisibilityString(p.Public)})
	}
	r.writePlain("Found %d playlists on %s:\n\n", len(playlists), svc.Name())
	r.writeTable([]string{"ID", "Name", "Tracks", "Visibility"}, rows)
	return nil
}

// Dedupe writes a copy of a playlist without duplicates.
func (r *Runner) Dedupe(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}

	res, err := orch.DedupePlaylist(ctx, cmd.String("service"), cmd.StringArg("playlist"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(res, cmd.Bool("pretty"))
	}

	r.writePlain("✓ Created deduped playlist %s\n", res.NewPlaylistRef)
	r.writePlain("  Tracks: %d → %d (%d removed)\n", res.OriginalCount, res.NewCount, len(res.Removed))
	for _, t := range res.Removed {
		r.writePlain("  - %s - %s\n", t.Artist, t.Title)
	}
	return nil
}

// Export writes one playlist in the chosen format to a file or stdout.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}

	data, err := orch.ExportPlaylist(ctx, cmd.String("service"), cmd.StringArg("playlist"), f)
	if err != nil {
		return err
	}

	out := cmd.String("output")
	if out == "" {
		_, err := r.output.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	r.logger.Info("playlist exported", "file", out, "format", f)
	return r.writePlain("✓ Playlist exported to %s\n", out)
}

// BulkExport exports the given playlists, or every playlist of the service, concurrently.
func (r *Runner) BulkExport(ctx context.Context, cmd *cli.Command) error {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}

	service := cmd.String("service")
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		svc, err := orch.Service(service)
		if err != nil {
			return err
		}
		playlists, err := svc.Playlists(ctx)
		if err != nil {
			return err
		}
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return r.writePlain("Nothing to export.\n")
	}

	progress := make(chan tasks.ProgressUpdate, len(ids)*2+1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			r.logger.Info(u.Message, "phase", u.Phase, "step", u.Step, "total", u.Total)
		}
	}()

	opts := tasks.BulkExportOpts{
		Format:     f,
		OutputDir:  cmd.String("dir"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float64("rate"),
	}
	if opts.NumWorkers == 0 {
		opts.NumWorkers = r.config.Export.Workers
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = r.config.Export.Rate
	}

	res, err := orch.BulkExport(ctx, progress, service, ids, opts)
	close(progress)
	<-done
	if res == nil {
		return err
	}

	r.writePlain("Exported %d/%d playlists to %s\n", res.SuccessfulExports, res.TotalPlaylists, res.OutputDirectory)
	r.writePlain("Manifest: %s\n", res.ManifestPath)
	if res.FailedExports > 0 {
		rows := make([][]string, 0, res.FailedExports)
		for _, pr := range res.Results {
			if !pr.Success {
				rows = append(rows, []string{pr.PlaylistID, pr.PlaylistName, pr.Error.Error()})
			}
		}
		r.writePlain("\n")
		r.writeTable([]string{"Playlist", "Name", "Error"}, rows)
	}
	return err
}
