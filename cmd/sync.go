package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/desertthunder/tracksync/internal/tasks"
	"github.com/desertthunder/tracksync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Sync runs one sync in the foreground and prints the final job.
//
// With --watch the run is started in the background and followed in a terminal view fed by the broadcast hub.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	req := tasks.SyncRequest{
		SourceRef:      cmd.StringArg("source"),
		DestinationRef: cmd.StringArg("destination"),
		DryRun:         cmd.Bool("dry-run"),
	}
	if err := req.Validate(); err != nil {
		return err
	}

	if cmd.Bool("watch") {
		if err := r.useFileLogger(); err != nil {
			return err
		}
	}
	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}

	var snap models.SyncJobSnapshot
	if cmd.Bool("watch") {
		snap, err = r.watchSync(ctx, orch, req)
	} else {
		r.logger.Info("starting sync", "source", req.SourceRef, "destination", req.DestinationRef, "dry_run", req.DryRun)
		snap, err = orch.Sync(ctx, req)
	}
	if snap.ID == "" {
		return err
	}

	if cmd.Bool("json") {
		if werr := r.writeJSON(snap, cmd.Bool("pretty")); werr != nil {
			return werr
		}
		return err
	}
	r.printJob(snap)
	return err
}

func (r *Runner) watchSync(ctx context.Context, orch *tasks.Orchestrator, req tasks.SyncRequest) (models.SyncJobSnapshot, error) {
	sub := r.hub.Subscribe()
	id, err := orch.StartSync(ctx, req)
	if err != nil {
		sub.Close()
		return models.SyncJobSnapshot{}, err
	}

	model := ui.NewWatchModel(ctx, orch, sub, id)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return models.SyncJobSnapshot{}, fmt.Errorf("error running watch view: %w", err)
	}

	orch.Wait()
	return orch.JobStatus(id)
}

// Status prints one job.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("job-id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}
	snap, err := orch.JobStatus(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(snap, cmd.Bool("pretty"))
	}
	r.printJob(snap)
	return nil
}

// Jobs lists recent jobs, newest first.
func (r *Runner) Jobs(ctx context.Context, cmd *cli.Command) error {
	orch, err := r.Orchestrator()
	if err != nil {
		return err
	}
	jobs, err := orch.Jobs(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobs, cmd.Bool("pretty"))
	}
	if len(jobs) == 0 {
		return r.writePlain("No sync jobs yet.\n")
	}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			j.CreatedAt.Local().Format(time.DateTime),
			j.SourceRef,
			j.DestinationRef,
			string(j.Status),
			strconv.Itoa(j.Stats.Added),
			strconv.Itoa(j.Stats.Unavailable),
		})
	}
	r.writeTable([]string{"ID", "Created", "Source", "Destination", "Status", "Added", "Unavailable"}, rows)
	return nil
}

func (r *Runner) printJob(s models.SyncJobSnapshot) {
	r.writePlain("Job:         %s\n", s.ID)
	r.writePlain("Source:      %s\n", s.SourceRef)
	r.writePlain("Destination: %s\n", s.DestinationRef)
	if s.DryRun {
		r.writePlain("Dry run:     yes\n")
	}
	r.writePlain("Status:      %s\n", s.Status)
	if s.Progress.Step != "" && !s.Status.Terminal() {
		r.writePlain("Progress:    %s (%d/%d)\n", s.Progress.Step, s.Progress.Current, s.Progress.Total)
	}
	if s.Error != "" {
		r.writePlain("Error:       %s\n", s.Error)
	}
	r.writePlain("\n")
	r.writeTable(
		[]string{"Total", "Matched", "Skipped", "Unavailable", "Added", "Failed"},
		[][]string{{
			strconv.Itoa(s.Stats.Total),
			strconv.Itoa(s.Stats.Matched),
			strconv.Itoa(s.Stats.SkippedDuplicate),
			strconv.Itoa(s.Stats.Unavailable),
			strconv.Itoa(s.Stats.Added),
			strconv.Itoa(s.Stats.FailedToAdd),
		}},
	)
}
