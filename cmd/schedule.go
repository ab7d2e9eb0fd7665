package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/scheduler"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/urfave/cli/v3"
)

// ScheduleCreate stores a new daily auto-sync job.
func (r *Runner) ScheduleCreate(ctx context.Context, cmd *cli.Command) error {
	mode, err := models.ParseScheduleMode(cmd.String("mode"))
	if err != nil {
		return err
	}
	sched, err := r.Scheduler()
	if err != nil {
		return err
	}

	job, err := sched.Create(cmd.String("name"), cmd.String("at"), cmd.StringSlice("source"), cmd.String("dest"), mode)
	if err != nil {
		return err
	}
	r.logger.Info("scheduled job created", "id", job.ID(), "at", job.TimeOfDay())
	return r.printSchedule(cmd, job.View())
}

// ScheduleList prints all scheduled jobs.
func (r *Runner) ScheduleList(ctx context.Context, cmd *cli.Command) error {
	sched, err := r.Scheduler()
	if err != nil {
		return err
	}
	jobs, err := sched.List()
	if err != nil {
		return err
	}

	views := make([]models.ScheduledJobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	if cmd.Bool("json") {
		return r.writeJSON(views, cmd.Bool("pretty"))
	}
	if len(views) == 0 {
		return r.writePlain("No scheduled jobs.\n")
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID, v.Name, v.TimeOfDay, string(v.Mode), strings.Join(v.Sources, ", "), v.Destination,
			enabledString(v.Enabled), formatTime(v.NextRunAt), v.LastStatus,
		})
	}
	r.writeTable([]string{"ID", "Name", "At", "Mode", "Sources", "Destination", "Enabled", "Next run", "Last"}, rows)
	return nil
}

// ScheduleGet prints one scheduled job.
func (r *Runner) ScheduleGet(ctx context.Context, cmd *cli.Command) error {
	id, err := scheduleID(cmd)
	if err != nil {
		return err
	}
	sched, err := r.Scheduler()
	if err != nil {
		return err
	}
	job, err := sched.Get(id)
	if err != nil {
		return err
	}
	return r.printSchedule(cmd, job.View())
}

// ScheduleUpdate applies the flags that were given and leaves the rest unchanged.
func (r *Runner) ScheduleUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := scheduleID(cmd)
	if err != nil {
		return err
	}

	var spec scheduler.JobSpec
	if cmd.IsSet("name") {
		spec.Name = ptr(cmd.String("name"))
	}
	if cmd.IsSet("at") {
		spec.TimeOfDay = ptr(cmd.String("at"))
	}
	if cmd.IsSet("source") {
		spec.Sources = cmd.StringSlice("source")
	}
	if cmd.IsSet("dest") {
		spec.Destination = ptr(cmd.String("dest"))
	}
	if cmd.IsSet("mode") {
		spec.Mode = ptr(cmd.String("mode"))
	}
	if cmd.IsSet("enabled") {
		spec.Enabled = ptr(cmd.Bool("enabled"))
	}

	sched, err := r.Scheduler()
	if err != nil {
		return err
	}
	job, err := sched.Update(id, spec)
	if err != nil {
		return err
	}
	r.logger.Info("scheduled job updated", "id", id)
	return r.printSchedule(cmd, job.View())
}

// ScheduleDelete removes a scheduled job.
func (r *Runner) ScheduleDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := scheduleID(cmd)
	if err != nil {
		return err
	}
	sched, err := r.Scheduler()
	if err != nil {
		return err
	}
	if err := sched.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted scheduled job %s\n", id)
}

// ScheduleRun executes a scheduled job immediately and prints each sync it ran.
func (r *Runner) ScheduleRun(ctx context.Context, cmd *cli.Command) error {
	id, err := scheduleID(cmd)
	if err != nil {
		return err
	}
	sched, err := r.Scheduler()
	if err != nil {
		return err
	}

	r.logger.Info("running scheduled job", "id", id)
	res, err := sched.RunNow(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if werr := r.writeJSON(res, cmd.Bool("pretty")); werr != nil {
			return werr
		}
		return res.Err
	}
	for i, snap := range res.Runs {
		if i > 0 {
			r.writePlain("\n")
		}
		r.printJob(snap)
	}
	return res.Err
}

func (r *Runner) printSchedule(cmd *cli.Command, v models.ScheduledJobView) error {
	if cmd.Bool("json") {
		return r.writeJSON(v, cmd.Bool("pretty"))
	}

	r.writePlain("Job:         %s\n", v.ID)
	r.writePlain("Name:        %s\n", v.Name)
	r.writePlain("At:          %s (%s)\n", v.TimeOfDay, v.Mode)
	r.writePlain("Sources:     %s\n", strings.Join(v.Sources, ", "))
	r.writePlain("Destination: %s\n", v.Destination)
	r.writePlain("Enabled:     %s\n", enabledString(v.Enabled))
	r.writePlain("Next run:    %s\n", formatTime(v.NextRunAt))
	if v.LastRunAt != nil {
		r.writePlain("Last run:    %s (%s)\n", formatTime(v.LastRunAt), v.LastStatus)
	}
	if v.LastError != "" {
		r.writePlain("Last error:  %s\n", v.LastError)
	}
	return nil
}

func scheduleID(cmd *cli.Command) (string, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return "", fmt.Errorf("%w: scheduled job id", shared.ErrMissingArgument)
	}
	return id, nil
}

func enabledString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func ptr[T any](v T) *T { return &v }
