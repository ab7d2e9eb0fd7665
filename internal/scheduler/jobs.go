package scheduler

import (
	"fmt"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// JobSpec holds the user-editable fields of a scheduled job.
// Nil fields are left unchanged by [Scheduler.Update].
type JobSpec struct {
	Name        *string  `json:"name,omitempty"`
	TimeOfDay   *string  `json:"time_of_day,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	Destination *string  `json:"destination,omitempty"`
	Mode        *string  `json:"mode,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// Create validates, schedules and stores a new job.
func (s *Scheduler) Create(name, timeOfDay string, sources []string, destination string, mode models.ScheduleMode) (*models.ScheduledJob, error) {
	job := models.NewScheduledJob(0, name, timeOfDay, sources, destination, mode)
	if err := job.Validate(); err != nil {
		return nil, err
	}

	next, err := job.NextOccurrence(s.now())
	if err != nil {
		return nil, err
	}
	job.SetNextRunAt(&next)

	if err := s.store.Create(job); err != nil {
		return nil, err
	}
	s.logger.Info("scheduled job created", "id", job.ID(), "name", job.Name(), "next_run_at", next)
	s.notify()
	return job, nil
}

// Get returns a job by ID.
func (s *Scheduler) Get(id string) (*models.ScheduledJob, error) {
	return s.store.Get(id)
}

// List returns every job.
func (s *Scheduler) List() ([]*models.ScheduledJob, error) {
	return s.store.List(nil)
}

// Update applies spec to the job, recomputing the next run when the schedule or enabled flag changes.
func (s *Scheduler) Update(id string, spec JobSpec) (*models.ScheduledJob, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	if spec.Name != nil {
		job.SetName(*spec.Name)
	}
	if spec.TimeOfDay != nil {
		job.SetTimeOfDay(*spec.TimeOfDay)
	}
	if spec.Sources != nil {
		job.SetSources(spec.Sources)
	}
	if spec.Destination != nil {
		job.SetDestination(*spec.Destination)
	}
	if spec.Mode != nil {
		mode, err := models.ParseScheduleMode(*spec.Mode)
		if err != nil {
			return nil, err
		}
		job.SetMode(mode)
	}
	if spec.Enabled != nil {
		job.SetEnabled(*spec.Enabled)
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	if err := s.reschedule(job); err != nil {
		return nil, fmt.Errorf("failed to update scheduled job: %w", err)
	}
	s.notify()
	return job, nil
}

// Delete removes a job.
func (s *Scheduler) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.notify()
	return nil
}
