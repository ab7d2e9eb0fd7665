package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

const scheduledJobColumns = `
	id, sequence, name, time_of_day, sources, destination, mode, enabled,
	last_run_at, next_run_at, last_status, last_error, created_at, updated_at, deleted_at`

// ScheduledJobRepository implements models.Repository[*models.ScheduledJob].
//
// Sources are stored as a JSON array to keep their order.
type ScheduledJobRepository struct {
	db *sql.DB
}

// NewScheduledJobRepository creates a new ScheduledJobRepository with the given database connection
func NewScheduledJobRepository(db *sql.DB) *ScheduledJobRepository {
	return &ScheduledJobRepository{db: db}
}

// Create inserts a new scheduled job with generated ID and sequence
func (r *ScheduledJobRepository) Create(job *models.ScheduledJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "scheduled_jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	job.SetID(shared.GenerateID())
	job.SetSequence(sequence)

	sources, err := json.Marshal(job.Sources())
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	query := `
		INSERT INTO scheduled_jobs (
			id, sequence, name, time_of_day, sources, destination, mode, enabled,
			last_run_at, next_run_at, last_status, last_error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		job.ID(),
		job.Sequence(),
		job.Name(),
		job.TimeOfDay(),
		string(sources),
		job.Destination(),
		job.Mode(),
		job.Enabled(),
		job.LastRunAt(),
		job.NextRunAt(),
		job.LastStatus(),
		job.LastError(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scheduled job: %w", err)
	}

	return nil
}

// Get retrieves a scheduled job by ID, excluding soft-deleted jobs
func (r *ScheduledJobRepository) Get(id string) (*models.ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE id = ? AND deleted_at IS NULL`

	job, err := scanScheduledJob(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound("scheduled job"), id)
	}
	return job, err
}

// Update writes every mutable field of a scheduled job
func (r *ScheduledJobRepository) Update(job *models.ScheduledJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	sources, err := json.Marshal(job.Sources())
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	query := `
		UPDATE scheduled_jobs
		SET name = ?, time_of_day = ?, sources = ?, destination = ?, mode = ?, enabled = ?,
			last_run_at = ?, next_run_at = ?, last_status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		job.Name(),
		job.TimeOfDay(),
		string(sources),
		job.Destination(),
		job.Mode(),
		job.Enabled(),
		job.LastRunAt(),
		job.NextRunAt(),
		job.LastStatus(),
		job.LastError(),
		now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update scheduled job: %w", err)
	}

	return affected(result, "scheduled job", job.ID())
}

// Delete soft-deletes a scheduled job by ID
func (r *ScheduledJobRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE scheduled_jobs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled job: %w", err)
	}
	return affected(result, "scheduled job", id)
}

// List retrieves scheduled jobs in creation order.
//
// Criteria: "enabled" (bool), "due_before" (time.Time, enabled jobs with next_run_at at or before it).
func (r *ScheduledJobRepository) List(criteria map[string]any) ([]*models.ScheduledJob, error) {
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_jobs WHERE deleted_at IS NULL`
	args := []any{}

	if enabled, ok := criteria["enabled"].(bool); ok {
		query += " AND enabled = ?"
		args = append(args, enabled)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled jobs: %w", err)
	}
	defer rows.Close()

	dueBefore, filterDue := criteria["due_before"].(time.Time)

	var jobs []*models.ScheduledJob
	for rows.Next() {
		job, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		if filterDue && !job.Due(dueBefore) {
			continue
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

func scanScheduledJob(row scanner) (*models.ScheduledJob, error) {
	var (
		id          string
		sequence    int
		name        string
		timeOfDay   string
		sourcesJSON string
		destination string
		mode        string
		enabled     bool
		lastRunAt   sql.NullTime
		nextRunAt   sql.NullTime
		lastStatus  string
		lastError   string
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := row.Scan(&id, &sequence, &name, &timeOfDay, &sourcesJSON, &destination, &mode, &enabled,
		&lastRunAt, &nextRunAt, &lastStatus, &lastError, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scheduled job: %w", err)
	}

	var sources []string
	if err := json.Unmarshal([]byte(sourcesJSON), &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources of scheduled job %s: %w", id, err)
	}

	job := models.NewScheduledJob(sequence, name, timeOfDay, sources, destination, models.ScheduleMode(mode))
	job.SetID(id)
	job.SetEnabled(enabled)
	job.SetLastRunAt(nullTime(lastRunAt))
	job.SetNextRunAt(nullTime(nextRunAt))
	job.SetLastStatus(lastStatus)
	job.SetLastError(lastError)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	job.SetDeletedAt(nullTime(deletedAt))

	return job, nil
}
