package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tracksync/internal/models"
)

const syncJobColumns = `
	id, sequence, source_ref, destination_ref, status, dry_run,
	total, matched, skipped_duplicate, unavailable, added, failed_to_add,
	error, started_at, completed_at, created_at, updated_at`

// SyncJobRepository implements models.Repository[*models.SyncJob] for sync job history.
//
// Jobs carry their own ID from creation; the repository only allocates the sequence.
type SyncJobRepository struct {
	db *sql.DB
}

// NewSyncJobRepository creates a new SyncJobRepository with the given database connection
func NewSyncJobRepository(db *sql.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a new sync job with a generated sequence
func (r *SyncJobRepository) Create(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "sync_jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	job.SetSequence(sequence)
	s := job.Snapshot()

	query := `INSERT INTO sync_jobs (` + syncJobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.Exec(query,
		s.ID,
		s.Sequence,
		s.SourceRef,
		s.DestinationRef,
		s.Status,
		s.DryRun,
		s.Stats.Total,
		s.Stats.Matched,
		s.Stats.SkippedDuplicate,
		s.Stats.Unavailable,
		s.Stats.Added,
		s.Stats.FailedToAdd,
		s.Error,
		s.StartedAt,
		s.CompletedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync job: %w", err)
	}

	return nil
}

// Get retrieves a sync job by ID, excluding soft-deleted jobs
func (r *SyncJobRepository) Get(id string) (*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ? AND deleted_at IS NULL`

	job, err := scanSyncJob(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound("sync job"), id)
	}
	return job, err
}

// Update writes the current status, stats and timestamps of a job
func (r *SyncJobRepository) Update(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)
	s := job.Snapshot()

	query := `
		UPDATE sync_jobs
		SET status = ?, total = ?, matched = ?, skipped_duplicate = ?, unavailable = ?,
			added = ?, failed_to_add = ?, error = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		s.Status,
		s.Stats.Total,
		s.Stats.Matched,
		s.Stats.SkippedDuplicate,
		s.Stats.Unavailable,
		s.Stats.Added,
		s.Stats.FailedToAdd,
		s.Error,
		s.StartedAt,
		s.CompletedAt,
		now,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}

	return affected(result, "sync job", s.ID)
}

// Delete soft-deletes a sync job by ID
func (r *SyncJobRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE sync_jobs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync job: %w", err)
	}
	return affected(result, "sync job", id)
}

// List retrieves sync jobs newest first.
//
// Criteria: "status" (string), "source_ref" (string), "limit" (int).
func (r *SyncJobRepository) List(criteria map[string]any) ([]*models.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE deleted_at IS NULL`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if ref, ok := criteria["source_ref"].(string); ok && ref != "" {
		query += " AND source_ref = ?"
		args = append(args, ref)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

// MarkInterrupted moves jobs left running by a previous process to error.
func (r *SyncJobRepository) MarkInterrupted() (int64, error) {
	now := time.Now()
	result, err := r.db.Exec(`
		UPDATE sync_jobs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE status IN (?, ?) AND deleted_at IS NULL
	`, models.SyncError, "interrupted", now, now, models.SyncPending, models.SyncRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted sync jobs: %w", err)
	}
	return result.RowsAffected()
}

func scanSyncJob(row scanner) (*models.SyncJob, error) {
	var (
		s           models.SyncJobSnapshot
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&s.ID, &s.Sequence, &s.SourceRef, &s.DestinationRef, &status, &s.DryRun,
		&s.Stats.Total, &s.Stats.Matched, &s.Stats.SkippedDuplicate, &s.Stats.Unavailable,
		&s.Stats.Added, &s.Stats.FailedToAdd,
		&s.Error, &startedAt, &completedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}

	s.Status = models.SyncStatus(status)
	s.StartedAt = nullTime(startedAt)
	s.CompletedAt = nullTime(completedAt)
	if s.Status.Terminal() {
		s.Progress = models.SyncProgress{Current: s.Stats.Total, Total: s.Stats.Total, Step: string(s.Status)}
	}

	return models.RestoreSyncJob(s), nil
}
