package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/tracksync/internal/shared"
)

// SyncStatus is the lifecycle state of a [SyncJob].
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncError     SyncStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncError
}

// SyncProgress is the coarse position of a running job.
type SyncProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Step    string `json:"step"`
}

// SyncStats are the aggregate counts of a run.
type SyncStats struct {
	Total            int `json:"total"`
	Matched          int `json:"matched"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	Unavailable      int `json:"unavailable"`
	Added            int `json:"added"`
	FailedToAdd      int `json:"failed_to_add"`
}

// SyncJobSnapshot is an immutable copy of a [SyncJob].
type SyncJobSnapshot struct {
	ID             string       `json:"id"`
	Sequence       int          `json:"-"`
	SourceRef      string       `json:"source_ref"`
	DestinationRef string       `json:"destination_ref"`
	DryRun         bool         `json:"dry_run"`
	Status         SyncStatus   `json:"status"`
	Progress       SyncProgress `json:"progress"`
	Stats          SyncStats    `json:"stats"`
	Error          string       `json:"error,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SyncJob tracks one source → destination transfer.
//
// All state is guarded by a mutex; only the orchestrator driving the job mutates it.
// Once the status is terminal, mutators are no-ops.
type SyncJob struct {
	mu   sync.RWMutex
	snap SyncJobSnapshot
}

// NewSyncJob creates a pending job with a fresh ID.
func NewSyncJob(sourceRef, destinationRef string, dryRun bool) *SyncJob {
	now := time.Now()
	return &SyncJob{snap: SyncJobSnapshot{
		ID:             shared.GenerateID(),
		SourceRef:      sourceRef,
		DestinationRef: destinationRef,
		DryRun:         dryRun,
		Status:         SyncPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}}
}

// RestoreSyncJob rebuilds a job from persisted state.
func RestoreSyncJob(s SyncJobSnapshot) *SyncJob {
	return &SyncJob{snap: s}
}

func (j *SyncJob) ID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap.ID
}

func (j *SyncJob) CreatedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap.CreatedAt
}

func (j *SyncJob) UpdatedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap.UpdatedAt
}

func (j *SyncJob) Status() SyncStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap.Status
}

// Snapshot returns a copy of the current state.
func (j *SyncJob) Snapshot() SyncJobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap
}

// SetSequence is used by the repository after allocating a sequence number.
func (j *SyncJob) SetSequence(seq int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.Sequence = seq
}

// SetUpdatedAt is used by the repository.
func (j *SyncJob) SetUpdatedAt(t time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.UpdatedAt = t
}

// Start moves the job to running.
func (j *SyncJob) Start() {
	j.mutate(func(s *SyncJobSnapshot) {
		now := time.Now()
		s.Status = SyncRunning
		s.StartedAt = &now
	})
}

// SetProgress records the current step and position.
func (j *SyncJob) SetProgress(current, total int, step string) {
	j.mutate(func(s *SyncJobSnapshot) {
		s.Progress = SyncProgress{Current: current, Total: total, Step: step}
	})
}

// UpdateStats applies fn to the job statistics.
func (j *SyncJob) UpdateStats(fn func(*SyncStats)) {
	j.mutate(func(s *SyncJobSnapshot) { fn(&s.Stats) })
}

// Complete marks the job completed.
func (j *SyncJob) Complete() {
	j.finish(SyncCompleted, "")
}

// Fail marks the job as errored with the given cause.
func (j *SyncJob) Fail(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	j.finish(SyncError, msg)
}

func (j *SyncJob) finish(status SyncStatus, msg string) {
	j.mutate(func(s *SyncJobSnapshot) {
		now := time.Now()
		s.Status = status
		s.Error = msg
		s.CompletedAt = &now
	})
}

func (j *SyncJob) mutate(fn func(*SyncJobSnapshot)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Status.Terminal() {
		return
	}
	fn(&j.snap)
	j.snap.UpdatedAt = time.Now()
}

// Validate checks required fields.
func (j *SyncJob) Validate() error {
	s := j.Snapshot()
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", shared.ErrInvalidInput)
	}
	if s.SourceRef == "" || s.DestinationRef == "" {
		return fmt.Errorf("%w: source and destination are required", shared.ErrMissingArgument)
	}
	switch s.Status {
	case SyncPending, SyncRunning, SyncCompleted, SyncError:
	default:
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, s.Status)
	}
	return nil
}
