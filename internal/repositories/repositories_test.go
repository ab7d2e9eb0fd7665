package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "sync_jobs")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "nope"); err == nil {
		t.Error("expected error for a table without a sequence")
	}
}

func TestSyncJobRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncJobRepository(db)
		job := models.NewSyncJob("spotify-pl", "am-pl", false)

		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create sync job: %v", err)
		}
		if job.Snapshot().Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", job.Snapshot().Sequence)
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncJobRepository(db)
		job := models.NewSyncJob("spotify-pl", "am-pl", true)
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create sync job: %v", err)
		}

		retrieved, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("failed to get sync job: %v", err)
		}

		got := retrieved.Snapshot()
		if got.SourceRef != "spotify-pl" || got.DestinationRef != "am-pl" || !got.DryRun {
			t.Errorf("unexpected snapshot %+v", got)
		}
		if got.Status != models.SyncPending || got.StartedAt != nil {
			t.Errorf("expected a pending job without start time, got %s %v", got.Status, got.StartedAt)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncJobRepository(db)
		job := models.NewSyncJob("src", "dst", false)
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create sync job: %v", err)
		}

		job.Start()
		job.UpdateStats(func(s *models.SyncStats) {
			*s = models.SyncStats{Total: 5, Matched: 4, SkippedDuplicate: 1, Unavailable: 1, Added: 3}
		})
		job.Complete()

		if err := repo.Update(job); err != nil {
			t.Fatalf("failed to update sync job: %v", err)
		}

		retrieved, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("failed to get sync job: %v", err)
		}
		got := retrieved.Snapshot()
		if got.Status != models.SyncCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		if got.Stats != (models.SyncStats{Total: 5, Matched: 4, SkippedDuplicate: 1, Unavailable: 1, Added: 3}) {
			t.Errorf("unexpected stats %+v", got.Stats)
		}
		if got.StartedAt == nil || got.CompletedAt == nil {
			t.Error("expected start and completion times to round-trip")
		}
		if got.Progress.Total != 5 {
			t.Errorf("expected restored progress total 5, got %d", got.Progress.Total)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncJobRepository(db)
		job := models.NewSyncJob("src", "dst", false)
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create sync job: %v", err)
		}

		if err := repo.Delete(job.ID()); err != nil {
			t.Fatalf("failed to delete sync job: %v", err)
		}

		if _, err := repo.Get(job.ID()); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound for deleted job, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncJobRepository(db)
		var ids []string
		for _, src := range []string{"a", "b", "c"} {
			job := models.NewSyncJob(src, "dst", false)
			if src == "b" {
				job.Start()
				job.Fail(errors.New("boom"))
			}
			if err := repo.Create(job); err != nil {
				t.Fatalf("failed to create sync job: %v", err)
			}
			ids = append(ids, job.ID())
		}

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list sync jobs: %v", err)
		}
		if len(all) != 3 || all[0].ID() != ids[2] {
			t.Fatalf("expected 3 jobs newest first, got %d", len(all))
		}

		failed, err := repo.List(map[string]any{"status": string(models.SyncError)})
		if err != nil {
			t.Fatalf("failed to list sync jobs: %v", err)
		}
		if len(failed) != 1 || failed[0].Snapshot().Error != "boom" {
			t.Errorf("expected the failed job, got %d", len(failed))
		}

		limited, _ := repo.List(map[string]any{"limit": 2})
		if len(limited) != 2 {
			t.Errorf("expected 2 jobs with limit, got %d", len(limited))
		}

		bySource, _ := repo.List(map[string]any{"source_ref": "a"})
		if len(bySource) != 1 || bySource[0].ID() != ids[0] {
			t.Errorf("expected job a, got %d jobs", len(bySource))
		}
	})

	t.Run("MarkInterrupted", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncJobRepository(db)
		running := models.NewSyncJob("src", "dst", false)
		running.Start()
		done := models.NewSyncJob("src", "dst", false)
		done.Start()
		done.Complete()
		for _, j := range []*models.SyncJob{running, done} {
			if err := repo.Create(j); err != nil {
				t.Fatalf("failed to create sync job: %v", err)
			}
		}

		n, err := repo.MarkInterrupted()
		if err != nil || n != 1 {
			t.Fatalf("MarkInterrupted() = %d, %v; want 1", n, err)
		}
		got, _ := repo.Get(running.ID())
		if got.Status() != models.SyncError || got.Snapshot().Error != "interrupted" {
			t.Errorf("expected interrupted error, got %+v", got.Snapshot())
		}
	})
}

func TestScheduledJobRepository(t *testing.T) {
	newJob := func() *models.ScheduledJob {
		return models.NewScheduledJob(0, "Morning", "07:30", []string{"pl1", "pl2"}, "am-pl", models.ModeCombine)
	}

	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewScheduledJobRepository(db)
		job := newJob()

		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create scheduled job: %v", err)
		}
		if job.ID() == "" || job.Sequence() != 1 {
			t.Errorf("expected id and sequence to be assigned, got %q/%d", job.ID(), job.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewScheduledJobRepository(db)
		job := newJob()
		next := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)
		job.SetNextRunAt(&next)
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create scheduled job: %v", err)
		}

		got, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("failed to get scheduled job: %v", err)
		}
		if got.Name() != "Morning" || got.TimeOfDay() != "07:30" || got.Mode() != models.ModeCombine || !got.Enabled() {
			t.Errorf("unexpected job %+v", got.View())
		}
		if src := got.Sources(); len(src) != 2 || src[0] != "pl1" || src[1] != "pl2" {
			t.Errorf("expected ordered sources, got %v", src)
		}
		if got.NextRunAt() == nil || !got.NextRunAt().Equal(next) {
			t.Errorf("expected next run %v, got %v", next, got.NextRunAt())
		}
		if got.LastRunAt() != nil {
			t.Error("expected no last run")
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewScheduledJobRepository(db)
		job := newJob()
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create scheduled job: %v", err)
		}

		ran := time.Now().Add(-time.Minute)
		job.SetLastRunAt(&ran)
		job.SetLastStatus("error")
		job.SetLastError("boom")
		job.SetEnabled(false)
		job.SetSources([]string{"pl3"})
		job.SetMode(models.ModeSingle)

		if err := repo.Update(job); err != nil {
			t.Fatalf("failed to update scheduled job: %v", err)
		}

		got, _ := repo.Get(job.ID())
		if got.Enabled() || got.LastStatus() != "error" || got.LastError() != "boom" || got.Mode() != models.ModeSingle {
			t.Errorf("unexpected job after update %+v", got.View())
		}
		if got.LastRunAt() == nil {
			t.Error("expected last run to be stored")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewScheduledJobRepository(db)
		job := newJob()
		if err := repo.Create(job); err != nil {
			t.Fatalf("failed to create scheduled job: %v", err)
		}
		if err := repo.Delete(job.ID()); err != nil {
			t.Fatalf("failed to delete scheduled job: %v", err)
		}
		if _, err := repo.Get(job.ID()); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewScheduledJobRepository(db)
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		past, future := now.Add(-time.Hour), now.Add(time.Hour)

		due := newJob()
		due.SetNextRunAt(&past)
		later := newJob()
		later.SetNextRunAt(&future)
		disabled := newJob()
		disabled.SetNextRunAt(&past)
		disabled.SetEnabled(false)

		for _, j := range []*models.ScheduledJob{due, later, disabled} {
			if err := repo.Create(j); err != nil {
				t.Fatalf("failed to create scheduled job: %v", err)
			}
		}

		all, err := repo.List(nil)
		if err != nil || len(all) != 3 {
			t.Fatalf("List(nil) = %d, %v", len(all), err)
		}

		enabled, _ := repo.List(map[string]any{"enabled": true})
		if len(enabled) != 2 {
			t.Errorf("expected 2 enabled jobs, got %d", len(enabled))
		}

		dueNow, _ := repo.List(map[string]any{"due_before": now})
		if len(dueNow) != 1 || dueNow[0].ID() != due.ID() {
			t.Errorf("expected only the due job, got %d", len(dueNow))
		}
	})
}
