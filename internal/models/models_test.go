package models

import (
	"errors"
	"testing"
	"time"
)

func TestTrackConversions(t *testing.T) {
	track := Track{
		ID:         "sp1",
		Title:      "Song",
		Artist:     "Lead & Friend",
		Artists:    []string{"Lead", "Friend"},
		Album:      "Album",
		DurationMS: 200_000,
		ISRC:       "USABC1234567",
	}

	src := track.SourceTrack(3)
	if src.Position != 3 || src.PrimaryArtist != "Lead" || src.ISRC != "USABC1234567" {
		t.Errorf("unexpected source track: %+v", src)
	}

	t.Run("artist fallback", func(t *testing.T) {
		src := Track{Title: "Song", Artist: "A feat. B"}.SourceTrack(0)
		if src.PrimaryArtist != "A" {
			t.Errorf("expected primary artist A, got %q", src.PrimaryArtist)
		}
		if len(src.Artists) != 1 {
			t.Errorf("expected artist list from joined credit, got %v", src.Artists)
		}
	})

	t.Run("candidate insert id", func(t *testing.T) {
		c := Track{ID: "123", LibraryID: "i.abc"}.Candidate()
		if c.InsertID() != "i.abc" {
			t.Errorf("expected library id, got %s", c.InsertID())
		}
		c.LibraryID = ""
		if c.InsertID() != "123" {
			t.Errorf("expected catalog id, got %s", c.InsertID())
		}
	})

	t.Run("keys agree", func(t *testing.T) {
		if track.Key() != track.Candidate().Key() {
			t.Errorf("track and candidate keys differ: %q vs %q", track.Key(), track.Candidate().Key())
		}
	})
}

func TestSyncJob(t *testing.T) {
	t.Run("lifecycle", func(t *testing.T) {
		job := NewSyncJob("spotify:pl", "applemusic:p.1", false)
		if job.ID() == "" {
			t.Fatal("expected generated id")
		}
		if job.Status() != SyncPending {
			t.Errorf("expected pending, got %s", job.Status())
		}

		job.Start()
		job.SetProgress(5, 10, "matching")
		job.UpdateStats(func(s *SyncStats) {
			s.Total = 10
			s.Matched = 4
		})

		snap := job.Snapshot()
		if snap.Status != SyncRunning || snap.StartedAt == nil {
			t.Errorf("expected running with start time, got %+v", snap)
		}
		if snap.Progress.Current != 5 || snap.Stats.Matched != 4 {
			t.Errorf("unexpected progress/stats: %+v", snap)
		}

		job.Complete()
		if job.Status() != SyncCompleted {
			t.Errorf("expected completed, got %s", job.Status())
		}
	})

	t.Run("terminal state is final", func(t *testing.T) {
		job := NewSyncJob("a", "b", false)
		job.Start()
		job.Fail(errors.New("boom"))
		job.Complete()
		job.UpdateStats(func(s *SyncStats) { s.Matched = 99 })

		snap := job.Snapshot()
		if snap.Status != SyncError || snap.Error != "boom" {
			t.Errorf("expected error status to stick, got %+v", snap)
		}
		if snap.Stats.Matched != 0 {
			t.Errorf("stats mutated after terminal state: %+v", snap.Stats)
		}
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		job := NewSyncJob("a", "b", false)
		snap := job.Snapshot()
		snap.Status = SyncCompleted
		if job.Status() != SyncPending {
			t.Error("modifying a snapshot changed the job")
		}
	})

	t.Run("validate", func(t *testing.T) {
		if err := NewSyncJob("", "b", false).Validate(); err == nil {
			t.Error("expected missing source to fail validation")
		}
		if err := NewSyncJob("a", "b", true).Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestScheduledJob(t *testing.T) {
	loc := time.UTC

	t.Run("NextOccurrence later today", func(t *testing.T) {
		job := NewScheduledJob(0, "nightly", "22:30", []string{"spotify:a"}, "applemusic:p.1", ModeSingle)
		now := time.Date(2025, 3, 1, 10, 0, 0, 0, loc)
		next, err := job.NextOccurrence(now)
		if err != nil {
			t.Fatal(err)
		}
		want := time.Date(2025, 3, 1, 22, 30, 0, 0, loc)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("NextOccurrence rolls to tomorrow", func(t *testing.T) {
		job := NewScheduledJob(0, "morning", "06:00", []string{"spotify:a"}, "applemusic:p.1", ModeSingle)
		now := time.Date(2025, 3, 1, 6, 0, 0, 0, loc)
		next, err := job.NextOccurrence(now)
		if err != nil {
			t.Fatal(err)
		}
		want := time.Date(2025, 3, 2, 6, 0, 0, 0, loc)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("Due", func(t *testing.T) {
		job := NewScheduledJob(0, "x", "06:00", []string{"spotify:a"}, "applemusic:p.1", ModeSingle)
		now := time.Now()
		if job.Due(now) {
			t.Error("job without next run should not be due")
		}
		past := now.Add(-time.Minute)
		job.SetNextRunAt(&past)
		if !job.Due(now) {
			t.Error("expected job to be due")
		}
		job.SetEnabled(false)
		if job.Due(now) {
			t.Error("disabled job should never be due")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name    string
			job     *ScheduledJob
			wantErr bool
		}{
			{"valid single", NewScheduledJob(0, "a", "08:15", []string{"s"}, "d", ModeSingle), false},
			{"valid combine", NewScheduledJob(0, "a", "08:15", []string{"s1", "s2"}, "d", ModeCombine), false},
			{"bad time", NewScheduledJob(0, "a", "8am", []string{"s"}, "d", ModeSingle), true},
			{"single with two sources", NewScheduledJob(0, "a", "08:15", []string{"s1", "s2"}, "d", ModeSingle), true},
			{"no sources", NewScheduledJob(0, "a", "08:15", nil, "d", ModeCombine), true},
			{"no name", NewScheduledJob(0, " ", "08:15", []string{"s"}, "d", ModeSingle), true},
			{"bad mode", NewScheduledJob(0, "a", "08:15", []string{"s"}, "d", "weekly"), true},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.job.Validate()
				if (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("ParseScheduleMode", func(t *testing.T) {
		if m, err := ParseScheduleMode("COMBINE"); err != nil || m != ModeCombine {
			t.Errorf("expected combine, got %v %v", m, err)
		}
		if m, _ := ParseScheduleMode(""); m != ModeSingle {
			t.Errorf("expected default single, got %v", m)
		}
		if _, err := ParseScheduleMode("daily"); err == nil {
			t.Error("expected error for unknown mode")
		}
	})
}
