package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/dedup"
	"github.com/desertthunder/tracksync/internal/matcher"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/desertthunder/tracksync/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// Pipeline steps, reported in progress events.
const (
	StepFetchSource  = "fetching_source"
	StepIndexDest    = "indexing_destination"
	StepMatching     = "matching"
	StepFiltering    = "filtering"
	StepAdding       = "adding"
	StepFinished     = "finished"
	StepDryRunReport = "dry_run"
)

// run executes the sync pipeline for job. The caller holds the sync lock.
func (o *Orchestrator) run(ctx context.Context, job *models.SyncJob) error {
	started := time.Now()
	snap := job.Snapshot()
	logger := o.logger.With("job", snap.ID)
	em := broadcast.NewEmitter(o.pub, logger, snap.ID)

	job.Start()
	o.persist(job)
	em.Info("sync started", "source", snap.SourceRef, "destination", snap.DestinationRef, "dry_run", snap.DryRun)

	err := guard(func() error { return o.pipeline(ctx, job, em) })
	if err != nil {
		o.fail(job, em, err)
	} else {
		job.SetProgress(job.Snapshot().Stats.Total, job.Snapshot().Stats.Total, StepFinished)
		job.Complete()
	}
	o.persist(job)

	final := job.Snapshot()
	o.metrics.SyncsTotal.WithLabelValues(string(final.Status)).Inc()
	o.metrics.SyncDuration.Observe(time.Since(started).Seconds())

	em.Info("sync finished",
		"status", final.Status,
		"matched", final.Stats.Matched,
		"skipped_duplicate", final.Stats.SkippedDuplicate,
		"unavailable", final.Stats.Unavailable,
		"added", final.Stats.Added,
		"failed_to_add", final.Stats.FailedToAdd,
	)
	em.Finish(final)
	return err
}

func (o *Orchestrator) pipeline(ctx context.Context, job *models.SyncJob, em *broadcast.Emitter) error {
	snap := job.Snapshot()

	o.step(job, em, 0, 0, StepFetchSource)
	tracks, err := o.source.SourceTracks(ctx, snap.SourceRef)
	if err != nil {
		return fmt.Errorf("failed to read source playlist: %w", err)
	}
	total := len(tracks)
	job.UpdateStats(func(s *models.SyncStats) { s.Total = total })
	em.Info("source playlist read", "tracks", total)

	o.step(job, em, 0, total, StepIndexDest)
	index, err := dedup.Build(ctx, o.dest, snap.DestinationRef)
	if err != nil {
		return fmt.Errorf("failed to index destination playlist: %w", err)
	}
	em.Info("destination playlist indexed", "fingerprints", index.Len())

	results, err := o.matchAll(ctx, job, em, tracks)
	if err != nil {
		return err
	}

	o.step(job, em, total, total, StepFiltering)
	toAdd := o.filter(job, em, index, results)

	if snap.DryRun {
		o.step(job, em, total, total, StepDryRunReport)
		em.Info("dry run: skipping insert", "would_add", len(toAdd))
		return nil
	}
	if len(toAdd) == 0 {
		em.Info("nothing to add")
		return nil
	}

	engine := transfer.NewEngine(o.dest, o.cfg.Transfer, em, o.transferOpts...)
	res, err := engine.AddTracks(ctx, snap.DestinationRef, toAdd)
	job.UpdateStats(func(s *models.SyncStats) {
		s.Added = len(res.Added)
		s.FailedToAdd = len(res.Failed)
	})
	for _, f := range res.Failed {
		em.Warn("track not added", "track", f.Candidate.Label(), "reason", f.Reason)
	}
	if err != nil {
		return fmt.Errorf("failed to add tracks: %w", err)
	}
	return nil
}

// matchAll matches tracks in batches of MatchBatchSize. Each batch runs concurrently and
// settles before the next starts; results keep source order.
func (o *Orchestrator) matchAll(ctx context.Context, job *models.SyncJob, em *broadcast.Emitter, tracks []models.SourceTrack) ([]models.MatchResult, error) {
	total := len(tracks)
	results := make([]models.MatchResult, total)

	m := matcher.New(o.dest, o.cfg.Matcher, func(d matcher.Decision) {
		kv := []any{"track", d.Source.Label(), "tier", d.Tier, "score", d.Score, "accepted", d.Accepted, "reason", d.Reason}
		if d.Candidate != nil {
			kv = append(kv, "candidate", d.Candidate.Label())
		}
		em.Debug("match decision", kv...)
	})

	o.step(job, em, 0, total, StepMatching)
	for start := 0; start < total; start += o.cfg.MatchBatchSize {
		end := min(start+o.cfg.MatchBatchSize, total)

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				return guard(func() error {
					began := time.Now()
					res, err := m.Match(gctx, tracks[i])
					o.metrics.MatchDuration.Observe(time.Since(began).Seconds())
					if err != nil {
						return fmt.Errorf("failed to match %q: %w", tracks[i].Label(), err)
					}
					results[i] = res
					return nil
				})
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		o.step(job, em, end, total, StepMatching)
	}

	for _, r := range results {
		o.metrics.MatchResults.WithLabelValues(string(r.Tier)).Inc()
	}
	return results, nil
}

// filter drops unmatched tracks and candidates already in the index, adding the rest to it
// so a candidate matched twice in one run is only added once.
func (o *Orchestrator) filter(job *models.SyncJob, em *broadcast.Emitter, index *dedup.Index, results []models.MatchResult) []models.Candidate {
	var toAdd []models.Candidate
	matched, skipped, unavailable := 0, 0, 0

	for _, r := range results {
		if !r.Matched() {
			unavailable++
			em.Info("unavailable", "track", r.Source.Label())
			continue
		}

		matched++
		if index.Contains(*r.Candidate) {
			skipped++
			em.Debug("already in destination", "track", r.Source.Label(), "candidate", r.Candidate.Label())
			continue
		}
		index.Add(*r.Candidate)
		toAdd = append(toAdd, *r.Candidate)
		em.Debug("matched", "track", r.Source.Label(), "tier", r.Tier, "confidence", r.Confidence)
	}

	o.metrics.SkippedDuplicates.Add(float64(skipped))
	job.UpdateStats(func(s *models.SyncStats) {
		s.Matched = matched
		s.SkippedDuplicate = skipped
		s.Unavailable = unavailable
	})
	em.Info("match summary", "matched", matched, "skipped_duplicate", skipped, "unavailable", unavailable, "to_add", len(toAdd))
	return toAdd
}

func (o *Orchestrator) step(job *models.SyncJob, em *broadcast.Emitter, current, total int, step string) {
	job.SetProgress(current, total, step)
	em.Progress(current, total, step, job.Status())
}

// fail marks job as errored, logging the remote status and body when available.
func (o *Orchestrator) fail(job *models.SyncJob, em *broadcast.Emitter, err error) {
	var (
		apiErr   *shared.APIError
		panicErr *PanicError
	)
	switch {
	case errors.As(err, &apiErr):
		em.Error("sync failed", "error", err, "service", apiErr.Service, "status", apiErr.Status, "body", apiErr.Body)
	case errors.As(err, &panicErr):
		em.Error("sync failed", "error", err, "stack", string(panicErr.Stack))
	default:
		em.Error("sync failed", "error", err)
	}
	job.Fail(err)
}

// PanicError is a recovered panic from a sync, with the stack of the goroutine that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("%v: %v", shared.ErrPanic, e.Value) }

func (e *PanicError) Unwrap() error { return shared.ErrPanic }

// guard runs fn, turning a panic into a [PanicError].
func guard(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return fn()
}
