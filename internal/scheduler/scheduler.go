// Package scheduler runs persisted auto-sync jobs at their time of day.
//
// A single polling loop owns the [models.ScheduledJob] collection. Every poll runs the enabled jobs
// whose next run has passed and then recomputes their next run, whether the run succeeded or not.
// Between polls the loop sleeps until the earliest known due time or the poll interval, whichever
// comes first. CRUD calls and [Scheduler.RunNow] wake the loop so edits take effect immediately.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/metrics"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/shared"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 60 * time.Second

const minWait = time.Second

// Run statuses recorded on a job.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Store persists scheduled jobs. Satisfied by repositories.ScheduledJobRepository.
type Store interface {
	Create(job *models.ScheduledJob) error
	Get(id string) (*models.ScheduledJob, error)
	Update(job *models.ScheduledJob) error
	Delete(id string) error
	List(criteria map[string]any) ([]*models.ScheduledJob, error)
}

// Runner performs one blocking sync of source into destination.
type Runner interface {
	RunSync(ctx context.Context, sourceRef, destinationRef string) (models.SyncJobSnapshot, error)
}

// RunResult is the outcome of one scheduled execution.
type RunResult struct {
	JobID string                   `json:"job_id"`
	Runs  []models.SyncJobSnapshot `json:"runs"`
	Err   error                    `json:"-"`
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithInterval overrides [DefaultInterval].
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// Scheduler evaluates scheduled jobs and triggers the sync runner.
type Scheduler struct {
	store    Store
	runner   Runner
	interval time.Duration
	now      func() time.Time
	logger   *log.Logger
	metrics  *metrics.Metrics

	wake chan struct{}

	mu      sync.Mutex
	running map[string]bool
}

// New creates a Scheduler.
func New(store Store, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		runner:   runner,
		interval: DefaultInterval,
		now:      time.Now,
		logger:   shared.DiscardLogger(),
		wake:     make(chan struct{}, 1),
		running:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPrefix("scheduler")
	return s
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		wait := s.Tick(ctx)
		timer.Reset(wait)
	}
}

// Tick runs every due job once and returns how long to sleep before the next poll.
func (s *Scheduler) Tick(ctx context.Context) time.Duration {
	jobs, err := s.store.List(map[string]any{"enabled": true})
	if err != nil {
		s.logger.Error("failed to list scheduled jobs", "error", err)
		return s.interval
	}

	for i, job := range jobs {
		if ctx.Err() != nil {
			return s.interval
		}

		if job.NextRunAt() == nil {
			if err := s.reschedule(job); err != nil {
				s.logger.Error("failed to schedule job", "job", job.ID(), "error", err)
			}
			continue
		}

		if job.Due(s.now()) {
			if fresh := s.runDue(ctx, job.ID()); fresh != nil {
				jobs[i] = fresh
			}
		}
	}

	return s.nextWait(jobs)
}

func (s *Scheduler) nextWait(jobs []*models.ScheduledJob) time.Duration {
	wait := s.interval
	now := s.now()
	for _, job := range jobs {
		next := job.NextRunAt()
		if !job.Enabled() || next == nil {
			continue
		}
		if d := next.Sub(now); d < wait {
			wait = d
		}
	}
	return max(wait, minWait)
}

// RunNow executes the job immediately regardless of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, id string) (RunResult, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return RunResult{}, err
	}
	res := s.execute(ctx, job)
	s.notify()
	return res, nil
}

func (s *Scheduler) execute(ctx context.Context, job *models.ScheduledJob) RunResult {
	if !s.claim(job.ID()) {
		return RunResult{
			JobID: job.ID(),
			Err:   fmt.Errorf("%w: scheduled job %s is already running", shared.ErrSyncInProgress, job.ID()),
		}
	}
	defer s.release(job.ID())
	return s.run(ctx, job)
}

// runDue claims the job and runs the stored copy if it is still enabled and due. The list a
// poll works from may predate a run that finished since, which has already moved NextRunAt on.
// It returns the stored copy, or nil when the job is running elsewhere or could not be read.
func (s *Scheduler) runDue(ctx context.Context, id string) *models.ScheduledJob {
	if !s.claim(id) {
		return nil
	}
	defer s.release(id)

	job, err := s.store.Get(id)
	if err != nil {
		s.logger.Error("failed to reload scheduled job", "job", id, "error", err)
		return nil
	}
	if job.Enabled() && job.Due(s.now()) {
		s.run(ctx, job)
	}
	return job
}

// run executes job's syncs and records the outcome. The caller holds the claim on job.
func (s *Scheduler) run(ctx context.Context, job *models.ScheduledJob) RunResult {
	res := RunResult{JobID: job.ID()}

	logger := s.logger.With("job", job.Name(), "mode", job.Mode())
	logger.Info("running scheduled job", "sources", len(job.Sources()), "destination", job.Destination())

	started := s.now()
	job.SetLastStatus(StatusRunning)
	job.SetLastError("")
	if err := s.store.Update(job); err != nil {
		logger.Warn("failed to mark job running", "error", err)
	}

	var errs []error
	for _, src := range s.sources(job) {
		snap, err := s.runner.RunSync(ctx, src, job.Destination())
		if err == nil && snap.Status == models.SyncError {
			err = errors.New(snap.Error)
		}
		if snap.ID != "" {
			res.Runs = append(res.Runs, snap)
		}
		if err != nil {
			logger.Error("scheduled sync failed", "source", src, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	res.Err = errors.Join(errs...)

	job.SetLastRunAt(&started)
	if res.Err != nil {
		job.SetLastStatus(StatusError)
		job.SetLastError(res.Err.Error())
	} else {
		job.SetLastStatus(StatusCompleted)
	}
	s.observe(job.LastStatus())

	if err := s.reschedule(job); err != nil {
		logger.Error("failed to persist scheduled job", "error", err)
	} else {
		logger.Info("scheduled job finished", "status", job.LastStatus(), "next_run_at", job.NextRunAt())
	}
	return res
}

func (s *Scheduler) sources(job *models.ScheduledJob) []string {
	src := job.Sources()
	if job.Mode() == models.ModeSingle && len(src) > 1 {
		return src[:1]
	}
	return src
}

// reschedule recomputes NextRunAt from the time of day and persists the job.
// Disabled jobs have no next run.
func (s *Scheduler) reschedule(job *models.ScheduledJob) error {
	if !job.Enabled() {
		job.SetNextRunAt(nil)
		return s.store.Update(job)
	}
	next, err := job.NextOccurrence(s.now())
	if err != nil {
		return err
	}
	job.SetNextRunAt(&next)
	return s.store.Update(job)
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func (s *Scheduler) observe(status string) {
	if s.metrics != nil {
		s.metrics.ScheduledRuns.WithLabelValues(status).Inc()
	}
}

// notify wakes the polling loop without blocking.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
