package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/matcher"
	"github.com/desertthunder/tracksync/internal/metrics"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/services"
	"github.com/desertthunder/tracksync/internal/shared"
	"github.com/desertthunder/tracksync/internal/transfer"
)

// DefaultMatchBatchSize bounds the number of concurrent match lookups.
const DefaultMatchBatchSize = 25

// recentJobs is how many jobs are kept in memory for status lookups.
const recentJobs = 50

// JobStore persists sync job history. Satisfied by repositories.SyncJobRepository.
type JobStore interface {
	Create(job *models.SyncJob) error
	Get(id string) (*models.SyncJob, error)
	Update(job *models.SyncJob) error
	List(criteria map[string]any) ([]*models.SyncJob, error)
}

// SyncRequest selects what to transfer.
type SyncRequest struct {
	SourceRef      string `json:"source_ref"`
	DestinationRef string `json:"destination_ref"`
	DryRun         bool   `json:"dry_run"`
}

// Validate rejects requests without both refs.
func (r SyncRequest) Validate() error {
	if strings.TrimSpace(r.SourceRef) == "" {
		return fmt.Errorf("%w: source playlist", shared.ErrMissingArgument)
	}
	if strings.TrimSpace(r.DestinationRef) == "" {
		return fmt.Errorf("%w: destination playlist", shared.ErrMissingArgument)
	}
	return nil
}

// Config tunes the sync pipeline.
type Config struct {
	MatchBatchSize int
	Matcher        matcher.Config
	Transfer       transfer.Config
}

// ConfigFrom builds a pipeline Config from the application config.
func ConfigFrom(c *shared.Config) (Config, error) {
	mc, err := matcher.FromConfig(c.Matcher)
	if err != nil {
		return Config{}, err
	}
	return Config{
		MatchBatchSize: c.Sync.MatchBatchSize,
		Matcher:        mc,
		Transfer:       transfer.ConfigFrom(c.Sync),
	}, nil
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithJobStore persists job history.
func WithJobStore(s JobStore) Option { return func(o *Orchestrator) { o.store = s } }

// WithPublisher publishes progress events, usually to a [broadcast.Hub].
func WithPublisher(p broadcast.Publisher) Option { return func(o *Orchestrator) { o.pub = p } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTransferOptions passes options to every transfer engine the orchestrator creates.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(o *Orchestrator) { o.transferOpts = append(o.transferOpts, opts...) }
}

// Orchestrator runs syncs and playlist utilities against one source and one destination service.
type Orchestrator struct {
	source services.Source
	dest   services.Destination
	cfg    Config

	store        JobStore
	pub          broadcast.Publisher
	logger       *log.Logger
	metrics      *metrics.Metrics
	transferOpts []transfer.Option

	// lock is held for the whole run of a sync.
	lock sync.Mutex
	wg   sync.WaitGroup

	mu    sync.RWMutex
	jobs  map[string]*models.SyncJob
	order []string
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(source services.Source, dest services.Destination, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MatchBatchSize <= 0 {
		cfg.MatchBatchSize = DefaultMatchBatchSize
	}
	o := &Orchestrator{
		source: source,
		dest:   dest,
		cfg:    cfg,
		logger: shared.DiscardLogger(),
		jobs:   make(map[string]*models.SyncJob),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = metrics.OrNew(o.metrics)
	o.transferOpts = append([]transfer.Option{transfer.WithMetrics(o.metrics)}, o.transferOpts...)
	return o
}

// StartSync validates req, claims the sync lock and runs the sync in the background.
//
// The run outlives ctx's cancellation but keeps its values.
func (o *Orchestrator) StartSync(ctx context.Context, req SyncRequest) (string, error) {
	job, err := o.begin(req)
	if err != nil {
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release()
		_ = o.run(context.WithoutCancel(ctx), job)
	}()

	return job.ID(), nil
}

// Sync runs a sync to completion and returns the final job state.
func (o *Orchestrator) Sync(ctx context.Context, req SyncRequest) (models.SyncJobSnapshot, error) {
	job, err := o.begin(req)
	if err != nil {
		return models.SyncJobSnapshot{}, err
	}
	defer o.release()

	err = o.run(ctx, job)
	return job.Snapshot(), err
}

// RunSync runs a non-dry sync of sourceRef into destinationRef. Used by the scheduler.
func (o *Orchestrator) RunSync(ctx context.Context, sourceRef, destinationRef string) (models.SyncJobSnapshot, error) {
	return o.Sync(ctx, SyncRequest{SourceRef: sourceRef, DestinationRef: destinationRef})
}

// Wait blocks until every background sync has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Busy reports whether a sync currently holds the lock.
func (o *Orchestrator) Busy() bool {
	if o.lock.TryLock() {
		o.lock.Unlock()
		return false
	}
	return true
}

func (o *Orchestrator) begin(req SyncRequest) (*models.SyncJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if o.source == nil || o.dest == nil {
		return nil, fmt.Errorf("%w: source and destination services are required", shared.ErrMissingCredentials)
	}
	if !o.lock.TryLock() {
		return nil, shared.ErrSyncInProgress
	}
	o.metrics.SyncActive.Set(1)

	job := models.NewSyncJob(req.SourceRef, req.DestinationRef, req.DryRun)
	o.remember(job)
	if o.store != nil {
		if err := o.store.Create(job); err != nil {
			o.logger.Warn("failed to persist sync job", "job", job.ID(), "error", err)
		}
	}
	return job, nil
}

func (o *Orchestrator) release() {
	o.metrics.SyncActive.Set(0)
	o.lock.Unlock()
}

// JobStatus returns the current state of a job, from memory first and then from history.
func (o *Orchestrator) JobStatus(id string) (models.SyncJobSnapshot, error) {
	o.mu.RLock()
	job, ok := o.jobs[id]
	o.mu.RUnlock()
	if ok {
		return job.Snapshot(), nil
	}

	if o.store != nil {
		job, err := o.store.Get(id)
		if err != nil {
			return models.SyncJobSnapshot{}, err
		}
		return job.Snapshot(), nil
	}
	return models.SyncJobSnapshot{}, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
}

// Jobs returns up to limit recent jobs, newest first.
func (o *Orchestrator) Jobs(limit int) ([]models.SyncJobSnapshot, error) {
	if o.store != nil {
		jobs, err := o.store.List(map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		out := make([]models.SyncJobSnapshot, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, o.live(j).Snapshot())
		}
		return out, nil
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []models.SyncJobSnapshot
	for i := len(o.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, o.jobs[o.order[i]].Snapshot())
	}
	return out, nil
}

// live prefers the in-memory copy of a persisted job, which carries fresher progress.
func (o *Orchestrator) live(j *models.SyncJob) *models.SyncJob {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if mem, ok := o.jobs[j.ID()]; ok {
		return mem
	}
	return j
}

func (o *Orchestrator) remember(job *models.SyncJob) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.jobs[job.ID()] = job
	o.order = append(o.order, job.ID())

	for len(o.order) > recentJobs {
		oldest := o.jobs[o.order[0]]
		if !oldest.Status().Terminal() {
			break
		}
		delete(o.jobs, o.order[0])
		o.order = o.order[1:]
	}
}

func (o *Orchestrator) persist(job *models.SyncJob) {
	if o.store == nil {
		return
	}
	if err := o.store.Update(job); err != nil && !errors.Is(err, shared.ErrJobNotFound) {
		o.logger.Warn("failed to persist sync job", "job", job.ID(), "error", err)
	}
}
