// Package transfer inserts matched candidates into a destination playlist in bounded batches.
//
// Each batch goes through an ordered list of [Strategy] values. The first strategy is always tried;
// each later one runs only if it [Strategy.Handles] the previous failure:
//
//   - batch insert: one call for the whole batch
//   - library fallback: for not-found failures, add to library, resolve library ids, insert those
//   - single insert: for any other failure, insert each candidate alone
//
// Every attempt, success and transition is emitted on the broadcast channel.
package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tracksync/internal/broadcast"
	"github.com/desertthunder/tracksync/internal/metrics"
	"github.com/desertthunder/tracksync/internal/models"
	"github.com/desertthunder/tracksync/internal/ratelimit"
	"github.com/desertthunder/tracksync/internal/shared"
)

// DefaultBatchSize is the number of ids sent per insert call.
const DefaultBatchSize = 25

// Destination is the write surface of the destination service.
type Destination interface {
	AddToPlaylist(ctx context.Context, playlistID string, ids []string) error
	AddToLibrary(ctx context.Context, catalogID string) error
	SearchLibrary(ctx context.Context, term string, limit int) ([]models.Candidate, error)
	RecentLibrarySongs(ctx context.Context, offset, limit int) ([]models.Candidate, bool, error)
}

// Failure is a candidate that did not land, with the reason.
type Failure struct {
	Candidate models.Candidate `json:"candidate"`
	Reason    string           `json:"reason"`
}

// Outcome is what a strategy achieved for one batch.
type Outcome struct {
	Added  []models.Candidate
	Failed []Failure
}

// Strategy is one way of inserting a batch.
//
// A nil error means the strategy took responsibility for every candidate, recording each in
// Added or Failed. A non-nil error hands the batch to the next strategy that handles it.
type Strategy interface {
	Name() string
	Handles(prev error) bool
	Insert(ctx context.Context, playlistID string, batch []models.Candidate) (Outcome, error)
}

// Config tunes the engine and its library fallback.
type Config struct {
	BatchSize           int
	LibraryIndexWait    time.Duration
	ResolveAttempts     int
	ResolveBaseDelay    time.Duration
	ScanPages           int
	ScanPageSize        int
	SearchLimit         int
	MinSimilarity       float64
	DurationToleranceMS int
}

// ConfigFrom maps the [sync] config section.
func ConfigFrom(sc shared.SyncConfig) Config {
	return Config{
		BatchSize:        sc.InsertBatchSize,
		LibraryIndexWait: sc.LibraryIndexWait,
		ResolveAttempts:  sc.LibraryResolveAttempts,
		ResolveBaseDelay: sc.LibraryResolveBaseDelay,
		ScanPages:        sc.LibraryScanPages,
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ResolveAttempts <= 0 {
		c.ResolveAttempts = 1
	}
	if c.ScanPageSize <= 0 {
		c.ScanPageSize = 100
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 25
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.85
	}
	if c.DurationToleranceMS <= 0 {
		c.DurationToleranceMS = 3000
	}
	return c
}

// Result aggregates every batch of one AddTracks call.
type Result struct {
	Added   []models.Candidate `json:"added"`
	Failed  []Failure          `json:"failed"`
	Batches int                `json:"batches"`
}

// Engine runs the strategy list over batches.
type Engine struct {
	dest       Destination
	cfg        Config
	strategies []Strategy
	emitter    *broadcast.Emitter
	metrics    *metrics.Metrics
	clock      ratelimit.Clock
}

// Option configures an [Engine].
type Option func(*Engine)

// WithStrategies replaces the default strategy list.
func WithStrategies(s ...Strategy) Option { return func(e *Engine) { e.strategies = s } }

// WithClock replaces the wall clock used for library indexing waits and resolve backoff.
func WithClock(c ratelimit.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine creates an engine with the default strategy list.
func NewEngine(dest Destination, cfg Config, emitter *broadcast.Emitter, opts ...Option) *Engine {
	e := &Engine{dest: dest, cfg: cfg.withDefaults(), emitter: emitter, clock: ratelimit.SystemClock}
	for _, opt := range opts {
		opt(e)
	}
	if e.emitter == nil {
		e.emitter = broadcast.NewEmitter(nil, nil, "")
	}
	e.metrics = metrics.OrNew(e.metrics)
	if e.strategies == nil {
		e.strategies = []Strategy{
			&batchInsert{dest: dest},
			&libraryFallback{dest: dest, cfg: e.cfg, emitter: e.emitter, clock: e.clock},
			&singleInsert{dest: dest, emitter: e.emitter},
		}
	}
	return e
}

// AddTracks inserts cands into playlistID in order, batch by batch.
// A failing batch never stops the remaining ones.
func (e *Engine) AddTracks(ctx context.Context, playlistID string, cands []models.Candidate) (Result, error) {
	var res Result
	total := len(cands)

	for start := 0; start < total; start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		end := min(start+e.cfg.BatchSize, total)
		batch := cands[start:end]
		res.Batches++

		out := e.runBatch(ctx, playlistID, res.Batches, batch)
		res.Added = append(res.Added, out.Added...)
		res.Failed = append(res.Failed, out.Failed...)

		e.metrics.TracksAdded.Add(float64(len(out.Added)))
		e.metrics.TracksFailed.Add(float64(len(out.Failed)))
		e.emitter.Progress(len(res.Added)+len(res.Failed), total, "adding", models.SyncRunning)
	}

	return res, nil
}

func (e *Engine) runBatch(ctx context.Context, playlistID string, n int, batch []models.Candidate) Outcome {
	var prev error

	for i, s := range e.strategies {
		if i > 0 && !s.Handles(prev) {
			continue
		}

		e.emitter.Info("inserting batch", "batch", n, "size", len(batch), "strategy", s.Name())
		out, err := s.Insert(ctx, playlistID, batch)
		if err == nil {
			e.metrics.TransferStrategy.WithLabelValues(s.Name(), "ok").Inc()
			e.emitter.Info("batch handled", "batch", n, "strategy", s.Name(), "added", len(out.Added), "failed", len(out.Failed))
			return out
		}

		e.metrics.TransferStrategy.WithLabelValues(s.Name(), shared.Classify(err).String()).Inc()
		e.emitter.Warn("strategy failed, falling back", "batch", n, "strategy", s.Name(), "kind", shared.Classify(err).String(), "err", err)
		prev = err

		if ctx.Err() != nil {
			break
		}
	}

	reason := "all insert strategies failed"
	if prev != nil {
		reason = fmt.Sprintf("%s: %v", reason, prev)
	}
	out := Outcome{}
	for _, c := range batch {
		out.Failed = append(out.Failed, Failure{Candidate: c, Reason: reason})
	}
	e.emitter.Error("batch failed", "batch", n, "size", len(batch), "err", prev)
	return out
}
