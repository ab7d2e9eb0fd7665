package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/metrics"
	"github.com/desertthunder/tracksync/internal/shared"
)

// DefaultBackoff is the retry schedule for transient failures.
var DefaultBackoff = []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}

// DefaultMaxRetryAfter caps Retry-After when the limit has neither a cap nor a window.
const DefaultMaxRetryAfter = time.Minute

// RefreshFunc renews the access credential of a service.
type RefreshFunc func(ctx context.Context) error

// Executor wraps outbound calls to one service with rate limiting and retries.
type Executor struct {
	service       string
	window        *Window
	backoff       []time.Duration
	maxRetryAfter time.Duration
	refresh       RefreshFunc
	clock         Clock
	logger        *log.Logger
	metrics       *metrics.Metrics
}

// Option configures an [Executor].
type Option func(*Executor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(e *Executor) { e.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithRefresher sets the credential refresh hook.
func WithRefresher(fn RefreshFunc) Option { return func(e *Executor) { e.refresh = fn } }

// NewExecutor builds an executor for service from its configured limit.
func NewExecutor(service string, limit shared.ServiceLimit, opts ...Option) *Executor {
	e := &Executor{service: service, clock: SystemClock}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	e.logger = e.logger.WithPrefix("ratelimit").With("service", service)
	e.metrics = metrics.OrNew(e.metrics)
	e.window = NewWindow(limit.Ceiling, limit.Window, e.clock)
	e.backoff = limit.Backoff
	if len(e.backoff) == 0 {
		e.backoff = DefaultBackoff
	}
	switch {
	case limit.MaxRetryAfter > 0:
		e.maxRetryAfter = limit.MaxRetryAfter
	case limit.Window > 0:
		e.maxRetryAfter = limit.Window
	default:
		e.maxRetryAfter = DefaultMaxRetryAfter
	}
	return e
}

// SetRefresher installs the credential refresh hook after construction.
func (e *Executor) SetRefresher(fn RefreshFunc) {
	e.refresh = fn
}

// Service returns the service name.
func (e *Executor) Service() string { return e.service }

// Window returns the executor's rate limit window.
func (e *Executor) Window() *Window { return e.window }

// Do runs fn under the rate limit window.
//
// Transient failures (429, 5xx) are retried on the backoff schedule, honouring a longer Retry-After
// up to the limit's MaxRetryAfter.
// An auth-expired failure refreshes the credential once and retries; a second one is returned.
// Every other error is returned unchanged.
func (e *Executor) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempt := 0
	refreshed := false

	for {
		waited, err := e.window.acquire(ctx)
		if err != nil {
			return err
		}
		if waited > 0 {
			e.metrics.RateLimitWaits.WithLabelValues(e.service).Inc()
			e.logger.Debug("rate limit window full", "label", label, "waited", waited)
		}

		err = fn(ctx)
		if err == nil {
			e.metrics.Requests.WithLabelValues(e.service, "ok").Inc()
			return nil
		}

		kind := shared.Classify(err)
		e.metrics.Requests.WithLabelValues(e.service, kind.String()).Inc()

		switch kind {
		case shared.KindTransient:
			if attempt >= len(e.backoff) {
				e.logger.Warn("retries exhausted", "label", label, "attempts", attempt+1, "err", err)
				return fmt.Errorf("%s: retries exhausted: %w", label, err)
			}
			delay := e.backoff[attempt]
			if ra := retryAfter(err); ra > delay {
				delay = ra
			}
			if delay > e.maxRetryAfter {
				e.logger.Warn("retry-after clamped", "label", label, "requested", delay, "max", e.maxRetryAfter)
				delay = e.maxRetryAfter
			}
			attempt++
			e.metrics.Retries.WithLabelValues(e.service, "transient").Inc()
			e.logger.Info("retrying after transient failure", "label", label, "attempt", attempt, "delay", delay, "err", err)
			if err := e.clock.Sleep(ctx, delay); err != nil {
				return err
			}

		case shared.KindAuthExpired:
			if refreshed || e.refresh == nil {
				return err
			}
			refreshed = true
			if rerr := e.refresh(ctx); rerr != nil {
				e.metrics.CredentialRefresh.WithLabelValues(e.service, "error").Inc()
				return fmt.Errorf("%w: %v (after %v)", shared.ErrRefreshFailed, rerr, err)
			}
			e.metrics.CredentialRefresh.WithLabelValues(e.service, "ok").Inc()
			e.metrics.Retries.WithLabelValues(e.service, "auth").Inc()
			e.logger.Info("credential refreshed, retrying", "label", label)

		default:
			return err
		}
	}
}

// Call is [Executor.Do] for calls that return a value.
func Call[T any](ctx context.Context, e *Executor, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func retryAfter(err error) time.Duration {
	var apiErr *shared.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
