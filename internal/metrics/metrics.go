// Package metrics holds the Prometheus collectors shared by the sync pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains Prometheus collectors for the sync pipeline.
type Metrics struct {
	registry *prometheus.Registry

	SyncsTotal        *prometheus.CounterVec
	SyncDuration      prometheus.Histogram
	SyncActive        prometheus.Gauge
	MatchResults      *prometheus.CounterVec
	MatchDuration     prometheus.Histogram
	TracksAdded       prometheus.Counter
	TracksFailed      prometheus.Counter
	SkippedDuplicates prometheus.Counter
	TransferStrategy  *prometheus.CounterVec
	Requests          *prometheus.CounterVec
	Retries           *prometheus.CounterVec
	RateLimitWaits    *prometheus.CounterVec
	CredentialRefresh *prometheus.CounterVec
	BroadcastDropped  prometheus.Counter
	ScheduledRuns     *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_syncs_total",
			Help: "Total number of finished sync runs by status",
		}, []string{"status"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracksync_sync_duration_seconds",
			Help:    "Wall time of a sync run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		SyncActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "tracksync_sync_active",
			Help: "1 while a sync run holds the global lock",
		}),
		MatchResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_match_results_total",
			Help: "Matcher verdicts by tier",
		}, []string{"tier"}),
		MatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracksync_match_duration_seconds",
			Help:    "Time spent matching a single source track",
			Buckets: prometheus.DefBuckets,
		}),
		TracksAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "tracksync_tracks_added_total",
			Help: "Tracks inserted into destination playlists",
		}),
		TracksFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "tracksync_tracks_failed_total",
			Help: "Tracks that could not be inserted after every fallback",
		}),
		SkippedDuplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "tracksync_skipped_duplicates_total",
			Help: "Matched tracks skipped because the destination already had them",
		}),
		TransferStrategy: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_transfer_strategy_total",
			Help: "Batch transfer strategy attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_requests_total",
			Help: "Outbound API calls by service and outcome",
		}, []string{"service", "outcome"}),
		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_retries_total",
			Help: "Retried outbound API calls by service and reason",
		}, []string{"service", "reason"}),
		RateLimitWaits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_ratelimit_waits_total",
			Help: "Calls that blocked on a full rate limit window",
		}, []string{"service"}),
		CredentialRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_credential_refresh_total",
			Help: "Credential refreshes triggered by auth-expired responses",
		}, []string{"service", "outcome"}),
		BroadcastDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "tracksync_broadcast_dropped_total",
			Help: "Events dropped because a subscriber was slow or gone",
		}),
		ScheduledRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tracksync_scheduled_runs_total",
			Help: "Scheduled job executions by status",
		}, []string{"status"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OrNew returns m, or a fresh instance when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New()
	}
	return m
}
