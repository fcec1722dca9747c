package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/quicksched/internal/domain"
	"github.com/notifyhub/quicksched/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	PassesTotal      prometheus.Counter
	PassDuration     prometheus.Histogram
	PendingPosts     prometheus.Gauge
	PostsArchived    *prometheus.CounterVec
	PublishLag       prometheus.Histogram
	OracleErrors     prometheus.Counter
	StoreErrors      *prometheus.CounterVec
	PostsSubmitted   prometheus.Counter
	PublisherFailure prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer.
// A custom registry keeps tests isolated from global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PassesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_passes_total",
			Help: "Total number of completed reconciliation passes.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_pass_seconds",
			Help:    "Wall time of a reconciliation pass.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingPosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reconcile_pending_posts",
			Help: "Submitted posts awaiting publication at the start of the last pass.",
		}),
		PostsArchived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "posts_archived_total",
			Help: "Posts confirmed published and moved to the notification archive.",
		}, []string{"category"}),
		PublishLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "post_publish_detection_lag_seconds",
			Help:    "Time between a post's scheduled publish time and its archival.",
			Buckets: []float64{1, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		OracleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "publish_status_errors_total",
			Help: "Failed publish status queries against the platform.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconcile_store_errors_total",
			Help: "Store failures during reconciliation, by operation.",
		}, []string{"op"}),
		PostsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "posts_submitted_total",
			Help: "Posts accepted by the platform for scheduled publication.",
		}),
		PublisherFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "post_submit_failures_total",
			Help: "Post submissions rejected by or failed against the platform.",
		}),
	}

	reg.MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.PendingPosts,
		m.PostsArchived,
		m.PublishLag,
		m.OracleErrors,
		m.StoreErrors,
		m.PostsSubmitted,
		m.PublisherFailure,
	)

	return m
}

// ReconcilerHooks returns the callbacks expected by worker.MetricHooks.
func (m *Metrics) ReconcilerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnPass: func(r worker.PassReport) {
			m.PassesTotal.Inc()
			m.PassDuration.Observe(r.Duration().Seconds())
			m.PendingPosts.Set(float64(r.Snapshot))
		},
		OnArchived: func(c domain.Category, lag time.Duration) {
			m.PostsArchived.WithLabelValues(string(c)).Inc()
			if lag > 0 {
				m.PublishLag.Observe(lag.Seconds())
			}
		},
		OnOracleError: func() {
			m.OracleErrors.Inc()
		},
		OnStoreError: func(op string) {
			m.StoreErrors.WithLabelValues(op).Inc()
		},
	}
}

// SubmitHook returns the callback the schedule service reports platform
// submissions through.
func (m *Metrics) SubmitHook() func(err error) {
	return func(err error) {
		if err != nil {
			m.PublisherFailure.Inc()
			return
		}
		m.PostsSubmitted.Inc()
	}
}
