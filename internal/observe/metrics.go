// Package observe wires the security core's observability: Prometheus
// instruments for the scrape endpoint and optional OpenTelemetry export
// over the stdout exporters.
package observe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/toolwarden/toolwarden/internal/domain/guard"
)

const namespace = "toolwarden"

// Metrics holds all Prometheus metrics for toolwarden.
// Pass to components that need to record metrics.
type Metrics struct {
	ChecksAllowed prometheus.Counter
	ChecksDenied  *prometheus.CounterVec
	CheckDuration prometheus.Histogram

	reg prometheus.Registerer
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ChecksAllowed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_allowed_total",
				Help:      "Total guarded operations that passed every check",
			},
		),
		ChecksDenied: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_denied_total",
				Help:      "Total guarded operations denied, by failing check",
			},
			[]string{"check"}, // check=validation/authentication/rate_limit/authorization
		),
		CheckDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Full check chain duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		reg: reg,
	}
}

// RecordAllow counts an operation that passed the whole chain.
func (m *Metrics) RecordAllow() {
	m.ChecksAllowed.Inc()
}

// RecordDeny counts a denial under the failing check's kind.
func (m *Metrics) RecordDeny(kind string) {
	m.ChecksDenied.WithLabelValues(kind).Inc()
}

// RecordLatency observes the full chain duration.
func (m *Metrics) RecordLatency(elapsed time.Duration) {
	m.CheckDuration.Observe(elapsed.Seconds())
}

// WatchSessions registers a gauge sampled from the session store at
// scrape time.
func (m *Metrics) WatchSessions(count func() int) {
	promauto.With(m.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active sessions",
		},
		func() float64 { return float64(count()) },
	)
}

// WatchRateLimitKeys registers a gauge sampled from the limiter's live
// window count at scrape time.
func (m *Metrics) WatchRateLimitKeys(count func() int) {
	promauto.With(m.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_keys",
			Help:      "Number of active rate limit keys",
		},
		func() float64 { return float64(count()) },
	)
}

// WatchAuditQueue registers the audit pipeline gauges and drop counter,
// backed by the pipeline's own accessors.
func (m *Metrics) WatchAuditQueue(depth, capacity func() int, dropped func() uint64) {
	promauto.With(m.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_depth",
			Help:      "Entries buffered in the audit channel",
		},
		func() float64 { return float64(depth()) },
	)
	promauto.With(m.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_capacity",
			Help:      "Capacity of the audit channel",
		},
		func() float64 { return float64(capacity()) },
	)
	promauto.With(m.reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Total audit entries dropped under backpressure",
		},
		func() float64 { return float64(dropped()) },
	)
}

// Fanout returns a recorder that forwards each event to every recorder.
// Lets the Prometheus and OpenTelemetry instruments share the gate's
// single stats hook.
func Fanout(recorders ...guard.StatsRecorder) guard.StatsRecorder {
	return fanout(recorders)
}

type fanout []guard.StatsRecorder

func (f fanout) RecordAllow() {
	for _, r := range f {
		r.RecordAllow()
	}
}

func (f fanout) RecordDeny(kind string) {
	for _, r := range f {
		r.RecordDeny(kind)
	}
}

func (f fanout) RecordLatency(elapsed time.Duration) {
	for _, r := range f {
		r.RecordLatency(elapsed)
	}
}

// Compile-time interface verification.
var (
	_ guard.StatsRecorder = (*Metrics)(nil)
	_ guard.StatsRecorder = (fanout)(nil)
)
