package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for World ID verification.
// All methods are safe on a nil receiver.
type Metrics struct {
	InitOutcome        *prometheus.CounterVec
	VerifyOutcome      *prometheus.CounterVec
	RemoteLatency      *prometheus.HistogramVec
	NullifierConflicts prometheus.Counter
	HTTPLatency        *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InitOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "personhood_worldid_init_total",
			Help: "World ID verification sessions started, by outcome code",
		}, []string{"outcome"}),

		VerifyOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "personhood_worldid_verify_total",
			Help: "World ID proof verifications, by outcome code",
		}, []string{"outcome"}),

		RemoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "personhood_worldid_remote_duration_seconds",
			Help:    "Latency of the remote World ID verify call, by response code",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"code"}),

		NullifierConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "personhood_worldid_nullifier_conflicts_total",
			Help: "Commits rejected by the nullifier ledger uniqueness constraint",
		}),

		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "personhood_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) IncrementInit(outcome string) {
	if m != nil {
		m.InitOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementVerify(outcome string) {
	if m != nil {
		m.VerifyOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveRemoteLatency(code string, d time.Duration) {
	if m != nil {
		m.RemoteLatency.WithLabelValues(code).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementNullifierConflict() {
	if m != nil {
		m.NullifierConflicts.Inc()
	}
}

func (m *Metrics) ObserveHTTPLatency(route string, d time.Duration) {
	if m != nil {
		m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
	}
}

// LatencyMiddleware records request latency labelled by the matched chi
// route pattern. Safe on a nil receiver.
func (m *Metrics) LatencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.ObserveHTTPLatency(route, time.Since(start))
	})
}
