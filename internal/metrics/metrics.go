// Package metrics exposes the contest's Prometheus counters.
//
// All methods are safe on a nil *Metrics, so components can take an
// optional metrics dependency without guarding every call.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/contest/internal/config"
)

// Metrics holds the registered collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	// solvesRecorded counts solve record dispatches by result
	solvesRecorded *prometheus.CounterVec

	// submissions counts answer submissions by outcome
	submissions *prometheus.CounterVec

	// validatorFallbacks counts validations answered by the fallback table
	validatorFallbacks *prometheus.CounterVec

	// validationDuration tracks remote validation latency
	validationDuration prometheus.Histogram

	gateLoadFailures     prometheus.Counter
	reconcileFailures    prometheus.Counter
	leaderboardRefreshes prometheus.Counter
	adminWrites          *prometheus.CounterVec

	// httpRequests counts served requests by route and status
	httpRequests *prometheus.CounterVec
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		solvesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_solves_recorded_total",
			Help: "Solve record dispatches by result",
		}, []string{"result"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_submissions_total",
			Help: "Answer submissions by outcome",
		}, []string{"outcome"}),
		validatorFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_validator_fallbacks_total",
			Help: "Validations answered by the local fallback table, by stage",
		}, []string{"stage"}),
		validationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contest_validation_duration_seconds",
			Help:    "Answer validation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		gateLoadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "contest_gate_load_failures_total",
			Help: "Stage availability loads that failed open",
		}),
		reconcileFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "contest_reconcile_failures_total",
			Help: "Sign-in reconciliations skipped because the remote fetch failed",
		}),
		leaderboardRefreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "contest_leaderboard_refreshes_total",
			Help: "Leaderboard refreshes executed",
		}),
		adminWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_admin_writes_total",
			Help: "Stage control writes by action",
		}, []string{"action"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contest_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
}

// SolveRecorded counts a recorder result ("ok", "duplicate", "no_user",
// "write_error").
func (m *Metrics) SolveRecorded(result string) {
	if m == nil {
		return
	}
	m.solvesRecorded.WithLabelValues(result).Inc()
}

// Submission counts a submission outcome.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// ValidatorFallback counts a fallback-table validation.
func (m *Metrics) ValidatorFallback(stage config.StageID) {
	if m == nil {
		return
	}
	m.validatorFallbacks.WithLabelValues(strconv.Itoa(int(stage))).Inc()
}

// ObserveValidation records how long a validation took.
func (m *Metrics) ObserveValidation(d time.Duration) {
	if m == nil {
		return
	}
	m.validationDuration.Observe(d.Seconds())
}

// GateLoadFailed counts a fail-open availability load.
func (m *Metrics) GateLoadFailed() {
	if m == nil {
		return
	}
	m.gateLoadFailures.Inc()
}

// ReconcileFailed counts a skipped reconciliation.
func (m *Metrics) ReconcileFailed() {
	if m == nil {
		return
	}
	m.reconcileFailures.Inc()
}

// LeaderboardRefreshed counts an executed refresh.
func (m *Metrics) LeaderboardRefreshed() {
	if m == nil {
		return
	}
	m.leaderboardRefreshes.Inc()
}

// AdminWrite counts a stage control write.
func (m *Metrics) AdminWrite(action string) {
	if m == nil {
		return
	}
	m.adminWrites.WithLabelValues(action).Inc()
}

// HTTPRequest counts one served request. route is the matched pattern, not
// the raw path.
func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
