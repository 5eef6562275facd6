package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SolveRecorded("ok")
	m.SolveRecorded("ok")
	m.SolveRecorded("write_error")
	m.Submission("correct")
	m.ValidatorFallback(3)
	m.GateLoadFailed()
	m.ReconcileFailed()
	m.LeaderboardRefreshed()
	m.AdminWrite("toggle")
	m.ObserveValidation(20 * time.Millisecond)
	m.HTTPRequest("GET", "/healthz", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.solvesRecorded.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.solvesRecorded.WithLabelValues("write_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validatorFallbacks.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateLoadFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.leaderboardRefreshes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adminWrites.WithLabelValues("toggle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SolveRecorded("ok")
		m.Submission("x")
		m.ValidatorFallback(1)
		m.ObserveValidation(time.Second)
		m.GateLoadFailed()
		m.ReconcileFailed()
		m.LeaderboardRefreshed()
		m.AdminWrite("bulk")
	})
	assert.NotNil(t, m.Handler())
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.GateLoadFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "contest_gate_load_failures_total 1"))
}
