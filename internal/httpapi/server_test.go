package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/answer"
	"github.com/roach88/contest/internal/auth"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/leaderboard"
	"github.com/roach88/contest/internal/metrics"
	"github.com/roach88/contest/internal/reconcile"
	"github.com/roach88/contest/internal/recorder"
	"github.com/roach88/contest/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const adminEmail = "admin@contest.local"

type fixture struct {
	router *gin.Engine
	store  *store.Store
	gate   *gate.Gate
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	cfg := config.MustDefault()
	st, err := store.Open(filepath.Join(t.TempDir(), "contest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	g := gate.New(st)
	router := NewRouter(Deps{
		Config:    cfg,
		Validator: answer.NewTable(cfg),
		Store:     st,
		Admin:     admin.New(cfg, st, g),
		Metrics:   metrics.New(prometheus.NewRegistry()),
		APIKey:    apiKey,
	})
	return &fixture{router: router, store: st, gate: g}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandleValidate(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodPost, PathValidate, answer.Request{Stage: 1, Step: 1, Answer: " ISTANBUL"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[answer.Response](t, w).OK)

	w = f.do(t, http.MethodPost, PathValidate, answer.Request{Stage: 1, Step: 1, Answer: "ankara"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[answer.Response](t, w).OK)

	w = f.do(t, http.MethodPost, PathValidate, answer.Request{Stage: 1, Step: 2, Answer: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "stage 1 has one step")

	w = f.do(t, http.MethodPost, PathValidate, answer.Request{Stage: 99, Step: 1, Answer: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STAGE", decode[ErrorResponse](t, w).Code)
}

func TestAPIKeyRequired(t *testing.T) {
	f := newFixture(t, "s3cret")
	body := answer.Request{Stage: 1, Step: 1, Answer: "istanbul"}

	w := f.do(t, http.MethodPost, PathValidate, body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, PathValidate, body, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, PathValidate, body, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)

	// Public reads need no key.
	w = f.do(t, http.MethodGet, PathWinners, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodGet, PathAdminControl, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, PathAdminControl, nil, AdminHeader, adminEmail)
	require.Equal(t, http.StatusOK, w.Code)
	ov := decode[AdminOverviewResponse](t, w)
	assert.True(t, ov.Success)
	assert.Len(t, ov.Stages, 16)

	disabled := false
	w = f.do(t, http.MethodPost, PathAdminControl, AdminWriteRequest{Stage: 4, Enabled: &disabled, AdminUser: adminEmail})
	require.Equal(t, http.StatusOK, w.Code)
	wr := decode[AdminWriteResponse](t, w)
	assert.Equal(t, "Stage 4 disabled via admin panel", wr.Stage.Notes)
	assert.False(t, f.gate.IsStageEnabled(4))

	w = f.do(t, http.MethodPost, PathAdminControl, AdminWriteRequest{Stage: 4, AdminUser: adminEmail, Notes: "maintenance"})
	require.Equal(t, http.StatusOK, w.Code)
	wr = decode[AdminWriteResponse](t, w)
	assert.Equal(t, "maintenance", wr.Stage.Notes)
	assert.False(t, wr.Stage.Enabled)

	w = f.do(t, http.MethodPost, PathAdminControl, AdminWriteRequest{Stage: 4, Enabled: &disabled, AdminUser: "player@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, PathAdminBulk, admin.BulkRequest{Action: "explode", AdminUser: adminEmail})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, PathAdminBulk, admin.BulkRequest{Action: admin.ActionDisable, Stages: []int{2, 3}, AdminUser: adminEmail})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []config.StageID{2, 3}, decode[AdminBulkResponse](t, w).Result.Stages)

	w = f.do(t, http.MethodGet, PathAvailability, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []gate.Entry{
		{Stage: 2, Enabled: false},
		{Stage: 3, Enabled: false},
		{Stage: 4, Enabled: false},
	}, decode[[]gate.Entry](t, w))
}

func TestSolvesAndWinners(t *testing.T) {
	f := newFixture(t, "")
	at := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

	w := f.do(t, http.MethodPost, PathSolves, store.Solve{ID: "a", Stage: 1, UserID: "u1", Username: "ann@example.com", Step: 1, SolvedAt: at})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[WriteSolveResponse](t, w).Inserted)

	w = f.do(t, http.MethodPost, PathSolves, store.Solve{ID: "b", Stage: 1, UserID: "u1", SolvedAt: at.Add(time.Hour)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[WriteSolveResponse](t, w).Inserted, "one solve per user and stage")

	w = f.do(t, http.MethodPost, PathSolves, store.Solve{ID: "c", Stage: 42, UserID: "u1", SolvedAt: at})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, PathSolves+"/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{1}, decode[SolvedStagesResponse](t, w).Stages)

	w = f.do(t, http.MethodGet, PathWinners, nil)
	require.Equal(t, http.StatusOK, w.Code)
	winners := decode[[]store.Winner](t, w)
	require.Len(t, winners, 1)
	assert.Equal(t, "ann@example.com", winners[0].Username)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodGet, PathHealth, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, PathMetrics, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `contest_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

// TestRemoteClients drives the HTTP clients used by the play command
// against a live server.
func TestRemoteClients(t *testing.T) {
	f := newFixture(t, "k")
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	ctx := context.Background()

	v := answer.NewRemote(srv.URL, answer.WithAPIKey("k"))
	ok, err := v.Validate(ctx, 2, 1, "Cappadocia")
	require.NoError(t, err)
	assert.True(t, ok)

	ident := auth.NewStatic()
	ident.As(auth.User{ID: "u9", Email: "nine@example.com"})
	rec := recorder.New(ident, recorder.NewRemoteWriter(srv.URL, "k", nil))
	res := rec.LogSolve(ctx, 3, 1)
	require.NoError(t, res.Err)
	assert.True(t, res.Recorded())
	assert.Equal(t, recorder.ReasonDuplicate, rec.LogSolve(ctx, 3, 1).Reason)

	stages, err := reconcile.NewRemoteSource(srv.URL, nil).SolvedStages(ctx, "u9")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, stages.Ints())

	require.NoError(t, f.store.SetStagesEnabled(ctx, []config.StageID{7}, false, adminEmail, "", time.Now()))
	g := gate.New(gate.NewRemoteSource(srv.URL, nil))
	require.NoError(t, g.Load(ctx))
	assert.False(t, g.IsStageEnabled(7))

	board := leaderboard.NewBuilder(config.MustDefault(), leaderboard.NewRemoteSource(srv.URL, nil), nil).Build(ctx)
	assert.False(t, board.Stale)
	require.True(t, board.Cards[2].HasWinner())
	assert.Equal(t, "nine@example.com", board.Cards[2].Username)

	bad := recorder.New(ident, recorder.NewRemoteWriter(srv.URL, "wrong", nil))
	assert.Equal(t, recorder.ReasonWriteError, bad.LogSolve(ctx, 4, 1).Reason)
}

func TestServerShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, "")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(ln.Addr().String(), f.router, nil).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + PathHealth)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
