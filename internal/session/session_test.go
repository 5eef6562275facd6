package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/answer"
	"github.com/roach88/contest/internal/auth"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/engine"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/progress"
	"github.com/roach88/contest/internal/reconcile"
	"github.com/roach88/contest/internal/store"
)

var (
	player   = auth.User{ID: "u-player", Email: "player@example.com"}
	operator = auth.User{ID: "u-admin", Email: "admin@contest.local"}
)

type countingRenderer struct {
	mu sync.Mutex
	n  int
}

func (r *countingRenderer) Render(engine.View) {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func (r *countingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

type countingLeaderboard struct {
	mu sync.Mutex
	n  int
}

func (l *countingLeaderboard) Schedule() {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
}

func (l *countingLeaderboard) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

type fixture struct {
	session     *Session
	auth        *auth.Static
	store       *store.Store
	progress    *progress.Memory
	engine      *engine.Engine
	console     *admin.Console
	renderer    *countingRenderer
	leaderboard *countingLeaderboard
}

func newFixture(t *testing.T, validator engine.AnswerValidator) *fixture {
	t.Helper()
	cfg := config.MustDefault()
	st, err := store.Open(filepath.Join(t.TempDir(), "contest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if validator == nil {
		validator = answer.NewTable(cfg)
	}

	f := &fixture{
		auth:        auth.NewStatic(),
		store:       st,
		progress:    progress.NewMemory(),
		renderer:    &countingRenderer{},
		leaderboard: &countingLeaderboard{},
	}
	f.auth.Add(player, "secret1")
	f.auth.Add(operator, "secret2")

	g := gate.New(st)
	f.engine = engine.New(context.Background(), cfg, f.progress,
		engine.WithValidator(validator),
		engine.WithGate(g),
		engine.WithRenderer(f.renderer),
		engine.WithLeaderboard(f.leaderboard),
	)
	t.Cleanup(f.engine.Close)

	f.console = admin.New(cfg, st, g)
	f.session = New(cfg, Deps{
		Auth:        f.auth,
		Engine:      f.engine,
		Reconciler:  reconcile.New(st, f.engine),
		Gate:        g,
		Admin:       f.console,
		Leaderboard: f.leaderboard,
	})
	t.Cleanup(f.session.Close)
	return f
}

func TestSession_StartsOnLanding(t *testing.T) {
	f := newFixture(t, nil)
	f.session.Start(context.Background())

	assert.Equal(t, Landing, f.session.View())
	_, ok := f.session.User()
	assert.False(t, ok)
}

func TestSession_SignInReconciles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.Start(ctx)

	for i, s := range []config.StageID{1, 2} {
		_, err := f.store.WriteSolve(ctx, store.Solve{
			ID: string(rune('a' + i)), Stage: s, UserID: player.ID, SolvedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	_, err := f.auth.SignIn(ctx, player.Email, "secret1")
	require.NoError(t, err)

	assert.Equal(t, Game, f.session.View())
	assert.Equal(t, config.StageID(3), f.engine.CurrentStage())
	assert.GreaterOrEqual(t, f.leaderboard.count(), 1, "leaderboard refresh queued")

	local, err := f.progress.SolvedStages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, local.Ints())
}

func TestSession_StartWithExistingUser(t *testing.T) {
	f := newFixture(t, nil)
	f.auth.As(player)

	f.session.Start(context.Background())
	assert.Equal(t, Game, f.session.View())
}

func TestSession_AdminSignIn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.Start(ctx)

	_, err := f.auth.SignIn(ctx, operator.Email, "secret2")
	require.NoError(t, err)
	assert.Equal(t, Admin, f.session.View())
}

func TestSession_TokenRefreshDoesNotReenter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.Start(ctx)

	_, err := f.auth.SignIn(ctx, player.Email, "secret1")
	require.NoError(t, err)
	f.auth.Refresh()
	f.auth.Refresh()

	assert.Equal(t, []View{Landing, Game}, f.session.History())
}

func TestSession_SignOutClearsProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.Start(ctx)

	_, err := f.auth.SignIn(ctx, player.Email, "secret1")
	require.NoError(t, err)
	out, err := f.session.Submit(ctx, 1, "Istanbul")
	require.NoError(t, err)
	require.True(t, out.Solved)

	require.NoError(t, f.session.SignOut(ctx))

	assert.Equal(t, Landing, f.session.View())
	local, err := f.progress.SolvedStages(ctx)
	require.NoError(t, err)
	assert.True(t, local.IsEmpty())
	assert.Equal(t, config.StageID(1), f.engine.CurrentStage())
	assert.Equal(t, []View{Landing, Game, Landing}, f.session.History())
}

func TestSession_PasswordRecoverySignsIn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.Start(ctx)

	token, err := f.auth.RequestPasswordReset(ctx, player.Email)
	require.NoError(t, err)
	_, err = f.auth.ConfirmPasswordReset(ctx, token, "newsecret")
	require.NoError(t, err)

	assert.Equal(t, Game, f.session.View())
}

type gatedValidator struct {
	entered chan struct{}
	release chan struct{}
}

func (v *gatedValidator) Validate(context.Context, config.StageID, int, string) (bool, error) {
	v.entered <- struct{}{}
	<-v.release
	return false, nil
}

func TestSession_SubmitReentrancy(t *testing.T) {
	v := &gatedValidator{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, v)
	ctx := context.Background()
	f.session.Start(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Submit(ctx, 1, "first")
		done <- err
	}()
	<-v.entered

	_, err := f.session.Submit(ctx, 1, "second")
	assert.ErrorIs(t, err, ErrSubmitPending)

	close(v.release)
	require.NoError(t, <-done)

	// The guard is released afterwards.
	v.release = make(chan struct{})
	close(v.release)
	_, err = f.session.Submit(ctx, 1, "third")
	<-v.entered
	assert.NoError(t, err)
}

func TestSession_AdminChangeRefreshesGame(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.session.Start(ctx)

	_, err := f.auth.SignIn(ctx, player.Email, "secret1")
	require.NoError(t, err)
	before := f.renderer.count()

	enabled := false
	_, err = f.console.Toggle(ctx, admin.ToggleRequest{Stage: 1, Enabled: &enabled, AdminUser: operator.Email})
	require.NoError(t, err)

	assert.Greater(t, f.renderer.count(), before)
	assert.Equal(t, engine.StatusAdminDisabled, f.engine.Status(1))

	_, err = f.session.Submit(ctx, 1, "istanbul")
	assert.True(t, engine.IsDisabled(err))
}
