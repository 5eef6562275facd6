// Package session ties identity, progression and administration together
// for one player. It replaces what would otherwise be process globals: the
// Session is built once and handed to whatever drives it (the play command,
// the scenario harness).
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/auth"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/engine"
	"github.com/roach88/contest/internal/reconcile"
)

// ErrSubmitPending is returned by Submit while another submission is being
// validated.
var ErrSubmitPending = errors.New("submission already pending")

// View is the top-level screen.
type View string

const (
	Landing View = "landing"
	Game    View = "game"
	Admin   View = "admin"
)

// Pointer correction reasons.
const (
	ReasonSignedIn    = reconcile.ReasonSignedIn
	ReasonAdminChange = "admin_change"
)

// GateLoader reloads stage availability.
type GateLoader interface {
	Load(ctx context.Context) error
}

// Deps are the collaborators of a Session. Auth and Engine are required.
type Deps struct {
	Auth        auth.Provider
	Engine      *engine.Engine
	Reconciler  *reconcile.Reconciler
	Gate        GateLoader
	Admin       *admin.Console
	Leaderboard engine.LeaderboardRefresher
	Logger      *slog.Logger

	// OnView is called after every view change.
	OnView func(from, to View)
}

// Session is one player's client context.
type Session struct {
	cfg  *config.Contest
	deps Deps
	log  *slog.Logger

	// ctx is used for work triggered by identity events.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	view    View
	user    *auth.User
	history []View

	submitting  atomic.Bool
	unsubscribe func()
}

// New builds a Session in the Landing view and subscribes it to identity
// events. Call Start to load availability and pick up an existing sign-in.
func New(cfg *config.Contest, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg,
		deps:   deps,
		log:    logger.With("component", "session"),
		ctx:    ctx,
		cancel: cancel,
		view:   Landing,
	}
	if deps.Admin != nil {
		deps.Admin.OnChange(func() {
			deps.Engine.EnsureAtNextUnsolved(ReasonAdminChange)
		})
	}
	s.unsubscribe = deps.Auth.Subscribe(s.handle)
	return s
}

// Start loads stage availability and, if someone is already signed in,
// handles it as a fresh sign-in.
func (s *Session) Start(ctx context.Context) {
	s.loadGate(ctx)
	if u, ok := s.deps.Auth.CurrentUser(); ok {
		s.handle(auth.Event{Type: auth.SignedIn, User: &u})
		return
	}
	s.deps.Engine.Refresh()
}

// Close unsubscribes from identity events.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
}

// View returns the current screen.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// History returns every view entered, oldest first, starting with Landing.
func (s *Session) History() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]View{Landing}, s.history...)
}

// User returns the signed-in user as last seen by the session.
func (s *Session) User() (auth.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return auth.User{}, false
	}
	return *s.user, true
}

// Engine returns the progression engine.
func (s *Session) Engine() *engine.Engine {
	return s.deps.Engine
}

// Submit forwards an answer for the current stage to the engine. Only one
// submission may be in flight.
func (s *Session) Submit(ctx context.Context, step int, answer string) (engine.Outcome, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return engine.Outcome{}, ErrSubmitPending
	}
	defer s.submitting.Store(false)
	return s.deps.Engine.SubmitAnswer(ctx, step, answer)
}

// SignOut signs the player out. Progress clearing happens in the SignedOut
// handler.
func (s *Session) SignOut(ctx context.Context) error {
	return s.deps.Auth.SignOut(ctx)
}

func (s *Session) handle(ev auth.Event) {
	switch ev.Type {
	case auth.SignedIn, auth.TokenRefreshed, auth.UserUpdated:
		if ev.User == nil {
			return
		}
		s.mu.Lock()
		u := *ev.User
		s.user = &u
		s.mu.Unlock()

		if s.cfg.IsAdmin(ev.User.Email) {
			s.loadGate(s.ctx)
			s.transition(Admin, string(ev.Type))
			return
		}
		s.enterGame(ev)

	case auth.SignedOut:
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()

		if err := s.deps.Engine.Reset(s.ctx); err != nil {
			s.log.Warn("local progress not cleared", "error", err)
		}
		s.transition(Landing, string(ev.Type))

	case auth.PasswordRecovery:
		s.log.Info("password recovery in progress", "email", userEmail(ev.User))
	}
}

func (s *Session) enterGame(ev auth.Event) {
	if s.deps.Reconciler != nil {
		if _, err := s.deps.Reconciler.Reconcile(s.ctx, ev.User.ID); err != nil {
			s.log.Warn("continuing with local progress", "event", ev.Type, "error", err)
			s.deps.Engine.EnsureAtNextUnsolved(ReasonSignedIn)
		}
	} else {
		s.deps.Engine.EnsureAtNextUnsolved(ReasonSignedIn)
	}

	s.transition(Game, string(ev.Type))
	if s.deps.Leaderboard != nil {
		s.deps.Leaderboard.Schedule()
	}
}

func (s *Session) loadGate(ctx context.Context) {
	if s.deps.Gate == nil {
		return
	}
	if err := s.deps.Gate.Load(ctx); err != nil {
		s.log.Warn("stage availability unavailable, all stages enabled", "error", err)
	}
}

// transition is the only place the view changes. Re-entering the current
// view is a no-op.
func (s *Session) transition(to View, reason string) bool {
	s.mu.Lock()
	from := s.view
	if from == to {
		s.mu.Unlock()
		return false
	}
	s.view = to
	s.history = append(s.history, to)
	onView := s.deps.OnView
	s.mu.Unlock()

	s.log.Info("view changed", "from", from, "to", to, "reason", reason)
	if onView != nil {
		onView(from, to)
	}
	return true
}

func userEmail(u *auth.User) string {
	if u == nil {
		return ""
	}
	return u.Email
}
