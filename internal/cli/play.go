package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/answer"
	"github.com/roach88/contest/internal/auth"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/engine"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/leaderboard"
	"github.com/roach88/contest/internal/metrics"
	"github.com/roach88/contest/internal/progress"
	"github.com/roach88/contest/internal/reconcile"
	"github.com/roach88/contest/internal/recorder"
	"github.com/roach88/contest/internal/session"
	"github.com/roach88/contest/internal/store"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions

	// Database is the contest store. It always holds accounts; without
	// Server it also holds solves and stage control.
	Database string

	// StateDir holds the local progress cache. Empty keeps it in memory.
	StateDir string
	Profile  string

	// Server is the base URL of a contest service. When set, answers,
	// solves, availability and winners go over HTTP.
	Server string
	APIKey string

	// In overrides stdin (for testing).
	In io.Reader
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the contest in the terminal",
		Long: `Start an interactive player session.

Sign up or sign in, then answer the current stage. Progress is cached
locally per profile and merged with the solves recorded for the account on
every sign-in. Type "help" for the list of commands.

Example:
  contest play --db ./contest.db --state ./state --profile ann
  contest play --db ./accounts.db --server http://localhost:8080 --api-key secret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite contest store (required)")
	cmd.Flags().StringVar(&opts.StateDir, "state", "", "local progress directory (default in memory)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "default", "local progress profile")
	cmd.Flags().StringVar(&opts.Server, "server", "", "contest service base URL")
	cmd.Flags().StringVar(&opts.APIKey, "api-key", "", "bearer token for the contest service")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// player is one interactive session and everything it owns.
type player struct {
	cfg       *config.Contest
	identity  *auth.Local
	engine    *engine.Engine
	session   *session.Session
	admin     *admin.Console
	board     *leaderboard.Builder
	refresher *leaderboard.Refresher
	gate      *gate.Gate
	screen    *screen
	logger    *slog.Logger
}

func runPlay(opts *PlayOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr(), slog.LevelWarn)

	cfg, err := loadContest(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load contest", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	cache, err := progress.OpenBadger(progress.BadgerConfig{
		Dir:      opts.StateDir,
		Profile:  opts.Profile,
		InMemory: opts.StateDir == "",
		Logger:   logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open local progress", err)
	}
	defer func() {
		if closeErr := cache.Close(); closeErr != nil {
			logger.Error("error closing local progress", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	p := newPlayer(ctx, opts, cfg, st, cache, newScreen(cmd.OutOrStdout()), logger)
	defer p.close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	in := opts.In
	if in == nil {
		in = cmd.InOrStdin()
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	p.screen.Printf("Welcome. Type \"help\" for commands.\n")
	for {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			return nil
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := p.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

func newPlayer(ctx context.Context, opts *PlayOptions, cfg *config.Contest, st *store.Store, cache progress.Store, scr *screen, logger *slog.Logger) *player {
	m := metrics.New(prometheus.NewRegistry())

	var (
		validator answer.Validator         = answer.NewTable(cfg)
		writer    recorder.Writer          = st
		solves    reconcile.Source         = st
		controls  gate.Source              = st
		winners   leaderboard.WinnerSource = st
	)
	if opts.Server != "" {
		remote := answer.NewRemote(opts.Server, answer.WithAPIKey(opts.APIKey))
		validator = answer.NewFallback(remote, answer.NewTable(cfg), logger, m)
		writer = recorder.NewRemoteWriter(opts.Server, opts.APIKey, nil)
		solves = reconcile.NewRemoteSource(opts.Server, nil)
		controls = gate.NewRemoteSource(opts.Server, nil)
		winners = leaderboard.NewRemoteSource(opts.Server, nil)
	}

	p := &player{
		cfg:      cfg,
		identity: auth.NewLocal(st, auth.WithLogger(logger)),
		gate:     gate.New(controls, gate.WithLogger(logger), gate.WithMetrics(m)),
		board:    leaderboard.NewBuilder(cfg, winners, logger),
		screen:   scr,
		logger:   logger,
	}
	// Stage control is written straight to the contest store, so the
	// console is only available without a remote service.
	if opts.Server == "" {
		p.admin = admin.New(cfg, st, p.gate, admin.WithLogger(logger), admin.WithMetrics(m))
	}

	refresher := leaderboard.NewRefresher(cfg.LeaderboardDelay, func(ctx context.Context) {
		p.screen.Board(p.board.Build(ctx), false)
	}, leaderboard.WithRefreshLogger(logger), leaderboard.WithRefreshMetrics(m))

	rec := recorder.New(p.identity, writer, recorder.WithLogger(logger), recorder.WithMetrics(m))
	p.engine = engine.New(ctx, cfg, cache,
		engine.WithValidator(validator),
		engine.WithRecorder(rec),
		engine.WithGate(p.gate),
		engine.WithRenderer(scr),
		engine.WithLeaderboard(refresher),
		engine.WithMetrics(m),
		engine.WithLogger(logger),
	)
	p.session = session.New(cfg, session.Deps{
		Auth:        p.identity,
		Engine:      p.engine,
		Reconciler:  reconcile.New(solves, p.engine, reconcile.WithLogger(logger), reconcile.WithMetrics(m)),
		Gate:        p.gate,
		Admin:       p.admin,
		Leaderboard: refresher,
		Logger:      logger,
		OnView: func(from, to session.View) {
			p.onView(to)
		},
	})
	p.refresher = refresher
	p.session.Start(ctx)
	return p
}

func (p *player) close() {
	p.session.Close()
	p.refresher.Stop()
	p.engine.Close()
}

func (p *player) onView(to session.View) {
	switch to {
	case session.Game:
		p.screen.SetActive(true)
		p.screen.Show(p.engine.View())
	case session.Admin:
		p.screen.SetActive(false)
		p.screen.Printf("\nAdministrator signed in. Type \"admin\" for the stage overview.\n")
	case session.Landing:
		p.screen.SetActive(false)
		p.screen.Printf("\nSigned out. Sign in or sign up to play.\n")
	}
}

const playHelp = `Commands:
  signup <email> <password>      create an account and sign in
  signin <email> <password>      sign in
  signout                        sign out and clear local progress
  reset <email>                  request a password reset token
  confirm <token> <password>     set a new password and sign in
  answer <text>                  answer the current stage
  select <stage>                 view a solved or unlocked stage
  status                         show the current stage
  grid                           show every stage's status
  board                          show the leaderboard
  admin                          stage overview (administrator)
  admin enable|disable <stage>   toggle one stage
  admin notes <stage> <text>     replace a stage's notes
  admin bulk <action> [stages]   enable_all, disable_all, enable, disable
  quit                           leave
`

// exec runs one command line. It returns true to quit.
func (p *player) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch name {
	case "quit", "exit":
		return true
	case "help", "?":
		p.screen.Printf("%s", playHelp)
	case "signup":
		err = p.signUp(ctx, args)
	case "signin", "login":
		err = p.signIn(ctx, args)
	case "signout", "logout":
		err = p.session.SignOut(ctx)
	case "reset":
		err = p.requestReset(ctx, args)
	case "confirm":
		err = p.confirmReset(ctx, args)
	case "answer", "a":
		err = p.answer(ctx, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
	case "select":
		err = p.selectStage(args)
	case "status":
		err = p.requireGame(func() error {
			p.screen.Show(p.engine.View())
			return nil
		})
	case "grid":
		err = p.requireGame(func() error {
			p.screen.Grid(p.engine.Statuses())
			return nil
		})
	case "board":
		p.screen.Board(p.board.Build(ctx), true)
	case "admin":
		err = p.adminCommand(ctx, args)
	default:
		p.screen.Printf("Unknown command %q. Type \"help\" for commands.\n", name)
	}

	if err != nil {
		p.screen.Printf("%s\n", describe(err))
	}
	return false
}

func (p *player) signUp(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage("signup <email> <password>")
	}
	_, err := p.identity.SignUp(ctx, args[0], args[1])
	return err
}

func (p *player) signIn(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage("signin <email> <password>")
	}
	_, err := p.identity.SignIn(ctx, args[0], args[1])
	return err
}

func (p *player) requestReset(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage("reset <email>")
	}
	token, err := p.identity.RequestPasswordReset(ctx, args[0])
	if err != nil {
		return err
	}
	p.screen.Printf("Reset token: %s\nUse: confirm <token> <new password>\n", token)
	return nil
}

func (p *player) confirmReset(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage("confirm <token> <password>")
	}
	_, err := p.identity.ConfirmPasswordReset(ctx, args[0], args[1])
	return err
}

func (p *player) answer(ctx context.Context, text string) error {
	if text == "" {
		return errUsage("answer <text>")
	}
	return p.requireGame(func() error {
		step := p.engine.View().Step
		if step == 0 {
			p.screen.Printf("No answer is expected here.\n")
			return nil
		}
		out, err := p.session.Submit(ctx, step, text)
		if err != nil {
			return err
		}
		switch {
		case out.Stale:
			p.screen.Printf("The stage changed while checking; answer ignored.\n")
		case !out.Correct:
			p.screen.Printf("Not quite. Try again.\n")
		case out.AwaitingSecond:
			p.screen.Printf("Correct! One more answer to go.\n")
		case out.Complete:
			p.screen.Printf("Correct! That was the last stage.\n")
		default:
			p.screen.Printf("Correct!\n")
		}
		return nil
	})
}

func (p *player) selectStage(args []string) error {
	if len(args) != 1 {
		return errUsage("select <stage>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return errUsage("select <stage>")
	}
	return p.requireGame(func() error {
		if err := p.engine.Select(config.StageID(n)); err != nil {
			return err
		}
		p.screen.Show(p.engine.View())
		return nil
	})
}

func (p *player) adminCommand(ctx context.Context, args []string) error {
	if p.admin == nil {
		return errors.New("stage control needs a local contest store (run without --server)")
	}
	u, ok := p.session.User()
	if !ok {
		return errors.New("sign in as the administrator first")
	}
	res, err := adminAction(ctx, p.admin, u.Email, args)
	if err != nil {
		return err
	}
	p.screen.Printf("%s", res.text)
	return nil
}

func (p *player) requireGame(fn func() error) error {
	if p.session.View() != session.Game {
		return errors.New("sign in to play")
	}
	return fn()
}

type usageError string

func errUsage(usage string) error { return usageError(usage) }

func (e usageError) Error() string { return "usage: " + string(e) }

// describe turns a command error into the line shown to the player.
func describe(err error) string {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		return usage.Error()
	case errors.Is(err, session.ErrSubmitPending):
		return "Still checking your previous answer."
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, auth.ErrEmailTaken):
		return "That email is already registered."
	case errors.Is(err, auth.ErrWeakPassword):
		return "Password must be at least 6 characters."
	case errors.Is(err, auth.ErrInvalidToken):
		return "That reset token is invalid or expired."
	case errors.Is(err, admin.ErrForbidden):
		return "Only the administrator can do that."
	case errors.Is(err, admin.ErrInvalid):
		return "Invalid request: " + err.Error()
	}
	switch engine.CodeOf(err) {
	case engine.ErrCodeStageLocked:
		return "That stage is locked. Solve the previous stage first."
	case engine.ErrCodeStageDisabled:
		return "That stage is disabled by the administrator."
	case engine.ErrCodeValidation:
		return "Could not check your answer. Please try again."
	case engine.ErrCodeComplete:
		return "Every stage is already solved."
	}
	return "Error: " + err.Error()
}
