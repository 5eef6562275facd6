package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/answer"
	"github.com/roach88/contest/internal/auth"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/engine"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/leaderboard"
	"github.com/roach88/contest/internal/progress"
	"github.com/roach88/contest/internal/reconcile"
	"github.com/roach88/contest/internal/recorder"
	"github.com/roach88/contest/internal/session"
	"github.com/roach88/contest/internal/store"
	"github.com/roach88/contest/internal/testutil"
)

// Completion cases.
const (
	CaseOK    = "ok"
	CaseError = "error"
)

var errGateDown = errors.New("availability store unreachable")

// Harness runs one scenario against a fully wired player session.
//
// Every run gets a fresh in-memory contest store, an in-memory local
// progress cache, a deterministic clock and sequential record IDs, so the
// same scenario always produces the same trace.
type Harness struct {
	scenario *Scenario
	cfg      *config.Contest
	store    *store.Store
	progress *progress.Memory
	auth     *auth.Static
	gate     *gate.Gate
	admin    *admin.Console
	engine   *engine.Engine
	session  *session.Session
	board    *leaderboard.Builder
	seq      *testutil.Sequence
	clock    *testutil.Clock
	logger   *slog.Logger

	// mu guards result. Record events arrive on the engine's dispatcher
	// goroutine.
	mu     sync.Mutex
	result *Result
}

// Run executes a scenario and returns the result. An error means the
// scenario could not be executed at all; expect and assertion failures are
// reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	if err := h.setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	for _, msg := range h.evaluateAssertions(ctx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	cfg, err := contestFor(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load contest: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	return &Harness{
		scenario: scenario,
		cfg:      cfg,
		store:    st,
		progress: progress.NewMemory(),
		auth:     auth.NewStatic(),
		seq:      testutil.NewSequence(),
		clock:    testutil.NewClock(time.Time{}, time.Minute),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result:   NewResult(),
	}, nil
}

func contestFor(s *Scenario) (*config.Contest, error) {
	if s.Contest == "" {
		return config.Default()
	}
	return config.Parse([]byte(s.Contest))
}

func (h *Harness) close() {
	if h.session != nil {
		h.session.Close()
	}
	if h.engine != nil {
		h.engine.Close()
	}
	h.store.Close()
}

// setup seeds the stores, wires the session and starts it.
func (h *Harness) setup(ctx context.Context) error {
	setup := h.scenario.Setup

	if len(setup.LocalSolved) > 0 {
		if err := h.progress.SetSolvedStages(ctx, config.StageSetFromInts(setup.LocalSolved)); err != nil {
			return fmt.Errorf("seed local solved: %w", err)
		}
	}
	if len(setup.LocalFirst) > 0 {
		if err := h.progress.SetFirstRiddleSolved(ctx, config.StageSetFromInts(setup.LocalFirst)); err != nil {
			return fmt.Errorf("seed local first answers: %w", err)
		}
	}

	for i, n := range setup.RemoteSolved {
		stage := config.StageID(n)
		_, err := h.store.WriteSolve(ctx, store.Solve{
			ID:       fmt.Sprintf("seed-%d", i+1),
			Stage:    stage,
			UserID:   setup.User.ID,
			Username: setup.User.Email,
			Step:     h.cfg.Steps(stage),
			SolvedAt: h.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("seed remote solve %d: %w", n, err)
		}
	}

	if len(setup.Disabled) > 0 {
		ids := config.StageSetFromInts(setup.Disabled).Sorted()
		if err := h.store.SetStagesEnabled(ctx, ids, false, store.DefaultUpdatedBy, "", h.clock.Now()); err != nil {
			return fmt.Errorf("seed disabled stages: %w", err)
		}
	}

	var source gate.Source = h.store
	if setup.GateUnavailable {
		source = gate.SourceFunc(func(context.Context) (map[config.StageID]bool, error) {
			return nil, errGateDown
		})
	}
	h.gate = gate.New(source, gate.WithLogger(h.logger))

	rec := recorder.New(h.auth, &traceWriter{h: h},
		recorder.WithIDGenerator(recorder.NewSequenceGenerator("solve")),
		recorder.WithClock(h.clock.Now),
		recorder.WithLogger(h.logger),
	)
	h.engine = engine.New(ctx, h.cfg, h.progress,
		engine.WithValidator(answer.NewTable(h.cfg)),
		engine.WithRecorder(rec),
		engine.WithGate(h.gate),
		engine.WithLogger(h.logger),
	)
	h.admin = admin.New(h.cfg, h.store, h.gate,
		admin.WithNow(h.clock.Now),
		admin.WithLogger(h.logger),
	)
	h.board = leaderboard.NewBuilder(h.cfg, h.store, h.logger)

	// Sign in before the session subscribes, so Start picks the user up
	// after availability is loaded.
	if setup.SignedIn {
		h.auth.As(auth.User{ID: setup.User.ID, Email: setup.User.Email})
	}

	h.session = session.New(h.cfg, session.Deps{
		Auth:       h.auth,
		Engine:     h.engine,
		Reconciler: reconcile.New(h.store, h.engine, reconcile.WithLogger(h.logger)),
		Gate:       h.gate,
		Admin:      h.admin,
		Logger:     h.logger,
	})
	h.session.Start(ctx)
	return h.engine.Flush(ctx)
}

// executeFlow runs every flow step. Each step produces an invocation, the
// record writes it caused, and a completion carrying the resulting state.
func (h *Harness) executeFlow(ctx context.Context) error {
	for i, step := range h.scenario.Flow {
		h.mu.Lock()
		h.result.AddInvocationTrace(step.Invoke, step.Args, h.seq.Next())
		h.mu.Unlock()

		res, opErr, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		if err := h.engine.Flush(ctx); err != nil {
			return fmt.Errorf("flow step %d (%s): flush: %w", i, step.Invoke, err)
		}

		for k, v := range h.stateRow() {
			res[k] = v
		}
		outputCase := CaseOK
		if opErr != nil {
			outputCase = CaseError
			res["error"] = errorCode(opErr)
		}

		h.mu.Lock()
		h.result.AddCompletionTrace(outputCase, res, h.seq.Next())
		h.mu.Unlock()

		if step.Expect != nil {
			h.checkExpect(i, step, outputCase, res)
		}
		h.logger.Info("flow step completed", "step", i, "action", step.Invoke, "output_case", outputCase)
	}
	return nil
}

// execute runs one action. opErr is the action's own failure, reported in
// the completion; err means the step itself is malformed.
func (h *Harness) execute(ctx context.Context, step FlowStep) (res map[string]any, opErr error, err error) {
	res = map[string]any{}
	args := step.Args

	switch step.Invoke {
	case ActionSignIn:
		u, err := h.userArg(args)
		if err != nil {
			return nil, nil, err
		}
		h.auth.As(u)

	case ActionSignOut:
		opErr = h.session.SignOut(ctx)

	case ActionSubmit:
		text, ok := args["answer"].(string)
		if !ok {
			return nil, nil, fmt.Errorf("args.answer (string) is required")
		}
		stepNo, ok := intArg(args, "step")
		if !ok {
			stepNo = h.engine.ExpectedStep(h.engine.CurrentStage())
		}
		out, err := h.session.Submit(ctx, stepNo, text)
		if err != nil {
			opErr = err
			break
		}
		res["outcome"] = outcomeName(out)

	case ActionSolve:
		stage, err := stageArg(args)
		if err != nil {
			return nil, nil, err
		}
		newly, err := h.engine.MarkStageSolvedAndAdvance(ctx, stage)
		opErr = err
		res["newly_solved"] = newly

	case ActionSelect:
		stage, err := stageArg(args)
		if err != nil {
			return nil, nil, err
		}
		opErr = h.engine.Select(stage)

	case ActionAdminToggle:
		stage, err := stageArg(args)
		if err != nil {
			return nil, nil, err
		}
		enabled, ok := args["enabled"].(bool)
		if !ok {
			return nil, nil, fmt.Errorf("args.enabled (bool) is required")
		}
		notes, _ := args["notes"].(string)
		sc, err := h.admin.Toggle(ctx, admin.ToggleRequest{
			Stage:     int(stage),
			Enabled:   &enabled,
			AdminUser: h.adminArg(args),
			Notes:     notes,
		})
		if err != nil {
			opErr = err
			break
		}
		res["enabled"] = sc.Enabled

	case ActionAdminBulk:
		action, _ := args["action"].(string)
		stages, err := intsArg(args, "stages")
		if err != nil {
			return nil, nil, err
		}
		br, err := h.admin.Bulk(ctx, admin.BulkRequest{Action: action, Stages: stages, AdminUser: h.adminArg(args)})
		if err != nil {
			opErr = err
			break
		}
		res["stages"] = stageInts(br.Stages)

	case ActionGateReload:
		opErr = h.gate.Load(ctx)
		h.engine.EnsureAtNextUnsolved("gate_reload")

	case ActionStatus:
		stage, err := stageArg(args)
		if err != nil {
			return nil, nil, err
		}
		res["status"] = string(h.engine.Status(stage))

	case ActionLeaderboard:
		board := h.board.Build(ctx)
		winners := []map[string]any{}
		for _, c := range append(board.Cards, board.Final) {
			if c.HasWinner() {
				winners = append(winners, map[string]any{"stage": int(c.Stage), "username": c.Username})
			}
		}
		res["winners"] = winners
		res["stale"] = board.Stale

	default:
		return nil, nil, fmt.Errorf("unknown action %q", step.Invoke)
	}
	return res, opErr, nil
}

func (h *Harness) checkExpect(i int, step FlowStep, outputCase string, res map[string]any) {
	if outputCase != step.Expect.Case {
		detail := ""
		if code, ok := res["error"]; ok {
			detail = fmt.Sprintf(" (error %v)", code)
		}
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q%s", i, step.Invoke, step.Expect.Case, outputCase, detail))
		return
	}
	for _, msg := range subsetMismatches(step.Expect.Result, res) {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
	}
}

// stateRow is the engine and session state attached to every completion.
func (h *Harness) stateRow() map[string]any {
	st := h.engine.State()
	return map[string]any{
		"current_stage": int(st.CurrentStage),
		"solved":        st.Solved.Ints(),
		"first_solved":  st.FirstSolved.Ints(),
		"complete":      st.Complete,
		"view":          string(h.session.View()),
	}
}

func (h *Harness) userArg(args map[string]any) (auth.User, error) {
	id, _ := args["id"].(string)
	email, _ := args["email"].(string)
	if id == "" && email == "" {
		if h.scenario.Setup.User == nil {
			return auth.User{}, fmt.Errorf("args.id and args.email are required without setup.user")
		}
		return auth.User{ID: h.scenario.Setup.User.ID, Email: h.scenario.Setup.User.Email}, nil
	}
	if id == "" {
		id = email
	}
	return auth.User{ID: id, Email: email}, nil
}

func (h *Harness) adminArg(args map[string]any) string {
	if by, ok := args["admin_user"].(string); ok {
		return by
	}
	return h.cfg.AdminEmail
}

// traceWriter writes solve records to the contest store and traces each
// write.
type traceWriter struct {
	h *Harness
}

func (w *traceWriter) WriteSolve(ctx context.Context, solve store.Solve) (bool, error) {
	inserted, err := w.h.store.WriteSolve(ctx, solve)
	args := map[string]any{
		"id":       solve.ID,
		"stage":    int(solve.Stage),
		"step":     solve.Step,
		"user_id":  solve.UserID,
		"inserted": inserted,
	}

	w.h.mu.Lock()
	w.h.result.AddRecordTrace(ActionLogSolve, args, w.h.seq.Next())
	w.h.mu.Unlock()
	return inserted, err
}

func outcomeName(out engine.Outcome) string {
	switch {
	case out.Stale:
		return engine.OutcomeStale
	case out.AlreadySolved:
		return "already_solved"
	case out.Solved:
		return engine.OutcomeSolved
	case out.AwaitingSecond:
		return engine.OutcomeFirstStep
	default:
		return engine.OutcomeIncorrect
	}
}

func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, session.ErrSubmitPending):
		return "SUBMIT_PENDING"
	case errors.Is(err, admin.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, admin.ErrInvalid):
		return "INVALID_REQUEST"
	case errors.Is(err, gate.ErrLoad):
		return "GATE_UNAVAILABLE"
	default:
		return "ERROR"
	}
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func stageArg(args map[string]any) (config.StageID, error) {
	n, ok := intArg(args, "stage")
	if !ok {
		return 0, fmt.Errorf("args.stage (integer) is required")
	}
	return config.StageID(n), nil
}

func intsArg(args map[string]any, key string) ([]int, error) {
	raw, ok := args[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("args.%s must be a list of integers", key)
	}
	out := make([]int, 0, len(list))
	for i := range list {
		n, ok := intArg(map[string]any{"v": list[i]}, "v")
		if !ok {
			return nil, fmt.Errorf("args.%s[%d] must be an integer", key, i)
		}
		out = append(out, n)
	}
	return out, nil
}

func stageInts(ids []config.StageID) []int {
	out := make([]int, len(ids))
	for i, s := range ids {
		out[i] = int(s)
	}
	return out
}
