package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/progress"
	"github.com/roach88/contest/internal/recorder"
)

// Terminal is returned by FindNextUnsolvedStage when every stage is solved.
const Terminal config.StageID = 0

// DefaultRecordTimeout bounds one detached solve record write.
const DefaultRecordTimeout = 10 * time.Second

// AnswerValidator decides whether an answer is correct.
type AnswerValidator interface {
	Validate(ctx context.Context, stage config.StageID, step int, answer string) (bool, error)
}

// SolveRecorder writes a solve record for the signed-in user.
type SolveRecorder interface {
	LogSolve(ctx context.Context, stage config.StageID, step int) recorder.Result
}

// AvailabilityGate answers whether the administrator enabled a stage.
type AvailabilityGate interface {
	IsStageEnabled(s config.StageID) bool
}

// Renderer receives a View after every state change. It is called with the
// engine lock held and must not call back into the Engine.
type Renderer interface {
	Render(v View)
}

// LeaderboardRefresher schedules a deferred leaderboard refresh. Schedule
// must not block.
type LeaderboardRefresher interface {
	Schedule()
}

// Metrics observes submissions.
type Metrics interface {
	Submission(outcome string)
	ObserveValidation(d time.Duration)
}

// Engine is the stage progression state machine.
//
// All state lives behind one mutex: every public method serializes, and the
// solved set only changes inside the engine. The validator call is the one
// suspension point made without the lock; its answer is discarded if the
// viewed stage changed meanwhile.
//
// Ordering per solve: local persistence, then recorder dispatch, then
// refresh. Recorder calls run on a single dispatcher goroutine in FIFO
// order and never block advancing.
type Engine struct {
	cfg      *config.Contest
	progress progress.Store

	validator   AnswerValidator
	recorder    SolveRecorder
	gate        AvailabilityGate
	renderer    Renderer
	leaderboard LeaderboardRefresher
	metrics     Metrics
	logger      *slog.Logger

	dispatch      *dispatcher
	clock         *Clock
	recordTimeout time.Duration

	mu          sync.Mutex
	solved      config.StageSet
	firstSolved config.StageSet
	current     config.StageID
	complete    bool

	// generation changes whenever the player's state is replaced (Reset,
	// MergeSolved) so in-flight validations can detect staleness.
	generation uint64
}

// EngineOption allows configuration of engine dependencies.
type EngineOption func(*Engine)

// WithValidator sets the answer validator. Without one every answer is
// rejected with ErrValidation.
func WithValidator(v AnswerValidator) EngineOption {
	return func(e *Engine) { e.validator = v }
}

// WithRecorder sets the solve recorder (default: no-op).
func WithRecorder(r SolveRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithGate sets the availability gate (default: everything enabled).
func WithGate(g AvailabilityGate) EngineOption {
	return func(e *Engine) { e.gate = g }
}

// WithRenderer sets the renderer (default: discard).
func WithRenderer(r Renderer) EngineOption {
	return func(e *Engine) { e.renderer = r }
}

// WithLeaderboard sets the deferred leaderboard refresher.
func WithLeaderboard(l LeaderboardRefresher) EngineOption {
	return func(e *Engine) { e.leaderboard = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithRecordTimeout bounds each detached record write.
func WithRecordTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.recordTimeout = d }
}

type noopValidator struct{}

func (noopValidator) Validate(context.Context, config.StageID, int, string) (bool, error) {
	return false, errNoValidator
}

type noopRecorder struct{}

func (noopRecorder) LogSolve(_ context.Context, s config.StageID, step int) recorder.Result {
	return recorder.Result{Stage: s, Step: step, Reason: recorder.ReasonNoUser, Err: recorder.ErrNoUser}
}

type openGate struct{}

func (openGate) IsStageEnabled(config.StageID) bool { return true }

type noopRenderer struct{}

func (noopRenderer) Render(View) {}

type noopLeaderboard struct{}

func (noopLeaderboard) Schedule() {}

type noopMetrics struct{}

func (noopMetrics) Submission(string)                {}
func (noopMetrics) ObserveValidation(time.Duration) {}

// New creates an Engine whose state is read from the local progress store.
// Unreadable progress starts empty. Stages outside [1, N] are dropped and
// first-answer marks are kept only for unsolved two-step stages.
//
// Close must be called to stop the dispatcher goroutine.
func New(ctx context.Context, cfg *config.Contest, ps progress.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:           cfg,
		progress:      ps,
		validator:     noopValidator{},
		recorder:      noopRecorder{},
		gate:          openGate{},
		renderer:      noopRenderer{},
		leaderboard:   noopLeaderboard{},
		metrics:       noopMetrics{},
		logger:        slog.Default(),
		clock:         NewClock(),
		recordTimeout: DefaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	e.dispatch = newDispatcher(e.logger)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadLocked(ctx)
	return e
}

func (e *Engine) loadLocked(ctx context.Context) {
	solved, err := e.progress.SolvedStages(ctx)
	if err != nil {
		e.logger.Warn("local progress unreadable, starting empty", "key", progress.KeySolvedStages, "error", err)
		solved = config.StageSet{}
	}
	first, err := e.progress.FirstRiddleSolved(ctx)
	if err != nil {
		e.logger.Warn("local progress unreadable, starting empty", "key", progress.KeyFirstRiddleSolved, "error", err)
		first = config.StageSet{}
	}

	e.solved = solved.Within(e.cfg.Total)
	e.firstSolved = e.pruneFirst(first)
	e.generation++
	e.repointLocked()
}

// pruneFirst keeps only unsolved two-step stages.
func (e *Engine) pruneFirst(first config.StageSet) config.StageSet {
	var keep []config.StageID
	for _, s := range first.Within(e.cfg.Total).Sorted() {
		if e.cfg.HasTwoAnswers(s) && !e.solved.Contains(s) {
			keep = append(keep, s)
		}
	}
	return config.NewStageSet(keep...)
}

// repointLocked moves the pointer to the lowest unsolved stage.
func (e *Engine) repointLocked() {
	next := e.findNextUnsolvedLocked()
	if next == Terminal {
		e.complete = true
		e.current = e.cfg.Final()
		return
	}
	e.complete = false
	e.current = next
}

// Close drains pending recorder tasks and stops the dispatcher.
func (e *Engine) Close() {
	e.dispatch.Close()
}

// Flush waits until every recorder task dispatched so far has finished.
func (e *Engine) Flush(ctx context.Context) error {
	return e.dispatch.Flush(ctx)
}

// Config returns the contest configuration.
func (e *Engine) Config() *config.Contest {
	return e.cfg
}

// State returns a snapshot of the progression state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		CurrentStage: e.current,
		Solved:       e.solved,
		FirstSolved:  e.firstSolved,
		Complete:     e.complete,
	}
}

// IsSolved reports whether s is solved.
func (e *Engine) IsSolved(s config.StageID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.solved.Contains(s)
}

// IsFirstSolved reports whether the first answer of two-step stage s was
// accepted.
func (e *Engine) IsFirstSolved(s config.StageID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstSolved.Contains(s)
}

// IsUnlocked reports whether s can be played:
// (s == 1 or s-1 solved) and the administrator enabled s.
func (e *Engine) IsUnlocked(s config.StageID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isUnlockedLocked(s)
}

func (e *Engine) isUnlockedLocked(s config.StageID) bool {
	if !e.cfg.Valid(s) {
		return false
	}
	return e.progressUnlockedLocked(s) && e.gate.IsStageEnabled(s)
}

func (e *Engine) progressUnlockedLocked(s config.StageID) bool {
	return s == 1 || e.solved.Contains(s-1)
}

// IsAdminDisabled reports whether the administrator disabled s.
func (e *Engine) IsAdminDisabled(s config.StageID) bool {
	return !e.gate.IsStageEnabled(s)
}

// Status derives the display status of s. Solved wins over everything;
// a stage whose predecessor is unsolved reports locked even if disabled.
func (e *Engine) Status(s config.StageID) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked(s)
}

func (e *Engine) statusLocked(s config.StageID) Status {
	switch {
	case e.solved.Contains(s):
		return StatusSolved
	case !e.progressUnlockedLocked(s):
		return StatusLocked
	case !e.gate.IsStageEnabled(s):
		return StatusAdminDisabled
	case e.cfg.HasTwoAnswers(s) && e.firstSolved.Contains(s):
		return StatusAwaitingSecond
	default:
		return StatusUnlocked
	}
}

// Statuses returns the status of every stage, in order.
func (e *Engine) Statuses() []Cell {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gridLocked()
}

// FindNextUnsolvedStage returns the lowest unsolved stage, or Terminal.
func (e *Engine) FindNextUnsolvedStage() config.StageID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findNextUnsolvedLocked()
}

func (e *Engine) findNextUnsolvedLocked() config.StageID {
	for _, s := range e.cfg.StageIDs() {
		if !e.solved.Contains(s) {
			return s
		}
	}
	return Terminal
}

// CurrentStage returns the viewed stage. When the contest is complete this
// is the final stage.
func (e *Engine) CurrentStage() config.StageID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Complete reports whether every stage is solved.
func (e *Engine) Complete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

// ExpectedStep returns the step the next answer for s is checked against.
func (e *Engine) ExpectedStep(s config.StageID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expectedStepLocked(s)
}

func (e *Engine) expectedStepLocked(s config.StageID) int {
	if e.cfg.HasTwoAnswers(s) && e.firstSolved.Contains(s) {
		return 2
	}
	return 1
}

// SecondClue returns the clue shown once the first of two answers is
// accepted.
func (e *Engine) SecondClue(s config.StageID) string {
	clue := e.cfg.Stage(s).SecondClue
	if clue == "" && e.cfg.HasTwoAnswers(s) {
		return "Second riddle clue not available."
	}
	return clue
}

// Summary returns the progress summary.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryLocked()
}

func (e *Engine) summaryLocked() Summary {
	return newSummary(e.solved.Len(), e.cfg.Total)
}

// View returns what the player currently sees.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Refresh re-renders the current view. Registered as the admin console's
// listener so availability changes show up immediately.
func (e *Engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderLocked()
}

func (e *Engine) renderLocked() {
	e.renderer.Render(e.viewLocked())
}

// refreshAllLocked renders immediately and queues the deferred leaderboard
// refresh.
func (e *Engine) refreshAllLocked() {
	e.renderLocked()
	e.leaderboard.Schedule()
}
