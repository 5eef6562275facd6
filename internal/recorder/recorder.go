// Package recorder writes solve records to the contest store.
//
// LogSolve never panics and never retries. Its Result exists for logs and
// metrics; the caller's progression does not depend on it.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/contest/internal/auth"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/store"
)

var (
	// ErrNoUser means nobody is signed in. Not retryable.
	ErrNoUser = errors.New("no authenticated user")

	// ErrWrite means the store rejected or failed the write.
	ErrWrite = errors.New("solve record write failed")
)

// Result reasons.
const (
	ReasonRecorded   = "ok"
	ReasonDuplicate  = "duplicate"
	ReasonNoUser     = "no_user"
	ReasonWriteError = "write_error"
)

// Identity supplies the signed-in user.
type Identity interface {
	CurrentUser() (auth.User, bool)
}

// Writer appends solve records.
type Writer interface {
	WriteSolve(ctx context.Context, solve store.Solve) (bool, error)
}

// Metrics observes results.
type Metrics interface {
	SolveRecorded(result string)
}

// Result describes one LogSolve call.
type Result struct {
	Stage  config.StageID
	Step   int
	ID     string
	Reason string
	Err    error
}

// Recorded reports whether a new row was written.
func (r Result) Recorded() bool {
	return r.Reason == ReasonRecorded
}

// Recorder writes solve records for the signed-in user.
type Recorder struct {
	identity Identity
	writer   Writer
	ids      IDGenerator
	now      func() time.Time
	logger   *slog.Logger
	metrics  Metrics
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithIDGenerator overrides UUIDv7 record IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Recorder) { r.ids = g }
}

// WithClock overrides time.Now for SolvedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithMetrics counts results.
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// New returns a recorder.
func New(identity Identity, writer Writer, opts ...Option) *Recorder {
	r := &Recorder{
		identity: identity,
		writer:   writer,
		ids:      UUIDv7Generator{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LogSolve records that the signed-in user solved stage with its final
// step.
func (r *Recorder) LogSolve(ctx context.Context, stage config.StageID, step int) Result {
	res := r.logSolve(ctx, stage, step)
	if r.metrics != nil {
		r.metrics.SolveRecorded(res.Reason)
	}
	return res
}

func (r *Recorder) logSolve(ctx context.Context, stage config.StageID, step int) Result {
	res := Result{Stage: stage, Step: step}

	user, ok := r.identity.CurrentUser()
	if !ok {
		res.Reason = ReasonNoUser
		res.Err = ErrNoUser
		r.logger.Warn("solve not recorded: no authenticated user", "stage", int(stage))
		return res
	}

	solve := store.Solve{
		ID:       r.ids.Generate(),
		Stage:    stage,
		UserID:   user.ID,
		Username: user.Email,
		Step:     step,
		SolvedAt: r.now(),
	}
	res.ID = solve.ID

	inserted, err := r.writer.WriteSolve(ctx, solve)
	if err != nil {
		res.Reason = ReasonWriteError
		res.Err = fmt.Errorf("%w: %v", ErrWrite, err)
		r.logger.Error("solve record write failed",
			"stage", int(stage), "user_id", user.ID, "id", solve.ID, "error", err)
		return res
	}
	if !inserted {
		res.Reason = ReasonDuplicate
		r.logger.Info("solve already recorded", "stage", int(stage), "user_id", user.ID)
		return res
	}

	res.Reason = ReasonRecorded
	r.logger.Info("solve recorded", "stage", int(stage), "step", step, "user_id", user.ID, "id", solve.ID)
	return res
}
