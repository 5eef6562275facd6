// Package reconcile merges remotely persisted solves into local progress
// after sign-in.
//
// The merge is a set union, so it is commutative and idempotent, and the
// local solved set never shrinks. When the remote store cannot be reached
// the local cache stays authoritative.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/engine"
)

// ReasonSignedIn is passed to the engine as the pointer correction reason.
const ReasonSignedIn = "signed_in"

// DefaultTimeout bounds one remote fetch.
const DefaultTimeout = 5 * time.Second

var (
	// ErrFetch means the remote solves could not be read.
	ErrFetch = errors.New("fetch remote solves")

	// ErrNoUser means Reconcile was called without a user ID.
	ErrNoUser = errors.New("reconcile: no user")
)

// Source reads the stages a user has solved remotely.
type Source interface {
	SolvedStages(ctx context.Context, userID string) (config.StageSet, error)
}

// Target receives the merged stages. *engine.Engine implements it.
type Target interface {
	MergeSolved(ctx context.Context, stages config.StageSet, reason string) (engine.State, error)
}

// Metrics counts failed fetches.
type Metrics interface {
	ReconcileFailed()
}

// Merge returns local ∪ cloud.
func Merge(local, cloud config.StageSet) config.StageSet {
	return local.Union(cloud)
}

// Reconciler pulls remote progress into the engine.
type Reconciler struct {
	source  Source
	target  Target
	logger  *slog.Logger
	metrics Metrics
	timeout time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithMetrics sets the failure counter.
func WithMetrics(m Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithTimeout bounds the remote fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

// New creates a Reconciler.
func New(source Source, target Target, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:  source,
		target:  target,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reconcile")
	return r
}

// Reconcile fetches userID's remote solves and merges them into the engine,
// which persists the union locally and corrects its pointer. On a fetch
// failure nothing is merged and an error wrapping ErrFetch is returned; the
// caller carries on with local progress.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (engine.State, error) {
	if userID == "" {
		return engine.State{}, ErrNoUser
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	cloud, err := r.source.SolvedStages(fetchCtx, userID)
	cancel()
	if err != nil {
		r.logger.Warn("remote progress unavailable, keeping local", "user_id", userID, "error", err)
		if r.metrics != nil {
			r.metrics.ReconcileFailed()
		}
		return engine.State{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	st, err := r.target.MergeSolved(ctx, cloud, ReasonSignedIn)
	if err != nil {
		// The engine already holds the merged set in memory.
		r.logger.Warn("merged progress not persisted locally", "user_id", userID, "error", err)
	}
	r.logger.Debug("reconciled", "user_id", userID, "remote", cloud.Len(), "solved", st.Solved.Len())
	return st, nil
}
