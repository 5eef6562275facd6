package leaderboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/contest/internal/config"
)

// RefreshMetrics counts completed refreshes.
type RefreshMetrics interface {
	LeaderboardRefreshed()
}

// Refresher defers leaderboard refreshes by a bounded delay and coalesces
// requests made while one is pending. A scheduled refresh is never dropped:
// Stop runs a pending refresh immediately.
type Refresher struct {
	delay   time.Duration
	refresh func(ctx context.Context)
	logger  *slog.Logger
	metrics RefreshMetrics

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
	running sync.WaitGroup
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshLogger sets the logger.
func WithRefreshLogger(l *slog.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

// WithRefreshMetrics sets the refresh counter.
func WithRefreshMetrics(m RefreshMetrics) RefresherOption {
	return func(r *Refresher) { r.metrics = m }
}

// NewRefresher creates a Refresher calling refresh after delay, clamped to
// [0, config.MaxLeaderboardDelay].
func NewRefresher(delay time.Duration, refresh func(ctx context.Context), opts ...RefresherOption) *Refresher {
	if delay < 0 {
		delay = 0
	}
	if delay > config.MaxLeaderboardDelay {
		delay = config.MaxLeaderboardDelay
	}
	r := &Refresher{delay: delay, refresh: refresh, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delay returns the effective delay.
func (r *Refresher) Delay() time.Duration {
	return r.delay
}

// Schedule requests a refresh. It never blocks.
func (r *Refresher) Schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.pending {
		return
	}
	r.pending = true
	r.running.Add(1)
	r.timer = time.AfterFunc(r.delay, r.fire)
}

func (r *Refresher) fire() {
	defer r.running.Done()

	r.mu.Lock()
	if !r.pending {
		r.mu.Unlock()
		return
	}
	r.pending = false
	r.mu.Unlock()

	r.run()
}

func (r *Refresher) run() {
	r.refresh(context.Background())
	if r.metrics != nil {
		r.metrics.LeaderboardRefreshed()
	}
	r.logger.Debug("leaderboard refreshed")
}

// Stop cancels the timer, runs a pending refresh synchronously and waits
// for any refresh in progress. Schedule is a no-op afterwards.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.running.Wait()
		return
	}
	r.stopped = true
	flush := false
	if r.pending && r.timer != nil && r.timer.Stop() {
		r.pending = false
		flush = true
	}
	r.mu.Unlock()

	if flush {
		r.run()
		r.running.Done()
	}
	r.running.Wait()
}
