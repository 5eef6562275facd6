// Package gate holds the administrator-controlled availability of stages.
//
// The gate fails open: a stage with no known setting is enabled, and a
// failed load leaves every stage enabled. Availability is only refreshed on
// an explicit Load.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/contest/internal/config"
)

// ErrLoad wraps every failure to fetch availability.
var ErrLoad = errors.New("stage availability load failed")

// Source fetches stored availability. Stages absent from the map are
// enabled.
type Source interface {
	StageAvailability(ctx context.Context) (map[config.StageID]bool, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (map[config.StageID]bool, error)

func (f SourceFunc) StageAvailability(ctx context.Context) (map[config.StageID]bool, error) {
	return f(ctx)
}

// LoadRecorder observes load failures.
type LoadRecorder interface {
	GateLoadFailed()
}

// Snapshot is a read-only copy of the availability mapping.
type Snapshot map[config.StageID]bool

// Enabled reports availability with the enabled default.
func (s Snapshot) Enabled(id config.StageID) bool {
	enabled, ok := s[id]
	return !ok || enabled
}

// Disabled returns the explicitly disabled stages.
func (s Snapshot) Disabled() config.StageSet {
	var ids []config.StageID
	for id, enabled := range s {
		if !enabled {
			ids = append(ids, id)
		}
	}
	return config.NewStageSet(ids...)
}

// Gate caches stage availability in memory.
type Gate struct {
	source  Source
	logger  *slog.Logger
	metrics LoadRecorder

	group singleflight.Group

	mu      sync.RWMutex
	enabled map[config.StageID]bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithMetrics records load failures.
func WithMetrics(m LoadRecorder) Option {
	return func(g *Gate) { g.metrics = m }
}

// New returns a gate with every stage enabled. source may be nil, in which
// case Load is a no-op.
func New(source Source, opts ...Option) *Gate {
	g := &Gate{
		source:  source,
		logger:  slog.Default(),
		enabled: map[config.StageID]bool{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load replaces the cached mapping with the source's. Concurrent calls
// share one fetch. On failure every stage becomes enabled and the error
// (wrapping ErrLoad) is returned for the caller's information only.
func (g *Gate) Load(ctx context.Context) error {
	if g.source == nil {
		return nil
	}
	_, err, _ := g.group.Do("load", func() (interface{}, error) {
		return nil, g.load(ctx)
	})
	return err
}

func (g *Gate) load(ctx context.Context) error {
	fetched, err := g.source.StageAvailability(ctx)
	if err != nil {
		g.mu.Lock()
		g.enabled = map[config.StageID]bool{}
		g.mu.Unlock()

		g.logger.Warn("stage availability load failed, all stages enabled", "error", err)
		if g.metrics != nil {
			g.metrics.GateLoadFailed()
		}
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}

	next := make(map[config.StageID]bool, len(fetched))
	for id, enabled := range fetched {
		next[id] = enabled
	}

	g.mu.Lock()
	g.enabled = next
	g.mu.Unlock()

	g.logger.Debug("stage availability loaded", "stages", len(next), "disabled", Snapshot(next).Disabled().Ints())
	return nil
}

// IsStageEnabled reports whether s is enabled. Unknown stages are enabled.
func (g *Gate) IsStageEnabled(s config.StageID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	enabled, ok := g.enabled[s]
	return !ok || enabled
}

// Snapshot returns a copy of the cached mapping.
func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(Snapshot, len(g.enabled))
	for id, enabled := range g.enabled {
		out[id] = enabled
	}
	return out
}
