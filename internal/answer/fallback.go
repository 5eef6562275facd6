package answer

import (
	"context"
	"log/slog"

	"github.com/roach88/contest/internal/config"
)

// FallbackRecorder observes primary validator failures.
type FallbackRecorder interface {
	ValidatorFallback(stage config.StageID)
}

// Fallback tries primary first and consults table when primary errors.
// It only returns an error when table does, which Table never does.
type Fallback struct {
	primary Validator
	table   Validator
	logger  *slog.Logger
	metrics FallbackRecorder
}

// NewFallback wires primary and table. logger and metrics may be nil.
func NewFallback(primary, table Validator, logger *slog.Logger, metrics FallbackRecorder) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, table: table, logger: logger, metrics: metrics}
}

func (f *Fallback) Validate(ctx context.Context, stage config.StageID, step int, answer string) (bool, error) {
	if f.primary != nil {
		ok, err := f.primary.Validate(ctx, stage, step, answer)
		if err == nil {
			return ok, nil
		}
		f.logger.Warn("answer validation unavailable, using fallback table",
			"stage", int(stage), "step", step, "error", err)
		if f.metrics != nil {
			f.metrics.ValidatorFallback(stage)
		}
	}
	return f.table.Validate(ctx, stage, step, answer)
}
