package engine

import (
	"context"
	"time"

	"github.com/roach88/contest/internal/config"
)

// Submission outcomes reported to Metrics.
const (
	OutcomeIncorrect   = "incorrect"
	OutcomeFirstStep   = "first_step"
	OutcomeSolved      = "solved"
	OutcomeStale       = "stale"
	OutcomeUnavailable = "unavailable"
	OutcomeRejected    = "rejected"
)

// SubmitAnswer checks answer for the current stage at step.
//
// On a two-step stage a correct first answer only marks the stage as
// awaiting its second answer (persisted). A correct final answer solves
// the stage and advances. If the viewed stage changes while the validator
// is running, the verdict is discarded and Outcome.Stale is set.
func (e *Engine) SubmitAnswer(ctx context.Context, step int, answer string) (Outcome, error) {
	e.mu.Lock()
	stage := e.current
	gen := e.generation
	if err := e.checkSubmittableLocked(stage, step); err != nil {
		e.mu.Unlock()
		e.metrics.Submission(OutcomeRejected)
		return Outcome{Stage: stage, Step: step}, err
	}
	e.mu.Unlock()

	start := time.Now()
	ok, err := e.validator.Validate(ctx, stage, step, answer)
	e.metrics.ObserveValidation(time.Since(start))

	e.mu.Lock()
	defer e.mu.Unlock()

	out := Outcome{Stage: stage, Step: step}
	if e.generation != gen || e.current != stage || e.complete {
		e.logger.Debug("discarding stale validation", "stage", int(stage), "now_viewing", int(e.current))
		e.metrics.Submission(OutcomeStale)
		out.Stale = true
		out.Next = e.current
		return out, nil
	}

	if err != nil {
		e.logger.Warn("answer validation failed", "stage", int(stage), "step", step, "error", err)
		e.metrics.Submission(OutcomeUnavailable)
		return out, newValidationError(stage, err)
	}

	if !ok {
		e.metrics.Submission(OutcomeIncorrect)
		out.Next = e.current
		return out, nil
	}
	out.Correct = true

	if step < e.cfg.Steps(stage) {
		e.firstSolved = e.firstSolved.Add(stage)
		if err := e.progress.SetFirstRiddleSolved(ctx, e.firstSolved); err != nil {
			e.logger.Error("persist first answer failed", "stage", int(stage), "error", err)
		}
		e.logger.Info("first answer accepted", "stage", int(stage))
		e.metrics.Submission(OutcomeFirstStep)
		e.renderLocked()

		out.AwaitingSecond = true
		out.Next = e.current
		return out, nil
	}

	e.metrics.Submission(OutcomeSolved)
	out.Solved = e.markSolvedLocked(ctx, stage, step)
	out.AlreadySolved = !out.Solved
	out.Next = e.current
	out.Complete = e.complete
	return out, nil
}

func (e *Engine) checkSubmittableLocked(stage config.StageID, step int) error {
	if e.complete {
		return newError(ErrCodeComplete, 0, "every stage is solved")
	}
	if e.solved.Contains(stage) {
		return newError(ErrCodeInvalidStage, stage, "stage already solved")
	}
	if !e.progressUnlockedLocked(stage) {
		return newError(ErrCodeStageLocked, stage, "previous stage not solved")
	}
	if !e.gate.IsStageEnabled(stage) {
		return newError(ErrCodeStageDisabled, stage, "stage disabled by administrator")
	}
	if want := e.expectedStepLocked(stage); step != want {
		return newError(ErrCodeInvalidStep, stage, "expected step %d, got %d", want, step)
	}
	return nil
}

// MarkStageSolvedAndAdvance solves s, persists, dispatches the recorder,
// advances and refreshes. Solving an already solved stage changes nothing
// and dispatches nothing, but views are still refreshed. Returns whether s
// was newly solved.
func (e *Engine) MarkStageSolvedAndAdvance(ctx context.Context, s config.StageID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cfg.Valid(s) {
		return false, newError(ErrCodeInvalidStage, s, "stage outside 1..%d", e.cfg.Total)
	}
	return e.markSolvedLocked(ctx, s, e.cfg.Steps(s)), nil
}

func (e *Engine) markSolvedLocked(ctx context.Context, s config.StageID, step int) bool {
	if e.solved.Contains(s) {
		e.logger.Debug("stage already solved, not recording again", "stage", int(s))
		e.refreshAllLocked()
		return false
	}

	// 1. Local persistence happens before anything else can observe the solve.
	e.solved = e.solved.Add(s)
	if err := e.progress.SetSolvedStages(ctx, e.solved); err != nil {
		e.logger.Error("persist solved stages failed", "stage", int(s), "error", err)
	}
	if e.firstSolved.Contains(s) {
		e.firstSolved = e.pruneFirst(e.firstSolved)
		if err := e.progress.SetFirstRiddleSolved(ctx, e.firstSolved); err != nil {
			e.logger.Error("persist first answers failed", "stage", int(s), "error", err)
		}
	}

	// 2. Detached remote write.
	e.dispatchRecordLocked(ctx, s, step)

	// 3. Advance.
	prev := e.current
	e.repointLocked()
	if e.complete {
		e.logger.Info("all stages complete", "total", e.cfg.Total)
	} else {
		e.logger.Info("stage solved", "stage", int(s), "from", int(prev), "to", int(e.current))
	}

	// 4. Refresh.
	e.refreshAllLocked()
	return true
}

func (e *Engine) dispatchRecordLocked(ctx context.Context, s config.StageID, step int) {
	detached := context.WithoutCancel(ctx)
	rec := e.recorder
	logger := e.logger
	timeout := e.recordTimeout

	e.dispatch.Submit("log_solve", func() {
		ctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		res := rec.LogSolve(ctx, s, step)
		if res.Err != nil {
			logger.Warn("solve record not written", "stage", int(s), "reason", res.Reason, "error", res.Err)
		}
	})
}

// EnsureAtNextUnsolved corrects the pointer after external state changes
// (sign-in merge, admin toggles). It moves only when the target differs and
// the viewed stage is solved, disabled, or behind the target, so it never
// pulls a player back from an open stage they are working on.
func (e *Engine) EnsureAtNextUnsolved(reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	moved := e.ensureLocked(reason)
	e.renderLocked()
	return moved
}

func (e *Engine) ensureLocked(reason string) bool {
	target := e.findNextUnsolvedLocked()
	if target == Terminal {
		e.complete = true
		prev := e.current
		if prev == e.cfg.Final() {
			return false
		}
		e.current = e.cfg.Final()
		e.logger.Info("pointer moved to grand prize", "reason", reason, "from", int(prev))
		return true
	}

	e.complete = false
	viewed := e.current
	if target == viewed {
		return false
	}
	if e.solved.Contains(viewed) || !e.gate.IsStageEnabled(viewed) || viewed < target {
		e.current = target
		e.logger.Info("pointer moved", "reason", reason, "from", int(viewed), "to", int(target))
		return true
	}
	return false
}

// MergeSolved unions stages into the solved set (dropping stages outside
// [1, N]), persists the result and calls EnsureAtNextUnsolved. The set
// never shrinks. Returns the merged state.
func (e *Engine) MergeSolved(ctx context.Context, stages config.StageSet, reason string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := e.solved.Union(stages.Within(e.cfg.Total))
	var err error
	if !merged.Equal(e.solved) {
		added := merged.Len() - e.solved.Len()
		e.solved = merged
		e.generation++
		if err = e.progress.SetSolvedStages(ctx, merged); err != nil {
			e.logger.Error("persist merged stages failed", "error", err)
		}
		pruned := e.pruneFirst(e.firstSolved)
		if !pruned.Equal(e.firstSolved) {
			e.firstSolved = pruned
			if ferr := e.progress.SetFirstRiddleSolved(ctx, pruned); ferr != nil {
				e.logger.Error("persist first answers failed", "error", ferr)
			}
		}
		e.logger.Info("merged remote progress", "reason", reason, "added", added, "solved", merged.Len())
	}

	e.ensureLocked(reason)
	e.refreshAllLocked()
	return e.stateLocked(), err
}

// Select moves the pointer to s for viewing. Solved stages and unlocked
// stages can be selected. Once the contest is complete, selecting the final
// stage shows the grand prize again.
func (e *Engine) Select(s config.StageID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case !e.cfg.Valid(s):
		return newError(ErrCodeInvalidStage, s, "stage outside 1..%d", e.cfg.Total)
	case e.solved.Contains(s):
	case !e.progressUnlockedLocked(s):
		return newError(ErrCodeStageLocked, s, "previous stage not solved")
	case !e.gate.IsStageEnabled(s):
		return newError(ErrCodeStageDisabled, s, "stage disabled by administrator")
	}

	e.current = s
	e.renderLocked()
	return nil
}

// Reset clears local progress (sign-out) and returns to stage 1.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.progress.Clear(ctx)
	if err != nil {
		e.logger.Error("clear local progress failed", "error", err)
	}
	e.solved = config.StageSet{}
	e.firstSolved = config.StageSet{}
	e.generation++
	e.repointLocked()
	e.renderLocked()
	return err
}
