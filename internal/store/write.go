package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/contest/internal/config"
)

// WriteSolve appends a solve record.
// Uses ON CONFLICT DO NOTHING for idempotency: a second solve of the same
// stage by the same user (or a replay of the same ID) is silently ignored,
// and inserted reports false. Other constraint violations still error.
func (s *Store) WriteSolve(ctx context.Context, solve Solve) (inserted bool, err error) {
	if solve.Step == 0 {
		solve.Step = 1
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO solves
		(id, stage, user_id, username, step, solved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		solve.ID,
		int(solve.Stage),
		solve.UserID,
		solve.Username,
		solve.Step,
		toNanos(solve.SolvedAt),
	)
	if err != nil {
		return false, fmt.Errorf("write solve: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write solve: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpsertStageControl writes the full control row for a stage.
func (s *Store) UpsertStageControl(ctx context.Context, sc StageControl) error {
	if sc.UpdatedBy == "" {
		sc.UpdatedBy = DefaultUpdatedBy
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_control (stage, is_enabled, updated_by, notes, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stage) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			updated_by = excluded.updated_by,
			notes      = excluded.notes,
			updated_at = excluded.updated_at
	`,
		int(sc.Stage),
		boolToInt(sc.Enabled),
		sc.UpdatedBy,
		sc.Notes,
		toNanos(sc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("write stage control %d: %w", sc.Stage, err)
	}
	return nil
}

// SetStagesEnabled sets the enabled flag of several stages in one
// transaction. notes is applied to every row; existing notes are kept when
// notes is empty.
func (s *Store) SetStagesEnabled(ctx context.Context, stages []config.StageID, enabled bool, by, notes string, at time.Time) error {
	if by == "" {
		by = DefaultUpdatedBy
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set stages enabled: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stage_control (stage, is_enabled, updated_by, notes, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stage) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			updated_by = excluded.updated_by,
			notes      = CASE WHEN excluded.notes = '' THEN stage_control.notes ELSE excluded.notes END,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("set stages enabled: prepare: %w", err)
	}
	defer stmt.Close()

	for _, stage := range stages {
		if _, err := stmt.ExecContext(ctx, int(stage), boolToInt(enabled), by, notes, toNanos(at)); err != nil {
			return fmt.Errorf("set stages enabled: stage %d: %w", stage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set stages enabled: commit: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
