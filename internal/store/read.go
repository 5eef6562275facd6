package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/contest/internal/config"
)

// SolvedStages returns the stages userID has solved.
func (s *Store) SolvedStages(ctx context.Context, userID string) (config.StageSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage FROM solves WHERE user_id = ? ORDER BY stage ASC
	`, userID)
	if err != nil {
		return config.StageSet{}, fmt.Errorf("query solved stages: %w", err)
	}
	defer rows.Close()

	var ids []config.StageID
	for rows.Next() {
		var stage int
		if err := rows.Scan(&stage); err != nil {
			return config.StageSet{}, fmt.Errorf("scan solved stage: %w", err)
		}
		ids = append(ids, config.StageID(stage))
	}
	if err := rows.Err(); err != nil {
		return config.StageSet{}, fmt.Errorf("iterate solved stages: %w", err)
	}
	return config.NewStageSet(ids...), nil
}

// Solves returns solve records in insertion order. An empty userID returns
// every user's records.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) Solves(ctx context.Context, userID string) ([]Solve, error) {
	query := `
		SELECT seq, id, stage, user_id, username, step, solved_at
		FROM solves`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query solves: %w", err)
	}
	defer rows.Close()

	solves := []Solve{}
	for rows.Next() {
		var (
			sv       Solve
			stage    int
			solvedAt int64
		)
		if err := rows.Scan(&sv.Seq, &sv.ID, &stage, &sv.UserID, &sv.Username, &sv.Step, &solvedAt); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		sv.Stage = config.StageID(stage)
		sv.SolvedAt = fromNanos(solvedAt)
		solves = append(solves, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solves: %w", err)
	}
	return solves, nil
}

// Winners returns the first solver of every stage that has one, ordered by
// stage.
func (s *Store) Winners(ctx context.Context) ([]Winner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, user_id, username, solved_at
		FROM stage_winners
		ORDER BY stage ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query winners: %w", err)
	}
	defer rows.Close()

	winners := []Winner{}
	for rows.Next() {
		var (
			w     Winner
			stage int
			wonAt int64
		)
		if err := rows.Scan(&stage, &w.UserID, &w.Username, &wonAt); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		w.Stage = config.StageID(stage)
		w.WonAt = fromNanos(wonAt)
		winners = append(winners, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate winners: %w", err)
	}
	return winners, nil
}

// SolveCounts returns how many users solved each stage. Stages nobody
// solved are absent.
func (s *Store) SolveCounts(ctx context.Context) (map[config.StageID]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, COUNT(*) FROM solves GROUP BY stage ORDER BY stage ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query solve counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[config.StageID]int)
	for rows.Next() {
		var stage, n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan solve count: %w", err)
		}
		counts[config.StageID(stage)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solve counts: %w", err)
	}
	return counts, nil
}

// StageControls returns every stored control row ordered by stage. Stages
// without a row are implicitly enabled.
func (s *Store) StageControls(ctx context.Context) ([]StageControl, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, is_enabled, updated_by, notes, updated_at
		FROM stage_control
		ORDER BY stage ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stage control: %w", err)
	}
	defer rows.Close()

	controls := []StageControl{}
	for rows.Next() {
		sc, err := scanStageControl(rows)
		if err != nil {
			return nil, err
		}
		controls = append(controls, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage control: %w", err)
	}
	return controls, nil
}

// StageControl returns one control row, or ErrNotFound.
func (s *Store) StageControl(ctx context.Context, stage config.StageID) (StageControl, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT stage, is_enabled, updated_by, notes, updated_at
		FROM stage_control WHERE stage = ?
	`, int(stage))
	sc, err := scanStageControl(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StageControl{}, fmt.Errorf("stage control %d: %w", stage, ErrNotFound)
	}
	return sc, err
}

// StageAvailability returns the enabled flag of every stored row.
func (s *Store) StageAvailability(ctx context.Context) (map[config.StageID]bool, error) {
	controls, err := s.StageControls(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[config.StageID]bool, len(controls))
	for _, sc := range controls {
		out[sc.Stage] = sc.Enabled
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStageControl(row scanner) (StageControl, error) {
	var (
		sc        StageControl
		stage     int
		enabled   int
		updatedAt int64
	)
	if err := row.Scan(&stage, &enabled, &sc.UpdatedBy, &sc.Notes, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StageControl{}, err
		}
		return StageControl{}, fmt.Errorf("scan stage control: %w", err)
	}
	sc.Stage = config.StageID(stage)
	sc.Enabled = enabled != 0
	sc.UpdatedAt = fromNanos(updatedAt)
	return sc, nil
}
