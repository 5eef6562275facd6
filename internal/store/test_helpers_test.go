package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/contest/internal/config"
)

// createTestStore creates a new on-disk store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

// createTestSolve creates a solve at baseTime plus offset seconds.
func createTestSolve(id, userID string, stage config.StageID, offset int) Solve {
	return Solve{
		ID:       id,
		Stage:    stage,
		UserID:   userID,
		Username: userID + "@example.com",
		Step:     1,
		SolvedAt: baseTime.Add(time.Duration(offset) * time.Second),
	}
}
