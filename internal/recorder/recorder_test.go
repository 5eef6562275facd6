package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contest/internal/auth"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/store"
)

var fixedNow = time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*auth.Static, *store.Store, *Recorder) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id := auth.NewStatic()
	r := New(id, s,
		WithIDGenerator(NewSequenceGenerator("solve")),
		WithClock(func() time.Time { return fixedNow }),
	)
	return id, s, r
}

func TestLogSolve_Records(t *testing.T) {
	id, s, r := setup(t)
	id.As(auth.User{ID: "u1", Email: "u1@example.com"})

	res := r.LogSolve(context.Background(), 5, 2)
	assert.True(t, res.Recorded())
	assert.Equal(t, "solve-1", res.ID)
	assert.NoError(t, res.Err)

	solves, err := s.Solves(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, solves, 1)
	assert.Equal(t, store.Solve{
		Seq: 1, ID: "solve-1", Stage: 5, UserID: "u1", Username: "u1@example.com", Step: 2, SolvedAt: fixedNow,
	}, solves[0])
}

func TestLogSolve_NoUser(t *testing.T) {
	_, s, r := setup(t)

	res := r.LogSolve(context.Background(), 1, 1)
	assert.Equal(t, ReasonNoUser, res.Reason)
	assert.ErrorIs(t, res.Err, ErrNoUser)

	solves, err := s.Solves(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, solves)
}

func TestLogSolve_Duplicate(t *testing.T) {
	id, _, r := setup(t)
	id.As(auth.User{ID: "u1", Email: "u1@example.com"})

	require.True(t, r.LogSolve(context.Background(), 1, 1).Recorded())
	res := r.LogSolve(context.Background(), 1, 1)
	assert.Equal(t, ReasonDuplicate, res.Reason)
	assert.NoError(t, res.Err)
}

type failingWriter struct{}

func (failingWriter) WriteSolve(context.Context, store.Solve) (bool, error) {
	return false, errors.New("disk full")
}

type resultCounter map[string]int

func (c resultCounter) SolveRecorded(result string) { c[result]++ }

func TestLogSolve_WriteError(t *testing.T) {
	id := auth.NewStatic()
	id.As(auth.User{ID: "u1"})
	counts := resultCounter{}
	r := New(id, failingWriter{}, WithMetrics(counts))

	res := r.LogSolve(context.Background(), config.StageID(3), 1)
	assert.Equal(t, ReasonWriteError, res.Reason)
	assert.ErrorIs(t, res.Err, ErrWrite)
	assert.False(t, res.Recorded())
	assert.Equal(t, 1, counts[ReasonWriteError])
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
