package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/store"
)

const boardContestCUE = `
contest: {
	total: 4
	two_step: {from: 2, to: 3}
	stages: [
		{id: 1, prize: "$50 + $100 GC"},
		{id: 2, prize: "$50 + $100 GC"},
		{id: 3, prize: "50K Miles"},
		{id: 4, prize: "100K Miles"},
	]
}
`

type winnersFunc func(ctx context.Context) ([]store.Winner, error)

func (f winnersFunc) Winners(ctx context.Context) ([]store.Winner, error) { return f(ctx) }

func boardContest(t *testing.T) *config.Contest {
	t.Helper()
	c, err := config.Parse([]byte(boardContestCUE))
	require.NoError(t, err)
	return c
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestBuild_WithWinners(t *testing.T) {
	day := time.Date(2025, 11, 1, 23, 30, 0, 0, time.UTC)
	src := winnersFunc(func(context.Context) ([]store.Winner, error) {
		return []store.Winner{
			{Stage: 1, UserID: "u1", Username: "ann@example.com", WonAt: day},
			{Stage: 4, UserID: "u2", Username: "bob@example.com", WonAt: day.Add(24 * time.Hour)},
			{Stage: 9, UserID: "u3", Username: "ghost@example.com", WonAt: day},
		}, nil
	})

	board := NewBuilder(boardContest(t), src, nil).Build(context.Background())

	require.Len(t, board.Cards, 3)
	assert.False(t, board.Stale)
	assert.True(t, board.Cards[0].HasWinner())
	assert.False(t, board.Cards[1].HasWinner())
	assert.True(t, board.Final.Final)
	assert.Equal(t, config.StageID(4), board.Final.Stage)
	assert.Equal(t, "Winner: bob@example.com", board.Final.Pill())

	newGoldie(t).Assert(t, "board_with_winners", []byte(board.Text()))
}

func TestBuild_SourceFailureRendersEmpty(t *testing.T) {
	src := winnersFunc(func(context.Context) ([]store.Winner, error) {
		return nil, errors.New("database is locked")
	})

	board := NewBuilder(boardContest(t), src, nil).Build(context.Background())

	assert.True(t, board.Stale)
	for _, c := range append(board.Cards, board.Final) {
		assert.Equal(t, NoWinner, c.Pill())
		assert.Equal(t, PrizeAvailable, c.Status())
	}
	newGoldie(t).Assert(t, "board_empty", []byte(board.Text()))
}

func TestBuild_FromStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(t.TempDir() + "/contest.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	at := time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)
	_, err = st.WriteSolve(ctx, store.Solve{ID: "a", Stage: 2, UserID: "late", Username: "late@example.com", SolvedAt: at.Add(time.Hour)})
	require.NoError(t, err)
	_, err = st.WriteSolve(ctx, store.Solve{ID: "b", Stage: 2, UserID: "early", Username: "early@example.com", SolvedAt: at})
	require.NoError(t, err)

	board := NewBuilder(boardContest(t), st, nil).Build(ctx)
	assert.Equal(t, "Winner: early@example.com", board.Cards[1].Pill())
}

func TestCard_JSON(t *testing.T) {
	wonAt := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	data, err := json.Marshal(Card{Stage: 3, Title: "Stage 3", Prize: "50K Miles", Username: "ann", WonAt: &wonAt})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":3,"title":"Stage 3","prize":"50K Miles","username":"ann","won_at":"2025-11-01T00:00:00Z"}`, string(data))

	data, err = json.Marshal(Card{Stage: 1, Title: "Stage 1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":1,"title":"Stage 1","prize":""}`, string(data))
}

type refreshCounter struct {
	mu sync.Mutex
	n  int
}

func (c *refreshCounter) inc(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *refreshCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestRefresher_Coalesces(t *testing.T) {
	c := &refreshCounter{}
	r := NewRefresher(20*time.Millisecond, c.inc)
	defer r.Stop()

	for i := 0; i < 5; i++ {
		r.Schedule()
	}
	require.Eventually(t, func() bool { return c.get() == 1 }, time.Second, 5*time.Millisecond)

	// A request after the refresh ran schedules another.
	r.Schedule()
	require.Eventually(t, func() bool { return c.get() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRefresher_StopFlushesPending(t *testing.T) {
	c := &refreshCounter{}
	r := NewRefresher(time.Hour, c.inc)

	r.Schedule()
	assert.Equal(t, 0, c.get())

	r.Stop()
	assert.Equal(t, 1, c.get(), "pending refresh is never skipped")

	r.Schedule()
	r.Stop()
	assert.Equal(t, 1, c.get(), "schedule after stop is ignored")
}

func TestRefresher_ClampsDelay(t *testing.T) {
	assert.Equal(t, config.MaxLeaderboardDelay, NewRefresher(time.Minute, func(context.Context) {}).Delay())
	assert.Equal(t, time.Duration(0), NewRefresher(-time.Second, func(context.Context) {}).Delay())
	assert.Equal(t, 100*time.Millisecond, NewRefresher(100*time.Millisecond, func(context.Context) {}).Delay())
}
