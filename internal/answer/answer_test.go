package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contest/internal/config"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Istanbul", "istanbul"},
		{"  ISTANBUL \n", "istanbul"},
		{"Cafe\u0301", "caf\u00e9"},
		{"Straße", "strasse"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func testContest(t *testing.T) *config.Contest {
	t.Helper()
	c, err := config.Parse([]byte(`
contest: {
	total: 3
	two_step: {from: 2, to: 2}
	stages: [
		{id: 1, answers: {"1": "Istanbul"}},
		{id: 2, answers: {"1": "left", "2": "right"}},
	]
}
`))
	require.NoError(t, err)
	return c
}

func TestTable(t *testing.T) {
	ctx := context.Background()
	table := NewTable(testContest(t))

	ok, err := table.Validate(ctx, 1, 1, " ISTANBUL ")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = table.Validate(ctx, 1, 1, "ankara")
	assert.False(t, ok)

	ok, _ = table.Validate(ctx, 2, 2, "Right")
	assert.True(t, ok)

	// Unknown pairs fail closed.
	ok, err = table.Validate(ctx, 3, 1, "anything")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, table.Has(3, 1))
	assert.True(t, table.Has(2, 1))
}

func TestRemoteSendsNormalizedRequest(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ValidatePath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Response{OK: true})
	}))
	defer srv.Close()

	ok, err := NewRemote(srv.URL+"/", WithAPIKey("k")).Validate(context.Background(), 3, 1, "  Pamukkale ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Request{Stage: 3, Step: 1, Answer: "pamukkale"}, got)
}

func TestRemoteFailuresAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL).Validate(context.Background(), 1, 1, "x")
	assert.True(t, errors.Is(err, ErrUnavailable))

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer garbage.Close()

	_, err = NewRemote(garbage.URL).Validate(context.Background(), 1, 1, "x")
	assert.ErrorIs(t, err, ErrUnavailable)

	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closed.Close()
	_, err = NewRemote(closed.URL).Validate(context.Background(), 1, 1, "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type countingRecorder struct{ n int }

func (c *countingRecorder) ValidatorFallback(config.StageID) { c.n++ }

func TestFallbackUsesTableOnError(t *testing.T) {
	ctx := context.Background()
	table := NewTable(testContest(t))
	down := ValidatorFunc(func(context.Context, config.StageID, int, string) (bool, error) {
		return false, ErrUnavailable
	})
	rec := &countingRecorder{}

	v := NewFallback(down, table, nil, rec)

	ok, err := v.Validate(ctx, 1, 1, "istanbul")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Validate(ctx, 3, 1, "istanbul")
	require.NoError(t, err)
	assert.False(t, ok, "unknown pair is incorrect")
	assert.Equal(t, 2, rec.n)
}

func TestFallbackTrustsPrimaryVerdict(t *testing.T) {
	ctx := context.Background()
	table := NewTable(testContest(t))
	no := ValidatorFunc(func(context.Context, config.StageID, int, string) (bool, error) {
		return false, nil
	})
	rec := &countingRecorder{}

	ok, err := NewFallback(no, table, nil, rec).Validate(ctx, 1, 1, "istanbul")
	require.NoError(t, err)
	assert.False(t, ok, "a negative primary verdict is final")
	assert.Zero(t, rec.n)
}

func TestFallbackWithoutPrimary(t *testing.T) {
	ok, err := NewFallback(nil, NewTable(testContest(t)), nil, nil).Validate(context.Background(), 2, 1, "LEFT")
	require.NoError(t, err)
	assert.True(t, ok)
}
