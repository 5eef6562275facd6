package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contest/internal/admin"
)

func adminArgs(contest, db string, args ...string) []string {
	return append([]string{"--config", contest, "admin"}, append(args, "--db", db)...)
}

func TestAdmin_Overview(t *testing.T) {
	dir := t.TempDir()
	contest := writeContest(t, dir, sixStageContest)
	db := filepath.Join(dir, "contest.db")
	_, err := runCLI(t, []string{"--config", contest, "play", "--db", db}, "signup ann@example.com secret1", "quit")
	require.NoError(t, err)
	seedSolves(t, db, "ann@example.com", 1, 2)

	out, err := runCLI(t, adminArgs(contest, db, "overview"))
	require.NoError(t, err)
	assert.Contains(t, out, "STAGE  STATUS    SOLVES  UPDATED BY")
	assert.Contains(t, out, "1      enabled   1       System")
	assert.Contains(t, out, "6      enabled   0       System")
	assert.Contains(t, out, "2 solve(s) recorded")
}

func TestAdmin_DisableAndNotes(t *testing.T) {
	dir := t.TempDir()
	contest := writeContest(t, dir, sixStageContest)
	db := filepath.Join(dir, "contest.db")

	out, err := runCLI(t, adminArgs(contest, db, "disable", "3"))
	require.NoError(t, err)
	assert.Equal(t, "Stage 3 disabled: Stage 3 disabled via admin panel\n", out)

	out, err = runCLI(t, adminArgs(contest, db, "notes", "3", "back", "after", "lunch"))
	require.NoError(t, err)
	assert.Equal(t, "Stage 3 notes: back after lunch\n", out)

	out, err = runCLI(t, adminArgs(contest, db, "overview"))
	require.NoError(t, err)
	assert.Contains(t, out, "3      disabled  0       admin@contest.local      back after lunch")

	out, err = runCLI(t, adminArgs(contest, db, "enable", "3"))
	require.NoError(t, err)
	assert.Equal(t, "Stage 3 enabled: Stage 3 enabled via admin panel\n", out)
}

func TestAdmin_Bulk(t *testing.T) {
	dir := t.TempDir()
	contest := writeContest(t, dir, sixStageContest)
	db := filepath.Join(dir, "contest.db")

	out, err := runCLI(t, adminArgs(contest, db, "bulk", "disable", "4", "2", "4"))
	require.NoError(t, err)
	assert.Equal(t, "disable: 2 stage(s) disabled [2 4]\n", out)

	out, err = runCLI(t, adminArgs(contest, db, "bulk", "enable_all"))
	require.NoError(t, err)
	assert.Equal(t, "enable_all: 6 stage(s) enabled [1 2 3 4 5 6]\n", out)
}

func TestAdmin_JSON(t *testing.T) {
	dir := t.TempDir()
	contest := writeContest(t, dir, sixStageContest)
	db := filepath.Join(dir, "contest.db")

	_, err := runCLI(t, adminArgs(contest, db, "disable", "2"))
	require.NoError(t, err)

	out, err := runCLI(t, append([]string{"--format", "json"}, adminArgs(contest, db, "overview")...))
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   admin.Overview `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Stages, 6)
	assert.False(t, resp.Data.Stages[1].Enabled)
	assert.True(t, resp.Data.Stages[0].Enabled)
}

func TestAdmin_NotAdministrator(t *testing.T) {
	dir := t.TempDir()
	contest := writeContest(t, dir, sixStageContest)
	db := filepath.Join(dir, "contest.db")

	for _, args := range [][]string{
		{"overview"},
		{"disable", "2"},
		{"bulk", "disable_all"},
	} {
		out, err := runCLI(t, adminArgs(contest, db, append(args, "--as", "ann@example.com")...))
		require.Error(t, err, args)
		assert.Equal(t, ExitFailure, GetExitCode(err), args)
		assert.Contains(t, out, "Error [E_FORBIDDEN]", args)
	}
}

func TestAdmin_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	contest := writeContest(t, dir, sixStageContest)
	db := filepath.Join(dir, "contest.db")

	tests := []struct {
		name string
		args []string
	}{
		{"stage out of range", []string{"disable", "9"}},
		{"stage not a number", []string{"enable", "two"}},
		{"unknown bulk action", []string{"bulk", "explode"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, adminArgs(contest, db, tt.args...))
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "Error [E_INVALID]")
		})
	}
}

func TestAdmin_RequiresDatabase(t *testing.T) {
	_, err := runCLI(t, []string{"admin", "overview"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}
