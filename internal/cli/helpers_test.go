package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// sixStageContest has fallback answers for stages 1, 2 and the two-step
// stage 5.
const sixStageContest = `contest: {
	total: 6
	two_step: {from: 5, to: 5}
	admin_email: "admin@contest.local"
	leaderboard_delay_ms: 0
	stages: [
		{id: 1, title: "Opening", prize: "First prize", answers: {"1": "alpha"}},
		{id: 2, answers: {"1": "beta"}},
		{id: 5, second_clue: "Look east.", answers: {"1": "karnak", "2": "luxor"}},
		{id: 6, prize: "Grand prize"},
	]
}
`

func writeContest(t *testing.T, dir, src string) string {
	t.Helper()
	path := filepath.Join(dir, "contest.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

// runCLI executes the root command with args and stdin lines.
func runCLI(t *testing.T, args []string, input ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(strings.Join(input, "\n") + "\n"))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
