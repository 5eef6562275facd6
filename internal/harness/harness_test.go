package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{
		"first_stage_solve",
		"two_step_stage",
		"sign_in_merge",
		"disabled_stage",
	} {
		t.Run(name, func(t *testing.T) {
			scenario := loadTestScenario(t, name)
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestScenario(t, "disabled_stage")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: "expects the wrong stage"
setup:
  user: {id: u-1, email: one@example.com}
  signed_in: true
flow:
  - invoke: submit
    args: {answer: istanbul}
    expect:
      case: ok
      result: {current_stage: 7}
assertions:
  - type: trace_count
    action: log_solve
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "current_stage: expected 7, got 2")
}

func TestRun_ErrorCaseMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: locked_stage
description: "stage 2 cannot be selected before stage 1 is solved"
flow:
  - invoke: select
    args: {stage: 2}
    expect:
      case: ok
assertions:
  - type: final_state
    table: engine
    expect: {current_stage: 1}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "STAGE_LOCKED")
}

func TestRun_GateUnavailableFailsOpen(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: gate_down
description: "availability cannot be loaded, so every stage counts as enabled"
setup:
  user: {id: u-1, email: one@example.com}
  signed_in: true
  gate_unavailable: true
  local_solved: [1, 2]
flow:
  - invoke: gate_reload
    expect:
      case: error
      result: {error: GATE_UNAVAILABLE}
  - invoke: status
    args: {stage: 3}
    expect:
      case: ok
      result: {status: unlocked}
assertions:
  - type: final_state
    table: stage
    where: {stage: 9}
    expect: {admin_disabled: false}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SignOutClearsLocalProgress(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: sign_out
description: "signing out clears local progress and returns to the landing view"
setup:
  user: {id: u-1, email: one@example.com}
  signed_in: true
  local_solved: [1, 2, 3]
flow:
  - invoke: sign_out
    expect:
      case: ok
      result: {solved: [], current_stage: 1, view: landing}
assertions:
  - type: final_state
    table: session
    expect: {history: [landing, game, landing], signed_in: false}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AdminBulkAndLeaderboard(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bulk_and_board
description: "the administrator disables stages in bulk; the leaderboard shows the first solver"
setup:
  user: {id: u-1, email: one@example.com}
  signed_in: true
flow:
  - invoke: submit
    args: {answer: istanbul}
  - invoke: admin_bulk
    args: {action: disable, stages: [3, 2, 3]}
    expect:
      case: ok
      result: {stages: [2, 3], current_stage: 2}
  - invoke: status
    args: {stage: 2}
    expect:
      case: ok
      result: {status: admin-disabled}
  - invoke: admin_bulk
    args: {action: enable_all, admin_user: one@example.com}
    expect:
      case: error
      result: {error: FORBIDDEN}
  - invoke: leaderboard
    expect:
      case: ok
      result:
        stale: false
        winners:
          - {stage: 1, username: one@example.com}
assertions:
  - type: trace_contains
    action: admin_bulk
    args: {action: disable}
  - type: trace_count
    action: admin_bulk
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SolveIsIdempotent(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: solve_twice
description: "solving the same stage twice changes nothing the second time"
setup:
  user: {id: u-1, email: one@example.com}
  signed_in: true
flow:
  - invoke: solve
    args: {stage: 1}
    expect:
      case: ok
      result: {newly_solved: true, current_stage: 2}
  - invoke: solve
    args: {stage: 1}
    expect:
      case: ok
      result: {newly_solved: false, current_stage: 2, solved: [1]}
assertions:
  - type: trace_count
    action: log_solve
    count: 1
  - type: final_state
    table: solves
    expect: {count: 1}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_MalformedStepIsAnError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: malformed
description: "submit without an answer"
flow:
  - invoke: submit
    args: {step: 1}
assertions:
  - type: trace_count
    action: submit
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "args.answer")
}
